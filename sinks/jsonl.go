package sinks

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/planrun/planrun/events"
)

// wireEvent is the JSON-lines shape of one event, one object per line.
// Optional fields are omitted when empty so the stream stays compact for
// tools that tail it.
type wireEvent struct {
	Time       time.Time `json:"time"`
	Kind       string    `json:"kind"`
	Test       string    `json:"test,omitempty"`
	Case       string    `json:"case,omitempty"`
	Status     string    `json:"status,omitempty"`
	SkipReason string    `json:"skip_reason,omitempty"`
	Issue      string    `json:"issue,omitempty"`
	IssueKind  string    `json:"issue_kind,omitempty"`
	Known      bool      `json:"known,omitempty"`
	Expression string    `json:"expression,omitempty"`
	Attachment string    `json:"attachment,omitempty"`
}

// JSONL writes each event as one JSON line, suitable for feeding to
// log-processing tools. Writes are serialized; the writer itself need not
// be concurrency-safe.
type JSONL struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONL creates a JSON-lines sink on w.
func NewJSONL(w io.Writer) *JSONL {
	return &JSONL{enc: json.NewEncoder(w)}
}

// Handle encodes one event.
func (s *JSONL) Handle(e events.Event) {
	we := wireEvent{
		Time:       e.Instant.Wall,
		Kind:       string(e.Kind),
		Test:       string(e.Test),
		Status:     string(e.Status),
		SkipReason: e.SkipReason,
	}
	if e.Case != nil {
		we.Case = e.Case.String()
	}
	if e.Issue != nil {
		we.Issue = e.Issue.String()
		we.IssueKind = string(e.Issue.Kind)
		we.Known = e.Issue.IsKnown()
	}
	if e.Expectation != nil {
		we.Expression = e.Expectation.Expression
	}
	if e.Attachment != nil {
		we.Attachment = e.Attachment.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Encode errors are swallowed deliberately: a sink must never fail
	// the run it is observing.
	_ = s.enc.Encode(we)
}
