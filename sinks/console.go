// Package sinks provides event handler implementations consuming the run's
// event stream: a console summary table, a JSON-lines writer for tools,
// and a fan-out composing several handlers into one.
package sinks

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/planrun/planrun/events"
	"github.com/planrun/planrun/types"
)

type consoleRow struct {
	id       types.TestID
	kind     string
	status   types.TestStatus
	duration time.Duration
	detail   string
}

// Console accumulates per-test outcomes from the event stream and renders
// a summary table when the run ends. Safe for concurrent posting
// goroutines.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	logger  log.Logger
	started map[types.TestID]events.Instant
	issues  map[types.TestID][]string
	rows    []consoleRow
	runFrom events.Instant
	runDur  time.Duration
}

// NewConsole creates a console sink writing its table to out.
func NewConsole(out io.Writer, logger log.Logger) *Console {
	if logger == nil {
		logger = log.Root()
	}
	return &Console{
		out:     out,
		logger:  logger,
		started: make(map[types.TestID]events.Instant),
		issues:  make(map[types.TestID][]string),
	}
}

// Handle consumes one event. Plug it in as (or into) the configuration's
// handler.
func (c *Console) Handle(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Kind {
	case events.EventRunStarted:
		c.runFrom = e.Instant
	case events.EventTestStarted:
		c.started[e.Test] = e.Instant
	case events.EventIssueRecorded:
		if e.Issue != nil {
			c.issues[e.Test] = append(c.issues[e.Test], e.Issue.String())
		}
	case events.EventTestSkipped:
		c.rows = append(c.rows, consoleRow{
			id:     e.Test,
			kind:   "test",
			status: types.TestStatusSkip,
			detail: e.SkipReason,
		})
	case events.EventTestEnded:
		row := consoleRow{id: e.Test, kind: "test", status: e.Status}
		if from, ok := c.started[e.Test]; ok {
			row.duration = e.Instant.Since(from)
		}
		if notes := c.issues[e.Test]; len(notes) > 0 {
			row.detail = notes[0]
			if len(notes) > 1 {
				row.detail += fmt.Sprintf(" (+%d more)", len(notes)-1)
			}
		}
		c.rows = append(c.rows, row)
	case events.EventRunEnded:
		if !c.runFrom.IsZero() {
			c.runDur = e.Instant.Since(c.runFrom)
		}
		c.render()
	}
}

// render prints the summary table. Called with the lock held, once per run.
func (c *Console) render() {
	c.logger.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.SetTitle(fmt.Sprintf("Test Run Results (%s)", formatDuration(c.runDur)))

	t.AppendHeader(table.Row{"Type", "ID", "Duration", "Status", "Details"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Details", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	var passed, failed, skipped int
	for _, row := range c.rows {
		t.AppendRow(table.Row{
			row.kind,
			row.id,
			formatDuration(row.duration),
			statusString(row.status),
			row.detail,
		})
		switch {
		case row.status == types.TestStatusSkip:
			skipped++
		case row.status.IsFailure():
			failed++
		default:
			passed++
		}
	}

	t.AppendFooter(table.Row{"", "", "", "",
		fmt.Sprintf("%d passed, %d failed, %d skipped", passed, failed, skipped)})
	t.Render()
}

// statusString returns a short marker-prefixed rendering of a status.
func statusString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	case types.TestStatusTimeout:
		return "✗ timeout"
	default:
		return "✗ fail"
	}
}

// formatDuration rounds to the nearest millisecond for readability.
func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
