package check

import (
	"context"

	"github.com/planrun/planrun/events"
)

// Attachable is any value that can render itself as bytes for attachment
// to a run. Encoding (image formats, serialization) is the implementer's
// concern; the core only carries the producer.
type Attachable interface {
	AttachmentBytes() ([]byte, error)
}

// Attach wraps value in a value-attached event on the current test/case.
func Attach(ctx context.Context, value Attachable, preferredName string) {
	events.Post(ctx, events.Event{
		Kind: events.EventValueAttached,
		Attachment: &events.Attachment{
			Name:    preferredName,
			Produce: value.AttachmentBytes,
			Source:  events.CaptureSource(1),
		},
	})
}

// AttachBytes attaches an already-materialized byte slice.
func AttachBytes(ctx context.Context, data []byte, preferredName string) {
	events.Post(ctx, events.Event{
		Kind: events.EventValueAttached,
		Attachment: &events.Attachment{
			Name:    preferredName,
			Produce: func() ([]byte, error) { return data, nil },
			Source:  events.CaptureSource(1),
		},
	})
}
