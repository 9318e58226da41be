package sinks

import "github.com/planrun/planrun/events"

// Fanout composes several handlers into one, invoking them in order from
// the posting goroutine. Each handler must be individually safe for
// concurrent callers, as required of any event handler.
func Fanout(handlers ...events.Handler) events.Handler {
	return func(e events.Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}
