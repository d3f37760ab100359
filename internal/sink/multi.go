package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/rollcall/internal/notify"
)

// Named pairs a sink with the name used in errors.
type Named struct {
	Name string
	Sink notify.Sink
}

// Multi delivers to every sink in order. A failing sink does not stop
// delivery to the others; all errors are joined.
type Multi []Named

// SendControlMessage implements notify.Sink.
func (m Multi) SendControlMessage(ctx context.Context, msg string) error {
	var errs []error
	for _, s := range m {
		if err := s.Sink.SendControlMessage(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// SendStatusEvent implements notify.Sink.
func (m Multi) SendStatusEvent(ctx context.Context, ev notify.StatusEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Sink.SendStatusEvent(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
