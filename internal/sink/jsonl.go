package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/notify"
)

// JSONLines writes one canonical JSON object per line. Control messages
// are written as {"message":...,"type":"control"}; status events carry
// "type":"status" next to their fields. Safe for concurrent use.
type JSONLines struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLines creates a sink writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w}
}

// SendControlMessage implements notify.Sink.
func (j *JSONLines) SendControlMessage(_ context.Context, msg string) error {
	return j.write(map[string]any{"type": "control", "message": msg})
}

// SendStatusEvent implements notify.Sink.
func (j *JSONLines) SendStatusEvent(_ context.Context, ev notify.StatusEvent) error {
	m := ev.CanonicalMap()
	m["type"] = "status"
	return j.write(m)
}

func (j *JSONLines) write(m map[string]any) error {
	data, err := ir.MarshalCanonical(m)
	if err != nil {
		return fmt.Errorf("encode line: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(data); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	return nil
}
