package notify

import (
	"context"
	"log/slog"

	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/metric"
	"github.com/roach88/rollcall/internal/queue"
)

// Dispatcher queues notifications and delivers them to a sink on the
// goroutine running Run, so a slow sink never stalls an evaluation pass.
//
// Thread-safety model:
//   - Notify(): safe from any goroutine, never blocks
//   - Run(): must be called from exactly one goroutine
type Dispatcher struct {
	sink     Sink
	name     string
	queue    *queue.Queue[ir.Notification]
	logger   *slog.Logger
	metrics  *metric.Metrics
	onResult func(ir.Notification, error)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger for delivery failures.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics counts delivery failures.
func WithMetrics(m *metric.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithSinkName labels the sink in logs and metrics. Default "sink".
func WithSinkName(name string) DispatcherOption {
	return func(d *Dispatcher) {
		d.name = name
	}
}

// WithResultHook is called after every delivery attempt, on the Run
// goroutine.
func WithResultHook(fn func(ir.Notification, error)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onResult = fn
	}
}

// NewDispatcher creates a dispatcher for sink.
func NewDispatcher(sink Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sink:   sink,
		name:   "sink",
		queue:  queue.New[ir.Notification](),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify implements Notifier. It only enqueues.
func (d *Dispatcher) Notify(_ context.Context, n ir.Notification) error {
	if !d.queue.Push(n) {
		return ErrClosed
	}
	d.metrics.SetQueueDepth("notify", d.queue.Len())
	return nil
}

// Pending returns the number of queued notifications.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

// Run delivers queued notifications until ctx is cancelled or Close is
// called. After Close, Run drains what is already queued and returns nil.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Debug("dispatcher starting", "sink", d.name)
	for {
		if n, ok := d.queue.TryPop(); ok {
			d.deliver(ctx, n)
			continue
		}

		select {
		case <-ctx.Done():
			d.logger.Debug("dispatcher stopping: context cancelled", "sink", d.name, "pending", d.queue.Len())
			d.queue.Close()
			return ctx.Err()
		case <-d.queue.Wait():
			if d.queue.Closed() && d.queue.Len() == 0 {
				d.logger.Debug("dispatcher stopping: closed", "sink", d.name)
				return nil
			}
		}
	}
}

// Close stops accepting notifications.
func (d *Dispatcher) Close() {
	d.queue.Close()
}

func (d *Dispatcher) deliver(ctx context.Context, n ir.Notification) {
	err := Deliver(ctx, d.sink, n)
	d.metrics.SetQueueDepth("notify", d.queue.Len())
	if err != nil {
		d.metrics.DispatchFailed(d.name)
		d.logger.Warn("notification delivery failed",
			"sink", d.name,
			"message", n.Message,
			"pass", n.Pass,
			"error", err,
		)
	}
	if d.onResult != nil {
		d.onResult(n, err)
	}
}
