package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/notify"
)

// DefaultSubjectPrefix prefixes every published subject.
const DefaultSubjectPrefix = "rollcall"

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes control messages to "<prefix>.control" and status events
// to "<prefix>.status.<kind>" as canonical JSON.
type NATS struct {
	pub    Publisher
	prefix string
}

// NewNATS creates a NATS sink. An empty prefix uses DefaultSubjectPrefix.
func NewNATS(pub Publisher, prefix string) *NATS {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{pub: pub, prefix: prefix}
}

// ControlSubject returns the subject for control messages.
func (n *NATS) ControlSubject() string {
	return n.prefix + ".control"
}

// StatusSubject returns the subject for status events of kind.
func (n *NATS) StatusSubject(kind ir.CheckKind) string {
	return n.prefix + ".status." + string(kind)
}

// SendControlMessage implements notify.Sink.
func (n *NATS) SendControlMessage(_ context.Context, msg string) error {
	if err := n.pub.Publish(n.ControlSubject(), []byte(msg)); err != nil {
		return fmt.Errorf("publish control message: %w", err)
	}
	return nil
}

// SendStatusEvent implements notify.Sink.
func (n *NATS) SendStatusEvent(_ context.Context, ev notify.StatusEvent) error {
	data, err := ir.MarshalCanonical(ev.CanonicalMap())
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	if err := n.pub.Publish(n.StatusSubject(ev.Kind), data); err != nil {
		return fmt.Errorf("publish status event: %w", err)
	}
	return nil
}

// DialNATS connects to url with reconnects enabled. The connection keeps
// retrying in the background; publishes while disconnected are buffered by
// the client.
func DialNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("rollcall"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}
