// Package bus connects the server to the ingestion and chat workers over
// NATS. Ingestion events go through JetStream so they survive a worker
// restart; chat questions use core request/reply.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// StreamName is the JetStream stream holding document events.
const StreamName = "DOCCHAT_DOCUMENTS"

// StreamSubjects are captured by StreamName. Chat subjects must stay outside
// the stream, or JetStream would answer requests with publish acks.
var StreamSubjects = []string{"docchat.documents.>"}

var errNilBus = errors.New("nil bus")

// Bus wraps a NATS connection and its JetStream context.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New connects to url and opens a JetStream context.
func New(url string, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Bus{conn: nc, js: js}, nil
}

// EnsureStream creates the document stream unless it already exists.
func (b *Bus) EnsureStream(ctx context.Context) error {
	if b == nil {
		return errNilBus
	}

	_, err := b.js.StreamInfo(StreamName, nats.Context(ctx))
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: StreamSubjects,
		Storage:  nats.FileStorage,
	}, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("add stream: %w", err)
	}
	return nil
}

// Close drains the connection, falling back to a hard close.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Ping reports whether the connection is up.
func (b *Bus) Ping() error {
	if b == nil || b.conn == nil {
		return errNilBus
	}
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats: %s", b.conn.Status())
	}
	return nil
}

// Publish encodes v as JSON and publishes it to subj through JetStream.
func (b *Bus) Publish(ctx context.Context, subj string, v any) error {
	if b == nil {
		return errNilBus
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if b.js == nil {
		return errNilBus
	}

	_, err = b.js.Publish(subj, data, nats.Context(ctx))
	return err
}

// Request sends req as JSON to subj and decodes the reply into resp. The
// call is bounded by ctx, which must carry a deadline or be cancellable.
func (b *Bus) Request(ctx context.Context, subj string, req, resp any) error {
	if b == nil {
		return errNilBus
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if b.conn == nil {
		return errNilBus
	}

	msg, err := b.conn.RequestWithContext(ctx, subj, data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(msg.Data, resp); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
