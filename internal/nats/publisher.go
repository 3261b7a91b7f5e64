package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher writes typed events into JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a Publisher on top of an existing JetStream handle.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishRunEvent publishes a run lifecycle transition, deduplicated by the
// event's MsgID.
func (p *Publisher) PublishRunEvent(ctx context.Context, event RunEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return p.publish(ctx, SubjectRunEvent, event, jetstream.WithMsgID(event.MsgID()))
}

// PublishAuditEvent publishes an audit trail entry for async persistence.
func (p *Publisher) PublishAuditEvent(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return p.publish(ctx, SubjectAuditEvent, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, event any, opts ...jetstream.PublishOpt) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", subject, err)
	}
	if _, err := p.js.Publish(ctx, subject, payload, opts...); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
