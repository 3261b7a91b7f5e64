package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/pricewise-ai/pricewise/internal/nats"
)

const (
	consumerName = "audit-persister"
	fetchBatch   = 25
)

// Consumer drains audit events off JetStream and writes them to Postgres.
type Consumer struct {
	repo *Repository
	js   jetstream.JetStream
}

// NewConsumer creates an audit Consumer over an existing JetStream handle.
func NewConsumer(repo *Repository, js jetstream.JetStream) *Consumer {
	return &Consumer{repo: repo, js: js}
}

// Run fetches and persists events until ctx is cancelled. Failed inserts are
// nacked for redelivery; payloads that cannot decode are terminated so they
// never redeliver.
func (c *Consumer) Run(ctx context.Context) error {
	consumer, err := inats.EnsureConsumer(ctx, c.js, inats.ConsumerSpec{
		Stream:        inats.StreamEvents,
		Durable:       consumerName,
		FilterSubject: inats.SubjectAuditEvent,
	})
	if err != nil {
		return err
	}

	slog.Info("audit consumer started", "consumer", consumerName)

	for ctx.Err() == nil {
		batch, err := consumer.Fetch(fetchBatch, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Debug("fetching audit events", "error", err)
			continue
		}

		for msg := range batch.Messages() {
			c.handle(ctx, msg)
		}
		if err := batch.Error(); err != nil && ctx.Err() == nil {
			slog.Warn("audit event batch interrupted", "error", err)
		}
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg jetstream.Msg) {
	var event inats.AuditEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("dropping malformed audit event", "error", err, "subject", msg.Subject())
		_ = msg.Term()
		return
	}

	if err := c.repo.Insert(ctx, entryFromEvent(event)); err != nil {
		slog.Error("persisting audit event", "error", err, "event_type", event.EventType)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

// entryFromEvent maps a wire event onto an audit_logs row. Resource ids are
// kept only when they parse as UUIDs; free-text details are wrapped in a
// JSON object so the column stays queryable.
func entryFromEvent(event inats.AuditEvent) *AuditLog {
	entry := &AuditLog{
		ID:           uuid.New(),
		UserID:       event.UserID,
		EventType:    event.EventType,
		Severity:     event.Severity,
		ResourceType: event.ResourceType,
		CreatedAt:    event.Timestamp,
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if id, err := uuid.Parse(event.ResourceID); err == nil {
		entry.ResourceID = &id
	}
	if event.Details != "" {
		if data, err := json.Marshal(map[string]string{"message": event.Details}); err == nil {
			entry.Details = data
		}
	}
	return entry
}
