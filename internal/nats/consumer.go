package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Defaults applied by EnsureConsumer when a spec field is zero.
const (
	defaultAckWait    = 30 * time.Second
	defaultMaxDeliver = 5
)

// ConsumerSpec describes a durable pull consumer.
type ConsumerSpec struct {
	Stream        string
	Durable       string
	FilterSubject string
	// AckWait is how long the server waits for an ack before redelivering.
	AckWait time.Duration
	// MaxDeliver bounds redelivery so a poison message cannot circulate
	// forever.
	MaxDeliver int
}

// EnsureConsumer creates the durable consumer described by spec, updating it
// in place if its configuration drifted.
func EnsureConsumer(ctx context.Context, js jetstream.JetStream, spec ConsumerSpec) (jetstream.Consumer, error) {
	if spec.AckWait <= 0 {
		spec.AckWait = defaultAckWait
	}
	if spec.MaxDeliver <= 0 {
		spec.MaxDeliver = defaultMaxDeliver
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, spec.Stream, jetstream.ConsumerConfig{
		Durable:       spec.Durable,
		FilterSubject: spec.FilterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       spec.AckWait,
		MaxDeliver:    spec.MaxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s on %s: %w", spec.Durable, spec.Stream, err)
	}
	return consumer, nil
}
