package gateway

import (
	"context"
	"fmt"

	"github.com/mcdev12/taprounds/go/internal/events"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// EventConsumer consumes round events from JetStream and broadcasts them to WebSocket clients.
// Every gateway instance needs every event, so it reads through its own ordered consumer
// rather than a shared durable one.
type EventConsumer struct {
	connectionManager *ConnectionManager
	js                jetstream.JetStream
	config            events.JetStreamConfig
}

// NewEventConsumer creates a JetStream event consumer on an existing connection.
func NewEventConsumer(cm *ConnectionManager, js jetstream.JetStream, config events.JetStreamConfig) *EventConsumer {
	return &EventConsumer{
		connectionManager: cm,
		js:                js,
		config:            config,
	}
}

// Start consumes new events until ctx is cancelled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	consumer, err := ec.js.OrderedConsumer(ctx, ec.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ec.config.SubjectPrefix + ".>"},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create ordered consumer: %w", err)
	}

	log.Info().
		Str("stream", ec.config.StreamName).
		Str("subjects", ec.config.SubjectPrefix+".>").
		Msg("starting JetStream event consumer")

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := ec.processMessage(msg.Data()); err != nil {
			log.Error().
				Err(err).
				Str("subject", msg.Subject()).
				Msg("failed to process message")
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	log.Info().Msg("event consumer shutting down")
	return nil
}

func (ec *EventConsumer) processMessage(data []byte) error {
	ev, err := events.Decode(data)
	if err != nil {
		return err
	}

	log.Debug().
		Str("event_id", ev.ID.String()).
		Str("round_id", ev.RoundID.String()).
		Str("event_type", string(ev.Type)).
		Msg("processing JetStream event")

	return ec.connectionManager.Publish(context.Background(), ev)
}
