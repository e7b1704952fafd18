// Package ingestion is the live-feed shell: it consumes outcome-token
// activity from NATS JetStream, parses and deduplicates it, and appends it
// to the warehouse so the next replay picks it up. Nothing here computes
// PnL; the feed only grows the event log.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const eventStreamName = "OUTCOME_EVENTS"

// RawMessage is one undecoded feed message with its ack handles. The
// consumer acks only after the row is durably appended; a nak leaves the
// message for redelivery, which the dedup layer then collapses.
type RawMessage struct {
	Subject string
	Data    []byte
	AckFunc func()
	NakFunc func()
}

// SubjectConfig maps one JetStream subject to a payload category.
type SubjectConfig struct {
	Subject      string
	Category     string
	ConsumerName string
}

// DefaultSubjects covers the four feed surfaces: order fills, position
// lifecycle actions, oracle resolutions, and mark prices.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "outcome.fills.>", Category: CategoryFill, ConsumerName: "ledger-fills"},
		{Subject: "outcome.lifecycle.>", Category: CategoryLifecycle, ConsumerName: "ledger-lifecycle"},
		{Subject: "outcome.resolutions.>", Category: CategoryResolution, ConsumerName: "ledger-resolutions"},
		{Subject: "outcome.marks.>", Category: CategoryMark, ConsumerName: "ledger-marks"},
	}
}

// Subscriber owns the JetStream consumers and feeds raw messages into the
// consumer loop's channel.
type Subscriber struct {
	js        jetstream.JetStream
	msgChan   chan<- RawMessage
	log       zerolog.Logger
	consumers []jetstream.ConsumeContext
}

func NewSubscriber(js jetstream.JetStream, msgChan chan<- RawMessage, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		js:      js,
		msgChan: msgChan,
		log:     log,
	}
}

// Subscribe creates a durable explicit-ack consumer per subject.
func (s *Subscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := s.js.CreateOrUpdateConsumer(ctx, eventStreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		cc, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawMessage{
				Subject: msg.Subject(),
				Data:    msg.Data(),
				AckFunc: func() { msg.Ack() },
				NakFunc: func() { msg.Nak() },
			}
			select {
			case s.msgChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		s.consumers = append(s.consumers, cc)
		s.log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}
	return nil
}

// Stop stops all consumers. In-flight messages are nak'd by the server after
// ack_wait and redelivered on the next start.
func (s *Subscriber) Stop() {
	for _, cc := range s.consumers {
		cc.Stop()
	}
	s.log.Info().Msg("feed consumers stopped")
}

// EnsureStream creates the event stream if it does not exist. Retention is
// a delivery buffer only; the warehouse is the durable log.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name: eventStreamName,
		Subjects: []string{
			"outcome.fills.>",
			"outcome.lifecycle.>",
			"outcome.resolutions.>",
			"outcome.marks.>",
		},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", eventStreamName, err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
