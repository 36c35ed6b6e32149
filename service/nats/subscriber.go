package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Message is one scan event as received from the stream.
type Message struct {
	// Kind is KindProgress or KindCompleted.
	Kind    string
	Subject string
	Data    []byte
}

// Subscriber streams scan events for a wallet.
type Subscriber interface {
	// Subscribe delivers the wallet's latest event of each kind, then every
	// new one, until ctx is done. The channel is never closed.
	Subscribe(ctx context.Context, wallet string) (<-chan Message, error)
	Close() error
}

// JetStreamSubscriber reads scan events through ephemeral JetStream consumers.
type JetStreamSubscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSubscriber connects to NATS and ensures the stream exists.
func NewSubscriber(natsURL string, logger *slog.Logger) (*JetStreamSubscriber, error) {
	nc, err := Connect(natsURL, "pumpscan-subscriber")
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := EnsureStream(context.Background(), js, logger); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS subscriber initialized", "nats_url", natsURL)

	return &JetStreamSubscriber{
		nc:     nc,
		js:     js,
		logger: logger,
	}, nil
}

// Subscribe creates an ephemeral consumer filtered to the wallet's subjects.
func (s *JetStreamSubscriber) Subscribe(ctx context.Context, wallet string) (<-chan Message, error) {
	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: WalletSubjects(wallet),
		AckPolicy:     jetstream.AckExplicitPolicy,
		// Late subscribers still see where a running scan is.
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	out := make(chan Message, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		m := Message{
			Kind:    subjectKind(msg.Subject()),
			Subject: msg.Subject(),
			Data:    msg.Data(),
		}
		select {
		case out <- m:
			msg.Ack()
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
		s.logger.Debug("stopped scan event consumer", "wallet", wallet)
	}()

	return out, nil
}

// Close closes the NATS connection.
func (s *JetStreamSubscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("NATS subscriber closed")
	}
	return nil
}

// subjectKind returns the last token of a scans.<wallet>.<kind> subject.
func subjectKind(subject string) string {
	if i := strings.LastIndexByte(subject, '.'); i >= 0 {
		return subject[i+1:]
	}
	return subject
}
