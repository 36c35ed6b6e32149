package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/pumpscan/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing scan events to NATS.
type Publisher interface {
	// PublishProgress publishes one batch's progress to "scans.{wallet}.progress".
	PublishProgress(ctx context.Context, event *ProgressEvent) error

	// PublishCompleted publishes the final result to "scans.{wallet}.completed".
	PublishCompleted(ctx context.Context, event *ScanCompletedEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes scan events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for scan events.
	StreamName = "PUMPSCAN"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "scans.>"

	// StreamRetention is how long messages are retained. Progress is only
	// interesting while a scan runs.
	StreamRetention = 24 * time.Hour
)

// Connect dials NATS with the reconnect settings every component uses.
func Connect(natsURL, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
// If m is nil, no metrics will be recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := Connect(natsURL, "pumpscan-publisher")
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := EnsureStream(context.Background(), js, logger); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// EnsureStream creates the JetStream stream if it doesn't exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stream, err := js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "pump.fun wallet scan progress and results",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishProgress publishes a progress event.
func (p *JetStreamPublisher) PublishProgress(ctx context.Context, event *ProgressEvent) error {
	return p.publish(ctx, KindProgress, ProgressSubject(event.Wallet), event)
}

// PublishCompleted publishes a completion event.
func (p *JetStreamPublisher) PublishCompleted(ctx context.Context, event *ScanCompletedEvent) error {
	return p.publish(ctx, KindCompleted, CompletedSubject(event.Wallet), event)
}

func (p *JetStreamPublisher) publish(ctx context.Context, kind, subject string, event any) error {
	start := time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}

	_, err = p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(kind, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", kind, err)
	}

	p.logger.Debug("published scan event",
		"subject", subject,
		"kind", kind,
	)

	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
