package temporal

import (
	"fmt"
	"log/slog"

	"github.com/brojonat/pumpscan/service/metrics"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// Temporal connection settings
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// Dependencies
	Syncer      WalletSyncer
	Leaderboard LeaderboardStore
	Publisher   PublisherInterface // Optional: if nil, no scan events are published
	Metrics     *metrics.Metrics   // Optional: if nil, no metrics will be recorded
	Logger      *slog.Logger

	// MaxConcurrentScans caps SyncWallet executions on this worker.
	MaxConcurrentScans int
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates and configures a new Temporal worker.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxConcurrentScans <= 0 {
		config.MaxConcurrentScans = 4
	}

	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"task_queue", config.TaskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}

	// Scans share one RPC rate limit, so running many at once only queues
	// them on the token bucket.
	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     config.MaxConcurrentScans,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	registerAll(w, NewActivities(
		config.Syncer,
		config.Leaderboard,
		config.Publisher,
		config.Metrics,
		logger,
	))

	logger.Info("registered workflows and activities",
		"workflows", []string{"ScanWalletWorkflow", "RefreshLeaderboardWorkflow"},
		"activities", []string{"SyncWallet", "PublishScanFailed", "RefreshLeaderboard"},
	)

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

// registry is the part of worker.Worker (and the test environment) that
// accepts registrations.
type registry interface {
	RegisterWorkflow(w interface{})
	RegisterActivity(a interface{})
}

func registerAll(r registry, activities *Activities) {
	r.RegisterWorkflow(ScanWalletWorkflow)
	r.RegisterWorkflow(RefreshLeaderboardWorkflow)

	r.RegisterActivity(activities.SyncWallet)
	r.RegisterActivity(activities.PublishScanFailed)
	r.RegisterActivity(activities.RefreshLeaderboard)
}

// Start begins processing workflows and activities.
// This method blocks until an interrupt signal arrives or Stop is called.
func (w *Worker) Start() error {
	w.logger.Info("starting temporal worker")
	err := w.worker.Run(worker.InterruptCh())
	if err != nil {
		w.logger.Error("worker stopped with error", "error", err)
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.client.Close()
	w.logger.Info("temporal worker stopped")
}
