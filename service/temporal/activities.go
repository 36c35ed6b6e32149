package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/pumpscan/service/db"
	"github.com/brojonat/pumpscan/service/ledger"
	"github.com/brojonat/pumpscan/service/metrics"
	natspkg "github.com/brojonat/pumpscan/service/nats"
	"github.com/brojonat/pumpscan/service/scan"
	"github.com/brojonat/pumpscan/service/solana"
	"go.temporal.io/sdk/activity"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// WalletSyncer syncs a wallet's cached events with the chain.
// Implemented by *ledger.Ledger.
type WalletSyncer interface {
	SyncWallet(ctx context.Context, address string, force bool, onProgress scan.ProgressFunc) (*ledger.Report, error)
}

// LeaderboardStore is the storage the leaderboard refresh needs.
type LeaderboardStore interface {
	GetLeaderboardStats(ctx context.Context) (*db.LeaderboardStats, error)
	InsertLeaderboardSnapshot(ctx context.Context, stats db.LeaderboardStats, takenAt time.Time) (*db.LeaderboardSnapshot, error)
}

// PublisherInterface defines the NATS publishing the activities use.
type PublisherInterface interface {
	PublishProgress(ctx context.Context, event *natspkg.ProgressEvent) error
	PublishCompleted(ctx context.Context, event *natspkg.ScanCompletedEvent) error
}

// ScanWalletInput is the input to ScanWalletWorkflow and the SyncWallet activity.
type ScanWalletInput struct {
	Address string `json:"address"`
	Force   bool   `json:"force"`
}

// ScanWalletResult is the result of ScanWalletWorkflow.
type ScanWalletResult struct {
	Address string         `json:"address"`
	Report  *ledger.Report `json:"report,omitempty"`
	Error   *string        `json:"error,omitempty"`
}

// ScanFailedInput reports a sync that gave up.
type ScanFailedInput struct {
	Address string `json:"address"`
	Error   string `json:"error"`
}

// RefreshLeaderboardResult is the result of RefreshLeaderboardWorkflow.
type RefreshLeaderboardResult struct {
	Snapshot *db.LeaderboardSnapshot `json:"snapshot"`
}

// Activities contains all Temporal activities.
type Activities struct {
	syncer      WalletSyncer
	leaderboard LeaderboardStore
	publisher   PublisherInterface
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewActivities creates a new Activities instance.
// publisher and m may be nil.
func NewActivities(
	syncer WalletSyncer,
	leaderboard LeaderboardStore,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		syncer:      syncer,
		leaderboard: leaderboard,
		publisher:   publisher,
		metrics:     m,
		logger:      logger,
	}
}

// SyncWallet scans a wallet and updates its cached ledger. Every settled
// batch is heartbeated and published as a progress event; the final report
// is published as a completion event.
func (a *Activities) SyncWallet(ctx context.Context, input ScanWalletInput) (report *ledger.Report, err error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("SyncWallet", err, time.Since(start).Seconds())
		}
	}()

	workflowID := activity.GetInfo(ctx).WorkflowExecution.ID

	a.logger.DebugContext(ctx, "syncing wallet",
		"address", input.Address,
		"force", input.Force,
		"workflow_id", workflowID,
	)

	onProgress := func(batchIndex, totalBatches int, snap scan.Snapshot) {
		activity.RecordHeartbeat(ctx, batchIndex)

		if a.publisher == nil {
			return
		}
		event := natspkg.FromSnapshot(input.Address, batchIndex, totalBatches, snap)
		event.WorkflowID = workflowID
		if err := a.publisher.PublishProgress(ctx, event); err != nil {
			// Progress is best-effort; the scan carries on.
			a.logger.WarnContext(ctx, "failed to publish progress",
				"address", input.Address,
				"batch", batchIndex,
				"error", err,
			)
		}
	}

	report, err = a.syncer.SyncWallet(ctx, input.Address, input.Force, onProgress)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to sync wallet",
			"address", input.Address,
			"error", err,
		)
		if errors.Is(err, solana.ErrInvalidAddress) {
			return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), "InvalidAddress", err)
		}
		return nil, fmt.Errorf("failed to sync wallet: %w", err)
	}

	if a.publisher != nil {
		event := natspkg.FromReport(report)
		event.WorkflowID = workflowID
		if err := a.publisher.PublishCompleted(ctx, event); err != nil {
			a.logger.ErrorContext(ctx, "failed to publish scan completion",
				"address", input.Address,
				"error", err,
			)
		}
	}

	a.logger.InfoContext(ctx, "synced wallet",
		"address", input.Address,
		"new_events", report.NewEvents,
		"total_losses", report.Summary.TotalLosses.String(),
		"rank", report.Rank,
	)

	return report, nil
}

// PublishScanFailed tells subscribers that a wallet sync gave up.
func (a *Activities) PublishScanFailed(ctx context.Context, input ScanFailedInput) error {
	if a.publisher == nil {
		return nil
	}

	event := natspkg.FailedScan(input.Address, errors.New(input.Error))
	event.WorkflowID = activity.GetInfo(ctx).WorkflowExecution.ID
	if err := a.publisher.PublishCompleted(ctx, event); err != nil {
		return fmt.Errorf("failed to publish scan failure: %w", err)
	}
	return nil
}

// RefreshLeaderboard records a snapshot of the current leaderboard totals.
func (a *Activities) RefreshLeaderboard(ctx context.Context) (result *RefreshLeaderboardResult, err error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("RefreshLeaderboard", err, time.Since(start).Seconds())
		}
	}()

	stats, err := a.leaderboard.GetLeaderboardStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard stats: %w", err)
	}

	snap, err := a.leaderboard.InsertLeaderboardSnapshot(ctx, *stats, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to insert leaderboard snapshot: %w", err)
	}

	a.logger.InfoContext(ctx, "recorded leaderboard snapshot",
		"participants", snap.Participants,
		"total_losses", snap.TotalLosses.String(),
	)

	return &RefreshLeaderboardResult{Snapshot: snap}, nil
}
