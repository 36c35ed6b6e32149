package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// ScanWalletWorkflow syncs one wallet's ledger.
//
// Steps:
// 1. Scan the wallet and store new events (SyncWallet activity)
// 2. On failure, tell stream subscribers the scan gave up (PublishScanFailed)
func ScanWalletWorkflow(ctx workflow.Context, input ScanWalletInput) (*ScanWalletResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ScanWalletWorkflow started", "address", input.Address, "force", input.Force)

	result := &ScanWalletResult{Address: input.Address}

	syncCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		// Large wallets take a while; liveness comes from the heartbeat.
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	err := workflow.ExecuteActivity(syncCtx, a.SyncWallet, input).Get(ctx, &result.Report)
	if err != nil {
		errMsg := err.Error()
		result.Error = &errMsg

		notifyCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: 30 * time.Second,
			RetryPolicy: &temporalsdk.RetryPolicy{
				MaximumAttempts: 3,
			},
		})
		failed := ScanFailedInput{Address: input.Address, Error: errMsg}
		if perr := workflow.ExecuteActivity(notifyCtx, a.PublishScanFailed, failed).Get(ctx, nil); perr != nil {
			logger.Warn("failed to publish scan failure", "address", input.Address, "error", perr)
		}

		return result, fmt.Errorf("failed to sync wallet: %w", err)
	}

	logger.Info("ScanWalletWorkflow completed",
		"address", input.Address,
		"new_events", result.Report.NewEvents,
		"rank", result.Report.Rank,
	)

	return result, nil
}

// RefreshLeaderboardWorkflow records a leaderboard snapshot. It runs on a
// schedule.
func RefreshLeaderboardWorkflow(ctx workflow.Context) (*RefreshLeaderboardResult, error) {
	logger := workflow.GetLogger(ctx)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var result *RefreshLeaderboardResult
	if err := workflow.ExecuteActivity(ctx, a.RefreshLeaderboard).Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to refresh leaderboard: %w", err)
	}

	logger.Info("RefreshLeaderboardWorkflow completed", "participants", result.Snapshot.Participants)
	return result, nil
}
