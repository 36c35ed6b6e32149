package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// ErrScanNotFound is returned when no scan workflow exists for a wallet.
var ErrScanNotFound = errors.New("scan not found")

// ScanStatus describes a wallet's most recent scan workflow.
type ScanStatus struct {
	WorkflowID string            `json:"workflow_id"`
	RunID      string            `json:"run_id"`
	Status     string            `json:"status"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	ClosedAt   *time.Time        `json:"closed_at,omitempty"`
	Result     *ScanWalletResult `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Running reports whether the workflow has not closed yet.
func (s *ScanStatus) Running() bool {
	return s.Status == enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING.String()
}

// Client is the production implementation of LeaderboardScheduler and the
// entry point for starting scans.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return newClient(c, taskQueue, logger), nil
}

func newClient(c client.Client, taskQueue string, logger *slog.Logger) *Client {
	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}
}

// ScanWorkflowID is the workflow ID used for a wallet's scans. At most one
// scan per wallet runs at a time.
func ScanWorkflowID(address string) string {
	return "scan-wallet-" + address
}

// StartScan starts ScanWalletWorkflow for the wallet. If a scan for the
// wallet is already running, that run is returned instead.
func (c *Client) StartScan(ctx context.Context, input ScanWalletInput) (workflowID, runID string, err error) {
	id := ScanWorkflowID(input.Address)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       id,
		TaskQueue:                c.taskQueue,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, ScanWalletWorkflow, input)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to start scan workflow",
			"address", input.Address,
			"workflow_id", id,
			"error", err,
		)
		return "", "", fmt.Errorf("failed to start scan workflow: %w", err)
	}

	c.logger.InfoContext(ctx, "scan workflow started",
		"address", input.Address,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
		"force", input.Force,
	)

	return run.GetID(), run.GetRunID(), nil
}

// GetScanResult returns the status of the wallet's latest scan, with its
// result once the workflow has completed.
func (c *Client) GetScanResult(ctx context.Context, address string) (*ScanStatus, error) {
	id := ScanWorkflowID(address)

	desc, err := c.client.DescribeWorkflowExecution(ctx, id, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, ErrScanNotFound
		}
		return nil, fmt.Errorf("failed to describe scan workflow: %w", err)
	}

	info := desc.GetWorkflowExecutionInfo()
	status := &ScanStatus{
		WorkflowID: id,
		RunID:      info.GetExecution().GetRunId(),
		Status:     info.GetStatus().String(),
	}
	if ts := info.GetStartTime(); ts != nil {
		t := ts.AsTime()
		status.StartedAt = &t
	}
	if ts := info.GetCloseTime(); ts != nil {
		t := ts.AsTime()
		status.ClosedAt = &t
	}

	switch info.GetStatus() {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return status, nil
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		var result ScanWalletResult
		if err := c.client.GetWorkflow(ctx, id, status.RunID).Get(ctx, &result); err != nil {
			return nil, fmt.Errorf("failed to get scan result: %w", err)
		}
		status.Result = &result
	default:
		// Failed, timed out, or terminated; Get surfaces why.
		if err := c.client.GetWorkflow(ctx, id, status.RunID).Get(ctx, nil); err != nil {
			status.Error = err.Error()
		}
	}

	return status, nil
}

// UpsertLeaderboardSchedule creates the leaderboard refresh schedule, or
// updates its interval if it already exists.
func (c *Client) UpsertLeaderboardSchedule(ctx context.Context, interval time.Duration) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, LeaderboardScheduleID)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.DebugContext(ctx, "schedule not found, creating new one",
			"schedule_id", LeaderboardScheduleID,
			"error", err,
		)
		return c.createLeaderboardSchedule(ctx, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update schedule %q: %w", LeaderboardScheduleID, err)
	}

	c.logger.InfoContext(ctx, "leaderboard schedule updated",
		"schedule_id", LeaderboardScheduleID,
		"interval", interval,
	)
	return nil
}

func (c *Client) createLeaderboardSchedule(ctx context.Context, interval time.Duration) error {
	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: LeaderboardScheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        "refresh-leaderboard",
			Workflow:  RefreshLeaderboardWorkflow,
			TaskQueue: c.taskQueue,
		},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		Memo: map[string]interface{}{
			"created_by": "pumpscan",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create schedule %q: %w", LeaderboardScheduleID, err)
	}

	c.logger.InfoContext(ctx, "leaderboard schedule created",
		"schedule_id", LeaderboardScheduleID,
		"interval", interval,
	)
	return nil
}

// DeleteLeaderboardSchedule deletes the leaderboard refresh schedule.
func (c *Client) DeleteLeaderboardSchedule(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, LeaderboardScheduleID)
	if err := handle.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete schedule %q: %w", LeaderboardScheduleID, err)
	}

	c.logger.InfoContext(ctx, "leaderboard schedule deleted", "schedule_id", LeaderboardScheduleID)
	return nil
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
