package temporal

import (
	"context"
	"time"
)

// LeaderboardScheduleID is the Temporal schedule that runs
// RefreshLeaderboardWorkflow.
const LeaderboardScheduleID = "refresh-leaderboard"

// LeaderboardScheduler manages the leaderboard refresh schedule.
type LeaderboardScheduler interface {
	// UpsertLeaderboardSchedule creates the schedule or changes its interval.
	UpsertLeaderboardSchedule(ctx context.Context, interval time.Duration) error

	// DeleteLeaderboardSchedule stops periodic leaderboard refreshes.
	DeleteLeaderboardSchedule(ctx context.Context) error
}

var _ LeaderboardScheduler = (*Client)(nil)
