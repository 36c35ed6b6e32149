package main

import (
	"fmt"
	"io"
	"time"

	"github.com/brojonat/pumpscan/service/temporal"
	"github.com/urfave/cli/v2"
)

func startScanWorkflowCommand() *cli.Command {
	return &cli.Command{
		Name:      "start-scan",
		Usage:     "Start a scan workflow for a wallet, or join the one already running",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Drop the wallet's cache and rescan from the newest signature",
			},
		},
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			workflowID, runID, err := tc.StartScan(c.Context, temporal.ScanWalletInput{
				Address: address,
				Force:   c.Bool("force"),
			})
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]string{
					"workflow_id": workflowID,
					"run_id":      runID,
				})
			}
			fmt.Fprintf(c.App.Writer, "✓ Scan started\n  Workflow ID: %s\n  Run ID:      %s\n", workflowID, runID)
			return nil
		},
	}
}

func scanStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan-status",
		Usage:     "Show the state of a wallet's latest scan workflow",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			status, err := tc.GetScanResult(c.Context, address)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, status)
			}
			printScanStatus(c.App.Writer, status)
			return nil
		},
	}
}

func scheduleLeaderboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule-leaderboard",
		Usage: "Create or update the periodic leaderboard snapshot schedule",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Value: 15 * time.Minute,
				Usage: "Time between leaderboard snapshots",
			},
		},
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.UpsertLeaderboardSchedule(c.Context, c.Duration("interval")); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Schedule %s runs every %s\n", temporal.LeaderboardScheduleID, c.Duration("interval"))
			return nil
		},
	}
}

func unscheduleLeaderboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "unschedule-leaderboard",
		Usage: "Delete the leaderboard snapshot schedule",
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.DeleteLeaderboardSchedule(c.Context); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Schedule %s deleted\n", temporal.LeaderboardScheduleID)
			return nil
		},
	}
}

func printScanStatus(w io.Writer, status *temporal.ScanStatus) {
	fmt.Fprintf(w, "Workflow ID: %s\n", status.WorkflowID)
	fmt.Fprintf(w, "Run ID:      %s\n", status.RunID)
	fmt.Fprintf(w, "Status:      %s\n", status.Status)
	if status.StartedAt != nil {
		fmt.Fprintf(w, "Started:     %s\n", status.StartedAt.Format(time.RFC3339))
	}
	if status.ClosedAt != nil {
		fmt.Fprintf(w, "Closed:      %s\n", status.ClosedAt.Format(time.RFC3339))
	}
	if status.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", status.Error)
	}
	if status.Result != nil && status.Result.Report != nil {
		r := status.Result.Report
		fmt.Fprintf(w, "Events:      %d (%d new)\n", r.Summary.Events, r.NewEvents)
		fmt.Fprintf(w, "Losses:      %s SOL\n", r.Summary.TotalLosses.StringFixed(4))
		fmt.Fprintf(w, "Gains:       %s SOL\n", r.Summary.TotalGains.StringFixed(4))
		if r.Rank > 0 {
			fmt.Fprintf(w, "Rank:        %d of %d\n", r.Rank, r.Participants)
		}
	}
}

// getTemporalClient connects using the global Temporal flags.
func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("task-queue"),
		cliLogger(c),
	)
}
