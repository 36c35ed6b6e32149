package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "pumpscan",
		Usage: "pump.fun wallet gains and losses scanner",
		Description: `A command-line tool for scanning Solana wallets for pump.fun activity.

Run a one-off scan straight against Solana RPC, or inspect and drive the
pumpscan service through its database, Temporal, NATS and HTTP API.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			scanCommand(),
			{
				Name:  "db",
				Usage: "Database inspection commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					dbWalletCommand(),
					dbEventsCommand(),
					dbLeaderboardCommand(),
					dbStatsCommand(),
					dbSnapshotsCommand(),
					dbClearCacheCommand(),
				},
			},
			{
				Name:  "temporal",
				Usage: "Temporal workflow and schedule commands",
				Subcommands: []*cli.Command{
					startScanWorkflowCommand(),
					scanStatusCommand(),
					scheduleLeaderboardCommand(),
					unscheduleLeaderboardCommand(),
				},
			},
			{
				Name:  "nats",
				Usage: "NATS scan event commands",
				Subcommands: []*cli.Command{
					natsWatchCommand(),
				},
			},
			clientCommands(),
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Temporal task queue",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "pumpscan",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "pumpscan HTTP server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level for diagnostics on stderr",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "warn",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
