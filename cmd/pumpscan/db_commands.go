package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/brojonat/pumpscan/service/db"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(c.Context); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "✓ Schema applied")
			return nil
		},
	}
}

func dbWalletCommand() *cli.Command {
	return &cli.Command{
		Name:      "wallet",
		Usage:     "Show a wallet's cached aggregates and rank",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			stats, err := store.GetWalletStats(c.Context, address)
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("wallet %s has not been scanned", address)
			}
			if err != nil {
				return fmt.Errorf("failed to get wallet: %w", err)
			}

			// Wallets without losses have no rank.
			rank, err := store.GetWalletRank(c.Context, address)
			if errors.Is(err, db.ErrNotFound) {
				rank = nil
			} else if err != nil {
				return fmt.Errorf("failed to get wallet rank: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, struct {
					*db.WalletStats
					Rank *db.Rank `json:"rank,omitempty"`
				}{stats, rank})
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Address:\t%s\n", stats.Address)
			fmt.Fprintf(w, "Total losses:\t%s SOL\n", stats.TotalLosses.StringFixed(4))
			fmt.Fprintf(w, "Total gains:\t%s SOL\n", stats.TotalGains.StringFixed(4))
			fmt.Fprintf(w, "Net result:\t%s SOL\n", stats.NetResult.StringFixed(4))
			fmt.Fprintf(w, "Biggest loss:\t%s SOL\n", stats.BiggestLoss.StringFixed(4))
			fmt.Fprintf(w, "Biggest gain:\t%s SOL\n", stats.BiggestGain.StringFixed(4))
			fmt.Fprintf(w, "Transactions:\t%d\n", stats.TotalTransactions)
			if rank != nil {
				fmt.Fprintf(w, "Rank:\t%d of %d\n", rank.Rank, rank.Participants)
			} else {
				fmt.Fprintf(w, "Rank:\tunranked\n")
			}
			lastSync := "never"
			if stats.LastSyncAt != nil {
				lastSync = stats.LastSyncAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "Last sync:\t%s\n", lastSync)
			return w.Flush()
		},
	}
}

func dbEventsCommand() *cli.Command {
	return &cli.Command{
		Name:      "events",
		Usage:     "List a wallet's cached events, newest first",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   50,
				Usage:   "Maximum number of events",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of events to skip",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter each event must satisfy (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}
			filter, err := compileJQ(c.StringSlice("jq"))
			if err != nil {
				return err
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			events, err := store.ListEvents(c.Context, address, c.Int("limit"), c.Int("offset"))
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}
			return printEvents(c.App.Writer, events, filter, c.Bool("json"))
		},
	}
}

func dbLeaderboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "leaderboard",
		Usage: "List the wallets with the biggest losses",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   20,
				Usage:   "Number of wallets",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			entries, err := store.ListTopLosers(c.Context, c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list leaderboard: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, entries)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tADDRESS\tTOTAL LOSSES\tBIGGEST LOSS\tTXNS\tUPDATED")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
					e.Rank,
					e.Address,
					e.TotalLosses.StringFixed(4),
					e.BiggestLoss.StringFixed(4),
					e.TotalTransactions,
					e.LastUpdated.Format(time.RFC3339),
				)
			}
			return w.Flush()
		},
	}
}

func dbStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show leaderboard totals",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			stats, err := store.GetLeaderboardStats(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get leaderboard stats: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, stats)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Participants:\t%d\n", stats.Participants)
			fmt.Fprintf(w, "Total losses:\t%s SOL\n", stats.TotalLosses.StringFixed(4))
			fmt.Fprintf(w, "Average loss:\t%s SOL\n", stats.AverageLoss.StringFixed(4))
			fmt.Fprintf(w, "Biggest loss:\t%s SOL\n", stats.BiggestLoss.StringFixed(4))
			fmt.Fprintf(w, "Transactions:\t%d\n", stats.TotalTransactions)
			return w.Flush()
		},
	}
}

func dbSnapshotsCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshots",
		Usage: "List stored leaderboard snapshots, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   20,
				Usage:   "Number of snapshots",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			snaps, err := store.ListLeaderboardSnapshots(c.Context, c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, snaps)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TAKEN\tPARTICIPANTS\tTOTAL LOSSES\tAVERAGE\tBIGGEST")
			for _, s := range snaps {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					s.TakenAt.Format(time.RFC3339),
					s.Participants,
					s.TotalLosses.StringFixed(4),
					s.AverageLoss.StringFixed(4),
					s.BiggestLoss.StringFixed(4),
				)
			}
			return w.Flush()
		},
	}
}

func dbClearCacheCommand() *cli.Command {
	return &cli.Command{
		Name:      "clear-cache",
		Usage:     "Delete a wallet's cached events and aggregates",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			deleted, err := store.ClearWalletCache(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Deleted %d cached events for %s\n", deleted, address)
			return nil
		},
	}
}

// getStore connects to the database named by --database-url.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db.NewStore(pool, nil), pool.Close, nil
}
