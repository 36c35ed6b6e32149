package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/brojonat/pumpscan/client"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the pumpscan service",
		Subcommands: []*cli.Command{
			clientScanCommand(),
			clientStatusCommand(),
			clientWalletCommand(),
			clientEventsCommand(),
			clientLeaderboardCommand(),
			clientStatsCommand(),
			clientClearCacheCommand(),
			clientWatchCommand(),
		},
	}
}

func newHTTPClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, cliLogger(c))
}

func clientScanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Ask the service to scan a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Drop the wallet's cache and rescan",
			},
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Poll until the scan finishes",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Value: 2 * time.Second,
				Usage: "Time between status polls with --wait",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   30 * time.Minute,
				Usage:   "How long to wait with --wait",
			},
		},
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}
			cl := newHTTPClient(c)

			started, err := cl.StartScan(c.Context, address, c.Bool("force"))
			if err != nil {
				return fmt.Errorf("failed to start scan: %w", err)
			}

			if !c.Bool("wait") {
				if c.Bool("json") {
					return outputJSON(c.App.Writer, started)
				}
				fmt.Fprintf(c.App.Writer, "✓ Scan started for %s\n  Workflow ID: %s\n  Status:      %s\n  Stream:      %s\n",
					started.Address, started.WorkflowID, started.StatusURL, started.StreamURL)
				return nil
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			status, err := waitForScan(ctx, cl, address, c.Duration("poll-interval"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, status)
			}
			printClientScanStatus(c.App.Writer, status)
			if status.Error != "" {
				return fmt.Errorf("scan %s: %s", strings.ToLower(status.Status), status.Error)
			}
			return nil
		},
	}
}

// waitForScan polls until the wallet's scan is no longer running.
func waitForScan(ctx context.Context, cl *client.Client, address string, interval time.Duration) (*client.ScanStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := cl.GetScan(ctx, address)
		if err != nil && !client.IsNotFound(err) {
			return nil, fmt.Errorf("failed to get scan status: %w", err)
		}
		if err == nil && status.Status != "Running" {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for scan: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func clientStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show a wallet's latest scan",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}
			status, err := newHTTPClient(c).GetScan(c.Context, address)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, status)
			}
			printClientScanStatus(c.App.Writer, status)
			return nil
		},
	}
}

func printClientScanStatus(w io.Writer, status *client.ScanStatus) {
	fmt.Fprintf(w, "Workflow ID: %s\n", status.WorkflowID)
	fmt.Fprintf(w, "Status:      %s\n", status.Status)
	if status.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", status.Error)
	}
	if r := status.Report(); r != nil {
		fmt.Fprintf(w, "Events:      %d (%d new)\n", r.Summary.Events, r.NewEvents)
		fmt.Fprintf(w, "Losses:      %s SOL\n", r.Summary.TotalLosses.StringFixed(4))
		fmt.Fprintf(w, "Gains:       %s SOL\n", r.Summary.TotalGains.StringFixed(4))
		fmt.Fprintf(w, "Net:         %s SOL\n", r.Summary.NetResult.StringFixed(4))
		if r.Rank > 0 {
			fmt.Fprintf(w, "Rank:        %d of %d\n", r.Rank, r.Participants)
		}
	}
}

func clientWalletCommand() *cli.Command {
	return &cli.Command{
		Name:      "wallet",
		Usage:     "Show a wallet's cached aggregates and rank",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}
			wallet, err := newHTTPClient(c).GetWallet(c.Context, address)
			if client.IsNotFound(err) {
				return fmt.Errorf("wallet %s has not been scanned", address)
			}
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, wallet)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Address:\t%s\n", wallet.Address)
			fmt.Fprintf(w, "Total losses:\t%s SOL\n", wallet.TotalLosses.StringFixed(4))
			fmt.Fprintf(w, "Total gains:\t%s SOL\n", wallet.TotalGains.StringFixed(4))
			fmt.Fprintf(w, "Net result:\t%s SOL\n", wallet.NetResult.StringFixed(4))
			fmt.Fprintf(w, "Transactions:\t%d\n", wallet.TotalTransactions)
			if wallet.Rank != nil {
				fmt.Fprintf(w, "Rank:\t%d of %d\n", *wallet.Rank, wallet.Participants)
			} else {
				fmt.Fprintf(w, "Rank:\tunranked\n")
			}
			return w.Flush()
		},
	}
}

func clientEventsCommand() *cli.Command {
	return &cli.Command{
		Name:      "events",
		Usage:     "List a wallet's cached events, newest first",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of events (0 uses the server default)",
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

			page, err := newHTTPClient(c).ListEvents(c.Context, address, c.Int("limit"), c.Int("offset"))
			if err != nil {
				return err
			}

			matched := make([]client.Event, 0, len(page.Events))
			for _, ev := range page.Events {
				ok, err := filter.Match(ev)
				if err != nil {
					return err
				}
				if ok {
					matched = append(matched, ev)
				}
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, matched)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tKIND\tAMOUNT (SOL)\tSLOT\tSIGNATURE")
			for _, ev := range matched {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					ev.Timestamp.UTC().Format(time.RFC3339),
					ev.Kind,
					ev.Amount.StringFixed(4),
					ev.Slot,
					ev.Signature,
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(c.App.ErrWriter, "\nShowing %d of %d cached events\n", len(matched), page.Total)
			return nil
		},
	}
}

func clientLeaderboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "leaderboard",
		Usage: "List the wallets with the biggest losses",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Number of wallets (0 uses the server default)",
			},
		},
		Action: func(c *cli.Context) error {
			entries, err := newHTTPClient(c).Leaderboard(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, entries)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tADDRESS\tTOTAL LOSSES\tBIGGEST LOSS\tTXNS")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n",
					e.Rank,
					e.Address,
					e.TotalLosses.StringFixed(4),
					e.BiggestLoss.StringFixed(4),
					e.TotalTransactions,
				)
			}
			return w.Flush()
		},
	}
}

func clientStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show leaderboard totals",
		Action: func(c *cli.Context) error {
			stats, err := newHTTPClient(c).LeaderboardStats(c.Context)
			if err != nil {
				return err
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

func clientClearCacheCommand() *cli.Command {
	return &cli.Command{
		Name:      "clear-cache",
		Usage:     "Drop a wallet's cached events on the server",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}
			deleted, err := newHTTPClient(c).ClearCache(c.Context, address)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Deleted %d cached events for %s\n", deleted, address)
			return nil
		},
	}
}

func clientWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream a wallet's scan progress over SSE",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "follow",
				Usage: "Keep watching after a scan completes (the server still closes the stream)",
			},
		},
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(c.Context)
			defer stop()

			if !c.Bool("json") {
				fmt.Fprintf(c.App.ErrWriter, "Streaming scan events for %s (Ctrl+C to stop)\n\n", address)
			}

			err = streamSSE(ctx, &http.Client{}, c.String("server-url"), address, &eventPrinter{
				w:          c.App.Writer,
				jsonOutput: c.Bool("json"),
				follow:     c.Bool("follow"),
				since:      time.Now(),
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

// streamSSE reads the server's event stream for a wallet until the printer
// is done, the server closes the stream, or ctx ends.
func streamSSE(ctx context.Context, httpClient *http.Client, serverURL, wallet string, p *eventPrinter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/api/v1/stream/scans/"+wallet, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var event, data string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line ends an event.
		if line == "" {
			if event != "" && data != "" {
				done, err := p.handle(event, []byte(data))
				if err != nil {
					fmt.Fprintf(p.w, "Error handling event: %v\n", err)
				}
				if done {
					return nil
				}
			}
			event, data = "", ""
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}
