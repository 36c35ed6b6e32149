package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/brojonat/pumpscan/service/config"
	"github.com/brojonat/pumpscan/service/scan"
	"github.com/brojonat/pumpscan/service/solana"
	"github.com/urfave/cli/v2"
)

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan a wallet directly against Solana RPC and print its pump.fun gains and losses",
		ArgsUsage: "WALLET_ADDRESS",
		Description: `Reads RPC settings from the environment (SOLANA_RPC_URLS, BATCH_SIZE,
RATE_LIMIT_CAPACITY, ...). Nothing is written to the database.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "max-signatures",
				Usage: "How many recent signatures to read (0 uses MAX_SIGNATURES)",
			},
			&cli.BoolFlag{
				Name:  "events",
				Usage: "Print each matched event instead of the summary",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter each event must satisfy (repeatable, implies --events)",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Do not print batch progress",
			},
		},
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}
			if _, err := solana.ParseWallet(address); err != nil {
				return err
			}

			filter, err := compileJQ(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			cfg, err := config.LoadScan()
			if err != nil {
				return err
			}

			logger := cliLogger(c)
			scanner, err := scan.NewFromConfig(cfg, nil, logger)
			if err != nil {
				return fmt.Errorf("failed to create scanner: %w", err)
			}

			ctx, stop := signalContext(c.Context)
			defer stop()

			var onProgress scan.ProgressFunc
			if !c.Bool("quiet") {
				onProgress = progressPrinter(c.App.ErrWriter)
			}

			start := time.Now()
			res, err := scanner.Run(ctx, address, scan.Options{MaxSignatures: c.Int("max-signatures")}, onProgress)
			if err != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("scan interrupted: %w", err)
				}
				return fmt.Errorf("scan failed: %w", err)
			}
			if !c.Bool("quiet") {
				fmt.Fprintf(c.App.ErrWriter, "Scanned %d signatures in %s\n", res.Signatures, time.Since(start).Round(time.Millisecond))
			}

			if c.Bool("events") || len(filter) > 0 {
				return printEvents(c.App.Writer, res.Events, filter, c.Bool("json"))
			}
			return printScanSummary(c.App.Writer, res, c.Bool("json"))
		},
	}
}

// progressPrinter writes one line per settled batch.
func progressPrinter(w io.Writer) scan.ProgressFunc {
	return func(batchIndex, totalBatches int, snap scan.Snapshot) {
		fmt.Fprintf(w, "%s: %d/%d processed, %d matched, +%s / -%s SOL\n",
			snap.BatchLabel,
			snap.ProcessedCount,
			snap.TotalCount,
			snap.MatchedCount,
			snap.RunningGain.StringFixed(4),
			snap.RunningLoss.StringFixed(4),
		)
	}
}

type scanOutput struct {
	Wallet     string         `json:"wallet"`
	Signatures int            `json:"signatures"`
	Summary    scan.Summary   `json:"summary"`
	Skipped    map[string]int `json:"skipped,omitempty"`
}

func printScanSummary(w io.Writer, res *scan.Result, jsonOutput bool) error {
	out := scanOutput{
		Wallet:     res.Wallet,
		Signatures: res.Signatures,
		Summary:    scan.Summarize(res.Events),
		Skipped:    make(map[string]int, len(res.Skipped)),
	}
	for reason, n := range res.Skipped {
		if n > 0 {
			out.Skipped[string(reason)] = n
		}
	}

	if jsonOutput {
		return outputJSON(w, out)
	}

	s := out.Summary
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Wallet:\t%s\n", out.Wallet)
	fmt.Fprintf(tw, "Signatures:\t%d\n", out.Signatures)
	fmt.Fprintf(tw, "Events:\t%d (%d losses, %d gains)\n", s.Events, s.Losses, s.Gains)
	fmt.Fprintf(tw, "Total losses:\t%s SOL\n", s.TotalLosses.StringFixed(4))
	fmt.Fprintf(tw, "Total gains:\t%s SOL\n", s.TotalGains.StringFixed(4))
	fmt.Fprintf(tw, "Net result:\t%s SOL\n", s.NetResult.StringFixed(4))
	fmt.Fprintf(tw, "Biggest loss:\t%s SOL\n", s.BiggestLoss.StringFixed(4))
	fmt.Fprintf(tw, "Biggest gain:\t%s SOL\n", s.BiggestGain.StringFixed(4))

	reasons := make([]string, 0, len(out.Skipped))
	for reason := range out.Skipped {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(tw, "Skipped (%s):\t%d\n", reason, out.Skipped[reason])
	}
	return tw.Flush()
}

// printEvents writes the events that pass filter as a JSON array or a table.
func printEvents(w io.Writer, events []solana.Event, filter jqFilter, jsonOutput bool) error {
	matched := make([]solana.Event, 0, len(events))
	for _, ev := range events {
		ok, err := filter.Match(ev)
		if err != nil {
			return err
		}
		if ok {
			matched = append(matched, ev)
		}
	}

	if jsonOutput {
		return outputJSON(w, matched)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tAMOUNT (SOL)\tSLOT\tSIGNATURE")
	for _, ev := range matched {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			ev.Timestamp.UTC().Format(time.RFC3339),
			ev.Kind,
			ev.Amount.StringFixed(4),
			ev.Slot,
			ev.Signature,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nTotal: %d events\n", len(matched))
	return nil
}

// signalContext cancels on interrupt, for long-running watch commands.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
