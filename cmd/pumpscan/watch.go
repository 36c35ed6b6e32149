package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	natspkg "github.com/brojonat/pumpscan/service/nats"
)

// eventPrinter renders scan events from NATS or SSE.
type eventPrinter struct {
	w          io.Writer
	jsonOutput bool
	// follow keeps watching after a completed event.
	follow bool
	// since is when the watch began. A completed event published earlier
	// belongs to a previous scan and does not end the watch.
	since time.Time
}

// handle prints one event and reports whether the watch is over.
func (p *eventPrinter) handle(kind string, data []byte) (bool, error) {
	switch kind {
	case natspkg.KindProgress:
		var ev natspkg.ProgressEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return false, fmt.Errorf("failed to parse progress event: %w", err)
		}
		if p.jsonOutput {
			fmt.Fprintln(p.w, string(data))
			return false, nil
		}
		fmt.Fprintf(p.w, "[%s] %s: %d/%d processed, %d matched, +%s / -%s SOL\n",
			ev.Wallet,
			ev.BatchLabel,
			ev.ProcessedCount,
			ev.TotalCount,
			ev.MatchedCount,
			ev.RunningGain.StringFixed(4),
			ev.RunningLoss.StringFixed(4),
		)
		return false, nil

	case natspkg.KindCompleted:
		var ev natspkg.ScanCompletedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return false, fmt.Errorf("failed to parse completed event: %w", err)
		}
		stale := !p.since.IsZero() && ev.PublishedAt.Before(p.since)
		if p.jsonOutput {
			fmt.Fprintln(p.w, string(data))
		} else {
			printCompleted(p.w, &ev, stale)
		}
		return !p.follow && !stale, nil

	default:
		return false, nil
	}
}

func printCompleted(w io.Writer, ev *natspkg.ScanCompletedEvent, stale bool) {
	label := "Scan complete"
	if stale {
		label = "Previous scan"
	}
	if ev.Error != "" {
		fmt.Fprintf(w, "✗ %s for %s failed: %s\n", label, ev.Wallet, ev.Error)
		return
	}
	fmt.Fprintf(w, "✓ %s for %s (%s)\n", label, ev.Wallet, ev.PublishedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  Events:       %d (%d new)\n", ev.Events, ev.NewEvents)
	fmt.Fprintf(w, "  Total losses: %s SOL\n", ev.TotalLosses.StringFixed(4))
	fmt.Fprintf(w, "  Total gains:  %s SOL\n", ev.TotalGains.StringFixed(4))
	fmt.Fprintf(w, "  Net result:   %s SOL\n", ev.NetResult.StringFixed(4))
	if ev.Rank > 0 {
		fmt.Fprintf(w, "  Rank:         %d of %d\n", ev.Rank, ev.Participants)
	}
}
