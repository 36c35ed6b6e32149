package nats

import (
	"fmt"
	"time"

	"github.com/brojonat/pumpscan/service/ledger"
	"github.com/brojonat/pumpscan/service/scan"
	"github.com/shopspring/decimal"
)

// Event kinds, also the last token of the subject.
const (
	KindProgress  = "progress"
	KindCompleted = "completed"
)

// ProgressSubject is where per-batch progress for a wallet is published.
func ProgressSubject(wallet string) string {
	return fmt.Sprintf("scans.%s.%s", wallet, KindProgress)
}

// CompletedSubject is where a wallet's final scan result is published.
func CompletedSubject(wallet string) string {
	return fmt.Sprintf("scans.%s.%s", wallet, KindCompleted)
}

// WalletSubjects matches every scan event for one wallet.
func WalletSubjects(wallet string) string {
	return fmt.Sprintf("scans.%s.*", wallet)
}

// ProgressEvent is published after each fetched batch.
// Published to "scans.{wallet}.progress".
type ProgressEvent struct {
	Wallet     string `json:"wallet"`
	WorkflowID string `json:"workflow_id,omitempty"`

	BatchIndex     int             `json:"batch_index"`
	TotalBatches   int             `json:"total_batches"`
	BatchLabel     string          `json:"batch_label"`
	ProcessedCount int             `json:"processed_count"`
	TotalCount     int             `json:"total_count"`
	MatchedCount   int             `json:"matched_count"`
	RunningGain    decimal.Decimal `json:"running_gain"`
	RunningLoss    decimal.Decimal `json:"running_loss"`

	PublishedAt time.Time `json:"published_at"`
}

// FromSnapshot converts a scan progress snapshot into a ProgressEvent.
func FromSnapshot(wallet string, batchIndex, totalBatches int, snap scan.Snapshot) *ProgressEvent {
	return &ProgressEvent{
		Wallet:         wallet,
		BatchIndex:     batchIndex,
		TotalBatches:   totalBatches,
		BatchLabel:     snap.BatchLabel,
		ProcessedCount: snap.ProcessedCount,
		TotalCount:     snap.TotalCount,
		MatchedCount:   snap.MatchedCount,
		RunningGain:    snap.RunningGain,
		RunningLoss:    snap.RunningLoss,
		PublishedAt:    time.Now().UTC(),
	}
}

// ScanCompletedEvent is published once a wallet sync finishes, successfully
// or not. Published to "scans.{wallet}.completed".
type ScanCompletedEvent struct {
	Wallet     string `json:"wallet"`
	WorkflowID string `json:"workflow_id,omitempty"`

	TotalLosses  decimal.Decimal `json:"total_losses"`
	TotalGains   decimal.Decimal `json:"total_gains"`
	NetResult    decimal.Decimal `json:"net_result"`
	BiggestLoss  decimal.Decimal `json:"biggest_loss"`
	BiggestGain  decimal.Decimal `json:"biggest_gain"`
	Events       int             `json:"events"`
	NewEvents    int             `json:"new_events"`
	Rank         int             `json:"rank"`
	Participants int             `json:"participants"`

	// Error is set when the sync failed; the totals are then zero.
	Error string `json:"error,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// FromReport converts a sync report into a ScanCompletedEvent.
func FromReport(report *ledger.Report) *ScanCompletedEvent {
	return &ScanCompletedEvent{
		Wallet:       report.Address,
		TotalLosses:  report.Summary.TotalLosses,
		TotalGains:   report.Summary.TotalGains,
		NetResult:    report.Summary.NetResult,
		BiggestLoss:  report.Summary.BiggestLoss,
		BiggestGain:  report.Summary.BiggestGain,
		Events:       report.Summary.Events,
		NewEvents:    report.NewEvents,
		Rank:         report.Rank,
		Participants: report.Participants,
		PublishedAt:  time.Now().UTC(),
	}
}

// FailedScan builds the completion event for a sync that errored.
func FailedScan(wallet string, err error) *ScanCompletedEvent {
	return &ScanCompletedEvent{
		Wallet:      wallet,
		Error:       err.Error(),
		PublishedAt: time.Now().UTC(),
	}
}
