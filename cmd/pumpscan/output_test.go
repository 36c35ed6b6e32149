package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/brojonat/pumpscan/service/scan"
	"github.com/brojonat/pumpscan/service/solana"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvents() []solana.Event {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []solana.Event{
		{Signature: "sigLoss", Slot: 30, Timestamp: ts, Amount: decimal.RequireFromString("2.5"), Lamports: 2_500_000_000, Kind: solana.KindLoss, Success: true},
		{Signature: "sigGain", Slot: 20, Timestamp: ts.Add(-time.Hour), Amount: decimal.RequireFromString("0.75"), Lamports: 750_000_000, Kind: solana.KindGain, Success: true},
		{Signature: "sigDust", Slot: 10, Timestamp: ts.Add(-2 * time.Hour), Amount: decimal.RequireFromString("0.01"), Lamports: 10_000_000, Kind: solana.KindLoss, Success: true},
	}
}

func TestCompileJQ_Invalid(t *testing.T) {
	_, err := compileJQ([]string{".kind =="})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}

func TestJQFilter_Match(t *testing.T) {
	ev := testEvents()[0]

	tests := []struct {
		name    string
		filters []string
		want    bool
	}{
		{"no filters", nil, true},
		{"kind matches", []string{`.kind == "loss"`}, true},
		{"kind differs", []string{`.kind == "gain"`}, false},
		{"decimal amount as string", []string{`.amount | tonumber > 1`}, true},
		{"all filters must pass", []string{`.kind == "loss"`, `.slot < 10`}, false},
		{"null is falsy", []string{`.missing`}, false},
		{"non-bool result is truthy", []string{`.signature`}, true},
		{"empty output fails", []string{`empty`}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := compileJQ(tt.filters)
			require.NoError(t, err)

			got, err := f.Match(ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJQFilter_RuntimeError(t *testing.T) {
	f, err := compileJQ([]string{`.signature | tonumber`})
	require.NoError(t, err)

	_, err = f.Match(testEvents()[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jq filter error")
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0.0))
	assert.True(t, isTruthy(""))
	assert.True(t, isTruthy(map[string]interface{}{}))
}

func TestPrintEvents_FiltersJSON(t *testing.T) {
	f, err := compileJQ([]string{`.kind == "loss"`, `.amount | tonumber >= 0.1`})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printEvents(&buf, testEvents(), f, true))

	var got []solana.Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "sigLoss", got[0].Signature)
}

func TestPrintEvents_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printEvents(&buf, testEvents(), nil, false))

	out := buf.String()
	assert.Contains(t, out, "SIGNATURE")
	assert.Contains(t, out, "2.5000")
	assert.Contains(t, out, "sigGain")
	assert.Contains(t, out, "Total: 3 events")
}

func TestPrintScanSummary(t *testing.T) {
	res := &scan.Result{
		Wallet:     "wallet1",
		Events:     testEvents(),
		Signatures: 40,
		Skipped: map[solana.SkipReason]int{
			solana.SkipNoProgramMatch: 30,
			solana.SkipNotFound:       0,
			solana.SkipBelowThreshold: 7,
		},
	}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printScanSummary(&buf, res, true))

		var got scanOutput
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, 40, got.Signatures)
		assert.Equal(t, 3, got.Summary.Events)
		assert.True(t, got.Summary.TotalLosses.Equal(decimal.RequireFromString("2.51")))
		assert.True(t, got.Summary.NetResult.Equal(decimal.RequireFromString("-1.76")))
		assert.Equal(t, map[string]int{"no_program_match": 30, "below_threshold": 7}, got.Skipped)
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printScanSummary(&buf, res, false))

		out := buf.String()
		assert.Contains(t, out, "Net result:")
		assert.Contains(t, out, "-1.7600 SOL")
		assert.Contains(t, out, "Skipped (below_threshold):")
		assert.NotContains(t, out, "not_found")
	})
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	progressPrinter(&buf)(2, 4, scan.Snapshot{
		ProcessedCount: 6,
		TotalCount:     12,
		MatchedCount:   1,
		RunningGain:    decimal.Zero,
		RunningLoss:    decimal.RequireFromString("0.5"),
		BatchLabel:     "Batch 2/4",
	})
	assert.Equal(t, "Batch 2/4: 6/12 processed, 1 matched, +0.0000 / -0.5000 SOL\n", buf.String())
}
