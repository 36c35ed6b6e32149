package scan

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/pumpscan/service/ratelimit"
	"github.com/brojonat/pumpscan/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRPC serves a fixed history and transaction set.
type fakeRPC struct {
	mu           sync.Mutex
	history      []*rpc.TransactionSignature
	transactions map[solanago.Signature]*rpc.GetTransactionResult
	sigErr       error
	sigCalls     int
	txCalls      int
}

func (f *fakeRPC) GetSignaturesForAddress(ctx context.Context, address solanago.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sigCalls++
	if f.sigErr != nil {
		return nil, f.sigErr
	}
	start := 0
	if !opts.Before.IsZero() {
		for i, s := range f.history {
			if s.Signature == opts.Before {
				start = i + 1
			}
		}
	}
	var out []*rpc.TransactionSignature
	for _, s := range f.history[start:] {
		if !opts.Until.IsZero() && s.Signature == opts.Until {
			break
		}
		if opts.Limit != nil && len(out) == *opts.Limit {
			break
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRPC) GetTransaction(ctx context.Context, sig solanago.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls++
	return f.transactions[sig], nil
}

// add appends a signature to the history (oldest last) with the given
// transaction, which may be nil for a missing one.
func (f *fakeRPC) add(sig solanago.Signature, at time.Time, tx *rpc.GetTransactionResult) {
	bt := solanago.UnixTimeSeconds(at.Unix())
	f.history = append(f.history, &rpc.TransactionSignature{
		Signature: sig,
		Slot:      uint64(at.Unix()),
		BlockTime: &bt,
	})
	if tx != nil {
		f.transactions[sig] = tx
	}
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{transactions: make(map[solanago.Signature]*rpc.GetTransactionResult)}
}

func sigN(n int) solanago.Signature {
	var s solanago.Signature
	s[0] = byte(n)
	s[1] = byte(n >> 8)
	s[63] = 0x5C
	return s
}

// trade builds a legacy transaction in which wallet calls program and its
// balance moves from pre to post lamports.
func trade(t *testing.T, wallet, program solanago.PublicKey, at time.Time, pre, post uint64) *rpc.GetTransactionResult {
	t.Helper()
	tx := &solanago.Transaction{
		Message: solanago.Message{
			Header:      solanago.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: solanago.PublicKeySlice{wallet, program},
			Instructions: []solanago.CompiledInstruction{
				{ProgramIDIndex: 1, Accounts: []uint16{0}},
			},
		},
	}
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	payload, err := json.Marshal([]string{base64.StdEncoding.EncodeToString(raw), "base64"})
	require.NoError(t, err)
	var env rpc.TransactionResultEnvelope
	require.NoError(t, json.Unmarshal(payload, &env))

	bt := solanago.UnixTimeSeconds(at.Unix())
	return &rpc.GetTransactionResult{
		Slot:        uint64(at.Unix()),
		BlockTime:   &bt,
		Transaction: &env,
		Meta: &rpc.TransactionMeta{
			PreBalances:  []uint64{pre, 1},
			PostBalances: []uint64{post, 1},
		},
	}
}

func newTestScanner(t *testing.T, f *fakeRPC, batchSize int) *Scanner {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bucket, err := ratelimit.NewTokenBucket(1000, 1000)
	require.NoError(t, err)
	client := solana.NewClient(f, solana.Options{
		Endpoint:  "test",
		Bucket:    bucket,
		BatchSize: batchSize,
		Retry: solana.RetryConfig{
			MaxRetries:      1,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
		},
		RateLimitCooldown: time.Millisecond,
		RequestTimeout:    time.Second,
	}, nil, logger)
	classifier := solana.NewClassifier(solana.DefaultProgramIDs(), solana.DefaultDustThreshold, logger)
	return NewScanner(client, classifier, 0, nil, logger)
}

type progressCall struct {
	index, total int
	snap         Snapshot
}

func TestScan_InvalidAddressFailsBeforeRPC(t *testing.T) {
	f := newFakeRPC()
	s := newTestScanner(t, f, 3)

	_, err := s.Scan(context.Background(), "not-a-wallet", nil)

	assert.ErrorIs(t, err, solana.ErrInvalidAddress)
	assert.Zero(t, f.sigCalls)
}

func TestScan_NoSignatures(t *testing.T) {
	f := newFakeRPC()
	s := newTestScanner(t, f, 3)
	wallet := solanago.NewWallet().PublicKey()

	var calls []progressCall
	events, err := s.Scan(context.Background(), wallet.String(), func(i, n int, snap Snapshot) {
		calls = append(calls, progressCall{i, n, snap})
	})

	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
	assert.Empty(t, calls)
	assert.Zero(t, f.txCalls)
}

func TestScan_ProgressFiresOncePerBatch(t *testing.T) {
	f := newFakeRPC()
	wallet := solanago.NewWallet().PublicKey()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 8 {
		at := base.Add(-time.Duration(i) * time.Minute)
		f.add(sigN(i+1), at, trade(t, wallet, solana.PumpProgramID, at, 3_000_000_000, 2_000_000_000))
	}
	s := newTestScanner(t, f, 3)

	var calls []progressCall
	_, err := s.Scan(context.Background(), wallet.String(), func(i, n int, snap Snapshot) {
		calls = append(calls, progressCall{i, n, snap})
	})

	require.NoError(t, err)
	require.Len(t, calls, 3)
	prev := 0
	for i, c := range calls {
		assert.Equal(t, i+1, c.index)
		assert.Equal(t, 3, c.total)
		assert.Greater(t, c.snap.ProcessedCount, prev)
		prev = c.snap.ProcessedCount
	}
	last := calls[2].snap
	assert.Equal(t, 8, last.ProcessedCount)
	assert.Equal(t, 8, last.TotalCount)
	assert.Equal(t, 8, last.MatchedCount)
	assert.Equal(t, "Batch 3/3", last.BatchLabel)
	assert.True(t, decimal.NewFromInt(8).Equal(last.RunningLoss))
	assert.True(t, last.RunningGain.IsZero())
}

func TestScan_ClassifiesAndSortsNewestFirst(t *testing.T) {
	f := newFakeRPC()
	wallet := solanago.NewWallet().PublicKey()
	other := solanago.NewWallet().PublicKey()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// History is newest first; timestamps are deliberately out of order
	// relative to it to prove the result is sorted.
	f.add(sigN(1), base.Add(-2*time.Hour), trade(t, wallet, solana.PumpProgramID, base.Add(-2*time.Hour), 5_000_000_000, 3_500_000_000))
	f.add(sigN(2), base, trade(t, wallet, solana.PumpAMMProgramID, base, 1_000_000_000, 1_250_000_000))
	f.add(sigN(3), base.Add(-time.Hour), trade(t, wallet, other, base.Add(-time.Hour), 9_000_000_000, 1_000_000_000))
	f.add(sigN(4), base.Add(-3*time.Hour), trade(t, wallet, solana.PumpProgramID, base.Add(-3*time.Hour), 1_000_000_000, 999_999_500))
	f.add(sigN(5), base.Add(-4*time.Hour), nil)
	s := newTestScanner(t, f, 2)

	res, err := s.Run(context.Background(), wallet.String(), Options{}, nil)

	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, sigN(2).String(), res.Events[0].Signature)
	assert.Equal(t, solana.KindGain, res.Events[0].Kind)
	assert.True(t, decimal.RequireFromString("0.25").Equal(res.Events[0].Amount))
	assert.Equal(t, sigN(1).String(), res.Events[1].Signature)
	assert.Equal(t, solana.KindLoss, res.Events[1].Kind)
	assert.True(t, decimal.RequireFromString("1.5").Equal(res.Events[1].Amount))

	assert.Equal(t, sigN(1).String(), res.NewestSignature)
	assert.Equal(t, 5, res.Signatures)
	assert.Equal(t, 1, res.Skipped[solana.SkipNoProgramMatch])
	assert.Equal(t, 1, res.Skipped[solana.SkipBelowThreshold])
	assert.Equal(t, 1, res.Skipped[solana.SkipNotFound])
}

func TestScanSince_StopsAtLastSyncedSignature(t *testing.T) {
	f := newFakeRPC()
	wallet := solanago.NewWallet().PublicKey()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 5 {
		at := base.Add(-time.Duration(i) * time.Minute)
		f.add(sigN(i+1), at, trade(t, wallet, solana.PumpProgramID, at, 2_000_000_000, 1_000_000_000))
	}
	s := newTestScanner(t, f, 3)

	events, err := s.ScanSince(context.Background(), wallet.String(), sigN(3), nil)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, sigN(1).String(), events[0].Signature)
	assert.Equal(t, sigN(2).String(), events[1].Signature)
	assert.Equal(t, 2, f.txCalls)
}

func TestScan_ListingErrorAbortsScan(t *testing.T) {
	f := newFakeRPC()
	f.sigErr = errors.New("upstream unavailable")
	s := newTestScanner(t, f, 3)

	_, err := s.Scan(context.Background(), solanago.NewWallet().PublicKey().String(), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestSortNewestFirst_TieBreaksOnSlot(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []solana.Event{
		{Signature: "a", Slot: 1, Timestamp: at},
		{Signature: "b", Slot: 3, Timestamp: at},
		{Signature: "c", Slot: 2, Timestamp: at.Add(time.Second)},
	}

	SortNewestFirst(events)

	assert.Equal(t, []string{"c", "b", "a"}, []string{events[0].Signature, events[1].Signature, events[2].Signature})
}
