package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/pumpscan/service/ratelimit"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	mu sync.Mutex

	// history is the wallet's full signature list, newest first.
	history []*rpc.TransactionSignature
	sigErr  error

	transactions map[solana.Signature]*rpc.GetTransactionResult
	// txErrs are returned, in order, before the transaction itself.
	txErrs map[solana.Signature][]error
	delay  time.Duration

	sigCalls    []rpc.GetSignaturesForAddressOpts
	txCalls     map[solana.Signature]int
	lastTxOpts  *rpc.GetTransactionOpts
	inFlight    int
	maxInFlight int
}

func newMockRPCClient() *mockRPCClient {
	return &mockRPCClient{
		transactions: make(map[solana.Signature]*rpc.GetTransactionResult),
		txErrs:       make(map[solana.Signature][]error),
		txCalls:      make(map[solana.Signature]int),
	}
}

func (m *mockRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sigCalls = append(m.sigCalls, *opts)
	if m.sigErr != nil {
		return nil, m.sigErr
	}

	start := 0
	if !opts.Before.IsZero() {
		for i, sig := range m.history {
			if sig.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}

	limit := 1000
	if opts.Limit != nil {
		limit = *opts.Limit
	}

	var out []*rpc.TransactionSignature
	for _, sig := range m.history[start:] {
		if !opts.Until.IsZero() && sig.Signature == opts.Until {
			break
		}
		if len(out) == limit {
			break
		}
		out = append(out, sig)
	}
	return out, nil
}

func (m *mockRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	m.mu.Lock()
	m.txCalls[signature]++
	m.lastTxOpts = opts
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	var err error
	if queued := m.txErrs[signature]; len(queued) > 0 {
		err = queued[0]
		m.txErrs[signature] = queued[1:]
	}
	result := m.transactions[signature]
	delay := m.delay
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (m *mockRPCClient) calls(sig solana.Signature) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txCalls[sig]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testOptions returns options with no pacing and millisecond backoff so
// tests run fast.
func testOptions(t *testing.T, batchSize int) Options {
	t.Helper()
	bucket, err := ratelimit.NewTokenBucket(1000, 1000)
	require.NoError(t, err)
	return Options{
		Endpoint:  "test",
		Bucket:    bucket,
		BatchSize: batchSize,
		Retry: RetryConfig{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
		RateLimitCooldown: 5 * time.Second,
		RequestTimeout:    time.Second,
	}
}

func newTestClient(t *testing.T, mock *mockRPCClient, batchSize int) *Client {
	t.Helper()
	return NewClient(mock, testOptions(t, batchSize), nil, testLogger())
}

func testSignature(n int) solana.Signature {
	var sig solana.Signature
	sig[0] = byte(n)
	sig[1] = byte(n >> 8)
	sig[63] = 0xAB
	return sig
}

func testKey(t *testing.T) solana.PublicKey {
	t.Helper()
	return solana.NewWallet().PublicKey()
}

// history builds n signature entries, newest first, one second apart.
func history(n int) []*rpc.TransactionSignature {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	out := make([]*rpc.TransactionSignature, n)
	for i := range n {
		bt := solana.UnixTimeSeconds(base - int64(i))
		out[i] = &rpc.TransactionSignature{
			Signature: testSignature(i + 1),
			Slot:      uint64(10_000 - i),
			BlockTime: &bt,
		}
	}
	return out
}

// makeTransactionEnvelope wraps tx the way the RPC returns it for base64
// encoding, so decoding goes through the same path as production.
func makeTransactionEnvelope(t *testing.T, tx *solana.Transaction) *rpc.TransactionResultEnvelope {
	t.Helper()

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	payload, err := json.Marshal([]string{base64.StdEncoding.EncodeToString(raw), "base64"})
	require.NoError(t, err)

	var env rpc.TransactionResultEnvelope
	require.NoError(t, json.Unmarshal(payload, &env))
	return &env
}

// pumpTrade builds a legacy transaction in which wallet invokes the pump
// program, with wallet's balance going from pre to post.
func pumpTrade(t *testing.T, wallet solana.PublicKey, pre, post uint64) *rpc.GetTransactionResult {
	t.Helper()

	other := testKey(t)
	tx := &solana.Transaction{
		Message: solana.Message{
			Header:      solana.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: solana.PublicKeySlice{wallet, other, PumpProgramID},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 2, Accounts: []uint16{0, 1}},
			},
		},
	}

	bt := solana.UnixTimeSeconds(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	return &rpc.GetTransactionResult{
		Slot:        42,
		BlockTime:   &bt,
		Transaction: makeTransactionEnvelope(t, tx),
		Meta: &rpc.TransactionMeta{
			PreBalances:  []uint64{pre, 10, 1},
			PostBalances: []uint64{post, 10, 1},
		},
	}
}
