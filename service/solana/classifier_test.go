package solana

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier() *Classifier {
	return NewClassifier(DefaultProgramIDs(), DefaultDustThreshold, testLogger())
}

// legacyRecord is a matched legacy transaction where the wallet is account 0
// and the pump program is account 2.
func legacyRecord(wallet solana.PublicKey, pre, post uint64) *TransactionRecord {
	bt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &TransactionRecord{
		Signature:      testSignature(7),
		Slot:           99,
		BlockTime:      &bt,
		StaticAccounts: []solana.PublicKey{wallet, solana.SystemProgramID, PumpProgramID},
		ProgramIndexes: []uint16{1, 2},
		HasMeta:        true,
		PreBalances:    []uint64{pre, 1, 1},
		PostBalances:   []uint64{post, 1, 1},
	}
}

func TestClassify_Loss(t *testing.T) {
	wallet := testKey(t)
	rec := legacyRecord(wallet, 5_000_000_000, 4_000_000_000)

	ev, reason := newTestClassifier().Classify(context.Background(), rec, wallet)

	require.NotNil(t, ev)
	assert.Equal(t, SkipNone, reason)
	assert.Equal(t, KindLoss, ev.Kind)
	assert.True(t, ev.Amount.Equal(decimal.NewFromInt(1)), "amount %s", ev.Amount)
	assert.Equal(t, int64(1_000_000_000), ev.Lamports)
	assert.True(t, ev.Success)
	assert.Equal(t, rec.Signature.String(), ev.Signature)
	assert.Equal(t, *rec.BlockTime, ev.Timestamp)
	assert.Equal(t, uint64(99), ev.Slot)
}

func TestClassify_Gain(t *testing.T) {
	wallet := testKey(t)
	rec := legacyRecord(wallet, 4_000_000_000, 5_000_000_000)

	ev, reason := newTestClassifier().Classify(context.Background(), rec, wallet)

	require.NotNil(t, ev)
	assert.Equal(t, SkipNone, reason)
	assert.Equal(t, KindGain, ev.Kind)
	assert.True(t, ev.Amount.Equal(decimal.NewFromInt(1)), "amount %s", ev.Amount)
}

func TestClassify_ZeroDeltaProducesNothing(t *testing.T) {
	wallet := testKey(t)
	rec := legacyRecord(wallet, 5_000_000_000, 5_000_000_000)

	ev, reason := NewClassifier(DefaultProgramIDs(), decimal.Zero, testLogger()).Classify(context.Background(), rec, wallet)

	assert.Nil(t, ev)
	assert.Equal(t, SkipBelowThreshold, reason)
}

func TestClassify_DustThreshold(t *testing.T) {
	wallet := testKey(t)
	c := newTestClassifier()

	// 5000 lamports is a typical fee, well under 0.001 SOL.
	ev, reason := c.Classify(context.Background(), legacyRecord(wallet, 1_000_005_000, 1_000_000_000), wallet)
	assert.Nil(t, ev)
	assert.Equal(t, SkipBelowThreshold, reason)

	// Exactly at the threshold counts.
	ev, reason = c.Classify(context.Background(), legacyRecord(wallet, 1_001_000_000, 1_000_000_000), wallet)
	require.NotNil(t, ev)
	assert.Equal(t, SkipNone, reason)
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("0.001")))
}

func TestClassify_Unmatched(t *testing.T) {
	wallet := testKey(t)
	rec := legacyRecord(wallet, 5_000_000_000, 4_000_000_000)
	rec.ProgramIndexes = []uint16{1}

	ev, reason := newTestClassifier().Classify(context.Background(), rec, wallet)

	assert.Nil(t, ev)
	assert.Equal(t, SkipNoProgramMatch, reason)
}

func TestClassify_FailedTransactionDiscarded(t *testing.T) {
	wallet := testKey(t)
	rec := legacyRecord(wallet, 5_000_000_000, 4_000_000_000)
	rec.Failed = true

	ev, reason := newTestClassifier().Classify(context.Background(), rec, wallet)

	assert.Nil(t, ev)
	assert.Equal(t, SkipFailed, reason)
}

func TestClassify_WalletNotInvolved(t *testing.T) {
	wallet := testKey(t)
	rec := legacyRecord(testKey(t), 5_000_000_000, 4_000_000_000)

	ev, reason := newTestClassifier().Classify(context.Background(), rec, wallet)

	assert.Nil(t, ev)
	assert.Equal(t, SkipWalletNotInvolved, reason)
}

func TestClassify_OutOfRangeProgramIndexIsSkipped(t *testing.T) {
	wallet := testKey(t)

	t.Run("only out of range", func(t *testing.T) {
		rec := legacyRecord(wallet, 5_000_000_000, 4_000_000_000)
		rec.ProgramIndexes = []uint16{200}

		var ev *Event
		var reason SkipReason
		require.NotPanics(t, func() {
			ev, reason = newTestClassifier().Classify(context.Background(), rec, wallet)
		})
		assert.Nil(t, ev)
		assert.Equal(t, SkipNoProgramMatch, reason)
	})

	t.Run("out of range alongside a match", func(t *testing.T) {
		rec := legacyRecord(wallet, 5_000_000_000, 4_000_000_000)
		rec.ProgramIndexes = []uint16{200, 2}

		ev, reason := newTestClassifier().Classify(context.Background(), rec, wallet)
		require.NotNil(t, ev)
		assert.Equal(t, SkipNone, reason)
	})
}

func TestClassify_MatchesAnyConfiguredProgram(t *testing.T) {
	wallet := testKey(t)
	rec := legacyRecord(wallet, 5_000_000_000, 4_500_000_000)
	rec.StaticAccounts[2] = PumpAMMProgramID

	ev, _ := newTestClassifier().Classify(context.Background(), rec, wallet)
	require.NotNil(t, ev)
	assert.Equal(t, KindLoss, ev.Kind)

	onlyBondingCurve := NewClassifier([]solana.PublicKey{PumpProgramID}, DefaultDustThreshold, testLogger())
	ev, reason := onlyBondingCurve.Classify(context.Background(), rec, wallet)
	assert.Nil(t, ev)
	assert.Equal(t, SkipNoProgramMatch, reason)
}

func TestClassify_MissingBalances(t *testing.T) {
	wallet := testKey(t)
	rec := legacyRecord(wallet, 5_000_000_000, 4_000_000_000)
	rec.PostBalances = nil

	ev, reason := newTestClassifier().Classify(context.Background(), rec, wallet)

	assert.Nil(t, ev)
	assert.Equal(t, SkipMissingBalances, reason)
}

func TestClassify_MissingBlockTimeFallsBackToNow(t *testing.T) {
	wallet := testKey(t)
	rec := legacyRecord(wallet, 5_000_000_000, 4_000_000_000)
	rec.BlockTime = nil

	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestClassifier()
	c.now = func() time.Time { return fixed }

	ev, _ := c.Classify(context.Background(), rec, wallet)
	require.NotNil(t, ev)
	assert.Equal(t, fixed, ev.Timestamp)
}

func TestClassify_VersionedWithLookupTables(t *testing.T) {
	wallet := testKey(t)
	pool := testKey(t)

	// Static keys: wallet, pool. Lookups load one writable account and the
	// pump program as read-only, giving indexes 2 and 3.
	rec := &TransactionRecord{
		Signature:      testSignature(9),
		Versioned:      true,
		ExpectedLoaded: 2,
		StaticAccounts: []solana.PublicKey{wallet, pool},
		LoadedWritable: []solana.PublicKey{testKey(t)},
		LoadedReadonly: []solana.PublicKey{PumpProgramID},
		ProgramIndexes: []uint16{3},
		HasMeta:        true,
		PreBalances:    []uint64{2_000_000_000, 0, 0, 1},
		PostBalances:   []uint64{2_500_000_000, 0, 0, 1},
	}

	accounts, ok := rec.Accounts()
	require.True(t, ok)
	require.Len(t, accounts, 4)
	assert.Equal(t, rec.LoadedWritable[0], accounts[2], "writable lookups come before read-only")
	assert.Equal(t, PumpProgramID, accounts[3])

	ev, reason := newTestClassifier().Classify(context.Background(), rec, wallet)
	require.NotNil(t, ev)
	assert.Equal(t, SkipNone, reason)
	assert.Equal(t, KindGain, ev.Kind)
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("0.5")))
}

func TestClassify_VersionedWithMissingLookupData(t *testing.T) {
	wallet := testKey(t)
	rec := &TransactionRecord{
		Signature:      testSignature(10),
		Versioned:      true,
		ExpectedLoaded: 2,
		StaticAccounts: []solana.PublicKey{wallet},
		ProgramIndexes: []uint16{2},
		HasMeta:        true,
		PreBalances:    []uint64{2_000_000_000, 0, 1},
		PostBalances:   []uint64{1_000_000_000, 0, 1},
	}

	_, ok := rec.Accounts()
	assert.False(t, ok)

	ev, reason := newTestClassifier().Classify(context.Background(), rec, wallet)
	assert.Nil(t, ev)
	assert.Equal(t, SkipIncompleteAccounts, reason)
}

func TestRecordFromResult_Legacy(t *testing.T) {
	wallet := testKey(t)
	result := pumpTrade(t, wallet, 3_000_000_000, 2_000_000_000)

	rec, err := recordFromResult(testSignature(1), result)

	require.NoError(t, err)
	assert.False(t, rec.Versioned)
	assert.True(t, rec.HasMeta)
	assert.Equal(t, uint64(42), rec.Slot)
	require.NotNil(t, rec.BlockTime)
	assert.Equal(t, []uint16{2}, rec.ProgramIndexes)
	assert.Equal(t, wallet, rec.StaticAccounts[0])

	ev, reason := newTestClassifier().Classify(context.Background(), rec, wallet)
	require.NotNil(t, ev)
	assert.Equal(t, SkipNone, reason)
	assert.Equal(t, KindLoss, ev.Kind)
}

func TestRecordFromResult_Versioned(t *testing.T) {
	wallet := testKey(t)
	table := testKey(t)
	loadedWritable := testKey(t)

	msg := solana.Message{
		Header:      solana.MessageHeader{NumRequiredSignatures: 1},
		AccountKeys: solana.PublicKeySlice{wallet},
		Instructions: []solana.CompiledInstruction{
			{ProgramIDIndex: 2, Accounts: []uint16{0, 1}},
		},
		AddressTableLookups: solana.MessageAddressTableLookupSlice{
			{AccountKey: table, WritableIndexes: []uint8{4}, ReadonlyIndexes: []uint8{7}},
		},
	}
	msg.SetVersion(solana.MessageVersionV0)

	result := &rpc.GetTransactionResult{
		Transaction: makeTransactionEnvelope(t, &solana.Transaction{Message: msg}),
		Meta: &rpc.TransactionMeta{
			PreBalances:  []uint64{1_000_000_000, 0, 1},
			PostBalances: []uint64{3_000_000_000, 0, 1},
			LoadedAddresses: rpc.LoadedAddresses{
				Writable: solana.PublicKeySlice{loadedWritable},
				ReadOnly: solana.PublicKeySlice{PumpProgramID},
			},
		},
	}

	rec, err := recordFromResult(testSignature(2), result)
	require.NoError(t, err)
	assert.True(t, rec.Versioned)
	assert.Equal(t, 2, rec.ExpectedLoaded)

	accounts, ok := rec.Accounts()
	require.True(t, ok)
	assert.Equal(t, []solana.PublicKey{wallet, loadedWritable, PumpProgramID}, accounts)

	ev, reason := newTestClassifier().Classify(context.Background(), rec, wallet)
	require.NotNil(t, ev)
	assert.Equal(t, SkipNone, reason)
	assert.Equal(t, KindGain, ev.Kind)
	assert.True(t, ev.Amount.Equal(decimal.NewFromInt(2)))

	// Same transaction without the loaded addresses cannot be resolved.
	result.Meta.LoadedAddresses = rpc.LoadedAddresses{}
	rec, err = recordFromResult(testSignature(2), result)
	require.NoError(t, err)
	_, reason = newTestClassifier().Classify(context.Background(), rec, wallet)
	assert.Equal(t, SkipIncompleteAccounts, reason)
}

func TestRecordFromResult_NilResult(t *testing.T) {
	_, err := recordFromResult(testSignature(3), nil)
	assert.True(t, IsNotFound(err))
}
