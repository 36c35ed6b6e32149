package solana

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// SignatureRecord is one entry of a wallet's address history.
type SignatureRecord struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *time.Time
	Failed    bool
}

// TransactionRecord is the decoded subset of a transaction the classifier
// needs. It is independent of the RPC response format.
type TransactionRecord struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *time.Time

	// Versioned is true for v0 (and later) messages.
	Versioned bool
	// ExpectedLoaded is the number of addresses the message pulls in via
	// address lookup tables.
	ExpectedLoaded int

	StaticAccounts []solana.PublicKey
	LoadedWritable []solana.PublicKey
	LoadedReadonly []solana.PublicKey

	// ProgramIndexes holds each instruction's program-id index, in order.
	ProgramIndexes []uint16

	// HasMeta is false when the provider returned no status metadata.
	HasMeta      bool
	Failed       bool
	PreBalances  []uint64
	PostBalances []uint64
}

func signatureToRecord(sig *rpc.TransactionSignature) SignatureRecord {
	rec := SignatureRecord{
		Signature: sig.Signature,
		Slot:      sig.Slot,
		Failed:    sig.Err != nil,
	}
	if sig.BlockTime != nil {
		t := sig.BlockTime.Time()
		rec.BlockTime = &t
	}
	return rec
}

// recordFromResult decodes a getTransaction result into a TransactionRecord.
func recordFromResult(sig solana.Signature, result *rpc.GetTransactionResult) (*TransactionRecord, error) {
	if result == nil {
		return nil, ErrTransactionNotFound
	}
	if result.Transaction == nil {
		return nil, fmt.Errorf("transaction %s has no payload", sig)
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction %s decoded to nothing", sig)
	}

	msg := tx.Message
	rec := &TransactionRecord{
		Signature:      sig,
		Slot:           result.Slot,
		Versioned:      msg.IsVersioned() || msg.NumLookups() > 0,
		ExpectedLoaded: msg.NumLookups(),
		StaticAccounts: append([]solana.PublicKey(nil), msg.AccountKeys...),
		ProgramIndexes: make([]uint16, 0, len(msg.Instructions)),
	}
	if result.BlockTime != nil {
		t := result.BlockTime.Time()
		rec.BlockTime = &t
	}
	for _, inst := range msg.Instructions {
		rec.ProgramIndexes = append(rec.ProgramIndexes, inst.ProgramIDIndex)
	}

	if meta := result.Meta; meta != nil {
		rec.HasMeta = true
		rec.Failed = meta.Err != nil
		rec.PreBalances = meta.PreBalances
		rec.PostBalances = meta.PostBalances
		rec.LoadedWritable = meta.LoadedAddresses.Writable
		rec.LoadedReadonly = meta.LoadedAddresses.ReadOnly
	}

	return rec, nil
}

// Accounts returns the full ordered account list.
//
// Legacy messages use their static keys as-is. Versioned messages append the
// lookup-table addresses, writable first then read-only. The second return is
// false when a versioned message references lookup tables whose addresses the
// provider did not return.
func (r *TransactionRecord) Accounts() ([]solana.PublicKey, bool) {
	if !r.Versioned {
		return r.StaticAccounts, true
	}

	loaded := len(r.LoadedWritable) + len(r.LoadedReadonly)
	if r.ExpectedLoaded > 0 && (!r.HasMeta || loaded < r.ExpectedLoaded) {
		return nil, false
	}

	accounts := make([]solana.PublicKey, 0, len(r.StaticAccounts)+loaded)
	accounts = append(accounts, r.StaticAccounts...)
	accounts = append(accounts, r.LoadedWritable...)
	accounts = append(accounts, r.LoadedReadonly...)
	return accounts, true
}
