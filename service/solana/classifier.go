package solana

import (
	"context"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// DefaultDustThreshold is the smallest balance change, in SOL, that counts
// as a gain or loss. Anything smaller is treated as fees or dust.
var DefaultDustThreshold = decimal.New(1, -3)

// Classifier decides whether a transaction touched a pump.fun program and
// scores it from the wallet's SOL balance delta.
//
// The score is the wallet's net SOL movement across the whole transaction.
// Fees, multi-instruction transactions and partial fills all fold into that
// single number, so it approximates trading profit and loss rather than
// measuring it.
type Classifier struct {
	programs  map[solana.PublicKey]struct{}
	threshold int64
	logger    *slog.Logger
	now       func() time.Time
}

// NewClassifier returns a Classifier matching any of programIDs. A zero
// dustThreshold still discards transactions with no balance change.
func NewClassifier(programIDs []solana.PublicKey, dustThreshold decimal.Decimal, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	programs := make(map[solana.PublicKey]struct{}, len(programIDs))
	for _, id := range programIDs {
		programs[id] = struct{}{}
	}
	return &Classifier{
		programs:  programs,
		threshold: dustThreshold.Shift(9).IntPart(),
		logger:    logger,
		now:       time.Now,
	}
}

// Matches reports whether any instruction's program id, resolved against
// accounts, is a target program. Out-of-range indexes are ignored.
func (c *Classifier) Matches(rec *TransactionRecord, accounts []solana.PublicKey) bool {
	for _, idx := range rec.ProgramIndexes {
		if int(idx) >= len(accounts) {
			continue
		}
		if _, ok := c.programs[accounts[idx]]; ok {
			return true
		}
	}
	return false
}

// Classify returns the Event for rec from the perspective of wallet, or nil
// and the reason it was discarded.
func (c *Classifier) Classify(ctx context.Context, rec *TransactionRecord, wallet solana.PublicKey) (*Event, SkipReason) {
	accounts, ok := rec.Accounts()
	if !ok {
		c.logger.WarnContext(ctx, "lookup table addresses missing, skipping transaction",
			"signature", rec.Signature.String(),
			"expected_loaded", rec.ExpectedLoaded,
			"writable", len(rec.LoadedWritable),
			"readonly", len(rec.LoadedReadonly),
		)
		return nil, SkipIncompleteAccounts
	}

	if !c.Matches(rec, accounts) {
		return nil, SkipNoProgramMatch
	}
	if rec.Failed {
		return nil, SkipFailed
	}

	walletIdx := -1
	for i, acct := range accounts {
		if acct.Equals(wallet) {
			walletIdx = i
			break
		}
	}
	if walletIdx < 0 {
		return nil, SkipWalletNotInvolved
	}

	if !rec.HasMeta || walletIdx >= len(rec.PreBalances) || walletIdx >= len(rec.PostBalances) {
		c.logger.WarnContext(ctx, "balance data missing, skipping transaction",
			"signature", rec.Signature.String(),
			"wallet_index", walletIdx,
			"pre_balances", len(rec.PreBalances),
			"post_balances", len(rec.PostBalances),
		)
		return nil, SkipMissingBalances
	}

	// Positive means the wallet paid out.
	delta := int64(rec.PreBalances[walletIdx]) - int64(rec.PostBalances[walletIdx])
	magnitude := delta
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude == 0 || magnitude < c.threshold {
		return nil, SkipBelowThreshold
	}

	kind := KindLoss
	if delta < 0 {
		kind = KindGain
	}

	ts := c.now()
	if rec.BlockTime != nil {
		ts = *rec.BlockTime
	}

	return &Event{
		Signature: rec.Signature.String(),
		Slot:      rec.Slot,
		Timestamp: ts,
		Amount:    decimal.New(magnitude, -9),
		Lamports:  magnitude,
		Kind:      kind,
		Success:   true,
	}, SkipNone
}
