package solana

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// pump.fun program IDs
var (
	// PumpProgramID is the bonding-curve program.
	PumpProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

	// PumpAMMProgramID is the AMM that tokens migrate to after bonding.
	PumpAMMProgramID = solana.MustPublicKeyFromBase58("pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA")
)

// DefaultProgramIDs returns every pump.fun program address we match against.
func DefaultProgramIDs() []solana.PublicKey {
	return []solana.PublicKey{PumpProgramID, PumpAMMProgramID}
}

// Kind says which way SOL moved for the scanned wallet.
type Kind string

const (
	KindGain Kind = "gain"
	KindLoss Kind = "loss"
)

// Event is a classified pump.fun transaction.
// Amount is always a positive magnitude in SOL; Kind carries the sign.
type Event struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	Timestamp time.Time       `json:"timestamp"`
	Amount    decimal.Decimal `json:"amount"`
	Lamports  int64           `json:"lamports"`
	Kind      Kind            `json:"kind"`
	Success   bool            `json:"success"`
}

// SkipReason explains why a transaction produced no Event.
type SkipReason string

const (
	SkipNone               SkipReason = ""
	SkipNotFound           SkipReason = "not_found"
	SkipFetchError         SkipReason = "fetch_error"
	SkipIncompleteAccounts SkipReason = "incomplete_accounts"
	SkipNoProgramMatch     SkipReason = "no_program_match"
	SkipFailed             SkipReason = "failed"
	SkipWalletNotInvolved  SkipReason = "wallet_not_involved"
	SkipMissingBalances    SkipReason = "missing_balances"
	SkipBelowThreshold     SkipReason = "below_threshold"
)
