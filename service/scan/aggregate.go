package scan

import (
	"github.com/brojonat/pumpscan/service/solana"
	"github.com/shopspring/decimal"
)

// Summary folds a scan's events into totals.
type Summary struct {
	TotalLosses decimal.Decimal `json:"total_losses"`
	TotalGains  decimal.Decimal `json:"total_gains"`
	// NetResult is gains minus losses; negative means the wallet is down.
	NetResult   decimal.Decimal `json:"net_result"`
	BiggestLoss decimal.Decimal `json:"biggest_loss"`
	BiggestGain decimal.Decimal `json:"biggest_gain"`
	Losses      int             `json:"losses"`
	Gains       int             `json:"gains"`
	Events      int             `json:"events"`
}

// Summarize computes every statistic in one pass. It does not depend on the
// order of events.
func Summarize(events []solana.Event) Summary {
	s := Summary{
		TotalLosses: decimal.Zero,
		TotalGains:  decimal.Zero,
		BiggestLoss: decimal.Zero,
		BiggestGain: decimal.Zero,
		Events:      len(events),
	}
	for _, ev := range events {
		switch ev.Kind {
		case solana.KindLoss:
			s.Losses++
			s.TotalLosses = s.TotalLosses.Add(ev.Amount)
			if ev.Amount.GreaterThan(s.BiggestLoss) {
				s.BiggestLoss = ev.Amount
			}
		case solana.KindGain:
			s.Gains++
			s.TotalGains = s.TotalGains.Add(ev.Amount)
			if ev.Amount.GreaterThan(s.BiggestGain) {
				s.BiggestGain = ev.Amount
			}
		}
	}
	s.NetResult = s.TotalGains.Sub(s.TotalLosses)
	return s
}

// TotalLosses sums loss magnitudes.
func TotalLosses(events []solana.Event) decimal.Decimal {
	return Summarize(events).TotalLosses
}

// TotalGains sums gain magnitudes.
func TotalGains(events []solana.Event) decimal.Decimal {
	return Summarize(events).TotalGains
}

// NetResult is total gains minus total losses.
func NetResult(events []solana.Event) decimal.Decimal {
	return Summarize(events).NetResult
}

// BiggestLoss is the largest single loss, or zero.
func BiggestLoss(events []solana.Event) decimal.Decimal {
	return Summarize(events).BiggestLoss
}

// BiggestGain is the largest single gain, or zero.
func BiggestGain(events []solana.Event) decimal.Decimal {
	return Summarize(events).BiggestGain
}
