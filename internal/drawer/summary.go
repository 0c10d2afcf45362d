package drawer

import (
	"time"

	"github.com/shopspring/decimal"

	"posdrawer/backend/internal/domain"
)

// Window is a half-open reporting range [From, To). A zero bound is open.
type Window struct {
	From time.Time
	To   time.Time
}

// DayWindow returns the calendar day containing now in loc.
func DayWindow(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{From: start, To: start.AddDate(0, 0, 1)}
}

func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// Summarize computes the dashboard aggregates for a set of ledger entries.
// CashIn and CashOut cover every movement; TodaysCashSale only counts cash
// sales less cash refunds dated inside salesWindow.
func Summarize(txs []domain.Transaction, salesWindow Window) domain.Aggregates {
	agg := domain.Aggregates{
		CashIn:         decimal.Zero,
		CashOut:        decimal.Zero,
		TodaysCashSale: decimal.Zero,
	}
	for _, t := range txs {
		k := classify(t)
		switch k {
		case kindSeed, kindSnapshot, kindUnknown, kindNone:
			continue
		}

		net := NetAmount(t)
		if net.IsPositive() {
			agg.CashIn = agg.CashIn.Add(net)
		} else {
			agg.CashOut = agg.CashOut.Add(net.Abs())
		}

		if !salesWindow.Contains(t.TransactionDate) {
			continue
		}
		if k == kindCashSale || (k == kindOut && t.Type == domain.TxRefund) {
			agg.TodaysCashSale = agg.TodaysCashSale.Add(net)
		}
	}
	agg.NetCashFlow = agg.CashIn.Sub(agg.CashOut)
	return agg
}
