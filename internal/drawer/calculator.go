// Package drawer derives the cash drawer position from ledger entries.
//
// Every function here is pure: the same entries in the same order always
// produce the same figures. Sign convention: NetAmount is signed relative to
// the drawer (money in is positive, money out negative); CashIn and CashOut
// aggregates are unsigned magnitudes taken from the sign of NetAmount.
package drawer

import (
	"github.com/shopspring/decimal"

	"posdrawer/backend/internal/domain"
)

type kind int

const (
	kindNone     kind = iota // known type with no drawer effect (card sale, card refund)
	kindSeed                 // opening balance, already held on the session record
	kindIn                   // cash put into the drawer
	kindOut                  // cash taken out of the drawer
	kindCashSale             // sale paid in cash, may carry its own in/out split
	kindSnapshot             // counted closing balance, not a movement
	kindUnknown
)

// classify is the single place that maps a transaction to its drawer
// behaviour. Adding a TransactionType means adding a case here; the
// classification test fails for any type that falls through to kindUnknown.
func classify(t domain.Transaction) kind {
	switch t.Type {
	case domain.TxOpeningBalance:
		return kindSeed
	case domain.TxClosingBalance:
		return kindSnapshot
	case domain.TxCashIn:
		return kindIn
	case domain.TxCashOut, domain.TxExpense:
		return kindOut
	case domain.TxRefund:
		// Refunds without a payment method come out of the drawer.
		if t.PaymentMethod == "" || domain.IsCashPayment(t.PaymentMethod) {
			return kindOut
		}
		return kindNone
	case domain.TxSale:
		if domain.IsCashPayment(t.PaymentMethod) {
			return kindCashSale
		}
		return kindNone
	default:
		return kindUnknown
	}
}

// IsCashSale reports a SALE paid in cash.
func IsCashSale(t domain.Transaction) bool {
	return classify(t) == kindCashSale
}

// AffectsDrawer reports whether the entry can move cash at all.
func AffectsDrawer(t domain.Transaction) bool {
	switch classify(t) {
	case kindIn, kindOut, kindCashSale, kindSeed:
		return true
	default:
		return false
	}
}

// AmountIn is the cash an entry puts into the drawer.
func AmountIn(t domain.Transaction) decimal.Decimal {
	switch classify(t) {
	case kindCashSale, kindSeed, kindIn:
		return valueOr(t.AmountIn, t.Amount)
	default:
		return decimal.Zero
	}
}

// AmountOut is the cash an entry takes out of the drawer. A cash sale only
// pays out when the upstream system supplied an explicit out amount.
func AmountOut(t domain.Transaction) decimal.Decimal {
	switch classify(t) {
	case kindSnapshot:
		return decimal.Zero
	case kindCashSale:
		return valueOr(t.AmountOut, decimal.Zero)
	case kindOut:
		return valueOr(t.AmountOut, t.Amount)
	default:
		return decimal.Zero
	}
}

// NetAmount is the signed contribution of one entry to the drawer. A closing
// balance returns its counted amount as a reference point.
func NetAmount(t domain.Transaction) decimal.Decimal {
	k := classify(t)
	if k == kindSnapshot {
		return t.Amount
	}
	if t.AmountIn == nil && t.AmountOut == nil {
		switch k {
		case kindCashSale, kindSeed, kindIn:
			return t.Amount
		case kindOut:
			return t.Amount.Neg()
		}
	}
	return AmountIn(t).Sub(AmountOut(t))
}

// Fold is the result of folding a session ledger into a drawer balance.
type Fold struct {
	Balance decimal.Decimal
	// Unknown holds entries whose type is outside the known set. They
	// contributed nothing to Balance.
	Unknown []domain.Transaction
}

// CurrentBalance seeds the fold with the session opening balance and adds the
// net amount of every movement in ledger order. The OPENING_BALANCE entry is
// skipped because the session already carries it; CLOSING_BALANCE is a
// snapshot and never moves the balance.
func CurrentBalance(opening decimal.Decimal, txs []domain.Transaction) Fold {
	fold := Fold{Balance: opening}
	for _, t := range txs {
		switch classify(t) {
		case kindSeed, kindSnapshot:
			continue
		case kindUnknown:
			fold.Unknown = append(fold.Unknown, t)
			continue
		}
		fold.Balance = fold.Balance.Add(NetAmount(t))
	}
	return fold
}

// UnknownEntries returns the entries every fold skips for having a type
// outside the known set.
func UnknownEntries(txs []domain.Transaction) []domain.Transaction {
	var unknown []domain.Transaction
	for _, t := range txs {
		if classify(t) == kindUnknown {
			unknown = append(unknown, t)
		}
	}
	return unknown
}

func valueOr(v *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if v == nil {
		return fallback
	}
	return *v
}
