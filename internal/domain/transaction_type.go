package domain

import "strings"

// TransactionType is the closed set of cash-affecting ledger events.
// Values read back from the authority may still be outside this set; the
// balance calculator treats those as zero-effect and reports them.
type TransactionType string

const (
	TxOpeningBalance TransactionType = "OPENING_BALANCE"
	TxClosingBalance TransactionType = "CLOSING_BALANCE"
	TxCashIn         TransactionType = "CASH_IN"
	TxCashOut        TransactionType = "CASH_OUT"
	TxExpense        TransactionType = "EXPENSE"
	TxRefund         TransactionType = "REFUND"
	TxSale           TransactionType = "SALE"
)

// AllTransactionTypes lists every known type in declaration order.
var AllTransactionTypes = []TransactionType{
	TxOpeningBalance,
	TxClosingBalance,
	TxCashIn,
	TxCashOut,
	TxExpense,
	TxRefund,
	TxSale,
}

func (t TransactionType) Known() bool {
	for _, known := range AllTransactionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// LifecycleOnly reports types that only the session lifecycle may write.
func (t TransactionType) LifecycleOnly() bool {
	return t == TxOpeningBalance || t == TxClosingBalance
}

// ManualMovement reports drawer movements keyed in by hand, which need a
// positive amount and a description.
func (t TransactionType) ManualMovement() bool {
	return t == TxCashIn || t == TxCashOut || t == TxExpense
}

// ParseTransactionType normalises user input ("cash_in", " Sale ").
func ParseTransactionType(raw string) (TransactionType, bool) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(raw)))
	return t, t.Known()
}

const PaymentMethodCash = "cash"

// IsCashPayment compares payment method tags case-insensitively.
func IsCashPayment(method string) bool {
	return strings.EqualFold(strings.TrimSpace(method), PaymentMethodCash)
}
