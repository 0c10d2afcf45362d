package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionStatusOpen   SessionStatus = "OPEN"
	SessionStatusClosed SessionStatus = "CLOSED"
)

// Session is one cashier shift at an outlet. CLOSED is terminal.
type Session struct {
	ID              string           `json:"id"`
	CashierID       int64            `json:"cashier_id"`
	OutletID        int64            `json:"outlet_id"`
	Status          SessionStatus    `json:"status"`
	OpeningBalance  decimal.Decimal  `json:"opening_balance"`
	ClosingBalance  *decimal.Decimal `json:"closing_balance,omitempty"`
	ExpectedBalance *decimal.Decimal `json:"expected_balance,omitempty"`
	Variance        *decimal.Decimal `json:"variance,omitempty"`
	OpeningTime     time.Time        `json:"opening_time"`
	ClosingTime     *time.Time       `json:"closing_time,omitempty"`
	Notes           string           `json:"notes,omitempty"`
}

func (s Session) IsOpen() bool {
	return s.Status == SessionStatusOpen
}

// Transaction is an immutable ledger entry. Its signed effect on the drawer
// is always derived, never stored.
type Transaction struct {
	ID              string           `json:"id"`
	SessionID       string           `json:"session_id"`
	OutletID        int64            `json:"outlet_id"`
	Type            TransactionType  `json:"transaction_type"`
	Amount          decimal.Decimal  `json:"amount"`
	AmountIn        *decimal.Decimal `json:"amount_in,omitempty"`
	AmountOut       *decimal.Decimal `json:"amount_out,omitempty"`
	PaymentMethod   string           `json:"payment_method,omitempty"`
	Description     string           `json:"description"`
	ReferenceNumber string           `json:"reference_number,omitempty"`
	TransactionDate time.Time        `json:"transaction_date"`
	CreatedBy       string           `json:"created_by,omitempty"`
}

// TransactionFilter selects ledger entries across sessions of one outlet.
// Zero From/To leave that side of the range open.
type TransactionFilter struct {
	OutletID int64
	From     time.Time
	To       time.Time
}

type OutletSettings struct {
	OutletID       int64  `json:"outlet_id"`
	CurrencyCode   string `json:"currency_code"`
	CurrencySymbol string `json:"currency_symbol"`
	MinorUnits     int32  `json:"minor_units"`
}

type SessionStartRequest struct {
	CashierID      int64           `json:"cashier_id" validate:"gt=0"`
	OutletID       int64           `json:"outlet_id" validate:"gt=0"`
	OpeningBalance decimal.Decimal `json:"opening_balance" validate:"dgte0"`
}

type SessionCloseRequest struct {
	CountedClosingBalance decimal.Decimal `json:"counted_closing_balance" validate:"dgte0"`
	Notes                 string          `json:"notes" validate:"max=1000"`
}

type SessionResponse struct {
	Session Session `json:"session"`
}

type SessionCloseResponse struct {
	Session        Session        `json:"session"`
	Reconciliation Reconciliation `json:"reconciliation"`
}

type TransactionCreateRequest struct {
	Type            TransactionType  `json:"transaction_type" validate:"required"`
	Amount          decimal.Decimal  `json:"amount" validate:"dgte0"`
	AmountIn        *decimal.Decimal `json:"amount_in,omitempty" validate:"omitempty,dgte0"`
	AmountOut       *decimal.Decimal `json:"amount_out,omitempty" validate:"omitempty,dgte0"`
	PaymentMethod   string           `json:"payment_method,omitempty" validate:"max=40"`
	Description     string           `json:"description" validate:"max=500"`
	ReferenceNumber string           `json:"reference_number,omitempty" validate:"max=100"`
	TransactionDate *time.Time       `json:"transaction_date,omitempty"`
}

type TransactionResponse struct {
	Transaction Transaction `json:"transaction"`
}

type TransactionListResponse struct {
	Transactions []Transaction `json:"transactions"`
}

type ReconcileRequest struct {
	CountedAmount decimal.Decimal `json:"counted_amount" validate:"dgte0"`
}

type VarianceStatus string

const (
	VarianceBalanced VarianceStatus = "balanced"
	VarianceOver     VarianceStatus = "over"
	VarianceShort    VarianceStatus = "short"
)

type Reconciliation struct {
	Expected decimal.Decimal `json:"expected"`
	Counted  decimal.Decimal `json:"counted"`
	Variance decimal.Decimal `json:"variance"`
	Status   VarianceStatus  `json:"status"`
}

// Clean reports a close whose count matched the expected balance.
func (r Reconciliation) Clean() bool {
	return r.Status == VarianceBalanced
}

type Aggregates struct {
	CashIn         decimal.Decimal `json:"cash_in"`
	CashOut        decimal.Decimal `json:"cash_out"`
	NetCashFlow    decimal.Decimal `json:"net_cash_flow"`
	TodaysCashSale decimal.Decimal `json:"todays_cash_sale"`
}

type BalanceResponse struct {
	SessionID string          `json:"session_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	AsOf      time.Time       `json:"as_of"`
}

type AggregatesResponse struct {
	SessionID  string     `json:"session_id,omitempty"`
	OutletID   int64      `json:"outlet_id,omitempty"`
	Aggregates Aggregates `json:"aggregates"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type CashierCreateRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	CashierID int64  `json:"cashier_id"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CashierID int64     `json:"cashier_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Actor struct {
	Username  string
	Role      string
	CashierID int64
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	CashierID int64
	Active    bool
	CreatedAt time.Time
}

const (
	RoleCashier = "cashier"
	RoleManager = "manager"
)
