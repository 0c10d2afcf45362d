package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"posdrawer/backend/internal/domain"
)

// Stores report failures with the domain taxonomy so callers can match them
// with errors.Is regardless of the backend.
var (
	ErrNotFound      = domain.ErrNotFound
	ErrSessionOpen   = domain.ErrSessionAlreadyOpen
	ErrSessionClosed = domain.ErrSessionClosed
	ErrInvalidInput  = errors.New("invalid input")
	ErrUserExists    = errors.New("user already exists")
	ErrLedgerMoved   = fmt.Errorf("%w: ledger changed while the session was being closed", domain.ErrConflict)
)

// CloseFields are written to a session exactly once, in the same atomic step
// that flips it to CLOSED. LedgerLen is the number of entries ExpectedBalance
// was folded from; when it is set and the ledger has grown since, the close
// fails with ErrLedgerMoved.
type CloseFields struct {
	LedgerLen       int
	ClosingBalance  decimal.Decimal
	ExpectedBalance decimal.Decimal
	Variance        decimal.Decimal
	Notes           string
	ClosedAt        time.Time
}

// Repository is the authority for sessions and their ledgers. Implementations
// must guarantee at most one OPEN session per cashier and outlet, a single
// successful close per session, and that appends to a CLOSED session fail.
type Repository interface {
	OpenSession(ctx context.Context, session domain.Session, opening domain.Transaction) (*domain.Session, error)
	CloseSession(ctx context.Context, sessionID string, fields CloseFields, closing domain.Transaction) (*domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetActiveSession(ctx context.Context, cashierID int64, outletID int64) (*domain.Session, error)
	AppendTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, sessionID string) ([]domain.Transaction, error)
	ListOutletTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	GetOutletSettings(ctx context.Context, outletID int64) (*domain.OutletSettings, error)
	UpsertOutletSettings(ctx context.Context, settings domain.OutletSettings) (*domain.OutletSettings, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	Ping(ctx context.Context) error
}
