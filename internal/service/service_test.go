package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"posdrawer/backend/internal/domain"
	"posdrawer/backend/internal/store"
	"posdrawer/backend/internal/store/memory"
)

var fixedNow = time.Date(2026, 4, 2, 14, 30, 0, 0, time.UTC)

func newTestService() *Service {
	return New(memory.NewSeeded(nil), nil, nil, WithClock(func() time.Time { return fixedNow }))
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier, CashierID: 1})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func startFixture(t *testing.T, svc *Service, opening string) domain.Session {
	t.Helper()
	session, err := svc.StartSession(cashierCtx(), domain.SessionStartRequest{
		CashierID:      1,
		OutletID:       1,
		OpeningBalance: dec(opening),
	})
	require.NoError(t, err)
	return session
}

func record(t *testing.T, svc *Service, sessionID string, req domain.TransactionCreateRequest) domain.Transaction {
	t.Helper()
	tx, err := svc.RecordTransaction(cashierCtx(), sessionID, req)
	require.NoError(t, err)
	return tx
}

// spyRepo counts authority writes and can inject failures.
type spyRepo struct {
	store.Repository
	appends int
	failGet error
}

func (r *spyRepo) AppendTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	r.appends++
	return r.Repository.AppendTransaction(ctx, tx)
}

func (r *spyRepo) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	if r.failGet != nil {
		return nil, r.failGet
	}
	return r.Repository.GetSession(ctx, id)
}

func TestStartSessionRecordsOpeningBalance(t *testing.T) {
	svc := newTestService()
	session := startFixture(t, svc, "100")

	assert.Equal(t, domain.SessionStatusOpen, session.Status)
	assert.True(t, session.OpeningTime.Equal(fixedNow))

	txs, err := svc.ListTransactions(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TxOpeningBalance, txs[0].Type)
	assert.True(t, txs[0].Amount.Equal(dec("100")))
	assert.Equal(t, "cashier", txs[0].CreatedBy)

	balance, err := svc.CurrentBalance(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(dec("100")), "opening balance counted twice: %s", balance.Balance)
	assert.Equal(t, "USD", balance.Currency)
}

func TestStartSessionValidation(t *testing.T) {
	svc := newTestService()

	_, err := svc.StartSession(context.Background(), domain.SessionStartRequest{CashierID: 1, OutletID: 1, OpeningBalance: dec("-1")})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "opening_balance", ve.Field)

	_, err = svc.StartSession(context.Background(), domain.SessionStartRequest{CashierID: 0, OutletID: 1})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "cashier_id", ve.Field)
}

func TestMoneyRuleRejectsNegativeAmounts(t *testing.T) {
	var v interface{ Var(any, string) error }
	require.NotPanics(t, func() { v = newValidator() })

	assert.Error(t, v.Var(dec("-0.01"), "dgte0"))
	assert.NoError(t, v.Var(dec("0"), "dgte0"))
	assert.NoError(t, v.Var(dec("12.50"), "dgte0"))
}

func TestStartSessionConflictsWhileOpen(t *testing.T) {
	svc := newTestService()
	startFixture(t, svc, "100")

	_, err := svc.StartSession(cashierCtx(), domain.SessionStartRequest{CashierID: 1, OutletID: 1, OpeningBalance: dec("50")})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	_, err = svc.StartSession(cashierCtx(), domain.SessionStartRequest{CashierID: 1, OutletID: 2, OpeningBalance: dec("50")})
	assert.NoError(t, err)
}

func TestShiftEndToEnd(t *testing.T) {
	svc := newTestService()
	session := startFixture(t, svc, "200")

	record(t, svc, session.ID, domain.TransactionCreateRequest{Type: "CASH_IN", Amount: dec("50"), Description: "float top-up"})
	record(t, svc, session.ID, domain.TransactionCreateRequest{Type: "CASH_OUT", Amount: dec("30"), Description: "bank drop"})
	record(t, svc, session.ID, domain.TransactionCreateRequest{Type: "SALE", Amount: dec("75"), PaymentMethod: "Cash"})
	record(t, svc, session.ID, domain.TransactionCreateRequest{Type: "SALE", Amount: dec("400"), PaymentMethod: "card"})

	balance, err := svc.CurrentBalance(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(dec("295")), "balance %s", balance.Balance)

	again, err := svc.CurrentBalance(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(again.Balance))

	agg, err := svc.Aggregates(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, agg.Aggregates.CashIn.Equal(dec("125")))
	assert.True(t, agg.Aggregates.CashOut.Equal(dec("30")))
	assert.True(t, agg.Aggregates.NetCashFlow.Equal(dec("95")))
	assert.True(t, agg.Aggregates.TodaysCashSale.Equal(dec("75")))

	closed, err := svc.CloseSession(cashierCtx(), session.ID, domain.SessionCloseRequest{CountedClosingBalance: dec("290"), Notes: " five short "})
	require.NoError(t, err)
	assert.True(t, closed.Reconciliation.Variance.Equal(dec("-5")))
	assert.Equal(t, domain.VarianceShort, closed.Reconciliation.Status)
	assert.Equal(t, domain.SessionStatusClosed, closed.Session.Status)
	require.NotNil(t, closed.Session.Variance)
	assert.True(t, closed.Session.Variance.Equal(dec("-5")))
	assert.Equal(t, "five short", closed.Session.Notes)

	after, err := svc.CurrentBalance(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, after.Balance.Equal(dec("295")), "closing entry moved the balance: %s", after.Balance)
}

func TestCloseIsTerminal(t *testing.T) {
	svc := newTestService()
	session := startFixture(t, svc, "100")

	_, err := svc.CloseSession(cashierCtx(), session.ID, domain.SessionCloseRequest{CountedClosingBalance: dec("100")})
	require.NoError(t, err)

	_, err = svc.CloseSession(cashierCtx(), session.ID, domain.SessionCloseRequest{CountedClosingBalance: dec("1")})
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	reloaded, err := svc.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.ClosingBalance.Equal(dec("100")))

	_, err = svc.RecordTransaction(cashierCtx(), session.ID, domain.TransactionCreateRequest{Type: "SALE", Amount: dec("10"), PaymentMethod: "cash"})
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	_, err = svc.GetActiveSession(context.Background(), 1, 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

// laggingRepo lets another terminal post an entry right after the close has
// read the ledger.
type laggingRepo struct {
	store.Repository
	lateEntries int
	lateAmount  decimal.Decimal
	lists       int
}

func (r *laggingRepo) ListTransactions(ctx context.Context, sessionID string) ([]domain.Transaction, error) {
	txs, err := r.Repository.ListTransactions(ctx, sessionID)
	r.lists++
	if err == nil && r.lateEntries > 0 {
		r.lateEntries--
		_, appendErr := r.Repository.AppendTransaction(ctx, domain.Transaction{
			SessionID:     sessionID,
			Type:          domain.TxSale,
			Amount:        r.lateAmount,
			PaymentMethod: domain.PaymentMethodCash,
		})
		if appendErr != nil {
			return nil, appendErr
		}
	}
	return txs, err
}

func TestCloseFoldsEntryPostedDuringClose(t *testing.T) {
	repo := &laggingRepo{Repository: memory.NewSeeded(nil)}
	svc := New(repo, nil, nil, WithClock(func() time.Time { return fixedNow }))
	session := startFixture(t, svc, "200")

	repo.lateEntries = 1
	repo.lateAmount = dec("75")
	closed, err := svc.CloseSession(cashierCtx(), session.ID, domain.SessionCloseRequest{CountedClosingBalance: dec("275")})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.lists)

	assert.True(t, closed.Reconciliation.Expected.Equal(dec("275")), "expected %s", closed.Reconciliation.Expected)
	assert.Equal(t, domain.VarianceBalanced, closed.Reconciliation.Status)
	require.NotNil(t, closed.Session.ExpectedBalance)
	assert.True(t, closed.Session.ExpectedBalance.Equal(dec("275")))
	require.NotNil(t, closed.Session.Variance)
	assert.True(t, closed.Session.Variance.IsZero())

	ledger, err := svc.ListTransactions(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Len(t, ledger, 3)
}

func TestCloseGivesUpWhenLedgerKeepsMoving(t *testing.T) {
	repo := &laggingRepo{Repository: memory.NewSeeded(nil)}
	svc := New(repo, nil, nil, WithClock(func() time.Time { return fixedNow }))
	session := startFixture(t, svc, "200")

	repo.lateEntries = closeAttempts
	repo.lateAmount = dec("5")
	_, err := svc.CloseSession(cashierCtx(), session.ID, domain.SessionCloseRequest{CountedClosingBalance: dec("210")})
	assert.True(t, errors.Is(err, domain.ErrConflict), err)
	assert.False(t, errors.Is(err, domain.ErrTransient))

	reloaded, err := svc.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusOpen, reloaded.Status)

	closed, err := svc.CloseSession(cashierCtx(), session.ID, domain.SessionCloseRequest{CountedClosingBalance: dec("210")})
	require.NoError(t, err)
	assert.Equal(t, domain.VarianceBalanced, closed.Reconciliation.Status)
}

func TestCloseUnknownSession(t *testing.T) {
	svc := newTestService()
	_, err := svc.CloseSession(cashierCtx(), "missing", domain.SessionCloseRequest{CountedClosingBalance: dec("1")})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRecordValidationNeverReachesAuthority(t *testing.T) {
	repo := &spyRepo{Repository: memory.NewSeeded(nil)}
	svc := New(repo, nil, nil)
	session := startFixture(t, svc, "100")

	cases := []struct {
		name  string
		req   domain.TransactionCreateRequest
		field string
	}{
		{"unknown type", domain.TransactionCreateRequest{Type: "VOID", Amount: dec("1")}, "transaction_type"},
		{"lifecycle type", domain.TransactionCreateRequest{Type: "OPENING_BALANCE", Amount: dec("1")}, "transaction_type"},
		{"negative amount", domain.TransactionCreateRequest{Type: "SALE", Amount: dec("-1")}, "amount"},
		{"zero cash in", domain.TransactionCreateRequest{Type: "CASH_IN", Amount: dec("0"), Description: "x"}, "amount"},
		{"blank description", domain.TransactionCreateRequest{Type: "EXPENSE", Amount: dec("5"), Description: "   "}, "description"},
		{"negative split", domain.TransactionCreateRequest{Type: "SALE", Amount: dec("5"), AmountOut: decPtr("-2")}, "amount_out"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordTransaction(cashierCtx(), session.ID, tc.req)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
	assert.Zero(t, repo.appends)
}

func decPtr(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

func TestRecordNormalisesInput(t *testing.T) {
	svc := newTestService()
	session := startFixture(t, svc, "0")

	tx := record(t, svc, session.ID, domain.TransactionCreateRequest{
		Type:            "expense",
		Amount:          dec("20"),
		PaymentMethod:   " CASH ",
		Description:     " ice ",
		ReferenceNumber: " R-1 ",
	})
	assert.Equal(t, domain.TxExpense, tx.Type)
	assert.Equal(t, "cash", tx.PaymentMethod)
	assert.Equal(t, "ice", tx.Description)
	assert.Equal(t, "R-1", tx.ReferenceNumber)
	assert.True(t, tx.TransactionDate.Equal(fixedNow))

	balance, err := svc.CurrentBalance(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(dec("-20")))
}

func TestRecordUnknownSession(t *testing.T) {
	svc := newTestService()
	_, err := svc.RecordTransaction(cashierCtx(), "nope", domain.TransactionCreateRequest{Type: "SALE", Amount: dec("1")})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestReconcileDoesNotChangeState(t *testing.T) {
	svc := newTestService()
	session := startFixture(t, svc, "137.50")

	rec, err := svc.Reconcile(context.Background(), session.ID, domain.ReconcileRequest{CountedAmount: dec("137.50")})
	require.NoError(t, err)
	assert.True(t, rec.Variance.IsZero())
	assert.True(t, rec.Clean())

	reloaded, err := svc.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsOpen())
	assert.Nil(t, reloaded.Variance)
}

func TestReconcileUsesOutletMinorUnits(t *testing.T) {
	repo := memory.NewSeeded(nil)
	svc := New(repo, nil, nil)
	_, err := svc.UpdateOutletSettings(context.Background(), domain.OutletSettings{OutletID: 1, CurrencyCode: "IDR", CurrencySymbol: "Rp", MinorUnits: 0})
	require.NoError(t, err)

	session := startFixture(t, svc, "15000")
	rec, err := svc.Reconcile(context.Background(), session.ID, domain.ReconcileRequest{CountedAmount: dec("15000.4")})
	require.NoError(t, err)
	assert.Equal(t, domain.VarianceBalanced, rec.Status)
}

func TestAuthorityFailureIsTransient(t *testing.T) {
	repo := &spyRepo{Repository: memory.NewSeeded(nil), failGet: errors.New("connection reset by peer")}
	svc := New(repo, nil, nil)

	_, err := svc.CurrentBalance(context.Background(), "any")
	assert.True(t, errors.Is(err, domain.ErrTransient))

	repo.failGet = context.Canceled
	_, err = svc.CurrentBalance(context.Background(), "any")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, domain.ErrTransient))
}

func TestOutletTransactionsAndAggregates(t *testing.T) {
	svc := newTestService()
	session := startFixture(t, svc, "10")
	yesterday := fixedNow.AddDate(0, 0, -1)
	record(t, svc, session.ID, domain.TransactionCreateRequest{Type: "SALE", Amount: dec("12"), PaymentMethod: "cash", TransactionDate: &yesterday})
	record(t, svc, session.ID, domain.TransactionCreateRequest{Type: "SALE", Amount: dec("8"), PaymentMethod: "cash"})

	all, err := svc.ListOutletTransactions(context.Background(), domain.TransactionFilter{OutletID: 1})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	agg, err := svc.OutletAggregates(context.Background(), 1, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.True(t, agg.Aggregates.CashIn.Equal(dec("20")))
	assert.True(t, agg.Aggregates.TodaysCashSale.Equal(dec("8")))

	_, err = svc.ListOutletTransactions(context.Background(), domain.TransactionFilter{OutletID: 1, From: fixedNow, To: yesterday})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestOutletAggregatesCountsCashSalesInRequestedRange(t *testing.T) {
	svc := newTestService()
	session := startFixture(t, svc, "10")
	lastWeek := fixedNow.AddDate(0, 0, -7)
	record(t, svc, session.ID, domain.TransactionCreateRequest{Type: "SALE", Amount: dec("12"), PaymentMethod: "cash", TransactionDate: &lastWeek})
	record(t, svc, session.ID, domain.TransactionCreateRequest{Type: "SALE", Amount: dec("8"), PaymentMethod: "cash"})

	from := lastWeek.Truncate(24 * time.Hour)
	agg, err := svc.OutletAggregates(context.Background(), 1, from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, agg.Aggregates.CashIn.Equal(dec("12")))
	assert.True(t, agg.Aggregates.TodaysCashSale.Equal(dec("12")), "cash sale %s", agg.Aggregates.TodaysCashSale)
}

func TestUnknownLedgerTypeDoesNotBreakBalance(t *testing.T) {
	repo := memory.NewSeeded(nil)
	svc := New(repo, nil, nil)
	session := startFixture(t, svc, "40")

	_, err := repo.AppendTransaction(context.Background(), domain.Transaction{SessionID: session.ID, Type: "LOYALTY_REDEEM", Amount: dec("9")})
	require.NoError(t, err)

	balance, err := svc.CurrentBalance(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(dec("40")))
}

func TestAggregatesReportUnknownLedgerTypes(t *testing.T) {
	repo := memory.NewSeeded(nil)
	core, logs := observer.New(zap.WarnLevel)
	svc := New(repo, nil, zap.New(core), WithClock(func() time.Time { return fixedNow }))
	session := startFixture(t, svc, "40")

	_, err := repo.AppendTransaction(context.Background(), domain.Transaction{SessionID: session.ID, Type: "LOYALTY_REDEEM", Amount: dec("9")})
	require.NoError(t, err)

	agg, err := svc.Aggregates(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, agg.Aggregates.CashIn.IsZero())

	_, err = svc.OutletAggregates(context.Background(), 1, time.Time{}, time.Time{})
	require.NoError(t, err)

	ignored := logs.FilterMessage("ledger entry with unknown transaction type ignored").All()
	require.Len(t, ignored, 2)
	assert.Equal(t, session.ID, ignored[0].ContextMap()["session_id"])
	assert.Equal(t, int64(1), ignored[1].ContextMap()["outlet_id"])
	assert.Equal(t, "LOYALTY_REDEEM", ignored[1].ContextMap()["transaction_type"])
}
