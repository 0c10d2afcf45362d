package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"posdrawer/backend/internal/domain"
	"posdrawer/backend/internal/service"
	"posdrawer/backend/internal/store/memory"
)

// newTestAPI builds a full API with the seeded in-memory store, a real
// AuthManager and a real Service so handler tests exercise the complete
// request path.
func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	t.Setenv("SEED_MANAGER_PASSWORD", "manager-pass")
	t.Setenv("SEED_CASHIER_PASSWORD", "cashier-pass")

	repo := memory.NewSeeded(zap.NewNop())
	svc := service.New(repo, nil, zap.NewNop())
	auth := NewAuthManager(context.Background(), "test-secret-key", time.Hour, repo, nil)
	return New(svc, auth, "*", zap.NewNop()).Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "manager",
		"password": "wrongpassword",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, codeUnauthorized, decodeBody[errorBody](t, rec).Code)
}

func TestHandleLoginRateLimit(t *testing.T) {
	handler := newTestAPI(t)
	payload, _ := json.Marshal(map[string]string{"username": "manager", "password": "badpass"})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}

func TestSessionRoutesRequireAuth(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sessions", "", map[string]any{"outlet_id": 1})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sessions/active?outlet_id=1", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCashierShiftOverHTTP(t *testing.T) {
	handler := newTestAPI(t)
	token := login(t, handler, "cashier", "cashier-pass")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sessions", token, map[string]any{
		"outlet_id":       1,
		"opening_balance": "100.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decodeBody[domain.SessionResponse](t, rec).Session
	assert.Equal(t, int64(1), session.CashierID)
	assert.Equal(t, domain.SessionStatusOpen, session.Status)

	base := "/api/v1/sessions/" + session.ID
	for _, body := range []map[string]any{
		{"transaction_type": "CASH_IN", "amount": "50", "description": "float top-up"},
		{"transaction_type": "SALE", "amount": "30", "payment_method": "cash"},
		{"transaction_type": "SALE", "amount": "99", "payment_method": "card"},
		{"transaction_type": "EXPENSE", "amount": "20", "description": "cleaning supplies"},
	} {
		rec = doJSON(t, handler, http.MethodPost, base+"/transactions", token, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, base+"/balance", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decodeBody[domain.BalanceResponse](t, rec)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(160)), balance.Balance.String())
	assert.Equal(t, "USD", balance.Currency)

	rec = doJSON(t, handler, http.MethodGet, base+"/aggregates", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	aggregates := decodeBody[domain.AggregatesResponse](t, rec).Aggregates
	assert.True(t, aggregates.CashIn.Equal(decimal.NewFromInt(80)))
	assert.True(t, aggregates.CashOut.Equal(decimal.NewFromInt(20)))
	assert.True(t, aggregates.TodaysCashSale.Equal(decimal.NewFromInt(30)))

	rec = doJSON(t, handler, http.MethodPost, base+"/reconcile", token, map[string]any{"counted_amount": "150"})
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decodeBody[struct {
		Reconciliation domain.Reconciliation `json:"reconciliation"`
	}](t, rec).Reconciliation
	assert.Equal(t, domain.VarianceShort, preview.Status)

	rec = doJSON(t, handler, http.MethodPost, base+"/close", token, map[string]any{
		"counted_closing_balance": "165.00",
		"notes":                   "extra coins in drawer",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decodeBody[domain.SessionCloseResponse](t, rec)
	assert.Equal(t, domain.SessionStatusClosed, closed.Session.Status)
	assert.True(t, closed.Reconciliation.Variance.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, domain.VarianceOver, closed.Reconciliation.Status)

	rec = doJSON(t, handler, http.MethodPost, base+"/transactions", token, map[string]any{
		"transaction_type": "CASH_IN", "amount": "1", "description": "late",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeInvalidState, decodeBody[errorBody](t, rec).Code)

	rec = doJSON(t, handler, http.MethodGet, base+"/transactions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ledger := decodeBody[domain.TransactionListResponse](t, rec).Transactions
	require.Len(t, ledger, 6)
	assert.Equal(t, domain.TxOpeningBalance, ledger[0].Type)
	assert.Equal(t, domain.TxClosingBalance, ledger[5].Type)
}

func TestStartSessionConflictAndValidation(t *testing.T) {
	handler := newTestAPI(t)
	token := login(t, handler, "cashier", "cashier-pass")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sessions", token, map[string]any{
		"outlet_id": 1, "opening_balance": "-1",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, codeValidation, body.Code)
	assert.Equal(t, "opening_balance", body.Field)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sessions", token, map[string]any{
		"outlet_id": 1, "opening_balance": "10", "terminal": "T1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sessions", token, map[string]any{"outlet_id": 1, "opening_balance": "10"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sessions", token, map[string]any{"outlet_id": 1, "opening_balance": "10"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeConflict, decodeBody[errorBody](t, rec).Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sessions/active?outlet_id=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sessions/active?outlet_id=2", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCashierCannotTouchAnotherCashiersSession(t *testing.T) {
	handler := newTestAPI(t)
	managerToken := login(t, handler, "manager", "manager-pass")
	cashierToken := login(t, handler, "cashier", "cashier-pass")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sessions", cashierToken, map[string]any{
		"cashier_id": 2, "outlet_id": 1, "opening_balance": "10",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sessions", managerToken, map[string]any{
		"cashier_id": 2, "outlet_id": 1, "opening_balance": "10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decodeBody[domain.SessionResponse](t, rec).Session

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sessions/"+session.ID+"/balance", cashierToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sessions/"+session.ID+"/balance", managerToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sessions/missing", managerToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManagerRoutes(t *testing.T) {
	handler := newTestAPI(t)
	managerToken := login(t, handler, "manager", "manager-pass")
	cashierToken := login(t, handler, "cashier", "cashier-pass")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/transactions?outlet_id=1", cashierToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sessions", cashierToken, map[string]any{"outlet_id": 1, "opening_balance": "25"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/transactions?outlet_id=1&from=2000-01-01", managerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[domain.TransactionListResponse](t, rec).Transactions, 1)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/transactions?outlet_id=1&from=yesterday", managerToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "from", decodeBody[errorBody](t, rec).Field)

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/outlets/1/settings", managerToken, map[string]any{
		"currency_code": "jpy", "currency_symbol": "¥", "minor_units": 0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/outlets/1/settings", cashierToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	settings := decodeBody[struct {
		Settings domain.OutletSettings `json:"settings"`
	}](t, rec).Settings
	assert.Equal(t, "JPY", settings.CurrencyCode)
	assert.Equal(t, int32(0), settings.MinorUnits)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/users/cashiers", managerToken, map[string]any{
		"username": "clerk02", "password": "secret99", "cashier_id": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/users/cashiers", managerToken, map[string]any{
		"username": "clerk02", "password": "secret99", "cashier_id": 2,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/users/cashiers", managerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cashiers := decodeBody[struct {
		Cashiers []domain.CashierUser `json:"cashiers"`
	}](t, rec).Cashiers
	assert.Len(t, cashiers, 2)

	newToken := login(t, handler, "clerk02", "secret99")
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sessions", newToken, map[string]any{"outlet_id": 1, "opening_balance": "0"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(2), decodeBody[domain.SessionResponse](t, rec).Session.CashierID)
}

func TestStatusForMapsTaxonomy(t *testing.T) {
	cases := map[error]int{
		domain.Invalid("amount", "bad"):            http.StatusUnprocessableEntity,
		domain.ErrSessionAlreadyOpen:               http.StatusConflict,
		domain.ErrSessionClosed:                    http.StatusConflict,
		domain.ErrSessionNotFound:                  http.StatusNotFound,
		domain.Transient(context.DeadlineExceeded): http.StatusServiceUnavailable,
		context.Canceled:                           http.StatusServiceUnavailable,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
