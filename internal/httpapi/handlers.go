package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"posdrawer/backend/internal/domain"
	"posdrawer/backend/internal/service"
)

const healthTimeout = 2 * time.Second

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := a.service.Ping(ctx); err != nil {
		a.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok": false,
			"at": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	switch {
	case errors.Is(err, errInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err)
		return
	case errors.Is(err, errInactiveAccount):
		writeError(w, http.StatusForbidden, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req domain.SessionStartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	actor, _ := service.ActorFromContext(r.Context())
	if actor.Role == domain.RoleCashier {
		if req.CashierID == 0 {
			req.CashierID = actor.CashierID
		}
		if req.CashierID != actor.CashierID {
			writeError(w, http.StatusForbidden, errors.New("cashiers can only open their own session"))
			return
		}
	}

	session, err := a.service.StartSession(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.SessionResponse{Session: session})
}

func (a *API) handleSessionActive(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	actor, _ := service.ActorFromContext(r.Context())

	cashierID := actor.CashierID
	if raw := query.Get("cashier_id"); raw != "" {
		parsed, err := parsePositiveID(raw, "cashier_id")
		if err != nil {
			writeServiceError(w, err)
			return
		}
		cashierID = parsed
	}
	if actor.Role == domain.RoleCashier && cashierID != actor.CashierID {
		writeError(w, http.StatusForbidden, errors.New("cashiers can only view their own session"))
		return
	}
	if cashierID <= 0 {
		writeServiceError(w, domain.Invalid("cashier_id", "is required"))
		return
	}
	outletID, err := parsePositiveID(query.Get("outlet_id"), "outlet_id")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	session, err := a.service.GetActiveSession(r.Context(), cashierID, outletID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SessionResponse{Session: session})
}

func (a *API) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SessionResponse{Session: session})
}

func (a *API) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	var req domain.SessionCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.CloseSession(r.Context(), chi.URLParam(r, "sessionID"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleTransactionRecord(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := a.service.RecordTransaction(r.Context(), chi.URLParam(r, "sessionID"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.TransactionResponse{Transaction: tx})
}

func (a *API) handleTransactionList(w http.ResponseWriter, r *http.Request) {
	txs, err := a.service.ListTransactions(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.TransactionListResponse{Transactions: txs})
}

func (a *API) handleBalance(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.CurrentBalance(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAggregates(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.Aggregates(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req domain.ReconcileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := a.service.Reconcile(r.Context(), chi.URLParam(r, "sessionID"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reconciliation": rec})
}

func (a *API) handleOutletTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := outletFilter(r, r.URL.Query().Get("outlet_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	txs, err := a.service.ListOutletTransactions(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.TransactionListResponse{Transactions: txs})
}

func (a *API) handleOutletAggregates(w http.ResponseWriter, r *http.Request) {
	filter, err := outletFilter(r, chi.URLParam(r, "outletID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp, err := a.service.OutletAggregates(r.Context(), filter.OutletID, filter.From, filter.To)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func outletFilter(r *http.Request, rawOutletID string) (domain.TransactionFilter, error) {
	outletID, err := parsePositiveID(rawOutletID, "outlet_id")
	if err != nil {
		return domain.TransactionFilter{}, err
	}
	from, err := parseTimeParam(r.URL.Query().Get("from"), "from")
	if err != nil {
		return domain.TransactionFilter{}, err
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"), "to")
	if err != nil {
		return domain.TransactionFilter{}, err
	}
	return domain.TransactionFilter{OutletID: outletID, From: from, To: to}, nil
}

func (a *API) handleOutletSettings(w http.ResponseWriter, r *http.Request) {
	outletID, err := parsePositiveID(chi.URLParam(r, "outletID"), "outlet_id")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	settings, err := a.service.OutletSettings(r.Context(), outletID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (a *API) handleOutletSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	outletID, err := parsePositiveID(chi.URLParam(r, "outletID"), "outlet_id")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req domain.OutletSettings
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.OutletID != 0 && req.OutletID != outletID {
		writeServiceError(w, domain.Invalid("outlet_id", "does not match the path"))
		return
	}
	req.OutletID = outletID

	settings, err := a.service.UpdateOutletSettings(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (a *API) handleCashierList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(r.Context())})
}

func (a *API) handleCashierCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cashier, err := a.auth.CreateCashier(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
}
