package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"posdrawer/backend/internal/domain"
	"posdrawer/backend/internal/drawer"
)

// CurrentBalance folds the session ledger into the expected drawer amount.
// It has no side effects, so repeated calls without a new record agree.
func (s *Service) CurrentBalance(ctx context.Context, sessionID string) (domain.BalanceResponse, error) {
	session, txs, err := s.sessionLedger(ctx, sessionID)
	if err != nil {
		return domain.BalanceResponse{}, err
	}
	fold := drawer.CurrentBalance(session.OpeningBalance, txs)
	s.reportUnknown(fold.Unknown, zap.String("session_id", session.ID))

	outlet, err := s.settings.Get(ctx, session.OutletID)
	if err != nil {
		return domain.BalanceResponse{}, err
	}

	return domain.BalanceResponse{
		SessionID: session.ID,
		Balance:   fold.Balance,
		Currency:  outlet.CurrencyCode,
		AsOf:      s.now(),
	}, nil
}

func (s *Service) Aggregates(ctx context.Context, sessionID string) (domain.AggregatesResponse, error) {
	session, txs, err := s.sessionLedger(ctx, sessionID)
	if err != nil {
		return domain.AggregatesResponse{}, err
	}
	s.reportUnknown(drawer.UnknownEntries(txs), zap.String("session_id", session.ID))

	return domain.AggregatesResponse{
		SessionID:  session.ID,
		OutletID:   session.OutletID,
		Aggregates: drawer.Summarize(txs, s.todayWindow()),
	}, nil
}

// OutletAggregates summarises every session of an outlet inside [from, to).
// Cash sales are counted over the same range, or over today when no range
// is given.
func (s *Service) OutletAggregates(ctx context.Context, outletID int64, from time.Time, to time.Time) (domain.AggregatesResponse, error) {
	txs, err := s.ListOutletTransactions(ctx, domain.TransactionFilter{OutletID: outletID, From: from, To: to})
	if err != nil {
		return domain.AggregatesResponse{}, err
	}
	s.reportUnknown(drawer.UnknownEntries(txs), zap.Int64("outlet_id", outletID))

	salesWindow := s.todayWindow()
	if !from.IsZero() || !to.IsZero() {
		salesWindow = drawer.Window{From: from, To: to}
	}
	return domain.AggregatesResponse{
		OutletID:   outletID,
		Aggregates: drawer.Summarize(txs, salesWindow),
	}, nil
}

// Reconcile compares a count against the current expected balance without
// touching the session. Only CloseSession persists a variance.
func (s *Service) Reconcile(ctx context.Context, sessionID string, req domain.ReconcileRequest) (domain.Reconciliation, error) {
	if err := validateStruct(req); err != nil {
		return domain.Reconciliation{}, err
	}

	session, txs, err := s.sessionLedger(ctx, sessionID)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	fold := drawer.CurrentBalance(session.OpeningBalance, txs)
	s.reportUnknown(fold.Unknown, zap.String("session_id", session.ID))

	outlet, err := s.settings.Get(ctx, session.OutletID)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	return drawer.Reconcile(fold.Balance, req.CountedAmount, outlet.MinorUnits), nil
}

func (s *Service) sessionLedger(ctx context.Context, sessionID string) (*domain.Session, []domain.Transaction, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, session.ID)
	if err != nil {
		return nil, nil, authorityErr("list transactions", err)
	}
	return session, txs, nil
}

func (s *Service) todayWindow() drawer.Window {
	return drawer.DayWindow(s.now(), s.reportLoc)
}
