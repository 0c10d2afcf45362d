package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"posdrawer/backend/internal/domain"
	"posdrawer/backend/internal/drawer"
	"posdrawer/backend/internal/metrics"
	"posdrawer/backend/internal/store"
)

// StartSession opens a shift and records its OPENING_BALANCE entry in the
// same authority write.
func (s *Service) StartSession(ctx context.Context, req domain.SessionStartRequest) (domain.Session, error) {
	if err := validateStruct(req); err != nil {
		return domain.Session{}, err
	}

	now := s.now()
	session := domain.Session{
		CashierID:      req.CashierID,
		OutletID:       req.OutletID,
		Status:         domain.SessionStatusOpen,
		OpeningBalance: req.OpeningBalance,
		OpeningTime:    now,
	}
	opening := domain.Transaction{
		Type:            domain.TxOpeningBalance,
		Amount:          req.OpeningBalance,
		PaymentMethod:   domain.PaymentMethodCash,
		Description:     "Opening balance",
		TransactionDate: now,
		CreatedBy:       actorName(ctx),
	}

	saved, err := s.repo.OpenSession(ctx, session, opening)
	if err != nil {
		if errors.Is(err, store.ErrSessionOpen) {
			metrics.SessionOpenConflicts.Inc()
		}
		return domain.Session{}, authorityErr("open session", err)
	}

	metrics.SessionsOpened.Inc()
	s.logAudit(ctx, "session_open", "session", saved.ID,
		zap.Int64("cashier_id", saved.CashierID),
		zap.Int64("outlet_id", saved.OutletID),
		zap.String("opening_balance", saved.OpeningBalance.String()))
	return *saved, nil
}

// closeAttempts bounds how often a close refolds after the ledger moved
// underneath it.
const closeAttempts = 2

// CloseSession computes the expected drawer from the ledger, reconciles it
// against the counted cash and closes the session. The authority rejects the
// close when another caller already closed it, so the first close's figures
// are never overwritten. An entry appended between the fold and the close
// fails that attempt and the ledger is folded again.
func (s *Service) CloseSession(ctx context.Context, sessionID string, req domain.SessionCloseRequest) (domain.SessionCloseResponse, error) {
	if err := validateStruct(req); err != nil {
		return domain.SessionCloseResponse{}, err
	}

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return domain.SessionCloseResponse{}, err
	}
	if !session.IsOpen() {
		return domain.SessionCloseResponse{}, domain.ErrSessionClosed
	}

	var (
		closed *domain.Session
		rec    domain.Reconciliation
	)
	for attempt := 1; ; attempt++ {
		closed, rec, err = s.closeAtLedger(ctx, session, req)
		if errors.Is(err, store.ErrLedgerMoved) && attempt < closeAttempts {
			s.logger.Info("ledger moved during close, folding again",
				zap.String("session_id", session.ID), zap.Int("attempt", attempt))
			continue
		}
		break
	}
	if err != nil {
		return domain.SessionCloseResponse{}, authorityErr("close session", err)
	}

	metrics.SessionsClosed.WithLabelValues(string(rec.Status)).Inc()
	metrics.CloseVarianceAbs.Observe(rec.Variance.Abs().InexactFloat64())
	s.logAudit(ctx, "session_close", "session", closed.ID,
		zap.String("expected", rec.Expected.String()),
		zap.String("counted", rec.Counted.String()),
		zap.String("variance", rec.Variance.String()),
		zap.String("status", string(rec.Status)))

	return domain.SessionCloseResponse{Session: *closed, Reconciliation: rec}, nil
}

// closeAtLedger folds the ledger as it stands now and asks the authority to
// close only if no entry was added since.
func (s *Service) closeAtLedger(ctx context.Context, session *domain.Session, req domain.SessionCloseRequest) (*domain.Session, domain.Reconciliation, error) {
	txs, err := s.repo.ListTransactions(ctx, session.ID)
	if err != nil {
		return nil, domain.Reconciliation{}, err
	}
	fold := drawer.CurrentBalance(session.OpeningBalance, txs)
	s.reportUnknown(fold.Unknown, zap.String("session_id", session.ID))

	outlet, err := s.settings.Get(ctx, session.OutletID)
	if err != nil {
		return nil, domain.Reconciliation{}, err
	}
	rec := drawer.Reconcile(fold.Balance, req.CountedClosingBalance, outlet.MinorUnits)

	now := s.now()
	closing := domain.Transaction{
		Type:            domain.TxClosingBalance,
		Amount:          req.CountedClosingBalance,
		PaymentMethod:   domain.PaymentMethodCash,
		Description:     "Closing balance",
		TransactionDate: now,
		CreatedBy:       actorName(ctx),
	}
	closed, err := s.repo.CloseSession(ctx, session.ID, store.CloseFields{
		LedgerLen:       len(txs),
		ClosingBalance:  req.CountedClosingBalance,
		ExpectedBalance: rec.Expected,
		Variance:        rec.Variance,
		Notes:           strings.TrimSpace(req.Notes),
		ClosedAt:        now,
	}, closing)
	if err != nil {
		return nil, domain.Reconciliation{}, err
	}
	return closed, rec, nil
}

func (s *Service) GetActiveSession(ctx context.Context, cashierID int64, outletID int64) (domain.Session, error) {
	if cashierID <= 0 {
		return domain.Session{}, domain.Invalid("cashier_id", "must be greater than zero")
	}
	if outletID <= 0 {
		return domain.Session{}, domain.Invalid("outlet_id", "must be greater than zero")
	}

	session, err := s.repo.GetActiveSession(ctx, cashierID, outletID)
	if err != nil {
		return domain.Session{}, authorityErr("get active session", err)
	}
	return *session, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return *session, nil
}

func (s *Service) getSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.Invalid("session_id", "is required")
	}
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, authorityErr("get session", err)
	}
	return session, nil
}
