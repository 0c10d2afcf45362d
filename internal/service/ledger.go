package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"posdrawer/backend/internal/domain"
	"posdrawer/backend/internal/metrics"
	"posdrawer/backend/internal/store"
)

// RecordTransaction appends one entry to an open session's ledger. Every rule
// is checked before the authority is contacted; the authority itself rejects
// appends to a closed session, so a record never lands after a close.
func (s *Service) RecordTransaction(ctx context.Context, sessionID string, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	tx, err := s.buildTransaction(ctx, sessionID, req)
	if err != nil {
		return domain.Transaction{}, err
	}

	saved, err := s.repo.AppendTransaction(ctx, tx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Transaction{}, domain.ErrSessionNotFound
		}
		return domain.Transaction{}, authorityErr("append transaction", err)
	}

	metrics.TransactionsRecorded.WithLabelValues(string(saved.Type)).Inc()
	s.logAudit(ctx, "transaction_record", "transaction", saved.ID,
		zap.String("session_id", saved.SessionID),
		zap.String("transaction_type", string(saved.Type)),
		zap.String("amount", saved.Amount.String()),
		zap.String("payment_method", saved.PaymentMethod))
	return *saved, nil
}

func (s *Service) buildTransaction(ctx context.Context, sessionID string, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Transaction{}, domain.Invalid("session_id", "is required")
	}

	txType, known := domain.ParseTransactionType(string(req.Type))
	if strings.TrimSpace(string(req.Type)) == "" {
		return domain.Transaction{}, domain.Invalid("transaction_type", "is required")
	}
	if !known {
		return domain.Transaction{}, domain.Invalid("transaction_type", "is not a known transaction type")
	}
	if txType.LifecycleOnly() {
		return domain.Transaction{}, domain.Invalid("transaction_type", "is recorded by opening or closing the session")
	}
	req.Type = txType

	if err := validateStruct(req); err != nil {
		return domain.Transaction{}, err
	}

	req.Description = strings.TrimSpace(req.Description)
	if txType.ManualMovement() {
		if !req.Amount.IsPositive() {
			return domain.Transaction{}, domain.Invalid("amount", "must be greater than zero")
		}
		if req.Description == "" {
			return domain.Transaction{}, domain.Invalid("description", "is required for manual cash movements")
		}
	}

	date := s.now()
	if req.TransactionDate != nil && !req.TransactionDate.IsZero() {
		date = req.TransactionDate.UTC()
	}

	return domain.Transaction{
		SessionID:       sessionID,
		Type:            txType,
		Amount:          req.Amount,
		AmountIn:        req.AmountIn,
		AmountOut:       req.AmountOut,
		PaymentMethod:   strings.ToLower(strings.TrimSpace(req.PaymentMethod)),
		Description:     req.Description,
		ReferenceNumber: strings.TrimSpace(req.ReferenceNumber),
		TransactionDate: date,
		CreatedBy:       actorName(ctx),
	}, nil
}

// ListTransactions returns a session's ledger in the order the authority
// persisted it.
func (s *Service) ListTransactions(ctx context.Context, sessionID string) ([]domain.Transaction, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, session.ID)
	if err != nil {
		return nil, authorityErr("list transactions", err)
	}
	return txs, nil
}

func (s *Service) ListOutletTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	if filter.OutletID <= 0 {
		return nil, domain.Invalid("outlet_id", "must be greater than zero")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, domain.Invalid("from", "must be before to")
	}

	txs, err := s.repo.ListOutletTransactions(ctx, filter)
	if err != nil {
		return nil, authorityErr("list outlet transactions", err)
	}
	return txs, nil
}
