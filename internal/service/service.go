package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"posdrawer/backend/internal/domain"
	"posdrawer/backend/internal/metrics"
	"posdrawer/backend/internal/settings"
	"posdrawer/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service owns the session lifecycle, the ledger rules and the balance read
// paths. It holds no balance state of its own; every figure is folded from
// the authority's ledger on demand.
type Service struct {
	repo      store.Repository
	settings  *settings.Service
	logger    *zap.Logger
	now       func() time.Time
	reportLoc *time.Location
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReportLocation sets the time zone whose calendar day bounds the
// "today" aggregates.
func WithReportLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.reportLoc = loc
		}
	}
}

func New(repo store.Repository, settingsSvc *settings.Service, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settingsSvc == nil {
		settingsSvc = settings.New(repo, nil, 0, settings.Defaults{CurrencyCode: "USD", MinorUnits: 2}, logger)
	}

	s := &Service{
		repo:      repo,
		settings:  settingsSvc,
		logger:    logger.Named("service"),
		now:       func() time.Time { return time.Now().UTC() },
		reportLoc: time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) OutletSettings(ctx context.Context, outletID int64) (domain.OutletSettings, error) {
	return s.settings.Get(ctx, outletID)
}

func (s *Service) UpdateOutletSettings(ctx context.Context, req domain.OutletSettings) (domain.OutletSettings, error) {
	updated, err := s.settings.Update(ctx, req)
	if err != nil {
		return domain.OutletSettings{}, err
	}
	s.logAudit(ctx, "outlet_settings_update", "outlet", fmt.Sprint(updated.OutletID),
		zap.String("currency", updated.CurrencyCode), zap.Int32("minor_units", updated.MinorUnits))
	return updated, nil
}

// authorityErr passes taxonomy errors and cancellation through untouched and
// marks everything else as transient.
func authorityErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsDomainError(err):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, store.ErrInvalidInput):
		return domain.Invalid("", err.Error())
	case errors.Is(err, store.ErrUserExists):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	default:
		return domain.Transient(fmt.Errorf("%s: %w", op, err))
	}
}

// reportUnknown surfaces ledger entries the calculator skipped.
func (s *Service) reportUnknown(unknown []domain.Transaction, scope ...zap.Field) {
	for _, tx := range unknown {
		metrics.UnknownTransactionTypes.WithLabelValues(string(tx.Type)).Inc()
		s.logger.Warn("ledger entry with unknown transaction type ignored",
			append(scope,
				zap.String("transaction_id", tx.ID),
				zap.String("transaction_type", string(tx.Type)),
				zap.String("amount", tx.Amount.String()))...)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, fields ...zap.Field) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	s.logger.Info("audit",
		append([]zap.Field{
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.String("actor", actor.Username),
			zap.String("actor_role", actor.Role),
		}, fields...)...)
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}
