// Package settings serves per-outlet currency settings. Reads go through a
// cache and concurrent misses for the same outlet share one authority fetch.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"posdrawer/backend/internal/cache"
	"posdrawer/backend/internal/domain"
	"posdrawer/backend/internal/metrics"
	"posdrawer/backend/internal/store"
)

type Repository interface {
	GetOutletSettings(ctx context.Context, outletID int64) (*domain.OutletSettings, error)
	UpsertOutletSettings(ctx context.Context, settings domain.OutletSettings) (*domain.OutletSettings, error)
}

type Defaults struct {
	CurrencyCode   string
	CurrencySymbol string
	MinorUnits     int32
}

type Service struct {
	repo     Repository
	cache    cache.SettingsCache
	ttl      time.Duration
	defaults Defaults
	logger   *zap.Logger
	group    singleflight.Group
}

func New(repo Repository, cacheStore cache.SettingsCache, ttl time.Duration, defaults Defaults, logger *zap.Logger) *Service {
	if cacheStore == nil {
		cacheStore = cache.NoopSettingsCache{}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if strings.TrimSpace(defaults.CurrencyCode) == "" {
		defaults.CurrencyCode = "USD"
	}
	if defaults.MinorUnits < 0 {
		defaults.MinorUnits = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:     repo,
		cache:    cacheStore,
		ttl:      ttl,
		defaults: defaults,
		logger:   logger.Named("settings"),
	}
}

// Get returns the outlet's settings. An outlet with no stored row gets the
// configured defaults, which are cached like any other value.
func (s *Service) Get(ctx context.Context, outletID int64) (domain.OutletSettings, error) {
	if outletID <= 0 {
		return domain.OutletSettings{}, domain.Invalid("outlet_id", "must be greater than zero")
	}

	if cached, ok, err := s.cache.Get(ctx, outletID); err != nil {
		metrics.SettingsLookups.WithLabelValues("error").Inc()
		s.logger.Warn("settings cache read failed", zap.Int64("outlet_id", outletID), zap.Error(err))
	} else if ok {
		metrics.SettingsLookups.WithLabelValues("hit").Inc()
		return *cached, nil
	}

	v, err, _ := s.group.Do(strconv.FormatInt(outletID, 10), func() (any, error) {
		return s.load(ctx, outletID)
	})
	if err != nil {
		return domain.OutletSettings{}, err
	}
	return v.(domain.OutletSettings), nil
}

func (s *Service) load(ctx context.Context, outletID int64) (domain.OutletSettings, error) {
	found, err := s.repo.GetOutletSettings(ctx, outletID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		metrics.SettingsLookups.WithLabelValues("default").Inc()
		found = &domain.OutletSettings{
			OutletID:       outletID,
			CurrencyCode:   s.defaults.CurrencyCode,
			CurrencySymbol: s.defaults.CurrencySymbol,
			MinorUnits:     s.defaults.MinorUnits,
		}
	case err != nil:
		return domain.OutletSettings{}, domain.Transient(fmt.Errorf("load outlet settings: %w", err))
	default:
		metrics.SettingsLookups.WithLabelValues("miss").Inc()
	}

	if err := s.cache.Set(ctx, found, s.ttl); err != nil {
		s.logger.Warn("settings cache write failed", zap.Int64("outlet_id", outletID), zap.Error(err))
	}
	return *found, nil
}

// Update stores new settings and drops the cached copy.
func (s *Service) Update(ctx context.Context, req domain.OutletSettings) (domain.OutletSettings, error) {
	req.CurrencyCode = strings.ToUpper(strings.TrimSpace(req.CurrencyCode))
	req.CurrencySymbol = strings.TrimSpace(req.CurrencySymbol)
	if req.OutletID <= 0 {
		return domain.OutletSettings{}, domain.Invalid("outlet_id", "must be greater than zero")
	}
	if len(req.CurrencyCode) != 3 {
		return domain.OutletSettings{}, domain.Invalid("currency_code", "must be a three-letter ISO 4217 code")
	}
	if req.MinorUnits < 0 || req.MinorUnits > 4 {
		return domain.OutletSettings{}, domain.Invalid("minor_units", "must be between 0 and 4")
	}

	saved, err := s.repo.UpsertOutletSettings(ctx, req)
	if err != nil {
		return domain.OutletSettings{}, domain.Transient(fmt.Errorf("save outlet settings: %w", err))
	}
	if err := s.cache.Delete(ctx, saved.OutletID); err != nil {
		s.logger.Warn("settings cache invalidation failed", zap.Int64("outlet_id", saved.OutletID), zap.Error(err))
	}
	return *saved, nil
}
