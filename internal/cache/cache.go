package cache

import (
	"context"
	"time"

	"posdrawer/backend/internal/domain"
)

// SettingsCache holds outlet settings keyed by outlet id. A miss is reported
// as (nil, false, nil); errors are left for the caller to log and ignore.
type SettingsCache interface {
	Get(ctx context.Context, outletID int64) (*domain.OutletSettings, bool, error)
	Set(ctx context.Context, value *domain.OutletSettings, ttl time.Duration) error
	Delete(ctx context.Context, outletID int64) error
}

type NoopSettingsCache struct{}

func (NoopSettingsCache) Get(_ context.Context, _ int64) (*domain.OutletSettings, bool, error) {
	return nil, false, nil
}

func (NoopSettingsCache) Set(_ context.Context, _ *domain.OutletSettings, _ time.Duration) error {
	return nil
}

func (NoopSettingsCache) Delete(_ context.Context, _ int64) error {
	return nil
}
