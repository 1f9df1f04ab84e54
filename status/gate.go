// status/gate.go
package status

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/fortress-iam/gateway/db"
	gw_errors "github.com/fortress-iam/gateway/errors"
	"github.com/fortress-iam/gateway/idp"
	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/model"
)

// Gate answers "may this principal currently act?" from a short-TTL cache
// backed by the identity provider. A disable/enable/delete event evicts
// the cached record synchronously, so the next request observes the new
// state well inside the TTL.
type Gate struct {
	provider idp.Provider
}

func NewGate(provider idp.Provider) *Gate {
	return &Gate{provider: provider}
}

// IsEnabled reports whether the user is enabled. When neither the cache
// nor the identity provider can answer, it fails closed and returns
// ErrDependencyUnavailable so callers can surface a retryable error
// instead of a permanent denial.
func (g *Gate) IsEnabled(ctx context.Context, userID string) (bool, error) {
	record, cacheErr := db.GetCachedStatus(ctx, userID)
	if cacheErr != nil {
		logger.Warn("Status cache unavailable, falling through to provider",
			zap.Error(cacheErr),
			zap.String("userID", userID))
	}
	if record != nil {
		return record.Enabled, nil
	}

	enabled, err := g.provider.GetEnabledStatus(ctx, userID)
	if err != nil {
		if errors.Is(err, gw_errors.ErrUserDisabled) {
			// The provider no longer knows the user; a deleted account is
			// a permanent disabled state, not an outage.
			g.repopulate(ctx, userID, false)
			return false, nil
		}
		logger.Error("User status unavailable, failing closed",
			zap.Error(err),
			zap.String("userID", userID))
		return false, gw_errors.ErrDependencyUnavailable
	}

	g.repopulate(ctx, userID, enabled)
	return enabled, nil
}

// Invalidate evicts the cached status record. Lifecycle operations call
// this synchronously as part of the same state change.
func (g *Gate) Invalidate(ctx context.Context, userID string) error {
	return db.DeleteCachedStatus(ctx, userID)
}

func (g *Gate) repopulate(ctx context.Context, userID string, enabled bool) {
	record := &model.StatusRecord{
		UserID:     userID,
		Enabled:    enabled,
		ObservedAt: time.Now().UTC(),
		TTLSeconds: int(viper.GetDuration("cache.statusTTL").Seconds()),
	}
	if err := db.CacheStatus(ctx, record); err != nil {
		// A failed repopulation only costs the next request a provider
		// round trip.
		logger.Warn("Failed to repopulate status cache",
			zap.Error(err),
			zap.String("userID", userID))
	}
}
