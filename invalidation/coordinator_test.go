// invalidation/coordinator_test.go
package invalidation_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortress-iam/gateway/authz"
	"github.com/fortress-iam/gateway/db"
	"github.com/fortress-iam/gateway/idp"
	"github.com/fortress-iam/gateway/invalidation"
	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/model"
	"github.com/fortress-iam/gateway/status"
	"github.com/fortress-iam/gateway/util"
)

type stubProvider struct {
	enabled bool
}

func (s *stubProvider) GetEnabledStatus(ctx context.Context, userID string) (bool, error) {
	return s.enabled, nil
}
func (s *stubProvider) ValidateCredentials(ctx context.Context, email, password string) (*idp.TokenSet, error) {
	return nil, nil
}
func (s *stubProvider) RefreshTokens(ctx context.Context, refreshToken string) (*idp.TokenSet, error) {
	return nil, nil
}
func (s *stubProvider) RevokeTokens(ctx context.Context, accessToken string) error { return nil }
func (s *stubProvider) DisableUser(ctx context.Context, userID string) error       { return nil }
func (s *stubProvider) EnableUser(ctx context.Context, userID string) error        { return nil }
func (s *stubProvider) DeleteUser(ctx context.Context, userID string) error        { return nil }
func (s *stubProvider) FetchSigningKeys(ctx context.Context, poolID string) (*model.KeySetRecord, error) {
	return nil, nil
}

type stubEngine struct {
	calls int
}

func (s *stubEngine) IsAuthorized(ctx context.Context, req model.CheckRequest) (*model.Decision, error) {
	s.calls++
	return &model.Decision{Decision: model.DecisionAllow}, nil
}

func (s *stubEngine) BatchIsAuthorized(ctx context.Context, reqs []model.CheckRequest) ([]authz.BatchResult, error) {
	results := make([]authz.BatchResult, len(reqs))
	for i := range reqs {
		results[i] = authz.BatchResult{Decision: &model.Decision{Decision: model.DecisionAllow}}
	}
	return results, nil
}

func setup(t *testing.T) (*status.Gate, *authz.Service, *stubEngine, *util.EventBus) {
	logger.InitLogger(t.TempDir())
	mr := miniredis.RunT(t)
	db.RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	viper.Set("cache.decisionTTL", "60s")
	viper.Set("cache.statusTTL", "30s")
	viper.Set("authz.timeout", "1s")

	engine := &stubEngine{}
	gate := status.NewGate(&stubProvider{enabled: true})
	authzSvc := authz.NewService(engine, nil, nil)
	eventBus := util.NewEventBus()
	invalidation.NewCoordinator(gate, authzSvc, eventBus)
	return gate, authzSvc, engine, eventBus
}

func TestCoordinator(t *testing.T) {
	ctx := context.Background()

	t.Run("UserStateChangeEvictsStatusAndDecisions", func(t *testing.T) {
		gate, authzSvc, engine, eventBus := setup(t)

		// Warm both caches.
		_, err := gate.IsEnabled(ctx, "user-1")
		require.NoError(t, err)
		authzSvc.Check(ctx, model.CheckRequest{
			Principal: model.Principal{ID: "user-1", Type: model.PrincipalTypeEndUser},
			Action:    "User:read",
			Resource:  model.Resource{Type: "User", ID: "self"},
		})
		require.Equal(t, 1, engine.calls)

		eventBus.Publish(ctx, util.EventUserStateChanged, "user-1")

		record, err := db.GetCachedStatus(ctx, "user-1")
		require.NoError(t, err)
		assert.Nil(t, record)

		// The next check re-queries the engine.
		authzSvc.Check(ctx, model.CheckRequest{
			Principal: model.Principal{ID: "user-1", Type: model.PrincipalTypeEndUser},
			Action:    "User:read",
			Resource:  model.Resource{Type: "User", ID: "self"},
		})
		assert.Equal(t, 2, engine.calls)
	})

	t.Run("RedeliveryIsIdempotent", func(t *testing.T) {
		gate, _, _, eventBus := setup(t)

		_, err := gate.IsEnabled(ctx, "user-2")
		require.NoError(t, err)

		eventBus.Publish(ctx, util.EventUserDeleted, "user-2")
		eventBus.Publish(ctx, util.EventUserDeleted, "user-2")

		record, err := db.GetCachedStatus(ctx, "user-2")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("PolicyUpdateFlushesAllDecisions", func(t *testing.T) {
		_, authzSvc, engine, eventBus := setup(t)

		for _, principal := range []string{"user-3", "user-4"} {
			authzSvc.Check(ctx, model.CheckRequest{
				Principal: model.Principal{ID: principal, Type: model.PrincipalTypeEndUser},
				Action:    "User:read",
				Resource:  model.Resource{Type: "User", ID: "self"},
			})
		}
		require.Equal(t, 2, engine.calls)

		eventBus.Publish(ctx, util.EventPolicyUpdated, nil)

		for _, principal := range []string{"user-3", "user-4"} {
			authzSvc.Check(ctx, model.CheckRequest{
				Principal: model.Principal{ID: principal, Type: model.PrincipalTypeEndUser},
				Action:    "User:read",
				Resource:  model.Resource{Type: "User", ID: "self"},
			})
		}
		assert.Equal(t, 4, engine.calls)
	})
}
