// middleware/middleware_test.go
package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortress-iam/gateway/authz"
	"github.com/fortress-iam/gateway/db"
	gw_errors "github.com/fortress-iam/gateway/errors"
	"github.com/fortress-iam/gateway/idp"
	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/middleware"
	"github.com/fortress-iam/gateway/model"
	"github.com/fortress-iam/gateway/status"
)

type recordingEngine struct {
	mu       sync.Mutex
	decision string
	requests []model.CheckRequest
}

func (r *recordingEngine) IsAuthorized(ctx context.Context, req model.CheckRequest) (*model.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return &model.Decision{Decision: r.decision}, nil
}

func (r *recordingEngine) BatchIsAuthorized(ctx context.Context, reqs []model.CheckRequest) ([]authz.BatchResult, error) {
	results := make([]authz.BatchResult, len(reqs))
	for i := range reqs {
		results[i] = authz.BatchResult{Decision: &model.Decision{Decision: r.decision}}
	}
	return results, nil
}

type statusProvider struct {
	enabled bool
	err     error
}

func (s *statusProvider) GetEnabledStatus(ctx context.Context, userID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.enabled, nil
}
func (s *statusProvider) ValidateCredentials(ctx context.Context, email, password string) (*idp.TokenSet, error) {
	return nil, nil
}
func (s *statusProvider) RefreshTokens(ctx context.Context, refreshToken string) (*idp.TokenSet, error) {
	return nil, nil
}
func (s *statusProvider) RevokeTokens(ctx context.Context, accessToken string) error { return nil }
func (s *statusProvider) DisableUser(ctx context.Context, userID string) error       { return nil }
func (s *statusProvider) EnableUser(ctx context.Context, userID string) error        { return nil }
func (s *statusProvider) DeleteUser(ctx context.Context, userID string) error        { return nil }
func (s *statusProvider) FetchSigningKeys(ctx context.Context, poolID string) (*model.KeySetRecord, error) {
	return nil, nil
}

func setupRedis(t *testing.T) {
	logger.InitLogger(t.TempDir())
	mr := miniredis.RunT(t)
	db.RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	viper.Set("cache.decisionTTL", "60s")
	viper.Set("cache.statusTTL", "30s")
	viper.Set("authz.timeout", "1s")
}

func asPrincipal(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("principal", model.Principal{ID: id, Type: model.PrincipalTypeEndUser})
		c.Set("userID", id)
	}
}

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func TestAuthorize(t *testing.T) {
	const targetID = "b3c2a4d0-1234-4f00-9abc-0123456789ab"

	newRouter := func(engine *recordingEngine) *gin.Engine {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.Use(asPrincipal("user-1"))
		router.Use(middleware.Authorize(authz.NewService(engine, nil, nil)))
		router.GET("/v1/users/:id", okHandler)
		router.POST("/v1/users/:id/disable", okHandler)
		router.GET("/v1/profile", okHandler)
		return router
	}

	t.Run("ProtectedRouteAsksEngineWithPathUUID", func(t *testing.T) {
		setupRedis(t)
		engine := &recordingEngine{decision: model.DecisionAllow}
		router := newRouter(engine)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/v1/users/"+targetID+"/disable", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.Len(t, engine.requests, 1)
		assert.Equal(t, "User:disable", engine.requests[0].Action)
		assert.Equal(t, "User", engine.requests[0].Resource.Type)
		assert.Equal(t, targetID, engine.requests[0].Resource.ID)
	})

	t.Run("PathWithoutUUIDUsesSelf", func(t *testing.T) {
		setupRedis(t)
		engine := &recordingEngine{decision: model.DecisionAllow}
		router := newRouter(engine)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/v1/users/me", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.Len(t, engine.requests, 1)
		assert.Equal(t, "self", engine.requests[0].Resource.ID)
	})

	t.Run("DenyBecomesForbidden", func(t *testing.T) {
		setupRedis(t)
		engine := &recordingEngine{decision: model.DecisionDeny}
		router := newRouter(engine)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/v1/users/"+targetID, nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusForbidden, w.Code)
		var resp struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "AUTHORIZATION_DENIED", resp.Error.Code)
	})

	t.Run("UnlistedRouteSkipsEngine", func(t *testing.T) {
		setupRedis(t)
		engine := &recordingEngine{decision: model.DecisionDeny}
		router := newRouter(engine)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/v1/profile", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, engine.requests)
	})
}

func TestRequireEnabled(t *testing.T) {
	newRouter := func(provider *statusProvider) *gin.Engine {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.Use(asPrincipal("user-1"))
		router.Use(middleware.RequireEnabled(status.NewGate(provider)))
		router.GET("/v1/profile", okHandler)
		return router
	}

	t.Run("EnabledUserPasses", func(t *testing.T) {
		setupRedis(t)
		router := newRouter(&statusProvider{enabled: true})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/v1/profile", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("DisabledUserGetsTerminalForbidden", func(t *testing.T) {
		setupRedis(t)
		router := newRouter(&statusProvider{enabled: false})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/v1/profile", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusForbidden, w.Code)
		var resp struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
			Retry struct {
				Retryable bool `json:"retryable"`
			} `json:"retry"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "USER_DISABLED", resp.Error.Code)
		assert.False(t, resp.Retry.Retryable)
	})

	t.Run("StatusOutageGetsRetryableUnavailable", func(t *testing.T) {
		setupRedis(t)
		router := newRouter(&statusProvider{err: gw_errors.ErrDependencyUnavailable})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/v1/profile", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
			Retry struct {
				Retryable bool `json:"retryable"`
			} `json:"retry"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "DEPENDENCY_UNAVAILABLE", resp.Error.Code)
		assert.True(t, resp.Retry.Retryable)
	})
}
