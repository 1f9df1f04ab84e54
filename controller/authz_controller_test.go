// controller/authz_controller_test.go
package controller_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortress-iam/gateway/authz"
	"github.com/fortress-iam/gateway/controller"
	"github.com/fortress-iam/gateway/db"
	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/model"
	"github.com/fortress-iam/gateway/util"
)

type recordingEngine struct {
	decision string
}

func (r *recordingEngine) IsAuthorized(ctx context.Context, req model.CheckRequest) (*model.Decision, error) {
	return &model.Decision{Decision: r.decision}, nil
}

func (r *recordingEngine) BatchIsAuthorized(ctx context.Context, reqs []model.CheckRequest) ([]authz.BatchResult, error) {
	results := make([]authz.BatchResult, len(reqs))
	for i := range reqs {
		results[i] = authz.BatchResult{Decision: &model.Decision{Decision: r.decision}}
	}
	return results, nil
}

func setupAuthzRouter(t *testing.T, decision string) *gin.Engine {
	logger.InitLogger(t.TempDir())
	mr := miniredis.RunT(t)
	db.RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	viper.Set("cache.decisionTTL", "60s")
	viper.Set("authz.timeout", "1s")

	gin.SetMode(gin.TestMode)
	router := gin.New()
	// Stand-in for the authentication middleware.
	router.Use(func(c *gin.Context) {
		c.Set("principal", model.Principal{ID: "user-1", Type: model.PrincipalTypeEndUser})
		c.Set("userID", "user-1")
	})

	svc := authz.NewService(&recordingEngine{decision: decision}, nil, nil)
	controller.NewAuthzController(svc, util.NewEventBus()).RegisterRoutes(router)
	return router
}

func TestAuthzController(t *testing.T) {
	t.Run("CheckReturnsBareDecision", func(t *testing.T) {
		router := setupAuthzRouter(t, model.DecisionAllow)

		body := strings.NewReader(`{"action":"User:read","resource":{"type":"User","id":"self"}}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/v1/authz/check", body)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, map[string]string{"decision": "ALLOW"}, resp)
	})

	t.Run("CheckRejectsMissingResource", func(t *testing.T) {
		router := setupAuthzRouter(t, model.DecisionAllow)

		body := strings.NewReader(`{"action":"User:read"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/v1/authz/check", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("BatchPreservesOrder", func(t *testing.T) {
		router := setupAuthzRouter(t, model.DecisionDeny)

		items := make([]string, 5)
		for i := range items {
			items[i] = fmt.Sprintf(`{"action":"User:read","resource":{"type":"User","id":"res-%d"}}`, i)
		}
		body := strings.NewReader(`{"items":[` + strings.Join(items, ",") + `]}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/v1/authz/check-batch", body)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Results []struct {
				Decision string `json:"decision"`
			} `json:"results"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 5)
		for _, result := range resp.Results {
			assert.Equal(t, "DENY", result.Decision)
		}
	})

	t.Run("BatchOverLimitRejected", func(t *testing.T) {
		router := setupAuthzRouter(t, model.DecisionAllow)

		items := make([]string, authz.MaxBatchSize+1)
		for i := range items {
			items[i] = fmt.Sprintf(`{"action":"User:read","resource":{"type":"User","id":"res-%d"}}`, i)
		}
		body := strings.NewReader(`{"items":[` + strings.Join(items, ",") + `]}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/v1/authz/check-batch", body)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "BATCH_TOO_LARGE", resp.Error.Code)
	})

	t.Run("EmptyBatchRejected", func(t *testing.T) {
		router := setupAuthzRouter(t, model.DecisionAllow)

		body := strings.NewReader(`{"items":[]}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/v1/authz/check-batch", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
