// controller/user_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	gw_errors "github.com/fortress-iam/gateway/errors"
	"github.com/fortress-iam/gateway/idp"
	"github.com/fortress-iam/gateway/status"
	"github.com/fortress-iam/gateway/util"
)

type UserController struct {
	provider idp.Provider
	gate     *status.Gate
	eventBus *util.EventBus
}

func NewUserController(provider idp.Provider, gate *status.Gate, eventBus *util.EventBus) *UserController {
	return &UserController{
		provider: provider,
		gate:     gate,
		eventBus: eventBus,
	}
}

// RegisterRoutes registers the API routes
func (uc *UserController) RegisterRoutes(r gin.IRouter) {
	users := r.Group("/v1/users")
	{
		users.GET("/:id/status", uc.GetUserStatus)
		users.POST("/:id/disable", uc.DisableUser)
		users.POST("/:id/enable", uc.EnableUser)
		users.DELETE("/:id", uc.DeleteUser)
	}
}

// GetUserStatus endpoint
func (uc *UserController) GetUserStatus(c *gin.Context) {
	userID := c.Param("id")

	enabled, err := uc.gate.IsEnabled(c, userID)
	if err != nil {
		if errors.Is(err, gw_errors.ErrDependencyUnavailable) {
			retryAfter := 5
			util.RespondWithRetryableError(c, http.StatusServiceUnavailable,
				"DEPENDENCY_UNAVAILABLE", "User status is temporarily unavailable", err, true, &retryAfter)
			return
		}
		util.RespondWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read user status", err)
		return
	}

	statusText := "enabled"
	if !enabled {
		statusText = "disabled"
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "status": statusText})
}

// DisableUser endpoint. The state change is applied at the identity
// provider first; cached state for the user is evicted synchronously
// before the response is written, so the disable is observable on the
// very next request.
func (uc *UserController) DisableUser(c *gin.Context) {
	userID := c.Param("id")

	if err := uc.provider.DisableUser(c, userID); err != nil {
		uc.respondProviderError(c, err, "Failed to disable user")
		return
	}
	uc.eventBus.Publish(c, util.EventUserStateChanged, userID)

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "status": "disabled"})
}

// EnableUser endpoint
func (uc *UserController) EnableUser(c *gin.Context) {
	userID := c.Param("id")

	if err := uc.provider.EnableUser(c, userID); err != nil {
		uc.respondProviderError(c, err, "Failed to enable user")
		return
	}
	uc.eventBus.Publish(c, util.EventUserStateChanged, userID)

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "status": "enabled"})
}

// DeleteUser endpoint
func (uc *UserController) DeleteUser(c *gin.Context) {
	userID := c.Param("id")

	if err := uc.provider.DeleteUser(c, userID); err != nil {
		uc.respondProviderError(c, err, "Failed to delete user")
		return
	}
	uc.eventBus.Publish(c, util.EventUserDeleted, userID)

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "status": "deleted"})
}

func (uc *UserController) respondProviderError(c *gin.Context, err error, message string) {
	if errors.Is(err, gw_errors.ErrUserDisabled) {
		util.RespondWithError(c, http.StatusNotFound, "USER_NOT_FOUND", "User not found", err)
		return
	}
	retryAfter := 5
	util.RespondWithRetryableError(c, http.StatusServiceUnavailable,
		"DEPENDENCY_UNAVAILABLE", message, err, true, &retryAfter)
}
