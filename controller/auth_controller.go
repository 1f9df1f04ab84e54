// controller/auth_controller.go
package controller

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	gw_errors "github.com/fortress-iam/gateway/errors"
	"github.com/fortress-iam/gateway/idp"
	"github.com/fortress-iam/gateway/lockout"
	"github.com/fortress-iam/gateway/model"
	"github.com/fortress-iam/gateway/util"
)

type AuthController struct {
	provider idp.Provider
	tracker  *lockout.Tracker
}

func NewAuthController(provider idp.Provider, tracker *lockout.Tracker) *AuthController {
	return &AuthController{
		provider: provider,
		tracker:  tracker,
	}
}

// RegisterRoutes registers the API routes
func (ac *AuthController) RegisterRoutes(r *gin.Engine) {
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", ac.Login)
		auth.POST("/refresh", ac.Refresh)
		auth.POST("/logout", ac.Logout)
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Login endpoint. Attempts are tracked per email and per source IP; a
// locked identifier is rejected before the identity provider is asked, so
// lockouts also stop credential stuffing through this endpoint.
func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid login request", err)
		return
	}
	email := strings.ToLower(req.Email)
	ip := c.ClientIP()

	for scope, identifier := range map[string]string{
		model.LockoutScopeEmail: email,
		model.LockoutScopeIP:    ip,
	} {
		state, err := ac.tracker.Check(c, identifier, scope)
		if err != nil {
			if errors.Is(err, gw_errors.ErrAccountLocked) {
				ac.respondLocked(c, state)
				return
			}
			ac.respondDependencyDown(c, err)
			return
		}
	}

	tokens, err := ac.provider.ValidateCredentials(c, email, req.Password)
	if err != nil {
		if errors.Is(err, gw_errors.ErrInvalidCredentials) {
			ac.recordFailure(c, email, ip)
			return
		}
		if errors.Is(err, gw_errors.ErrUserDisabled) {
			util.RespondWithError(c, http.StatusForbidden, "USER_DISABLED", "User account is disabled", err)
			return
		}
		ac.respondDependencyDown(c, err)
		return
	}

	// Success clears both counters immediately.
	if _, err := ac.tracker.RecordAttempt(c, email, model.LockoutScopeEmail, true); err != nil {
		ac.respondDependencyDown(c, err)
		return
	}
	if _, err := ac.tracker.RecordAttempt(c, ip, model.LockoutScopeIP, true); err != nil {
		ac.respondDependencyDown(c, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// Refresh endpoint
func (ac *AuthController) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid refresh request", err)
		return
	}

	tokens, err := ac.provider.RefreshTokens(c, req.RefreshToken)
	if err != nil {
		if errors.Is(err, gw_errors.ErrTokenInvalid) || errors.Is(err, gw_errors.ErrInvalidCredentials) {
			util.RespondWithError(c, http.StatusUnauthorized, "TOKEN_INVALID", "Refresh token is invalid", err)
			return
		}
		ac.respondDependencyDown(c, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// Logout endpoint. Revokes the presented refresh/access token pair at the
// identity provider; cached state expires on its own TTL.
func (ac *AuthController) Logout(c *gin.Context) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		util.RespondWithError(c, http.StatusUnauthorized, "TOKEN_MISSING", "Authorization header is required", gw_errors.ErrUnauthorized)
		return
	}

	if err := ac.provider.RevokeTokens(c, parts[1]); err != nil {
		ac.respondDependencyDown(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// recordFailure records the failed attempt against both scopes and
// answers the client. A lock crossing its threshold on this very attempt
// is reported as ACCOUNT_LOCKED rather than INVALID_CREDENTIALS.
func (ac *AuthController) recordFailure(c *gin.Context, email, ip string) {
	var locked *model.LockoutState
	for scope, identifier := range map[string]string{
		model.LockoutScopeEmail: email,
		model.LockoutScopeIP:    ip,
	} {
		state, err := ac.tracker.RecordAttempt(c, identifier, scope, false)
		if err != nil && !errors.Is(err, gw_errors.ErrAccountLocked) {
			ac.respondDependencyDown(c, err)
			return
		}
		if state != nil && state.Locked {
			locked = state
		}
	}

	if locked != nil {
		ac.respondLocked(c, locked)
		return
	}
	util.RespondWithError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", gw_errors.ErrInvalidCredentials)
}

func (ac *AuthController) respondLocked(c *gin.Context, state *model.LockoutState) {
	var retryAfter *int
	if state != nil && !state.LockedUntil.IsZero() {
		seconds := int(time.Until(state.LockedUntil).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		retryAfter = &seconds
	}
	util.RespondWithRetryableError(c, http.StatusForbidden,
		"ACCOUNT_LOCKED", "Too many failed attempts, try again later", gw_errors.ErrAccountLocked, true, retryAfter)
}

func (ac *AuthController) respondDependencyDown(c *gin.Context, err error) {
	retryAfter := 5
	util.RespondWithRetryableError(c, http.StatusServiceUnavailable,
		"DEPENDENCY_UNAVAILABLE", "Authentication is temporarily unavailable", err, true, &retryAfter)
}
