// router/router.go

package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fortress-iam/gateway/authz"
	"github.com/fortress-iam/gateway/controller"
	"github.com/fortress-iam/gateway/middleware"
	"github.com/fortress-iam/gateway/status"
	"github.com/fortress-iam/gateway/token"
)

func SetupRouter(
	validator *token.Validator,
	gate *status.Gate,
	authzSvc *authz.Service,
	authController *controller.AuthController,
	authzController *controller.AuthzController,
	userController *controller.UserController,
	rateLimitRequests int,
	rateLimitDuration time.Duration,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.RateLimiter(rateLimitRequests, rateLimitDuration))

	// Credential exchange stands outside the token gate; everything else
	// passes authentication, the status gate, and route authorization.
	authController.RegisterRoutes(router)

	protected := router.Group("")
	protected.Use(middleware.Authenticate(validator))
	protected.Use(middleware.RequireEnabled(gate))
	protected.Use(middleware.Authorize(authzSvc))

	authzController.RegisterRoutes(protected)
	userController.RegisterRoutes(protected)

	return router
}
