package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fortress-iam/gateway/audit"
	"github.com/fortress-iam/gateway/authz"
	"github.com/fortress-iam/gateway/config"
	"github.com/fortress-iam/gateway/controller"
	"github.com/fortress-iam/gateway/db"
	"github.com/fortress-iam/gateway/idp"
	"github.com/fortress-iam/gateway/invalidation"
	"github.com/fortress-iam/gateway/lockout"
	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/router"
	"github.com/fortress-iam/gateway/status"
	"github.com/fortress-iam/gateway/token"
	"github.com/fortress-iam/gateway/util"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	// Initialize logger
	logger.InitLogger(config.GetString("log.dir"))
	defer logger.Sync()

	// Initialize Redis
	if err := db.InitRedis(); err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer db.CloseRedis()

	// Initialize EventBus
	eventBus := util.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eventBus.Start(ctx)

	// Initialize utilities
	notificationService := util.NewNotificationService(config.GetString("alerts.webhookURL"))

	auditService := audit.NewNopService()
	if esURL := config.GetString("elasticsearch.url"); esURL != "" {
		auditRepository, err := audit.NewElasticsearchRepository(esURL)
		if err != nil {
			logger.Warn("Audit repository unavailable, security events will not be indexed", zap.Error(err))
		} else {
			auditService = audit.NewService(auditRepository)
		}
	}

	// Identity provider and token verification
	provider := idp.NewHTTPClient(
		config.GetString("idp.baseURL"),
		config.GetString("idp.userPoolID"),
		config.GetDuration("idp.timeout"),
	)
	keySetCache := token.NewKeySetCache(provider, config.GetString("idp.userPoolID"))
	validator := token.NewValidator(keySetCache, config.GetString("idp.issuer"), config.GetString("idp.audience"))

	// Authorization engine and decision cache
	engine := authz.NewAVPClient(
		config.GetString("authz.engineURL"),
		config.GetString("authz.policyStoreID"),
		config.GetDuration("authz.timeout"),
	)
	authzService := authz.NewService(engine, notificationService, auditService)

	// Status gate, lockout tracking, and cache invalidation
	gate := status.NewGate(provider)
	tracker := lockout.NewTracker(notificationService, auditService)
	invalidation.NewCoordinator(gate, authzService, eventBus)

	// Initialize controllers
	authController := controller.NewAuthController(provider, tracker)
	authzController := controller.NewAuthzController(authzService, eventBus)
	userController := controller.NewUserController(provider, gate, eventBus)

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	apiRouter := router.SetupRouter(
		validator,
		gate,
		authzService,
		authController,
		authzController,
		userController,
		100, time.Minute, // 100 requests per minute
	)

	// Set up the server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.GetString("server.port")),
		Handler: apiRouter,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", config.GetString("server.port")))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
