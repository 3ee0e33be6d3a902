// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vendstock/internal/core/clock"
	"vendstock/internal/domain/machine"
	"vendstock/internal/domain/product"
	"vendstock/internal/domain/restock"
	"vendstock/internal/infrastructure/http/v1/handlers"
	"vendstock/internal/infrastructure/http/v1/middleware"
	"vendstock/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	Products *product.Service
	Machines *machine.Service
	Restock  *restock.Service

	// Clock supplies "today" for default slot expirations
	Clock clock.Clock

	// HealthChecks are pinged by /health/ready
	HealthChecks map[string]handlers.Pinger

	// Metrics serves /metrics when set
	Metrics http.Handler

	// Debug keeps gin in debug mode
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Operator())
	{
		registerProductRoutes(api, cfg)
		registerMachineRoutes(api, cfg)
		registerSessionRoutes(api, cfg)
	}

	return router
}

func registerProductRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	handler := handlers.NewProductHandler(handlers.NewBaseHandler(), cfg.Products)
	RegisterResourceRoutes(rg.Group("/products"), handler)
}

func registerMachineRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	base := handlers.NewBaseHandler()
	handler := handlers.NewMachineHandler(base, cfg.Machines, cfg.Products, cfg.Restock, cfg.Clock)
	sessions := handlers.NewSessionHandler(base, cfg.Restock)

	machines := rg.Group("/machines")
	RegisterResourceRoutes(machines, handler)
	machines.PUT("/:id/pending", handler.SetPending)
	machines.PUT("/:id/interval", handler.SetInterval)
	machines.GET("/:id/plan", handler.Plan)
	machines.POST("/:id/sessions", sessions.Begin)
}

func registerSessionRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	handler := handlers.NewSessionHandler(handlers.NewBaseHandler(), cfg.Restock)

	sessions := rg.Group("/sessions")
	sessions.GET("", handler.List)
	sessions.GET("/:sid", handler.Get)
	sessions.POST("/:sid/instructions/:handle/resolve", handler.Resolve)
	sessions.POST("/:sid/complete", handler.Complete)
	sessions.DELETE("/:sid", handler.Abandon)
}
