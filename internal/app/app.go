// Package app wires configuration, infrastructure, and modules together.
package app

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reelforge/server/internal/module/approval"
	"github.com/reelforge/server/internal/module/asset"
	"github.com/reelforge/server/internal/module/export"
	"github.com/reelforge/server/internal/module/generation"
	"github.com/reelforge/server/internal/module/ledger"
	"github.com/reelforge/server/internal/module/pricing"
	"github.com/reelforge/server/internal/module/provider"
	"github.com/reelforge/server/internal/shared/cache"
	"github.com/reelforge/server/internal/shared/config"
	"github.com/reelforge/server/internal/shared/database"
	"github.com/reelforge/server/internal/shared/logger"
	"github.com/reelforge/server/internal/shared/middleware"
	"github.com/reelforge/server/internal/shared/storage"
	"github.com/reelforge/server/internal/utils/metrics"
)

// App is the composed API server.
type App struct {
	config *config.Config
	db     *gorm.DB
	redis  redis.UniversalClient
	router *gin.Engine
	logger *zap.Logger

	metrics  *metrics.Metrics
	recorder *ledger.Recorder
	health   *provider.HealthMonitor

	generationHandler *generation.Handler
	exportHandler     *export.Handler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrate(&ledger.Entry{}, &export.Job{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	store, err := storage.NewS3Store(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	m := metrics.New("reelforge")

	// Pricing and approval
	pricingRegistry := pricing.NewRegistry(&cfg.Pricing)
	estimator := pricing.NewEstimator(pricingRegistry, cfg.Pricing.DefaultUnitPrice, cfg.Pricing.Currency, log)
	gate := approval.NewGate(cfg.Approval.Threshold)

	// Providers
	providerRegistry := provider.NewRegistry(cfg.Providers)
	adapters := provider.NewAdapterRegistry()
	registerAdapters(providerRegistry, adapters, log)
	health := provider.NewHealthMonitor(adapters, nil, m, log)
	health.Start()

	// Ledger
	recorder := ledger.NewRecorder(ledger.NewRepository(db), log, m, 0)

	// Generation
	pipeline := asset.NewPipeline(store, log)
	generationService := generation.NewService(
		estimator, gate, providerRegistry, adapters, health, pipeline, recorder, m, log)

	// Export
	exportRepo := export.NewRepository(db)
	exportQueue := export.NewRedisQueue(redisClient, cfg.Export.QueueKey, cfg.Export.PollTimeout)
	exportService := export.NewService(exportRepo, exportQueue, m, log)

	app := &App{
		config:            cfg,
		db:                db,
		redis:             redisClient,
		logger:            log,
		metrics:           m,
		recorder:          recorder,
		health:            health,
		generationHandler: generation.NewHandler(generationService),
		exportHandler:     export.NewHandler(exportService),
	}
	app.setupRouter()

	return app, nil
}

// registerAdapters builds wire adapters for every enabled provider. Image
// providers speak the OpenAI images API, video providers the Runway task API.
func registerAdapters(registry *provider.Registry, adapters *provider.AdapterRegistry, log *zap.Logger) {
	for _, cfg := range registry.All() {
		if !cfg.Enabled {
			continue
		}
		switch cfg.Capability {
		case provider.CapabilityVideo:
			adapters.Register(provider.NewRunwayVideoAdapter(cfg, log))
		default:
			adapters.Register(provider.NewOpenAIImageAdapter(cfg, log))
		}
	}
}

func (a *App) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging(a.logger))
	router.Use(middleware.Metrics(a.metrics))
	router.Use(middleware.CORS())

	router.GET("/healthz", a.healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	a.generationHandler.RegisterRoutes(v1)
	a.exportHandler.RegisterRoutes(v1)

	a.router = router
}

func (a *App) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": a.health.AllStatus(),
	})
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Stop flushes and closes application components.
func (a *App) Stop() {
	a.health.Stop()
	a.recorder.Close()

	if err := cache.Close(a.redis); err != nil {
		a.logger.Warn("close redis", zap.Error(err))
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
	a.logger.Sync()
}
