package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aditus/server/internal/infra/task"
	"github.com/aditus/server/internal/module/billing"
	billingusage "github.com/aditus/server/internal/module/billing/usage"
	"github.com/aditus/server/internal/module/guard"
	"github.com/aditus/server/internal/module/job"
	"github.com/aditus/server/internal/module/payment"
	paymentprovider "github.com/aditus/server/internal/module/payment/provider"
	"github.com/aditus/server/internal/module/user"
	sharedcache "github.com/aditus/server/internal/shared/cache"
	"github.com/aditus/server/internal/shared/config"
	"github.com/aditus/server/internal/shared/database"
	"github.com/aditus/server/internal/shared/logger"
	"github.com/aditus/server/internal/shared/metrics"
	"github.com/aditus/server/internal/shared/middleware"
)

// App wires the modules together and owns their lifecycles.
type App struct {
	config  *config.Config
	db      *gorm.DB
	redis   redis.UniversalClient
	router  *gin.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics

	// Handlers
	userHandler    *user.Handler
	billingHandler *billing.Handler
	paymentHandler *payment.Handler
	webhookHandler *payment.WebhookHandler
	jobHandler     *job.Handler

	// Cross-module services
	billingService billing.ServiceInterface
	guardService   *guard.Service
	paymentService *payment.Service
	usageRecorder  *billingusage.Recorder
	tokenManager   *user.TokenManager
	sweeper        *task.Sweeper
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	zapLog, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	app := &App{
		config:  cfg,
		logger:  zapLog,
		metrics: metrics.New("aditus"),
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if err := app.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Redis is optional; without it the IP rate limit middleware is
	// skipped and quota enforcement alone gates requests.
	if cfg.Redis.Address != "" {
		redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
		if err != nil {
			zapLog.Warn("redis connection failed, rate limiting disabled", zap.Error(err))
		} else {
			app.redis = redisClient
		}
	}

	if err := app.initModules(); err != nil {
		return nil, fmt.Errorf("init modules: %w", err)
	}
	app.router = app.setupRouter()

	app.sweeper = task.NewSweeper(app.guardService, app.paymentService, &cfg.Task, zapLog)
	app.sweeper.Start()

	return app, nil
}

// Router returns the HTTP handler.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop shuts down background components and flushes buffers.
func (a *App) Stop() {
	a.sweeper.Stop()
	a.usageRecorder.Close()

	if a.redis != nil {
		if err := sharedcache.Close(a.redis); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func (a *App) migrate() error {
	if err := a.db.AutoMigrate(
		&user.User{},
		&user.MasterProfile{},
		&billing.Plan{},
		&billing.Subscription{},
		&billing.UsageRecord{},
		&payment.Payment{},
		&payment.TransactionLog{},
		&payment.WebhookEvent{},
		&guard.CacheEntry{},
	); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return billing.NewRepository(a.db).SeedPlans(ctx, billing.DefaultPlans())
}

func (a *App) initModules() error {
	// Billing first; payments and the guard depend on it.
	billingRepo := billing.NewRepository(a.db)
	quotaChecker := billing.NewQuotaChecker(billingRepo, a.metrics, a.logger)
	billingService := billing.NewService(billingRepo, quotaChecker, a.logger)
	a.billingService = billingService
	a.billingHandler = billing.NewHandler(billingService)
	a.usageRecorder = billingusage.NewRecorder(billingRepo, a.logger, 1000)

	// Guard over the billing quota.
	a.guardService = guard.NewService(
		guard.NewRepository(a.db),
		billingService,
		&a.config.Cache,
		a.metrics,
		a.logger,
	)

	// User accounts; profile updates invalidate the guard's cache.
	a.tokenManager = user.NewTokenManager(a.config.Auth.JWTSecret, a.config.Auth.AccessTokenExpiry)
	userService := user.NewService(user.NewRepository(a.db), a.tokenManager, a.guardService, a.logger)
	a.userHandler = user.NewHandler(userService)

	// Payments through Paystack.
	gateway := paymentprovider.NewPaystackProvider(&a.config.Paystack)
	paymentService := payment.NewService(
		payment.NewRepository(a.db),
		gateway,
		billingService,
		userService,
		a.metrics,
		&a.config.Paystack,
		a.logger,
	)
	a.paymentService = paymentService
	a.paymentHandler = payment.NewHandler(paymentService)
	a.webhookHandler = payment.NewWebhookHandler(paymentService, gateway, a.logger)

	// Job extraction and personalization behind the guard.
	aiClient := job.NewHTTPAIClient(&a.config.AI)
	var screenshots job.ScreenshotStore
	if store, err := job.NewS3ScreenshotStore(&a.config.Storage); err != nil {
		a.logger.Warn("screenshot storage unavailable", zap.Error(err))
	} else {
		screenshots = store
	}
	jobService := job.NewService(aiClient, a.guardService, userService, screenshots, a.usageRecorder, a.logger)
	a.jobHandler = job.NewHandler(jobService)

	return nil
}

func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.registerRoutes(r)
	return r
}

func (a *App) registerRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	public := v1.Group("")
	if a.redis != nil {
		limiter := middleware.NewRedisLimiter(a.redis)
		public.Use(middleware.RateLimit(limiter, middleware.RateLimitConfig{
			Limit:  120,
			Window: time.Minute,
		}))
	}
	a.userHandler.RegisterRoutes(public)

	protected := v1.Group("")
	protected.Use(middleware.Auth(a.tokenManager))
	a.userHandler.RegisterProtectedRoutes(protected)
	a.billingHandler.RegisterRoutes(protected)
	a.paymentHandler.RegisterRoutes(protected)
	a.jobHandler.RegisterRoutes(protected)

	// Webhooks live outside /api/v1 and outside auth; the signature
	// check is the gate.
	a.webhookHandler.RegisterRoutes(r.Group(""))
}
