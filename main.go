package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/shi0417/kongfuworld-sub004/api/rest"
	"github.com/shi0417/kongfuworld-sub004/api/sse"
	"github.com/shi0417/kongfuworld-sub004/audit"
	"github.com/shi0417/kongfuworld-sub004/cache"
	"github.com/shi0417/kongfuworld-sub004/checkin"
	"github.com/shi0417/kongfuworld-sub004/clock"
	"github.com/shi0417/kongfuworld-sub004/config"
	dbadapter "github.com/shi0417/kongfuworld-sub004/db"
	"github.com/shi0417/kongfuworld-sub004/hook"
	"github.com/shi0417/kongfuworld-sub004/ledger"
	mw "github.com/shi0417/kongfuworld-sub004/middleware"
	"github.com/shi0417/kongfuworld-sub004/mission"
	"github.com/shi0417/kongfuworld-sub004/model"
	"github.com/shi0417/kongfuworld-sub004/observability"
	"github.com/shi0417/kongfuworld-sub004/reading"
	"github.com/shi0417/kongfuworld-sub004/scheduler"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("timezone: %v", err)
	}
	clk := clock.System(loc)
	logger.Info("mission day boundary", zap.String("timezone", loc.String()), zap.String("today", clock.Today(clk)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Tracing ----
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Services ----
	hooks := hook.NewCenter()
	led := ledger.New(db)

	catalog := mission.NewCatalog(db, c, cfg.Mission.CatalogTTL, logger)
	if cfg.Mission.SeedDefaults {
		n, err := catalog.SeedDefaults(ctx)
		if err != nil {
			log.Fatalf("seed missions: %v", err)
		}
		if n > 0 {
			logger.Info("default missions seeded", zap.Int64("count", n))
		}
	}
	missionSvc := mission.NewService(db, catalog, led, clk, logger).
		WithLocker(c, cfg.Mission.LockTTL, cfg.Mission.LockWait).
		WithPublisher(pubsub)
	missionSvc.Subscribe(hooks)
	auditSvc.Subscribe(hooks)

	readingSvc := reading.NewService(db, reading.NewGate(db, clk, cfg.Reading.CountPaidUnlocks), clk, hooks, logger)
	checkinSvc := checkin.NewService(db, led, clk, cfg.Checkin.Rewards, hooks, logger)

	// ---- Scheduler ----
	sched, err := scheduler.New(logger, loc)
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	defer sched.Stop()
	if err := sched.AddInterval("time_unlock_sweep", cfg.Reading.UnlockSweep, func(ctx context.Context) error {
		_, err := readingSvc.PromoteDueTimeUnlocks(ctx)
		return err
	}); err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	// Definitions edited on another node become visible at the day boundary at the latest.
	if err := sched.AddDaily("mission_catalog_refresh", 0, 0, catalog.Invalidate); err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.CORS(cfg.Security.AllowedOrigins))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "today": clock.Today(clk)})
	})

	missionH := apirest.NewMissionHandler(missionSvc, auditSvc, logger)
	readingH := apirest.NewReadingHandler(readingSvc, logger)
	checkinH := apirest.NewCheckinHandler(checkinSvc, auditSvc, logger)
	keysH := apirest.NewKeysHandler(led, logger)
	adminH := apirest.NewAdminHandler(catalog, sched, readingSvc, logger)
	auth := mw.Auth(cfg.Security)

	api := r.Group("/api")
	{
		missionsG := api.Group("/missions", auth)
		missionsG.GET("", missionH.List)
		missionsG.GET("/completion", missionH.Completion)
		missionsG.POST("/progress", missionH.Progress)
		missionsG.POST("/:id/claim", missionH.Claim)

		readingG := api.Group("/reading", auth)
		readingG.POST("/chapters/:id/read", readingH.Read)
		readingG.GET("/chapters/:id/eligibility", readingH.Eligibility)

		checkinG := api.Group("/checkin", auth)
		checkinG.GET("", checkinH.Status)
		checkinG.POST("", checkinH.CheckIn)
		checkinG.GET("/history", checkinH.History)

		api.GET("/keys/transactions", auth, keysH.Transactions)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/missions", adminH.ListMissions)
		adminG.POST("/missions", adminH.CreateMission)
		adminG.PUT("/missions/:id", adminH.UpdateMission)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.POST("/unlocks/sweep", adminH.SweepUnlocks)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, logger)
	r.GET("/sse", auth, sseH.ServeSSE)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
