package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/sifan077/PowerLink/config"
	appcache "github.com/sifan077/PowerLink/internal/app/cache"
	appmodel "github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/ratelimit"
	apprepository "github.com/sifan077/PowerLink/internal/app/repository"
	"github.com/sifan077/PowerLink/internal/app/safety"
	appserver "github.com/sifan077/PowerLink/internal/app/server"
	appservice "github.com/sifan077/PowerLink/internal/app/service"
	"github.com/sifan077/PowerLink/internal/infra/logger"
	infraNATS "github.com/sifan077/PowerLink/internal/infra/nats"
	infraPostgres "github.com/sifan077/PowerLink/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/PowerLink/internal/infra/prometheus"
	infraRedis "github.com/sifan077/PowerLink/internal/infra/redis"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("redis_port", cfg.Redis.Port),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("nats_port", cfg.NATS.Port),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.Link{}); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	events, err := appservice.NewEventPublisher(js)
	if err != nil {
		log.Fatal("Failed to prepare lifecycle stream", zap.Error(err))
	}

	linkRepo := apprepository.NewLinkRepository(gormDB)
	clickCounter := apprepository.NewClickCounter(pool)
	linkCache := appcache.NewLinkCache(redisClient)
	membership := appcache.NewMembershipSet(redisClient)
	validator := safety.NewValidator(cfg.Link.BlockedDomains)

	allocator := appservice.NewAllocator(appservice.AllocatorDeps{
		Logger:     log,
		Repo:       linkRepo,
		Cache:      linkCache,
		Membership: membership,
		Safety:     validator,
		Events:     events,
		Config: appservice.AllocatorConfig{
			CodeLength:        cfg.Link.CodeLength,
			MinCustomLength:   cfg.Link.MinCustomLength,
			MaxCustomLength:   cfg.Link.MaxCustomLength,
			DefaultExpiryDays: cfg.Link.DefaultExpiryDays,
			MaxExpiryDays:     cfg.Link.MaxExpiryDays,
			ReservedCodes:     cfg.Link.ReservedCodes,
			CacheTTLCeiling:   cfg.Link.CacheTTLCeilingDuration(),
		},
	})

	resolver := appservice.NewResolver(appservice.ResolverDeps{
		Logger:          log,
		Repo:            linkRepo,
		Cache:           linkCache,
		Membership:      membership,
		CacheTTLCeiling: cfg.Link.CacheTTLCeilingDuration(),
	})

	policy := appservice.NewAccessPolicy(log, clickCounter)

	admin := appservice.NewAdmin(appservice.AdminDeps{
		Logger:     log,
		Repo:       linkRepo,
		Cache:      linkCache,
		Membership: membership,
		Events:     events,
	})

	limiter := ratelimit.New(redisClient, ratelimit.Config{
		Limit:  cfg.RateLimit.PerWindow,
		Window: cfg.RateLimit.WindowDuration(),
	}, log)

	reconciler := appservice.NewReconciler(appservice.ReconcilerDeps{
		Logger:        log,
		Repo:          linkRepo,
		Cache:         linkCache,
		Membership:    membership,
		Events:        events,
		Interval:      cfg.Reconciler.IntervalDuration(),
		DeleteExpired: cfg.Reconciler.DeleteExpired,
	})

	// Seed the membership set before serving so availability checks start
	// from a consistent view, then keep it repaired in the background.
	if err := reconciler.RunOnce(ctx); err != nil {
		log.Warn("Initial reconciliation failed", zap.Error(err))
	}
	reconciler.Start()
	defer reconciler.Stop()

	server := appserver.New(appserver.Dependencies{
		Logger:       log,
		Allocator:    allocator,
		Resolver:     resolver,
		Policy:       policy,
		Admin:        admin,
		Limiter:      limiter,
		ShortenLimit: cfg.RateLimit.PerWindow,
		BaseURL:      os.Getenv("BASE_URL"),
	})

	if err := server.Listen(":8080"); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
