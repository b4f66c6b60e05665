package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/config"
	appmodel "github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	apprepository "github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
	appscheduler "github.com/Georgesa98/UrlShortner-sub000/internal/app/scheduler"
	appserver "github.com/Georgesa98/UrlShortner-sub000/internal/app/server"
	appservice "github.com/Georgesa98/UrlShortner-sub000/internal/app/service"
	"github.com/Georgesa98/UrlShortner-sub000/internal/http/middleware"
	"github.com/Georgesa98/UrlShortner-sub000/internal/infra/logger"
	infraNATS "github.com/Georgesa98/UrlShortner-sub000/internal/infra/nats"
	infraPostgres "github.com/Georgesa98/UrlShortner-sub000/internal/infra/postgres"
	infraPrometheus "github.com/Georgesa98/UrlShortner-sub000/internal/infra/prometheus"
	infraRedis "github.com/Georgesa98/UrlShortner-sub000/internal/infra/redis"
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
		zap.String("postgres_user", cfg.Postgres.User),
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

	if err := infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.Url{},
		&appmodel.UrlStatus{},
		&appmodel.RedirectionRule{},
		&appmodel.Visit{},
		&appmodel.FraudIncident{},
		&appmodel.AppSetting{},
	); err != nil {
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

	metrics := infraPrometheus.NewMetrics()
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

	urlRepo := apprepository.NewUrlRepository(gormDB)
	ruleRepo := apprepository.NewRuleRepository(gormDB)
	visitRepo := apprepository.NewVisitRepository(gormDB, pool)
	fraudRepo := apprepository.NewFraudRepository(gormDB)
	settingRepo := apprepository.NewSettingRepository(gormDB)

	if overrides, err := settingRepo.LoadAll(ctx); err != nil {
		log.Warn("Failed to load app_config overrides", zap.Error(err))
	} else {
		applyOverrides(&cfg.App, overrides, log)
	}

	codePool := appservice.NewShortCodePool(appservice.ShortCodePoolDeps{
		Redis:       redisClient,
		Logger:      log,
		Metrics:     metrics,
		CodeLength:  cfg.App.ShortCodeLength,
		MinPoolSize: cfg.App.ShortCodePoolSize,
	})

	fraudReporter := appservice.NewFraudReporter(appservice.FraudReporterDeps{
		JetStream: js,
		Repo:      fraudRepo,
		Logger:    log,
		Metrics:   metrics,
	})

	fraudConsumer := appservice.NewFraudConsumer(js, log, fraudRepo)
	if err := fraudConsumer.Start(); err != nil {
		log.Warn("Fraud consumer not started; incidents will be written directly", zap.Error(err))
	}

	burst := appservice.NewBurstProtector(appservice.BurstProtectorDeps{
		Redis:      redisClient,
		Urls:       urlRepo,
		Fraud:      fraudReporter,
		Logger:     log,
		Metrics:    metrics,
		Thresholds: appservice.ThresholdsFromConfig(cfg.Burst),
	})

	geo := appservice.NewGeoResolver(redisClient, cfg.GeoIP.DatabasePath, log)
	defer geo.Close()
	extractor := appservice.NewContextExtractor(geo, log)

	ruleEngine := appservice.NewRuleEngine(ruleRepo, redisClient,
		time.Duration(cfg.App.URLMappingCacheTimeout)*time.Second, log)
	ruleService := appservice.NewRuleService(ruleRepo, urlRepo, ruleEngine)

	analytics := appservice.NewAnalyticsService(appservice.AnalyticsDeps{
		Redis:     redisClient,
		Urls:      urlRepo,
		Visits:    visitRepo,
		Logger:    log,
		Metrics:   metrics,
		IPSalt:    cfg.App.IPSalt,
		TrackIP:   cfg.App.AnalyticsTrackIP,
		BatchSize: cfg.Workers.AnalyticsBatch,
	})

	urlService := appservice.NewUrlService(urlRepo, codePool, cfg.App.MaxURLsPerUser, log)

	redirect := appservice.NewRedirectService(appservice.RedirectServiceDeps{
		Urls:      urlRepo,
		Burst:     burst,
		Engine:    ruleEngine,
		Extractor: extractor,
		Analytics: analytics,
		Fraud:     fraudReporter,
		Logger:    log,
		Metrics:   metrics,
	})

	linkRot := appservice.NewLinkRotChecker(appservice.LinkRotDeps{
		Urls:         urlRepo,
		Redis:        redisClient,
		Logger:       log,
		StaleAfter:   time.Duration(cfg.Workers.LinkRotStaleDays) * 24 * time.Hour,
		ProbeTimeout: time.Duration(cfg.Workers.LinkRotTimeoutSec) * time.Second,
	})

	sched, err := appscheduler.New(appscheduler.Deps{
		Config:    cfg.Workers,
		Pool:      codePool,
		PoolSize:  cfg.App.ShortCodePoolSize,
		Urls:      urlService,
		Analytics: analytics,
		LinkRot:   linkRot,
		Logger:    log,
	})
	if err != nil {
		log.Fatal("Failed to build scheduler", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	ipLimit, err := config.ParseRateLimit(cfg.App.RateLimitIP)
	if err != nil {
		log.Fatal("Invalid rate limit", zap.Error(err))
	}

	server := appserver.New(appserver.Dependencies{
		Logger:       log,
		Redis:        redisClient,
		Urls:         urlService,
		Rules:        ruleService,
		Redirect:     redirect,
		Fraud:        fraudReporter,
		MaxBatchSize: cfg.App.MaxBatchSize,
		RateLimit: middleware.RateLimitConfig{
			MaxRequests: ipLimit.Count,
			Window:      ipLimit.Window,
			KeyPrefix:   "ratelimit",
			Rate:        cfg.App.RateLimitIP,
		},
		ReadTimeout: cfg.App.RequestTimeout(),
	})

	if err := server.Listen(":8080"); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}

// applyOverrides lets rows in app_config override selected config knobs
// without a redeploy. Unknown keys are ignored.
func applyOverrides(app *config.AppConfig, overrides map[string]string, log *zap.Logger) {
	for key, value := range overrides {
		var err error
		switch key {
		case "short_code_length":
			app.ShortCodeLength, err = strconv.Atoi(value)
		case "short_code_pool_size":
			app.ShortCodePoolSize, err = strconv.Atoi(value)
		case "rate_limit_ip":
			app.RateLimitIP = value
		case "rate_limit_user":
			app.RateLimitUser = value
		case "max_urls_per_user":
			app.MaxURLsPerUser, err = strconv.Atoi(value)
		case "max_batch_size":
			app.MaxBatchSize, err = strconv.Atoi(value)
		case "url_mapping_cache_timeout":
			app.URLMappingCacheTimeout, err = strconv.Atoi(value)
		case "analytics_track_ip":
			app.AnalyticsTrackIP, err = strconv.ParseBool(value)
		default:
			continue
		}
		if err != nil {
			log.Warn("Ignoring malformed app_config override",
				zap.String("key", key), zap.String("value", value), zap.Error(err))
			continue
		}
		log.Info("Applied app_config override", zap.String("key", key))
	}
}
