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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/pkaminski/adspulse/internal/ads"
	"github.com/pkaminski/adspulse/internal/analytics"
	"github.com/pkaminski/adspulse/internal/api"
	"github.com/pkaminski/adspulse/internal/api/middleware"
	"github.com/pkaminski/adspulse/internal/config"
	"github.com/pkaminski/adspulse/internal/events"
	"github.com/pkaminski/adspulse/internal/logger"
	"github.com/pkaminski/adspulse/internal/metrics"
	"github.com/pkaminski/adspulse/internal/registry"
	"github.com/pkaminski/adspulse/internal/repository"
	"github.com/pkaminski/adspulse/internal/service"
	"github.com/pkaminski/adspulse/internal/storage"
	"github.com/pkaminski/adspulse/internal/store"
)

func main() {
	// Initialize logger from environment before anything else logs
	appLogger := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appLogger.WithField("config", cfg.Masked()).Info("Configuration loaded")

	// Choose the datastore engines: the in-memory pair for ephemeral runs,
	// the GORM-backed pair otherwise. Both honor the same contracts.
	var (
		jobs    registry.Registry
		perf    store.Store
		uploads service.UploadStore
		ping    func(ctx context.Context) error
	)
	if cfg.Database.Driver == "memory" {
		appLogger.Info("Using in-memory datastores: driver=memory")
		jobs = registry.NewMemory()
		perf = store.NewMemory()
		uploads = service.NewMemoryUploads()
	} else {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize database")
		}
		jobs = repository.NewJobRepository(db)
		perf = repository.NewPerformanceRepository(db)
		uploads = repository.NewUploadRepository(db)

		sqlDB, err := db.DB()
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to access database pool")
		}
		ping = sqlDB.PingContext
	}

	// Initialize object storage (local disk or S3-compatible)
	objectStorage, err := storage.NewStorage(storage.Config{
		Type:     cfg.Storage.Type,
		LocalDir: cfg.Storage.LocalDir,
		S3: storage.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		},
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	ctx := context.Background()
	if s3Storage, ok := objectStorage.(*storage.S3Storage); ok {
		if err := s3Storage.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}

	// Metrics sink, wired into the ads client and the orchestrators
	sink := metrics.NewPrometheusSink(prometheus.DefaultRegisterer)

	// Shared rate-limited ads API client
	limiter := ads.NewLimiter(cfg.Fetch.RateLimitPerSec)
	adsClient := ads.New(ads.Config{
		ClientID:          cfg.Amazon.ClientID,
		ClientSecret:      cfg.Amazon.ClientSecret,
		RefreshToken:      cfg.Amazon.RefreshToken,
		APIBase:           cfg.Amazon.APIBase,
		AuthURL:           cfg.Amazon.AuthURL,
		TokenExpiryMargin: cfg.Fetch.TokenExpiryMargin,
	}, limiter)
	adsClient.SetObserver(func(op string, statusCode int, err error, duration time.Duration) {
		sink.APIRequest(op, metrics.ClassifyStatus(statusCode, err), duration)
	})

	// Optional usage analytics
	var usage *analytics.Recorder
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		usage = analytics.NewRecorder(redisClient, cfg.Redis.TTL)
		appLogger.WithField("addr", cfg.Redis.Addr).Info("Usage analytics enabled")
	}

	// Optional job event publisher
	var bus events.Publisher = events.NewNopPublisher()
	if cfg.Events.AMQPURL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, cfg.Events.RoutingKey)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to connect to the event broker")
		}
		bus = rabbit
		appLogger.WithField("exchange", cfg.Events.Exchange).Info("Job event publishing enabled")
	}
	defer bus.Close()

	// Report archiving reuses the upload storage when enabled
	var archive storage.ObjectStorage
	if cfg.Storage.ArchiveReports {
		archive = objectStorage
	}

	// Orchestrators
	fetcher := service.NewFetchService(jobs, perf, adsClient, archive, sink, usage, bus, service.FetchConfig{
		MaxRetries:         cfg.Fetch.MaxRetries,
		BackoffBase:        cfg.Fetch.BackoffBase,
		PollInterval:       cfg.Fetch.PollInterval,
		PollTimeout:        cfg.Fetch.PollTimeout,
		ProgressRequested:  cfg.Fetch.ProgressRequested,
		ProgressPolled:     cfg.Fetch.ProgressPolled,
		ProgressDownloaded: cfg.Fetch.ProgressDownloaded,
		ArchiveReports:     cfg.Storage.ArchiveReports,
	}, appLogger)
	importer := service.NewImportService(jobs, perf, uploads, objectStorage, sink, usage, bus, appLogger)

	// Background sweep of old terminal jobs
	sweeper := cron.New()
	_, err = sweeper.AddFunc(cfg.Jobs.SweepSchedule, func() {
		removed, err := jobs.Sweep(context.Background(), cfg.Jobs.MaxAge)
		if err != nil {
			appLogger.WithError(err).Warn("Job sweep failed")
			return
		}
		if removed > 0 {
			appLogger.WithField(logger.FieldCount, removed).Info("Swept old terminal jobs")
		}
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid job sweep schedule")
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Setup router
	router := api.SetupRouter(api.Dependencies{
		Jobs:           jobs,
		Perf:           perf,
		Fetcher:        fetcher,
		Importer:       importer,
		Uploads:        uploads,
		Files:          objectStorage,
		Ads:            adsClient,
		Ping:           ping,
		UploadMaxBytes: cfg.Upload.MaxBytes,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode, appLogger)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"addr": srv.Addr,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout. Running jobs are detached goroutines
	// and finish on their own; only the HTTP listener is drained here.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
