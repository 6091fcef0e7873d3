package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pkaminski/adspulse/internal/ads"
	"github.com/pkaminski/adspulse/internal/config"
	"github.com/pkaminski/adspulse/internal/domain"
	"github.com/pkaminski/adspulse/internal/logger"
	"github.com/pkaminski/adspulse/internal/registry"
	"github.com/pkaminski/adspulse/internal/repository"
	"github.com/pkaminski/adspulse/internal/service"
	"github.com/pkaminski/adspulse/internal/store"
)

// fetch runs one report fetch to completion from the command line, using
// the same orchestrator as the API server, and exits non-zero unless the
// job completes.
func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "adspulse-fetch",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	profileID := flag.String("profile", "", "Advertising profile id to fetch for (required)")
	startDate := flag.String("start", "", "Range start date, YYYY-MM-DD (required)")
	endDate := flag.String("end", "", "Range end date, YYYY-MM-DD (required)")
	reportType := flag.String("report-type", "", "Provider report type id (default: keyword report)")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *profileID == "" || *startDate == "" || *endDate == "" {
		flag.Usage()
		os.Exit(2)
	}
	dates, err := parseRange(*startDate, *endDate)
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid date range")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// The CLI keeps job state in memory; fetched records go wherever the
	// configured database points, so a one-shot run still lands in the
	// same store the API serves.
	jobs := registry.NewMemory()
	var perf store.Store
	if cfg.Database.Driver == "memory" {
		perf = store.NewMemory()
	} else {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize database")
		}
		perf = repository.NewPerformanceRepository(db)
	}

	limiter := ads.NewLimiter(cfg.Fetch.RateLimitPerSec)
	adsClient := ads.New(ads.Config{
		ClientID:          cfg.Amazon.ClientID,
		ClientSecret:      cfg.Amazon.ClientSecret,
		RefreshToken:      cfg.Amazon.RefreshToken,
		APIBase:           cfg.Amazon.APIBase,
		AuthURL:           cfg.Amazon.AuthURL,
		TokenExpiryMargin: cfg.Fetch.TokenExpiryMargin,
	}, limiter)

	fetcher := service.NewFetchService(jobs, perf, adsClient, nil, nil, nil, nil, service.FetchConfig{
		MaxRetries:         cfg.Fetch.MaxRetries,
		BackoffBase:        cfg.Fetch.BackoffBase,
		PollInterval:       cfg.Fetch.PollInterval,
		PollTimeout:        cfg.Fetch.PollTimeout,
		ProgressRequested:  cfg.Fetch.ProgressRequested,
		ProgressPolled:     cfg.Fetch.ProgressPolled,
		ProgressDownloaded: cfg.Fetch.ProgressDownloaded,
	}, appLogger)

	ctx := context.Background()
	job, err := fetcher.StartFetch(ctx, *profileID, dates, *reportType)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to start fetch")
	}
	appLogger.WithField(logger.FieldJobID, job.ID).Info("Fetch started")

	// Poll the registry until the job lands in a terminal state.
	for {
		time.Sleep(time.Second)
		job, err = jobs.Get(ctx, job.ID)
		if err != nil {
			appLogger.WithError(err).Fatal("Lost track of the fetch job")
		}
		if job.Status.Terminal() {
			break
		}
		appLogger.WithFields(logger.Fields{
			logger.FieldStatus: string(job.Status),
			"progress":         job.Progress,
		}).Info("Fetch in progress")
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldStatus: string(job.Status),
		"records_fetched":  job.Counters[domain.CounterRecordsFetched],
		"errors":           len(job.Errors),
	}).Info("Fetch finished")
	for _, msg := range job.Errors {
		fmt.Fprintln(os.Stderr, "error:", msg)
	}
	if job.Status != domain.JobStatusCompleted {
		os.Exit(1)
	}
}

func parseRange(start, end string) (domain.DateRange, error) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("bad start date %q: %w", start, err)
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("bad end date %q: %w", end, err)
	}
	return domain.DateRange{Start: domain.Day(s), End: domain.Day(e)}, nil
}
