package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pkaminski/adspulse/internal/ads"
	"github.com/pkaminski/adspulse/internal/api/handler"
	"github.com/pkaminski/adspulse/internal/api/middleware"
	"github.com/pkaminski/adspulse/internal/logger"
	"github.com/pkaminski/adspulse/internal/registry"
	"github.com/pkaminski/adspulse/internal/service"
	"github.com/pkaminski/adspulse/internal/storage"
	"github.com/pkaminski/adspulse/internal/store"
)

// Dependencies is everything the boundary layer serves. The router owns no
// business logic; every field is constructed and wired by the caller.
type Dependencies struct {
	Jobs     registry.Registry
	Perf     store.Store
	Fetcher  *service.FetchService
	Importer *service.ImportService
	Uploads  service.UploadStore
	Files    storage.ObjectStorage
	Ads      *ads.Client

	// Ping is the readiness check against the backing datastore; nil
	// disables it.
	Ping func(ctx context.Context) error

	UploadMaxBytes int64
	CORS           middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes.
// Parameters:
//   - deps: constructed services and stores.
//   - mode: gin mode (debug, release, test).
//   - log: base logger for request logging.
// Returns:
//   - *gin.Engine: configured router.
func SetupRouter(deps Dependencies, mode string, log *logger.Logger) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(deps.Ping)
	jobHandler := handler.NewJobHandler(deps.Jobs, deps.Fetcher, deps.Importer)
	uploadHandler := handler.NewUploadHandler(deps.Uploads, deps.Files, deps.UploadMaxBytes)
	perfHandler := handler.NewPerformanceHandler(deps.Perf)
	profileHandler := handler.NewProfileHandler(deps.Ads)

	// Health and metrics
	r.GET("/health", healthHandler.Health)
	r.GET("/health/ready", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Report fetch jobs
		v1.POST("/fetch", jobHandler.CreateFetch)
		v1.GET("/fetch/status/:job_id", jobHandler.Status)

		// Spreadsheet uploads and import jobs
		v1.POST("/upload", uploadHandler.Upload)
		v1.GET("/upload/:upload_id/preview", uploadHandler.Preview)
		v1.GET("/uploads", uploadHandler.List)
		v1.POST("/import", jobHandler.CreateImport)
		v1.GET("/import/status/:job_id", jobHandler.Status)

		// Job listing
		v1.GET("/jobs", jobHandler.List)

		// Performance aggregations
		v1.GET("/performance/:profile_id/summary", perfHandler.Summary)
		v1.GET("/performance/:profile_id/keywords", perfHandler.Keywords)
		v1.GET("/performance/:profile_id/trends", perfHandler.Trends)
		v1.GET("/performance/:profile_id/sources", perfHandler.Sources)

		// External API connectivity
		v1.GET("/profiles", profileHandler.List)
	}

	return r
}
