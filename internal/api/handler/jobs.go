package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pkaminski/adspulse/internal/domain"
	"github.com/pkaminski/adspulse/internal/registry"
	"github.com/pkaminski/adspulse/internal/service"
)

// JobHandler exposes job creation and status endpoints. Creation returns
// immediately with a pending job id; the orchestrator runs detached and the
// caller polls the status endpoints until a terminal state.
type JobHandler struct {
	jobs     registry.Registry
	fetcher  *service.FetchService
	importer *service.ImportService
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - jobs: registry queried for job status and listings.
//   - fetcher: fetch orchestrator.
//   - importer: import orchestrator.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(jobs registry.Registry, fetcher *service.FetchService, importer *service.ImportService) *JobHandler {
	return &JobHandler{
		jobs:     jobs,
		fetcher:  fetcher,
		importer: importer,
	}
}

type createFetchRequest struct {
	ProfileID  string `json:"profile_id" binding:"required"`
	StartDate  string `json:"start_date" binding:"required"`
	EndDate    string `json:"end_date" binding:"required"`
	ReportType string `json:"report_type"`
}

// CreateFetch handles POST /api/v1/fetch.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) CreateFetch(c *gin.Context) {
	var req createFetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	dates, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		respondError(c, err)
		return
	}

	job, err := h.fetcher.StartFetch(c.Request.Context(), req.ProfileID, dates, req.ReportType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "report fetch started",
	})
}

type createImportRequest struct {
	UploadID  string `json:"upload_id" binding:"required"`
	ProfileID string `json:"profile_id" binding:"required"`
}

// CreateImport handles POST /api/v1/import.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) CreateImport(c *gin.Context) {
	var req createImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	job, err := h.importer.StartImport(c.Request.Context(), req.UploadID, req.ProfileID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "import started",
	})
}

// Status handles GET /api/v1/fetch/status/:job_id and
// GET /api/v1/import/status/:job_id. Both kinds share the registry, so one
// lookup serves either route.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) Status(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// List handles GET /api/v1/jobs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) List(c *gin.Context) {
	kind := domain.JobKind(c.Query("kind"))
	switch kind {
	case "", domain.JobKindFetch, domain.JobKindImport:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind: must be fetch or import"})
		return
	}

	jobs, err := h.jobs.List(c.Request.Context(), kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// parseRange parses explicit start/end date strings.
func parseRange(start, end string) (domain.DateRange, error) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return domain.DateRange{}, domain.Validationf("invalid start_date %q: want YYYY-MM-DD", start)
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return domain.DateRange{}, domain.Validationf("invalid end_date %q: want YYYY-MM-DD", end)
	}
	return domain.DateRange{Start: domain.Day(s), End: domain.Day(e)}, nil
}
