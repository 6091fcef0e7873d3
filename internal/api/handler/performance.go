package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pkaminski/adspulse/internal/domain"
	"github.com/pkaminski/adspulse/internal/store"
)

// defaultRangeDays is how far back the date range reaches when the caller
// leaves it off, matching the dashboard's trailing-30-days view.
const defaultRangeDays = 30

// PerformanceHandler serves the aggregation read shapes over the
// performance store.
type PerformanceHandler struct {
	perf store.Store
	now  func() time.Time
}

// NewPerformanceHandler creates a new performance handler.
// Parameters:
//   - perf: performance store answering the aggregation queries.
// Returns:
//   - *PerformanceHandler: initialized handler.
func NewPerformanceHandler(perf store.Store) *PerformanceHandler {
	return &PerformanceHandler{
		perf: perf,
		now:  time.Now,
	}
}

// Summary handles GET /api/v1/performance/:profile_id/summary.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PerformanceHandler) Summary(c *gin.Context) {
	dates, err := h.queryRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	summary, err := h.perf.Summary(c.Request.Context(), c.Param("profile_id"), dates)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Keywords handles GET /api/v1/performance/:profile_id/keywords.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PerformanceHandler) Keywords(c *gin.Context) {
	dates, err := h.queryRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	page, err := queryPage(c)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := h.perf.ListEntities(c.Request.Context(), c.Param("profile_id"), dates, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Trends handles GET /api/v1/performance/:profile_id/trends.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PerformanceHandler) Trends(c *gin.Context) {
	dates, err := h.queryRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	bucket := c.DefaultQuery("bucket", store.BucketDay)
	points, err := h.perf.Trends(c.Request.Context(), c.Param("profile_id"), dates, bucket)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile_id": c.Param("profile_id"),
		"bucket":     bucket,
		"trends":     points,
	})
}

// Sources handles GET /api/v1/performance/:profile_id/sources.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PerformanceHandler) Sources(c *gin.Context) {
	dates, err := h.queryRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	breakdown, err := h.perf.Sources(c.Request.Context(), c.Param("profile_id"), dates)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

// queryRange reads start_date/end_date query params, defaulting to the
// trailing 30 days when a bound is absent.
func (h *PerformanceHandler) queryRange(c *gin.Context) (domain.DateRange, error) {
	var dates domain.DateRange

	if s := c.Query("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return dates, domain.Validationf("invalid end_date %q: want YYYY-MM-DD", s)
		}
		dates.End = domain.Day(t)
	} else {
		dates.End = domain.Day(h.now())
	}

	if s := c.Query("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return dates, domain.Validationf("invalid start_date %q: want YYYY-MM-DD", s)
		}
		dates.Start = domain.Day(t)
	} else {
		dates.Start = dates.End.AddDate(0, 0, -defaultRangeDays)
	}

	return dates, dates.Validate()
}

// queryPage reads pagination and sort query params. Range and value checks
// live in PageRequest.Normalize, run by the store before querying.
func queryPage(c *gin.Context) (store.PageRequest, error) {
	page := store.PageRequest{
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if s := c.Query("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return page, domain.Validationf("invalid page %q", s)
		}
		page.Page = n
	}
	if s := c.Query("page_size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return page, domain.Validationf("invalid page_size %q", s)
		}
		page.PageSize = n
	}
	return page, nil
}
