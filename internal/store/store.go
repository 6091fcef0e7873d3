// Package store persists advertising performance records and serves the
// aggregation queries behind the dashboard. Writes are deduplicating
// upserts keyed by (entity_id, profile_id, date); reads are summary,
// entity-list, trend and source-attribution shapes.
package store

import (
	"context"
	"time"

	"github.com/pkaminski/adspulse/internal/domain"
)

// Time buckets accepted by Trends.
const (
	BucketDay   = "day"
	BucketWeek  = "week"
	BucketMonth = "month"
)

// Sort fields accepted by ListEntities.
const (
	SortSpend       = "spend"
	SortSales       = "sales"
	SortClicks      = "clicks"
	SortImpressions = "impressions"
	SortOrders      = "orders"
	SortUnits       = "units"
)

// Sort orders accepted by ListEntities.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// PageRequest carries pagination and sorting for ListEntities. Page is
// 1-indexed; a page beyond the data yields an empty page, not an error.
type PageRequest struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Normalize fills defaults and rejects invalid values before any query runs.
func (p *PageRequest) Normalize() error {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Page < 1 {
		return domain.Validationf("page must be >= 1, got %d", p.Page)
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize < 1 {
		return domain.Validationf("page_size must be >= 1, got %d", p.PageSize)
	}
	if p.PageSize > MaxPageSize {
		return domain.Validationf("page_size exceeds maximum of %d", MaxPageSize)
	}
	if p.SortBy == "" {
		p.SortBy = SortSpend
	}
	switch p.SortBy {
	case SortSpend, SortSales, SortClicks, SortImpressions, SortOrders, SortUnits:
	default:
		return domain.Validationf("invalid sort_by %q", p.SortBy)
	}
	if p.SortOrder == "" {
		p.SortOrder = OrderDesc
	}
	if p.SortOrder != OrderAsc && p.SortOrder != OrderDesc {
		return domain.Validationf("invalid sort_order %q: must be asc or desc", p.SortOrder)
	}
	return nil
}

// ValidateBucket rejects unknown trend bucket values.
func ValidateBucket(bucket string) error {
	switch bucket {
	case BucketDay, BucketWeek, BucketMonth:
		return nil
	}
	return domain.Validationf("invalid bucket %q: must be day, week or month", bucket)
}

// BucketStart maps a day to the canonical start of its bucket: the day
// itself, the preceding (or same) Monday, or the first of the month. Both
// store engines use this mapping so bucket boundaries always agree.
func BucketStart(bucket string, day time.Time) time.Time {
	switch bucket {
	case BucketWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case BucketMonth:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Store is the deduplicating performance datastore. Implementations are safe
// for concurrent writers and readers; two writes to the same natural key
// resolve last-write-wins in store-admission order.
type Store interface {
	// Upsert applies records one by one, replace-or-insert by natural key,
	// stamping each with profileID and source. It returns the number of
	// records applied; a mid-batch failure leaves earlier upserts in place.
	Upsert(ctx context.Context, records []domain.PerformanceRecord, profileID, source string) (int, error)
	// Summary aggregates totals and derived averages over the range.
	Summary(ctx context.Context, profileID string, dates domain.DateRange) (domain.Summary, error)
	// ListEntities groups rows by entity, sums metrics, sorts and pages.
	ListEntities(ctx context.Context, profileID string, dates domain.DateRange, page PageRequest) (domain.EntityPage, error)
	// Trends returns chronologically ordered per-bucket aggregates. Empty
	// buckets are omitted, not zero-filled.
	Trends(ctx context.Context, profileID string, dates domain.DateRange, bucket string) ([]domain.TrendPoint, error)
	// Sources breaks down record counts and covered spans by source tag.
	Sources(ctx context.Context, profileID string, dates domain.DateRange) (domain.SourceBreakdown, error)
}
