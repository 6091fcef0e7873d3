package repository

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pkaminski/adspulse/internal/domain"
	"github.com/pkaminski/adspulse/internal/store"
)

// upsertColumns are the fields a same-key write replaces. The natural key
// and created_at survive.
var upsertColumns = []string{
	"keyword_text", "match_type", "campaign_id", "campaign_name",
	"ad_group_id", "ad_group_name", "state", "bid",
	"impressions", "clicks", "spend", "sales", "orders", "units",
	"source", "updated_at",
}

// PerformanceRepository is the database-backed performance store engine.
// Aggregations avoid dialect-specific date functions: SQL groups by the raw
// day column and the store package's bucket mapping folds days into weeks
// and months, so SQLite and PostgreSQL agree with the in-memory engine.
type PerformanceRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPerformanceRepository creates a new PerformanceRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *PerformanceRepository: repository instance bound to db.
func NewPerformanceRepository(db *gorm.DB) *PerformanceRepository {
	return &PerformanceRepository{db: db, now: time.Now}
}

// Upsert applies records one by one, replace-or-insert by natural key. Each
// record is its own statement; a failure mid-batch leaves earlier upserts in
// place and reports how many were applied.
func (r *PerformanceRepository) Upsert(ctx context.Context, records []domain.PerformanceRecord, profileID, source string) (int, error) {
	applied := 0
	for i := range records {
		rec := records[i]
		if rec.EntityID == "" {
			return applied, domain.Validationf("record %d has no entity id", applied)
		}
		rec.ID = 0
		rec.ProfileID = profileID
		rec.Source = source
		rec.Date = domain.Day(rec.Date)
		rec.UpdatedAt = r.now()

		err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "entity_id"}, {Name: "profile_id"}, {Name: "date"},
			},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).Create(&rec).Error
		if err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (r *PerformanceRepository) scoped(ctx context.Context, profileID string, dates domain.DateRange) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&domain.PerformanceRecord{}).
		Where("profile_id = ? AND date >= ? AND date <= ?", profileID, dates.Start, dates.End)
}

// Summary aggregates totals over the range and derives the average ratios
// from the totals, not per-row averages.
func (r *PerformanceRepository) Summary(ctx context.Context, profileID string, dates domain.DateRange) (domain.Summary, error) {
	if err := dates.Validate(); err != nil {
		return domain.Summary{}, err
	}

	var row struct {
		TotalSpend       float64
		TotalSales       float64
		TotalOrders      int64
		TotalImpressions int64
		TotalClicks      int64
		KeywordCount     int64
	}
	err := r.scoped(ctx, profileID, dates).
		Select("COALESCE(SUM(spend), 0) AS total_spend, " +
			"COALESCE(SUM(sales), 0) AS total_sales, " +
			"COALESCE(SUM(orders), 0) AS total_orders, " +
			"COALESCE(SUM(impressions), 0) AS total_impressions, " +
			"COALESCE(SUM(clicks), 0) AS total_clicks, " +
			"COUNT(DISTINCT entity_id) AS keyword_count").
		Scan(&row).Error
	if err != nil {
		return domain.Summary{}, err
	}

	s := domain.Summary{
		ProfileID:        profileID,
		StartDate:        dates.Start.Format("2006-01-02"),
		EndDate:          dates.End.Format("2006-01-02"),
		TotalSpend:       row.TotalSpend,
		TotalSales:       row.TotalSales,
		TotalOrders:      row.TotalOrders,
		TotalImpressions: row.TotalImpressions,
		TotalClicks:      row.TotalClicks,
		KeywordCount:     row.KeywordCount,
	}
	d := domain.ComputeDerived(s.TotalImpressions, s.TotalClicks, s.TotalSpend, s.TotalSales, s.TotalOrders)
	s.AvgACOS = d.ACOS
	s.AvgROAS = d.ROAS
	s.AvgCTR = d.CTR
	return s, nil
}

// ListEntities groups rows by entity, sums metrics in SQL and returns one
// sorted page. Descriptive attributes come from each entity's most recent
// row in the range, fetched in a second query scoped to the page.
func (r *PerformanceRepository) ListEntities(ctx context.Context, profileID string, dates domain.DateRange, page store.PageRequest) (domain.EntityPage, error) {
	if err := dates.Validate(); err != nil {
		return domain.EntityPage{}, err
	}
	if err := page.Normalize(); err != nil {
		return domain.EntityPage{}, err
	}

	out := domain.EntityPage{
		Page:     page.Page,
		PageSize: page.PageSize,
		Rows:     []domain.EntityStats{},
	}
	if err := r.scoped(ctx, profileID, dates).
		Distinct("entity_id").
		Count(&out.TotalCount).Error; err != nil {
		return domain.EntityPage{}, err
	}

	direction := "DESC"
	if page.SortOrder == store.OrderAsc {
		direction = "ASC"
	}
	var rows []domain.EntityStats
	err := r.scoped(ctx, profileID, dates).
		Select("entity_id, " +
			"SUM(impressions) AS impressions, SUM(clicks) AS clicks, " +
			"SUM(spend) AS spend, SUM(sales) AS sales, " +
			"SUM(orders) AS orders, SUM(units) AS units").
		Group("entity_id").
		Order(page.SortBy + " " + direction + ", entity_id ASC").
		Limit(page.PageSize).
		Offset((page.Page - 1) * page.PageSize).
		Scan(&rows).Error
	if err != nil {
		return domain.EntityPage{}, err
	}
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.EntityID
	}
	var descriptors []struct {
		EntityID     string
		KeywordText  string
		MatchType    string
		CampaignName string
		Date         time.Time
	}
	err = r.scoped(ctx, profileID, dates).
		Select("entity_id, keyword_text, match_type, campaign_name, date").
		Where("entity_id IN ?", ids).
		Order("date ASC").
		Scan(&descriptors).Error
	if err != nil {
		return domain.EntityPage{}, err
	}
	latest := make(map[string]int, len(ids))
	for i := range rows {
		latest[rows[i].EntityID] = i
	}
	for _, d := range descriptors {
		i, ok := latest[d.EntityID]
		if !ok {
			continue
		}
		rows[i].KeywordText = d.KeywordText
		rows[i].MatchType = d.MatchType
		rows[i].CampaignName = d.CampaignName
	}

	for i := range rows {
		rows[i].DerivedMetrics = domain.ComputeDerived(
			rows[i].Impressions, rows[i].Clicks, rows[i].Spend, rows[i].Sales, rows[i].Orders)
	}
	out.Rows = rows
	return out, nil
}

// Trends returns chronologically ordered per-bucket aggregates. SQL groups
// by day; days fold into the requested bucket via the shared mapping.
func (r *PerformanceRepository) Trends(ctx context.Context, profileID string, dates domain.DateRange, bucket string) ([]domain.TrendPoint, error) {
	if err := dates.Validate(); err != nil {
		return nil, err
	}
	if err := store.ValidateBucket(bucket); err != nil {
		return nil, err
	}

	var days []struct {
		Date        time.Time
		Impressions int64
		Clicks      int64
		Spend       float64
		Sales       float64
		Orders      int64
	}
	err := r.scoped(ctx, profileID, dates).
		Select("date, SUM(impressions) AS impressions, SUM(clicks) AS clicks, " +
			"SUM(spend) AS spend, SUM(sales) AS sales, SUM(orders) AS orders").
		Group("date").
		Order("date ASC").
		Scan(&days).Error
	if err != nil {
		return nil, err
	}

	buckets := make(map[time.Time]*domain.TrendPoint)
	for _, d := range days {
		start := store.BucketStart(bucket, domain.Day(d.Date))
		p, ok := buckets[start]
		if !ok {
			p = &domain.TrendPoint{BucketStart: start}
			buckets[start] = p
		}
		p.Impressions += d.Impressions
		p.Clicks += d.Clicks
		p.Spend += d.Spend
		p.Sales += d.Sales
		p.Orders += d.Orders
	}
	points := make([]domain.TrendPoint, 0, len(buckets))
	for _, p := range buckets {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].BucketStart.Before(points[j].BucketStart)
	})
	return points, nil
}

// Sources breaks down record counts and covered spans by source tag. SQL
// counts per (source, day); the spans fold in Go to stay portable.
func (r *PerformanceRepository) Sources(ctx context.Context, profileID string, dates domain.DateRange) (domain.SourceBreakdown, error) {
	if err := dates.Validate(); err != nil {
		return domain.SourceBreakdown{}, err
	}

	var days []struct {
		Source  string
		Date    time.Time
		Records int64
	}
	err := r.scoped(ctx, profileID, dates).
		Select("source, date, COUNT(*) AS records").
		Group("source, date").
		Scan(&days).Error
	if err != nil {
		return domain.SourceBreakdown{}, err
	}

	type span struct {
		count       int64
		first, last time.Time
	}
	spans := make(map[string]*span)
	for _, d := range days {
		day := domain.Day(d.Date)
		s, ok := spans[d.Source]
		if !ok {
			s = &span{first: day, last: day}
			spans[d.Source] = s
		}
		s.count += d.Records
		if day.Before(s.first) {
			s.first = day
		}
		if day.After(s.last) {
			s.last = day
		}
	}

	out := domain.SourceBreakdown{ProfileID: profileID, Sources: []domain.SourceStat{}}
	names := make([]string, 0, len(spans))
	for name := range spans {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := spans[name]
		out.Sources = append(out.Sources, domain.SourceStat{
			Source:    name,
			Records:   s.count,
			FirstDate: s.first.Format("2006-01-02"),
			LastDate:  s.last.Format("2006-01-02"),
		})
		out.TotalRecords += s.count
	}
	return out, nil
}
