package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkaminski/adspulse/internal/domain"
)

type recordKey struct {
	entityID  string
	profileID string
	date      time.Time
}

// Memory is an in-memory Store used by tests and by deployments that run
// without a database. All aggregation happens over a snapshot of the map, so
// reads never block writers for long.
type Memory struct {
	mu      sync.RWMutex
	records map[recordKey]*domain.PerformanceRecord
	now     func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock returns an in-memory store that stamps created/updated
// times from the given clock.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		records: make(map[recordKey]*domain.PerformanceRecord),
		now:     now,
	}
}

// Upsert applies records in order, replace-or-insert by natural key.
func (m *Memory) Upsert(ctx context.Context, records []domain.PerformanceRecord, profileID, source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	applied := 0
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		if r.EntityID == "" {
			return applied, domain.Validationf("record %d has no entity id", applied)
		}
		r.ProfileID = profileID
		r.Source = source
		r.Date = domain.Day(r.Date)

		k := recordKey{entityID: r.EntityID, profileID: r.ProfileID, date: r.Date}
		now := m.now()
		if prev, ok := m.records[k]; ok {
			r.ID = prev.ID
			r.CreatedAt = prev.CreatedAt
		} else {
			r.ID = uint(len(m.records) + 1)
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		stored := r
		m.records[k] = &stored
		applied++
	}
	return applied, nil
}

// Summary aggregates totals over the range and derives the average ratios.
func (m *Memory) Summary(ctx context.Context, profileID string, dates domain.DateRange) (domain.Summary, error) {
	if err := dates.Validate(); err != nil {
		return domain.Summary{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := domain.Summary{
		ProfileID: profileID,
		StartDate: dates.Start.Format("2006-01-02"),
		EndDate:   dates.End.Format("2006-01-02"),
	}
	entities := make(map[string]struct{})
	for _, r := range m.records {
		if !m.inScope(r, profileID, dates) {
			continue
		}
		s.TotalSpend += r.Spend
		s.TotalSales += r.Sales
		s.TotalOrders += r.Orders
		s.TotalImpressions += r.Impressions
		s.TotalClicks += r.Clicks
		entities[r.EntityID] = struct{}{}
	}
	s.KeywordCount = int64(len(entities))

	d := domain.ComputeDerived(s.TotalImpressions, s.TotalClicks, s.TotalSpend, s.TotalSales, s.TotalOrders)
	s.AvgACOS = d.ACOS
	s.AvgROAS = d.ROAS
	s.AvgCTR = d.CTR
	return s, nil
}

type entityAgg struct {
	stats    domain.EntityStats
	lastDate time.Time
}

// ListEntities groups the profile's rows by entity, sums their metrics and
// returns one sorted page. Descriptive attributes come from each entity's
// most recent row in the range.
func (m *Memory) ListEntities(ctx context.Context, profileID string, dates domain.DateRange, page PageRequest) (domain.EntityPage, error) {
	if err := dates.Validate(); err != nil {
		return domain.EntityPage{}, err
	}
	if err := page.Normalize(); err != nil {
		return domain.EntityPage{}, err
	}

	m.mu.RLock()
	groups := make(map[string]*entityAgg)
	for _, r := range m.records {
		if !m.inScope(r, profileID, dates) {
			continue
		}
		g, ok := groups[r.EntityID]
		if !ok {
			g = &entityAgg{stats: domain.EntityStats{EntityID: r.EntityID}}
			groups[r.EntityID] = g
		}
		g.stats.Impressions += r.Impressions
		g.stats.Clicks += r.Clicks
		g.stats.Spend += r.Spend
		g.stats.Sales += r.Sales
		g.stats.Orders += r.Orders
		g.stats.Units += r.Units
		if !r.Date.Before(g.lastDate) {
			g.lastDate = r.Date
			g.stats.KeywordText = r.KeywordText
			g.stats.MatchType = r.MatchType
			g.stats.CampaignName = r.CampaignName
		}
	}
	m.mu.RUnlock()

	rows := make([]domain.EntityStats, 0, len(groups))
	for _, g := range groups {
		g.stats.DerivedMetrics = domain.ComputeDerived(
			g.stats.Impressions, g.stats.Clicks, g.stats.Spend, g.stats.Sales, g.stats.Orders)
		rows = append(rows, g.stats)
	}
	sortEntities(rows, page.SortBy, page.SortOrder)

	out := domain.EntityPage{
		TotalCount: int64(len(rows)),
		Page:       page.Page,
		PageSize:   page.PageSize,
		Rows:       []domain.EntityStats{},
	}
	start := (page.Page - 1) * page.PageSize
	if start < len(rows) {
		end := start + page.PageSize
		if end > len(rows) {
			end = len(rows)
		}
		out.Rows = rows[start:end]
	}
	return out, nil
}

// Trends buckets the profile's rows by day, ISO week or calendar month.
func (m *Memory) Trends(ctx context.Context, profileID string, dates domain.DateRange, bucket string) ([]domain.TrendPoint, error) {
	if err := dates.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateBucket(bucket); err != nil {
		return nil, err
	}

	m.mu.RLock()
	buckets := make(map[time.Time]*domain.TrendPoint)
	for _, r := range m.records {
		if !m.inScope(r, profileID, dates) {
			continue
		}
		start := BucketStart(bucket, r.Date)
		p, ok := buckets[start]
		if !ok {
			p = &domain.TrendPoint{BucketStart: start}
			buckets[start] = p
		}
		p.Impressions += r.Impressions
		p.Clicks += r.Clicks
		p.Spend += r.Spend
		p.Sales += r.Sales
		p.Orders += r.Orders
	}
	m.mu.RUnlock()

	points := make([]domain.TrendPoint, 0, len(buckets))
	for _, p := range buckets {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].BucketStart.Before(points[j].BucketStart)
	})
	return points, nil
}

// Sources breaks down the profile's rows by source tag.
func (m *Memory) Sources(ctx context.Context, profileID string, dates domain.DateRange) (domain.SourceBreakdown, error) {
	if err := dates.Validate(); err != nil {
		return domain.SourceBreakdown{}, err
	}

	type span struct {
		count       int64
		first, last time.Time
	}
	m.mu.RLock()
	spans := make(map[string]*span)
	for _, r := range m.records {
		if !m.inScope(r, profileID, dates) {
			continue
		}
		s, ok := spans[r.Source]
		if !ok {
			s = &span{first: r.Date, last: r.Date}
			spans[r.Source] = s
		}
		s.count++
		if r.Date.Before(s.first) {
			s.first = r.Date
		}
		if r.Date.After(s.last) {
			s.last = r.Date
		}
	}
	m.mu.RUnlock()

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

func (m *Memory) inScope(r *domain.PerformanceRecord, profileID string, dates domain.DateRange) bool {
	return r.ProfileID == profileID && dates.Contains(r.Date)
}

func sortEntities(rows []domain.EntityStats, sortBy, order string) {
	metric := func(e domain.EntityStats) float64 {
		switch sortBy {
		case SortSales:
			return e.Sales
		case SortClicks:
			return float64(e.Clicks)
		case SortImpressions:
			return float64(e.Impressions)
		case SortOrders:
			return float64(e.Orders)
		case SortUnits:
			return float64(e.Units)
		default:
			return e.Spend
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := metric(rows[i]), metric(rows[j])
		if a == b {
			return rows[i].EntityID < rows[j].EntityID
		}
		if order == OrderAsc {
			return a < b
		}
		return a > b
	})
}
