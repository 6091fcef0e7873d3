package store

import (
	"context"
	"testing"
	"time"

	"github.com/pkaminski/adspulse/internal/domain"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse day %q: %v", s, err)
	}
	return d
}

func rec(entity, date string, impressions, clicks int64, spend, sales float64, orders int64) domain.PerformanceRecord {
	d, _ := time.Parse("2006-01-02", date)
	return domain.PerformanceRecord{
		EntityID:    entity,
		Date:        d,
		KeywordText: "kw " + entity,
		MatchType:   "exact",
		Impressions: impressions,
		Clicks:      clicks,
		Spend:       spend,
		Sales:       sales,
		Orders:      orders,
		Units:       orders,
	}
}

func mustUpsert(t *testing.T, s Store, records []domain.PerformanceRecord, profile, source string) int {
	t.Helper()
	n, err := s.Upsert(context.Background(), records, profile, source)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	return n
}

func TestUpsertReplacesSameNaturalKey(t *testing.T) {
	s := NewMemory()
	dates := domain.DateRange{Start: day(t, "2025-06-01"), End: day(t, "2025-06-30")}

	mustUpsert(t, s, []domain.PerformanceRecord{rec("k1", "2025-06-02", 100, 10, 5.0, 20.0, 2)}, "p1", domain.SourceAPI)
	mustUpsert(t, s, []domain.PerformanceRecord{rec("k1", "2025-06-02", 300, 30, 9.0, 60.0, 6)}, "p1", domain.SourceUpload)

	sum, err := s.Summary(context.Background(), "p1", dates)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.TotalImpressions != 300 || sum.TotalClicks != 30 {
		t.Errorf("got impressions=%d clicks=%d, want the replacing write's 300/30",
			sum.TotalImpressions, sum.TotalClicks)
	}
	if sum.KeywordCount != 1 {
		t.Errorf("KeywordCount = %d, want 1 after same-key rewrite", sum.KeywordCount)
	}

	// The replacing write also retags the row's source.
	br, err := s.Sources(context.Background(), "p1", dates)
	if err != nil {
		t.Fatalf("Sources() error = %v", err)
	}
	if len(br.Sources) != 1 || br.Sources[0].Source != domain.SourceUpload {
		t.Errorf("Sources = %+v, want a single upload entry", br.Sources)
	}
}

func TestUpsertKeepsDistinctDatesApart(t *testing.T) {
	s := NewMemory()
	mustUpsert(t, s, []domain.PerformanceRecord{
		rec("k1", "2025-06-02", 100, 10, 5.0, 20.0, 2),
		rec("k1", "2025-06-03", 100, 10, 5.0, 20.0, 2),
	}, "p1", domain.SourceAPI)

	br, err := s.Sources(context.Background(), "p1",
		domain.DateRange{Start: day(t, "2025-06-01"), End: day(t, "2025-06-30")})
	if err != nil {
		t.Fatalf("Sources() error = %v", err)
	}
	if br.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2 rows for two dates", br.TotalRecords)
	}
}

func TestUpsertNormalizesDateToMidnightUTC(t *testing.T) {
	s := NewMemory()
	noon := time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC)
	r := rec("k1", "2025-06-02", 100, 10, 5.0, 20.0, 2)
	r.Date = noon
	mustUpsert(t, s, []domain.PerformanceRecord{r}, "p1", domain.SourceAPI)
	mustUpsert(t, s, []domain.PerformanceRecord{rec("k1", "2025-06-02", 1, 1, 1.0, 1.0, 1)}, "p1", domain.SourceAPI)

	sum, err := s.Summary(context.Background(), "p1",
		domain.DateRange{Start: day(t, "2025-06-01"), End: day(t, "2025-06-30")})
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.TotalImpressions != 1 {
		t.Errorf("TotalImpressions = %d, want 1: noon and midnight should share a key", sum.TotalImpressions)
	}
}

func TestUpsertRejectsMissingEntityID(t *testing.T) {
	s := NewMemory()
	n, err := s.Upsert(context.Background(), []domain.PerformanceRecord{
		rec("k1", "2025-06-02", 1, 1, 1, 1, 1),
		rec("", "2025-06-02", 1, 1, 1, 1, 1),
	}, "p1", domain.SourceAPI)
	if !domain.IsValidation(err) {
		t.Fatalf("Upsert() error = %v, want validation error", err)
	}
	if n != 1 {
		t.Errorf("applied = %d, want the record before the bad one to stay applied", n)
	}
}

func TestSummaryDerivedAverages(t *testing.T) {
	s := NewMemory()
	mustUpsert(t, s, []domain.PerformanceRecord{
		rec("k1", "2025-06-02", 1000, 50, 25.0, 100.0, 5),
		rec("k2", "2025-06-03", 1000, 50, 25.0, 100.0, 5),
	}, "p1", domain.SourceAPI)

	sum, err := s.Summary(context.Background(), "p1",
		domain.DateRange{Start: day(t, "2025-06-01"), End: day(t, "2025-06-30")})
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.AvgACOS == nil || *sum.AvgACOS != 25.0 {
		t.Errorf("AvgACOS = %v, want 25.00 (50 spend / 200 sales)", sum.AvgACOS)
	}
	if sum.AvgROAS == nil || *sum.AvgROAS != 4.0 {
		t.Errorf("AvgROAS = %v, want 4.00", sum.AvgROAS)
	}
	if sum.AvgCTR == nil || *sum.AvgCTR != 5.0 {
		t.Errorf("AvgCTR = %v, want 5.00", sum.AvgCTR)
	}
	if sum.KeywordCount != 2 {
		t.Errorf("KeywordCount = %d, want 2", sum.KeywordCount)
	}
}

func TestSummaryNilAveragesOnZeroDenominators(t *testing.T) {
	s := NewMemory()
	mustUpsert(t, s, []domain.PerformanceRecord{rec("k1", "2025-06-02", 0, 0, 3.0, 0, 0)}, "p1", domain.SourceAPI)

	sum, err := s.Summary(context.Background(), "p1",
		domain.DateRange{Start: day(t, "2025-06-01"), End: day(t, "2025-06-30")})
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.AvgACOS != nil {
		t.Errorf("AvgACOS = %v, want nil with zero sales", *sum.AvgACOS)
	}
	if sum.AvgCTR != nil {
		t.Errorf("AvgCTR = %v, want nil with zero impressions", *sum.AvgCTR)
	}
	if sum.AvgROAS == nil {
		t.Error("AvgROAS = nil, want a value: spend is nonzero")
	}
}

func TestSummaryEmptyRangeIsZeroes(t *testing.T) {
	s := NewMemory()
	mustUpsert(t, s, []domain.PerformanceRecord{rec("k1", "2025-06-02", 10, 1, 1, 1, 1)}, "p1", domain.SourceAPI)

	sum, err := s.Summary(context.Background(), "p1",
		domain.DateRange{Start: day(t, "2025-07-01"), End: day(t, "2025-07-31")})
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.TotalSpend != 0 || sum.KeywordCount != 0 {
		t.Errorf("got spend=%v count=%d, want all-zero summary outside the data", sum.TotalSpend, sum.KeywordCount)
	}
	if sum.AvgACOS != nil || sum.AvgROAS != nil || sum.AvgCTR != nil {
		t.Error("derived averages should be nil for an empty range")
	}
}

func TestListEntitiesSortsAndPages(t *testing.T) {
	s := NewMemory()
	mustUpsert(t, s, []domain.PerformanceRecord{
		rec("k1", "2025-06-02", 100, 10, 5.0, 10.0, 1),
		rec("k1", "2025-06-03", 100, 10, 7.0, 10.0, 1),
		rec("k2", "2025-06-02", 100, 10, 20.0, 10.0, 1),
		rec("k3", "2025-06-02", 100, 10, 1.0, 10.0, 1),
	}, "p1", domain.SourceAPI)
	dates := domain.DateRange{Start: day(t, "2025-06-01"), End: day(t, "2025-06-30")}

	page, err := s.ListEntities(context.Background(), "p1", dates, PageRequest{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("ListEntities() error = %v", err)
	}
	if page.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3 distinct entities", page.TotalCount)
	}
	if len(page.Rows) != 2 || page.Rows[0].EntityID != "k2" || page.Rows[1].EntityID != "k1" {
		t.Fatalf("page 1 rows = %+v, want k2 then k1 by spend desc", page.Rows)
	}
	if page.Rows[1].Spend != 12.0 {
		t.Errorf("k1 spend = %v, want 12.0 summed across both days", page.Rows[1].Spend)
	}

	page2, err := s.ListEntities(context.Background(), "p1", dates, PageRequest{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("ListEntities() page 2 error = %v", err)
	}
	if len(page2.Rows) != 1 || page2.Rows[0].EntityID != "k3" {
		t.Fatalf("page 2 rows = %+v, want just k3", page2.Rows)
	}

	// Totals summed across pages must match the unpaginated aggregate.
	var paged float64
	for _, r := range append(page.Rows, page2.Rows...) {
		paged += r.Spend
	}
	sum, err := s.Summary(context.Background(), "p1", dates)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if paged != sum.TotalSpend {
		t.Errorf("paged spend %v != summary spend %v", paged, sum.TotalSpend)
	}
}

func TestListEntitiesPageBeyondDataIsEmpty(t *testing.T) {
	s := NewMemory()
	mustUpsert(t, s, []domain.PerformanceRecord{rec("k1", "2025-06-02", 1, 1, 1, 1, 1)}, "p1", domain.SourceAPI)

	page, err := s.ListEntities(context.Background(), "p1",
		domain.DateRange{Start: day(t, "2025-06-01"), End: day(t, "2025-06-30")},
		PageRequest{Page: 9, PageSize: 50})
	if err != nil {
		t.Fatalf("ListEntities() error = %v", err)
	}
	if len(page.Rows) != 0 {
		t.Errorf("rows = %+v, want empty page past the data", page.Rows)
	}
	if page.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1 regardless of page", page.TotalCount)
	}
}

func TestListEntitiesAscendingTieBreak(t *testing.T) {
	s := NewMemory()
	mustUpsert(t, s, []domain.PerformanceRecord{
		rec("b", "2025-06-02", 10, 1, 5.0, 1, 0),
		rec("a", "2025-06-02", 10, 1, 5.0, 1, 0),
		rec("c", "2025-06-02", 10, 1, 2.0, 1, 0),
	}, "p1", domain.SourceAPI)

	page, err := s.ListEntities(context.Background(), "p1",
		domain.DateRange{Start: day(t, "2025-06-01"), End: day(t, "2025-06-30")},
		PageRequest{SortBy: SortSpend, SortOrder: OrderAsc})
	if err != nil {
		t.Fatalf("ListEntities() error = %v", err)
	}
	got := []string{page.Rows[0].EntityID, page.Rows[1].EntityID, page.Rows[2].EntityID}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v (asc, ties by entity id)", got, want)
		}
	}
}

func TestListEntitiesRejectsBadParams(t *testing.T) {
	s := NewMemory()
	dates := domain.DateRange{Start: day(t, "2025-06-01"), End: day(t, "2025-06-30")}

	cases := []struct {
		name string
		page PageRequest
	}{
		{"negative page", PageRequest{Page: -1}},
		{"oversized page size", PageRequest{PageSize: MaxPageSize + 1}},
		{"unknown sort field", PageRequest{SortBy: "acos"}},
		{"unknown sort order", PageRequest{SortOrder: "sideways"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.ListEntities(context.Background(), "p1", dates, tc.page)
			if !domain.IsValidation(err) {
				t.Errorf("error = %v, want validation error", err)
			}
		})
	}
}

func TestTrendsWeekBucketsAnchorOnMonday(t *testing.T) {
	s := NewMemory()
	// 2025-06-04 is a Wednesday and 2025-06-06 a Friday of the same ISO week;
	// 2025-06-09 is the following Monday.
	mustUpsert(t, s, []domain.PerformanceRecord{
		rec("k1", "2025-06-04", 10, 1, 1.0, 0, 0),
		rec("k2", "2025-06-06", 10, 1, 1.0, 0, 0),
		rec("k3", "2025-06-09", 10, 1, 1.0, 0, 0),
	}, "p1", domain.SourceAPI)

	points, err := s.Trends(context.Background(), "p1",
		domain.DateRange{Start: day(t, "2025-06-01"), End: day(t, "2025-06-30")}, BucketWeek)
	if err != nil {
		t.Fatalf("Trends() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d buckets, want 2 ISO weeks", len(points))
	}
	if got, want := points[0].BucketStart, day(t, "2025-06-02"); !got.Equal(want) {
		t.Errorf("first bucket starts %s, want Monday %s", got.Format("2006-01-02"), want.Format("2006-01-02"))
	}
	if points[0].Impressions != 20 {
		t.Errorf("first week impressions = %d, want 20", points[0].Impressions)
	}
	if got, want := points[1].BucketStart, day(t, "2025-06-09"); !got.Equal(want) {
		t.Errorf("second bucket starts %s, want Monday %s", got.Format("2006-01-02"), want.Format("2006-01-02"))
	}
}

func TestTrendsDayAndMonthBuckets(t *testing.T) {
	s := NewMemory()
	mustUpsert(t, s, []domain.PerformanceRecord{
		rec("k1", "2025-05-30", 10, 1, 1.0, 0, 0),
		rec("k1", "2025-06-01", 10, 1, 1.0, 0, 0),
		rec("k1", "2025-06-15", 10, 1, 1.0, 0, 0),
	}, "p1", domain.SourceAPI)
	dates := domain.DateRange{Start: day(t, "2025-05-01"), End: day(t, "2025-06-30")}

	days, err := s.Trends(context.Background(), "p1", dates, BucketDay)
	if err != nil {
		t.Fatalf("Trends(day) error = %v", err)
	}
	if len(days) != 3 {
		t.Errorf("day buckets = %d, want 3 with no zero-fill between", len(days))
	}

	months, err := s.Trends(context.Background(), "p1", dates, BucketMonth)
	if err != nil {
		t.Fatalf("Trends(month) error = %v", err)
	}
	if len(months) != 2 {
		t.Fatalf("month buckets = %d, want 2", len(months))
	}
	if got, want := months[1].BucketStart, day(t, "2025-06-01"); !got.Equal(want) {
		t.Errorf("second month starts %s, want %s", got.Format("2006-01-02"), want.Format("2006-01-02"))
	}
	if months[1].Impressions != 20 {
		t.Errorf("June impressions = %d, want 20", months[1].Impressions)
	}
}

func TestTrendsRejectsUnknownBucket(t *testing.T) {
	s := NewMemory()
	_, err := s.Trends(context.Background(), "p1",
		domain.DateRange{Start: day(t, "2025-06-01"), End: day(t, "2025-06-30")}, "fortnight")
	if !domain.IsValidation(err) {
		t.Errorf("error = %v, want validation error for unknown bucket", err)
	}
}

func TestSourcesSpansAndTotals(t *testing.T) {
	s := NewMemory()
	mustUpsert(t, s, []domain.PerformanceRecord{
		rec("k1", "2025-06-02", 1, 1, 1, 1, 1),
		rec("k1", "2025-06-05", 1, 1, 1, 1, 1),
	}, "p1", domain.SourceAPI)
	mustUpsert(t, s, []domain.PerformanceRecord{
		rec("k2", "2025-06-03", 1, 1, 1, 1, 1),
	}, "p1", domain.SourceUpload)

	br, err := s.Sources(context.Background(), "p1",
		domain.DateRange{Start: day(t, "2025-06-01"), End: day(t, "2025-06-30")})
	if err != nil {
		t.Fatalf("Sources() error = %v", err)
	}
	if br.TotalRecords != 3 || len(br.Sources) != 2 {
		t.Fatalf("breakdown = %+v, want 3 records across 2 sources", br)
	}
	api := br.Sources[0]
	if api.Source != domain.SourceAPI || api.Records != 2 {
		t.Errorf("first source = %+v, want api with 2 records", api)
	}
	if api.FirstDate != "2025-06-02" || api.LastDate != "2025-06-05" {
		t.Errorf("api span = %s..%s, want 2025-06-02..2025-06-05", api.FirstDate, api.LastDate)
	}
}

func TestQueriesRejectInvertedRange(t *testing.T) {
	s := NewMemory()
	bad := domain.DateRange{Start: day(t, "2025-06-30"), End: day(t, "2025-06-01")}
	if _, err := s.Summary(context.Background(), "p1", bad); !domain.IsValidation(err) {
		t.Errorf("Summary error = %v, want validation error", err)
	}
	if _, err := s.Trends(context.Background(), "p1", bad, BucketDay); !domain.IsValidation(err) {
		t.Errorf("Trends error = %v, want validation error", err)
	}
}

func TestProfilesAreIsolated(t *testing.T) {
	s := NewMemory()
	mustUpsert(t, s, []domain.PerformanceRecord{rec("k1", "2025-06-02", 10, 1, 1, 1, 1)}, "p1", domain.SourceAPI)
	mustUpsert(t, s, []domain.PerformanceRecord{rec("k1", "2025-06-02", 90, 9, 9, 9, 9)}, "p2", domain.SourceAPI)

	sum, err := s.Summary(context.Background(), "p1",
		domain.DateRange{Start: day(t, "2025-06-01"), End: day(t, "2025-06-30")})
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.TotalImpressions != 10 {
		t.Errorf("TotalImpressions = %d, want only p1's 10", sum.TotalImpressions)
	}
}
