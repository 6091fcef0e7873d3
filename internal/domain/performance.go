package domain

import (
	"math"
	"time"
)

// Source tags recording where a performance row came from.
const (
	SourceAPI    = "api"
	SourceUpload = "upload"
)

// PerformanceRecord is one day of observed metrics for one advertising entity.
// The (EntityID, ProfileID, Date) triple is the natural key; a write with the
// same key replaces the stored metrics and descriptive attributes.
type PerformanceRecord struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"-"`
	EntityID     string     `gorm:"type:text;not null;index:idx_performance_natural,unique" json:"keyword_id"`
	ProfileID    string     `gorm:"type:text;not null;index:idx_performance_natural,unique" json:"profile_id"`
	Date         time.Time  `gorm:"not null;index:idx_performance_natural,unique" json:"date"`
	KeywordText  string     `gorm:"type:text" json:"keyword_text"`
	MatchType    string     `gorm:"type:text" json:"match_type"`
	CampaignID   string     `gorm:"type:text" json:"campaign_id,omitempty"`
	CampaignName string     `gorm:"type:text" json:"campaign_name,omitempty"`
	AdGroupID    string     `gorm:"type:text" json:"ad_group_id,omitempty"`
	AdGroupName  string     `gorm:"type:text" json:"ad_group_name,omitempty"`
	State        string     `gorm:"type:text;default:enabled" json:"state"`
	Bid          *float64   `json:"bid,omitempty"`
	Impressions  int64      `gorm:"default:0" json:"impressions"`
	Clicks       int64      `gorm:"default:0" json:"clicks"`
	Spend        float64    `gorm:"default:0" json:"spend"`
	Sales        float64    `gorm:"default:0" json:"sales"`
	Orders       int64      `gorm:"default:0" json:"orders"`
	Units        int64      `gorm:"default:0" json:"units"`
	Source       string     `gorm:"type:text;default:api;index:idx_performance_source" json:"source"`
	CreatedAt    time.Time  `json:"-"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for PerformanceRecord.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (PerformanceRecord) TableName() string {
	return "keyword_performance"
}

// DateRange is an inclusive [Start, End] span of days, both bounds normalized
// to midnight UTC.
type DateRange struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

// Validate rejects empty or inverted ranges.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return Validationf("start_date and end_date are required")
	}
	if r.End.Before(r.Start) {
		return Validationf("start_date %s is after end_date %s",
			r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	}
	return nil
}

// Contains reports whether day falls inside the range.
func (r DateRange) Contains(day time.Time) bool {
	return !day.Before(r.Start) && !day.After(r.End)
}

// Day truncates t to midnight UTC, the canonical form for record dates.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DerivedMetrics are computed at read time from stored raw metrics and are
// never persisted. Each value is nil when its denominator is zero.
// CTR, ACOS and the conversion rate are percentages; CPC and ROAS are plain
// ratios.
type DerivedMetrics struct {
	CPC            *float64 `json:"cpc"`
	CTR            *float64 `json:"ctr"`
	ACOS           *float64 `json:"acos"`
	ROAS           *float64 `json:"roas"`
	ConversionRate *float64 `json:"conversion_rate"`
}

// ComputeDerived derives CPC/CTR/ACOS/ROAS/conversion-rate from raw totals.
func ComputeDerived(impressions, clicks int64, spend, sales float64, orders int64) DerivedMetrics {
	var d DerivedMetrics
	if clicks > 0 {
		d.CPC = round2(spend / float64(clicks))
		d.ConversionRate = round2(float64(orders) / float64(clicks) * 100)
	}
	if impressions > 0 {
		d.CTR = round2(float64(clicks) / float64(impressions) * 100)
	}
	if sales > 0 {
		d.ACOS = round2(spend / sales * 100)
	}
	if spend > 0 {
		d.ROAS = round2(sales / spend)
	}
	return d
}

func round2(v float64) *float64 {
	r := math.Round(v*100) / 100
	return &r
}

// Summary aggregates a profile's totals over a date range.
type Summary struct {
	ProfileID        string   `json:"profile_id"`
	StartDate        string   `json:"start_date"`
	EndDate          string   `json:"end_date"`
	TotalSpend       float64  `json:"total_spend"`
	TotalSales       float64  `json:"total_sales"`
	TotalOrders      int64    `json:"total_orders"`
	TotalImpressions int64    `json:"total_impressions"`
	TotalClicks      int64    `json:"total_clicks"`
	AvgACOS          *float64 `json:"avg_acos"`
	AvgROAS          *float64 `json:"avg_roas"`
	AvgCTR           *float64 `json:"avg_ctr"`
	KeywordCount     int64    `json:"keyword_count"`
}

// EntityStats is one entity's raw sums plus derived metrics over a range.
type EntityStats struct {
	EntityID     string  `json:"keyword_id"`
	KeywordText  string  `json:"keyword_text"`
	MatchType    string  `json:"match_type"`
	CampaignName string  `json:"campaign_name,omitempty"`
	Impressions  int64   `json:"impressions"`
	Clicks       int64   `json:"clicks"`
	Spend        float64 `json:"spend"`
	Sales        float64 `json:"sales"`
	Orders       int64   `json:"orders"`
	Units        int64   `json:"units"`
	DerivedMetrics
}

// EntityPage is one page of entity aggregates plus the unpaginated total.
type EntityPage struct {
	Rows       []EntityStats `json:"keywords"`
	TotalCount int64         `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}

// TrendPoint is one time bucket's aggregate in a trends query.
type TrendPoint struct {
	BucketStart time.Time `json:"date"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Spend       float64   `json:"spend"`
	Sales       float64   `json:"sales"`
	Orders      int64     `json:"orders"`
}

// SourceStat describes one source tag's contribution to a profile's data.
type SourceStat struct {
	Source    string `json:"source"`
	Records   int64  `json:"records"`
	FirstDate string `json:"first_date"`
	LastDate  string `json:"last_date"`
}

// SourceBreakdown is the per-source attribution of a profile's records.
type SourceBreakdown struct {
	ProfileID    string       `json:"profile_id"`
	Sources      []SourceStat `json:"sources"`
	TotalRecords int64        `json:"total_records"`
}
