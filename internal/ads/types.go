package ads

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkaminski/adspulse/internal/domain"
)

// ReportTypeKeywords is the provider's report type for keyword performance.
const ReportTypeKeywords = "spKeywords"

// defaultMetrics are the columns requested for keyword reports.
var defaultMetrics = []string{
	"impressions",
	"clicks",
	"cost",
	"attributedConversions14d",
	"attributedSales14d",
	"attributedUnitsOrdered14d",
}

type reportConfiguration struct {
	AdProduct    string   `json:"adProduct"`
	GroupBy      []string `json:"groupBy"`
	Columns      []string `json:"columns"`
	ReportTypeID string   `json:"reportTypeId"`
	TimeUnit     string   `json:"timeUnit"`
	Format       string   `json:"format"`
}

// reportRequest is the v2 report-generation payload. The API keys SUMMARY
// reports off a single reportDate; the range's end date plays that role.
type reportRequest struct {
	ReportDate    string              `json:"reportDate"`
	Metrics       string              `json:"metrics"`
	Configuration reportConfiguration `json:"configuration"`
}

func newReportRequest(dates domain.DateRange, reportTypeID string) reportRequest {
	return reportRequest{
		ReportDate: dates.End.Format("2006-01-02"),
		Metrics:    strings.Join(defaultMetrics, ","),
		Configuration: reportConfiguration{
			AdProduct:    "SPONSORED_PRODUCTS",
			GroupBy:      []string{"keyword"},
			Columns:      defaultMetrics,
			ReportTypeID: reportTypeID,
			TimeUnit:     "SUMMARY",
			Format:       "JSON",
		},
	}
}

type reportRequestResponse struct {
	ReportID string `json:"reportId"`
}

// Report generation statuses returned by the provider.
const (
	StatusSuccess    = "SUCCESS"
	StatusFailure    = "FAILURE"
	StatusFailed     = "FAILED"
	StatusInProgress = "IN_PROGRESS"
	StatusPending    = "PENDING"
)

// ReportStatus is one poll of a pending report.
type ReportStatus struct {
	ReportID      string `json:"reportId"`
	Status        string `json:"status"`
	StatusDetails string `json:"statusDetails"`
	Location      string `json:"location"`
}

// Ready reports whether the payload can be downloaded.
func (s ReportStatus) Ready() bool {
	return s.Status == StatusSuccess
}

// Failed reports whether generation failed on the provider side.
func (s ReportStatus) Failed() bool {
	return s.Status == StatusFailure || s.Status == StatusFailed
}

// Running reports whether the provider is still generating the report.
func (s ReportStatus) Running() bool {
	return s.Status == StatusInProgress || s.Status == StatusPending
}

// AccountInfo identifies the seller or vendor account behind a profile.
type AccountInfo struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Name          string `json:"name"`
	MarketplaceID string `json:"marketplaceStringId"`
}

// Profile is one advertising profile visible to the configured credentials.
type Profile struct {
	ProfileID    int64       `json:"profileId"`
	CountryCode  string      `json:"countryCode"`
	CurrencyCode string      `json:"currencyCode"`
	Timezone     string      `json:"timezone"`
	AccountInfo  AccountInfo `json:"accountInfo"`
}

// ReportRow is one raw record of a downloaded keyword report.
type ReportRow struct {
	KeywordID                 int64    `json:"keywordId"`
	KeywordText               string   `json:"keywordText"`
	MatchType                 string   `json:"matchType"`
	CampaignID                int64    `json:"campaignId"`
	CampaignName              string   `json:"campaignName"`
	AdGroupID                 int64    `json:"adGroupId"`
	AdGroupName               string   `json:"adGroupName"`
	State                     string   `json:"state"`
	Bid                       *float64 `json:"bid"`
	Impressions               int64    `json:"impressions"`
	Clicks                    int64    `json:"clicks"`
	Cost                      float64  `json:"cost"`
	AttributedConversions14d  int64    `json:"attributedConversions14d"`
	AttributedSales14d        float64  `json:"attributedSales14d"`
	AttributedUnitsOrdered14d int64    `json:"attributedUnitsOrdered14d"`
}

// DecodeRow parses one raw report record. Rows decode one at a time so a
// malformed record is skipped by the caller instead of sinking the batch.
func DecodeRow(raw json.RawMessage) (ReportRow, error) {
	var row ReportRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return ReportRow{}, err
	}
	return row, nil
}

// Performance maps a provider row onto the internal record shape, stamped
// with the report's end date. SUMMARY reports carry no per-day breakdown.
func (r ReportRow) Performance(reportDate time.Time) domain.PerformanceRecord {
	rec := domain.PerformanceRecord{
		EntityID:     "unknown",
		Date:         domain.Day(reportDate),
		KeywordText:  r.KeywordText,
		MatchType:    r.MatchType,
		CampaignName: r.CampaignName,
		AdGroupName:  r.AdGroupName,
		State:        r.State,
		Impressions:  r.Impressions,
		Clicks:       r.Clicks,
		Spend:        r.Cost,
		Sales:        r.AttributedSales14d,
		Orders:       r.AttributedConversions14d,
		Units:        r.AttributedUnitsOrdered14d,
	}
	if r.KeywordID != 0 {
		rec.EntityID = strconv.FormatInt(r.KeywordID, 10)
	}
	if r.CampaignID != 0 {
		rec.CampaignID = strconv.FormatInt(r.CampaignID, 10)
	}
	if r.AdGroupID != 0 {
		rec.AdGroupID = strconv.FormatInt(r.AdGroupID, 10)
	}
	if rec.MatchType == "" {
		rec.MatchType = "UNKNOWN"
	}
	if rec.State == "" {
		rec.State = "UNKNOWN"
	}
	if r.Bid != nil && *r.Bid != 0 {
		bid := *r.Bid
		rec.Bid = &bid
	}
	return rec
}
