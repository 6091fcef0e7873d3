package ads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkaminski/adspulse/internal/domain"
)

func testRange(t *testing.T, start, end string) domain.DateRange {
	t.Helper()
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		t.Fatalf("parse %q: %v", start, err)
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		t.Fatalf("parse %q: %v", end, err)
	}
	return domain.DateRange{Start: s, End: e}
}

// countingAuth serves the token endpoint and counts exchanges.
func countingAuth(calls *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got := r.PostFormValue("grant_type"); got != "refresh_token" {
			http.Error(w, "bad grant_type "+got, http.StatusBadRequest)
			return
		}
		if r.PostFormValue("refresh_token") == "" || r.PostFormValue("client_id") == "" || r.PostFormValue("client_secret") == "" {
			http.Error(w, "missing credentials", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":3600}`, n)
	}
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "refresh",
		APIBase:      srv.URL,
		AuthURL:      srv.URL + "/auth",
	}, nil)
}

func TestAccessTokenCachedUntilExpiryMargin(t *testing.T) {
	var authCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", countingAuth(&authCalls))
	mux.HandleFunc("/v2/profiles", func(w http.ResponseWriter, r *http.Request) {
		if scope := r.Header.Get("Amazon-Advertising-API-Scope"); scope != "" {
			t.Errorf("profile listing sent scope header %q", scope)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"profileId":111,"countryCode":"US","currencyCode":"USD"}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.ListProfiles(ctx); err != nil {
			t.Fatalf("ListProfiles() %d error = %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&authCalls); n != 1 {
		t.Fatalf("token exchanges = %d, want 1 while the cached token is fresh", n)
	}

	// 59s of lifetime left is inside the 60s margin, so the next call refreshes.
	current = current.Add(3541 * time.Second)
	if _, err := c.ListProfiles(ctx); err != nil {
		t.Fatalf("ListProfiles() after expiry error = %v", err)
	}
	if n := atomic.LoadInt32(&authCalls); n != 2 {
		t.Errorf("token exchanges = %d, want 2 after the margin was crossed", n)
	}
}

func TestAccessTokenFailureIsAuthError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.AccessToken(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *AuthError", err)
	}
	if IsRetryable(err) {
		t.Error("auth failures must not be retryable")
	}
}

func TestRequestReportSendsProviderPayload(t *testing.T) {
	var authCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", countingAuth(&authCalls))
	mux.HandleFunc("/v2/sp/keywords/report", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want Bearer tok-1", got)
		}
		if got := r.Header.Get("Amazon-Advertising-API-ClientId"); got != "cid" {
			t.Errorf("ClientId header = %q, want cid", got)
		}
		if got := r.Header.Get("Amazon-Advertising-API-Scope"); got != "p1" {
			t.Errorf("Scope header = %q, want p1", got)
		}

		var payload struct {
			ReportDate    string `json:"reportDate"`
			Metrics       string `json:"metrics"`
			Configuration struct {
				AdProduct    string   `json:"adProduct"`
				GroupBy      []string `json:"groupBy"`
				ReportTypeID string   `json:"reportTypeId"`
				TimeUnit     string   `json:"timeUnit"`
				Format       string   `json:"format"`
			} `json:"configuration"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload.ReportDate != "2025-06-07" {
			t.Errorf("reportDate = %q, want the range end 2025-06-07", payload.ReportDate)
		}
		if payload.Metrics == "" || payload.Configuration.AdProduct != "SPONSORED_PRODUCTS" {
			t.Errorf("payload = %+v, want comma-joined metrics and SPONSORED_PRODUCTS", payload)
		}
		if len(payload.Configuration.GroupBy) != 1 || payload.Configuration.GroupBy[0] != "keyword" {
			t.Errorf("groupBy = %v, want [keyword]", payload.Configuration.GroupBy)
		}
		if payload.Configuration.ReportTypeID != ReportTypeKeywords || payload.Configuration.TimeUnit != "SUMMARY" {
			t.Errorf("configuration = %+v", payload.Configuration)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"reportId":"r-123"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	id, err := c.RequestReport(context.Background(), "p1", testRange(t, "2025-06-01", "2025-06-07"), ReportTypeKeywords)
	if err != nil {
		t.Fatalf("RequestReport() error = %v", err)
	}
	if id != "r-123" {
		t.Errorf("report id = %q, want r-123", id)
	}
}

func TestRequestReportErrorClassification(t *testing.T) {
	var status int32
	var authCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", countingAuth(&authCalls))
	mux.HandleFunc("/v2/sp/keywords/report", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", int(atomic.LoadInt32(&status)))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(srv)

	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusUnprocessableEntity, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("HTTP %d", tc.status), func(t *testing.T) {
			atomic.StoreInt32(&status, int32(tc.status))
			_, err := c.RequestReport(context.Background(), "p1", testRange(t, "2025-06-01", "2025-06-07"), ReportTypeKeywords)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.StatusCode != tc.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tc.status)
			}
			if got := IsRetryable(err); got != tc.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tc.retryable)
			}
		})
	}
}

func TestReportStatusAndDownload(t *testing.T) {
	var authCalls int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/auth", countingAuth(&authCalls))
	mux.HandleFunc("/v2/reports/r-9", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"reportId":"r-9","status":"SUCCESS","location":%q}`, srv.URL+"/files/r-9")
	})
	mux.HandleFunc("/files/r-9", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("download sent Authorization %q, location URLs are pre-signed", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"keywordId":42,"keywordText":"wool socks","matchType":"exact","cost":3.5,"clicks":7,"impressions":100,"attributedSales14d":21.0,"attributedConversions14d":2,"attributedUnitsOrdered14d":3},
			{"keywordId":"not-a-number"}
		]`)
	})

	c := newTestClient(srv)
	ctx := context.Background()

	st, err := c.ReportStatus(ctx, "p1", "r-9")
	if err != nil {
		t.Fatalf("ReportStatus() error = %v", err)
	}
	if !st.Ready() || st.Location == "" {
		t.Fatalf("status = %+v, want SUCCESS with a location", st)
	}

	raw, err := c.DownloadReport(ctx, st.Location)
	if err != nil {
		t.Fatalf("DownloadReport() error = %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("raw rows = %d, want 2", len(raw))
	}

	row, err := DecodeRow(raw[0])
	if err != nil {
		t.Fatalf("DecodeRow(good) error = %v", err)
	}
	if row.KeywordID != 42 || row.Cost != 3.5 || row.AttributedSales14d != 21.0 {
		t.Errorf("row = %+v", row)
	}
	if _, err := DecodeRow(raw[1]); err == nil {
		t.Error("DecodeRow(malformed) error = nil, want a decode failure to skip")
	}
}

func TestReportStatusHelpers(t *testing.T) {
	cases := []struct {
		status  string
		ready   bool
		failed  bool
		running bool
	}{
		{StatusSuccess, true, false, false},
		{StatusFailure, false, true, false},
		{StatusFailed, false, true, false},
		{StatusInProgress, false, false, true},
		{StatusPending, false, false, true},
		{"SOMETHING_NEW", false, false, false},
	}
	for _, tc := range cases {
		st := ReportStatus{Status: tc.status}
		if st.Ready() != tc.ready || st.Failed() != tc.failed || st.Running() != tc.running {
			t.Errorf("%s: ready=%v failed=%v running=%v, want %v/%v/%v",
				tc.status, st.Ready(), st.Failed(), st.Running(), tc.ready, tc.failed, tc.running)
		}
	}
}

func TestReportRowPerformanceMapping(t *testing.T) {
	end := time.Date(2025, 6, 7, 15, 4, 5, 0, time.UTC)
	bid := 1.25
	row := ReportRow{
		KeywordID:                 42,
		KeywordText:               "wool socks",
		MatchType:                 "exact",
		CampaignID:                7,
		AdGroupID:                 9,
		State:                     "enabled",
		Bid:                       &bid,
		Impressions:               100,
		Clicks:                    7,
		Cost:                      3.5,
		AttributedSales14d:        21.0,
		AttributedConversions14d:  2,
		AttributedUnitsOrdered14d: 3,
	}

	rec := row.Performance(end)
	if rec.EntityID != "42" || rec.CampaignID != "7" || rec.AdGroupID != "9" {
		t.Errorf("ids = %q/%q/%q", rec.EntityID, rec.CampaignID, rec.AdGroupID)
	}
	if rec.Spend != 3.5 || rec.Sales != 21.0 || rec.Orders != 2 || rec.Units != 3 {
		t.Errorf("metrics = %+v, want cost and attributed fields remapped", rec)
	}
	if !rec.Date.Equal(time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v, want the end date at midnight UTC", rec.Date)
	}
	if rec.Bid == nil || *rec.Bid != 1.25 {
		t.Errorf("bid = %v, want 1.25", rec.Bid)
	}
}

func TestReportRowPerformanceDefaults(t *testing.T) {
	zero := 0.0
	row := ReportRow{Bid: &zero}
	rec := row.Performance(time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC))

	if rec.EntityID != "unknown" {
		t.Errorf("EntityID = %q, want unknown for a missing keyword id", rec.EntityID)
	}
	if rec.MatchType != "UNKNOWN" || rec.State != "UNKNOWN" {
		t.Errorf("match/state = %q/%q, want UNKNOWN defaults", rec.MatchType, rec.State)
	}
	if rec.CampaignID != "" || rec.AdGroupID != "" {
		t.Errorf("campaign/ad group = %q/%q, want empty", rec.CampaignID, rec.AdGroupID)
	}
	if rec.Bid != nil {
		t.Errorf("bid = %v, want nil for a zero bid", *rec.Bid)
	}
}
