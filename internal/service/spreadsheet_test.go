package service

import (
	"strings"
	"testing"
	"time"
)

var parseDate = time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)

func TestParseCSVStandardFormat(t *testing.T) {
	body := strings.Join([]string{
		"keyword_id,keyword,match_type,date,impressions,clicks,spend,sales,orders",
		"101,wool socks,exact,2025-11-01,1000,50,12.50,100.00,5",
		"102,warm socks,broad,2025-11-02,2000,100,25.00,200.00,10",
	}, "\n")

	res, err := ParseCSV(strings.NewReader(body), parseDate)
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if res.RowsProcessed != 2 || res.RowsSkipped != 0 || len(res.Errors) != 0 {
		t.Fatalf("processed=%d skipped=%d errors=%v", res.RowsProcessed, res.RowsSkipped, res.Errors)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(res.Records))
	}

	first := res.Records[0]
	if first.EntityID != "101" {
		t.Errorf("entity id = %q, want 101", first.EntityID)
	}
	if want := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC); !first.Date.Equal(want) {
		t.Errorf("date = %v, want %v", first.Date, want)
	}
	if first.Impressions != 1000 || first.Clicks != 50 || first.Spend != 12.50 {
		t.Errorf("metrics = %+v", first)
	}
}

func TestParseCSVAmazonConsoleFormat(t *testing.T) {
	// console exports carry no keyword_id or date columns and use display
	// header names with currency formatting
	body := strings.Join([]string{
		"Campaign,Ad Group,Keyword,Match Type,State,Bid,Impressions,Clicks,Spend,Sales,Orders",
		"Brand,Core,wool socks,Exact,enabled,$1.25,\"1,000\",50,\"$1,234.56\",$100.00,5",
	}, "\n")

	res, err := ParseCSV(strings.NewReader(body), parseDate)
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d (errors %v), want 1", len(res.Records), res.Errors)
	}

	rec := res.Records[0]
	if rec.EntityID == "" || rec.EntityID == "wool socks" {
		t.Errorf("entity id = %q, want a derived stable id", rec.EntityID)
	}
	if !rec.Date.Equal(parseDate) {
		t.Errorf("date = %v, want stamped default %v", rec.Date, parseDate)
	}
	if rec.Impressions != 1000 {
		t.Errorf("impressions = %d, want 1000 (thousands separator stripped)", rec.Impressions)
	}
	if rec.Spend != 1234.56 {
		t.Errorf("spend = %v, want 1234.56 (currency symbol stripped)", rec.Spend)
	}
	if rec.Bid == nil || *rec.Bid != 1.25 {
		t.Errorf("bid = %v, want 1.25", rec.Bid)
	}
	if rec.CampaignName != "Brand" || rec.AdGroupName != "Core" {
		t.Errorf("campaign/ad group = %q/%q", rec.CampaignName, rec.AdGroupName)
	}
}

func TestDeriveKeywordIDStable(t *testing.T) {
	a := deriveKeywordID("Wool Socks", "Exact")
	b := deriveKeywordID("  wool socks  ", "exact")
	if a != b {
		t.Errorf("ids differ for equivalent inputs: %q vs %q", a, b)
	}
	if c := deriveKeywordID("wool socks", "broad"); c == a {
		t.Errorf("match type not part of the id: %q", c)
	}
}

func TestParseCSVSkipsInactiveAndEmptyRows(t *testing.T) {
	body := strings.Join([]string{
		"keyword_id,keyword,date,state,impressions,clicks,spend,sales,orders",
		"101,wool socks,2025-11-01,archived,1000,50,12.50,100.00,5",
		"102,warm socks,2025-11-01,paused,1000,50,12.50,100.00,5",
		"103,ski socks,2025-11-01,enabled,0,0,0,0,0",
		"104,hiking socks,2025-11-01,enabled,500,10,3.00,9.00,1",
	}, "\n")

	res, err := ParseCSV(strings.NewReader(body), parseDate)
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if res.RowsProcessed != 4 {
		t.Errorf("rows_processed = %d, want 4", res.RowsProcessed)
	}
	if res.RowsSkipped != 3 {
		t.Errorf("rows_skipped = %d, want 3 (archived, paused, all-zero)", res.RowsSkipped)
	}
	if len(res.Records) != 1 || res.Records[0].EntityID != "104" {
		t.Errorf("records = %+v, want only keyword 104", res.Records)
	}
	// silent skips: inactive and zero rows are not parse errors
	if len(res.Errors) != 0 {
		t.Errorf("errors = %v, want none", res.Errors)
	}
}

func TestParseCSVBadRowsReported(t *testing.T) {
	body := strings.Join([]string{
		"keyword_id,keyword,date,impressions,clicks,spend,sales,orders",
		"101,wool socks,2025-11-01,100,10,bogus,20.00,2",
		"102,warm socks,not-a-date,100,10,5.00,20.00,2",
		",ski socks,2025-11-01,100,10,5.00,20.00,2",
	}, "\n")

	res, err := ParseCSV(strings.NewReader(body), parseDate)
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("records = %+v, want none", res.Records)
	}
	if res.RowsSkipped != 3 || len(res.Errors) != 3 {
		t.Fatalf("skipped=%d errors=%v, want 3 skips with 3 error entries", res.RowsSkipped, res.Errors)
	}
	for i, want := range []string{"spend", "date", "keyword_id"} {
		if !strings.Contains(res.Errors[i], want) {
			t.Errorf("errors[%d] = %q, want mention of %s", i, res.Errors[i], want)
		}
	}
}

func TestParseCSVCountAcceptsDecimalNotation(t *testing.T) {
	body := strings.Join([]string{
		"keyword_id,keyword,date,impressions,clicks,spend,sales,orders",
		"101,wool socks,2025-11-01,100.0,5.0,1.00,2.00,1.0",
	}, "\n")

	res, err := ParseCSV(strings.NewReader(body), parseDate)
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d (errors %v), want 1", len(res.Records), res.Errors)
	}
	if rec := res.Records[0]; rec.Impressions != 100 || rec.Clicks != 5 || rec.Orders != 1 {
		t.Errorf("counts = %d/%d/%d, want 100/5/1", rec.Impressions, rec.Clicks, rec.Orders)
	}
}

func TestParseCSVNoHeader(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader(""), parseDate); err == nil {
		t.Error("empty input: want error, got nil")
	}
}

func TestValidateColumns(t *testing.T) {
	detected, missing := ValidateColumns([]string{"Keyword", "Match Type", "Impressions", "Clicks", "Spend"})
	if len(detected) != 5 {
		t.Errorf("detected = %v, want 5 normalized names", detected)
	}
	if len(missing) != 2 {
		t.Fatalf("missing = %v, want [sales orders]", missing)
	}
	for i, want := range []string{"sales", "orders"} {
		if missing[i] != want {
			t.Errorf("missing[%d] = %q, want %q", i, missing[i], want)
		}
	}

	if _, missing := ValidateColumns([]string{"keyword", "impressions", "clicks", "spend", "sales", "orders"}); len(missing) != 0 {
		t.Errorf("complete header reported missing columns: %v", missing)
	}
}

func TestPreviewCSVCapsRows(t *testing.T) {
	var b strings.Builder
	b.WriteString("keyword,spend\n")
	for i := 0; i < 25; i++ {
		b.WriteString("socks,1.00\n")
	}

	rows, total, err := PreviewCSV(strings.NewReader(b.String()), 10)
	if err != nil {
		t.Fatalf("PreviewCSV failed: %v", err)
	}
	if len(rows) != 10 {
		t.Errorf("rows = %d, want capped at 10", len(rows))
	}
	if total != 25 {
		t.Errorf("total = %d, want 25", total)
	}
	if rows[0]["keyword"] != "socks" {
		t.Errorf("rows keyed by original header, got %v", rows[0])
	}
}
