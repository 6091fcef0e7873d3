package service

import (
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkaminski/adspulse/internal/domain"
)

// requiredColumns is the minimum column set for a keyword performance
// import. Upload validation reports these; header matching tolerates
// space/underscore variations.
var requiredColumns = []string{"keyword", "impressions", "clicks", "spend", "sales", "orders"}

// previewCountLimit stops row counting on large files.
const previewCountLimit = 1000

// ParseResult is the outcome of translating one spreadsheet into
// performance records. RowsProcessed counts every data row seen; rows not
// turned into a record are skipped, with parse failures described in Errors.
type ParseResult struct {
	Records       []domain.PerformanceRecord
	RowsProcessed int
	RowsSkipped   int
	Errors        []string
}

// ParseCSV reads keyword performance rows from a CSV stream.
//
// Two layouts are recognized, matching the exports seen in the wild:
// a standard layout carrying keyword_id and date columns, and the Amazon
// console export carrying keyword text and match type, for which a stable
// keyword id is derived from the text so re-imports hit the same records.
// Console-export rows have no usable date column and are stamped with
// defaultDate.
// Parameters:
//   - r: CSV payload including the header row; a UTF-8 BOM is tolerated.
//   - defaultDate: day assigned to rows without a parseable date column.
// Returns:
//   - *ParseResult: parsed records plus processed/skipped accounting.
//   - error: unreadable input or a missing header row; per-row problems
//     never fail the whole parse.
func ParseCSV(r io.Reader, defaultDate time.Time) (*ParseResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, domain.Validationf("spreadsheet has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = normalizeHeader(name)
		if name == "" {
			continue
		}
		if _, ok := cols[name]; !ok {
			cols[name] = i
		}
	}

	_, hasKeywordID := firstColumn(cols, "keyword_id", "keywordid")
	_, hasKeyword := cols["keyword"]
	_, hasMatchType := firstColumn(cols, "match type", "match_type")
	amazonFormat := hasKeyword && hasMatchType && !hasKeywordID

	res := &ParseResult{}
	defaultDate = domain.Day(defaultDate)

	for rowNum := 2; ; rowNum++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.RowsProcessed++
			res.RowsSkipped++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		res.RowsProcessed++

		get := func(names ...string) string {
			for _, name := range names {
				if i, ok := cols[name]; ok && i < len(row) {
					return strings.TrimSpace(row[i])
				}
			}
			return ""
		}

		state := strings.ToLower(get("state", "status"))
		if state == "archived" || state == "paused" {
			res.RowsSkipped++
			continue
		}

		var entityID string
		recordDate := defaultDate
		keyword := get("keyword", "keyword_text", "search term")
		matchType := get("match type", "match_type")

		if amazonFormat {
			if keyword == "" || matchType == "" {
				res.RowsSkipped++
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: missing keyword or match type", rowNum))
				continue
			}
			entityID = deriveKeywordID(keyword, matchType)
		} else {
			entityID = get("keyword_id", "keywordid")
			dateStr := get("date")
			if entityID == "" || dateStr == "" {
				res.RowsSkipped++
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: missing keyword_id or date", rowNum))
				continue
			}
			recordDate, err = parseDay(dateStr)
			if err != nil {
				res.RowsSkipped++
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
				continue
			}
		}

		m, err := parseRowMetrics(get)
		if err != nil {
			res.RowsSkipped++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		if m.zero() {
			res.RowsSkipped++
			continue
		}

		if matchType == "" {
			matchType = "exact"
		}
		if state == "" {
			state = "enabled"
		}
		res.Records = append(res.Records, domain.PerformanceRecord{
			EntityID:     entityID,
			Date:         recordDate,
			KeywordText:  keyword,
			MatchType:    matchType,
			CampaignName: get("campaign", "campaign_name", "campaign name"),
			AdGroupName:  get("ad group", "ad_group", "ad group name", "adgroup"),
			State:        state,
			Bid:          parseBid(get("bid")),
			Impressions:  m.impressions,
			Clicks:       m.clicks,
			Spend:        m.spend,
			Sales:        m.sales,
			Orders:       m.orders,
			Units:        m.units,
		})
	}

	return res, nil
}

// ValidateColumns reports the normalized headers found and which required
// columns are missing, tolerating space/underscore variations.
func ValidateColumns(header []string) (detected []string, missing []string) {
	present := make(map[string]bool, len(header))
	for _, name := range header {
		name = normalizeHeader(name)
		if name == "" {
			continue
		}
		detected = append(detected, name)
		present[name] = true
	}
	for _, want := range requiredColumns {
		if present[want] ||
			present[strings.ReplaceAll(want, " ", "_")] ||
			present[strings.ReplaceAll(want, "_", " ")] {
			continue
		}
		missing = append(missing, want)
	}
	return detected, missing
}

// PreviewCSV returns the first maxRows data rows keyed by their original
// headers, plus the total row count. Counting stops at previewCountLimit so
// very large files stay cheap to preview.
func PreviewCSV(r io.Reader, maxRows int) (rows []map[string]string, total int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, 0, domain.Validationf("spreadsheet has no header row")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	for i, name := range header {
		header[i] = strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")
	}

	rows = []map[string]string{}
	for total < previewCountLimit {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read row: %w", err)
		}
		total++
		if len(rows) < maxRows {
			m := make(map[string]string, len(header))
			for i, name := range header {
				if name == "" {
					continue
				}
				if i < len(record) {
					m[name] = record[i]
				} else {
					m[name] = ""
				}
			}
			rows = append(rows, m)
		}
	}
	return rows, total, nil
}

// rowMetrics are one row's parsed metric columns.
type rowMetrics struct {
	impressions int64
	clicks      int64
	orders      int64
	units       int64
	spend       float64
	sales       float64
}

func (m rowMetrics) zero() bool {
	return m.impressions == 0 && m.clicks == 0 && m.spend == 0 &&
		m.sales == 0 && m.orders == 0 && m.units == 0
}

// parseRowMetrics parses the metric columns; the first bad value fails the
// row.
func parseRowMetrics(get func(...string) string) (rowMetrics, error) {
	var m rowMetrics
	var err error
	if m.impressions, err = parseCount("impressions", get("impressions")); err != nil {
		return m, err
	}
	if m.clicks, err = parseCount("clicks", get("clicks")); err != nil {
		return m, err
	}
	if m.spend, err = parseMoney("spend", get("spend", "cost", "spend(usd)")); err != nil {
		return m, err
	}
	if m.sales, err = parseMoney("sales", get("sales", "sales(usd)", "attributed_sales")); err != nil {
		return m, err
	}
	if m.orders, err = parseCount("orders", get("orders", "conversions", "attributed_conversions")); err != nil {
		return m, err
	}
	if m.units, err = parseCount("units", get("units")); err != nil {
		return m, err
	}
	return m, nil
}

// deriveKeywordID builds a stable numeric-string id from keyword text and
// match type so files without explicit ids land on consistent natural keys.
func deriveKeywordID(keyword, matchType string) string {
	text := strings.ToLower(strings.TrimSpace(keyword)) + "_" + strings.ToLower(strings.TrimSpace(matchType))
	sum := md5.Sum([]byte(text))
	v, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:12], 16, 64)
	return strconv.FormatUint(v, 10)
}

func normalizeHeader(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
}

func firstColumn(cols map[string]int, names ...string) (int, bool) {
	for _, name := range names {
		if i, ok := cols[name]; ok {
			return i, true
		}
	}
	return 0, false
}

// nullValue reports spreadsheet markers that mean "no value".
func nullValue(s string) bool {
	return s == "" || s == "--" || strings.EqualFold(s, "null")
}

// parseMoney parses a currency amount, stripping symbols and separators.
func parseMoney(field, s string) (float64, error) {
	if nullValue(s) {
		return 0, nil
	}
	cleaned := strings.NewReplacer("$", "", "€", "", "USD", "", ",", "").Replace(s)
	v, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s value %q", field, s)
	}
	return v, nil
}

// parseCount parses an integer metric, accepting decimal notation ("5.0").
func parseCount(field, s string) (int64, error) {
	if nullValue(s) {
		return 0, nil
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s value %q", field, s)
	}
	return int64(v), nil
}

// parseBid parses the optional bid column; malformed values become nil
// rather than a row error.
func parseBid(s string) *float64 {
	if nullValue(s) {
		return nil
	}
	cleaned := strings.NewReplacer("$", "", "€", "", "USD", "", ",", "").Replace(s)
	v, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
	if err != nil || v == 0 {
		return nil
	}
	return &v
}

// parseDay parses the date column in the formats the exports use.
func parseDay(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "20060102", "01/02/2006", "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad date value %q", s)
}
