// Package ads is the Amazon Advertising API client: OAuth refresh-token
// exchange with a cached credential, report generation and polling, and
// report payload download. Every outbound call passes through a shared
// token-bucket limiter.
package ads

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pkaminski/adspulse/internal/domain"
	"github.com/pkaminski/adspulse/internal/logger"
)

const (
	defaultAPIBase = "https://advertising-api.amazon.com"
	defaultAuthURL = "https://api.amazon.com/auth/o2/token"
)

// Config holds credentials and endpoints for the advertising API.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	APIBase      string
	AuthURL      string
	Timeout      time.Duration
	// TokenExpiryMargin is how long before expiry a cached token is
	// considered stale and refreshed.
	TokenExpiryMargin time.Duration
}

// Observer receives one event per outbound call: the operation label, the
// response status (0 on transport error), the error if any, and the call
// latency excluding limiter wait. Hooked up to the metrics sink at wiring
// time so this package stays free of the metrics dependency.
type Observer func(op string, statusCode int, err error, duration time.Duration)

// Client is a rate-limited advertising API client. It is safe for use from
// many goroutines; the token cache is shared and refreshed under exclusion.
type Client struct {
	http    *resty.Client
	limiter *Limiter
	cfg     Config
	observe Observer

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

// New creates an API client. A nil limiter disables throttling.
func New(cfg Config, limiter *Limiter) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TokenExpiryMargin == 0 {
		cfg.TokenExpiryMargin = 60 * time.Second
	}

	client := resty.New()
	client.SetTimeout(cfg.Timeout)

	return &Client{
		http:    client,
		limiter: limiter,
		cfg:     cfg,
		observe: func(string, int, error, time.Duration) {},
		now:     time.Now,
	}
}

// SetObserver installs the instrumentation hook. Must be called before the
// client is shared across goroutines.
func (c *Client) SetObserver(obs Observer) {
	if obs != nil {
		c.observe = obs
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AccessToken returns a cached bearer token, exchanging the refresh token for
// a new one once the remaining lifetime drops inside the expiry margin.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt.Add(-c.cfg.TokenExpiryMargin)) {
		return c.token, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	logger.CtxInfo(ctx, "Refreshing advertising API access token")

	var tok tokenResponse
	began := c.now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": c.cfg.RefreshToken,
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
		}).
		SetResult(&tok).
		Post(c.cfg.AuthURL)
	if err != nil {
		c.observe("token", 0, err, c.now().Sub(began))
		return "", &AuthError{Err: err}
	}
	c.observe("token", resp.StatusCode(), nil, c.now().Sub(began))
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", &AuthError{Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode(), truncateBody(resp.Body()))}
	}
	if tok.AccessToken == "" {
		return "", &AuthError{Err: fmt.Errorf("no access_token in response")}
	}

	expiresIn := tok.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	c.token = tok.AccessToken
	c.expiresAt = c.now().Add(time.Duration(expiresIn) * time.Second)
	logger.CtxInfo(ctx, "Access token refreshed: expires_in=%ds", expiresIn)
	return c.token, nil
}

// RequestReport asks the provider to generate a keyword report covering the
// range and returns the report id to poll.
func (c *Client) RequestReport(ctx context.Context, profileID string, dates domain.DateRange, reportTypeID string) (string, error) {
	var out reportRequestResponse
	err := c.do(ctx, "request_report", profileID, http.MethodPost, "/v2/sp/keywords/report", newReportRequest(dates, reportTypeID), &out)
	if err != nil {
		return "", err
	}
	if out.ReportID == "" {
		return "", fmt.Errorf("report request returned no reportId")
	}
	logger.CtxInfo(ctx, "Report requested: report_id=%s, report_date=%s", out.ReportID, dates.End.Format("2006-01-02"))
	return out.ReportID, nil
}

// ReportStatus polls a pending report once.
func (c *Client) ReportStatus(ctx context.Context, profileID, reportID string) (ReportStatus, error) {
	var out ReportStatus
	if err := c.do(ctx, "report_status", profileID, http.MethodGet, "/v2/reports/"+reportID, nil, &out); err != nil {
		return ReportStatus{}, err
	}
	return out, nil
}

// DownloadReport fetches a completed report's payload from its location URL.
// The location is pre-signed, so the call carries no API headers.
func (c *Client) DownloadReport(ctx context.Context, location string) ([]json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	began := c.now()
	resp, err := c.http.R().SetContext(ctx).Get(location)
	if err != nil {
		c.observe("download_report", 0, err, c.now().Sub(began))
		return nil, fmt.Errorf("download report: %w", err)
	}
	c.observe("download_report", resp.StatusCode(), nil, c.now().Sub(began))
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &APIError{Op: "GET report location", StatusCode: resp.StatusCode(), Body: truncateBody(resp.Body())}
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, fmt.Errorf("decode report payload: %w", err)
	}
	logger.CtxInfo(ctx, "Downloaded report payload: records=%d", len(rows))
	return rows, nil
}

// ListProfiles returns the advertising profiles visible to the credentials.
func (c *Client) ListProfiles(ctx context.Context) ([]Profile, error) {
	var out []Profile
	if err := c.do(ctx, "list_profiles", "", http.MethodGet, "/v2/profiles", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do runs one authenticated API request after limiter admission.
func (c *Client) do(ctx context.Context, op, profileID, method, path string, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("Amazon-Advertising-API-ClientId", c.cfg.ClientID).
		SetHeader("Content-Type", "application/json")
	if profileID != "" {
		req.SetHeader("Amazon-Advertising-API-Scope", profileID)
	}
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	began := c.now()
	resp, err := req.Execute(method, c.cfg.APIBase+path)
	if err != nil {
		c.observe(op, 0, err, c.now().Sub(began))
		return fmt.Errorf("call %s %s: %w", method, path, err)
	}
	c.observe(op, resp.StatusCode(), nil, c.now().Sub(began))
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &APIError{Op: method + " " + path, StatusCode: resp.StatusCode(), Body: truncateBody(resp.Body())}
	}
	return nil
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
