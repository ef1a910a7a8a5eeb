// Package histdata provides the HTTP client for the bulk historical-data
// service that supplies daily closing prices for the full universe.
package histdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client fetches daily summary data over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	maxRetries     int
	retryDelayBase time.Duration
}

// ClientConfig tunes retry behavior.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
}

// dailyRow is one symbol's row in the daily summary response.
type dailyRow struct {
	Symbol string  `json:"symbol"`
	Close  float64 `json:"close"`
}

// NewClient creates a historical-data client for the given base URL. The API
// key may be empty for unauthenticated endpoints.
func NewClient(baseURL, apiKey string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// DailyCloses returns the prior session's closing price for every symbol in
// the universe, keyed by symbol. The request window is [date-24h, date) so
// the response carries the close of the session before the target date.
//
// Duplicate symbols in the response resolve last-write-wins by source row
// order. That is a documented default for an upstream data-quality quirk,
// not an assertion that the later row is correct.
func (c *Client) DailyCloses(ctx context.Context, date time.Time) (map[string]float64, error) {
	u, err := url.Parse(c.baseURL + "/v0/daily")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	start := date.AddDate(0, 0, -1)
	q := u.Query()
	q.Set("schema", "ohlcv-1d")
	q.Set("symbols", "ALL_SYMBOLS")
	q.Set("start", start.Format("2006-01-02"))
	q.Set("end", date.Format("2006-01-02"))
	u.RawQuery = q.Encode()

	resp, err := c.doRequest(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily closes: %w", err)
	}
	defer resp.Body.Close()

	var rows []dailyRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode daily closes: %w", err)
	}

	closes := make(map[string]float64, len(rows))
	for _, row := range rows {
		if row.Symbol == "" {
			continue
		}
		closes[row.Symbol] = row.Close
	}
	return closes, nil
}

// doRequest performs a GET with linear-backoff retry on transport errors and
// server errors. Client errors (4xx) fail immediately.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
