// Package tushare implements the Tushare Pro HTTP API client used to pull
// daily index bars.
package tushare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"index-compare/internal/domain"
)

// Default configuration values.
const (
	DefaultEndpoint        = "https://api.tushare.pro"
	DefaultTimeout         = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = 1 * time.Second
	DefaultMaxDelay        = 10 * time.Second
	DefaultBackoffMult     = 2.0
	DefaultRateLimitPerMin = 120
)

// dailyBarFields is the column set requested from index_daily.
const dailyBarFields = "ts_code,trade_date,close"

// HTTPClient calls the Tushare Pro API over HTTP POST.
type HTTPClient struct {
	endpoint    string
	token       string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithRateLimit caps requests per minute. Tushare enforces per-minute quotas
// on free tokens. Zero disables the limiter.
func WithRateLimit(perMin int) ClientOption {
	return func(c *HTTPClient) {
		if perMin > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Tushare API client.
func NewHTTPClient(endpoint, token string, opts ...ClientOption) *HTTPClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &HTTPClient{
		endpoint:    endpoint,
		token:       token,
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Every(time.Minute/DefaultRateLimitPerMin), 1),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiRequest is the Tushare request envelope.
type apiRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields,omitempty"`
}

// apiResponse is the Tushare response envelope.
type apiResponse struct {
	Code int      `json:"code"`
	Msg  string   `json:"msg"`
	Data *apiData `json:"data"`
}

// apiData is the columnar payload: field names plus positional rows.
type apiData struct {
	Fields []string        `json:"fields"`
	Items  [][]interface{} `json:"items"`
}

// APIError is a non-zero code in the response envelope. These indicate bad
// tokens, quota exhaustion or bad params and are not retried.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tushare error %d: %s", e.Code, e.Msg)
}

// call performs one API call with retries and exponential backoff. Transport
// failures, 429 and 5xx are retried; envelope errors are returned as-is.
func (c *HTTPClient) call(ctx context.Context, apiName string, params map[string]string, fields string) (*apiData, error) {
	reqBody := apiRequest{
		APIName: apiName,
		Token:   c.token,
		Params:  params,
		Fields:  fields,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var apiResp apiResponse
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if apiResp.Code != 0 {
			// Envelope errors are not retried
			return nil, &APIError{Code: apiResp.Code, Msg: apiResp.Msg}
		}

		if apiResp.Data == nil {
			return nil, fmt.Errorf("response missing data")
		}

		return apiResp.Data, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// DailyBars retrieves daily close bars for one index over [startDate, endDate],
// both YYYYMMDD and endDate optional. Bars come back sorted by trade date
// ascending regardless of API order; rows with a null close are dropped.
func (c *HTTPClient) DailyBars(ctx context.Context, tsCode, startDate, endDate string) ([]*domain.DailyBar, error) {
	params := map[string]string{
		"ts_code":    tsCode,
		"start_date": startDate,
	}
	if endDate != "" {
		params["end_date"] = endDate
	}

	data, err := c.call(ctx, "index_daily", params, dailyBarFields)
	if err != nil {
		return nil, err
	}

	codeIdx, err := fieldIndex(data.Fields, "ts_code")
	if err != nil {
		return nil, err
	}
	dateIdx, err := fieldIndex(data.Fields, "trade_date")
	if err != nil {
		return nil, err
	}
	closeIdx, err := fieldIndex(data.Fields, "close")
	if err != nil {
		return nil, err
	}

	bars := make([]*domain.DailyBar, 0, len(data.Items))
	for i, item := range data.Items {
		if len(item) <= codeIdx || len(item) <= dateIdx || len(item) <= closeIdx {
			return nil, fmt.Errorf("item %d: %d columns, want %d", i, len(item), len(data.Fields))
		}
		if item[closeIdx] == nil {
			continue
		}

		code, ok := item[codeIdx].(string)
		if !ok {
			return nil, fmt.Errorf("item %d: ts_code is not a string: %v", i, item[codeIdx])
		}
		date, ok := item[dateIdx].(string)
		if !ok {
			return nil, fmt.Errorf("item %d: trade_date is not a string: %v", i, item[dateIdx])
		}
		closeVal, ok := item[closeIdx].(float64)
		if !ok {
			return nil, fmt.Errorf("item %d: close is not a number: %v", i, item[closeIdx])
		}

		bars = append(bars, &domain.DailyBar{
			IndexCode: code,
			TradeDate: date,
			Close:     closeVal,
		})
	}

	// index_daily returns newest-first
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].TradeDate < bars[j].TradeDate
	})

	return bars, nil
}

// fieldIndex locates a column in the response field list.
func fieldIndex(fields []string, name string) (int, error) {
	for i, f := range fields {
		if f == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("response missing field %q", name)
}
