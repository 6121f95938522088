// Package gecko is a client for the GeckoTerminal public market data API.
package gecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"perp-stats/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL   = "https://api.geckoterminal.com/api/v2"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 0.5 // requests per second; the public API allows 30/min
	DefaultBurst     = 1

	// MaxOHLCVLimit is the largest page the OHLCV endpoint returns.
	MaxOHLCVLimit = 1000
)

var (
	// ErrStatus is returned for non-200 responses.
	ErrStatus = errors.New("unexpected status")

	// ErrSchema is returned when a response body does not match the expected shape.
	ErrSchema = errors.New("response schema mismatch")
)

// Client talks to GeckoTerminal. Requests are rate limited and never retried.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithRateLimit sets the request rate. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a GeckoTerminal client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pool is one candidate pool returned with a token.
type Pool struct {
	Address      string
	Name         string // e.g. "WETH / USDC 0.05%"
	BaseTokenID  string // "<network>_<address>"
	QuoteTokenID string
}

// Token is token metadata with its top pools.
type Token struct {
	Name     string
	Symbol   string
	Decimals int
	Pools    []Pool
}

// Candle is one OHLCV row.
type Candle struct {
	Timestamp int64 // seconds
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Token fetches token metadata and its top pools.
func (c *Client) Token(ctx context.Context, network, address string) (*Token, error) {
	path := fmt.Sprintf("/networks/%s/tokens/%s", url.PathEscape(network), url.PathEscape(address))
	q := url.Values{"include": {"top_pools"}}

	var raw tokenResponse
	if err := c.get(ctx, "token", path, q, &raw); err != nil {
		return nil, err
	}
	return raw.toToken()
}

// OHLCVBefore fetches up to limit hourly candles strictly before the given
// timestamp, newest first. base selects which pool leg is priced.
func (c *Client) OHLCVBefore(ctx context.Context, network, pool string, base bool, before int64, limit int) ([]Candle, error) {
	if limit <= 0 || limit > MaxOHLCVLimit {
		limit = MaxOHLCVLimit
	}
	token := "quote"
	if base {
		token = "base"
	}

	path := fmt.Sprintf("/networks/%s/pools/%s/ohlcv/hour", url.PathEscape(network), url.PathEscape(pool))
	q := url.Values{
		"aggregate":        {"1"},
		"before_timestamp": {strconv.FormatInt(before, 10)},
		"limit":            {strconv.Itoa(limit)},
		"currency":         {"usd"},
		"token":            {token},
	}

	var raw ohlcvResponse
	if err := c.get(ctx, "ohlcv", path, q, &raw); err != nil {
		return nil, err
	}
	return raw.toCandles()
}

func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values, out any) (err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		observability.RecordProviderRequest(endpoint, time.Since(start).Seconds(), err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: %w %d: %s", endpoint, path, ErrStatus, resp.StatusCode, truncate(body, 256))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", endpoint, path, ErrSchema, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
