// Package binance provides a client for the Binance spot API: public ticker
// prices, signed account queries and the miniTicker push stream.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/mbelgrano/cartera/internal/breaker"
	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/models"
)

const (
	DefaultBaseURL   = "https://api.binance.com"
	DefaultStreamURL = "wss://stream.binance.com:9443"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client implements the ExchangeClient interface
type Client struct {
	baseURL    string
	streamURL  string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	signer     *Signer

	// server-minus-local clock offset in milliseconds, applied to
	// signed-request timestamps
	timeOffset atomic.Int64
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithStreamURL sets the websocket stream base URL
func WithStreamURL(streamURL string) ClientOption {
	return func(c *Client) {
		c.streamURL = streamURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithSigner enables signed endpoints
func WithSigner(signer *Signer) ClientOption {
	return func(c *Client) {
		c.signer = signer
	}
}

// NewClient creates a new Binance client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		streamURL: DefaultStreamURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Binance API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request. When sign is true the query is
// signed and the API key header attached.
func (c *Client) get(ctx context.Context, path string, params Params, sign bool, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var query string
	if sign {
		if c.signer == nil {
			return fmt.Errorf("binance: endpoint %s requires signing credentials", path)
		}
		query = c.signer.Sign(params, c.timeOffset.Load())
	} else {
		query = params.Encode()
	}

	reqURL := c.baseURL + path
	if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if sign {
		req.Header.Set("X-MBX-APIKEY", c.signer.APIKey())
	}

	c.logger.Debug().Str("url", path).Bool("signed", sign).Msg("Binance API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
		// 429 is a rate-limit warning, 418 an IP ban. Both carry a
		// Retry-After the circuit breaker must honor.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				return &breaker.RetryAfterError{
					RetryAfter: time.Duration(secs) * time.Second,
					Err:        apiErr,
				}
			}
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// SyncServerTime fetches the exchange server time and records the clock
// offset applied to signed-request timestamps. Best effort at startup.
func (c *Client) SyncServerTime(ctx context.Context) error {
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.get(ctx, "/api/v3/time", nil, false, &resp); err != nil {
		return err
	}

	offset := resp.ServerTime - time.Now().UnixMilli()
	c.timeOffset.Store(offset)
	c.logger.Debug().Int64("offset_ms", offset).Msg("Binance server time synced")
	return nil
}

// GetTickerPrices retrieves the full spot ticker in a single request, keyed
// by pair symbol.
func (c *Client) GetTickerPrices(ctx context.Context) (map[string]float64, error) {
	var resp []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := c.get(ctx, "/api/v3/ticker/price", nil, false, &resp); err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(resp))
	for _, entry := range resp {
		price, err := strconv.ParseFloat(entry.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		prices[entry.Symbol] = price
	}

	return prices, nil
}

// GetAccountBalances retrieves non-zero wallet balances via the signed
// account endpoint.
func (c *Client) GetAccountBalances(ctx context.Context) ([]*models.AccountBalance, error) {
	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := c.get(ctx, "/api/v3/account", nil, true, &resp); err != nil {
		return nil, err
	}

	balances := make([]*models.AccountBalance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		if free == 0 && locked == 0 {
			continue
		}
		balances = append(balances, &models.AccountBalance{
			Asset:  b.Asset,
			Free:   free,
			Locked: locked,
		})
	}

	return balances, nil
}

// Verify interface compliance
var _ interfaces.ExchangeClient = (*Client)(nil)
