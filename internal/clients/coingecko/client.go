// Package coingecko provides a client for the CoinGecko API, used as the
// secondary crypto price source.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/interfaces"
)

const (
	DefaultBaseURL   = "https://api.coingecko.com/api/v3"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 2 // requests per second, the free tier is strict
)

// coinIDs maps ticker symbols to CoinGecko coin ids. Symbols outside this
// map cannot be resolved through the fallback source.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"USDT":  "tether",
	"USDC":  "usd-coin",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"DOT":   "polkadot",
	"MATIC": "matic-network",
	"LTC":   "litecoin",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"ATOM":  "cosmos",
	"UNI":   "uniswap",
	"PAXG":  "pax-gold",
}

// Client implements the BackupPriceClient interface
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
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

// NewClient creates a new CoinGecko client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
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
	return fmt.Sprintf("CoinGecko API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", path).Msg("CoinGecko API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// GetPricesUSD retrieves USD prices for the given ticker symbols in a single
// bulk request. Symbols without a known coin id or without a returned price
// are omitted from the result.
func (c *Client) GetPricesUSD(ctx context.Context, symbols []string) (map[string]float64, error) {
	ids := make([]string, 0, len(symbols))
	idToSymbol := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		upper := strings.ToUpper(sym)
		id, ok := coinIDs[upper]
		if !ok {
			c.logger.Warn().Str("symbol", upper).Msg("No CoinGecko id for symbol")
			continue
		}
		ids = append(ids, id)
		idToSymbol[id] = upper
	}

	if len(ids) == 0 {
		return map[string]float64{}, nil
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", "usd")

	var resp map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := c.get(ctx, "/simple/price", params, &resp); err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(resp))
	for id, entry := range resp {
		sym, ok := idToSymbol[id]
		if !ok || entry.USD <= 0 {
			continue
		}
		prices[sym] = entry.USD
	}

	return prices, nil
}

// Verify interface compliance
var _ interfaces.BackupPriceClient = (*Client)(nil)
