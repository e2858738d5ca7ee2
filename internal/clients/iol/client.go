package iol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/models"
)

const (
	DefaultBaseURL     = "https://api.invertironline.com"
	DefaultTimeout     = 30 * time.Second
	DefaultColdTimeout = 45 * time.Second
	DefaultRateLimit   = 5 // requests per second

	transientMaxRetries   = 2
	transientBackoffBase  = 2 * time.Second
	transientBackoffMax   = 8 * time.Second
	rateLimitedMaxRetries = 2
	rateLimitedWait       = 3 * time.Second
)

// Client implements the BrokerClient interface. Requests carry the bearer
// token from the TokenSource and retry per failure category: transient
// errors with backoff, one token refresh on 401, and a fixed pause on 429.
type Client struct {
	baseURL     string
	tokens      *TokenSource
	httpClient  *http.Client
	logger      *common.Logger
	limiter     *rate.Limiter
	timeout     time.Duration
	coldTimeout time.Duration

	// true after the first request has completed; the first request
	// gets the longer cold-start timeout
	warm atomic.Bool

	sleep func(context.Context, time.Duration) error
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

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithColdTimeout sets the timeout for the first request after startup
func WithColdTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.coldTimeout = timeout
	}
}

// NewClient creates a new IOL client around the given token source.
func NewClient(tokens *TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		tokens:      tokens,
		httpClient:  &http.Client{},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:      common.NewSilentLogger(),
		timeout:     DefaultTimeout,
		coldTimeout: DefaultColdTimeout,
		sleep:       sleepCtx,
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
	return fmt.Sprintf("IOL API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs an authenticated GET with the layered retry policy. The
// retry budgets are per category and independent of each other.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var transient, unauthorized, rateLimited int

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquiring token: %w", err)
		}

		body, status, err := c.doOnce(ctx, path, params, token)

		switch {
		case err == nil && status < 300:
			return body, nil

		case err != nil || status >= 500:
			if transient >= transientMaxRetries {
				if err != nil {
					return nil, fmt.Errorf("request to %s failed: %w", path, err)
				}
				return nil, &APIError{StatusCode: status, Message: string(body), Endpoint: path}
			}
			transient++
			backoff := transientBackoffBase << (transient - 1)
			if backoff > transientBackoffMax {
				backoff = transientBackoffMax
			}
			c.logger.Warn().
				Str("endpoint", path).
				Int("attempt", transient).
				Dur("backoff", backoff).
				Msg("IOL transient failure, retrying")
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}

		case status == http.StatusUnauthorized:
			if unauthorized >= 1 {
				return nil, &APIError{StatusCode: status, Message: string(body), Endpoint: path}
			}
			unauthorized++
			c.logger.Warn().Str("endpoint", path).Msg("IOL rejected token, renewing session")
			c.tokens.Clear()

		case status == http.StatusTooManyRequests:
			if rateLimited >= rateLimitedMaxRetries {
				return nil, &APIError{StatusCode: status, Message: string(body), Endpoint: path}
			}
			rateLimited++
			c.logger.Warn().Str("endpoint", path).Int("attempt", rateLimited).Msg("IOL rate limited, pausing")
			if err := c.sleep(ctx, rateLimitedWait); err != nil {
				return nil, err
			}

		default:
			return nil, &APIError{StatusCode: status, Message: string(body), Endpoint: path}
		}
	}
}

// doOnce performs a single attempt with the applicable timeout.
func (c *Client) doOnce(ctx context.Context, path string, params url.Values, token string) ([]byte, int, error) {
	timeout := c.timeout
	if c.warm.CompareAndSwap(false, true) {
		timeout = c.coldTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", path).Msg("IOL API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	return body, resp.StatusCode, nil
}

type portfolioResponse struct {
	Pais    string `json:"pais"`
	Activos []struct {
		Cantidad     float64 `json:"cantidad"`
		UltimoPrecio float64 `json:"ultimoPrecio"`
		Titulo       struct {
			Simbolo     string `json:"simbolo"`
			Descripcion string `json:"descripcion"`
			Tipo        string `json:"tipo"`
		} `json:"titulo"`
	} `json:"activos"`
}

// GetPositions retrieves the Argentina portfolio listing with last traded
// prices in ARS.
func (c *Client) GetPositions(ctx context.Context) ([]*models.BrokerPosition, error) {
	body, err := c.get(ctx, "/api/v2/portafolio/argentina", nil)
	if err != nil {
		return nil, err
	}

	var resp portfolioResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode portfolio response: %w", err)
	}

	positions := make([]*models.BrokerPosition, 0, len(resp.Activos))
	for _, activo := range resp.Activos {
		if activo.Titulo.Simbolo == "" {
			continue
		}
		positions = append(positions, &models.BrokerPosition{
			Symbol:      activo.Titulo.Simbolo,
			Description: activo.Titulo.Descripcion,
			Quantity:    activo.Cantidad,
			LastPrice:   activo.UltimoPrecio,
			Type:        activo.Titulo.Tipo,
		})
	}

	return positions, nil
}

// TokenInfo reports the session token state.
func (c *Client) TokenInfo() models.TokenInfo {
	return c.tokens.Info()
}

// Prefetch eagerly acquires a token so the first data request does not pay
// the authentication round trip.
func (c *Client) Prefetch(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

// Verify interface compliance
var _ interfaces.BrokerClient = (*Client)(nil)
