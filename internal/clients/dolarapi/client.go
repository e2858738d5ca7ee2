// Package dolarapi provides a client for the dolarapi.com exchange-rate API
package dolarapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/models"
)

const (
	DefaultBaseURL   = "https://dolarapi.com"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// kindPaths maps quote variants to their API paths.
var kindPaths = map[models.DollarRateKind]string{
	models.DollarOficial: "/v1/dolares/oficial",
	models.DollarBlue:    "/v1/dolares/blue",
	models.DollarMEP:     "/v1/dolares/bolsa",
	models.DollarCCL:     "/v1/dolares/contadoconliqui",
	models.DollarCripto:  "/v1/dolares/cripto",
	models.DollarTarjeta: "/v1/dolares/tarjeta",
}

// Client implements the RateClient interface
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

// NewClient creates a new dolarapi client
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
	return fmt.Sprintf("dolarapi error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", path).Msg("dolarapi request")

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

type cotizacionResponse struct {
	Moneda             string  `json:"moneda"`
	Casa               string  `json:"casa"`
	Nombre             string  `json:"nombre"`
	Compra             float64 `json:"compra"`
	Venta              float64 `json:"venta"`
	FechaActualizacion string  `json:"fechaActualizacion"`
}

// GetRate retrieves one peso/dollar quote variant
func (c *Client) GetRate(ctx context.Context, kind models.DollarRateKind) (*models.DollarRate, error) {
	path, ok := kindPaths[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown dollar rate kind %q", models.ErrValidation, kind)
	}

	var resp cotizacionResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	return toRate(kind, resp), nil
}

// GetAllRates fetches every quote variant concurrently and builds the
// comparison summary, ordered by sell rate descending.
func (c *Client) GetAllRates(ctx context.Context) (*models.RateComparison, error) {
	var mu sync.Mutex
	rates := make([]models.DollarRate, 0, len(models.AllDollarRateKinds))

	g, ctx := errgroup.WithContext(ctx)
	for _, kind := range models.AllDollarRateKinds {
		g.Go(func() error {
			r, err := c.GetRate(ctx, kind)
			if err != nil {
				return fmt.Errorf("fetching %s rate: %w", kind, err)
			}
			mu.Lock()
			rates = append(rates, *r)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(rates, func(i, j int) bool {
		return rates[i].Sell > rates[j].Sell
	})

	cmp := &models.RateComparison{
		Rates:       rates,
		GeneratedAt: time.Now().UTC(),
	}
	if len(rates) > 0 {
		cmp.HighestSell = &rates[0]
		cmp.LowestSell = &rates[len(rates)-1]
	}

	return cmp, nil
}

func toRate(kind models.DollarRateKind, resp cotizacionResponse) *models.DollarRate {
	r := &models.DollarRate{
		Kind:   kind,
		Name:   resp.Nombre,
		Buy:    resp.Compra,
		Sell:   resp.Venta,
		Spread: round2(resp.Venta - resp.Compra),
	}
	if resp.Compra > 0 {
		r.SpreadPct = round2((resp.Venta - resp.Compra) / resp.Compra * 100)
	}
	if t, err := time.Parse(time.RFC3339, resp.FechaActualizacion); err == nil {
		r.UpdatedAt = t
	}
	return r
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Verify interface compliance
var _ interfaces.RateClient = (*Client)(nil)
