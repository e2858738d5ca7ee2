// Package iol provides a client for the InvertirOnline brokerage API.
package iol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/models"
)

const (
	// tokens are treated as expired this long before their actual expiry
	tokenExpiryBuffer = time.Minute

	tokenMaxAttempts = 3
	tokenBackoffBase = time.Second
	tokenBackoffMax  = 10 * time.Second
)

// AuthError represents a token endpoint failure.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("IOL auth error: %s (status: %d)", e.Message, e.StatusCode)
}

// Fatal reports whether the error indicates bad credentials rather than a
// transient upstream condition.
func (e *AuthError) Fatal() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnauthorized
}

// TokenSource manages the OAuth password-grant session against the IOL
// token endpoint. Renewal is de-duplicated so concurrent callers share one
// upstream request.
type TokenSource struct {
	tokenURL   string
	username   string
	password   string
	httpClient *http.Client
	logger     *common.Logger

	group singleflight.Group

	mu               sync.Mutex
	accessToken      string
	refreshToken     string
	accessExpiresAt  time.Time
	refreshExpiresAt time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// TokenOption configures a TokenSource.
type TokenOption func(*TokenSource)

// WithTokenLogger sets the logger
func WithTokenLogger(logger *common.Logger) TokenOption {
	return func(t *TokenSource) {
		t.logger = logger
	}
}

// WithTokenHTTPClient sets the HTTP client used for token requests
func WithTokenHTTPClient(client *http.Client) TokenOption {
	return func(t *TokenSource) {
		t.httpClient = client
	}
}

// NewTokenSource creates a TokenSource for the given credentials.
func NewTokenSource(baseURL, username, password string, opts ...TokenOption) *TokenSource {
	t := &TokenSource{
		tokenURL: strings.TrimSuffix(baseURL, "/") + "/token",
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: common.NewSilentLogger(),
		now:    time.Now,
		sleep:  sleepCtx,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Token returns a valid access token, renewing it if it is missing or
// inside the expiry buffer. Concurrent calls share a single renewal.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	if token, ok := t.validAccessToken(); ok {
		return token, nil
	}

	result, err, _ := t.group.Do("renew", func() (interface{}, error) {
		// another caller may have finished the renewal while this one
		// waited for the flight slot
		if token, ok := t.validAccessToken(); ok {
			return token, nil
		}
		return t.renew(ctx)
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

// Clear discards the stored tokens. The next Token call performs a full
// renewal.
func (t *TokenSource) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.accessToken = ""
	t.refreshToken = ""
	t.accessExpiresAt = time.Time{}
	t.refreshExpiresAt = time.Time{}
}

// Info reports token state without exposing token values.
func (t *TokenSource) Info() models.TokenInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	return models.TokenInfo{
		HasAccessToken:   t.accessToken != "",
		AccessExpiresAt:  t.accessExpiresAt,
		HasRefreshToken:  t.refreshToken != "",
		RefreshExpiresAt: t.refreshExpiresAt,
	}
}

func (t *TokenSource) validAccessToken() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accessToken == "" {
		return "", false
	}
	if !t.now().Add(tokenExpiryBuffer).Before(t.accessExpiresAt) {
		return "", false
	}
	return t.accessToken, true
}

// renew exchanges the refresh token when one is still valid, falling back
// to the password grant.
func (t *TokenSource) renew(ctx context.Context) (string, error) {
	t.mu.Lock()
	refresh := t.refreshToken
	refreshValid := refresh != "" && t.now().Add(tokenExpiryBuffer).Before(t.refreshExpiresAt)
	t.mu.Unlock()

	if refreshValid {
		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refresh)

		resp, err := t.requestToken(ctx, form)
		if err == nil {
			return t.store(resp), nil
		}
		t.logger.Warn().Err(err).Msg("IOL refresh grant failed, retrying with password grant")
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", t.username)
	form.Set("password", t.password)

	resp, err := t.requestToken(ctx, form)
	if err != nil {
		return "", err
	}

	return t.store(resp), nil
}

type tokenResponse struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token"`
	ExpiresIn      int    `json:"expires_in"`
	Expires        string `json:".expires"`
	RefreshExpires string `json:".refreshexpires"`
}

// store records the token pair and returns the access token. Absolute
// expiry fields take precedence over expires_in.
func (t *TokenSource) store(resp *tokenResponse) string {
	now := t.now()

	accessExp := now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	if abs, ok := parseExpiry(resp.Expires); ok {
		accessExp = abs
	}
	refreshExp := accessExp.Add(23 * time.Hour)
	if abs, ok := parseExpiry(resp.RefreshExpires); ok {
		refreshExp = abs
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.accessToken = resp.AccessToken
	t.refreshToken = resp.RefreshToken
	t.accessExpiresAt = accessExp
	t.refreshExpiresAt = refreshExp

	t.logger.Debug().
		Time("access_expires", accessExp).
		Time("refresh_expires", refreshExp).
		Msg("IOL tokens renewed")

	return resp.AccessToken
}

func parseExpiry(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC1123, time.RFC3339, "Mon, 02 Jan 2006 15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// requestToken posts the grant form, retrying transient failures with
// exponential backoff. Credential rejections fail immediately.
func (t *TokenSource) requestToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	var lastErr error

	for attempt := 0; attempt < tokenMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := tokenBackoffBase << (attempt - 1)
			if backoff > tokenBackoffMax {
				backoff = tokenBackoffMax
			}
			if err := t.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		resp, err := t.postForm(ctx, form)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var authErr *AuthError
		if errors.As(err, &authErr) && authErr.Fatal() {
			t.logger.Error().Int("status", authErr.StatusCode).Msg("IOL rejected credentials")
			return nil, err
		}

		t.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("IOL token request failed")
	}

	return nil, fmt.Errorf("token request failed after %d attempts: %w", tokenMaxAttempts, lastErr)
}

func (t *TokenSource) postForm(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &AuthError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	return &tr, nil
}
