package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mbelgrano/cartera/internal/breaker"
)

func TestGetTickerPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","price":"67000.50"},
			{"symbol":"ETHUSDT","price":"3500.25"},
			{"symbol":"BADUSDT","price":"not-a-number"}
		]`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))

	prices, err := client.GetTickerPrices(context.Background())
	if err != nil {
		t.Fatalf("GetTickerPrices: %v", err)
	}

	if prices["BTCUSDT"] != 67000.50 {
		t.Errorf("expected BTCUSDT 67000.50, got %f", prices["BTCUSDT"])
	}
	if prices["ETHUSDT"] != 3500.25 {
		t.Errorf("expected ETHUSDT 3500.25, got %f", prices["ETHUSDT"])
	}
	if _, ok := prices["BADUSDT"]; ok {
		t.Error("unparseable prices must be skipped")
	}
}

func TestGetAccountBalancesSignsRequest(t *testing.T) {
	const secret = "topsecret"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/account" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-MBX-APIKEY") != "key" {
			t.Error("missing api key header")
		}

		raw := r.URL.RawQuery
		prefix, sig, ok := strings.Cut(raw, "&signature=")
		if !ok {
			t.Errorf("expected signature parameter in %q", raw)
		}
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(prefix))
		if want := hex.EncodeToString(mac.Sum(nil)); sig != want {
			t.Errorf("bad signature: got %s, want %s", sig, want)
		}
		if !strings.Contains(prefix, "timestamp=") || !strings.Contains(prefix, "recvWindow=60000") {
			t.Errorf("expected timestamp and recvWindow in %q", prefix)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"balances":[
			{"asset":"BTC","free":"0.5","locked":"0.1"},
			{"asset":"ETH","free":"0","locked":"0"},
			{"asset":"USDT","free":"1000","locked":"0"}
		]}`))
	}))
	defer server.Close()

	signer, err := NewSigner("key", secret, 60000)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	client := NewClient(WithBaseURL(server.URL), WithSigner(signer))

	balances, err := client.GetAccountBalances(context.Background())
	if err != nil {
		t.Fatalf("GetAccountBalances: %v", err)
	}

	if len(balances) != 2 {
		t.Fatalf("expected 2 non-zero balances, got %d", len(balances))
	}
	if balances[0].Asset != "BTC" || balances[0].Free != 0.5 || balances[0].Locked != 0.1 {
		t.Errorf("unexpected first balance: %+v", balances[0])
	}
}

func TestGetAccountBalancesWithoutSigner(t *testing.T) {
	client := NewClient()

	_, err := client.GetAccountBalances(context.Background())
	if err == nil {
		t.Fatal("expected error without signing credentials")
	}
}

func TestRateLimitBanCarriesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		http.Error(w, `{"code":-1003,"msg":"Way too much request weight used"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))

	_, err := client.GetTickerPrices(context.Background())
	var ra *breaker.RetryAfterError
	if !errors.As(err, &ra) {
		t.Fatalf("expected RetryAfterError, got %T: %v", err, err)
	}
	if ra.RetryAfter != 2*time.Minute {
		t.Errorf("expected retry-after 2m, got %s", ra.RetryAfter)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected wrapped APIError with 429, got %v", err)
	}
}

func TestSyncServerTime(t *testing.T) {
	serverTime := time.Now().Add(3 * time.Second).UnixMilli()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/time" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"serverTime":` + strconv.FormatInt(serverTime, 10) + `}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))

	if err := client.SyncServerTime(context.Background()); err != nil {
		t.Fatalf("SyncServerTime: %v", err)
	}

	offset := client.timeOffset.Load()
	if offset < 2000 || offset > 4000 {
		t.Errorf("expected offset near 3000ms, got %d", offset)
	}
}
