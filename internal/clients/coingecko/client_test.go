package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetPricesUSD(t *testing.T) {
	var gotIDs string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			http.NotFound(w, r)
			return
		}
		gotIDs = r.URL.Query().Get("ids")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bitcoin":{"usd":67000.5},"ethereum":{"usd":3500.25}}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))

	prices, err := client.GetPricesUSD(context.Background(), []string{"btc", "ETH"})
	if err != nil {
		t.Fatalf("GetPricesUSD: %v", err)
	}

	if !strings.Contains(gotIDs, "bitcoin") || !strings.Contains(gotIDs, "ethereum") {
		t.Errorf("expected both coin ids in request, got %q", gotIDs)
	}
	if prices["BTC"] != 67000.5 {
		t.Errorf("expected BTC price 67000.5, got %f", prices["BTC"])
	}
	if prices["ETH"] != 3500.25 {
		t.Errorf("expected ETH price 3500.25, got %f", prices["ETH"])
	}
}

func TestGetPricesUSDSkipsUnknownSymbols(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))

	prices, err := client.GetPricesUSD(context.Background(), []string{"NOTACOIN"})
	if err != nil {
		t.Fatalf("GetPricesUSD: %v", err)
	}
	if len(prices) != 0 {
		t.Errorf("expected empty result, got %v", prices)
	}
	if requests != 0 {
		t.Errorf("expected no upstream request for unknown symbols, got %d", requests)
	}
}

func TestGetPricesUSDUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))

	_, err := client.GetPricesUSD(context.Background(), []string{"BTC"})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", apiErr.StatusCode)
	}
}
