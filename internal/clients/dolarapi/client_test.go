package dolarapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/mbelgrano/cartera/internal/models"
)

func newTestServer(t *testing.T, quotes map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := quotes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func TestGetRate(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"/v1/dolares/contadoconliqui": `{
			"moneda": "USD",
			"casa": "contadoconliqui",
			"nombre": "Contado con liquidación",
			"compra": 1180.5,
			"venta": 1200.5,
			"fechaActualizacion": "2025-06-01T15:30:00.000Z"
		}`,
	})
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))

	rate, err := client.GetRate(context.Background(), models.DollarCCL)
	if err != nil {
		t.Fatalf("GetRate: %v", err)
	}

	if rate.Kind != models.DollarCCL {
		t.Errorf("expected kind ccl, got %s", rate.Kind)
	}
	if rate.Sell != 1200.5 {
		t.Errorf("expected sell 1200.5, got %f", rate.Sell)
	}
	if rate.Spread != 20.0 {
		t.Errorf("expected spread 20.0, got %f", rate.Spread)
	}
	if rate.SpreadPct != 1.69 {
		t.Errorf("expected spread pct 1.69, got %f", rate.SpreadPct)
	}
	if rate.UpdatedAt.IsZero() {
		t.Error("expected parsed update timestamp")
	}
}

func TestGetRateUnknownKind(t *testing.T) {
	client := NewClient()

	_, err := client.GetRate(context.Background(), models.DollarRateKind("turista"))
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestGetRateUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))

	_, err := client.GetRate(context.Background(), models.DollarBlue)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", apiErr.StatusCode)
	}
}

func TestGetAllRatesOrdersBySellDescending(t *testing.T) {
	quote := func(name string, buy, sell float64) string {
		return `{"moneda":"USD","nombre":"` + name + `","compra":` +
			floatString(buy) + `,"venta":` + floatString(sell) +
			`,"fechaActualizacion":"2025-06-01T15:30:00.000Z"}`
	}

	server := newTestServer(t, map[string]string{
		"/v1/dolares/oficial":         quote("Oficial", 980, 1020),
		"/v1/dolares/blue":            quote("Blue", 1190, 1210),
		"/v1/dolares/bolsa":           quote("Bolsa", 1150, 1170),
		"/v1/dolares/contadoconliqui": quote("CCL", 1185, 1205),
		"/v1/dolares/cripto":          quote("Cripto", 1200, 1220),
		"/v1/dolares/tarjeta":         quote("Tarjeta", 1560, 1632),
	})
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithRateLimit(100))

	cmp, err := client.GetAllRates(context.Background())
	if err != nil {
		t.Fatalf("GetAllRates: %v", err)
	}

	if len(cmp.Rates) != 6 {
		t.Fatalf("expected 6 rates, got %d", len(cmp.Rates))
	}
	for i := 1; i < len(cmp.Rates); i++ {
		if cmp.Rates[i-1].Sell < cmp.Rates[i].Sell {
			t.Fatalf("rates not sorted by sell descending at index %d", i)
		}
	}
	if cmp.HighestSell == nil || cmp.HighestSell.Kind != models.DollarTarjeta {
		t.Errorf("expected tarjeta as highest sell, got %+v", cmp.HighestSell)
	}
	if cmp.LowestSell == nil || cmp.LowestSell.Kind != models.DollarOficial {
		t.Errorf("expected oficial as lowest sell, got %+v", cmp.LowestSell)
	}
}

func TestGetAllRatesFailsWhenAnyVariantFails(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"/v1/dolares/oficial": `{"moneda":"USD","nombre":"Oficial","compra":980,"venta":1020,"fechaActualizacion":"2025-06-01T15:30:00.000Z"}`,
		// remaining variants 404
	})
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithRateLimit(100))

	if _, err := client.GetAllRates(context.Background()); err == nil {
		t.Fatal("expected error when a variant cannot be fetched")
	}
}

func floatString(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
