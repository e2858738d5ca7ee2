package server

import (
	"net/http"
	"strings"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Portfolios and the ledger
	mux.HandleFunc("/api/portfolios/", s.routePortfolios)
	mux.HandleFunc("/api/portfolios", s.handlePortfolios)
	mux.HandleFunc("/api/assets/", s.routeAssets)

	// Market data
	mux.HandleFunc("/api/rates/", s.handleRateByKind)
	mux.HandleFunc("/api/rates", s.handleRates)
	mux.HandleFunc("/api/crypto/prices", s.handleCryptoPrices)
	mux.HandleFunc("/api/exchange/balances", s.handleExchangeBalances)

	// Upstream diagnostics
	mux.HandleFunc("/api/breaker/reset", s.handleBreakerReset)
	mux.HandleFunc("/api/breaker", s.handleBreaker)
	mux.HandleFunc("/api/token", s.handleTokenInfo)
}

// routePortfolios dispatches /api/portfolios/{id}[/action] to the
// appropriate handler.
func (s *Server) routePortfolios(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/portfolios/")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		WriteError(w, http.StatusBadRequest, "Portfolio id is required in path")
		return
	}

	parts := strings.SplitN(path, "/", 2)
	id := parts[0]

	if len(parts) == 1 {
		s.handlePortfolioByID(w, r, id)
		return
	}

	switch parts[1] {
	case "contributions":
		s.handleContribution(w, r, id)
	case "withdrawals":
		s.handleWithdrawal(w, r, id)
	case "buys":
		s.handleBuy(w, r, id)
	case "operations":
		s.handleOperations(w, r, id)
	case "valuation":
		s.handleValuation(w, r, id)
	case "snapshots":
		s.handleSnapshots(w, r, id)
	default:
		WriteError(w, http.StatusNotFound, "Unknown portfolio action: "+parts[1])
	}
}

// routeAssets dispatches /api/assets/{id}[/sell].
func (s *Server) routeAssets(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/assets/")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		WriteError(w, http.StatusBadRequest, "Asset id is required in path")
		return
	}

	parts := strings.SplitN(path, "/", 2)
	id := parts[0]

	if len(parts) == 1 {
		s.handleAssetGet(w, r, id)
		return
	}

	switch parts[1] {
	case "sell":
		s.handleSell(w, r, id)
	default:
		WriteError(w, http.StatusNotFound, "Unknown asset action: "+parts[1])
	}
}
