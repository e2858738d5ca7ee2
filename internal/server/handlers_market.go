package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mbelgrano/cartera/internal/models"
)

// --- Dollar rate handlers ---

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	comparison, err := s.app.RateClient.GetAllRates(r.Context())
	if err != nil {
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Error fetching rates: %v", err))
		return
	}
	WriteJSON(w, http.StatusOK, comparison)
}

func (s *Server) handleRateByKind(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	kind := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/rates/"), "/")
	if kind == "" {
		WriteError(w, http.StatusBadRequest, "Rate kind is required in path")
		return
	}

	rate, err := s.app.RateClient.GetRate(r.Context(), models.DollarRateKind(kind))
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Error fetching rate: %v", err))
		return
	}
	WriteJSON(w, http.StatusOK, rate)
}

// --- Crypto price handlers ---

func (s *Server) handleCryptoPrices(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		WriteError(w, http.StatusBadRequest, "symbols query parameter is required")
		return
	}
	symbols := strings.Split(raw, ",")
	for i := range symbols {
		symbols[i] = strings.TrimSpace(symbols[i])
	}

	prices, err := s.app.PriceService.GetPrices(r.Context(), symbols)
	if err != nil {
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Error resolving prices: %v", err))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"prices": prices,
	})
}

// --- Exchange account handlers ---

func (s *Server) handleExchangeBalances(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	balances, err := s.app.ExchangeClient.GetAccountBalances(r.Context())
	if err != nil {
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Error fetching balances: %v", err))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"balances": balances,
	})
}

// --- Upstream diagnostics handlers ---

func (s *Server) handleBreaker(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, s.app.PriceService.BreakerStatus())
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	s.app.PriceService.ResetBreaker()
	s.logger.Info().Msg("Circuit breaker reset via HTTP endpoint")
	WriteJSON(w, http.StatusOK, s.app.PriceService.BreakerStatus())
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, s.app.BrokerClient.TokenInfo())
}
