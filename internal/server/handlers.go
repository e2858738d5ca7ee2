package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/models"
)

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}

// --- Portfolio handlers ---

func (s *Server) handlePortfolios(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		portfolios, err := s.app.LedgerService.ListPortfolios(r.Context())
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"portfolios": portfolios,
		})

	case http.MethodPost:
		var req struct {
			Name           string          `json:"name"`
			Description    string          `json:"description"`
			InitialCapital decimal.Decimal `json:"initial_capital"`
		}
		if !DecodeJSON(w, r, &req) {
			return
		}
		portfolio, err := s.app.LedgerService.CreatePortfolio(r.Context(), req.Name, req.Description, req.InitialCapital)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, portfolio)

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handlePortfolioByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		portfolio, err := s.app.LedgerService.GetPortfolio(r.Context(), id)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		assets, err := s.app.LedgerService.ListAssets(r.Context(), id)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"portfolio": portfolio,
			"assets":    assets,
		})

	case http.MethodDelete:
		if err := s.app.LedgerService.DeletePortfolio(r.Context(), id); err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"deleted": id})

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodDelete)
	}
}

// --- Capital handlers ---

type capitalRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

func (s *Server) handleContribution(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req capitalRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	op, err := s.app.LedgerService.Contribute(r.Context(), portfolioID, req.Amount, req.Note)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, op)
}

func (s *Server) handleWithdrawal(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req capitalRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	op, err := s.app.LedgerService.Withdraw(r.Context(), portfolioID, req.Amount, req.Note)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, op)
}

// --- Trade handlers ---

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Symbol     string          `json:"symbol"`
		Name       string          `json:"name"`
		Class      string          `json:"class"`
		Quantity   decimal.Decimal `json:"quantity"`
		PriceUSD   decimal.Decimal `json:"price_usd"`
		PriceARS   decimal.Decimal `json:"price_ars"`
		FXRate     decimal.Decimal `json:"fx_rate"`
		Note       string          `json:"note"`
		ExecutedAt time.Time       `json:"executed_at"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	op, err := s.app.LedgerService.RegisterBuy(r.Context(), portfolioID, interfaces.BuyInput{
		Symbol:     req.Symbol,
		Name:       req.Name,
		Class:      models.AssetClass(req.Class),
		Quantity:   req.Quantity,
		PriceUSD:   req.PriceUSD,
		PriceARS:   req.PriceARS,
		FXRate:     req.FXRate,
		Note:       req.Note,
		ExecutedAt: req.ExecutedAt,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, op)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request, assetID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Quantity   decimal.Decimal `json:"quantity"`
		PriceUSD   decimal.Decimal `json:"price_usd"`
		Note       string          `json:"note"`
		ExecutedAt time.Time       `json:"executed_at"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	op, err := s.app.LedgerService.RegisterSell(r.Context(), assetID, interfaces.SellInput{
		Quantity:   req.Quantity,
		PriceUSD:   req.PriceUSD,
		Note:       req.Note,
		ExecutedAt: req.ExecutedAt,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, op)
}

func (s *Server) handleAssetGet(w http.ResponseWriter, r *http.Request, assetID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	asset, err := s.app.LedgerService.GetAsset(r.Context(), assetID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, asset)
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	limit := queryInt(r, "limit", 0)
	ops, err := s.app.LedgerService.ListOperations(r.Context(), portfolioID, limit)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"operations": ops,
	})
}

// --- Valuation handlers ---

func (s *Server) handleValuation(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	valuation, err := s.app.ValuationService.Valuate(r.Context(), portfolioID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, valuation)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request, portfolioID string) {
	switch r.Method {
	case http.MethodPost:
		snap, err := s.app.SnapshotService.CreateSnapshot(r.Context(), portfolioID)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, snap)

	case http.MethodGet:
		asc := r.URL.Query().Get("asc") == "true"
		limit := queryInt(r, "limit", 0)
		snaps, err := s.app.SnapshotService.ListSnapshots(r.Context(), portfolioID, asc, limit)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"snapshots": snaps,
		})

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
