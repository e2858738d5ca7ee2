package surrealdb

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbelgrano/cartera/internal/models"
)

// Portfolio balance fields are adjusted server side, inside the statement,
// so concurrent writers never overwrite each other's deltas. The fields stay
// strings in storage; the arithmetic casts through type::decimal.

const realizedGainsIncrement = "UPDATE type::record('portfolio', $portfolio_id) SET " +
	"realized_gains = type::string(type::decimal(realized_gains) + type::decimal($realized_delta)), " +
	"updated_at = $updated_at;"

const capitalIncrement = "UPDATE type::record('portfolio', $portfolio_id) SET " +
	"capital = type::string(type::decimal(capital) + type::decimal($capital_delta)), " +
	"updated_at = $updated_at " +
	"WHERE type::decimal(capital) + type::decimal($capital_delta) >= 0"

// applyTradeQuery builds the single transaction committing a buy or sell:
// asset upsert or delete, operation insert, and the portfolio realized-gain
// increment.
func applyTradeQuery(trade *models.TradeApply) (string, map[string]any) {
	assetStmt := "UPSERT type::record('asset', $asset_id) CONTENT $asset;"
	if trade.DeleteAsset {
		assetStmt = "DELETE type::record('asset', $asset_id);"
	}

	sql := strings.Join([]string{
		"BEGIN TRANSACTION;",
		assetStmt,
		"CREATE type::record('operation', $operation_id) CONTENT $operation;",
		realizedGainsIncrement,
		"COMMIT TRANSACTION;",
	}, "\n")

	vars := map[string]any{
		"asset_id":       trade.Asset.ID,
		"asset":          toAssetRecord(trade.Asset),
		"operation_id":   trade.Operation.ID,
		"operation":      toOperationRecord(trade.Operation),
		"portfolio_id":   trade.Asset.PortfolioID,
		"realized_delta": trade.RealizedGainDelta.String(),
		"updated_at":     trade.Operation.CreatedAt,
	}
	return sql, vars
}

// addCapitalQuery builds the guarded capital increment. The WHERE clause
// rejects adjustments that would take the balance negative; a zero-row
// result means the guard fired.
func addCapitalQuery(id string, delta decimal.Decimal, updatedAt time.Time) (string, map[string]any) {
	vars := map[string]any{
		"portfolio_id":  id,
		"capital_delta": delta.String(),
		"updated_at":    updatedAt,
	}
	return capitalIncrement, vars
}
