package models

import "time"

// TokenInfo describes the current state of the brokerage session tokens.
// The raw token values are never exposed.
type TokenInfo struct {
	HasAccessToken   bool      `json:"has_access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at,omitzero"`
	HasRefreshToken  bool      `json:"has_refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitzero"`
}

// BrokerPosition is a holding as reported by the brokerage portfolio
// endpoint. LastPrice is in ARS.
type BrokerPosition struct {
	Symbol      string  `json:"symbol"`
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity"`
	LastPrice   float64 `json:"last_price"`
	Type        string  `json:"type,omitempty"`
}

// AccountBalance is a non-zero exchange wallet balance.
type AccountBalance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// PriceUpdate is one tick from the exchange push stream.
type PriceUpdate struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// DollarRateKind enumerates the peso/dollar quote variants served by
// dolarapi.com.
type DollarRateKind string

const (
	DollarOficial DollarRateKind = "oficial"
	DollarBlue    DollarRateKind = "blue"
	DollarMEP     DollarRateKind = "mep"
	DollarCCL     DollarRateKind = "ccl"
	DollarCripto  DollarRateKind = "cripto"
	DollarTarjeta DollarRateKind = "tarjeta"
)

// AllDollarRateKinds lists every quote variant, in presentation order.
var AllDollarRateKinds = []DollarRateKind{
	DollarOficial, DollarBlue, DollarMEP, DollarCCL, DollarCripto, DollarTarjeta,
}

// DollarRate is one peso/dollar quote.
type DollarRate struct {
	Kind      DollarRateKind `json:"kind"`
	Name      string         `json:"name"`
	Buy       float64        `json:"buy"`
	Sell      float64        `json:"sell"`
	Spread    float64        `json:"spread"`
	SpreadPct float64        `json:"spread_pct"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// RateComparison is the fan-out summary across all dollar quote variants,
// ordered by sell rate descending.
type RateComparison struct {
	Rates       []DollarRate `json:"rates"`
	HighestSell *DollarRate  `json:"highest_sell,omitempty"`
	LowestSell  *DollarRate  `json:"lowest_sell,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
}
