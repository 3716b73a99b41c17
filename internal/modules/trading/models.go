// Package trading provides the trade ledger: AED/TOMAN trades with their journal,
// inventory and counterpart balance effects.
package trading

import (
	"time"

	"github.com/aristath/sarraf/internal/domain"
	"github.com/shopspring/decimal"
)

// CreateTradeRequest is the input for CreateTrade.
// PositionID, only valid for SELL, sells from one named lot instead of the FIFO pool.
type CreateTradeRequest struct {
	TradeDate      *time.Time       `json:"trade_date,omitempty"`
	CounterpartyID *int64           `json:"counterparty_id,omitempty" validate:"omitempty,gt=0"`
	PositionID     *int64           `json:"position_id,omitempty" validate:"omitempty,gt=0"`
	TradeType      domain.TradeType `json:"trade_type" validate:"required,oneof=BUY SELL BUY_SELL"`
	BaseCurrency   domain.Currency  `json:"base_currency" validate:"required,oneof=AED TOMAN"`
	QuoteCurrency  domain.Currency  `json:"quote_currency" validate:"required,oneof=AED TOMAN,nefield=BaseCurrency"`
	Notes          string           `json:"notes,omitempty" validate:"max=1000"`
	Amount         decimal.Decimal  `json:"amount"`
	Rate           decimal.Decimal  `json:"rate"`
}

// TradeFilter selects trades. Every field is optional.
// Currency matches a trade on either leg; BaseCurrency pins the base leg.
type TradeFilter struct {
	From           *time.Time
	To             *time.Time
	CounterpartyID *int64
	Status         domain.TradeStatus
	Type           domain.TradeType
	Currency       domain.Currency
	BaseCurrency   domain.Currency
}

// TradeWithProgress is a trade as returned by listings
type TradeWithProgress struct {
	domain.Trade
	Progress *domain.SettlementProgress `json:"settlement_progress,omitempty"`
}

// ProfitSummary describes realized SELL profit in one quote currency
type ProfitSummary struct {
	Currency domain.Currency `json:"currency"`
	Total    decimal.Decimal `json:"total"`
	Min      decimal.Decimal `json:"min"`
	Max      decimal.Decimal `json:"max"`
	Mean     float64         `json:"mean"`
	StdDev   float64         `json:"std_dev"`
	Count    int             `json:"count"`
	Losses   int             `json:"losses"`
}

// SellPositionRequest sells part of one named lot
type SellPositionRequest struct {
	TradeDate      *time.Time      `json:"trade_date,omitempty"`
	CounterpartyID *int64          `json:"counterparty_id,omitempty" validate:"omitempty,gt=0"`
	Notes          string          `json:"notes,omitempty" validate:"max=1000"`
	Amount         decimal.Decimal `json:"amount"`
	Rate           decimal.Decimal `json:"rate"`
}
