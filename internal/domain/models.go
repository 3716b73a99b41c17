// Package domain provides core domain models and types.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency represents one of the two currencies the desk trades
type Currency string

const (
	CurrencyAED   Currency = "AED"
	CurrencyToman Currency = "TOMAN"
)

// Valid reports whether c is a supported currency
func (c Currency) Valid() bool {
	return c == CurrencyAED || c == CurrencyToman
}

// Other returns the opposite currency of the pair
func (c Currency) Other() Currency {
	if c == CurrencyAED {
		return CurrencyToman
	}
	return CurrencyAED
}

// TradeType represents the kind of trade
type TradeType string

const (
	TradeTypeBuy     TradeType = "BUY"
	TradeTypeSell    TradeType = "SELL"
	TradeTypeBuySell TradeType = "BUY_SELL"
)

// TradeStatus represents the settlement status of a trade
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "PENDING"
	TradeStatusPartial   TradeStatus = "PARTIAL"
	TradeStatusCompleted TradeStatus = "COMPLETED"
	TradeStatusCancelled TradeStatus = "CANCELLED"
)

// Trade is a recorded AED/TOMAN trade with per-leg settlement tracking
type Trade struct {
	TradeDate           time.Time        `json:"trade_date"`
	CreatedAt           time.Time        `json:"created_at"`
	CounterpartyID      *int64           `json:"counterparty_id,omitempty"`
	ProfitToman         *decimal.Decimal `json:"profit_toman,omitempty"`
	ProfitAED           *decimal.Decimal `json:"profit_aed,omitempty"`
	TradeNumber         string           `json:"trade_number"`
	TradeType           TradeType        `json:"trade_type"`
	BaseCurrency        Currency         `json:"base_currency"`
	QuoteCurrency       Currency         `json:"quote_currency"`
	Status              TradeStatus      `json:"status"`
	Notes               string           `json:"notes,omitempty"`
	Amount              decimal.Decimal  `json:"amount"`
	Rate                decimal.Decimal  `json:"rate"`
	TotalValue          decimal.Decimal  `json:"total_value"`
	BaseSettledAmount   decimal.Decimal  `json:"base_settled_amount"`
	QuoteSettledAmount  decimal.Decimal  `json:"quote_settled_amount"`
	ID                  int64            `json:"id"`
	IsBaseFullySettled  bool             `json:"is_base_fully_settled"`
	IsQuoteFullySettled bool             `json:"is_quote_fully_settled"`
}

// BaseUnsettled returns the outstanding base-leg obligation
func (t *Trade) BaseUnsettled() decimal.Decimal {
	return t.Amount.Sub(t.BaseSettledAmount)
}

// QuoteUnsettled returns the outstanding quote-leg obligation
func (t *Trade) QuoteUnsettled() decimal.Decimal {
	return t.TotalValue.Sub(t.QuoteSettledAmount)
}

// Profit returns the realized profit stored for the trade's quote currency, if any
func (t *Trade) Profit() *decimal.Decimal {
	if t.QuoteCurrency == CurrencyAED {
		return t.ProfitAED
	}
	return t.ProfitToman
}

// DeriveStatus recomputes the status from the settled amounts.
// COMPLETED needs both legs covered; any progress on either leg is PARTIAL.
func (t *Trade) DeriveStatus() TradeStatus {
	t.IsBaseFullySettled = t.BaseSettledAmount.GreaterThanOrEqual(t.Amount)
	t.IsQuoteFullySettled = t.QuoteSettledAmount.GreaterThanOrEqual(t.TotalValue)

	switch {
	case t.IsBaseFullySettled && t.IsQuoteFullySettled:
		return TradeStatusCompleted
	case t.BaseSettledAmount.IsPositive() || t.QuoteSettledAmount.IsPositive():
		return TradeStatusPartial
	default:
		return TradeStatusPending
	}
}

// SettlementTracked reports whether the settlement engine manages this trade
func (t *Trade) SettlementTracked() bool {
	return t.TradeType != TradeTypeBuySell && t.Status != TradeStatusCancelled
}

// Position is a FIFO inventory lot opened by a BUY trade
type Position struct {
	CreatedAt       time.Time       `json:"created_at"`
	Currency        Currency        `json:"currency"`
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	AverageCostRate decimal.Decimal `json:"average_cost_rate"`
	ID              int64           `json:"id"`
	TradeID         int64           `json:"trade_id"`
}

// SettlementType identifies which trade leg an allocation settles
type SettlementType string

const (
	SettlementBase  SettlementType = "BASE"
	SettlementQuote SettlementType = "QUOTE"
)

// TradeSettlement records how much of a receipt was poured into a trade leg
type TradeSettlement struct {
	CreatedAt      time.Time       `json:"created_at"`
	Currency       Currency        `json:"currency"`
	SettlementType SettlementType  `json:"settlement_type"`
	SettledAmount  decimal.Decimal `json:"settled_amount"`
	ID             int64           `json:"id"`
	TradeID        int64           `json:"trade_id"`
	ReceiptID      int64           `json:"receipt_id"`
	FIFOSequence   int             `json:"fifo_sequence"`
}

// TradingParty is a counterparty the desk trades with
type TradingParty struct {
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	ID        int64     `json:"id"`
}

// BankAccount is an account receipts can be paid into.
// A nil CounterpartID means the account belongs to the desk.
type BankAccount struct {
	CreatedAt     time.Time `json:"created_at"`
	CounterpartID *int64    `json:"counterpart_id,omitempty"`
	BankName      string    `json:"bank_name"`
	AccountNumber string    `json:"account_number"`
	HolderName    string    `json:"holder_name,omitempty"`
	Currency      Currency  `json:"currency"`
	ID            int64     `json:"id"`
}

// TransactionType classifies counterpart statement lines
type TransactionType string

const (
	TransactionBuy     TransactionType = "BUY"
	TransactionSell    TransactionType = "SELL"
	TransactionReceipt TransactionType = "RECEIPT"
)

// SettlementProgress is the fraction of each leg of a trade that receipts have extinguished.
// It is derived on read and never stored.
type SettlementProgress struct {
	BaseSettled     decimal.Decimal `json:"base_settled"`
	BaseObligation  decimal.Decimal `json:"base_obligation"`
	BaseProgress    decimal.Decimal `json:"base_progress"`
	QuoteSettled    decimal.Decimal `json:"quote_settled"`
	QuoteObligation decimal.Decimal `json:"quote_obligation"`
	QuoteProgress   decimal.Decimal `json:"quote_progress"`
	TradeID         int64           `json:"trade_id"`
}
