// Package receipts records payment receipts and their journal and counterpart
// balance effects. Deleted receipts keep their row and can be restored.
package receipts

import (
	"time"

	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/modules/settlement"
	"github.com/shopspring/decimal"
)

// CreateReceiptRequest is the input for Create.
//
// TRANSFER receipts are TOMAN payments from PayerID into ReceiverAccountID.
// PARTY receipts are exchanged with TradingPartyID in the given Direction.
type CreateReceiptRequest struct {
	ReceiptDate       *time.Time              `json:"receipt_date,omitempty"`
	PayerID           *int64                  `json:"payer_id,omitempty" validate:"omitempty,gt=0"`
	ReceiverAccountID *int64                  `json:"receiver_account_id,omitempty" validate:"omitempty,gt=0"`
	TradingPartyID    *int64                  `json:"trading_party_id,omitempty" validate:"omitempty,gt=0"`
	Kind              string                  `json:"kind" validate:"required,oneof=TRANSFER PARTY"`
	Currency          domain.Currency         `json:"currency" validate:"required,oneof=AED TOMAN"`
	Direction         domain.ReceiptDirection `json:"receipt_type,omitempty" validate:"omitempty,oneof=receive pay"`
	IndividualName    string                  `json:"individual_name,omitempty" validate:"max=200"`
	Description       string                  `json:"description,omitempty" validate:"max=1000"`
	Amount            decimal.Decimal         `json:"amount"`
}

// DeleteReceiptRequest carries the reason for a deletion
type DeleteReceiptRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ReceiptFilter selects receipts. CounterpartyID matches the payer or the trading party.
type ReceiptFilter struct {
	From           *time.Time
	To             *time.Time
	CounterpartyID *int64
	Currency       domain.Currency
	IncludeDeleted bool
}

// ReceiptView is a receipt as returned by the API
type ReceiptView struct {
	domain.Receipt
	Kind string `json:"kind"`
}

// NewReceiptView wraps r with its kind
func NewReceiptView(r domain.Receipt) ReceiptView {
	return ReceiptView{Receipt: r, Kind: r.Kind()}
}

// Result is the outcome of a receipt mutation. The receipt change is committed
// even when SettlementError is set; settlement can be rebuilt with a reprocess.
type Result struct {
	Receipt         ReceiptView                 `json:"receipt"`
	Settlement      *settlement.ProcessResult   `json:"settlement,omitempty"`
	Reprocess       *settlement.ReprocessResult `json:"reprocess,omitempty"`
	SettlementError string                      `json:"settlement_error,omitempty"`
}

// Detail is one receipt with the allocations it produced
type Detail struct {
	ReceiptView
	Allocations []settlement.Allocation `json:"allocations"`
}
