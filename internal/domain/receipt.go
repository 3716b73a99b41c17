package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptDirection tells whether a party receipt is money in or money out
type ReceiptDirection string

const (
	DirectionReceive ReceiptDirection = "receive"
	DirectionPay     ReceiptDirection = "pay"
)

// Obligor describes who a receipt's money comes from and goes to.
// Implementations are TomanTransfer and PartyReceipt.
type Obligor interface {
	obligor()
}

// TomanTransfer is a TOMAN payment made by a payer into a bank account
type TomanTransfer struct {
	PayerID           int64 `json:"payer_id"`
	ReceiverAccountID int64 `json:"receiver_account_id"`
}

// PartyReceipt is a payment exchanged directly with one trading party
type PartyReceipt struct {
	Direction      ReceiptDirection `json:"receipt_type"`
	IndividualName string           `json:"individual_name,omitempty"`
	TradingPartyID int64            `json:"trading_party_id"`
}

func (TomanTransfer) obligor() {}
func (PartyReceipt) obligor()  {}

// Receipt is a payment receipt. Deleted receipts keep their row and can be restored.
type Receipt struct {
	ReceiptDate    time.Time       `json:"receipt_date"`
	CreatedAt      time.Time       `json:"created_at"`
	Obligor        Obligor         `json:"obligor"`
	Currency       Currency        `json:"currency"`
	Description    string          `json:"description,omitempty"`
	DeletionReason string          `json:"deletion_reason,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	ID             int64           `json:"id"`
	IsDeleted      bool            `json:"is_deleted"`
	IsRestored     bool            `json:"is_restored"`
}

// Receipt kinds as stored in payment_receipts.receipt_kind
const (
	ReceiptKindTransfer = "TRANSFER"
	ReceiptKindParty    = "PARTY"
)

// Kind returns the stored kind of the receipt's obligor
func (r *Receipt) Kind() string {
	if _, ok := r.Obligor.(TomanTransfer); ok {
		return ReceiptKindTransfer
	}
	return ReceiptKindParty
}
