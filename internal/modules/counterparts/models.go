// Package counterparts provides per-counterpart running balances, their statement
// history, and the trading parties and bank accounts those balances belong to.
package counterparts

import (
	"time"

	"github.com/aristath/sarraf/internal/domain"
	"github.com/shopspring/decimal"
)

// BalanceUpdate is a signed change to one counterpart's balance in one currency.
// Positive amounts mean the counterparty owes us less or we owe them more.
type BalanceUpdate struct {
	Date          time.Time
	TradeID       *int64
	ReceiptID     *int64
	Currency      domain.Currency
	Type          domain.TransactionType
	Description   string
	Amount        decimal.Decimal
	CounterpartID int64
}

// BalanceChange reports the balance before and after an update
type BalanceChange struct {
	Previous decimal.Decimal `json:"previous_balance"`
	New      decimal.Decimal `json:"new_balance"`
}

// Balance is the running balance of a counterpart in one currency
type Balance struct {
	UpdatedAt     time.Time       `json:"updated_at"`
	Currency      domain.Currency `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	CounterpartID int64           `json:"counterpart_id"`
}

// StatementLine is one audit row of a counterpart statement
type StatementLine struct {
	TransactionDate time.Time              `json:"transaction_date"`
	CreatedAt       time.Time              `json:"created_at"`
	TradeID         *int64                 `json:"trade_id,omitempty"`
	ReceiptID       *int64                 `json:"receipt_id,omitempty"`
	Currency        domain.Currency        `json:"currency"`
	TransactionType domain.TransactionType `json:"transaction_type"`
	Description     string                 `json:"description"`
	DebitAmount     decimal.Decimal        `json:"debit_amount"`
	CreditAmount    decimal.Decimal        `json:"credit_amount"`
	BalanceAfter    decimal.Decimal        `json:"balance_after"`
	ID              int64                  `json:"id"`
	CounterpartID   int64                  `json:"counterpart_id"`
}

// StatementFilter selects statement lines. Currency, From and To are optional.
type StatementFilter struct {
	From          *time.Time
	To            *time.Time
	Currency      domain.Currency
	CounterpartID int64
}

// StatementCheck is the result of replaying a statement against the stored balance
type StatementCheck struct {
	MismatchLineID *int64          `json:"mismatch_line_id,omitempty"`
	Currency       domain.Currency `json:"currency"`
	Replayed       decimal.Decimal `json:"replayed_balance"`
	Stored         decimal.Decimal `json:"stored_balance"`
	CounterpartID  int64           `json:"counterpart_id"`
	Lines          int             `json:"lines"`
	OK             bool            `json:"ok"`
}

// CreatePartyRequest is the input for registering a trading party
type CreatePartyRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"max=50"`
	Notes string `json:"notes" validate:"max=2000"`
}

// CreateBankAccountRequest is the input for registering a bank account
type CreateBankAccountRequest struct {
	CounterpartID *int64          `json:"counterpart_id"`
	BankName      string          `json:"bank_name" validate:"required,max=200"`
	AccountNumber string          `json:"account_number" validate:"required,max=100"`
	HolderName    string          `json:"holder_name" validate:"max=200"`
	Currency      domain.Currency `json:"currency" validate:"required,oneof=AED TOMAN"`
}
