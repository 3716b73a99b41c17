// Package journal provides the append-only double-entry journal.
package journal

import (
	"time"

	"github.com/aristath/sarraf/internal/domain"
	"github.com/shopspring/decimal"
)

// Account is an entry in the chart of accounts
type Account struct {
	Code string
	Name string
}

// Chart of accounts
var (
	AccountCashBank       = Account{Code: "1010", Name: "Cash & Bank"}
	AccountInventory      = Account{Code: "1100", Name: "Currency Inventory"}
	AccountReceivable     = Account{Code: "1200", Name: "Accounts Receivable"}
	AccountPayable        = Account{Code: "2100", Name: "Accounts Payable"}
	AccountFXConversion   = Account{Code: "3900", Name: "FX Conversion"}
	AccountTradingRevenue = Account{Code: "4100", Name: "FX Trading Revenue"}
	AccountTradingLoss    = Account{Code: "5100", Name: "FX Trading Loss"}
)

// EntryType classifies journal entries
type EntryType string

const (
	EntryPurchase EntryType = "PURCHASE"
	EntrySale     EntryType = "SALE"
	EntryReceipt  EntryType = "RECEIPT"
	EntryReversal EntryType = "REVERSAL"
)

// Line is one debit or credit line of an entry
type Line struct {
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Currency    domain.Currency `json:"currency"`
	Debit       decimal.Decimal `json:"debit_amount"`
	Credit      decimal.Decimal `json:"credit_amount"`
	ID          int64           `json:"id,omitempty"`
	EntryID     int64           `json:"entry_id,omitempty"`
}

// Debit builds a debit line
func Debit(account Account, currency domain.Currency, amount decimal.Decimal) Line {
	return Line{
		AccountCode: account.Code,
		AccountName: account.Name,
		Currency:    currency,
		Debit:       amount,
		Credit:      decimal.Zero,
	}
}

// Credit builds a credit line
func Credit(account Account, currency domain.Currency, amount decimal.Decimal) Line {
	return Line{
		AccountCode: account.Code,
		AccountName: account.Name,
		Currency:    currency,
		Debit:       decimal.Zero,
		Credit:      amount,
	}
}

// Entry is a posted journal entry with its lines
type Entry struct {
	EntryDate   time.Time `json:"entry_date"`
	CreatedAt   time.Time `json:"created_at"`
	TradeID     *int64    `json:"trade_id,omitempty"`
	ReceiptID   *int64    `json:"receipt_id,omitempty"`
	EntryNumber string    `json:"entry_number"`
	EntryType   EntryType `json:"entry_type"`
	Description string    `json:"description"`
	Lines       []Line    `json:"lines"`
	ID          int64     `json:"id"`
}

// EntryInput is what callers hand to PostEntry
type EntryInput struct {
	EntryDate   time.Time
	TradeID     *int64
	ReceiptID   *int64
	EntryType   EntryType
	Description string
	Lines       []Line
}

// AccountBalance is the net debit-minus-credit balance of one account in one currency
type AccountBalance struct {
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Currency    domain.Currency `json:"currency"`
	Balance     decimal.Decimal `json:"balance"`
}

// BalanceFilter narrows GetBalances
type BalanceFilter struct {
	AsOf        *time.Time
	Currency    domain.Currency
	AccountCode string
}

// EntryFilter narrows GetEntries
type EntryFilter struct {
	From      *time.Time
	To        *time.Time
	TradeID   *int64
	ReceiptID *int64
	EntryType EntryType
}

// Imbalance describes an entry whose lines do not balance in one currency
type Imbalance struct {
	Currency domain.Currency `json:"currency"`
	Debits   decimal.Decimal `json:"debits"`
	Credits  decimal.Decimal `json:"credits"`
	EntryID  int64           `json:"entry_id"`
}
