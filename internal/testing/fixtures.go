package testing

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var fixtureTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()

// InsertParty inserts a trading party and returns its ID
func InsertParty(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()

	result, err := db.Exec(`INSERT INTO trading_parties (name, created_at) VALUES (?, ?)`, name, fixtureTime)
	if err != nil {
		t.Fatalf("Failed to insert trading party %s: %v", name, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read trading party id: %v", err)
	}
	return id
}

// InsertBankAccount inserts a bank account owned by counterpartID (0 = desk-owned) and returns its ID
func InsertBankAccount(t *testing.T, db *sql.DB, counterpartID int64, currency string) int64 {
	t.Helper()

	var owner interface{}
	if counterpartID != 0 {
		owner = counterpartID
	}

	result, err := db.Exec(`
		INSERT INTO bank_accounts (counterpart_id, bank_name, account_number, currency, created_at)
		VALUES (?, 'Mellat', '6104-0000-0000', ?, ?)
	`, owner, currency, fixtureTime)
	if err != nil {
		t.Fatalf("Failed to insert bank account: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read bank account id: %v", err)
	}
	return id
}

// InsertTrade inserts a bare AED/TOMAN trade row and returns its ID.
// counterpartyID 0 leaves the trade without a counterparty.
func InsertTrade(t *testing.T, db *sql.DB, tradeType string, counterpartyID int64, amount, rate string) int64 {
	t.Helper()

	var counterparty interface{}
	if counterpartyID != 0 {
		counterparty = counterpartyID
	}

	var next int64
	if err := db.QueryRow(`SELECT COALESCE(MAX(id), 0) + 1 FROM trades`).Scan(&next); err != nil {
		t.Fatalf("Failed to compute next trade id: %v", err)
	}

	total := decimal.RequireFromString(amount).Mul(decimal.RequireFromString(rate))
	result, err := db.Exec(`
		INSERT INTO trades (trade_number, trade_type, base_currency, quote_currency, amount, rate, total_value,
		                    counterparty_id, trade_date, created_at)
		VALUES (?, ?, 'AED', 'TOMAN', ?, ?, ?, ?, ?, ?)
	`, fmt.Sprintf("T-%06d", next), tradeType, amount, rate, total.String(), counterparty, fixtureTime, fixtureTime+next)
	if err != nil {
		t.Fatalf("Failed to insert trade: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read trade id: %v", err)
	}
	return id
}
