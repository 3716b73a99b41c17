package journal

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	testingpkg "github.com/aristath/sarraf/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestJournal(t *testing.T) (*Journal, *sql.DB) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	j := New(NewRepository(db.Conn(), log), testingpkg.NewClock(), &testingpkg.SequenceIDs{}, nil, log)
	return j, db.Conn()
}

func post(t *testing.T, j *Journal, db *sql.DB, in EntryInput) *Entry {
	t.Helper()
	var entry *Entry
	err := database.WithTransaction(context.Background(), db, func(tx *sql.Tx) error {
		var err error
		entry, err = j.PostEntry(context.Background(), tx, in)
		return err
	})
	require.NoError(t, err)
	return entry
}

func purchaseLines() []Line {
	return []Line{
		Debit(AccountInventory, domain.CurrencyAED, d("1000")),
		Credit(AccountFXConversion, domain.CurrencyAED, d("1000")),
		Debit(AccountFXConversion, domain.CurrencyToman, d("3000")),
		Credit(AccountPayable, domain.CurrencyToman, d("3000")),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		lines   []Line
		wantErr error
	}{
		{
			name:  "balanced two-currency entry",
			lines: purchaseLines(),
		},
		{
			name:    "single line",
			lines:   []Line{Debit(AccountCashBank, domain.CurrencyAED, d("1"))},
			wantErr: domain.ErrValidation,
		},
		{
			name: "balanced overall but not per currency",
			lines: []Line{
				Debit(AccountInventory, domain.CurrencyAED, d("1000")),
				Credit(AccountPayable, domain.CurrencyToman, d("1000")),
			},
			wantErr: domain.ErrUnbalancedEntry,
		},
		{
			name: "debit exceeds credit",
			lines: []Line{
				Debit(AccountCashBank, domain.CurrencyToman, d("10")),
				Credit(AccountReceivable, domain.CurrencyToman, d("9.99")),
			},
			wantErr: domain.ErrUnbalancedEntry,
		},
		{
			name: "line with both sides",
			lines: []Line{
				{AccountCode: "1010", Currency: domain.CurrencyAED, Debit: d("5"), Credit: d("5")},
				Credit(AccountReceivable, domain.CurrencyAED, d("0")),
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "negative amount",
			lines: []Line{
				Debit(AccountCashBank, domain.CurrencyAED, d("-5")),
				Credit(AccountReceivable, domain.CurrencyAED, d("-5")),
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "unknown currency",
			lines: []Line{
				Debit(AccountCashBank, domain.Currency("USD"), d("5")),
				Credit(AccountReceivable, domain.Currency("USD"), d("5")),
			},
			wantErr: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.lines)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPostEntry_StoresHeaderAndLines(t *testing.T) {
	j, db := newTestJournal(t)

	entry := post(t, j, db, EntryInput{
		EntryType:   EntryPurchase,
		Description: "Purchase 1000 AED @ 3",
		Lines:       purchaseLines(),
	})

	assert.Equal(t, "JE-000001", entry.EntryNumber)
	assert.NotZero(t, entry.ID)

	stored, err := j.GetEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, EntryPurchase, stored.EntryType)
	require.Len(t, stored.Lines, 4)
	assert.Equal(t, "1100", stored.Lines[0].AccountCode)
	assert.True(t, stored.Lines[0].Debit.Equal(d("1000")))
	assert.Equal(t, domain.CurrencyToman, stored.Lines[3].Currency)
	assert.True(t, stored.Lines[3].Credit.Equal(d("3000")))
}

func TestPostEntry_UnbalancedIsNotPersisted(t *testing.T) {
	j, db := newTestJournal(t)

	err := database.WithTransaction(context.Background(), db, func(tx *sql.Tx) error {
		_, err := j.PostEntry(context.Background(), tx, EntryInput{
			EntryType: EntryReceipt,
			Lines: []Line{
				Debit(AccountCashBank, domain.CurrencyToman, d("100")),
				Credit(AccountReceivable, domain.CurrencyToman, d("90")),
			},
		})
		return err
	})
	require.ErrorIs(t, err, domain.ErrUnbalancedEntry)

	entries, total, err := j.GetEntries(context.Background(), EntryFilter{}, domain.Pagination{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, entries)
}

func TestGetBalances(t *testing.T) {
	j, db := newTestJournal(t)

	post(t, j, db, EntryInput{EntryType: EntryPurchase, Lines: purchaseLines()})
	post(t, j, db, EntryInput{EntryType: EntryReceipt, Lines: []Line{
		Debit(AccountPayable, domain.CurrencyToman, d("3000")),
		Credit(AccountCashBank, domain.CurrencyToman, d("3000")),
	}})

	balances, err := j.GetBalances(context.Background(), BalanceFilter{})
	require.NoError(t, err)

	got := make(map[string]string)
	for _, b := range balances {
		got[b.AccountCode+"-"+string(b.Currency)] = b.Balance.String()
	}

	// Payable-TOMAN is back to zero and must be omitted
	assert.Equal(t, map[string]string{
		"1010-TOMAN": "-3000",
		"1100-AED":   "1000",
		"3900-AED":   "-1000",
		"3900-TOMAN": "3000",
	}, got)

	tomanOnly, err := j.GetBalances(context.Background(), BalanceFilter{Currency: domain.CurrencyToman})
	require.NoError(t, err)
	for _, b := range tomanOnly {
		assert.Equal(t, domain.CurrencyToman, b.Currency)
	}
}

func TestGetBalances_AsOf(t *testing.T) {
	j, db := newTestJournal(t)

	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	post(t, j, db, EntryInput{EntryType: EntryPurchase, EntryDate: early, Lines: purchaseLines()})
	post(t, j, db, EntryInput{EntryType: EntryPurchase, EntryDate: late, Lines: purchaseLines()})

	asOf := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	balances, err := j.GetBalances(context.Background(), BalanceFilter{AccountCode: "1100", AsOf: &asOf})
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, balances[0].Balance.Equal(d("1000")))
}

func TestGetEntries_FilterAndPaginate(t *testing.T) {
	j, db := newTestJournal(t)

	tradeID := int64(7)
	for i := 0; i < 3; i++ {
		post(t, j, db, EntryInput{EntryType: EntryPurchase, Lines: purchaseLines()})
	}

	// journal_entries.trade_id references trades, so link via a real row
	_, err := db.Exec(`INSERT INTO trades (id, trade_number, trade_type, base_currency, quote_currency, amount, rate, total_value, trade_date, created_at)
		VALUES (7, 'T-000007', 'BUY', 'AED', 'TOMAN', '1', '1', '1', 0, 0)`)
	require.NoError(t, err)
	post(t, j, db, EntryInput{EntryType: EntrySale, TradeID: &tradeID, Lines: purchaseLines()})

	entries, total, err := j.GetEntries(context.Background(), EntryFilter{}, domain.Pagination{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.Len(t, e.Lines, 4)
	}

	byTrade, total, err := j.GetEntries(context.Background(), EntryFilter{TradeID: &tradeID}, domain.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, byTrade, 1)
	assert.Equal(t, EntrySale, byTrade[0].EntryType)
}

func TestGetEntry_NotFound(t *testing.T) {
	j, _ := newTestJournal(t)

	_, err := j.GetEntry(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReverseLines(t *testing.T) {
	reversed := ReverseLines(purchaseLines())

	require.Len(t, reversed, 4)
	assert.True(t, reversed[0].Credit.Equal(d("1000")))
	assert.True(t, reversed[0].Debit.IsZero())
	assert.NoError(t, Validate(reversed))
}

func TestFindImbalances(t *testing.T) {
	j, db := newTestJournal(t)
	entry := post(t, j, db, EntryInput{EntryType: EntryPurchase, Lines: purchaseLines()})

	imbalances, err := j.FindImbalances(context.Background())
	require.NoError(t, err)
	assert.Empty(t, imbalances)
	assert.NoError(t, j.CheckBalanced(context.Background()))

	// Tamper with a stored line behind the journal's back
	_, err = db.Exec(`UPDATE journal_entry_lines SET debit_amount = '999' WHERE entry_id = ? AND line_order = 0`, entry.ID)
	require.NoError(t, err)

	imbalances, err = j.FindImbalances(context.Background())
	require.NoError(t, err)
	require.Len(t, imbalances, 1)
	assert.Equal(t, entry.ID, imbalances[0].EntryID)
	assert.Equal(t, domain.CurrencyAED, imbalances[0].Currency)
	assert.ErrorIs(t, j.CheckBalanced(context.Background()), domain.ErrUnbalancedEntry)
}
