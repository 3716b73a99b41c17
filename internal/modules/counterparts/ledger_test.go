package counterparts

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
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

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func setupLedger(t *testing.T) (*Ledger, *Directory, *sql.DB) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	clock := testingpkg.NewClock()
	log := zerolog.Nop()
	return NewLedger(db.Conn(), clock, log), NewDirectory(db.Conn(), clock, log), db.Conn()
}

func apply(t *testing.T, l *Ledger, db *sql.DB, u BalanceUpdate) *BalanceChange {
	t.Helper()
	var change *BalanceChange
	err := database.WithTransaction(context.Background(), db, func(tx *sql.Tx) error {
		var err error
		change, err = l.UpdateBalance(context.Background(), tx, u)
		return err
	})
	require.NoError(t, err)
	return change
}

func TestUpdateBalance_LazyCreateAndStatementLine(t *testing.T) {
	l, _, db := setupLedger(t)
	partyID := testingpkg.InsertParty(t, db, "Karimi Exchange")
	ctx := context.Background()

	before, err := l.GetBalance(ctx, partyID, domain.CurrencyToman)
	require.NoError(t, err)
	assert.True(t, before.IsZero())

	change := apply(t, l, db, BalanceUpdate{
		CounterpartID: partyID,
		Currency:      domain.CurrencyToman,
		Amount:        dec("3000"),
		Type:          domain.TransactionBuy,
		Description:   "Buy 1000 AED @ 3",
	})
	assert.True(t, change.Previous.IsZero())
	assert.True(t, change.New.Equal(dec("3000")))

	change = apply(t, l, db, BalanceUpdate{
		CounterpartID: partyID,
		Currency:      domain.CurrencyToman,
		Amount:        dec("-1200.5"),
		Type:          domain.TransactionReceipt,
	})
	assert.True(t, change.Previous.Equal(dec("3000")))
	assert.True(t, change.New.Equal(dec("1799.5")))

	lines, err := l.GetStatement(ctx, StatementFilter{CounterpartID: partyID})
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.True(t, lines[0].CreditAmount.Equal(dec("3000")))
	assert.True(t, lines[0].DebitAmount.IsZero())
	assert.Equal(t, domain.TransactionBuy, lines[0].TransactionType)

	assert.True(t, lines[1].DebitAmount.Equal(dec("1200.5")))
	assert.True(t, lines[1].CreditAmount.IsZero())
	assert.True(t, lines[1].BalanceAfter.Equal(dec("1799.5")))
}

func TestUpdateBalance_RollsBackWithUnitOfWork(t *testing.T) {
	l, _, db := setupLedger(t)
	partyID := testingpkg.InsertParty(t, db, "Rollback Co")
	ctx := context.Background()

	err := database.WithTransaction(ctx, db, func(tx *sql.Tx) error {
		if _, err := l.UpdateBalance(ctx, tx, BalanceUpdate{
			CounterpartID: partyID,
			Currency:      domain.CurrencyAED,
			Amount:        dec("50"),
			Type:          domain.TransactionSell,
		}); err != nil {
			return err
		}
		return domain.ErrInvalidState
	})
	require.ErrorIs(t, err, domain.ErrInvalidState)

	balance, err := l.GetBalance(ctx, partyID, domain.CurrencyAED)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	lines, err := l.GetStatement(ctx, StatementFilter{CounterpartID: partyID})
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestUpdateBalance_Validation(t *testing.T) {
	l, _, db := setupLedger(t)
	ctx := context.Background()

	_, err := l.UpdateBalance(ctx, db, BalanceUpdate{Currency: domain.CurrencyAED, Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = l.UpdateBalance(ctx, db, BalanceUpdate{CounterpartID: 1, Currency: "EUR", Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStatementReplayMatchesBalance(t *testing.T) {
	l, _, db := setupLedger(t)
	partyID := testingpkg.InsertParty(t, db, "Replay Trading")
	ctx := context.Background()

	amounts := []string{"1000", "-250.25", "75.75", "-2000", "0.01"}
	for _, a := range amounts {
		apply(t, l, db, BalanceUpdate{
			CounterpartID: partyID,
			Currency:      domain.CurrencyAED,
			Amount:        dec(a),
			Type:          domain.TransactionReceipt,
		})
	}

	check, err := l.VerifyStatement(ctx, partyID, domain.CurrencyAED)
	require.NoError(t, err)
	assert.True(t, check.OK)
	assert.Equal(t, len(amounts), check.Lines)
	assert.True(t, check.Replayed.Equal(dec("-1174.49")))
	assert.True(t, check.Stored.Equal(check.Replayed))

	// Corrupt the stored balance; the replay must notice
	_, err = db.Exec("UPDATE counterpart_balances SET balance = '1' WHERE counterpart_id = ?", partyID)
	require.NoError(t, err)

	check, err = l.VerifyStatement(ctx, partyID, domain.CurrencyAED)
	require.NoError(t, err)
	assert.False(t, check.OK)
	assert.Nil(t, check.MismatchLineID)
}

func TestGetStatement_Filters(t *testing.T) {
	l, _, db := setupLedger(t)
	partyID := testingpkg.InsertParty(t, db, "Filter Co")
	ctx := context.Background()

	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

	apply(t, l, db, BalanceUpdate{CounterpartID: partyID, Currency: domain.CurrencyAED, Amount: dec("10"), Type: domain.TransactionBuy, Date: jan})
	apply(t, l, db, BalanceUpdate{CounterpartID: partyID, Currency: domain.CurrencyToman, Amount: dec("30"), Type: domain.TransactionBuy, Date: jan})
	apply(t, l, db, BalanceUpdate{CounterpartID: partyID, Currency: domain.CurrencyAED, Amount: dec("-5"), Type: domain.TransactionSell, Date: feb})

	aedOnly, err := l.GetStatement(ctx, StatementFilter{CounterpartID: partyID, Currency: domain.CurrencyAED})
	require.NoError(t, err)
	assert.Len(t, aedOnly, 2)

	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	fromFeb, err := l.GetStatement(ctx, StatementFilter{CounterpartID: partyID, From: &from})
	require.NoError(t, err)
	require.Len(t, fromFeb, 1)
	assert.Equal(t, domain.TransactionSell, fromFeb[0].TransactionType)

	balances, err := l.GetBalances(ctx, partyID)
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, domain.CurrencyAED, balances[0].Currency)
	assert.True(t, balances[0].Balance.Equal(dec("5")))
}

func TestWriteStatementCSV(t *testing.T) {
	tradeID := int64(4)
	lines := []StatementLine{
		{
			ID:              1,
			TransactionDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
			Currency:        domain.CurrencyToman,
			TransactionType: domain.TransactionBuy,
			TradeID:         &tradeID,
			Description:     "Buy, 1000 AED",
			DebitAmount:     decimal.Zero,
			CreditAmount:    dec("3000"),
			BalanceAfter:    dec("3000"),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteStatementCSV(&buf, lines))

	rows := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, rows, 2)
	assert.Equal(t, "line_id,date,currency,type,trade_id,receipt_id,description,debit,credit,balance_after", rows[0])
	assert.Equal(t, `1,2024-03-05,TOMAN,BUY,4,,"Buy, 1000 AED",0,3000,3000`, rows[1])
}

func TestDirectory(t *testing.T) {
	_, dir, _ := setupLedger(t)
	ctx := context.Background()

	_, err := dir.CreateParty(ctx, CreatePartyRequest{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	party, err := dir.CreateParty(ctx, CreatePartyRequest{Name: "Tehran Desk", Phone: "+98 21 0000"})
	require.NoError(t, err)

	got, err := dir.GetParty(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tehran Desk", got.Name)

	_, err = dir.GetParty(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrCounterpartyNotFound)

	missing := int64(404)
	_, err = dir.CreateBankAccount(ctx, CreateBankAccountRequest{
		CounterpartID: &missing, BankName: "Saman", AccountNumber: "1", Currency: domain.CurrencyToman,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = dir.CreateBankAccount(ctx, CreateBankAccountRequest{BankName: "Saman", AccountNumber: "1", Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	owned, err := dir.CreateBankAccount(ctx, CreateBankAccountRequest{
		CounterpartID: &party.ID, BankName: "Saman", AccountNumber: "123", Currency: domain.CurrencyToman,
	})
	require.NoError(t, err)
	desk, err := dir.CreateBankAccount(ctx, CreateBankAccountRequest{
		BankName: "Emirates NBD", AccountNumber: "AE00", Currency: domain.CurrencyAED,
	})
	require.NoError(t, err)

	owner, err := dir.AccountOwner(ctx, dir.ledgerDB, owned.ID)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, party.ID, *owner)

	owner, err = dir.AccountOwner(ctx, dir.ledgerDB, desk.ID)
	require.NoError(t, err)
	assert.Nil(t, owner)

	accounts, err := dir.ListBankAccounts(ctx, &party.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	parties, err := dir.ListParties(ctx)
	require.NoError(t, err)
	assert.Len(t, parties, 1)
}
