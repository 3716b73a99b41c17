package counterparts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const statementColumns = `id, counterpart_id, currency, transaction_type, trade_id, receipt_id, description,
	debit_amount, credit_amount, balance_after, transaction_date, created_at`

// Ledger keeps counterpart_balances and counterpart_statement_lines in step.
// Every balance mutation appends exactly one statement line, so replaying the
// statement of a (counterpart, currency) pair always reproduces its balance.
type Ledger struct {
	ledgerDB *sql.DB
	clock    domain.Clock
	log      zerolog.Logger
}

// NewLedger creates a new counterpart ledger.
//
// Parameters:
//   - ledgerDB: Connection used for reads; writes go through the caller's unit of work
//   - clock: Source of created_at / updated_at timestamps
//   - log: Structured logger
func NewLedger(ledgerDB *sql.DB, clock domain.Clock, log zerolog.Logger) *Ledger {
	return &Ledger{
		ledgerDB: ledgerDB,
		clock:    clock,
		log:      log.With().Str("repo", "counterpart_ledger").Logger(),
	}
}

// UpdateBalance applies a signed amount to a counterpart balance and appends the
// matching statement line. The balance row is created at zero on first use.
//
// Negative amounts are recorded as debits, positive amounts as credits, and the
// line's balance_after is the post-update balance.
//
// Parameters:
//   - tx: The enclosing unit of work; the update commits or rolls back with it
//   - u: The balance change to apply
//
// Returns:
//   - *BalanceChange: Balance before and after the update
//   - error: Validation error, or error if any statement fails
func (l *Ledger) UpdateBalance(ctx context.Context, tx database.Querier, u BalanceUpdate) (*BalanceChange, error) {
	if u.CounterpartID <= 0 {
		return nil, domain.Invalid("counterpart id is required")
	}
	if !u.Currency.Valid() {
		return nil, domain.Invalid("unsupported currency %q", u.Currency)
	}

	previous, err := balanceOf(ctx, tx, u.CounterpartID, u.Currency)
	if err != nil {
		return nil, err
	}
	next := previous.Add(u.Amount)

	now := l.clock.Now()
	date := u.Date
	if date.IsZero() {
		date = now
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO counterpart_balances (counterpart_id, currency, balance, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(counterpart_id, currency) DO UPDATE SET
			balance = excluded.balance,
			updated_at = excluded.updated_at
	`, u.CounterpartID, string(u.Currency), next, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert counterpart balance: %w", err)
	}

	debit, credit := decimal.Zero, decimal.Zero
	if u.Amount.IsNegative() {
		debit = u.Amount.Neg()
	} else {
		credit = u.Amount
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO counterpart_statement_lines
		(counterpart_id, currency, transaction_type, trade_id, receipt_id, description,
		 debit_amount, credit_amount, balance_after, transaction_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		u.CounterpartID,
		string(u.Currency),
		string(u.Type),
		database.NullableID(u.TradeID),
		database.NullableID(u.ReceiptID),
		u.Description,
		debit,
		credit,
		next,
		date.Unix(),
		now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert statement line: %w", err)
	}

	l.log.Debug().
		Int64("counterpart_id", u.CounterpartID).
		Str("currency", string(u.Currency)).
		Str("amount", u.Amount.String()).
		Str("balance", next.String()).
		Msg("Updated counterpart balance")

	return &BalanceChange{Previous: previous, New: next}, nil
}

// GetBalance returns a counterpart's balance in one currency.
// Returns zero if the balance row doesn't exist yet (not an error).
func (l *Ledger) GetBalance(ctx context.Context, counterpartID int64, currency domain.Currency) (decimal.Decimal, error) {
	return balanceOf(ctx, l.ledgerDB, counterpartID, currency)
}

// GetBalances returns every currency balance of one counterpart
func (l *Ledger) GetBalances(ctx context.Context, counterpartID int64) ([]Balance, error) {
	return l.queryBalances(ctx, "WHERE counterpart_id = ?", counterpartID)
}

// ListBalances returns every balance row of every counterpart
func (l *Ledger) ListBalances(ctx context.Context) ([]Balance, error) {
	return l.queryBalances(ctx, "")
}

func (l *Ledger) queryBalances(ctx context.Context, where string, args ...interface{}) ([]Balance, error) {
	query := "SELECT counterpart_id, currency, balance, updated_at FROM counterpart_balances " + where +
		" ORDER BY counterpart_id, currency"
	rows, err := l.ledgerDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query counterpart balances: %w", err)
	}
	defer rows.Close()

	var balances []Balance
	for rows.Next() {
		var b Balance
		var currency string
		var updatedAt int64
		if err := rows.Scan(&b.CounterpartID, &currency, &b.Balance, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan counterpart balance: %w", err)
		}
		b.Currency = domain.Currency(currency)
		b.UpdatedAt = database.UnixTime(updatedAt)
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counterpart balances: %w", err)
	}

	return balances, nil
}

// GetStatement returns statement lines in creation order.
// Currency and the transaction date range are optional filters.
func (l *Ledger) GetStatement(ctx context.Context, filter StatementFilter) ([]StatementLine, error) {
	conditions := []string{"counterpart_id = ?"}
	args := []interface{}{filter.CounterpartID}

	if filter.Currency != "" {
		conditions = append(conditions, "currency = ?")
		args = append(args, string(filter.Currency))
	}
	if filter.From != nil {
		conditions = append(conditions, "transaction_date >= ?")
		args = append(args, filter.From.Unix())
	}
	if filter.To != nil {
		conditions = append(conditions, "transaction_date <= ?")
		args = append(args, filter.To.Unix())
	}

	query := "SELECT " + statementColumns + " FROM counterpart_statement_lines WHERE " +
		strings.Join(conditions, " AND ") + " ORDER BY id"
	rows, err := l.ledgerDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query statement lines: %w", err)
	}
	defer rows.Close()

	var lines []StatementLine
	for rows.Next() {
		line, err := scanStatementLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statement line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating statement lines: %w", err)
	}

	return lines, nil
}

// VerifyStatement replays every statement line of a (counterpart, currency) pair
// from zero and checks each balance_after and the stored balance.
func (l *Ledger) VerifyStatement(ctx context.Context, counterpartID int64, currency domain.Currency) (*StatementCheck, error) {
	lines, err := l.GetStatement(ctx, StatementFilter{CounterpartID: counterpartID, Currency: currency})
	if err != nil {
		return nil, err
	}
	stored, err := l.GetBalance(ctx, counterpartID, currency)
	if err != nil {
		return nil, err
	}

	check := &StatementCheck{
		CounterpartID: counterpartID,
		Currency:      currency,
		Lines:         len(lines),
		Replayed:      decimal.Zero,
		Stored:        stored,
	}

	for _, line := range lines {
		check.Replayed = check.Replayed.Add(line.CreditAmount).Sub(line.DebitAmount)
		if check.MismatchLineID == nil && !check.Replayed.Equal(line.BalanceAfter) {
			id := line.ID
			check.MismatchLineID = &id
		}
	}

	check.OK = check.MismatchLineID == nil && check.Replayed.Equal(stored)
	if !check.OK {
		l.log.Warn().
			Int64("counterpart_id", counterpartID).
			Str("currency", string(currency)).
			Str("replayed", check.Replayed.String()).
			Str("stored", stored.String()).
			Msg("Counterpart statement does not reconcile")
	}

	return check, nil
}

func balanceOf(ctx context.Context, q database.Querier, counterpartID int64, currency domain.Currency) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.QueryRowContext(ctx,
		"SELECT balance FROM counterpart_balances WHERE counterpart_id = ? AND currency = ?",
		counterpartID, string(currency),
	).Scan(&balance)

	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get counterpart balance: %w", err)
	}

	return balance, nil
}

func scanStatementLine(rows *sql.Rows) (StatementLine, error) {
	var line StatementLine
	var currency, txType string
	var tradeID, receiptID sql.NullInt64
	var txDate, createdAt int64

	err := rows.Scan(
		&line.ID,
		&line.CounterpartID,
		&currency,
		&txType,
		&tradeID,
		&receiptID,
		&line.Description,
		&line.DebitAmount,
		&line.CreditAmount,
		&line.BalanceAfter,
		&txDate,
		&createdAt,
	)
	if err != nil {
		return StatementLine{}, err
	}

	line.Currency = domain.Currency(currency)
	line.TransactionType = domain.TransactionType(txType)
	line.TradeID = database.IDPtr(tradeID)
	line.ReceiptID = database.IDPtr(receiptID)
	line.TransactionDate = database.UnixTime(txDate)
	line.CreatedAt = database.UnixTime(createdAt)

	return line, nil
}
