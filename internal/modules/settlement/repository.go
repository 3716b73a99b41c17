package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/rs/zerolog"
)

// Repository persists trade_settlements rows and the settlement fields of trades
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewRepository creates a new settlement repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "settlement").Logger(),
	}
}

// InsertAllocation stores one allocation. Its fifo_sequence is one more than the
// number of allocations already recorded against the same trade leg.
func (r *Repository) InsertAllocation(ctx context.Context, tx database.Querier, s *domain.TradeSettlement) error {
	var count int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM trade_settlements WHERE trade_id = ? AND settlement_type = ?",
		s.TradeID, string(s.SettlementType),
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count allocations: %w", err)
	}
	s.FIFOSequence = count + 1

	result, err := tx.ExecContext(ctx, `
		INSERT INTO trade_settlements
		(trade_id, receipt_id, currency, settled_amount, settlement_type, fifo_sequence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		s.TradeID,
		s.ReceiptID,
		string(s.Currency),
		s.SettledAmount,
		string(s.SettlementType),
		s.FIFOSequence,
		s.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert allocation: %w", err)
	}
	if s.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get allocation id: %w", err)
	}
	return nil
}

// UpdateTradeSettlement writes a trade's settled amounts, flags and status.
// It returns the number of rows affected; zero means the trade is gone.
func (r *Repository) UpdateTradeSettlement(ctx context.Context, tx database.Querier, t *domain.Trade) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE trades SET
			base_settled_amount = ?,
			quote_settled_amount = ?,
			is_base_fully_settled = ?,
			is_quote_fully_settled = ?,
			status = ?
		WHERE id = ?
	`,
		t.BaseSettledAmount,
		t.QuoteSettledAmount,
		database.BoolInt(t.IsBaseFullySettled),
		database.BoolInt(t.IsQuoteFullySettled),
		string(t.Status),
		t.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update trade %d settlement: %w", t.ID, err)
	}
	return result.RowsAffected()
}

// ResetTrades clears the settlement fields of every trade the engine manages.
// BUY_SELL and CANCELLED trades keep their status.
func (r *Repository) ResetTrades(ctx context.Context, tx database.Querier) (int, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE trades SET
			base_settled_amount = '0',
			quote_settled_amount = '0',
			is_base_fully_settled = 0,
			is_quote_fully_settled = 0,
			status = 'PENDING'
		WHERE trade_type <> 'BUY_SELL' AND status <> 'CANCELLED'
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset trade settlement: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// DeleteAllAllocations wipes trade_settlements
func (r *Repository) DeleteAllAllocations(ctx context.Context, tx database.Querier) (int, error) {
	result, err := tx.ExecContext(ctx, "DELETE FROM trade_settlements")
	if err != nil {
		return 0, fmt.Errorf("failed to delete allocations: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// CountForReceipt returns how many allocations a receipt has
func (r *Repository) CountForReceipt(ctx context.Context, q database.Querier, receiptID int64) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM trade_settlements WHERE receipt_id = ?", receiptID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count receipt allocations: %w", err)
	}
	return count, nil
}

// ForTrades returns the allocations of the given trades, flagged with whether
// their receipt has been deleted since.
func (r *Repository) ForTrades(ctx context.Context, q database.Querier, tradeIDs []int64) ([]Allocation, error) {
	if len(tradeIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tradeIDs)), ",")
	args := make([]interface{}, len(tradeIDs))
	for i, id := range tradeIDs {
		args[i] = id
	}

	return r.query(ctx, q, `
		SELECT s.id, s.trade_id, s.receipt_id, s.currency, s.settled_amount, s.settlement_type,
		       s.fifo_sequence, s.created_at, p.is_deleted
		FROM trade_settlements s
		JOIN payment_receipts p ON p.id = s.receipt_id
		WHERE s.trade_id IN (`+placeholders+`)
		ORDER BY s.trade_id, s.settlement_type, s.fifo_sequence
	`, args...)
}

// ForReceipt returns the allocations a receipt produced
func (r *Repository) ForReceipt(ctx context.Context, q database.Querier, receiptID int64) ([]Allocation, error) {
	return r.query(ctx, q, `
		SELECT s.id, s.trade_id, s.receipt_id, s.currency, s.settled_amount, s.settlement_type,
		       s.fifo_sequence, s.created_at, p.is_deleted
		FROM trade_settlements s
		JOIN payment_receipts p ON p.id = s.receipt_id
		WHERE s.receipt_id = ?
		ORDER BY s.id
	`, receiptID)
}

func (r *Repository) query(ctx context.Context, q database.Querier, query string, args ...interface{}) ([]Allocation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocations []Allocation
	for rows.Next() {
		var a Allocation
		var currency, settlementType string
		var createdAt int64
		var deleted int
		if err := rows.Scan(
			&a.ID,
			&a.TradeID,
			&a.ReceiptID,
			&currency,
			&a.SettledAmount,
			&settlementType,
			&a.FIFOSequence,
			&createdAt,
			&deleted,
		); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		a.Currency = domain.Currency(currency)
		a.SettlementType = domain.SettlementType(settlementType)
		a.CreatedAt = database.UnixTime(createdAt)
		a.ReceiptDeleted = deleted == 1
		allocations = append(allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocations: %w", err)
	}

	return allocations, nil
}
