package trading

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

// tradesColumns is the list of columns for the trades table.
// Column order must match scanTrade.
const tradesColumns = `id, trade_number, trade_type, base_currency, quote_currency, amount, rate, total_value,
	counterparty_id, trade_date, base_settled_amount, quote_settled_amount, is_base_fully_settled,
	is_quote_fully_settled, status, profit_toman, profit_aed, notes, created_at`

// TradeRepository handles trade database operations
type TradeRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(ledgerDB *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "trade").Logger(),
	}
}

// Insert stores a new trade and assigns its ID and sequential trade number
func (r *TradeRepository) Insert(ctx context.Context, tx database.Querier, trade *domain.Trade) error {
	var next int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) + 1 FROM trades").Scan(&next); err != nil {
		return fmt.Errorf("failed to allocate trade number: %w", err)
	}
	trade.TradeNumber = fmt.Sprintf("T-%06d", next)

	result, err := tx.ExecContext(ctx, `
		INSERT INTO trades
		(trade_number, trade_type, base_currency, quote_currency, amount, rate, total_value,
		 counterparty_id, trade_date, base_settled_amount, quote_settled_amount,
		 is_base_fully_settled, is_quote_fully_settled, status, profit_toman, profit_aed, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		trade.TradeNumber,
		string(trade.TradeType),
		string(trade.BaseCurrency),
		string(trade.QuoteCurrency),
		trade.Amount,
		trade.Rate,
		trade.TotalValue,
		database.NullableID(trade.CounterpartyID),
		trade.TradeDate.Unix(),
		trade.BaseSettledAmount,
		trade.QuoteSettledAmount,
		database.BoolInt(trade.IsBaseFullySettled),
		database.BoolInt(trade.IsQuoteFullySettled),
		string(trade.Status),
		nullDecimal(trade.ProfitToman),
		nullDecimal(trade.ProfitAED),
		trade.Notes,
		trade.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}

	if trade.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get trade id: %w", err)
	}

	r.log.Debug().
		Int64("trade_id", trade.ID).
		Str("trade_number", trade.TradeNumber).
		Str("type", string(trade.TradeType)).
		Msg("Trade inserted")

	return nil
}

// GetByID returns a trade or ErrTradeNotFound
func (r *TradeRepository) GetByID(ctx context.Context, q database.Querier, id int64) (*domain.Trade, error) {
	row := q.QueryRowContext(ctx, "SELECT "+tradesColumns+" FROM trades WHERE id = ?", id)
	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return &trade, nil
}

// List returns one page of trades matching filter, newest first, with the total match count
func (r *TradeRepository) List(ctx context.Context, filter TradeFilter, page domain.Pagination) ([]domain.Trade, int, error) {
	where, args := tradeWhere(filter)

	var total int
	if err := r.ledgerDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count trades: %w", err)
	}

	query := "SELECT " + tradesColumns + " FROM trades" + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	trades, err := r.query(ctx, r.ledgerDB, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, 0, err
	}

	return trades, total, nil
}

// ListAll returns every trade matching filter in creation order
func (r *TradeRepository) ListAll(ctx context.Context, filter TradeFilter) ([]domain.Trade, error) {
	where, args := tradeWhere(filter)
	return r.query(ctx, r.ledgerDB, "SELECT "+tradesColumns+" FROM trades"+where+" ORDER BY created_at, id", args...)
}

// ListOpenByCounterparty returns the counterparty's trades that still take settlement,
// oldest first. BUY_SELL trades and COMPLETED or CANCELLED trades are excluded.
func (r *TradeRepository) ListOpenByCounterparty(ctx context.Context, q database.Querier, counterpartyID int64) ([]domain.Trade, error) {
	query := `SELECT ` + tradesColumns + ` FROM trades
		WHERE counterparty_id = ?
		  AND status NOT IN ('COMPLETED', 'CANCELLED')
		  AND trade_type <> 'BUY_SELL'
		ORDER BY created_at, id`
	return r.query(ctx, q, query, counterpartyID)
}

func (r *TradeRepository) query(ctx context.Context, q database.Querier, query string, args ...interface{}) ([]domain.Trade, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

func tradeWhere(filter TradeFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.CounterpartyID != nil {
		conditions = append(conditions, "counterparty_id = ?")
		args = append(args, *filter.CounterpartyID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		conditions = append(conditions, "trade_type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Currency != "" {
		conditions = append(conditions, "(base_currency = ? OR quote_currency = ?)")
		args = append(args, string(filter.Currency), string(filter.Currency))
	}
	if filter.BaseCurrency != "" {
		conditions = append(conditions, "base_currency = ?")
		args = append(args, string(filter.BaseCurrency))
	}
	if filter.From != nil {
		conditions = append(conditions, "trade_date >= ?")
		args = append(args, filter.From.Unix())
	}
	if filter.To != nil {
		conditions = append(conditions, "trade_date <= ?")
		args = append(args, filter.To.Unix())
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (domain.Trade, error) {
	var trade domain.Trade
	var tradeType, base, quote, status string
	var counterparty sql.NullInt64
	var tradeDate, createdAt int64
	var baseSettled, quoteSettled int
	var profitToman, profitAED decimal.NullDecimal

	err := row.Scan(
		&trade.ID,
		&trade.TradeNumber,
		&tradeType,
		&base,
		&quote,
		&trade.Amount,
		&trade.Rate,
		&trade.TotalValue,
		&counterparty,
		&tradeDate,
		&trade.BaseSettledAmount,
		&trade.QuoteSettledAmount,
		&baseSettled,
		&quoteSettled,
		&status,
		&profitToman,
		&profitAED,
		&trade.Notes,
		&createdAt,
	)
	if err != nil {
		return domain.Trade{}, err
	}

	trade.TradeType = domain.TradeType(tradeType)
	trade.BaseCurrency = domain.Currency(base)
	trade.QuoteCurrency = domain.Currency(quote)
	trade.Status = domain.TradeStatus(status)
	trade.CounterpartyID = database.IDPtr(counterparty)
	trade.TradeDate = database.UnixTime(tradeDate)
	trade.CreatedAt = database.UnixTime(createdAt)
	trade.IsBaseFullySettled = baseSettled == 1
	trade.IsQuoteFullySettled = quoteSettled == 1
	if profitToman.Valid {
		trade.ProfitToman = &profitToman.Decimal
	}
	if profitAED.Valid {
		trade.ProfitAED = &profitAED.Decimal
	}

	return trade, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
