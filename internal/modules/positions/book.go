// Package positions provides the FIFO inventory of currency lots opened by BUY trades.
package positions

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const positionColumns = `id, trade_id, currency, original_amount, remaining_amount, average_cost_rate, created_at`

// Policy controls how the aggregate FIFO pool treats a sell larger than inventory
type Policy struct {
	// AllowShortSell lets Consume sell more than the open lots hold. The
	// uncovered part carries no cost basis. When false, Consume fails with
	// ErrInsufficientPool before touching any lot.
	AllowShortSell bool
}

// LotConsumption is the part of one lot taken by a sell
type LotConsumption struct {
	PositionID int64           `json:"position_id"`
	Taken      decimal.Decimal `json:"taken"`
	Rate       decimal.Decimal `json:"rate"`
}

// Consumption describes what a sell took out of the book
type Consumption struct {
	Requested decimal.Decimal  `json:"requested"`
	Consumed  decimal.Decimal  `json:"consumed"`
	Shortfall decimal.Decimal  `json:"shortfall"`
	CostBasis decimal.Decimal  `json:"cost_basis"`
	Lots      []LotConsumption `json:"lots"`
}

// CurrencySummary aggregates the open lots of one currency
type CurrencySummary struct {
	Currency            domain.Currency `json:"currency"`
	TotalRemaining      decimal.Decimal `json:"total_remaining"`
	WeightedAverageRate decimal.Decimal `json:"weighted_average_rate"`
	Lots                int             `json:"lots"`
}

// Outstanding lists open lots and their per-currency summaries
type Outstanding struct {
	Positions []domain.Position `json:"positions"`
	Summaries []CurrencySummary `json:"summaries"`
}

// Book is the position book
type Book struct {
	ledgerDB *sql.DB
	clock    domain.Clock
	policy   Policy
	log      zerolog.Logger
}

// NewBook creates a new position book
func NewBook(ledgerDB *sql.DB, clock domain.Clock, policy Policy, log zerolog.Logger) *Book {
	return &Book{
		ledgerDB: ledgerDB,
		clock:    clock,
		policy:   policy,
		log:      log.With().Str("repo", "positions").Logger(),
	}
}

// Policy returns the book's short-sell policy
func (b *Book) Policy() Policy {
	return b.policy
}

// OpenPosition inserts a new lot with remaining = original = amount
func (b *Book) OpenPosition(ctx context.Context, tx database.Querier, tradeID int64, currency domain.Currency, amount, rate decimal.Decimal) (*domain.Position, error) {
	if !amount.IsPositive() {
		return nil, domain.Invalid("position amount must be positive")
	}

	pos := &domain.Position{
		TradeID:         tradeID,
		Currency:        currency,
		OriginalAmount:  amount,
		RemainingAmount: amount,
		AverageCostRate: rate,
		CreatedAt:       b.clock.Now(),
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO trade_positions
		(trade_id, currency, original_amount, remaining_amount, average_cost_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tradeID, string(currency), amount, amount, rate, pos.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert position: %w", err)
	}
	if pos.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to get position id: %w", err)
	}

	b.log.Debug().
		Int64("position_id", pos.ID).
		Int64("trade_id", tradeID).
		Str("currency", string(currency)).
		Str("amount", amount.String()).
		Str("rate", rate.String()).
		Msg("Opened position")

	return pos, nil
}

// AvailablePositions returns lots with remaining inventory, oldest first
func (b *Book) AvailablePositions(ctx context.Context, q database.Querier, currency domain.Currency) ([]domain.Position, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+positionColumns+" FROM trade_positions WHERE currency = ? ORDER BY created_at, id", string(currency))
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	all, err := scanPositions(rows)
	if err != nil {
		return nil, err
	}

	// remaining_amount is TEXT, so the > 0 filter happens here
	available := all[:0]
	for _, pos := range all {
		if pos.RemainingAmount.IsPositive() {
			available = append(available, pos)
		}
	}
	return available, nil
}

// Consume takes amount out of the FIFO pool of currency, oldest lot first, and
// returns the cost basis Σ taken × lot rate.
func (b *Book) Consume(ctx context.Context, tx database.Querier, currency domain.Currency, amount decimal.Decimal) (*Consumption, error) {
	if !amount.IsPositive() {
		return nil, domain.Invalid("sell amount must be positive")
	}

	lots, err := b.AvailablePositions(ctx, tx, currency)
	if err != nil {
		return nil, err
	}

	available := decimal.Zero
	for _, lot := range lots {
		available = available.Add(lot.RemainingAmount)
	}
	if available.LessThan(amount) && !b.policy.AllowShortSell {
		return nil, fmt.Errorf("%w: %s available, %s requested", domain.ErrInsufficientPool, available, amount)
	}

	result := &Consumption{
		Requested: amount,
		Consumed:  decimal.Zero,
		CostBasis: decimal.Zero,
	}

	needed := amount
	for _, lot := range lots {
		if !needed.IsPositive() {
			break
		}
		taken := decimal.Min(lot.RemainingAmount, needed)
		if err := b.reduce(ctx, tx, lot.ID, lot.RemainingAmount.Sub(taken)); err != nil {
			return nil, err
		}
		result.Lots = append(result.Lots, LotConsumption{PositionID: lot.ID, Taken: taken, Rate: lot.AverageCostRate})
		result.Consumed = result.Consumed.Add(taken)
		result.CostBasis = result.CostBasis.Add(taken.Mul(lot.AverageCostRate))
		needed = needed.Sub(taken)
	}
	result.Shortfall = needed

	if result.Shortfall.IsPositive() {
		b.log.Warn().
			Str("currency", string(currency)).
			Str("requested", amount.String()).
			Str("shortfall", result.Shortfall.String()).
			Msg("Short sell: sold more than open inventory")
	}

	return result, nil
}

// SellFromPosition consumes amount from one named lot, bypassing FIFO
func (b *Book) SellFromPosition(ctx context.Context, tx database.Querier, positionID int64, amount decimal.Decimal) (*Consumption, error) {
	if !amount.IsPositive() {
		return nil, domain.Invalid("sell amount must be positive")
	}

	pos, err := getPosition(ctx, tx, positionID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(pos.RemainingAmount) {
		return nil, fmt.Errorf("%w: position %d has %s, %s requested",
			domain.ErrInsufficientPositionAmount, positionID, pos.RemainingAmount, amount)
	}

	if err := b.reduce(ctx, tx, pos.ID, pos.RemainingAmount.Sub(amount)); err != nil {
		return nil, err
	}

	return &Consumption{
		Requested: amount,
		Consumed:  amount,
		Shortfall: decimal.Zero,
		CostBasis: amount.Mul(pos.AverageCostRate),
		Lots:      []LotConsumption{{PositionID: pos.ID, Taken: amount, Rate: pos.AverageCostRate}},
	}, nil
}

// GetPosition returns one lot or ErrPositionNotFound
func (b *Book) GetPosition(ctx context.Context, q database.Querier, id int64) (*domain.Position, error) {
	return getPosition(ctx, q, id)
}

// GetOutstandingPositions lists open lots, optionally for one currency, with per-currency summaries
func (b *Book) GetOutstandingPositions(ctx context.Context, currency domain.Currency) (*Outstanding, error) {
	var lots []domain.Position
	currencies := []domain.Currency{domain.CurrencyAED, domain.CurrencyToman}
	if currency != "" {
		currencies = []domain.Currency{currency}
	}

	for _, c := range currencies {
		open, err := b.AvailablePositions(ctx, b.ledgerDB, c)
		if err != nil {
			return nil, err
		}
		lots = append(lots, open...)
	}

	summaries := make(map[domain.Currency]*CurrencySummary)
	weighted := make(map[domain.Currency]decimal.Decimal)
	for _, lot := range lots {
		s, ok := summaries[lot.Currency]
		if !ok {
			s = &CurrencySummary{Currency: lot.Currency, TotalRemaining: decimal.Zero}
			summaries[lot.Currency] = s
		}
		s.Lots++
		s.TotalRemaining = s.TotalRemaining.Add(lot.RemainingAmount)
		weighted[lot.Currency] = weighted[lot.Currency].Add(lot.RemainingAmount.Mul(lot.AverageCostRate))
	}

	out := &Outstanding{Positions: lots}
	for c, s := range summaries {
		s.WeightedAverageRate = weighted[c].Div(s.TotalRemaining)
		out.Summaries = append(out.Summaries, *s)
	}
	sort.Slice(out.Summaries, func(i, j int) bool {
		return out.Summaries[i].Currency < out.Summaries[j].Currency
	})

	return out, nil
}

func (b *Book) reduce(ctx context.Context, tx database.Querier, positionID int64, remaining decimal.Decimal) error {
	if _, err := tx.ExecContext(ctx, "UPDATE trade_positions SET remaining_amount = ? WHERE id = ?", remaining, positionID); err != nil {
		return fmt.Errorf("failed to update position %d: %w", positionID, err)
	}
	return nil
}

func getPosition(ctx context.Context, q database.Querier, id int64) (*domain.Position, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+positionColumns+" FROM trade_positions WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query position: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, domain.ErrPositionNotFound
	}
	return &positions[0], nil
}

func scanPositions(rows *sql.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var pos domain.Position
		var currency string
		var createdAt int64
		if err := rows.Scan(
			&pos.ID,
			&pos.TradeID,
			&currency,
			&pos.OriginalAmount,
			&pos.RemainingAmount,
			&pos.AverageCostRate,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		pos.Currency = domain.Currency(currency)
		pos.CreatedAt = database.UnixTime(createdAt)
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}
