// Package settlement matches payment receipts against the open legs of trades,
// oldest trade first, and records every pour as an allocation.
package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/events"
	"github.com/aristath/sarraf/internal/metrics"
	"github.com/aristath/sarraf/internal/modules/trading"
	"github.com/aristath/sarraf/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ReceiptSource loads receipts for matching
type ReceiptSource interface {
	GetReceipt(ctx context.Context, q database.Querier, id int64) (*domain.Receipt, error)
	// ListActive returns every non-deleted receipt ordered by created_at, id
	ListActive(ctx context.Context, q database.Querier) ([]domain.Receipt, error)
}

// AccountOwners resolves the counterpart that owns a bank account (nil when desk-owned)
type AccountOwners interface {
	AccountOwner(ctx context.Context, q database.Querier, accountID int64) (*int64, error)
}

// Application is what one candidate counterparty absorbed from a receipt
type Application struct {
	Allocations    []domain.TradeSettlement `json:"allocations"`
	Applied        decimal.Decimal          `json:"applied"`
	Unapplied      decimal.Decimal          `json:"unapplied"`
	CounterpartyID int64                    `json:"counterparty_id"`
}

// ProcessResult describes how a receipt was matched
type ProcessResult struct {
	Applications []Application `json:"applications"`
	ReceiptID    int64         `json:"receipt_id"`
}

// AllocationCount returns the number of allocations recorded for the receipt
func (r *ProcessResult) AllocationCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, a := range r.Applications {
		n += len(a.Allocations)
	}
	return n
}

// ReprocessResult summarizes a full wipe-and-replay
type ReprocessResult struct {
	Duration           time.Duration `json:"duration"`
	Receipts           int           `json:"receipts"`
	Allocations        int           `json:"allocations"`
	AllocationsCleared int           `json:"allocations_cleared"`
	TradesReset        int           `json:"trades_reset"`
}

// Engine is the settlement engine
type Engine struct {
	ledgerDB *sql.DB
	gate     *database.Gate
	repo     *Repository
	trades   *trading.TradeRepository
	receipts ReceiptSource
	owners   AccountOwners
	events   *events.Manager
	metrics  *metrics.Metrics
	clock    domain.Clock
	log      zerolog.Logger
}

// Deps groups the collaborators of the settlement engine
type Deps struct {
	LedgerDB *sql.DB
	Gate     *database.Gate
	Repo     *Repository
	Trades   *trading.TradeRepository
	Receipts ReceiptSource
	Owners   AccountOwners
	Events   *events.Manager
	Metrics  *metrics.Metrics
	Clock    domain.Clock
}

// NewEngine creates a new settlement engine
func NewEngine(deps Deps, log zerolog.Logger) *Engine {
	return &Engine{
		ledgerDB: deps.LedgerDB,
		gate:     deps.Gate,
		repo:     deps.Repo,
		trades:   deps.Trades,
		receipts: deps.Receipts,
		owners:   deps.Owners,
		events:   deps.Events,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		log:      log.With().Str("service", "settlement").Logger(),
	}
}

// ProcessReceipt matches one receipt against its counterparties' open trades
// in its own unit of work. A receipt that already carries allocations is
// rejected; use ReprocessAllReceipts to rebuild them.
func (e *Engine) ProcessReceipt(ctx context.Context, receiptID int64) (*ProcessResult, error) {
	var result *ProcessResult
	err := e.gate.Write(func() error {
		return database.WithTransaction(ctx, e.ledgerDB, func(tx *sql.Tx) error {
			receipt, err := e.receipts.GetReceipt(ctx, tx, receiptID)
			if err != nil {
				return err
			}
			if receipt.IsDeleted {
				return fmt.Errorf("%w: receipt %d", domain.ErrReceiptAlreadyDeleted, receiptID)
			}

			existing, err := e.repo.CountForReceipt(ctx, tx, receiptID)
			if err != nil {
				return err
			}
			if existing > 0 {
				return fmt.Errorf("%w: receipt %d has %d", domain.ErrReceiptAlreadyProcessed, receiptID, existing)
			}

			result, err = e.processReceipt(ctx, tx, receipt)
			return err
		})
	})
	if err != nil {
		e.log.Error().Err(err).Int64("receipt_id", receiptID).Msg("Failed to process receipt")
		return nil, err
	}

	e.metrics.AllocationsRecorded(result.AllocationCount())
	e.log.Info().
		Int64("receipt_id", receiptID).
		Int("allocations", result.AllocationCount()).
		Msg("Receipt processed")

	return result, nil
}

// ReprocessAllReceipts wipes every allocation, resets the settlement fields of
// every tracked trade and replays all live receipts in creation order, in one
// unit of work under the exclusive side of the gate.
func (e *Engine) ReprocessAllReceipts(ctx context.Context) (*ReprocessResult, error) {
	timer := utils.NewTimer("settlement_reprocess", 0, e.log)
	result := &ReprocessResult{}

	err := e.gate.Write(func() error {
		return database.WithTransaction(ctx, e.ledgerDB, func(tx *sql.Tx) error {
			var err error
			if result.AllocationsCleared, err = e.repo.DeleteAllAllocations(ctx, tx); err != nil {
				return err
			}
			if result.TradesReset, err = e.repo.ResetTrades(ctx, tx); err != nil {
				return err
			}

			receipts, err := e.receipts.ListActive(ctx, tx)
			if err != nil {
				return err
			}
			for i := range receipts {
				processed, err := e.processReceipt(ctx, tx, &receipts[i])
				if err != nil {
					return fmt.Errorf("failed to replay receipt %d: %w", receipts[i].ID, err)
				}
				result.Receipts++
				result.Allocations += processed.AllocationCount()
			}
			return nil
		})
	})
	result.Duration = timer.Stop()
	if err != nil {
		e.log.Error().Err(err).Msg("Settlement reprocess failed")
		return nil, err
	}

	e.metrics.ReprocessObserved(result.Duration)
	e.metrics.AllocationsRecorded(result.Allocations)
	e.events.Emit("settlement", &events.SettlementReprocessedData{
		DurationMs:  result.Duration.Milliseconds(),
		Receipts:    result.Receipts,
		Allocations: result.Allocations,
		TradesReset: result.TradesReset,
	})
	e.log.Info().
		Int("receipts", result.Receipts).
		Int("allocations", result.Allocations).
		Int("cleared", result.AllocationsCleared).
		Int("trades_reset", result.TradesReset).
		Dur("duration", result.Duration).
		Msg("Settlement reprocessed")

	return result, nil
}

// Progress computes settlement progress for trades from the stored
// allocations. It does not take the gate; callers hold the read side.
func (e *Engine) Progress(ctx context.Context, trades []domain.Trade) (map[int64]domain.SettlementProgress, error) {
	ids := make([]int64, len(trades))
	for i, t := range trades {
		ids[i] = t.ID
	}

	allocations, err := e.repo.ForTrades(ctx, e.ledgerDB, ids)
	if err != nil {
		return nil, err
	}
	return ComputeProgress(trades, allocations), nil
}

// ReceiptAllocations returns the allocations a receipt produced
func (e *Engine) ReceiptAllocations(ctx context.Context, receiptID int64) ([]Allocation, error) {
	var allocations []Allocation
	err := e.gate.Read(func() error {
		var err error
		allocations, err = e.repo.ForReceipt(ctx, e.ledgerDB, receiptID)
		return err
	})
	return allocations, err
}

func (e *Engine) processReceipt(ctx context.Context, tx database.Querier, receipt *domain.Receipt) (*ProcessResult, error) {
	candidates, err := e.candidates(ctx, tx, receipt)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{ReceiptID: receipt.ID}
	for _, counterpartyID := range candidates {
		// every candidate gets the full amount
		app, err := e.applySettlementToCounterparty(ctx, tx, receipt, counterpartyID, receipt.Amount)
		if err != nil {
			return nil, err
		}
		result.Applications = append(result.Applications, *app)
	}

	return result, nil
}

// candidates returns the counterparties a receipt may settle, in order
func (e *Engine) candidates(ctx context.Context, q database.Querier, receipt *domain.Receipt) ([]int64, error) {
	switch o := receipt.Obligor.(type) {
	case domain.PartyReceipt:
		return []int64{o.TradingPartyID}, nil
	case domain.TomanTransfer:
		var out []int64
		owner, err := e.owners.AccountOwner(ctx, q, o.ReceiverAccountID)
		if err != nil {
			return nil, err
		}
		if owner != nil {
			out = append(out, *owner)
		}
		if owner == nil || *owner != o.PayerID {
			out = append(out, o.PayerID)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("receipt %d has unknown obligor %T", receipt.ID, receipt.Obligor)
	}
}

// applySettlementToCounterparty pours amount into the counterparty's open trades,
// oldest first, base leg before quote leg, wherever the leg currency matches.
func (e *Engine) applySettlementToCounterparty(ctx context.Context, tx database.Querier, receipt *domain.Receipt, counterpartyID int64, amount decimal.Decimal) (*Application, error) {
	app := &Application{CounterpartyID: counterpartyID, Applied: decimal.Zero}

	trades, err := e.trades.ListOpenByCounterparty(ctx, tx, counterpartyID)
	if err != nil {
		return nil, err
	}

	remaining := amount
	for i := range trades {
		if !remaining.IsPositive() {
			break
		}
		trade := &trades[i]

		var pours []domain.TradeSettlement
		take := func(leg domain.SettlementType, unsettled decimal.Decimal) decimal.Decimal {
			pour := decimal.Min(remaining, unsettled)
			if !pour.IsPositive() {
				return decimal.Zero
			}
			remaining = remaining.Sub(pour)
			pours = append(pours, domain.TradeSettlement{
				TradeID:        trade.ID,
				ReceiptID:      receipt.ID,
				Currency:       receipt.Currency,
				SettledAmount:  pour,
				SettlementType: leg,
				CreatedAt:      e.clock.Now(),
			})
			return pour
		}

		before := remaining
		if trade.BaseCurrency == receipt.Currency {
			trade.BaseSettledAmount = trade.BaseSettledAmount.Add(take(domain.SettlementBase, trade.BaseUnsettled()))
		}
		if trade.QuoteCurrency == receipt.Currency {
			trade.QuoteSettledAmount = trade.QuoteSettledAmount.Add(take(domain.SettlementQuote, trade.QuoteUnsettled()))
		}
		if len(pours) == 0 {
			continue
		}
		trade.Status = trade.DeriveStatus()

		affected, err := e.repo.UpdateTradeSettlement(ctx, tx, trade)
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			e.log.Warn().
				Int64("trade_id", trade.ID).
				Int64("receipt_id", receipt.ID).
				Msg("Trade disappeared during settlement, skipping")
			remaining = before
			continue
		}

		for j := range pours {
			if err := e.repo.InsertAllocation(ctx, tx, &pours[j]); err != nil {
				return nil, err
			}
		}
		app.Allocations = append(app.Allocations, pours...)

		e.log.Debug().
			Int64("trade_id", trade.ID).
			Int64("receipt_id", receipt.ID).
			Str("status", string(trade.Status)).
			Str("base_settled", trade.BaseSettledAmount.String()).
			Str("quote_settled", trade.QuoteSettledAmount.String()).
			Msg("Settlement applied")
	}

	app.Applied = amount.Sub(remaining)
	app.Unapplied = remaining
	return app, nil
}
