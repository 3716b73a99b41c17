package trading

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/events"
	"github.com/aristath/sarraf/internal/metrics"
	"github.com/aristath/sarraf/internal/modules/counterparts"
	"github.com/aristath/sarraf/internal/modules/journal"
	"github.com/aristath/sarraf/internal/modules/positions"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// ProgressSource computes settlement progress for a set of trades.
// Implemented by the settlement engine; the caller holds the read side of the gate.
type ProgressSource interface {
	Progress(ctx context.Context, trades []domain.Trade) (map[int64]domain.SettlementProgress, error)
}

// Service is the trade ledger.
//
// CreateTrade runs every effect of a trade in one unit of work:
//   - BUY opens an inventory lot and posts a purchase entry
//   - SELL consumes inventory, realizes profit and posts a sale entry
//   - BUY_SELL posts a purchase entry only and is born COMPLETED with both legs settled
//
// BUY and SELL also move the counterparty's running balances in both currencies.
type Service struct {
	ledgerDB  *sql.DB
	gate      *database.Gate
	repo      *TradeRepository
	journal   *journal.Journal
	book      *positions.Book
	ledger    *counterparts.Ledger
	directory *counterparts.Directory
	progress  ProgressSource
	events    *events.Manager
	metrics   *metrics.Metrics
	clock     domain.Clock
	log       zerolog.Logger
}

// Deps groups the collaborators of the trade ledger
type Deps struct {
	LedgerDB  *sql.DB
	Gate      *database.Gate
	Repo      *TradeRepository
	Journal   *journal.Journal
	Book      *positions.Book
	Ledger    *counterparts.Ledger
	Directory *counterparts.Directory
	Progress  ProgressSource
	Events    *events.Manager
	Metrics   *metrics.Metrics
	Clock     domain.Clock
}

// NewService creates a new trade ledger service
func NewService(deps Deps, log zerolog.Logger) *Service {
	return &Service{
		ledgerDB:  deps.LedgerDB,
		gate:      deps.Gate,
		repo:      deps.Repo,
		journal:   deps.Journal,
		book:      deps.Book,
		ledger:    deps.Ledger,
		directory: deps.Directory,
		progress:  deps.Progress,
		events:    deps.Events,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		log:       log.With().Str("service", "trading").Logger(),
	}
}

// CreateTrade records a trade with all of its accounting effects
func (s *Service) CreateTrade(ctx context.Context, req CreateTradeRequest) (*domain.Trade, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	var trade *domain.Trade
	err := s.gate.Write(func() error {
		return database.WithTransaction(ctx, s.ledgerDB, func(tx *sql.Tx) error {
			var err error
			trade, err = s.createTrade(ctx, tx, req)
			return err
		})
	})
	if err != nil {
		s.log.Error().
			Err(err).
			Str("type", string(req.TradeType)).
			Str("amount", req.Amount.String()).
			Msg("Failed to create trade")
		return nil, err
	}

	s.metrics.TradeCreated(string(trade.TradeType))
	s.events.Emit("trading", tradeCreatedData(trade))
	s.log.Info().
		Int64("trade_id", trade.ID).
		Str("trade_number", trade.TradeNumber).
		Str("type", string(trade.TradeType)).
		Str("amount", trade.Amount.String()).
		Str("rate", trade.Rate.String()).
		Msg("Trade created")

	return trade, nil
}

// SellPosition records a SELL of amount from one named lot. The base currency is
// the lot's currency and the quote currency is the other one.
func (s *Service) SellPosition(ctx context.Context, positionID int64, req SellPositionRequest) (*domain.Trade, error) {
	pos, err := s.book.GetPosition(ctx, s.ledgerDB, positionID)
	if err != nil {
		return nil, err
	}

	return s.CreateTrade(ctx, CreateTradeRequest{
		TradeType:      domain.TradeTypeSell,
		BaseCurrency:   pos.Currency,
		QuoteCurrency:  pos.Currency.Other(),
		Amount:         req.Amount,
		Rate:           req.Rate,
		CounterpartyID: req.CounterpartyID,
		TradeDate:      req.TradeDate,
		PositionID:     &positionID,
		Notes:          req.Notes,
	})
}

func (s *Service) createTrade(ctx context.Context, tx *sql.Tx, req CreateTradeRequest) (*domain.Trade, error) {
	now := s.clock.Now()
	tradeDate := now
	if req.TradeDate != nil {
		tradeDate = req.TradeDate.UTC()
	}

	if req.CounterpartyID != nil {
		exists, err := s.directory.PartyExists(ctx, tx, *req.CounterpartyID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, domain.ErrCounterpartyNotFound
		}
	}

	trade := &domain.Trade{
		TradeType:          req.TradeType,
		BaseCurrency:       req.BaseCurrency,
		QuoteCurrency:      req.QuoteCurrency,
		Amount:             req.Amount,
		Rate:               req.Rate,
		TotalValue:         req.Amount.Mul(req.Rate),
		CounterpartyID:     req.CounterpartyID,
		TradeDate:          tradeDate,
		BaseSettledAmount:  decimal.Zero,
		QuoteSettledAmount: decimal.Zero,
		Status:             domain.TradeStatusPending,
		Notes:              req.Notes,
		CreatedAt:          now,
	}

	var costBasis decimal.Decimal
	switch trade.TradeType {
	case domain.TradeTypeSell:
		consumption, err := s.consume(ctx, tx, req)
		if err != nil {
			return nil, err
		}
		costBasis = consumption.CostBasis
		profit := trade.TotalValue.Sub(costBasis)
		if trade.QuoteCurrency == domain.CurrencyToman {
			trade.ProfitToman = &profit
		} else {
			trade.ProfitAED = &profit
		}
	case domain.TradeTypeBuySell:
		// Pass-through trades are settled on both legs the moment they are booked
		trade.BaseSettledAmount = trade.Amount
		trade.QuoteSettledAmount = trade.TotalValue
		trade.Status = trade.DeriveStatus()
	}

	if err := s.repo.Insert(ctx, tx, trade); err != nil {
		return nil, err
	}

	entry := journal.EntryInput{
		EntryDate:   trade.TradeDate,
		TradeID:     &trade.ID,
		EntryType:   journal.EntryPurchase,
		Description: describe(trade),
		Lines:       purchaseLines(trade),
	}

	switch trade.TradeType {
	case domain.TradeTypeBuy:
		if _, err := s.book.OpenPosition(ctx, tx, trade.ID, trade.BaseCurrency, trade.Amount, trade.Rate); err != nil {
			return nil, err
		}
	case domain.TradeTypeSell:
		entry.EntryType = journal.EntrySale
		entry.Lines = saleLines(trade, costBasis)
	}

	if _, err := s.journal.PostEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	if trade.CounterpartyID != nil && trade.TradeType != domain.TradeTypeBuySell {
		if err := s.applyBalances(ctx, tx, trade); err != nil {
			return nil, err
		}
	}

	return trade, nil
}

func (s *Service) consume(ctx context.Context, tx *sql.Tx, req CreateTradeRequest) (*positions.Consumption, error) {
	if req.PositionID == nil {
		return s.book.Consume(ctx, tx, req.BaseCurrency, req.Amount)
	}

	pos, err := s.book.GetPosition(ctx, tx, *req.PositionID)
	if err != nil {
		return nil, err
	}
	if pos.Currency != req.BaseCurrency {
		return nil, fmt.Errorf("%w: position %d holds %s, trade sells %s",
			domain.ErrPositionCurrencyMismatch, pos.ID, pos.Currency, req.BaseCurrency)
	}
	return s.book.SellFromPosition(ctx, tx, pos.ID, req.Amount)
}

// applyBalances moves the counterparty's balances. A BUY leaves us owing the quote
// total and owed the base amount; a SELL is the mirror image.
func (s *Service) applyBalances(ctx context.Context, tx *sql.Tx, trade *domain.Trade) error {
	quoteDelta, baseDelta := trade.TotalValue, trade.Amount.Neg()
	txType := domain.TransactionBuy
	if trade.TradeType == domain.TradeTypeSell {
		quoteDelta, baseDelta = trade.TotalValue.Neg(), trade.Amount
		txType = domain.TransactionSell
	}

	updates := []counterparts.BalanceUpdate{
		{Currency: trade.QuoteCurrency, Amount: quoteDelta},
		{Currency: trade.BaseCurrency, Amount: baseDelta},
	}
	for _, u := range updates {
		u.CounterpartID = *trade.CounterpartyID
		u.Type = txType
		u.TradeID = &trade.ID
		u.Date = trade.TradeDate
		u.Description = describe(trade)
		if _, err := s.ledger.UpdateBalance(ctx, tx, u); err != nil {
			return err
		}
	}
	return nil
}

// GetTrades returns one page of trades, each with its settlement progress
func (s *Service) GetTrades(ctx context.Context, filter TradeFilter, page domain.Pagination) ([]TradeWithProgress, int, error) {
	var result []TradeWithProgress
	var total int

	err := s.gate.Read(func() error {
		trades, n, err := s.repo.List(ctx, filter, page)
		if err != nil {
			return err
		}
		total = n
		result, err = s.withProgress(ctx, trades)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

// GetTradeByID returns one trade with its settlement progress
func (s *Service) GetTradeByID(ctx context.Context, id int64) (*TradeWithProgress, error) {
	var result *TradeWithProgress

	err := s.gate.Read(func() error {
		trade, err := s.repo.GetByID(ctx, s.ledgerDB, id)
		if err != nil {
			return err
		}
		views, err := s.withProgress(ctx, []domain.Trade{*trade})
		if err != nil {
			return err
		}
		result = &views[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) withProgress(ctx context.Context, trades []domain.Trade) ([]TradeWithProgress, error) {
	var progress map[int64]domain.SettlementProgress
	if s.progress != nil && len(trades) > 0 {
		var err error
		if progress, err = s.progress.Progress(ctx, trades); err != nil {
			return nil, fmt.Errorf("failed to compute settlement progress: %w", err)
		}
	}

	views := make([]TradeWithProgress, len(trades))
	for i, trade := range trades {
		views[i] = TradeWithProgress{Trade: trade}
		if p, ok := progress[trade.ID]; ok {
			p := p
			views[i].Progress = &p
		}
	}
	return views, nil
}

// ProfitSummary aggregates realized SELL profit per quote currency
func (s *Service) ProfitSummary(ctx context.Context, filter TradeFilter) ([]ProfitSummary, error) {
	filter.Type = domain.TradeTypeSell

	var trades []domain.Trade
	err := s.gate.Read(func() error {
		var err error
		trades, err = s.repo.ListAll(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}

	profits := make(map[domain.Currency][]decimal.Decimal)
	for i := range trades {
		if p := trades[i].Profit(); p != nil {
			profits[trades[i].QuoteCurrency] = append(profits[trades[i].QuoteCurrency], *p)
		}
	}

	summaries := make([]ProfitSummary, 0, len(profits))
	for currency, values := range profits {
		summaries = append(summaries, summarize(currency, values))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Currency < summaries[j].Currency
	})

	return summaries, nil
}

func summarize(currency domain.Currency, values []decimal.Decimal) ProfitSummary {
	summary := ProfitSummary{
		Currency: currency,
		Count:    len(values),
		Total:    decimal.Sum(values[0], values[1:]...),
		Min:      decimal.Min(values[0], values[1:]...),
		Max:      decimal.Max(values[0], values[1:]...),
	}

	xs := make([]float64, len(values))
	for i, v := range values {
		xs[i] = v.InexactFloat64()
		if v.IsNegative() {
			summary.Losses++
		}
	}

	summary.Mean, summary.StdDev = stat.MeanStdDev(xs, nil)
	if math.IsNaN(summary.StdDev) {
		summary.StdDev = 0
	}

	return summary
}

func validateCreateRequest(req CreateTradeRequest) error {
	if err := domain.ValidateStruct(req); err != nil {
		return err
	}
	if !req.Amount.IsPositive() {
		return domain.Invalid("amount must be positive")
	}
	if !req.Rate.IsPositive() {
		return domain.Invalid("rate must be positive")
	}
	if req.PositionID != nil && req.TradeType != domain.TradeTypeSell {
		return domain.Invalid("position_id is only valid for SELL trades")
	}
	return nil
}

// purchaseLines books inventory in at its base amount and the quote total as payable.
// FX Conversion balances each currency.
func purchaseLines(t *domain.Trade) []journal.Line {
	return []journal.Line{
		journal.Debit(journal.AccountInventory, t.BaseCurrency, t.Amount),
		journal.Credit(journal.AccountFXConversion, t.BaseCurrency, t.Amount),
		journal.Debit(journal.AccountFXConversion, t.QuoteCurrency, t.TotalValue),
		journal.Credit(journal.AccountPayable, t.QuoteCurrency, t.TotalValue),
	}
}

// saleLines books the receivable at the sale total, releases inventory at cost and
// splits the difference into revenue or loss. Zero-amount lines are omitted.
func saleLines(t *domain.Trade, costBasis decimal.Decimal) []journal.Line {
	profit := t.TotalValue.Sub(costBasis)

	lines := []journal.Line{
		journal.Debit(journal.AccountReceivable, t.QuoteCurrency, t.TotalValue),
		journal.Credit(journal.AccountInventory, t.BaseCurrency, t.Amount),
		journal.Debit(journal.AccountFXConversion, t.BaseCurrency, t.Amount),
	}
	if costBasis.IsPositive() {
		lines = append(lines, journal.Credit(journal.AccountFXConversion, t.QuoteCurrency, costBasis))
	}
	switch {
	case profit.IsPositive():
		lines = append(lines, journal.Credit(journal.AccountTradingRevenue, t.QuoteCurrency, profit))
	case profit.IsNegative():
		lines = append(lines, journal.Debit(journal.AccountTradingLoss, t.QuoteCurrency, profit.Neg()))
	}
	return lines
}

func describe(t *domain.Trade) string {
	return fmt.Sprintf("%s %s: %s %s @ %s %s",
		t.TradeType, t.TradeNumber, t.Amount, t.BaseCurrency, t.Rate, t.QuoteCurrency)
}

func tradeCreatedData(t *domain.Trade) *events.TradeCreatedData {
	data := &events.TradeCreatedData{
		TradeID:        t.ID,
		TradeNumber:    t.TradeNumber,
		TradeType:      string(t.TradeType),
		BaseCurrency:   string(t.BaseCurrency),
		QuoteCurrency:  string(t.QuoteCurrency),
		Amount:         t.Amount.String(),
		Rate:           t.Rate.String(),
		TotalValue:     t.TotalValue.String(),
		CounterpartyID: t.CounterpartyID,
	}
	if p := t.Profit(); p != nil {
		data.Profit = p.String()
	}
	return data
}
