package receipts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/events"
	"github.com/aristath/sarraf/internal/metrics"
	"github.com/aristath/sarraf/internal/modules/counterparts"
	"github.com/aristath/sarraf/internal/modules/journal"
	"github.com/aristath/sarraf/internal/modules/settlement"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Service records receipts.
//
// Every mutation commits its journal entry and counterpart balance changes in
// one unit of work, then settles in a second one:
//   - Create matches the new receipt against open trades
//   - Delete and Restore rebuild all allocations with a full reprocess
//
// A settlement failure does not undo the committed receipt change. It is
// reported in Result.SettlementError.
type Service struct {
	ledgerDB   *sql.DB
	gate       *database.Gate
	repo       *Repository
	journal    *journal.Journal
	ledger     *counterparts.Ledger
	directory  *counterparts.Directory
	settlement *settlement.Engine
	events     *events.Manager
	metrics    *metrics.Metrics
	clock      domain.Clock
	log        zerolog.Logger
}

// Deps groups the collaborators of the receipt service
type Deps struct {
	LedgerDB   *sql.DB
	Gate       *database.Gate
	Repo       *Repository
	Journal    *journal.Journal
	Ledger     *counterparts.Ledger
	Directory  *counterparts.Directory
	Settlement *settlement.Engine
	Events     *events.Manager
	Metrics    *metrics.Metrics
	Clock      domain.Clock
}

// NewService creates a new receipt service
func NewService(deps Deps, log zerolog.Logger) *Service {
	return &Service{
		ledgerDB:   deps.LedgerDB,
		gate:       deps.Gate,
		repo:       deps.Repo,
		journal:    deps.Journal,
		ledger:     deps.Ledger,
		directory:  deps.Directory,
		settlement: deps.Settlement,
		events:     deps.Events,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		log:        log.With().Str("service", "receipts").Logger(),
	}
}

// effect is one counterpart's share of a receipt: a signed balance change and
// the journal lines that go with it.
type effect struct {
	lines         []journal.Line
	amount        decimal.Decimal
	counterpartID int64
}

// Create records a receipt, posts its effects and settles it against open trades
func (s *Service) Create(ctx context.Context, req CreateReceiptRequest) (*Result, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	var receipt *domain.Receipt
	err := s.gate.Write(func() error {
		return database.WithTransaction(ctx, s.ledgerDB, func(tx *sql.Tx) error {
			var err error
			receipt, err = s.create(ctx, tx, req)
			return err
		})
	})
	if err != nil {
		s.log.Error().
			Err(err).
			Str("kind", req.Kind).
			Str("amount", req.Amount.String()).
			Msg("Failed to create receipt")
		return nil, err
	}

	result := &Result{}
	processed, err := s.settlement.ProcessReceipt(ctx, receipt.ID)
	if err != nil {
		result.SettlementError = err.Error()
		s.log.Warn().Err(err).Int64("receipt_id", receipt.ID).Msg("Receipt saved but settlement failed")
	}
	result.Settlement = processed

	// settlement does not touch the receipt row
	result.Receipt = NewReceiptView(*receipt)

	s.metrics.ReceiptAction("create")
	s.events.Emit("receipts", &events.ReceiptData{
		Type:            events.ReceiptCreated,
		ReceiptID:       receipt.ID,
		Currency:        string(receipt.Currency),
		Amount:          receipt.Amount.String(),
		SettlementError: result.SettlementError,
		Allocations:     processed.AllocationCount(),
	})
	s.log.Info().
		Int64("receipt_id", receipt.ID).
		Str("kind", receipt.Kind()).
		Str("currency", string(receipt.Currency)).
		Str("amount", receipt.Amount.String()).
		Msg("Receipt created")

	return result, nil
}

// Delete soft-deletes a receipt, reverses its journal entry and balance changes
// and rebuilds settlement without it.
func (s *Service) Delete(ctx context.Context, id int64, reason string) (*Result, error) {
	if err := domain.ValidateStruct(DeleteReceiptRequest{Reason: reason}); err != nil {
		return nil, err
	}

	var receipt *domain.Receipt
	err := s.gate.Write(func() error {
		return database.WithTransaction(ctx, s.ledgerDB, func(tx *sql.Tx) error {
			var err error
			if receipt, err = s.repo.GetReceipt(ctx, tx, id); err != nil {
				return err
			}
			if receipt.IsDeleted {
				return fmt.Errorf("%w: receipt %d", domain.ErrReceiptAlreadyDeleted, id)
			}

			now := s.clock.Now()
			if err := s.repo.MarkDeleted(ctx, tx, id, reason, now); err != nil {
				return err
			}
			receipt.IsDeleted = true
			receipt.DeletionReason = reason

			return s.post(ctx, tx, receipt, true, fmt.Sprintf("Reversal of receipt #%d: %s", id, reason))
		})
	})
	if err != nil {
		s.log.Error().Err(err).Int64("receipt_id", id).Msg("Failed to delete receipt")
		return nil, err
	}

	result := s.reprocess(ctx, receipt)
	s.metrics.ReceiptAction("delete")
	s.events.Emit("receipts", &events.ReceiptData{
		Type:            events.ReceiptDeleted,
		ReceiptID:       id,
		Currency:        string(receipt.Currency),
		Amount:          receipt.Amount.String(),
		Reason:          reason,
		SettlementError: result.SettlementError,
	})
	s.log.Info().Int64("receipt_id", id).Str("reason", reason).Msg("Receipt deleted")

	return result, nil
}

// Restore undeletes a receipt, re-posts its effects and rebuilds settlement
func (s *Service) Restore(ctx context.Context, id int64) (*Result, error) {
	var receipt *domain.Receipt
	err := s.gate.Write(func() error {
		return database.WithTransaction(ctx, s.ledgerDB, func(tx *sql.Tx) error {
			var err error
			if receipt, err = s.repo.GetReceipt(ctx, tx, id); err != nil {
				return err
			}
			if !receipt.IsDeleted {
				return fmt.Errorf("%w: receipt %d", domain.ErrReceiptNotDeleted, id)
			}

			if err := s.repo.MarkRestored(ctx, tx, id, s.clock.Now()); err != nil {
				return err
			}
			receipt.IsDeleted = false
			receipt.DeletionReason = ""
			receipt.IsRestored = true

			return s.post(ctx, tx, receipt, false, fmt.Sprintf("Restored receipt #%d", id))
		})
	})
	if err != nil {
		s.log.Error().Err(err).Int64("receipt_id", id).Msg("Failed to restore receipt")
		return nil, err
	}

	result := s.reprocess(ctx, receipt)
	s.metrics.ReceiptAction("restore")
	s.events.Emit("receipts", &events.ReceiptData{
		Type:            events.ReceiptRestored,
		ReceiptID:       id,
		Currency:        string(receipt.Currency),
		Amount:          receipt.Amount.String(),
		SettlementError: result.SettlementError,
	})
	s.log.Info().Int64("receipt_id", id).Msg("Receipt restored")

	return result, nil
}

// Get returns a receipt with the allocations it produced
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	var receipt *domain.Receipt
	err := s.gate.Read(func() error {
		var err error
		receipt, err = s.repo.GetReceipt(ctx, s.ledgerDB, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	allocations, err := s.settlement.ReceiptAllocations(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Detail{ReceiptView: NewReceiptView(*receipt), Allocations: allocations}, nil
}

// List returns one page of receipts with the total match count
func (s *Service) List(ctx context.Context, filter ReceiptFilter, page domain.Pagination) ([]ReceiptView, int, error) {
	var receipts []domain.Receipt
	var total int
	err := s.gate.Read(func() error {
		var err error
		receipts, total, err = s.repo.List(ctx, filter, page)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	views := make([]ReceiptView, len(receipts))
	for i, r := range receipts {
		views[i] = NewReceiptView(r)
	}
	return views, total, nil
}

func (s *Service) create(ctx context.Context, tx *sql.Tx, req CreateReceiptRequest) (*domain.Receipt, error) {
	now := s.clock.Now()
	receiptDate := now
	if req.ReceiptDate != nil {
		receiptDate = req.ReceiptDate.UTC()
	}

	receipt := &domain.Receipt{
		Currency:    req.Currency,
		Amount:      req.Amount,
		Description: req.Description,
		ReceiptDate: receiptDate,
		CreatedAt:   now,
	}

	if req.Kind == domain.ReceiptKindTransfer {
		if err := s.requireParty(ctx, tx, *req.PayerID); err != nil {
			return nil, err
		}
		account, err := s.directory.GetBankAccount(ctx, tx, *req.ReceiverAccountID)
		if err != nil {
			return nil, err
		}
		if account.Currency != req.Currency {
			return nil, domain.Invalid("bank account %d holds %s, receipt is %s", account.ID, account.Currency, req.Currency)
		}
		receipt.Obligor = domain.TomanTransfer{PayerID: *req.PayerID, ReceiverAccountID: account.ID}
	} else {
		if err := s.requireParty(ctx, tx, *req.TradingPartyID); err != nil {
			return nil, err
		}
		receipt.Obligor = domain.PartyReceipt{
			TradingPartyID: *req.TradingPartyID,
			Direction:      req.Direction,
			IndividualName: req.IndividualName,
		}
	}

	if err := s.repo.Insert(ctx, tx, receipt); err != nil {
		return nil, err
	}

	if err := s.post(ctx, tx, receipt, false, describe(receipt)); err != nil {
		return nil, err
	}

	return receipt, nil
}

func (s *Service) requireParty(ctx context.Context, tx *sql.Tx, id int64) error {
	exists, err := s.directory.PartyExists(ctx, tx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %d", domain.ErrCounterpartyNotFound, id)
	}
	return nil
}

// post books the receipt's effects, or their exact inverse when reverse is set
func (s *Service) post(ctx context.Context, tx *sql.Tx, receipt *domain.Receipt, reverse bool, description string) error {
	effects, err := s.effects(ctx, tx, receipt)
	if err != nil {
		return err
	}

	var lines []journal.Line
	for _, e := range effects {
		lines = append(lines, e.lines...)
	}

	entryType := journal.EntryReceipt
	if reverse {
		entryType = journal.EntryReversal
		lines = journal.ReverseLines(lines)
	}

	if _, err := s.journal.PostEntry(ctx, tx, journal.EntryInput{
		EntryDate:   receipt.ReceiptDate,
		ReceiptID:   &receipt.ID,
		EntryType:   entryType,
		Description: description,
		Lines:       lines,
	}); err != nil {
		return err
	}

	for _, e := range effects {
		amount := e.amount
		if reverse {
			amount = amount.Neg()
		}
		if _, err := s.ledger.UpdateBalance(ctx, tx, counterparts.BalanceUpdate{
			CounterpartID: e.counterpartID,
			Currency:      receipt.Currency,
			Amount:        amount,
			Type:          domain.TransactionReceipt,
			Description:   description,
			Date:          receipt.ReceiptDate,
			ReceiptID:     &receipt.ID,
		}); err != nil {
			return err
		}
	}

	return nil
}

// effects derives the forward effects of a receipt.
//
// Money received from a counterparty raises their balance and is booked
// Dr Cash & Bank / Cr Receivable. Money paid to a counterparty lowers it and is
// booked Dr Payable / Cr Cash & Bank. A transfer is received from the payer and,
// when the receiving account belongs to a counterpart, paid to that counterpart.
func (s *Service) effects(ctx context.Context, q database.Querier, receipt *domain.Receipt) ([]effect, error) {
	c, amt := receipt.Currency, receipt.Amount
	received := func(id int64) effect {
		return effect{
			counterpartID: id,
			amount:        amt,
			lines: []journal.Line{
				journal.Debit(journal.AccountCashBank, c, amt),
				journal.Credit(journal.AccountReceivable, c, amt),
			},
		}
	}
	paid := func(id int64) effect {
		return effect{
			counterpartID: id,
			amount:        amt.Neg(),
			lines: []journal.Line{
				journal.Debit(journal.AccountPayable, c, amt),
				journal.Credit(journal.AccountCashBank, c, amt),
			},
		}
	}

	switch o := receipt.Obligor.(type) {
	case domain.PartyReceipt:
		if o.Direction == domain.DirectionPay {
			return []effect{paid(o.TradingPartyID)}, nil
		}
		return []effect{received(o.TradingPartyID)}, nil
	case domain.TomanTransfer:
		out := []effect{received(o.PayerID)}
		owner, err := s.directory.AccountOwner(ctx, q, o.ReceiverAccountID)
		if err != nil {
			return nil, err
		}
		if owner != nil {
			out = append(out, paid(*owner))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("receipt %d has unknown obligor %T", receipt.ID, receipt.Obligor)
	}
}

func (s *Service) reprocess(ctx context.Context, receipt *domain.Receipt) *Result {
	result := &Result{Receipt: NewReceiptView(*receipt)}

	reprocessed, err := s.settlement.ReprocessAllReceipts(ctx)
	if err != nil {
		result.SettlementError = err.Error()
		s.log.Warn().Err(err).Int64("receipt_id", receipt.ID).Msg("Receipt saved but settlement reprocess failed")
		return result
	}
	result.Reprocess = reprocessed
	return result
}

func validateCreateRequest(req CreateReceiptRequest) error {
	if err := domain.ValidateStruct(req); err != nil {
		return err
	}
	if !req.Amount.IsPositive() {
		return domain.Invalid("amount must be positive")
	}

	switch req.Kind {
	case domain.ReceiptKindTransfer:
		if req.Currency != domain.CurrencyToman {
			return domain.Invalid("transfers must be in TOMAN")
		}
		if req.PayerID == nil || req.ReceiverAccountID == nil {
			return domain.Invalid("transfers need payer_id and receiver_account_id")
		}
		if req.TradingPartyID != nil || req.Direction != "" {
			return domain.Invalid("transfers take no trading_party_id or receipt_type")
		}
	case domain.ReceiptKindParty:
		if req.TradingPartyID == nil || req.Direction == "" {
			return domain.Invalid("party receipts need trading_party_id and receipt_type")
		}
		if req.PayerID != nil || req.ReceiverAccountID != nil {
			return domain.Invalid("party receipts take no payer_id or receiver_account_id")
		}
	}
	return nil
}

func describe(r *domain.Receipt) string {
	switch o := r.Obligor.(type) {
	case domain.TomanTransfer:
		return fmt.Sprintf("Receipt: %s %s transfer from party %d to account %d", r.Amount, r.Currency, o.PayerID, o.ReceiverAccountID)
	case domain.PartyReceipt:
		return fmt.Sprintf("Receipt: %s %s %s party %d", r.Amount, r.Currency, o.Direction, o.TradingPartyID)
	}
	return fmt.Sprintf("Receipt: %s %s", r.Amount, r.Currency)
}
