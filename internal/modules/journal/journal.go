package journal

import (
	"context"
	"fmt"
	"sort"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Journal posts balanced entries and aggregates account balances
type Journal struct {
	repo    *Repository
	clock   domain.Clock
	ids     domain.IDGenerator
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates a journal over the given repository
func New(repo *Repository, clock domain.Clock, ids domain.IDGenerator, m *metrics.Metrics, log zerolog.Logger) *Journal {
	return &Journal{
		repo:    repo,
		clock:   clock,
		ids:     ids,
		metrics: m,
		log:     log.With().Str("service", "journal").Logger(),
	}
}

// PostEntry validates and stores an entry inside the caller's unit of work.
// An entry that does not balance per currency is rejected with ErrUnbalancedEntry.
func (j *Journal) PostEntry(ctx context.Context, tx database.Querier, in EntryInput) (*Entry, error) {
	if err := Validate(in.Lines); err != nil {
		j.log.Error().
			Err(err).
			Str("entry_type", string(in.EntryType)).
			Msg("Rejected journal entry")
		return nil, err
	}

	now := j.clock.Now()
	entryDate := in.EntryDate
	if entryDate.IsZero() {
		entryDate = now
	}

	entry := &Entry{
		EntryNumber: j.ids.NewEntryNumber(),
		EntryType:   in.EntryType,
		TradeID:     in.TradeID,
		ReceiptID:   in.ReceiptID,
		Description: in.Description,
		EntryDate:   entryDate,
		CreatedAt:   now,
		Lines:       append([]Line(nil), in.Lines...),
	}

	if err := j.repo.Insert(ctx, tx, entry); err != nil {
		return nil, err
	}

	j.metrics.JournalEntryPosted(string(entry.EntryType))
	j.log.Debug().
		Str("entry_number", entry.EntryNumber).
		Str("entry_type", string(entry.EntryType)).
		Int("lines", len(entry.Lines)).
		Msg("Posted journal entry")

	return entry, nil
}

// GetBalances aggregates debit minus credit per account and currency, omitting zero balances
func (j *Journal) GetBalances(ctx context.Context, filter BalanceFilter) ([]AccountBalance, error) {
	lines, err := j.repo.LinesForBalance(ctx, filter)
	if err != nil {
		return nil, err
	}

	type key struct {
		code     string
		currency domain.Currency
	}
	totals := make(map[key]*AccountBalance)
	for _, line := range lines {
		k := key{code: line.AccountCode, currency: line.Currency}
		bal, ok := totals[k]
		if !ok {
			bal = &AccountBalance{
				AccountCode: line.AccountCode,
				AccountName: line.AccountName,
				Currency:    line.Currency,
				Balance:     decimal.Zero,
			}
			totals[k] = bal
		}
		bal.Balance = bal.Balance.Add(line.Debit).Sub(line.Credit)
	}

	balances := make([]AccountBalance, 0, len(totals))
	for _, bal := range totals {
		if bal.Balance.IsZero() {
			continue
		}
		balances = append(balances, *bal)
	}
	sort.Slice(balances, func(a, b int) bool {
		if balances[a].AccountCode != balances[b].AccountCode {
			return balances[a].AccountCode < balances[b].AccountCode
		}
		return balances[a].Currency < balances[b].Currency
	})

	return balances, nil
}

// GetEntries returns a page of entries with their lines
func (j *Journal) GetEntries(ctx context.Context, filter EntryFilter, page domain.Pagination) ([]Entry, int, error) {
	return j.repo.List(ctx, filter, page)
}

// GetEntry returns a single entry with its lines
func (j *Journal) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	return j.repo.GetByID(ctx, id)
}

// FindImbalances re-checks every stored entry and reports those that do not balance
func (j *Journal) FindImbalances(ctx context.Context) ([]Imbalance, error) {
	lines, err := j.repo.AllLines(ctx)
	if err != nil {
		return nil, err
	}

	type key struct {
		entryID  int64
		currency domain.Currency
	}
	sums := make(map[key]*Imbalance)
	var order []key
	for _, line := range lines {
		k := key{entryID: line.EntryID, currency: line.Currency}
		s, ok := sums[k]
		if !ok {
			s = &Imbalance{EntryID: line.EntryID, Currency: line.Currency, Debits: decimal.Zero, Credits: decimal.Zero}
			sums[k] = s
			order = append(order, k)
		}
		s.Debits = s.Debits.Add(line.Debit)
		s.Credits = s.Credits.Add(line.Credit)
	}

	var imbalances []Imbalance
	for _, k := range order {
		if s := sums[k]; !s.Debits.Equal(s.Credits) {
			imbalances = append(imbalances, *s)
		}
	}

	return imbalances, nil
}

// CheckBalanced returns ErrUnbalancedEntry when any stored entry fails to balance
func (j *Journal) CheckBalanced(ctx context.Context) error {
	imbalances, err := j.FindImbalances(ctx)
	if err != nil {
		return err
	}
	if len(imbalances) > 0 {
		first := imbalances[0]
		return fmt.Errorf("%w: %d stored entries, first is entry %d (%s debits %s, credits %s)",
			domain.ErrUnbalancedEntry, len(imbalances), first.EntryID, first.Currency, first.Debits, first.Credits)
	}
	return nil
}

// Validate checks the structural and balance rules for a set of entry lines
func Validate(lines []Line) error {
	if len(lines) < 2 {
		return domain.Invalid("journal entry needs at least two lines, got %d", len(lines))
	}

	debits := make(map[domain.Currency]decimal.Decimal)
	credits := make(map[domain.Currency]decimal.Decimal)
	for i, line := range lines {
		if !line.Currency.Valid() {
			return domain.Invalid("line %d: unsupported currency %q", i, line.Currency)
		}
		if line.AccountCode == "" {
			return domain.Invalid("line %d: missing account code", i)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return domain.Invalid("line %d: negative amount", i)
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			return domain.Invalid("line %d: exactly one of debit or credit must be positive", i)
		}
		debits[line.Currency] = debits[line.Currency].Add(line.Debit)
		credits[line.Currency] = credits[line.Currency].Add(line.Credit)
	}

	for currency, debit := range debits {
		credit := credits[currency]
		if !debit.Equal(credit) {
			return fmt.Errorf("%w: %s debits %s, credits %s", domain.ErrUnbalancedEntry, currency, debit, credit)
		}
	}
	return nil
}

// ReverseLines returns the lines with debit and credit swapped
func ReverseLines(lines []Line) []Line {
	reversed := make([]Line, len(lines))
	for i, line := range lines {
		reversed[i] = Line{
			AccountCode: line.AccountCode,
			AccountName: line.AccountName,
			Currency:    line.Currency,
			Debit:       line.Credit,
			Credit:      line.Debit,
		}
	}
	return reversed
}
