package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/rs/zerolog"
)

const entryColumns = `id, entry_number, entry_type, trade_id, receipt_id, description, entry_date, created_at`

const lineColumns = `id, entry_id, account_code, account_name, debit_amount, credit_amount, currency`

// Repository persists journal entries and lines.
// Write methods take the caller's unit of work; reads use the ledger connection.
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewRepository creates a new journal repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "journal").Logger(),
	}
}

// Insert stores the entry header and its lines, filling in the generated IDs
func (r *Repository) Insert(ctx context.Context, q database.Querier, entry *Entry) error {
	result, err := q.ExecContext(ctx, `
		INSERT INTO journal_entries
		(entry_number, entry_type, trade_id, receipt_id, description, entry_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.EntryNumber,
		string(entry.EntryType),
		database.NullableID(entry.TradeID),
		database.NullableID(entry.ReceiptID),
		entry.Description,
		entry.EntryDate.Unix(),
		entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}

	entryID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get journal entry id: %w", err)
	}
	entry.ID = entryID

	for i := range entry.Lines {
		line := &entry.Lines[i]
		lineResult, err := q.ExecContext(ctx, `
			INSERT INTO journal_entry_lines
			(entry_id, account_code, account_name, debit_amount, credit_amount, currency, line_order)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			entryID,
			line.AccountCode,
			line.AccountName,
			line.Debit,
			line.Credit,
			string(line.Currency),
			i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert journal line %d: %w", i, err)
		}
		lineID, err := lineResult.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get journal line id: %w", err)
		}
		line.ID = lineID
		line.EntryID = entryID
	}

	return nil
}

// GetByID returns an entry with its lines
func (r *Repository) GetByID(ctx context.Context, id int64) (*Entry, error) {
	row := r.ledgerDB.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM journal_entries WHERE id = ?", id)

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}

	lines, err := r.linesFor(ctx, []int64{entry.ID})
	if err != nil {
		return nil, err
	}
	entry.Lines = lines[entry.ID]

	return &entry, nil
}

// List returns one page of entries (newest first) with their lines, and the total count
func (r *Repository) List(ctx context.Context, filter EntryFilter, page domain.Pagination) ([]Entry, int, error) {
	where, args := entryWhere(filter)

	var total int
	if err := r.ledgerDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM journal_entries"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count journal entries: %w", err)
	}

	query := "SELECT " + entryColumns + " FROM journal_entries" + where +
		" ORDER BY entry_date DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.ledgerDB.QueryContext(ctx, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query journal entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	var ids []int64
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, entry)
		ids = append(ids, entry.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating journal entries: %w", err)
	}

	lines, err := r.linesFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range entries {
		entries[i].Lines = lines[entries[i].ID]
	}

	return entries, total, nil
}

// LinesForBalance returns every line matching the filter, for aggregation
func (r *Repository) LinesForBalance(ctx context.Context, filter BalanceFilter) ([]Line, error) {
	query := `
		SELECT l.id, l.entry_id, l.account_code, l.account_name, l.debit_amount, l.credit_amount, l.currency
		FROM journal_entry_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		WHERE 1 = 1`
	var args []interface{}

	if filter.Currency != "" {
		query += " AND l.currency = ?"
		args = append(args, string(filter.Currency))
	}
	if filter.AccountCode != "" {
		query += " AND l.account_code = ?"
		args = append(args, filter.AccountCode)
	}
	if filter.AsOf != nil {
		query += " AND e.entry_date <= ?"
		args = append(args, filter.AsOf.Unix())
	}
	query += " ORDER BY l.id"

	rows, err := r.ledgerDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal lines: %w", err)
	}
	defer rows.Close()

	return scanLines(rows)
}

// AllLines returns every stored line in insertion order
func (r *Repository) AllLines(ctx context.Context) ([]Line, error) {
	rows, err := r.ledgerDB.QueryContext(ctx, "SELECT "+lineColumns+" FROM journal_entry_lines ORDER BY entry_id, line_order")
	if err != nil {
		return nil, fmt.Errorf("failed to query journal lines: %w", err)
	}
	defer rows.Close()

	return scanLines(rows)
}

func (r *Repository) linesFor(ctx context.Context, entryIDs []int64) (map[int64][]Line, error) {
	result := make(map[int64][]Line, len(entryIDs))
	if len(entryIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(entryIDs)), ",")
	args := make([]interface{}, len(entryIDs))
	for i, id := range entryIDs {
		args[i] = id
	}

	query := "SELECT " + lineColumns + " FROM journal_entry_lines WHERE entry_id IN (" + placeholders + ") ORDER BY entry_id, line_order"
	rows, err := r.ledgerDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal lines: %w", err)
	}
	defer rows.Close()

	lines, err := scanLines(rows)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		result[line.EntryID] = append(result[line.EntryID], line)
	}

	return result, nil
}

func entryWhere(filter EntryFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.TradeID != nil {
		conditions = append(conditions, "trade_id = ?")
		args = append(args, *filter.TradeID)
	}
	if filter.ReceiptID != nil {
		conditions = append(conditions, "receipt_id = ?")
		args = append(args, *filter.ReceiptID)
	}
	if filter.EntryType != "" {
		conditions = append(conditions, "entry_type = ?")
		args = append(args, string(filter.EntryType))
	}
	if filter.From != nil {
		conditions = append(conditions, "entry_date >= ?")
		args = append(args, filter.From.Unix())
	}
	if filter.To != nil {
		conditions = append(conditions, "entry_date <= ?")
		args = append(args, filter.To.Unix())
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (Entry, error) {
	var entry Entry
	var entryType string
	var tradeID, receiptID sql.NullInt64
	var entryDate, createdAt int64

	if err := row.Scan(
		&entry.ID,
		&entry.EntryNumber,
		&entryType,
		&tradeID,
		&receiptID,
		&entry.Description,
		&entryDate,
		&createdAt,
	); err != nil {
		return Entry{}, err
	}

	entry.EntryType = EntryType(entryType)
	entry.TradeID = database.IDPtr(tradeID)
	entry.ReceiptID = database.IDPtr(receiptID)
	entry.EntryDate = database.UnixTime(entryDate)
	entry.CreatedAt = database.UnixTime(createdAt)

	return entry, nil
}

func scanLines(rows *sql.Rows) ([]Line, error) {
	var lines []Line
	for rows.Next() {
		var line Line
		var currency string
		if err := rows.Scan(
			&line.ID,
			&line.EntryID,
			&line.AccountCode,
			&line.AccountName,
			&line.Debit,
			&line.Credit,
			&currency,
		); err != nil {
			return nil, fmt.Errorf("failed to scan journal line: %w", err)
		}
		line.Currency = domain.Currency(currency)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal lines: %w", err)
	}
	return lines, nil
}
