package receipts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/rs/zerolog"
)

const receiptColumns = `id, currency, amount, receipt_kind, payer_id, receiver_account_id, trading_party_id,
	receipt_type, individual_name, description, receipt_date, is_deleted, deletion_reason, is_restored, created_at`

// Repository persists payment receipts
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewRepository creates a new receipt repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "receipts").Logger(),
	}
}

// Insert stores a new receipt and assigns its ID
func (r *Repository) Insert(ctx context.Context, tx database.Querier, receipt *domain.Receipt) error {
	var payer, receiver, party interface{}
	var direction interface{}
	var individual string

	switch o := receipt.Obligor.(type) {
	case domain.TomanTransfer:
		payer, receiver = o.PayerID, o.ReceiverAccountID
	case domain.PartyReceipt:
		party, direction, individual = o.TradingPartyID, string(o.Direction), o.IndividualName
	default:
		return fmt.Errorf("unknown receipt obligor %T", receipt.Obligor)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO payment_receipts
		(currency, amount, receipt_kind, payer_id, receiver_account_id, trading_party_id, receipt_type,
		 individual_name, description, receipt_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(receipt.Currency),
		receipt.Amount,
		receipt.Kind(),
		payer,
		receiver,
		party,
		direction,
		individual,
		receipt.Description,
		receipt.ReceiptDate.Unix(),
		receipt.CreatedAt.Unix(),
		receipt.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	if receipt.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get receipt id: %w", err)
	}

	r.log.Debug().
		Int64("receipt_id", receipt.ID).
		Str("kind", receipt.Kind()).
		Str("currency", string(receipt.Currency)).
		Msg("Receipt inserted")

	return nil
}

// GetReceipt returns a receipt, deleted or not, or ErrReceiptNotFound
func (r *Repository) GetReceipt(ctx context.Context, q database.Querier, id int64) (*domain.Receipt, error) {
	row := q.QueryRowContext(ctx, "SELECT "+receiptColumns+" FROM payment_receipts WHERE id = ?", id)
	receipt, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return &receipt, nil
}

// ListActive returns every non-deleted receipt in creation order
func (r *Repository) ListActive(ctx context.Context, q database.Querier) ([]domain.Receipt, error) {
	return r.query(ctx, q, "SELECT "+receiptColumns+" FROM payment_receipts WHERE is_deleted = 0 ORDER BY created_at, id")
}

// List returns one page of receipts, newest first, with the total match count
func (r *Repository) List(ctx context.Context, filter ReceiptFilter, page domain.Pagination) ([]domain.Receipt, int, error) {
	where, args := receiptWhere(filter)

	var total int
	if err := r.ledgerDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM payment_receipts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count receipts: %w", err)
	}

	query := "SELECT " + receiptColumns + " FROM payment_receipts" + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	receipts, err := r.query(ctx, r.ledgerDB, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return receipts, total, nil
}

// MarkDeleted soft-deletes a receipt
func (r *Repository) MarkDeleted(ctx context.Context, tx database.Querier, id int64, reason string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payment_receipts SET is_deleted = 1, deletion_reason = ?, updated_at = ? WHERE id = ?
	`, reason, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to delete receipt %d: %w", id, err)
	}
	return nil
}

// MarkRestored clears a deletion and flags the receipt as restored
func (r *Repository) MarkRestored(ctx context.Context, tx database.Querier, id int64, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payment_receipts SET is_deleted = 0, deletion_reason = '', is_restored = 1, updated_at = ? WHERE id = ?
	`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to restore receipt %d: %w", id, err)
	}
	return nil
}

func (r *Repository) query(ctx context.Context, q database.Querier, query string, args ...interface{}) ([]domain.Receipt, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []domain.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipts: %w", err)
	}
	return receipts, nil
}

func receiptWhere(filter ReceiptFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if !filter.IncludeDeleted {
		conditions = append(conditions, "is_deleted = 0")
	}
	if filter.Currency != "" {
		conditions = append(conditions, "currency = ?")
		args = append(args, string(filter.Currency))
	}
	if filter.CounterpartyID != nil {
		conditions = append(conditions, "(payer_id = ? OR trading_party_id = ?)")
		args = append(args, *filter.CounterpartyID, *filter.CounterpartyID)
	}
	if filter.From != nil {
		conditions = append(conditions, "receipt_date >= ?")
		args = append(args, filter.From.Unix())
	}
	if filter.To != nil {
		conditions = append(conditions, "receipt_date <= ?")
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

func scanReceipt(row rowScanner) (domain.Receipt, error) {
	var receipt domain.Receipt
	var currency, kind string
	var payer, receiver, party sql.NullInt64
	var direction sql.NullString
	var individual string
	var receiptDate, createdAt int64
	var deleted, restored int

	err := row.Scan(
		&receipt.ID,
		&currency,
		&receipt.Amount,
		&kind,
		&payer,
		&receiver,
		&party,
		&direction,
		&individual,
		&receipt.Description,
		&receiptDate,
		&deleted,
		&receipt.DeletionReason,
		&restored,
		&createdAt,
	)
	if err != nil {
		return domain.Receipt{}, err
	}

	receipt.Currency = domain.Currency(currency)
	receipt.ReceiptDate = database.UnixTime(receiptDate)
	receipt.CreatedAt = database.UnixTime(createdAt)
	receipt.IsDeleted = deleted == 1
	receipt.IsRestored = restored == 1

	if kind == domain.ReceiptKindTransfer {
		receipt.Obligor = domain.TomanTransfer{PayerID: payer.Int64, ReceiverAccountID: receiver.Int64}
	} else {
		receipt.Obligor = domain.PartyReceipt{
			TradingPartyID: party.Int64,
			Direction:      domain.ReceiptDirection(direction.String),
			IndividualName: individual,
		}
	}

	return receipt, nil
}
