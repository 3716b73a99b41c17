package counterparts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/rs/zerolog"
)

const bankAccountColumns = `id, counterpart_id, bank_name, account_number, holder_name, currency, created_at`

// Directory stores trading parties and bank accounts
type Directory struct {
	ledgerDB *sql.DB
	clock    domain.Clock
	log      zerolog.Logger
}

// NewDirectory creates a new party and bank account directory
func NewDirectory(ledgerDB *sql.DB, clock domain.Clock, log zerolog.Logger) *Directory {
	return &Directory{
		ledgerDB: ledgerDB,
		clock:    clock,
		log:      log.With().Str("repo", "counterpart_directory").Logger(),
	}
}

// CreateParty registers a new trading party
func (d *Directory) CreateParty(ctx context.Context, req CreatePartyRequest) (*domain.TradingParty, error) {
	if err := domain.ValidateStruct(req); err != nil {
		return nil, err
	}

	party := &domain.TradingParty{
		Name:      req.Name,
		Phone:     req.Phone,
		Notes:     req.Notes,
		CreatedAt: d.clock.Now(),
	}

	result, err := d.ledgerDB.ExecContext(ctx,
		"INSERT INTO trading_parties (name, phone, notes, created_at) VALUES (?, ?, ?, ?)",
		party.Name, party.Phone, party.Notes, party.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert trading party: %w", err)
	}
	if party.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to get trading party id: %w", err)
	}

	d.log.Info().Int64("party_id", party.ID).Str("name", party.Name).Msg("Trading party created")

	return party, nil
}

// GetParty returns a trading party or ErrCounterpartyNotFound
func (d *Directory) GetParty(ctx context.Context, id int64) (*domain.TradingParty, error) {
	return getParty(ctx, d.ledgerDB, id)
}

// PartyExists reports whether a trading party exists, inside the caller's unit of work
func (d *Directory) PartyExists(ctx context.Context, q database.Querier, id int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM trading_parties WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check trading party: %w", err)
	}
	return true, nil
}

// ListParties returns every trading party ordered by name
func (d *Directory) ListParties(ctx context.Context) ([]domain.TradingParty, error) {
	rows, err := d.ledgerDB.QueryContext(ctx,
		"SELECT id, name, phone, notes, created_at FROM trading_parties ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query trading parties: %w", err)
	}
	defer rows.Close()

	var parties []domain.TradingParty
	for rows.Next() {
		var p domain.TradingParty
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.Notes, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan trading party: %w", err)
		}
		p.CreatedAt = database.UnixTime(createdAt)
		parties = append(parties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trading parties: %w", err)
	}

	return parties, nil
}

// CreateBankAccount registers a bank account, owned by a counterpart or by the desk
func (d *Directory) CreateBankAccount(ctx context.Context, req CreateBankAccountRequest) (*domain.BankAccount, error) {
	if err := domain.ValidateStruct(req); err != nil {
		return nil, err
	}

	if req.CounterpartID != nil {
		exists, err := d.PartyExists(ctx, d.ledgerDB, *req.CounterpartID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, domain.ErrCounterpartyNotFound
		}
	}

	account := &domain.BankAccount{
		CounterpartID: req.CounterpartID,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		HolderName:    req.HolderName,
		Currency:      req.Currency,
		CreatedAt:     d.clock.Now(),
	}

	result, err := d.ledgerDB.ExecContext(ctx, `
		INSERT INTO bank_accounts (counterpart_id, bank_name, account_number, holder_name, currency, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		database.NullableID(account.CounterpartID),
		account.BankName,
		account.AccountNumber,
		account.HolderName,
		string(account.Currency),
		account.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert bank account: %w", err)
	}
	if account.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to get bank account id: %w", err)
	}

	return account, nil
}

// GetBankAccount returns a bank account or ErrBankAccountNotFound
func (d *Directory) GetBankAccount(ctx context.Context, q database.Querier, id int64) (*domain.BankAccount, error) {
	row := q.QueryRowContext(ctx, "SELECT "+bankAccountColumns+" FROM bank_accounts WHERE id = ?", id)
	account, err := scanBankAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBankAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bank account: %w", err)
	}
	return account, nil
}

// AccountOwner returns the counterpart owning a bank account, or nil for desk-owned accounts
func (d *Directory) AccountOwner(ctx context.Context, q database.Querier, accountID int64) (*int64, error) {
	account, err := d.GetBankAccount(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	return account.CounterpartID, nil
}

// ListBankAccounts returns bank accounts, optionally only those of one counterpart
func (d *Directory) ListBankAccounts(ctx context.Context, counterpartID *int64) ([]domain.BankAccount, error) {
	query := "SELECT " + bankAccountColumns + " FROM bank_accounts"
	var args []interface{}
	if counterpartID != nil {
		query += " WHERE counterpart_id = ?"
		args = append(args, *counterpartID)
	}
	query += " ORDER BY id"

	rows, err := d.ledgerDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.BankAccount
	for rows.Next() {
		account, err := scanBankAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bank accounts: %w", err)
	}

	return accounts, nil
}

func getParty(ctx context.Context, q database.Querier, id int64) (*domain.TradingParty, error) {
	var p domain.TradingParty
	var createdAt int64
	err := q.QueryRowContext(ctx,
		"SELECT id, name, phone, notes, created_at FROM trading_parties WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.Phone, &p.Notes, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCounterpartyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trading party: %w", err)
	}
	p.CreatedAt = database.UnixTime(createdAt)
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBankAccount(row rowScanner) (*domain.BankAccount, error) {
	var a domain.BankAccount
	var owner sql.NullInt64
	var currency string
	var createdAt int64
	if err := row.Scan(&a.ID, &owner, &a.BankName, &a.AccountNumber, &a.HolderName, &currency, &createdAt); err != nil {
		return nil, err
	}
	a.CounterpartID = database.IDPtr(owner)
	a.Currency = domain.Currency(currency)
	a.CreatedAt = database.UnixTime(createdAt)
	return &a, nil
}
