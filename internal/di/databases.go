package di

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aristath/sarraf/internal/config"
	"github.com/aristath/sarraf/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens ledger.db and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// ledger.db holds every trade, receipt, journal entry and statement line
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}

	if err := ledgerDB.Migrate(); err != nil {
		ledgerDB.Close()
		return nil, fmt.Errorf("failed to migrate ledger database: %w", err)
	}

	log.Info().Str("path", ledgerDB.Path()).Msg("Ledger database ready")

	return &Container{
		LedgerDB: ledgerDB,
		Gate:     database.NewGate(),
	}, nil
}
