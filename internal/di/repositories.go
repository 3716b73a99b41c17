package di

import (
	"fmt"

	"github.com/aristath/sarraf/internal/modules/journal"
	"github.com/aristath/sarraf/internal/modules/receipts"
	"github.com/aristath/sarraf/internal/modules/settlement"
	"github.com/aristath/sarraf/internal/modules/trading"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates all repositories over ledger.db
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.LedgerDB == nil {
		return fmt.Errorf("container must have an open ledger database")
	}

	conn := container.LedgerDB.Conn()

	container.TradeRepo = trading.NewTradeRepository(conn, log)
	container.ReceiptRepo = receipts.NewRepository(conn, log)
	container.SettlementRepo = settlement.NewRepository(conn, log)
	container.JournalRepo = journal.NewRepository(conn, log)

	log.Debug().Msg("Repositories initialized")
	return nil
}
