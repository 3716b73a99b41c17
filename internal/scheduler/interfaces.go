package scheduler

import (
	"context"

	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/modules/counterparts"
	"github.com/aristath/sarraf/internal/modules/journal"
	"github.com/aristath/sarraf/internal/reliability"
)

// JournalAuditor finds journal entries that do not balance
type JournalAuditor interface {
	FindImbalances(ctx context.Context) ([]journal.Imbalance, error)
}

// StatementAuditor replays counterpart statements against stored balances
type StatementAuditor interface {
	ListBalances(ctx context.Context) ([]counterparts.Balance, error)
	VerifyStatement(ctx context.Context, counterpartID int64, currency domain.Currency) (*counterparts.StatementCheck, error)
}

// Backupper produces one ledger backup
type Backupper interface {
	Run(ctx context.Context) (*reliability.BackupResult, error)
}
