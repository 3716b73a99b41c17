// Package di provides dependency injection wiring and initialization.
package di

import (
	"context"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/events"
	"github.com/aristath/sarraf/internal/metrics"
	"github.com/aristath/sarraf/internal/modules/counterparts"
	"github.com/aristath/sarraf/internal/modules/journal"
	"github.com/aristath/sarraf/internal/modules/positions"
	"github.com/aristath/sarraf/internal/modules/receipts"
	"github.com/aristath/sarraf/internal/modules/settlement"
	"github.com/aristath/sarraf/internal/modules/trading"
	"github.com/aristath/sarraf/internal/reliability"
	"github.com/aristath/sarraf/internal/scheduler"
)

// Container holds all application dependencies
// This is passed to server and used throughout the application
type Container struct {
	// Database
	LedgerDB *database.DB
	Gate     *database.Gate

	// Ambient
	Clock        domain.Clock
	IDs          domain.IDGenerator
	Metrics      *metrics.Metrics
	EventBus     *events.Bus
	EventManager *events.Manager
	KafkaSink    *events.KafkaSink // nil unless KAFKA_BROKERS is set

	// Repositories
	TradeRepo      *trading.TradeRepository
	ReceiptRepo    *receipts.Repository
	SettlementRepo *settlement.Repository
	JournalRepo    *journal.Repository

	// Services
	Journal          *journal.Journal
	Book             *positions.Book
	Ledger           *counterparts.Ledger
	Directory        *counterparts.Directory
	SettlementEngine *settlement.Engine
	TradingService   *trading.Service
	ReceiptService   *receipts.Service
	BackupService    *reliability.BackupService

	Scheduler *scheduler.Scheduler

	stopSinks       context.CancelFunc
	unsubscribeSink func()
}

// JobInstances holds the scheduled jobs for manual triggering via API
type JobInstances struct {
	LedgerAudit   *scheduler.LedgerAuditJob
	WALCheckpoint *scheduler.WALCheckpointJob
	LedgerBackup  *scheduler.LedgerBackupJob
}

// All returns every job instance
func (j *JobInstances) All() []scheduler.Job {
	return []scheduler.Job{j.LedgerAudit, j.WALCheckpoint, j.LedgerBackup}
}
