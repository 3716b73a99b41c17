package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aristath/sarraf/internal/config"
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
	"github.com/rs/zerolog"
)

// InitializeServices creates the event plumbing and every ledger service.
// Order matters: the settlement engine is both a receipt dependency and the
// trade service's progress source.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	if container.Clock == nil {
		container.Clock = domain.SystemClock{}
	}
	if container.IDs == nil {
		container.IDs = domain.UUIDGenerator{}
	}

	conn := container.LedgerDB.Conn()

	// ==========================================
	// Events and metrics
	// ==========================================
	container.Metrics = metrics.New()
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, container.Clock, container.IDs, log)

	sinkCtx, cancel := context.WithCancel(context.Background())
	container.stopSinks = cancel
	if cfg.Kafka.Enabled() {
		sink := events.NewKafkaSink(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), log)
		sink.Start(sinkCtx)
		container.unsubscribeSink = container.EventBus.Subscribe(sink.Handle)
		container.KafkaSink = sink
		log.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("Kafka event sink enabled")
	}

	// ==========================================
	// Ledger core
	// ==========================================
	container.Journal = journal.New(container.JournalRepo, container.Clock, container.IDs, container.Metrics, log)
	container.Ledger = counterparts.NewLedger(conn, container.Clock, log)
	container.Directory = counterparts.NewDirectory(conn, container.Clock, log)

	if cfg.AllowShortSell {
		log.Warn().Msg("Short selling is enabled: sells beyond open inventory carry no cost basis")
	}
	container.Book = positions.NewBook(conn, container.Clock, positions.Policy{AllowShortSell: cfg.AllowShortSell}, log)

	// ==========================================
	// Settlement, trades and receipts
	// ==========================================
	container.SettlementEngine = settlement.NewEngine(settlement.Deps{
		LedgerDB: conn,
		Gate:     container.Gate,
		Repo:     container.SettlementRepo,
		Trades:   container.TradeRepo,
		Receipts: container.ReceiptRepo,
		Owners:   container.Directory,
		Events:   container.EventManager,
		Metrics:  container.Metrics,
		Clock:    container.Clock,
	}, log)

	container.TradingService = trading.NewService(trading.Deps{
		LedgerDB:  conn,
		Gate:      container.Gate,
		Repo:      container.TradeRepo,
		Journal:   container.Journal,
		Book:      container.Book,
		Ledger:    container.Ledger,
		Directory: container.Directory,
		Progress:  container.SettlementEngine,
		Events:    container.EventManager,
		Metrics:   container.Metrics,
		Clock:     container.Clock,
	}, log)

	container.ReceiptService = receipts.NewService(receipts.Deps{
		LedgerDB:   conn,
		Gate:       container.Gate,
		Repo:       container.ReceiptRepo,
		Journal:    container.Journal,
		Ledger:     container.Ledger,
		Directory:  container.Directory,
		Settlement: container.SettlementEngine,
		Events:     container.EventManager,
		Metrics:    container.Metrics,
		Clock:      container.Clock,
	}, log)

	// ==========================================
	// Backups
	// ==========================================
	// store stays a nil interface when S3 is not configured
	var store reliability.ObjectStore
	if cfg.Backup.Enabled() {
		s3Store, err := reliability.NewS3Store(context.Background(), cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to create backup store: %w", err)
		}
		store = s3Store
	}

	container.BackupService = reliability.NewBackupService(
		container.LedgerDB,
		container.Gate,
		store,
		filepath.Join(cfg.DataDir, "backups"),
		cfg.Backup.RetentionCount,
		container.Clock,
		container.EventManager,
		log,
	)

	log.Debug().Msg("Services initialized")
	return nil
}
