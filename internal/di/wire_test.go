package di

import (
	"context"
	"testing"

	"github.com/aristath/sarraf/internal/config"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/events"
	"github.com/aristath/sarraf/internal/modules/trading"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:        t.TempDir(),
		AllowShortSell: true,
		AuditSchedule:  "0 */15 * * * *",
		BackupSchedule: "0 0 3 * * *",
		Backup:         config.BackupConfig{RetentionCount: 3},
	}
}

func TestWire(t *testing.T) {
	container, jobs, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	assert.NotNil(t, container.LedgerDB)
	assert.NotNil(t, container.Gate)
	assert.NotNil(t, container.Metrics)
	assert.NotNil(t, container.EventManager)
	assert.NotNil(t, container.TradingService)
	assert.NotNil(t, container.ReceiptService)
	assert.NotNil(t, container.SettlementEngine)
	assert.NotNil(t, container.BackupService)
	assert.NotNil(t, container.Scheduler)
	assert.Nil(t, container.KafkaSink, "kafka sink is only created when brokers are configured")

	require.NotNil(t, jobs)
	names := make([]string, 0, 3)
	for _, job := range jobs.All() {
		names = append(names, job.Name())
	}
	assert.ElementsMatch(t, []string{"ledger_audit", "wal_checkpoint", "ledger_backup"}, names)

	assert.True(t, container.Book.Policy().AllowShortSell)
}

func TestWire_TradeFlowsThroughContainer(t *testing.T) {
	container, jobs, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	var received []events.EventType
	container.EventBus.Subscribe(func(e *events.Event) {
		received = append(received, e.Type)
	})

	trade, err := container.TradingService.CreateTrade(context.Background(), trading.CreateTradeRequest{
		TradeType:     domain.TradeTypeBuy,
		BaseCurrency:  domain.CurrencyAED,
		QuoteCurrency: domain.CurrencyToman,
		Amount:        decimal.RequireFromString("1000"),
		Rate:          decimal.RequireFromString("3"),
	})
	require.NoError(t, err)
	assert.Equal(t, "T-000001", trade.TradeNumber)
	assert.Equal(t, []events.EventType{events.TradeCreated}, received)

	report, err := jobs.LedgerAudit.Audit(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK(), "problems: %v", report.Problems)
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.AuditSchedule = "not a schedule"

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger_audit")
	assert.Nil(t, container)
	assert.Nil(t, jobs)
}

type discardWriter struct{}

func (discardWriter) WriteMessages(context.Context, ...kafka.Message) error { return nil }
func (discardWriter) Close() error                                          { return nil }

func TestContainerClose_DetachesKafkaSink(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	sink := events.NewKafkaSink(discardWriter{}, zerolog.Nop())
	sink.Start(context.Background())

	c := &Container{
		EventBus:        bus,
		KafkaSink:       sink,
		unsubscribeSink: bus.Subscribe(sink.Handle),
	}
	require.Equal(t, 1, bus.SubscriberCount())

	require.NoError(t, c.Close())
	assert.Equal(t, 0, bus.SubscriberCount())

	assert.NotPanics(t, func() {
		bus.Publish(&events.Event{ID: "evt-late", Type: events.TradeCreated, Data: &events.TradeCreatedData{}})
	})
}
