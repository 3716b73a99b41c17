package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	testingpkg "github.com/aristath/sarraf/internal/testing"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func newTestManager() *Manager {
	return NewManager(NewBus(zerolog.Nop()), testingpkg.NewClock(), &testingpkg.SequenceIDs{}, zerolog.Nop())
}

func TestBus_FiltersByType(t *testing.T) {
	m := newTestManager()

	var all, trades []EventType
	m.Bus().Subscribe(func(e *Event) { all = append(all, e.Type) })
	unsubscribe := m.Bus().Subscribe(func(e *Event) { trades = append(trades, e.Type) }, TradeCreated)

	m.Emit("trading", &TradeCreatedData{TradeID: 1})
	m.Emit("receipts", &ReceiptData{Type: ReceiptDeleted, ReceiptID: 2})

	assert.Equal(t, []EventType{TradeCreated, ReceiptDeleted}, all)
	assert.Equal(t, []EventType{TradeCreated}, trades)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, m.Bus().SubscriberCount())

	m.Emit("trading", &TradeCreatedData{TradeID: 3})
	assert.Len(t, trades, 1)
}

func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	m := newTestManager()

	var got int
	m.Bus().Subscribe(func(*Event) { panic("boom") })
	m.Bus().Subscribe(func(*Event) { got++ })

	assert.NotPanics(t, func() {
		m.Emit("trading", &TradeCreatedData{})
	})
	assert.Equal(t, 1, got)
}

func TestManager_StampsEvents(t *testing.T) {
	m := newTestManager()

	var got *Event
	m.Bus().Subscribe(func(e *Event) { got = e })
	m.Emit("settlement", &SettlementReprocessedData{Receipts: 3})

	require.NotNil(t, got)
	assert.Equal(t, "evt-1", got.ID)
	assert.Equal(t, SettlementReprocessed, got.Type)
	assert.Equal(t, "settlement", got.Module)
	assert.False(t, got.Timestamp.IsZero())

	var nilManager *Manager
	assert.NotPanics(t, func() { nilManager.Emit("x", &TradeCreatedData{}) })
}

func TestReceiptDataEventType(t *testing.T) {
	assert.Equal(t, ReceiptCreated, (&ReceiptData{}).EventType())
	assert.Equal(t, ReceiptRestored, (&ReceiptData{Type: ReceiptRestored}).EventType())
}

func TestEncodeEvent(t *testing.T) {
	event := &Event{
		ID:        "evt-9",
		Type:      TradeCreated,
		Module:    "trading",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Data:      &TradeCreatedData{TradeID: 9, TradeNumber: "T-000009", Amount: "1000.50"},
	}

	payload, err := EncodeEvent(event)
	require.NoError(t, err)

	var decoded struct {
		Timestamp time.Time              `msgpack:"timestamp"`
		Data      map[string]interface{} `msgpack:"data"`
		ID        string                 `msgpack:"id"`
		Type      string                 `msgpack:"type"`
	}
	require.NoError(t, msgpack.Unmarshal(payload, &decoded))
	assert.Equal(t, "evt-9", decoded.ID)
	assert.Equal(t, "TRADE_CREATED", decoded.Type)
	assert.True(t, decoded.Timestamp.Equal(event.Timestamp))
	assert.Equal(t, "T-000009", decoded.Data["trade_number"])
	assert.Equal(t, "1000.50", decoded.Data["amount"])
}

type recordingWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, msgs...)
	return w.err
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestKafkaSink_DeliversAndDrainsOnClose(t *testing.T) {
	writer := &recordingWriter{}
	sink := NewKafkaSink(writer, zerolog.Nop())
	sink.Start(context.Background())

	m := newTestManager()
	m.Bus().Subscribe(sink.Handle)
	m.Emit("trading", &TradeCreatedData{TradeID: 1})
	m.Emit("receipts", &ReceiptData{ReceiptID: 4})

	require.NoError(t, sink.Close())

	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.True(t, writer.closed)
	require.Len(t, writer.messages, 2)
	assert.Equal(t, "TRADE_CREATED", string(writer.messages[0].Key))
	assert.Equal(t, "RECEIPT_CREATED", string(writer.messages[1].Key))
	assert.Equal(t, "evt-1", string(writer.messages[0].Headers[0].Value))
}

func TestKafkaSink_WriteErrorsAreLogged(t *testing.T) {
	writer := &recordingWriter{err: errors.New("broker down")}
	sink := NewKafkaSink(writer, zerolog.Nop())
	sink.Start(context.Background())

	sink.Handle(&Event{ID: "evt-1", Type: TradeCreated, Data: &TradeCreatedData{}})
	require.NoError(t, sink.Close())

	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.Len(t, writer.messages, 1)
}

func TestKafkaSink_HandleAfterCloseIsDropped(t *testing.T) {
	writer := &recordingWriter{}
	sink := NewKafkaSink(writer, zerolog.Nop())
	sink.Start(context.Background())
	require.NoError(t, sink.Close())

	assert.NotPanics(t, func() {
		sink.Handle(&Event{ID: "evt-late", Type: TradeCreated, Data: &TradeCreatedData{}})
	})
	// A second Close is harmless
	require.NoError(t, sink.Close())

	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.Empty(t, writer.messages)
}
