package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.TradeCreated("BUY")
		m.ReceiptAction("create")
		m.JournalEntryPosted("PURCHASE")
		m.AllocationsRecorded(3)
		m.ReprocessObserved(time.Second)
		m.HTTPObserved("GET", "/api/trades", 200, time.Millisecond)
	})
}

func TestCounters(t *testing.T) {
	m := New()

	m.TradeCreated("BUY")
	m.TradeCreated("BUY")
	m.TradeCreated("SELL")
	m.AllocationsRecorded(2)
	m.AllocationsRecorded(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tradesCreated.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tradesCreated.WithLabelValues("SELL")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.settlementAllocations))
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.ReceiptAction("delete")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `sarraf_receipt_actions_total{action="delete"} 1`))
}
