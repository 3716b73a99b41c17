// Package metrics exposes Prometheus counters and histograms for ledger activity.
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the ledger's collectors and the registry they are registered on
type Metrics struct {
	registry              *prometheus.Registry
	tradesCreated         *prometheus.CounterVec
	receiptActions        *prometheus.CounterVec
	journalEntries        *prometheus.CounterVec
	settlementAllocations prometheus.Counter
	reprocessDuration     prometheus.Histogram
	httpRequests          *prometheus.CounterVec
	httpDuration          *prometheus.HistogramVec
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tradesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sarraf",
			Name:      "trades_created_total",
			Help:      "Trades recorded, by trade type",
		}, []string{"type"}),
		receiptActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sarraf",
			Name:      "receipt_actions_total",
			Help:      "Receipt lifecycle actions, by action",
		}, []string{"action"}),
		journalEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sarraf",
			Name:      "journal_entries_total",
			Help:      "Journal entries posted, by entry type",
		}, []string{"entry_type"}),
		settlementAllocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sarraf",
			Name:      "settlement_allocations_total",
			Help:      "Trade settlement allocations recorded",
		}),
		reprocessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sarraf",
			Name:      "settlement_reprocess_duration_seconds",
			Help:      "Duration of full settlement reprocessing",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sarraf",
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sarraf",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration, by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.tradesCreated,
		m.receiptActions,
		m.journalEntries,
		m.settlementAllocations,
		m.reprocessDuration,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) TradeCreated(tradeType string) {
	if m == nil {
		return
	}
	m.tradesCreated.WithLabelValues(tradeType).Inc()
}

func (m *Metrics) ReceiptAction(action string) {
	if m == nil {
		return
	}
	m.receiptActions.WithLabelValues(action).Inc()
}

func (m *Metrics) JournalEntryPosted(entryType string) {
	if m == nil {
		return
	}
	m.journalEntries.WithLabelValues(entryType).Inc()
}

func (m *Metrics) AllocationsRecorded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.settlementAllocations.Add(float64(n))
}

func (m *Metrics) ReprocessObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.reprocessDuration.Observe(d.Seconds())
}

func (m *Metrics) HTTPObserved(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
