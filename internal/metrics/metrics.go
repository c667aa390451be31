// Package metrics exposes ledger and transport counters on a private
// Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"flatmates/internal/balance"
	"flatmates/internal/core"
	"flatmates/internal/ledger"
)

const namespace = "flatmates"

var _ ledger.Observer = (*Metrics)(nil)

// Metrics holds every collector the services register.
type Metrics struct {
	// Registry owns the collectors below and backs Handler.
	Registry *prometheus.Registry

	ledgerOps       *prometheus.CounterVec
	persistWarnings *prometheus.CounterVec
	netBalance      *prometheus.GaugeVec
	expenseCount    prometheus.Gauge
	requestDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	syncRuns        *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, so it is safe to call
// more than once in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		ledgerOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_operations_total",
				Help:      "Ledger mutations by operation and result.",
			},
			[]string{"op", "result"},
		),
		persistWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persistence_warnings_total",
				Help:      "Failed snapshot loads and saves by backend.",
			},
			[]string{"backend", "op"},
		),
		netBalance: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "net_balance",
				Help:      "Paid minus fair share per party at the last balance computation.",
			},
			[]string{"party"},
		),
		expenseCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "expenses",
				Help:      "Number of expenses at the last balance computation.",
			},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route and status.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Derived-view cache lookups by cache and outcome.",
			},
			[]string{"cache", "outcome"},
		),
		syncRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Mirror sync attempts by trigger and result.",
			},
			[]string{"trigger", "result"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// LedgerMutated counts a ledger operation.
func (m *Metrics) LedgerMutated(op string, err error) {
	m.ledgerOps.WithLabelValues(op, result(err)).Inc()
}

// PersistFailed counts a persistence warning.
func (m *Metrics) PersistFailed(w *core.PersistenceWarning) {
	m.persistWarnings.WithLabelValues(w.Backend, w.Op).Inc()
}

// ObserveSummary publishes the net balances of a freshly computed summary.
func (m *Metrics) ObserveSummary(s balance.Summary) {
	m.netBalance.WithLabelValues(core.PartySharath.String()).Set(s.NetA)
	m.netBalance.WithLabelValues(core.PartyThejas.String()).Set(s.NetB)
	m.expenseCount.Set(float64(s.Count))
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requestDuration.WithLabelValues(method, route, statusClass(status)).Observe(d.Seconds())
}

// CacheLookup counts a hit or a miss.
func (m *Metrics) CacheLookup(cache string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, outcome).Inc()
}

// SyncRun counts a mirror sync triggered by a message or the periodic check.
func (m *Metrics) SyncRun(trigger string, err error) {
	m.syncRuns.WithLabelValues(trigger, result(err)).Inc()
}

// LedgerOps returns the current counter value, mainly for tests and the
// readiness payload.
func (m *Metrics) LedgerOps(op, res string) float64 {
	return counterValue(m.ledgerOps, op, res)
}

// PersistWarnings returns the warning count for a backend and operation.
func (m *Metrics) PersistWarnings(backend, op string) float64 {
	return counterValue(m.persistWarnings, backend, op)
}

// CacheLookups returns the hit or miss count of a cache.
func (m *Metrics) CacheLookups(cache, outcome string) float64 {
	return counterValue(m.cacheLookups, cache, outcome)
}

// SyncRuns returns the sync attempt count for a trigger and result.
func (m *Metrics) SyncRuns(trigger, res string) float64 {
	return counterValue(m.syncRuns, trigger, res)
}

// NetBalance returns the last published net balance of a party.
func (m *Metrics) NetBalance(p core.Party) float64 {
	g := m.netBalance.WithLabelValues(p.String())
	var out dto.Metric
	if err := g.Write(&out); err != nil || out.Gauge == nil {
		return 0
	}
	return out.Gauge.GetValue()
}

func counterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	var out dto.Metric
	if err := cv.WithLabelValues(labels...).Write(&out); err != nil || out.Counter == nil {
		return 0
	}
	return out.Counter.GetValue()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
