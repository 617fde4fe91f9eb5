package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flashliquidity"

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// FlashLoanMetrics tracks engine operations and pool state.
type FlashLoanMetrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	totalStaked prometheus.Gauge
	activeLoans prometheus.Gauge
	feesAccrued prometheus.Gauge
	subscribers prometheus.Gauge
	journalErrs prometheus.Counter
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	flashLoanOnce     sync.Once
	flashLoanRegistry *FlashLoanMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// handler activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by module, route and outcome.",
			}, []string{"module", "route", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total HTTP errors segmented by module, route and status code.",
			}, []string{"module", "route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by rate limiting.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	module = normalise(module)
	route = normalise(route)
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(module, route, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(module, route, outcome).Inc()
	m.latency.WithLabelValues(module, route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(normalise(module), normalise(reason)).Inc()
}

// FlashLoan returns the engine metrics registry.
func FlashLoan() *FlashLoanMetrics {
	flashLoanOnce.Do(func() {
		flashLoanRegistry = &FlashLoanMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations segmented by operation and result code.",
			}, []string{"op", "code"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Time spent committing engine operations.",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			}, []string{"op"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "total_staked",
				Help:      "Ledger credit staked across all positions, in base units.",
			}),
			activeLoans: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "active_loan_total",
				Help:      "Outstanding principal across active loans, in base units.",
			}),
			feesAccrued: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "accrued_fees",
				Help:      "Fees and penalties accrued by the pool, in base units.",
			}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "subscribers",
				Help:      "Connected event stream subscribers.",
			}),
			journalErrs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "journal_failures_total",
				Help:      "Events that could not be written to the journal.",
			}),
		}
		prometheus.MustRegister(
			flashLoanRegistry.operations,
			flashLoanRegistry.duration,
			flashLoanRegistry.totalStaked,
			flashLoanRegistry.activeLoans,
			flashLoanRegistry.feesAccrued,
			flashLoanRegistry.subscribers,
			flashLoanRegistry.journalErrs,
		)
	})
	return flashLoanRegistry
}

// RecordOperation counts an engine call. An empty code means success.
func (m *FlashLoanMetrics) RecordOperation(op, code string, duration time.Duration) {
	if m == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	op = normalise(op)
	m.operations.WithLabelValues(op, code).Inc()
	m.duration.WithLabelValues(op).Observe(duration.Seconds())
}

// SetPool publishes the latest reward pool totals.
func (m *FlashLoanMetrics) SetPool(totalStaked, activeLoanTotal, accruedFees uint64) {
	if m == nil {
		return
	}
	m.totalStaked.Set(float64(totalStaked))
	m.activeLoans.Set(float64(activeLoanTotal))
	m.feesAccrued.Set(float64(accruedFees))
}

// AddSubscribers adjusts the event stream subscriber gauge.
func (m *FlashLoanMetrics) AddSubscribers(delta int) {
	if m == nil {
		return
	}
	m.subscribers.Add(float64(delta))
}

// RecordJournalFailure counts a dropped journal write.
func (m *FlashLoanMetrics) RecordJournalFailure() {
	if m == nil {
		return
	}
	m.journalErrs.Inc()
}

func normalise(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
