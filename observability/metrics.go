package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics bundles the collectors tracking ledger operation health and
// the pool/supply accounting gauges.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	payouts    prometheus.Histogram
	pool       prometheus.Gauge
	supply     prometheus.Gauge
	paused     prometheus.Gauge
}

// RPCMetrics bundles the collectors recording JSON-RPC traffic.
type RPCMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics

	rpcMetricsOnce sync.Once
	rpcRegistry    *RPCMetrics
)

// Ledger returns the lazily-initialised metrics registry for ledger
// operations.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "littercoin",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Count of ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "littercoin",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			payouts: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "littercoin",
				Subsystem: "ledger",
				Name:      "redemption_payout",
				Help:      "Distribution of redemption payout amounts in integer value units.",
				Buckets:   prometheus.ExponentialBuckets(1, 10, 12),
			}),
			pool: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "littercoin",
				Subsystem: "ledger",
				Name:      "pool_balance",
				Help:      "Current pooled collateral backing outstanding coins, in integer value units.",
			}),
			supply: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "littercoin",
				Subsystem: "ledger",
				Name:      "outstanding_supply",
				Help:      "Number of coins currently in existence.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "littercoin",
				Subsystem: "ledger",
				Name:      "pause_engaged",
				Help:      "Indicates whether coin operations are paused (1) or running (0).",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.latency,
			ledgerRegistry.payouts,
			ledgerRegistry.pool,
			ledgerRegistry.supply,
			ledgerRegistry.paused,
		)
	})
	return ledgerRegistry
}

// Observe records the outcome and duration of a ledger operation.
func (m *LedgerMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// ObservePayout records the size of a completed redemption payout.
func (m *LedgerMetrics) ObservePayout(amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	m.payouts.Observe(bigToFloat(amount))
}

// SetPool updates the pool balance gauge.
func (m *LedgerMetrics) SetPool(balance *big.Int) {
	if m == nil {
		return
	}
	m.pool.Set(bigToFloat(balance))
}

// SetSupply updates the outstanding supply gauge.
func (m *LedgerMetrics) SetSupply(supply uint64) {
	if m == nil {
		return
	}
	m.supply.Set(float64(supply))
}

// SetPaused toggles the pause gauge.
func (m *LedgerMetrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}

// RPC returns the lazily-initialised metrics registry for the JSON-RPC
// server.
func RPC() *RPCMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "littercoin",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "littercoin",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "littercoin",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of a JSON-RPC request.
func (m *RPCMetrics) Observe(method string, duration time.Duration, ok bool) {
	if m == nil {
		return
	}
	if method = strings.TrimSpace(method); method == "" {
		method = "unknown"
	}
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied reason.
// Reasons should be stable strings such as "rate_limit" so dashboards stay
// consistent.
func (m *RPCMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
