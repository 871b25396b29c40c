// Package metrics exposes Prometheus instrumentation for a pgwire Pool:
// active/idle/waiting session gauges, connect and query duration
// histograms, a pool-exhausted counter, and a transactions counter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics for one Pool. Safe to call
// multiple times (e.g. in tests) — each call creates an independent
// registry.
type Collector struct {
	Registry *prometheus.Registry

	sessionsActive  prometheus.Gauge
	sessionsIdle    prometheus.Gauge
	sessionsWaiting prometheus.Gauge
	connectDuration prometheus.Histogram
	poolExhausted   prometheus.Counter
	queryDuration   *prometheus.HistogramVec
	transactions    *prometheus.CounterVec
}

// New creates and registers the pool metrics under a custom registry,
// labeled with poolName (e.g. a connection_template's database name).
func New(poolName string) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pgwire_pool_sessions_active",
			Help:        "Number of sessions currently checked out of the pool",
			ConstLabels: prometheus.Labels{"pool": poolName},
		}),
		sessionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pgwire_pool_sessions_idle",
			Help:        "Number of idle sessions available in the pool",
			ConstLabels: prometheus.Labels{"pool": poolName},
		}),
		sessionsWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pgwire_pool_sessions_waiting",
			Help:        "Number of goroutines suspended in Pool.Connect",
			ConstLabels: prometheus.Labels{"pool": poolName},
		}),
		connectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "pgwire_pool_connect_duration_seconds",
			Help:        "Time spent in Pool.Connect, including any suspension",
			Buckets:     prometheus.ExponentialBuckets(0.0001, 2, 16),
			ConstLabels: prometheus.Labels{"pool": poolName},
		}),
		poolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pgwire_pool_exhausted_total",
			Help:        "Number of times Connect had to suspend for a released session",
			ConstLabels: prometheus.Labels{"pool": poolName},
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pgwire_query_duration_seconds",
			Help:        "Duration of a single query (simple or extended)",
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 16),
			ConstLabels: prometheus.Labels{"pool": poolName},
		}, []string{"mode"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pgwire_transactions_total",
			Help:        "Completed transactions by outcome",
			ConstLabels: prometheus.Labels{"pool": poolName},
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.sessionsActive, c.sessionsIdle, c.sessionsWaiting,
		c.connectDuration, c.poolExhausted, c.queryDuration, c.transactions,
	)
	return c
}

// UpdatePoolStats sets the pool gauges from a point-in-time snapshot.
func (c *Collector) UpdatePoolStats(active, idle, waiting int) {
	c.sessionsActive.Set(float64(active))
	c.sessionsIdle.Set(float64(idle))
	c.sessionsWaiting.Set(float64(waiting))
}

// ConnectDuration observes a Pool.Connect call's total latency.
func (c *Collector) ConnectDuration(d time.Duration) {
	c.connectDuration.Observe(d.Seconds())
}

// PoolExhausted increments the exhaustion counter.
func (c *Collector) PoolExhausted() {
	c.poolExhausted.Inc()
}

// QueryDuration observes one query's duration, labeled by mode ("simple"
// or "extended").
func (c *Collector) QueryDuration(mode string, d time.Duration) {
	c.queryDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// TransactionCompleted increments the transaction counter for the given
// outcome ("committed", "rolled_back", "failed").
func (c *Collector) TransactionCompleted(outcome string) {
	c.transactions.WithLabelValues(outcome).Inc()
}
