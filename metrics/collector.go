// Package metrics exposes reconciliation measurements to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics of a shell. It implements
// appshell.MetricsRecorder.
type Collector struct {
	PassesTotal      *prometheus.CounterVec
	PassDuration     *prometheus.HistogramVec
	TransitionsTotal *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	MountedApps      prometheus.Gauge

	// snapshot mirrors the gauges and counters for JSON consumers
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for callers that do not scrape Prometheus.
type Snapshot struct {
	Passes         int64 `json:"passes"`
	FailedPasses   int64 `json:"failedPasses"`
	Transitions    int64 `json:"transitions"`
	FailedActions  int64 `json:"failedTransitions"`
	QueueDepth     int64 `json:"queueDepth"`
	MountedApps    int64 `json:"mountedApps"`
	LastPassMillis int64 `json:"lastPassMillis"`
}

// NewCollector registers the shell metrics with reg. A nil reg uses the
// default Prometheus registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		PassesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appshell_passes_total",
				Help: "Total number of reconciliation passes",
			},
			[]string{"mode", "result"},
		),
		PassDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appshell_pass_duration_seconds",
				Help:    "Reconciliation pass duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appshell_transitions_total",
				Help: "Total number of lifecycle transitions",
			},
			[]string{"action", "result"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "appshell_trigger_queue_depth",
				Help: "Triggers waiting for the running pass to finish",
			},
		),
		MountedApps: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "appshell_mounted_apps",
				Help: "Number of mounted applications after the last pass",
			},
		),
	}
}

// ObservePass records one settled pass.
func (c *Collector) ObservePass(mode, result string, duration time.Duration) {
	c.PassesTotal.WithLabelValues(mode, result).Inc()
	c.PassDuration.WithLabelValues(mode).Observe(duration.Seconds())

	c.mu.Lock()
	c.snapshot.Passes++
	if result != "success" {
		c.snapshot.FailedPasses++
	}
	c.snapshot.LastPassMillis = duration.Milliseconds()
	c.mu.Unlock()
}

// ObserveTransition records one finished lifecycle transition.
func (c *Collector) ObserveTransition(action, result string) {
	c.TransitionsTotal.WithLabelValues(action, result).Inc()

	c.mu.Lock()
	c.snapshot.Transitions++
	if result != "success" {
		c.snapshot.FailedActions++
	}
	c.mu.Unlock()
}

// SetQueueDepth records the number of queued triggers.
func (c *Collector) SetQueueDepth(depth int) {
	c.QueueDepth.Set(float64(depth))

	c.mu.Lock()
	c.snapshot.QueueDepth = int64(depth)
	c.mu.Unlock()
}

// SetMounted records the size of the mounted set.
func (c *Collector) SetMounted(count int) {
	c.MountedApps.Set(float64(count))

	c.mu.Lock()
	c.snapshot.MountedApps = int64(count)
	c.mu.Unlock()
}

// Snapshot returns the current values.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}
