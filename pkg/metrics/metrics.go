// Package metrics exposes scan and spray counters for Prometheus scraping.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry. A nil *Collector is valid and records
// nothing, so callers never need to check.
type Collector struct {
	registry *prometheus.Registry

	attacksTotal  *prometheus.CounterVec
	findingsTotal *prometheus.CounterVec
	strategyFails *prometheus.CounterVec
	scansTotal    *prometheus.CounterVec
	scansRunning  prometheus.Gauge
	attemptsTotal *prometheus.CounterVec
	attemptTime   *prometheus.HistogramVec
}

func NewCollector() (*Collector, error) {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.attacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authfuzz_attacks_total",
		Help: "Matrix work units executed, by strategy and whether the strategy applied",
	}, []string{"strategy", "applicable"})

	c.findingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authfuzz_findings_total",
		Help: "Positive detections by vulnerability kind and severity",
	}, []string{"vulnerability", "severity"})

	c.strategyFails = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authfuzz_strategy_failures_total",
		Help: "Strategy runs that failed and were absorbed",
	}, []string{"strategy"})

	c.scansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authfuzz_scans_total",
		Help: "Scans that reached a terminal state",
	}, []string{"status"})

	c.scansRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "authfuzz_scans_running",
		Help: "Scans currently running",
	})

	c.attemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authfuzz_spray_attempts_total",
		Help: "Spray attempts by mode and outcome",
	}, []string{"mode", "ok"})

	c.attemptTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authfuzz_spray_attempt_seconds",
		Help:    "Spray attempt duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	for _, col := range []prometheus.Collector{
		c.attacksTotal, c.findingsTotal, c.strategyFails,
		c.scansTotal, c.scansRunning, c.attemptsTotal, c.attemptTime,
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return c, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) WorkUnit(strategy string, applicable bool) {
	if c == nil {
		return
	}
	c.attacksTotal.WithLabelValues(strategy, strconv.FormatBool(applicable)).Inc()
}

func (c *Collector) Finding(vulnerability, severity string) {
	if c == nil {
		return
	}
	c.findingsTotal.WithLabelValues(vulnerability, severity).Inc()
}

func (c *Collector) StrategyFailed(strategy string) {
	if c == nil {
		return
	}
	c.strategyFails.WithLabelValues(strategy).Inc()
}

func (c *Collector) ScanStarted() {
	if c == nil {
		return
	}
	c.scansRunning.Inc()
}

func (c *Collector) ScanEnded(status string) {
	if c == nil {
		return
	}
	c.scansRunning.Dec()
	c.scansTotal.WithLabelValues(status).Inc()
}

func (c *Collector) Attempt(mode string, ok bool, seconds float64) {
	if c == nil {
		return
	}
	c.attemptsTotal.WithLabelValues(mode, strconv.FormatBool(ok)).Inc()
	c.attemptTime.WithLabelValues(mode).Observe(seconds)
}
