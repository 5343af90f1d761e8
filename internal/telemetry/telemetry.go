// Package telemetry exposes prometheus collectors for run outcomes, stage
// latency, token usage and cost.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ramin-sadeghi/briefer/config"
)

type Telemetry struct {
	cfg      config.TelemetryConfig
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	stageDuration *prometheus.HistogramVec
	llmTokens     *prometheus.CounterVec
	llmCost       *prometheus.CounterVec
	storeFailures *prometheus.CounterVec
}

// NewTelemetry builds a telemetry instance with its own registry so that
// multiple instances (tests, embedded use) never collide.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	reg := prometheus.NewRegistry()
	t := &Telemetry{
		cfg:      cfg,
		registry: reg,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefer_runs_total",
			Help: "Completed runs by final status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "briefer_run_duration_seconds",
			Help:    "End-to-end run duration.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "briefer_stage_duration_seconds",
			Help:    "Per-stage execution duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"stage"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefer_llm_tokens_total",
			Help: "LLM tokens consumed by direction.",
		}, []string{"direction"}),
		llmCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefer_llm_cost_usd_total",
			Help: "Estimated LLM spend by model.",
		}, []string{"model"}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefer_context_store_failures_total",
			Help: "Context store failures by operation.",
		}, []string{"op"}),
	}
	reg.MustRegister(t.runsTotal, t.runDuration, t.stageDuration, t.llmTokens, t.llmCost, t.storeFailures)
	return t
}

// Handler serves this instance's metrics.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *Telemetry) enabled() bool { return t != nil && t.cfg.Enabled }

func (t *Telemetry) RecordRun(status string, d time.Duration) {
	if !t.enabled() {
		return
	}
	t.runsTotal.WithLabelValues(status).Inc()
	t.runDuration.Observe(d.Seconds())
}

func (t *Telemetry) ObserveStage(stage string, d time.Duration) {
	if !t.enabled() {
		return
	}
	t.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (t *Telemetry) AddTokens(promptTokens, completionTokens int64) {
	if !t.enabled() {
		return
	}
	t.llmTokens.WithLabelValues("prompt").Add(float64(promptTokens))
	t.llmTokens.WithLabelValues("completion").Add(float64(completionTokens))
}

func (t *Telemetry) AddCost(model string, usd float64) {
	if !t.enabled() || !t.cfg.CostTracking {
		return
	}
	t.llmCost.WithLabelValues(model).Add(usd)
}

func (t *Telemetry) RecordStoreFailure(op string) {
	if !t.enabled() {
		return
	}
	t.storeFailures.WithLabelValues(op).Inc()
}
