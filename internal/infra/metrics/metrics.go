// Package metrics provides Prometheus metrics for the broker and model
// runtime processes: incstep progress, queue depths, validation failures,
// and watchdog trips, adapted from the teacher's internal/infra/metrics
// (promauto counters/gauges/histograms namespaced under the module name).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "incstep"

// ─── Incstep progress ──────────────────────────────────────────────────────

// Incstep tracks the current increment step of the process reporting it
// (the broker, or a model's own view of its step).
var Incstep = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "incstep_current",
	Help:      "Current increment step.",
}, []string{"source"})

// IncrementsCompleted counts increments this process has finished.
var IncrementsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "increments_completed_total",
	Help:      "Total increments completed.",
}, []string{"source"})

// IncrementDuration tracks how long a model's increment() call takes.
var IncrementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "increment_duration_seconds",
	Help:      "Duration of a single increment call.",
	Buckets:   prometheus.DefBuckets,
}, []string{"source"})

// ─── Queues ─────────────────────────────────────────────────────────────────

// QueueDepth tracks the current length of an internal queue.
var QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "queue_depth",
	Help:      "Current depth of an internal queue.",
}, []string{"source", "queue"})

// ─── Validation ─────────────────────────────────────────────────────────────

// SchemaValidationFailures counts payloads that failed schema validation.
var SchemaValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "schema_validation_failures_total",
	Help:      "Total schema validation failures.",
}, []string{"source", "schema"})

// DuplicateSchemaMatches counts fatal duplicate-match events (spec §4.3).
var DuplicateSchemaMatches = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "duplicate_schema_matches_total",
	Help:      "Total duplicate schema match failures.",
}, []string{"source", "schema"})

// TranslationFailures counts translator NoTranslationPath/ambiguous-parent
// errors (spec §7 "Translation failures").
var TranslationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "translation_failures_total",
	Help:      "Total fatal translation failures.",
}, []string{"source", "variable"})

// ─── Liveness ───────────────────────────────────────────────────────────────

// WatchdogTrips counts watchdog-triggered shutdowns.
var WatchdogTrips = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "watchdog_trips_total",
	Help:      "Total watchdog-triggered shutdowns.",
}, []string{"source"})

// ModelsReporting tracks how many declared models are in the broker's
// current tracker window.
var ModelsReporting = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "models_reporting",
	Help:      "Number of declared models that have reported in the current window.",
})

// BrokerStatus tracks the broker's own lifecycle status as a label, set to
// 1 on the active label and 0 on the rest.
var BrokerStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "broker_status",
	Help:      "Broker lifecycle status (1=active label, 0=others).",
}, []string{"status"})
