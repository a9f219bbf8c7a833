// Package metrics records per-run ingestion counters on a private Prometheus
// registry and optionally pushes them to a Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	namespace = "event_pipeline"
	jobName   = "event_pipeline"
)

// Record outcomes.
const (
	OutcomeExtracted    = "extracted"
	OutcomeInvalid      = "invalid"
	OutcomeDuplicate    = "duplicate"
	OutcomeInserted     = "inserted"
	OutcomeInsertFailed = "insert_failed"
)

// Recorder holds the counters of one command invocation. A nil *Recorder is a
// valid no-op.
type Recorder struct {
	registry    *prometheus.Registry
	records     *prometheus.CounterVec
	failedPages *prometheus.CounterVec
	duration    *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Candidate event records by source and outcome.",
		}, []string{"source", "outcome"}),
		failedPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_pages_total",
			Help:      "Source pages that failed outright.",
		}, []string{"source"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run of a command.",
		}, []string{"command"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without a fatal error.",
		}),
	}
	registry.MustRegister(r.records, r.failedPages, r.duration, r.lastSuccess)
	return r
}

func (r *Recorder) AddRecords(source, outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.records.WithLabelValues(source, outcome).Add(float64(n))
}

func (r *Recorder) PageFailed(source string) {
	if r == nil {
		return
	}
	r.failedPages.WithLabelValues(source).Inc()
}

func (r *Recorder) ObserveRun(command string, took time.Duration, finishedAt time.Time, ok bool) {
	if r == nil {
		return
	}
	r.duration.WithLabelValues(command).Set(took.Seconds())
	if ok {
		r.lastSuccess.Set(float64(finishedAt.Unix()))
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Push sends every metric to the Pushgateway at gatewayURL, grouped by command.
// An empty gatewayURL does nothing.
func (r *Recorder) Push(ctx context.Context, gatewayURL, command string) error {
	if r == nil || strings.TrimSpace(gatewayURL) == "" {
		return nil
	}
	err := push.New(strings.TrimSpace(gatewayURL), jobName).
		Gatherer(r.registry).
		Grouping("command", command).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
