package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type EnvelopeError string

const (
	EnvelopeErrorParse    EnvelopeError = "parse"
	EnvelopeErrorHandling EnvelopeError = "handling"
)

const GridIngesterMetricsPrefix = "grid_ingester_"

type Metrics struct {
	taskRuns         *prometheus.CounterVec
	taskFailures     *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	envelopesHandled *prometheus.CounterVec
	envelopesDropped prometheus.Counter
	envelopeErrors   *prometheus.CounterVec
	transportErrors  prometheus.Counter
}

func NewMetrics(prefix string) *Metrics {
	return &Metrics{
		taskRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "task_runs",
			Help: "Number of poll task executions grouped by task name",
		}, []string{"task"}),
		taskFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "task_failures",
			Help: "Number of failed poll task executions grouped by task name",
		}, []string{"task"}),
		taskDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "task_duration_seconds",
			Help:    "Poll task execution time in seconds grouped by task name",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}, []string{"task"}),
		envelopesHandled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "envelopes_handled",
			Help: "Number of push feed envelopes dispatched grouped by message type",
		}, []string{"type"}),
		envelopesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: prefix + "envelopes_dropped",
			Help: "Number of push feed envelopes with no registered handler",
		}),
		envelopeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "envelope_errors",
			Help: "Number of push feed envelope failures grouped by error type",
		}, []string{"error"}),
		transportErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: prefix + "feed_transport_errors",
			Help: "Number of transport level errors reported by the push feed connection",
		}),
	}
}

func (m *Metrics) RecordTaskRun(task string, duration time.Duration, err error) {
	m.taskRuns.WithLabelValues(task).Inc()
	m.taskDuration.WithLabelValues(task).Observe(duration.Seconds())
	if err != nil {
		m.taskFailures.WithLabelValues(task).Inc()
	}
}

func (m *Metrics) RecordEnvelopeHandled(messageType string) {
	m.envelopesHandled.WithLabelValues(messageType).Inc()
}

func (m *Metrics) RecordEnvelopeDropped() {
	m.envelopesDropped.Inc()
}

func (m *Metrics) RecordEnvelopeError(errorType EnvelopeError) {
	m.envelopeErrors.WithLabelValues(string(errorType)).Inc()
}

func (m *Metrics) RecordTransportError() {
	m.transportErrors.Inc()
}

var m = NewMetrics(GridIngesterMetricsPrefix)

// Get returns the process-wide metrics instance. Metrics are registered against the
// default prometheus registry, so there can only be one.
func Get() *Metrics {
	return m
}
