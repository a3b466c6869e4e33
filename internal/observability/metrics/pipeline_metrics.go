package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	ServiceName string
	Environment string
}

// PipelineMetrics tracks the data-import consumer loop.
type PipelineMetrics struct {
	eventsInFlight  prometheus.Gauge
	eventsProcessed *prometheus.CounterVec
	handleDuration  *prometheus.HistogramVec
	intakePaused    prometheus.Counter
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pipelineMetrics
}

func ResetPipelineMetricsForTest() {
	pipelineMetricsOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "srs"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	eventsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "srs_data_import_events_in_flight",
			Help:        "Number of data-import payloads currently being handled.",
			ConstLabels: constLabels,
		},
	)

	eventsProcessed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "srs_data_import_events_processed_total",
			Help:        "Total data-import payloads processed.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // handled | error | skipped
	)

	handleDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "srs_data_import_handle_duration_seconds",
			Help:        "Time spent inside event handlers per consumed event type.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			ConstLabels: constLabels,
		},
		[]string{"event_type"},
	)

	intakePaused := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "srs_data_import_intake_paused_total",
			Help:        "Times intake paused because the load ceiling was reached.",
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(
		eventsInFlight,
		eventsProcessed,
		handleDuration,
		intakePaused,
	)

	return &PipelineMetrics{
		eventsInFlight:  eventsInFlight,
		eventsProcessed: eventsProcessed,
		handleDuration:  handleDuration,
		intakePaused:    intakePaused,
	}
}

func (m *PipelineMetrics) IncInFlight() {
	if m == nil {
		return
	}
	m.eventsInFlight.Inc()
}

func (m *PipelineMetrics) DecInFlight() {
	if m == nil {
		return
	}
	m.eventsInFlight.Dec()
}

func (m *PipelineMetrics) IncProcessed(result string) {
	if m == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) ObserveHandleDuration(eventType string, d time.Duration) {
	if m == nil {
		return
	}
	m.handleDuration.WithLabelValues(eventType).Observe(d.Seconds())
}

func (m *PipelineMetrics) IncIntakePaused() {
	if m == nil {
		return
	}
	m.intakePaused.Inc()
}
