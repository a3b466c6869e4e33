package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics tracks record storage and the outbound event backlog.
type StoreMetrics struct {
	recordsCreated *prometheus.CounterVec
	outboxBacklog  prometheus.Gauge
	outboxOldest   prometheus.Gauge
	relayPublished *prometheus.CounterVec
}

var (
	storeMetricsOnce sync.Once
	storeMetrics     *StoreMetrics
)

func Store() *StoreMetrics {
	return StoreWithConfig(Config{})
}

func StoreWithConfig(cfg Config) *StoreMetrics {
	storeMetricsOnce.Do(func() {
		storeMetrics = newStoreMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return storeMetrics
}

func ResetStoreMetricsForTest() {
	storeMetricsOnce = sync.Once{}
	storeMetrics = nil
}

func newStoreMetrics(registerer prometheus.Registerer, cfg Config) *StoreMetrics {
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

	recordsCreated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "srs_records_created_total",
			Help:        "Total source records created by record type.",
			ConstLabels: constLabels,
		},
		[]string{"record_type"},
	)

	outboxBacklog := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "srs_outbox_backlog_total",
			Help:        "Number of outbound events awaiting publication.",
			ConstLabels: constLabels,
		},
	)

	outboxOldest := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "srs_outbox_oldest_pending_seconds",
			Help:        "Age of the oldest outbound event awaiting publication.",
			ConstLabels: constLabels,
		},
	)

	relayPublished := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "srs_outbox_published_total",
			Help:        "Total outbox rows delivered to the event stream.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // published | dropped
	)

	registerer.MustRegister(
		recordsCreated,
		outboxBacklog,
		outboxOldest,
		relayPublished,
	)

	return &StoreMetrics{
		recordsCreated: recordsCreated,
		outboxBacklog:  outboxBacklog,
		outboxOldest:   outboxOldest,
		relayPublished: relayPublished,
	}
}

func (m *StoreMetrics) IncRecordsCreated(recordType string) {
	if m == nil {
		return
	}
	m.recordsCreated.WithLabelValues(recordType).Inc()
}

func (m *StoreMetrics) SetOutboxBacklog(value int) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(float64(value))
}

func (m *StoreMetrics) SetOutboxOldest(age time.Duration) {
	if m == nil {
		return
	}
	seconds := age.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.outboxOldest.Set(seconds)
}

func (m *StoreMetrics) IncRelayPublished(result string) {
	if m == nil {
		return
	}
	m.relayPublished.WithLabelValues(result).Inc()
}
