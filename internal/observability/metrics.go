package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surety",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "surety",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surety",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by outcome.",
		},
		[]string{"op", "outcome"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "surety",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation duration in seconds, journal write included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	journalHead = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "surety",
			Subsystem: "journal",
			Name:      "head",
			Help:      "Sequence number of the last journaled command.",
		},
	)
	relayDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surety",
			Subsystem: "relay",
			Name:      "deliveries_total",
			Help:      "Event batches delivered to sinks.",
		},
		[]string{"sink", "success"},
	)
	relayCursor = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "surety",
			Subsystem: "relay",
			Name:      "cursor",
			Help:      "Last event seq acknowledged by each sink.",
		},
		[]string{"sink"},
	)
	observedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surety",
			Subsystem: "observer",
			Name:      "events_total",
			Help:      "Events received by the observer.",
		},
		[]string{"type", "duplicate"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			operations, operationDuration, journalHead,
			relayDeliveries, relayCursor,
			observedEvents,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordOperation counts one ledger call. outcome is "ok", "benign" or
// "error".
func RecordOperation(op, outcome string, duration time.Duration) {
	RegisterMetrics()
	operations.WithLabelValues(op, outcome).Inc()
	operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func SetJournalHead(seq uint64) {
	RegisterMetrics()
	journalHead.Set(float64(seq))
}

func RecordRelayDelivery(sink string, cursor uint64, success bool) {
	RegisterMetrics()
	relayDeliveries.WithLabelValues(sink, strconv.FormatBool(success)).Inc()
	relayCursor.WithLabelValues(sink).Set(float64(cursor))
}

func RecordObservedEvent(eventType string, duplicate bool) {
	RegisterMetrics()
	observedEvents.WithLabelValues(eventType, strconv.FormatBool(duplicate)).Inc()
}
