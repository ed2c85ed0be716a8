package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
	RecordRelayDelivery("nats", 7, true)
	RecordObservedEvent("flight.registered", false)
	SetJournalHead(3)

	assert.Equal(t, float64(3), testutil.ToFloat64(journalHead))
	assert.Equal(t, float64(7), testutil.ToFloat64(relayCursor.WithLabelValues("nats")))
}

func TestRecordOperationCountsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(operations.WithLabelValues("register_flight", "ok"))

	RecordOperation("register_flight", "ok", time.Millisecond)
	RecordOperation("register_flight", "ok", time.Millisecond)
	RecordOperation("register_flight", "error", time.Millisecond)

	assert.Equal(t, before+2, testutil.ToFloat64(operations.WithLabelValues("register_flight", "ok")))
}

func TestInitLoggerFallsBackToInfo(t *testing.T) {
	logger := InitLogger("test", "nonsense", "json")
	assert.Equal(t, "info", logger.GetLevel().String())

	logger = InitLogger("test", "debug", "console")
	assert.Equal(t, "debug", logger.GetLevel().String())
}
