package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/flightsurety/pkg/models"
	"github.com/terminal-bench/flightsurety/shared/events"
)

func event(t *testing.T, seq uint64, typ string, data interface{}) events.Event {
	t.Helper()
	e, err := events.NewEvent(events.DeriveID(seq, 0), time.Unix(1700003600, 0), typ, "agg", data, events.Metadata{})
	require.NoError(t, err)
	e.Seq = seq
	return *e
}

func TestPoints(t *testing.T) {
	batch := []events.Event{
		event(t, 1, events.FlightRegistered, events.FlightData{FlightKey: "0xf1"}),
		event(t, 2, events.StatusResolved, events.FlightData{
			FlightKey: "0xf1",
			Name:      "SU100",
			Timestamp: 1700000000,
			Airline:   "0xa1",
			Status:    uint8(models.StatusLateAirline),
		}),
		event(t, 3, events.PayoutCredited, events.InsuranceData{FlightKey: "0xf1", Passenger: "0xb1", Amount: "1.5", Stake: "1"}),
		event(t, 4, events.FundsWithdrawn, events.InsuranceData{Passenger: "0xb1", Amount: "1.5"}),
		event(t, 5, events.AirlineDeposit, events.AirlineData{Airline: "0xa1", Amount: "10", Balance: "10"}),
	}

	points, err := Points(batch)
	require.NoError(t, err)
	require.Len(t, points, 4)

	assert.Equal(t, MeasurementResolution, points[0].Name())
	assert.Equal(t, MeasurementPayout, points[1].Name())
	assert.Equal(t, MeasurementWithdrawal, points[2].Name())
	assert.Equal(t, MeasurementFunding, points[3].Name())

	tags := map[string]string{}
	for _, tag := range points[0].TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, "late_airline", tags["status"])
	assert.Equal(t, batch[1].ID.String(), tags["event_id"])

	fields := map[string]interface{}{}
	for _, f := range points[0].FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, float64(3600), fields["delay_s"])

	fields = map[string]interface{}{}
	for _, f := range points[1].FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, 1.5, fields["amount"])
}

func TestPointsRejectsMalformedAmounts(t *testing.T) {
	_, err := Points([]events.Event{
		event(t, 1, events.PayoutCredited, events.InsuranceData{Passenger: "0xb1", Amount: "lots"}),
	})
	assert.Error(t, err)
}
