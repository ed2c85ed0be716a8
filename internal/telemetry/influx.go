package telemetry

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/terminal-bench/flightsurety/pkg/decimal"
	"github.com/terminal-bench/flightsurety/pkg/models"
	"github.com/terminal-bench/flightsurety/shared/events"
)

// Measurements written to InfluxDB
const (
	MeasurementResolution = "flight_resolution"
	MeasurementPayout     = "insurance_payout"
	MeasurementWithdrawal = "insurance_withdrawal"
	MeasurementPurchase   = "insurance_purchase"
	MeasurementFunding    = "airline_funding"
)

// Config holds InfluxDB connection settings
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Writer is a relay sink recording resolutions and money movements as
// time series.
type Writer struct {
	client influxdb2.Client
	api    api.WriteAPIBlocking
}

// NewWriter creates a writer for cfg
func NewWriter(cfg Config) *Writer {
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(10))
	return &Writer{
		client: client,
		api:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

func (w *Writer) Name() string {
	return "influx"
}

// Deliver writes the points derived from batch in one request
func (w *Writer) Deliver(ctx context.Context, batch []events.Event) error {
	points, err := Points(batch)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}
	if err := w.api.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write %d points: %w", len(points), err)
	}
	return nil
}

// Ping checks the server is reachable
func (w *Writer) Ping(ctx context.Context) error {
	ok, err := w.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach influxdb: %w", err)
	}
	if !ok {
		return fmt.Errorf("influxdb not ready")
	}
	return nil
}

func (w *Writer) Close() {
	w.client.Close()
}

// Points maps events to points. Events without a time series are skipped.
// Each point carries the event id as a tag so a redelivered event
// overwrites its own point instead of adding a second one.
func Points(batch []events.Event) ([]*write.Point, error) {
	var points []*write.Point
	for i := range batch {
		p, err := point(&batch[i])
		if err != nil {
			return nil, fmt.Errorf("event %d (%s): %w", batch[i].Seq, batch[i].Type, err)
		}
		if p != nil {
			points = append(points, p)
		}
	}
	return points, nil
}

func point(e *events.Event) (*write.Point, error) {
	tags := map[string]string{"event_id": e.ID.String()}

	switch e.Type {
	case events.StatusResolved:
		var d events.FlightData
		if err := e.ParseData(&d); err != nil {
			return nil, err
		}
		tags["airline"] = d.Airline
		tags["status"] = models.FlightStatus(d.Status).String()
		return influxdb2.NewPoint(MeasurementResolution, tags, map[string]interface{}{
			"flight_key":  d.FlightKey,
			"flight":      d.Name,
			"status_code": int64(d.Status),
			"delay_s":     e.Timestamp.Sub(time.Unix(d.Timestamp, 0)).Seconds(),
		}, e.Timestamp), nil

	case events.PayoutCredited, events.FundsWithdrawn, events.InsurancePurchased:
		var d events.InsuranceData
		if err := e.ParseData(&d); err != nil {
			return nil, err
		}
		amount, err := decimal.NewAmount(d.Amount)
		if err != nil {
			return nil, err
		}
		measurement := MeasurementPayout
		switch e.Type {
		case events.FundsWithdrawn:
			measurement = MeasurementWithdrawal
		case events.InsurancePurchased:
			measurement = MeasurementPurchase
		}
		tags["passenger"] = d.Passenger
		fields := map[string]interface{}{"amount": amount.Float64()}
		if d.FlightKey != "" {
			fields["flight_key"] = d.FlightKey
		}
		return influxdb2.NewPoint(measurement, tags, fields, e.Timestamp), nil

	case events.AirlineDeposit:
		var d events.AirlineData
		if err := e.ParseData(&d); err != nil {
			return nil, err
		}
		amount, err := decimal.NewAmount(d.Amount)
		if err != nil {
			return nil, err
		}
		balance, err := decimal.NewAmount(d.Balance)
		if err != nil {
			return nil, err
		}
		tags["airline"] = d.Airline
		return influxdb2.NewPoint(MeasurementFunding, tags, map[string]interface{}{
			"amount":  amount.Float64(),
			"balance": balance.Float64(),
		}, e.Timestamp), nil
	}
	return nil, nil
}
