package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Operations
	OperationalChanged = "operational.changed"
	CallerAuthorized   = "caller.authorized"
	CallerDeauthorized = "caller.deauthorized"

	// Airline admission
	AirlineSubmitted  = "airline.submitted"
	AirlineVoted      = "airline.voted"
	AirlineRegistered = "airline.registered"
	AirlineFunded     = "airline.funded"
	AirlineDeposit    = "airline.deposit"

	// Flights
	FlightRegistered = "flight.registered"
	StatusRequested  = "flight.status_requested"
	StatusReported   = "flight.status_reported"
	StatusResolved   = "flight.status_resolved"

	// Insurance
	InsurancePurchased = "insurance.purchased"
	PayoutCredited     = "insurance.payout_credited"
	FundsWithdrawn     = "insurance.withdrawal"

	// Oracles
	OracleRegistered = "oracle.registered"
)

// Event is the envelope every state transition is published in. ID is
// unique per event and is what observers deduplicate on; Seq orders the log.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Seq         uint64          `json:"seq"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Data        json.RawMessage `json:"data"`
	Metadata    Metadata        `json:"metadata"`
}

// Metadata contains event metadata
type Metadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	Caller        string `json:"caller,omitempty"`
	Source        string `json:"source"`
}

// OperationalData is carried by operational.changed
type OperationalData struct {
	Operational bool   `json:"operational"`
	By          string `json:"by"`
}

// CallerData is carried by caller.authorized / caller.deauthorized
type CallerData struct {
	Caller string `json:"caller"`
}

// AirlineData is carried by airline.* events
type AirlineData struct {
	Airline   string `json:"airline"`
	RegIndex  uint64 `json:"reg_index"`
	By        string `json:"by,omitempty"`
	Votes     int    `json:"votes,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Balance   string `json:"balance,omitempty"`
	Bootstrap bool   `json:"bootstrap,omitempty"`
}

// FlightData is carried by flight.* events
type FlightData struct {
	FlightKey   string   `json:"flight_key"`
	Name        string   `json:"name,omitempty"`
	Timestamp   int64    `json:"timestamp,omitempty"`
	Airline     string   `json:"airline,omitempty"`
	Status      uint8    `json:"status"`
	OracleIndex uint64   `json:"oracle_index,omitempty"`
	Oracles     []uint64 `json:"oracles,omitempty"`
}

// InsuranceData is carried by insurance.* events
type InsuranceData struct {
	FlightKey string `json:"flight_key,omitempty"`
	Passenger string `json:"passenger"`
	Amount    string `json:"amount"`
	Stake     string `json:"stake,omitempty"`
}

// OracleData is carried by oracle.registered
type OracleData struct {
	Oracle string `json:"oracle"`
	Index  uint64 `json:"index"`
	Fee    string `json:"fee"`
}

// namespace seeds DeriveID
var namespace = uuid.MustParse("6f1c7d2e-43a5-4b8e-9d0f-5c1e2a7b8f30")

// DeriveID returns the id of the ordinal-th event raised by command seq.
// Replaying the journal reproduces the same ids, which is what lets
// observers deduplicate redelivered events.
func DeriveID(seq uint64, ordinal int) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("%d:%d", seq, ordinal)))
}

// DeriveEntryID returns the id of the ledger entry written by command seq
func DeriveEntryID(seq uint64) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("entry:%d", seq)))
}

// NewEvent creates a new event. Seq is assigned when the event is appended
// to a Log.
func NewEvent(id uuid.UUID, at time.Time, eventType, aggregateID string, data interface{}, metadata Metadata) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:          id,
		Type:        eventType,
		AggregateID: aggregateID,
		Timestamp:   at.UTC(),
		Data:        dataBytes,
		Metadata:    metadata,
	}, nil
}

// ParseData parses event data into the given type
func (e *Event) ParseData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Subject is the NATS subject the event is published on
func (e *Event) Subject() string {
	return "surety." + e.Type
}
