package surety

import (
	"github.com/terminal-bench/flightsurety/internal/airlines"
	"github.com/terminal-bench/flightsurety/internal/flights"
	"github.com/terminal-bench/flightsurety/internal/insurance"
	"github.com/terminal-bench/flightsurety/internal/oracles"
	"github.com/terminal-bench/flightsurety/pkg/decimal"
	"github.com/terminal-bench/flightsurety/pkg/models"
	"github.com/terminal-bench/flightsurety/shared/events"
)

// AirlineView is the read model of one airline
type AirlineView struct {
	Address    models.Address `json:"address"`
	State      string         `json:"state"`
	RegIndex   *uint64        `json:"reg_index,omitempty"`
	Votes      int            `json:"votes"`
	Registered bool           `json:"registered"`
	Funded     bool           `json:"funded"`
	Balance    decimal.Amount `json:"balance"`
}

// Stats summarises the ledger
type Stats struct {
	Operational        bool           `json:"operational"`
	RegisteredAirlines int            `json:"registered_airlines"`
	SubmittedAirlines  uint64         `json:"submitted_airlines"`
	FundedAirlines     int            `json:"funded_airlines"`
	RequiredVotes      int            `json:"required_votes"`
	Flights            int            `json:"flights"`
	Oracles            int            `json:"oracles"`
	OpenRequests       int            `json:"open_requests"`
	TotalStake         decimal.Amount `json:"total_stake"`
	Escrow             decimal.Amount `json:"escrow"`
	Outstanding        decimal.Amount `json:"outstanding"`
	PaidOut            decimal.Amount `json:"paid_out"`
	OracleFees         decimal.Amount `json:"oracle_fees"`
	EventHead          uint64         `json:"event_head"`
	JournalHead        uint64         `json:"journal_head"`
}

// IsOperational never fails and is answered while paused
func (a *App) IsOperational() bool {
	var ok bool
	a.data.View(func(s *State) { ok = s.Guard.IsOperational() })
	return ok
}

// GetRegIndex returns the registration index of a submitted airline
func (a *App) GetRegIndex(airline models.Address) (uint64, error) {
	var (
		idx uint64
		err error
	)
	a.data.View(func(s *State) { idx, err = s.Airlines.RegIndex(airline) })
	return idx, err
}

func (a *App) CheckAirlineRegistered(airline models.Address) bool {
	var ok bool
	a.data.View(func(s *State) { ok = s.Airlines.IsRegistered(airline) })
	return ok
}

// GetAirlineVote reports whether voter approved the submission at index
func (a *App) GetAirlineVote(index uint64, voter models.Address) (bool, error) {
	var (
		voted bool
		err   error
	)
	a.data.View(func(s *State) { voted, err = s.Airlines.HasVoted(index, voter) })
	return voted, err
}

// CurrentSubmitted returns how many registration indexes have been issued
func (a *App) CurrentSubmitted() uint64 {
	var n uint64
	a.data.View(func(s *State) { n = s.Airlines.SubmittedCount() })
	return n
}

// Submission returns the admission record with the given index
func (a *App) Submission(index uint64) (*airlines.Airline, error) {
	var (
		rec *airlines.Airline
		err error
	)
	a.data.View(func(s *State) { rec, err = s.Airlines.SubmissionAt(index) })
	return rec, err
}

// PendingSubmissions lists submissions awaiting execution
func (a *App) PendingSubmissions() []*airlines.Airline {
	var out []*airlines.Airline
	a.data.View(func(s *State) { out = s.Airlines.Pending() })
	return out
}

func (a *App) IsAirlineFunded(airline models.Address) bool {
	var ok bool
	a.data.View(func(s *State) { ok = s.Funding.IsFunded(airline) })
	return ok
}

// Airline returns the admission and funding view of an address. Unknown
// addresses yield an unsubmitted view rather than an error.
func (a *App) Airline(address models.Address) AirlineView {
	view := AirlineView{
		Address: address,
		State:   airlines.StateUnsubmitted.String(),
		Balance: decimal.Zero,
	}
	a.data.View(func(s *State) {
		view.Funded = s.Funding.IsFunded(address)
		view.Balance = s.Funding.BalanceOf(address)

		rec, err := s.Airlines.Airline(address)
		if err != nil {
			return
		}
		idx := rec.RegIndex
		view.State = rec.State.String()
		view.RegIndex = &idx
		view.Votes = rec.Votes()
		view.Registered = rec.State == airlines.StateRegistered
	})
	return view
}

// CurrentFlights returns flight keys in registration order
func (a *App) CurrentFlights() []flights.Key {
	var keys []flights.Key
	a.data.View(func(s *State) { keys = s.Flights.Keys() })
	return keys
}

// FlightInformation returns the flight registered under key
func (a *App) FlightInformation(key flights.Key) (*flights.Flight, error) {
	var (
		f   *flights.Flight
		err error
	)
	a.data.View(func(s *State) { f, err = s.Flights.Flight(key) })
	return f, err
}

// Policies returns the policies written on a flight
func (a *App) Policies(key flights.Key) ([]insurance.Policy, error) {
	var (
		out []insurance.Policy
		err error
	)
	a.data.View(func(s *State) {
		if !s.Flights.Exists(key) {
			_, err = s.Flights.Flight(key)
			return
		}
		out = s.Pool.Policies(key)
	})
	return out, err
}

// Policy returns passenger's policy on key
func (a *App) Policy(key flights.Key, passenger models.Address) (*insurance.Policy, error) {
	var (
		p   *insurance.Policy
		err error
	)
	a.data.View(func(s *State) { p, err = s.Pool.Policy(key, passenger) })
	return p, err
}

// Balance returns the passenger's withdrawable credit
func (a *App) Balance(passenger models.Address) decimal.Amount {
	amount := decimal.Zero
	a.data.View(func(s *State) { amount = s.Pool.Credit(passenger) })
	return amount
}

// Oracle returns the oracle registration of caller
func (a *App) Oracle(caller models.Address) (*oracles.Oracle, error) {
	var (
		o   *oracles.Oracle
		err error
	)
	a.data.View(func(s *State) { o, err = s.Oracles.Oracle(caller) })
	return o, err
}

// OracleRequest returns the status request of a flight
func (a *App) OracleRequest(key flights.Key) (*oracles.Request, error) {
	var (
		r   *oracles.Request
		err error
	)
	a.data.View(func(s *State) { r, err = s.Oracles.RequestFor(key) })
	return r, err
}

// Stats returns ledger totals
func (a *App) Stats() Stats {
	var st Stats
	a.data.View(func(s *State) {
		st = Stats{
			Operational:        s.Guard.IsOperational(),
			RegisteredAirlines: s.Airlines.RegisteredCount(),
			SubmittedAirlines:  s.Airlines.SubmittedCount(),
			FundedAirlines:     s.Funding.FundedCount(),
			RequiredVotes:      s.Airlines.RequiredVotes(),
			Flights:            s.Flights.Len(),
			Oracles:            s.Oracles.Count(),
			OpenRequests:       len(s.Oracles.Open()),
			TotalStake:         s.Funding.TotalStake(),
			Escrow:             s.Pool.Escrow(),
			Outstanding:        s.Pool.Outstanding(),
			PaidOut:            s.Pool.PaidOut(),
			OracleFees:         s.Oracles.Fees(),
		}
	})
	st.EventHead = a.data.Log().Head()
	st.JournalHead = a.Head()
	return st
}

// Events returns committed events with Seq > after
func (a *App) Events(after uint64, limit int) []events.Event {
	return a.data.Log().After(after, limit)
}
