package surety

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/terminal-bench/flightsurety/internal/airlines"
	"github.com/terminal-bench/flightsurety/internal/flights"
	"github.com/terminal-bench/flightsurety/internal/funding"
	"github.com/terminal-bench/flightsurety/internal/insurance"
	"github.com/terminal-bench/flightsurety/internal/oracles"
	"github.com/terminal-bench/flightsurety/pkg/circuit"
	"github.com/terminal-bench/flightsurety/pkg/models"
	"github.com/terminal-bench/flightsurety/shared/events"
)

// State groups the ledger components. Readers get it through View, writers
// through Update.
type State struct {
	Guard    *circuit.Guard
	Funding  *funding.Ledger
	Airlines *airlines.Registry
	Flights  *flights.Registry
	Pool     *insurance.Pool
	Oracles  *oracles.Consensus
}

// Meta describes the call a transaction belongs to
type Meta struct {
	Seq           uint64
	At            time.Time
	Caller        models.Address
	CorrelationID string
}

// Tx is a transaction over State. Events raised through Emit reach the
// event log only if the transaction commits.
type Tx struct {
	*State
	data    *Data
	meta    Meta
	pending []events.Event
	err     error
}

// Emit buffers an event
func (tx *Tx) Emit(eventType, aggregateID string, data interface{}) {
	if tx.err != nil {
		return
	}
	e, err := events.NewEvent(
		events.DeriveID(tx.meta.Seq, len(tx.pending)),
		tx.meta.At,
		eventType,
		aggregateID,
		data,
		events.Metadata{
			CorrelationID: tx.meta.CorrelationID,
			Caller:        tx.meta.Caller.String(),
			Source:        "flightsurety",
		},
	)
	if err != nil {
		tx.err = fmt.Errorf("encode %s event: %w", eventType, err)
		return
	}
	tx.pending = append(tx.pending, *e)
}

// Meta returns the call metadata
func (tx *Tx) Meta() Meta {
	return tx.meta
}

// Config holds ledger parameters
type Config struct {
	Owner        models.Address
	FirstAirline models.Address
	// Genesis stamps the first airline. The zero time keeps a replica
	// built from the same config identical.
	Genesis   time.Time
	Bootstrap int
	Funding   *funding.Ledger
	Pool      insurance.Config
	Oracles   oracles.Config
}

// Data owns all ledger state behind an explicit trust boundary: mutations
// are accepted only from logic components the owner has authorized, and
// every mutation is all-or-nothing.
type Data struct {
	mu         sync.RWMutex
	state      *State
	owner      models.Address
	authorized map[models.Address]bool
	log        *events.Log
	current    *Tx
}

// NewData deploys the ledger with the first airline registered
func NewData(cfg Config) *Data {
	d := &Data{
		owner:      cfg.Owner,
		authorized: make(map[models.Address]bool),
		log:        events.NewLog(),
	}

	guard := circuit.NewGuard(circuit.Config{Owner: cfg.Owner})
	guard.OnStateChange(func(from, to circuit.State) {
		if d.current != nil {
			d.current.Emit(events.OperationalChanged, cfg.Owner.String(), events.OperationalData{
				Operational: to == circuit.StateOperational,
				By:          d.current.meta.Caller.String(),
			})
		}
	})

	d.state = &State{
		Guard:    guard,
		Funding:  cfg.Funding,
		Airlines: airlines.NewRegistry(cfg.FirstAirline, cfg.Bootstrap, cfg.Genesis),
		Flights:  flights.NewRegistry(),
		Pool:     insurance.NewPool(cfg.Pool),
		Oracles:  oracles.NewConsensus(cfg.Oracles),
	}
	return d
}

// Owner returns the contract owner
func (d *Data) Owner() models.Address {
	return d.owner
}

// Log returns the committed event log
func (d *Data) Log() *events.Log {
	return d.log
}

// IsAuthorized reports whether contract may call Update
func (d *Data) IsAuthorized(contract models.Address) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.authorized[contract]
}

// AuthorizedCallers lists authorized contracts, sorted
func (d *Data) AuthorizedCallers() []models.Address {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.Address, 0, len(d.authorized))
	for a := range d.authorized {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// View runs fn with read access
func (d *Data) View(fn func(s *State)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.state)
}

// Update runs fn atomically on behalf of an authorized contract
func (d *Data) Update(contract models.Address, meta Meta, fn func(tx *Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.authorized[contract] {
		return fmt.Errorf("data access by %s: %w", contract, models.ErrUnauthorized)
	}
	return d.apply(meta, fn)
}

// Admin runs fn atomically without the authorized-caller check. It backs
// the owner's own entry points, which gate on the owner identity instead.
func (d *Data) Admin(meta Meta, fn func(tx *Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.apply(meta, fn)
}

// SetAuthorized grants or revokes contract write access. Only the owner
// may call it and only while operational.
func (tx *Tx) SetAuthorized(contract models.Address, grant bool) error {
	d := tx.data
	if tx.meta.Caller != d.owner {
		return fmt.Errorf("authorize %s by %s: %w", contract, tx.meta.Caller, models.ErrUnauthorized)
	}
	if err := tx.Guard.Check(); err != nil {
		return err
	}
	if contract.IsZero() {
		return fmt.Errorf("authorize: %w: empty address", models.ErrInvalidArgument)
	}

	if grant {
		d.authorized[contract] = true
		tx.Emit(events.CallerAuthorized, contract.String(), events.CallerData{Caller: contract.String()})
		return nil
	}
	if !d.authorized[contract] {
		return fmt.Errorf("deauthorize %s: %w", contract, models.ErrNotFound)
	}
	delete(d.authorized, contract)
	tx.Emit(events.CallerDeauthorized, contract.String(), events.CallerData{Caller: contract.String()})
	return nil
}

// apply runs fn against the live state and restores a snapshot if fn, or
// event encoding, fails. d.mu must be held.
func (d *Data) apply(meta Meta, fn func(tx *Tx) error) error {
	if meta.At.IsZero() {
		meta.At = time.Now().UTC()
	}
	snap := d.snapshot()
	tx := &Tx{State: d.state, data: d, meta: meta}

	d.current = tx
	err := fn(tx)
	d.current = nil
	if err == nil {
		err = tx.err
	}
	if err != nil {
		d.restore(snap)
		return err
	}

	if len(tx.pending) > 0 {
		d.log.Append(tx.pending...)
	}
	return nil
}

type snapshot struct {
	guard      circuit.State
	funding    *funding.Ledger
	airlines   *airlines.Registry
	flights    *flights.Registry
	pool       *insurance.Pool
	oracles    *oracles.Consensus
	authorized map[models.Address]bool
}

func (d *Data) snapshot() snapshot {
	s := snapshot{
		guard:      d.state.Guard.State(),
		funding:    d.state.Funding.Clone(),
		airlines:   d.state.Airlines.Clone(),
		flights:    d.state.Flights.Clone(),
		pool:       d.state.Pool.Clone(),
		oracles:    d.state.Oracles.Clone(),
		authorized: make(map[models.Address]bool, len(d.authorized)),
	}
	for k, v := range d.authorized {
		s.authorized[k] = v
	}
	return s
}

func (d *Data) restore(s snapshot) {
	d.state.Guard.Restore(s.guard)
	d.state.Funding = s.funding
	d.state.Airlines = s.airlines
	d.state.Flights = s.flights
	d.state.Pool = s.pool
	d.state.Oracles = s.oracles
	d.authorized = s.authorized
}
