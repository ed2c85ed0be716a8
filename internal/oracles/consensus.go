package oracles

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/terminal-bench/flightsurety/internal/flights"
	"github.com/terminal-bench/flightsurety/pkg/decimal"
	"github.com/terminal-bench/flightsurety/pkg/models"
)

// Oracle is a registered status reporter
type Oracle struct {
	Address      models.Address `json:"address"`
	Index        uint64         `json:"index"`
	Fee          decimal.Amount `json:"fee"`
	RegisteredAt time.Time      `json:"registered_at"`
}

// Request is one flight status query
type Request struct {
	FlightKey flights.Key
	Nonce     uint64
	Assigned  []uint64
	Responses map[models.FlightStatus][]uint64
	Closed    bool
	Final     models.FlightStatus
	OpenedAt  time.Time
	ClosedAt  *time.Time

	assigned map[uint64]struct{}
	reported map[uint64]models.FlightStatus
}

// Report is the result of one accepted response
type Report struct {
	FlightKey   flights.Key
	OracleIndex uint64
	Status      models.FlightStatus
	Count       int
	// Ignored is set when the oracle had already reported on this request.
	Ignored bool
	// Finalized is set on the report that reached consensus.
	Finalized bool
}

// Config holds consensus parameters
type Config struct {
	Threshold      int
	AssignmentSize int
	Fee            decimal.Amount
}

// Consensus matches oracle responses per flight. It holds no lock; callers
// serialize access.
type Consensus struct {
	threshold      int
	assignmentSize int
	fee            decimal.Amount

	oracles   []*Oracle
	byAddress map[models.Address]*Oracle
	requests  map[flights.Key]*Request
	fees      decimal.Amount
}

// NewConsensus creates the oracle consensus component
func NewConsensus(cfg Config) *Consensus {
	if cfg.AssignmentSize < cfg.Threshold {
		cfg.AssignmentSize = cfg.Threshold
	}
	return &Consensus{
		threshold:      cfg.Threshold,
		assignmentSize: cfg.AssignmentSize,
		fee:            cfg.Fee,
		byAddress:      make(map[models.Address]*Oracle),
		requests:       make(map[flights.Key]*Request),
		fees:           decimal.Zero,
	}
}

// Threshold returns the number of matching reports needed
func (c *Consensus) Threshold() int {
	return c.threshold
}

// Register enrols caller as an oracle and returns its index
func (c *Consensus) Register(caller models.Address, fee decimal.Amount, at time.Time) (*Oracle, error) {
	if fee.LessThan(c.fee) {
		return nil, fmt.Errorf("register oracle %s: fee %s below %s: %w", caller, fee, c.fee, models.ErrInvalidAmount)
	}
	if _, ok := c.byAddress[caller]; ok {
		return nil, fmt.Errorf("register oracle %s: %w", caller, models.ErrAlreadySubmitted)
	}

	o := &Oracle{
		Address:      caller,
		Index:        uint64(len(c.oracles)),
		Fee:          fee,
		RegisteredAt: at.UTC(),
	}
	c.oracles = append(c.oracles, o)
	c.byAddress[caller] = o
	c.fees = c.fees.Add(fee)

	cp := *o
	return &cp, nil
}

// Oracle returns the registration of caller
func (c *Consensus) Oracle(caller models.Address) (*Oracle, error) {
	o, ok := c.byAddress[caller]
	if !ok {
		return nil, fmt.Errorf("oracle %s: %w", caller, models.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

// Count returns the number of registered oracles
func (c *Consensus) Count() int {
	return len(c.oracles)
}

// Fees returns the registration fees collected
func (c *Consensus) Fees() decimal.Amount {
	return c.fees
}

// Request opens a status request for the flight. An open request is
// returned unchanged with opened=false. The assignment depends only on the
// key, the nonce and the registered oracles, so replaying the same calls
// yields the same assignment.
func (c *Consensus) Request(key flights.Key, nonce uint64, at time.Time) (req *Request, opened bool, err error) {
	if existing, ok := c.requests[key]; ok {
		if existing.Closed {
			return nil, false, fmt.Errorf("request status of %s: %w", key, models.ErrRequestClosed)
		}
		return existing.copy(), false, nil
	}
	if len(c.oracles) < c.assignmentSize {
		return nil, false, fmt.Errorf("request status of %s: %d of %d: %w", key, len(c.oracles), c.assignmentSize, models.ErrInsufficientOracles)
	}

	r := &Request{
		FlightKey: key,
		Nonce:     nonce,
		Assigned:  pick(key, nonce, len(c.oracles), c.assignmentSize),
		Responses: make(map[models.FlightStatus][]uint64),
		OpenedAt:  at.UTC(),
		assigned:  make(map[uint64]struct{}),
		reported:  make(map[uint64]models.FlightStatus),
	}
	for _, idx := range r.Assigned {
		r.assigned[idx] = struct{}{}
	}
	c.requests[key] = r
	return r.copy(), true, nil
}

// Submit records a response from the oracle owning oracleIndex. A second
// report from the same oracle is ignored. Once any status collects
// Threshold reports the request closes with that status.
func (c *Consensus) Submit(key flights.Key, oracleIndex uint64, status models.FlightStatus, caller models.Address, at time.Time) (*Report, error) {
	r, ok := c.requests[key]
	if !ok {
		return nil, fmt.Errorf("response for %s: %w", key, models.ErrNotFound)
	}
	o, ok := c.byAddress[caller]
	if !ok || o.Index != oracleIndex {
		return nil, fmt.Errorf("response for %s: %s does not own oracle %d: %w", key, caller, oracleIndex, models.ErrUnauthorized)
	}
	if _, ok := r.assigned[oracleIndex]; !ok {
		return nil, fmt.Errorf("response for %s from oracle %d: %w", key, oracleIndex, models.ErrNotAssigned)
	}
	if r.Closed {
		return nil, fmt.Errorf("response for %s: %w", key, models.ErrRequestClosed)
	}
	if !status.Terminal() {
		return nil, fmt.Errorf("response for %s: %w: status %s", key, models.ErrInvalidArgument, status)
	}

	report := &Report{FlightKey: key, OracleIndex: oracleIndex, Status: status}
	if prior, done := r.reported[oracleIndex]; done {
		report.Status = prior
		report.Count = len(r.Responses[prior])
		report.Ignored = true
		return report, nil
	}

	r.reported[oracleIndex] = status
	r.Responses[status] = append(r.Responses[status], oracleIndex)
	report.Count = len(r.Responses[status])

	if report.Count >= c.threshold {
		now := at.UTC()
		r.Closed = true
		r.Final = status
		r.ClosedAt = &now
		report.Finalized = true
	}
	return report, nil
}

// RequestFor returns a copy of the flight's request
func (c *Consensus) RequestFor(key flights.Key) (*Request, error) {
	r, ok := c.requests[key]
	if !ok {
		return nil, fmt.Errorf("request for %s: %w", key, models.ErrNotFound)
	}
	return r.copy(), nil
}

// Open returns the keys of unresolved requests, sorted
func (c *Consensus) Open() []flights.Key {
	var out []flights.Key
	for k, r := range c.requests {
		if !r.Closed {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns a deep copy used to roll back a failed call
func (c *Consensus) Clone() *Consensus {
	cp := &Consensus{
		threshold:      c.threshold,
		assignmentSize: c.assignmentSize,
		fee:            c.fee,
		oracles:        make([]*Oracle, len(c.oracles)),
		byAddress:      make(map[models.Address]*Oracle, len(c.byAddress)),
		requests:       make(map[flights.Key]*Request, len(c.requests)),
		fees:           c.fees,
	}
	for i, o := range c.oracles {
		oc := *o
		cp.oracles[i] = &oc
		cp.byAddress[oc.Address] = &oc
	}
	for k, r := range c.requests {
		cp.requests[k] = r.copy()
	}
	return cp
}

func (r *Request) copy() *Request {
	cp := *r
	cp.Assigned = append([]uint64(nil), r.Assigned...)
	cp.Responses = make(map[models.FlightStatus][]uint64, len(r.Responses))
	for s, idx := range r.Responses {
		cp.Responses[s] = append([]uint64(nil), idx...)
	}
	cp.assigned = make(map[uint64]struct{}, len(r.assigned))
	for k := range r.assigned {
		cp.assigned[k] = struct{}{}
	}
	cp.reported = make(map[uint64]models.FlightStatus, len(r.reported))
	for k, v := range r.reported {
		cp.reported[k] = v
	}
	return &cp
}

// IsAssigned reports whether oracleIndex may answer this request
func (r *Request) IsAssigned(oracleIndex uint64) bool {
	_, ok := r.assigned[oracleIndex]
	return ok
}

// pick chooses k distinct indexes out of n with a Fisher-Yates shuffle
// driven by sha256(key || nonce || counter).
func pick(key flights.Key, nonce uint64, n, k int) []uint64 {
	idx := make([]uint64, n)
	for i := range idx {
		idx[i] = uint64(i)
	}

	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], nonce)
	var counter uint64
	next := func(bound int) int {
		var ctr [8]byte
		binary.BigEndian.PutUint64(ctr[:], counter)
		counter++
		h := sha256.New()
		h.Write([]byte(key))
		h.Write(seed[:])
		h.Write(ctr[:])
		return int(binary.BigEndian.Uint64(h.Sum(nil)[:8]) % uint64(bound))
	}

	for i := 0; i < k; i++ {
		j := i + next(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	out := append([]uint64(nil), idx[:k]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
