package airlines

import (
	"fmt"
	"sort"
	"time"

	"github.com/terminal-bench/flightsurety/pkg/models"
)

// State is an airline's admission state
type State int

const (
	StateUnsubmitted State = iota
	StateSubmitted
	StateRegistered
)

func (s State) String() string {
	switch s {
	case StateUnsubmitted:
		return "unsubmitted"
	case StateSubmitted:
		return "submitted"
	case StateRegistered:
		return "registered"
	default:
		return "unknown"
	}
}

// Airline is one admission record
type Airline struct {
	Address      models.Address   `json:"address"`
	State        State            `json:"state"`
	RegIndex     uint64           `json:"reg_index"`
	SubmittedBy  models.Address   `json:"submitted_by,omitempty"`
	Voters       []models.Address `json:"voters"`
	SubmittedAt  time.Time        `json:"submitted_at"`
	RegisteredAt *time.Time       `json:"registered_at,omitempty"`

	voters map[models.Address]struct{}
}

// Votes returns the number of distinct approvals
func (a *Airline) Votes() int {
	return len(a.voters)
}

// Outcome is the result of Execute
type Outcome struct {
	Airline   models.Address
	RegIndex  uint64
	Votes     int
	Required  int
	Bootstrap bool
}

// Registry runs the submit, vote, execute admission protocol. It holds no
// lock; callers serialize access.
type Registry struct {
	bootstrap  int
	byAddress  map[models.Address]*Airline
	byIndex    map[uint64]*Airline
	nextIndex  uint64
	registered int
}

// NewRegistry creates a registry with first auto-registered under index 0.
// bootstrap is the number of registered airlines below which execution
// admits without votes. at stamps the first airline.
func NewRegistry(first models.Address, bootstrap int, at time.Time) *Registry {
	r := &Registry{
		bootstrap: bootstrap,
		byAddress: make(map[models.Address]*Airline),
		byIndex:   make(map[uint64]*Airline),
		nextIndex: 1,
	}

	now := at.UTC()
	a := &Airline{
		Address:      first,
		State:        StateRegistered,
		RegIndex:     0,
		SubmittedAt:  now,
		RegisteredAt: &now,
		voters:       map[models.Address]struct{}{},
	}
	r.byAddress[first] = a
	r.byIndex[0] = a
	r.registered = 1
	return r
}

// Submit proposes newAirline for admission
func (r *Registry) Submit(newAirline, caller models.Address, at time.Time) (*Airline, error) {
	if !r.IsRegistered(caller) {
		return nil, fmt.Errorf("submit %s by %s: caller not registered: %w", newAirline, caller, models.ErrUnauthorized)
	}
	if newAirline.IsZero() {
		return nil, fmt.Errorf("submit: %w: empty airline", models.ErrInvalidArgument)
	}
	if existing, ok := r.byAddress[newAirline]; ok {
		return nil, fmt.Errorf("submit %s: %s: %w", newAirline, existing.State, models.ErrAlreadySubmitted)
	}

	a := &Airline{
		Address:     newAirline,
		State:       StateSubmitted,
		RegIndex:    r.nextIndex,
		SubmittedBy: caller,
		SubmittedAt: at.UTC(),
		voters:      map[models.Address]struct{}{},
	}
	r.byAddress[newAirline] = a
	r.byIndex[a.RegIndex] = a
	r.nextIndex++

	return a.copy(), nil
}

// RegIndex returns the registration index of a submitted airline
func (r *Registry) RegIndex(airline models.Address) (uint64, error) {
	a, ok := r.byAddress[airline]
	if !ok {
		return 0, fmt.Errorf("reg index of %s: %w", airline, models.ErrNotFound)
	}
	return a.RegIndex, nil
}

// Vote records caller's approval of the submission at index
func (r *Registry) Vote(index uint64, caller models.Address) (*Airline, error) {
	a, ok := r.byIndex[index]
	if !ok {
		return nil, fmt.Errorf("vote on %d: %w", index, models.ErrNotFound)
	}
	if !r.IsRegistered(caller) {
		return nil, fmt.Errorf("vote on %d by %s: caller not registered: %w", index, caller, models.ErrUnauthorized)
	}
	if caller == a.Address {
		return nil, fmt.Errorf("vote on %d: airline cannot vote for itself: %w", index, models.ErrUnauthorized)
	}
	if a.State == StateRegistered {
		return nil, fmt.Errorf("vote on %d: %w", index, models.ErrAlreadyRegistered)
	}
	if _, voted := a.voters[caller]; voted {
		return nil, fmt.Errorf("vote on %d by %s: %w", index, caller, models.ErrDuplicateVote)
	}

	a.voters[caller] = struct{}{}
	a.Voters = append(a.Voters, caller)
	return a.copy(), nil
}

// Execute admits the submission at index when the bootstrap phase is still
// open or when votes reach half of the registered airlines. When neither
// holds the record stays submitted and ErrQuorumNotReached is returned with
// the current tally.
func (r *Registry) Execute(index uint64, caller models.Address, at time.Time) (*Outcome, error) {
	a, ok := r.byIndex[index]
	if !ok {
		return nil, fmt.Errorf("execute %d: %w", index, models.ErrNotFound)
	}
	if !r.IsRegistered(caller) {
		return nil, fmt.Errorf("execute %d by %s: caller not registered: %w", index, caller, models.ErrUnauthorized)
	}
	if a.State == StateRegistered {
		return nil, fmt.Errorf("execute %d: %w", index, models.ErrAlreadyRegistered)
	}

	outcome := &Outcome{
		Airline:  a.Address,
		RegIndex: a.RegIndex,
		Votes:    a.Votes(),
		Required: r.RequiredVotes(),
	}

	switch {
	case r.registered < r.bootstrap:
		outcome.Bootstrap = true
	case 2*a.Votes() >= r.registered:
	default:
		return outcome, fmt.Errorf("execute %d: %d of %d votes: %w", index, outcome.Votes, outcome.Required, models.ErrQuorumNotReached)
	}

	now := at.UTC()
	a.State = StateRegistered
	a.RegisteredAt = &now
	r.registered++
	return outcome, nil
}

// RequiredVotes is the smallest vote count satisfying 2*votes >= registered,
// or 0 during bootstrap.
func (r *Registry) RequiredVotes() int {
	if r.registered < r.bootstrap {
		return 0
	}
	return (r.registered + 1) / 2
}

// IsRegistered reports whether airline completed admission
func (r *Registry) IsRegistered(airline models.Address) bool {
	a, ok := r.byAddress[airline]
	return ok && a.State == StateRegistered
}

// IsKnown reports whether airline has any admission record
func (r *Registry) IsKnown(airline models.Address) bool {
	_, ok := r.byAddress[airline]
	return ok
}

// HasVoted reports whether voter approved the submission at index
func (r *Registry) HasVoted(index uint64, voter models.Address) (bool, error) {
	a, ok := r.byIndex[index]
	if !ok {
		return false, fmt.Errorf("vote lookup %d: %w", index, models.ErrNotFound)
	}
	_, voted := a.voters[voter]
	return voted, nil
}

// Airline returns a copy of the record for address
func (r *Registry) Airline(address models.Address) (*Airline, error) {
	a, ok := r.byAddress[address]
	if !ok {
		return nil, fmt.Errorf("airline %s: %w", address, models.ErrNotFound)
	}
	return a.copy(), nil
}

// SubmissionAt returns a copy of the record with the given index
func (r *Registry) SubmissionAt(index uint64) (*Airline, error) {
	a, ok := r.byIndex[index]
	if !ok {
		return nil, fmt.Errorf("submission %d: %w", index, models.ErrNotFound)
	}
	return a.copy(), nil
}

// Pending returns submissions awaiting execution ordered by index
func (r *Registry) Pending() []*Airline {
	var out []*Airline
	for _, a := range r.byIndex {
		if a.State == StateSubmitted {
			out = append(out, a.copy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegIndex < out[j].RegIndex })
	return out
}

// RegisteredCount returns the number of registered airlines
func (r *Registry) RegisteredCount() int {
	return r.registered
}

// SubmittedCount returns how many registration indexes have been handed out,
// the deployment airline included.
func (r *Registry) SubmittedCount() uint64 {
	return r.nextIndex
}

// Clone returns a deep copy used to roll back a failed call
func (r *Registry) Clone() *Registry {
	c := &Registry{
		bootstrap:  r.bootstrap,
		byAddress:  make(map[models.Address]*Airline, len(r.byAddress)),
		byIndex:    make(map[uint64]*Airline, len(r.byIndex)),
		nextIndex:  r.nextIndex,
		registered: r.registered,
	}
	for _, a := range r.byIndex {
		cp := a.copy()
		c.byAddress[cp.Address] = cp
		c.byIndex[cp.RegIndex] = cp
	}
	return c
}

func (a *Airline) copy() *Airline {
	cp := *a
	cp.Voters = append([]models.Address(nil), a.Voters...)
	cp.voters = make(map[models.Address]struct{}, len(a.voters))
	for v := range a.voters {
		cp.voters[v] = struct{}{}
	}
	if a.RegisteredAt != nil {
		at := *a.RegisteredAt
		cp.RegisteredAt = &at
	}
	return &cp
}
