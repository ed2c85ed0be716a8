package circuit

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/terminal-bench/flightsurety/pkg/models"
)

// State represents the operational state of the contract
type State int32

const (
	StateOperational State = iota
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateOperational:
		return "operational"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Guard is the global circuit breaker. Only the owner may trip or reset it;
// every mutating entry point calls Check first.
type Guard struct {
	owner models.Address

	state int32 // atomic

	mu            sync.Mutex
	onStateChange func(from, to State)
}

// Config holds guard configuration
type Config struct {
	Owner         models.Address
	OnStateChange func(from, to State)
}

// NewGuard creates an operational guard
func NewGuard(cfg Config) *Guard {
	return &Guard{
		owner:         cfg.Owner,
		state:         int32(StateOperational),
		onStateChange: cfg.OnStateChange,
	}
}

// Owner returns the privileged identity
func (g *Guard) Owner() models.Address {
	return g.owner
}

// IsOperational is a read-only query and never fails
func (g *Guard) IsOperational() bool {
	return g.State() == StateOperational
}

// State returns current state
func (g *Guard) State() State {
	return State(atomic.LoadInt32(&g.state))
}

// Check returns ErrNotOperational while paused
func (g *Guard) Check() error {
	if g.State() != StateOperational {
		return models.ErrNotOperational
	}
	return nil
}

// SetOperatingStatus flips the flag. Setting the current value again is a
// no-op and does not fire the callback.
func (g *Guard) SetOperatingStatus(enabled bool, caller models.Address) error {
	if caller != g.owner {
		return fmt.Errorf("set operating status by %s: %w", caller, models.ErrUnauthorized)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if enabled {
		g.transitionTo(StateOperational)
	} else {
		g.transitionTo(StatePaused)
	}
	return nil
}

// OnStateChange replaces the transition callback
func (g *Guard) OnStateChange(fn func(from, to State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onStateChange = fn
}

// Restore sets the state without firing the callback; used when a call is
// rolled back.
func (g *Guard) Restore(s State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	atomic.StoreInt32(&g.state, int32(s))
}

func (g *Guard) transitionTo(newState State) {
	oldState := State(atomic.LoadInt32(&g.state))
	if oldState == newState {
		return
	}

	atomic.StoreInt32(&g.state, int32(newState))

	if g.onStateChange != nil {
		g.onStateChange(oldState, newState)
	}
}
