package flights

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/terminal-bench/flightsurety/pkg/models"
)

// Key identifies a flight: 0x-prefixed hex sha256 of airline, name and
// scheduled timestamp.
type Key string

// Flight is a registered flight. Only Status changes after creation.
type Flight struct {
	Key          Key                 `json:"key"`
	Name         string              `json:"name"`
	Timestamp    int64               `json:"timestamp"`
	Airline      models.Address      `json:"airline"`
	Status       models.FlightStatus `json:"status"`
	RegisteredAt time.Time           `json:"registered_at"`
	ResolvedAt   *time.Time          `json:"resolved_at,omitempty"`
}

// Registry is the append-only flight catalog. It holds no lock; callers
// serialize access.
type Registry struct {
	flights map[Key]*Flight
	order   []Key
}

// NewRegistry creates an empty flight registry
func NewRegistry() *Registry {
	return &Registry{flights: make(map[Key]*Flight)}
}

// MakeKey derives the flight key
func MakeKey(airline models.Address, name string, timestamp int64) Key {
	h := sha256.New()
	h.Write([]byte(airline))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	return Key("0x" + hex.EncodeToString(h.Sum(nil)))
}

// ParseKey normalises a key received from a caller
func ParseKey(s string) (Key, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	raw := strings.TrimPrefix(s, "0x")
	if len(raw) != sha256.Size*2 {
		return "", fmt.Errorf("%w: flight key %q", models.ErrInvalidArgument, s)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("%w: flight key %q", models.ErrInvalidArgument, s)
	}
	return Key("0x" + raw), nil
}

// Register adds a flight owned by airline. Eligibility of the airline is
// checked by the caller.
func (r *Registry) Register(name string, timestamp int64, airline models.Address, at time.Time) (*Flight, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("register flight: %w: empty name", models.ErrInvalidArgument)
	}
	if timestamp <= 0 {
		return nil, fmt.Errorf("register flight %q: %w: timestamp %d", name, models.ErrInvalidArgument, timestamp)
	}

	key := MakeKey(airline, name, timestamp)
	if _, exists := r.flights[key]; exists {
		return nil, fmt.Errorf("register flight %q at %d: %w", name, timestamp, models.ErrDuplicateFlight)
	}

	f := &Flight{
		Key:          key,
		Name:         name,
		Timestamp:    timestamp,
		Airline:      airline,
		Status:       models.StatusUnknown,
		RegisteredAt: at.UTC(),
	}
	r.flights[key] = f
	r.order = append(r.order, key)

	cp := *f
	return &cp, nil
}

// Keys returns flight keys in registration order
func (r *Registry) Keys() []Key {
	return append([]Key(nil), r.order...)
}

// Flight returns a copy of the flight
func (r *Registry) Flight(key Key) (*Flight, error) {
	f, ok := r.flights[key]
	if !ok {
		return nil, fmt.Errorf("flight %s: %w", key, models.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

// Exists reports whether key is registered
func (r *Registry) Exists(key Key) bool {
	_, ok := r.flights[key]
	return ok
}

// SetStatus records the resolved status. It moves a flight from Unknown to
// a terminal status exactly once.
func (r *Registry) SetStatus(key Key, status models.FlightStatus, at time.Time) error {
	f, ok := r.flights[key]
	if !ok {
		return fmt.Errorf("set status of %s: %w", key, models.ErrNotFound)
	}
	if !status.Terminal() {
		return fmt.Errorf("set status of %s: %w: %s", key, models.ErrInvalidArgument, status)
	}
	if f.Status != models.StatusUnknown {
		return fmt.Errorf("set status of %s: %w", key, models.ErrFlightResolved)
	}

	now := at.UTC()
	f.Status = status
	f.ResolvedAt = &now
	return nil
}

// Len returns the number of flights
func (r *Registry) Len() int {
	return len(r.order)
}

// Clone returns a deep copy used to roll back a failed call
func (r *Registry) Clone() *Registry {
	c := &Registry{
		flights: make(map[Key]*Flight, len(r.flights)),
		order:   append([]Key(nil), r.order...),
	}
	for k, f := range r.flights {
		cp := *f
		c.flights[k] = &cp
	}
	return c
}
