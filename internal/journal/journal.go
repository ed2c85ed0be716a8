package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/terminal-bench/flightsurety/pkg/decimal"
	"github.com/terminal-bench/flightsurety/pkg/models"
)

// ErrSequence is returned when a command does not extend the journal by
// exactly one.
var ErrSequence = errors.New("journal sequence mismatch")

// Command is one committed state-mutating call. Replaying every command in
// Seq order against a fresh ledger reproduces its state.
type Command struct {
	Seq    uint64          `json:"seq"`
	Op     string          `json:"op"`
	Caller models.Address  `json:"caller"`
	Value  decimal.Amount  `json:"value"`
	Args   json.RawMessage `json:"args,omitempty"`
	At     time.Time       `json:"at"`
}

// Store is the durable transaction log
type Store interface {
	// Append stores cmd; cmd.Seq must be Head()+1.
	Append(ctx context.Context, cmd Command) error
	// Load returns commands with Seq > after in order.
	Load(ctx context.Context, after uint64) ([]Command, error)
	Head(ctx context.Context) (uint64, error)
	Close() error
}

// MemoryStore keeps the journal in process
type MemoryStore struct {
	mu       sync.RWMutex
	commands []Command
}

// NewMemoryStore creates an empty in-memory journal
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if want := uint64(len(s.commands)) + 1; cmd.Seq != want {
		return fmt.Errorf("append %d, want %d: %w", cmd.Seq, want, ErrSequence)
	}
	s.commands = append(s.commands, cmd)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, after uint64) ([]Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if after >= uint64(len(s.commands)) {
		return nil, nil
	}
	out := make([]Command, len(s.commands)-int(after))
	copy(out, s.commands[after:])
	return out, nil
}

func (s *MemoryStore) Head(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.commands)), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
