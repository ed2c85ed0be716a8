package events

import (
	"context"
	"sync"
)

// Log is the append-only in-process event log. Observers read by sequence
// number and keep their own cursor, so a reader that fails mid-batch simply
// re-reads from its last acknowledged seq (at-least-once).
type Log struct {
	mu     sync.RWMutex
	events []Event
	notify chan struct{}
}

// NewLog creates an event log
func NewLog() *Log {
	return &Log{notify: make(chan struct{})}
}

// Append assigns sequence numbers and stores the events. Returns the last
// assigned seq.
func (l *Log) Append(evts ...Event) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range evts {
		evts[i].Seq = uint64(len(l.events)) + 1
		l.events = append(l.events, evts[i])
	}

	if len(evts) > 0 {
		close(l.notify)
		l.notify = make(chan struct{})
	}
	return uint64(len(l.events))
}

// Head returns the sequence number of the latest event, 0 when empty
func (l *Log) Head() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events))
}

// After returns up to limit events with Seq > seq. limit <= 0 means all.
func (l *Log) After(seq uint64, limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if seq >= uint64(len(l.events)) {
		return nil
	}
	tail := l.events[seq:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]Event, len(tail))
	copy(out, tail)
	return out
}

// Wait blocks until an event with Seq > seq exists or ctx is done.
func (l *Log) Wait(ctx context.Context, seq uint64) error {
	for {
		l.mu.RLock()
		head := uint64(len(l.events))
		ch := l.notify
		l.mu.RUnlock()

		if head > seq {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
