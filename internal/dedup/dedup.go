// Package dedup drops inbound events that the messaging transport redelivers.
package dedup

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL must exceed the transport's redelivery window.
const DefaultTTL = 5 * time.Minute

// Deduplicator reports whether an event id was already seen within its window.
type Deduplicator interface {
	IsDuplicate(ctx context.Context, eventID string) bool
}

// Memory is a process-local deduplicator.
type Memory struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// Option configures a Memory deduplicator.
type Option func(*Memory)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an in-memory deduplicator.
func NewMemory(ttl time.Duration, opts ...Option) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsDuplicate records eventID on first sight and returns true on repeats.
func (m *Memory) IsDuplicate(_ context.Context, eventID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.purgeLocked(now)

	if _, ok := m.seen[eventID]; ok {
		return true
	}
	m.seen[eventID] = now
	return false
}

// Sweep drops expired ids and returns how many were removed.
func (m *Memory) Sweep(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeLocked(m.now())
}

// Len returns the number of tracked ids.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func (m *Memory) purgeLocked(now time.Time) int {
	removed := 0
	for id, ts := range m.seen {
		if now.Sub(ts) >= m.ttl {
			delete(m.seen, id)
			removed++
		}
	}
	return removed
}
