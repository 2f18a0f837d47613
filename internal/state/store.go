// Package state persists per-conversation pipeline state with expiry.
package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
)

// DefaultTTL is how long an idle conversation keeps its state.
const DefaultTTL = time.Hour

var (
	// ErrNotFound is returned when no live state exists for a conversation.
	ErrNotFound = errors.New("conversation state not found")

	// ErrConflict is returned when a concurrent writer won a claim race.
	ErrConflict = errors.New("conversation state changed concurrently")

	// ErrNotOwner is returned by claim checks when another user tries to act.
	ErrNotOwner = errors.New("conversation state owned by another user")
)

// Store holds at most one state per conversation id. Writes are last-writer-wins.
type Store interface {
	Get(ctx context.Context, conversationID string) (*model.ConversationState, error)
	Put(ctx context.Context, st *model.ConversationState) error
	Delete(ctx context.Context, conversationID string) error

	// Claim removes and returns the state in one step when check accepts it.
	// A check error is returned unchanged and leaves the state in place.
	Claim(ctx context.Context, conversationID string, check func(*model.ConversationState) error) (*model.ConversationState, error)

	// Sweep removes expired states and returns how many were dropped.
	Sweep(ctx context.Context) (int, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	states map[string]*model.ConversationState
	mu     sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		states: make(map[string]*model.ConversationState),
		ttl:    ttl,
		now:    now,
	}
}

func (s *MemoryStore) expired(st *model.ConversationState, now time.Time) bool {
	return now.Sub(st.UpdatedAt) >= s.ttl
}

// Get returns a copy of the live state.
func (s *MemoryStore) Get(_ context.Context, conversationID string) (*model.ConversationState, error) {
	s.mu.RLock()
	st, ok := s.states[conversationID]
	s.mu.RUnlock()

	if !ok || s.expired(st, s.now()) {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}

// Put stores a copy of st, stamping its timestamps.
func (s *MemoryStore) Put(_ context.Context, st *model.ConversationState) error {
	cp := st.Clone()
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	s.mu.Lock()
	s.states[cp.ConversationID] = cp
	s.mu.Unlock()

	st.CreatedAt, st.UpdatedAt = cp.CreatedAt, cp.UpdatedAt
	return nil
}

// Delete removes the state; deleting a missing state is not an error.
func (s *MemoryStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	delete(s.states, conversationID)
	s.mu.Unlock()
	return nil
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, conversationID string, check func(*model.ConversationState) error) (*model.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[conversationID]
	if !ok || s.expired(st, s.now()) {
		return nil, ErrNotFound
	}
	if check != nil {
		if err := check(st.Clone()); err != nil {
			return nil, err
		}
	}
	delete(s.states, conversationID)
	return st, nil
}

// Sweep implements Store.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, st := range s.states {
		if s.expired(st, now) {
			delete(s.states, id)
			removed++
		}
	}
	return removed, nil
}
