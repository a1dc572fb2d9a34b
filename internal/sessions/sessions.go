// Package sessions provides in-memory session management for multi-turn
// advisor conversations. Sessions live for the process lifetime only.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agrimitra/advisor/internal/conversation"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Session is one conversation with a domain advisor.
type Session struct {
	ID        string              `json:"id"`
	Domain    string              `json:"domain"`
	Turns     []conversation.Turn `json:"turns"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func (s *Session) clone() *Session {
	cp := *s
	cp.Turns = append([]conversation.Turn(nil), s.Turns...)
	return &cp
}

// MemoryStore is a thread-safe in-memory session store. Each session keeps
// at most limit turns, dropping the oldest first.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	limit    int
}

// NewMemoryStore creates a store. A limit <= 0 keeps every turn.
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		limit:    limit,
	}
}

// Create starts a session for domain seeded with turns.
func (s *MemoryStore) Create(_ context.Context, domain string, turns ...conversation.Turn) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.New().String(),
		Domain:    domain,
		Turns:     conversation.Tail(append([]conversation.Turn(nil), turns...), s.limit),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return nil, fmt.Errorf("session %s already exists", sess.ID)
	}
	s.sessions[sess.ID] = sess
	return sess.clone(), nil
}

// Get returns a copy of the session.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess.clone(), nil
}

// Append adds turns to the session and returns the updated copy.
func (s *MemoryStore) Append(_ context.Context, id string, turns ...conversation.Turn) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sess.Turns = conversation.Tail(append(sess.Turns, turns...), s.limit)
	sess.UpdatedAt = time.Now().UTC()
	return sess.clone(), nil
}

// Delete removes a session.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

// PurgeIdle deletes sessions not updated since before and returns how
// many were removed.
func (s *MemoryStore) PurgeIdle(_ context.Context, before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(before) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
