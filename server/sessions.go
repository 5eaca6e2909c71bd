package server

import (
	"sync"
	"time"

	"github.com/chazu/pig/pig"
	"github.com/google/uuid"
)

// Session is one generation session held by the server.
type Session struct {
	ID          string
	Name        string
	SnapshotKey string
	Created     time.Time

	// Gen must only be used on the worker goroutine.
	Gen *pig.Generator
}

// SessionStore manages generation sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates a new session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Create registers a session for gen under a fresh ID.
func (s *SessionStore) Create(name, snapshotKey string, gen *pig.Generator) *Session {
	session := &Session{
		ID:          uuid.NewString(),
		Name:        name,
		SnapshotKey: snapshotKey,
		Created:     time.Now(),
		Gen:         gen,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	return session, ok
}

// Destroy removes a session and returns it.
func (s *SessionStore) Destroy(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	delete(s.sessions, id)
	return session, ok
}

// Len returns the number of open sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
