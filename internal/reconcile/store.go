package reconcile

import (
	"fmt"
	"sync"

	"github.com/dvloznov/welth/internal/domain"
)

// Store holds live form sessions in memory. It is safe for concurrent use.
// Sessions are explicitly removed on submit or abandon; data is lost on
// service restart, which is acceptable for ephemeral form state.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Put registers a session.
func (s *Store) Put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

// Get returns the session with the given id, scoped to the owning user.
func (s *Store) Get(id, userID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok || session.UserID != userID {
		return nil, fmt.Errorf("%w: form session %s", domain.ErrNotFound, id)
	}
	return session, nil
}

// Remove closes the session and drops it from the store. A scan result that
// lands afterwards finds the session closed and is discarded.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[id]; ok {
		session.Close()
		delete(s.sessions, id)
	}
}
