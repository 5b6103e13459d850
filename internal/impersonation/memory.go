package impersonation

import (
	"context"
	"sync"
	"time"

	"github.com/meridian-crm/meridian/internal/shared"
)

// MemorySessionStore keeps the session log in process memory. Used in
// tests and in single-node deployments without Postgres.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: map[string]Session{}}
}

func (s *MemorySessionStore) Insert(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemorySessionStore) End(_ context.Context, id string, endedAt time.Time) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.EndedAt != nil {
		return Session{}, &shared.NotFoundError{Resource: "impersonation_sessions", ID: id}
	}
	sess.EndedAt = &endedAt
	s.sessions[id] = sess
	return sess, nil
}

func (s *MemorySessionStore) CountStartedSince(_ context.Context, superAdminID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, sess := range s.sessions {
		if sess.SuperAdminID == superAdminID && !sess.StartedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemorySessionStore) ListOpen(_ context.Context, superAdminID string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var open []Session
	for _, sess := range s.sessions {
		if sess.SuperAdminID == superAdminID && sess.Open() {
			open = append(open, sess)
		}
	}
	return open, nil
}

func (s *MemorySessionStore) Purge(_ context.Context, superAdminID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if superAdminID == "" {
		s.sessions = map[string]Session{}
		return nil
	}
	for id, sess := range s.sessions {
		if sess.SuperAdminID == superAdminID {
			delete(s.sessions, id)
		}
	}
	return nil
}

// MemoryConfigStore holds the caps in memory, seeded at construction.
type MemoryConfigStore struct {
	mu  sync.RWMutex
	cfg Config
}

func NewMemoryConfigStore(cfg Config) *MemoryConfigStore {
	return &MemoryConfigStore{cfg: cfg}
}

func (s *MemoryConfigStore) Get(context.Context) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, nil
}

func (s *MemoryConfigStore) Update(_ context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}
