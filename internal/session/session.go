// Package session keeps the per-login state of dashboard users: who they are
// and the list view state of every admin screen they have open.
//
// A Session is created by Manager.Start on login and torn down by End on
// logout. Access tokens carry the session id, so ending a session rejects
// its tokens even before they expire.
package session

import (
	"context"
	"sync"
	"time"

	"tradehub-admin/internal/listing"
	"tradehub-admin/internal/metrics"

	"github.com/google/uuid"
)

type Session struct {
	ID        string
	UserID    string
	Email     string
	Role      string
	CreatedAt time.Time
	ExpiresAt time.Time

	mu    sync.Mutex
	views map[string]listing.State
}

// View returns the stored list state of table, or a fresh one.
func (s *Session) View(table string, pageSize int) listing.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.views[table]; ok {
		return st
	}
	return listing.NewState(pageSize)
}

// UpdateView runs fn on the list state of table under the session lock and
// stores the result. Concurrent updates apply in arrival order.
func (s *Session) UpdateView(table string, pageSize int, fn func(*listing.State)) listing.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.views[table]
	if !ok {
		st = listing.NewState(pageSize)
	}
	fn(&st)
	s.views[table] = st
	return st
}

func (s *Session) ResetView(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, table)
}

type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: map[string]*Session{},
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *Manager) Start(userID, email, role string) *Session {
	now := m.now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		views:     map[string]listing.State{},
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()
	return s
}

// Get returns a live session. Expired sessions are dropped on access.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !m.now().Before(s.ExpiresAt) {
		m.End(id)
		return nil, false
	}
	return s, true
}

// End tears the session down and reports whether it existed.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	return true
}

// EndUser ends every session of userID, e.g. after the account was suspended
// or deleted.
func (m *Manager) EndUser(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
			n++
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	return n
}

// EndStale ends the sessions of userID that were opened under a role other
// than role, so a changed role takes effect on the next request.
func (m *Manager) EndStale(userID, role string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.UserID == userID && s.Role != role {
			delete(m.sessions, id)
			n++
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	return n
}

// Sweep drops expired sessions and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	return n
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

type contextKey string

const sessionKey contextKey = "session"

func WithContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}
