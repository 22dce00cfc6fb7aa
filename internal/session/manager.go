package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNotOpen is returned when no session is open for a draft.
var ErrNotOpen = errors.New("no open session for draft")

// Manager owns the open editing sessions of one process. At most one
// session exists per draft.
type Manager struct {
	drafts  DraftService
	rosters RosterService
	cfg     Config

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager returns a manager that opens sessions against the given services.
func NewManager(drafts DraftService, rosters RosterService, cfg Config) *Manager {
	return &Manager{
		drafts:   drafts,
		rosters:  rosters,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Open returns the session of a draft, loading it if it is not open yet.
func (m *Manager) Open(ctx context.Context, draftID string) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if s, ok := m.sessions[draftID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s, err := Open(ctx, draftID, m.drafts, m.rosters, m.cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[s.ID()]; ok {
		// Lost a race with another Open; ours has no edits yet.
		_ = s.Close(ctx)
		return existing, nil
	}
	if m.closed {
		_ = s.Close(ctx)
		return nil, ErrClosed
	}
	m.sessions[s.ID()] = s
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(draftID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[draftID]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNotOpen, draftID)
	}
	return s, nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseSession flushes and closes the session of a draft.
func (m *Manager) CloseSession(ctx context.Context, draftID string) error {
	m.mu.Lock()
	s, ok := m.sessions[draftID]
	delete(m.sessions, draftID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w %s", ErrNotOpen, draftID)
	}
	return s.Close(ctx)
}

// Close flushes and closes every open session. The manager accepts no new
// sessions afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for id, s := range sessions {
		if err := s.Close(ctx); err != nil {
			slog.Error("close session", "draft_id", id, "error", err)
			errs = append(errs, fmt.Errorf("close session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
