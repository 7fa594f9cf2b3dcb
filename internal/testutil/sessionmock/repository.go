package sessionmock

import (
	"context"
	"sync"

	"trustline-credit/internal/domain/session"
)

var _ session.Repository = (*Repo)(nil)

// Repo is a function-backed session.Repository backed by a map when no
// functions are set.
type Repo struct {
	GetFn    func(ctx context.Context, sessionID string) (*session.Session, error)
	SaveFn   func(ctx context.Context, s *session.Session) error
	DeleteFn func(ctx context.Context, sessionID string) error

	mu   sync.Mutex
	data map[string]session.Session
}

func (m *Repo) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &s, nil
}

func (m *Repo) Save(ctx context.Context, s *session.Session) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]session.Session{}
	}
	m.data[s.ID] = *s
	return nil
}

func (m *Repo) Delete(ctx context.Context, sessionID string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, sessionID)
	return nil
}
