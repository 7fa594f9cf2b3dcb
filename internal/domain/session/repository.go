package session

import "context"

type Repository interface {
	// Get returns ErrNotFound for unknown or expired sessions.
	Get(ctx context.Context, sessionID string) (*Session, error)
	// Save writes s and refreshes its expiry.
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, sessionID string) error
}
