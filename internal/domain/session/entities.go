package session

import (
	"errors"
	"time"

	"trustline-credit/pkg/id"
)

var ErrNotFound = errors.New("session not found")

// Session is one client's wallet connection. Account is empty while logged out.
type Session struct {
	ID          string    `json:"id"`
	Account     string    `json:"account,omitempty"`
	Role        string    `json:"role,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

func New(now time.Time) *Session {
	return &Session{ID: id.NewID32(), CreatedAt: now.UTC()}
}

// Key derives the persistence key of a session.
func Key(sessionID string) string { return "session:" + sessionID }

func (s *Session) Connected() bool { return s != nil && s.Account != "" }

func (s *Session) Connect(account, role string, now time.Time) {
	s.Account = account
	s.Role = role
	s.ConnectedAt = now.UTC()
}

func (s *Session) Logout() {
	s.Account = ""
	s.Role = ""
	s.ConnectedAt = time.Time{}
}
