package session

import (
	"fmt"

	"trustline-credit/internal/domain/loan"
)

// AuthorizationError blocks an action because the wrong party (or nobody) is
// connected. Message is meant for the user.
type AuthorizationError struct {
	Role    loan.Role
	Message string
}

func (e *AuthorizationError) Error() string { return e.Message }

// Require checks that s is connected with exactly the account the step expects.
func Require(required string, role loan.Role, s *Session) error {
	switch {
	case required == "":
		return &AuthorizationError{Role: role, Message: fmt.Sprintf("Missing %s address.", role)}
	case !s.Connected():
		return &AuthorizationError{Role: role, Message: fmt.Sprintf("Connect the %s wallet first.", role)}
	case s.Account != required:
		return &AuthorizationError{Role: role, Message: fmt.Sprintf("Wrong wallet connected. Expected %s %s.", role, Shorten(required))}
	}
	return nil
}

// Shorten renders an address as its first six and last four characters.
func Shorten(addr string) string {
	r := []rune(addr)
	if len(r) <= 10 {
		return addr
	}
	return string(r[:6]) + "…" + string(r[len(r)-4:])
}
