package id

import (
	"strings"

	"github.com/google/uuid"
)

// NewLoanID returns a random RFC 4122 v4 UUID in canonical form. Loan ids travel
// in invitation links, so the hyphenated form is kept.
func NewLoanID() string {
	return uuid.NewString()
}

// NewID32 returns exactly 32 hex characters (no separators/prefixes).
func NewID32() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsLoanID reports whether s is a canonical UUID.
func IsLoanID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
