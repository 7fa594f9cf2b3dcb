package signing

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSigningDisabled = errors.New("wallet signing is not configured")
	ErrRequestPending  = errors.New("a signature request is already pending")
	ErrRequestNotFound = errors.New("sign request not found")
)

// StepSignIn labels wallet connection requests.
const StepSignIn = "signin"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSigned    Status = "SIGNED"
	StatusConfirmed Status = "CONFIRMED"
	StatusDeclined  Status = "DECLINED"
	StatusRejected  Status = "REJECTED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

// Final reports whether s ends the request.
func (s Status) Final() bool { return s != StatusPending && s != StatusSigned }

// RejectedError is a signed transaction the ledger did not apply.
type RejectedError struct {
	Result string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transaction failed on the ledger: %s", e.Result)
}

type SignRequestDTO struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	LoanID       string    `json:"loanId,omitempty"`
	Step         string    `json:"step"`
	Status       Status    `json:"status"`
	Message      string    `json:"message,omitempty"`
	QRURL        string    `json:"qrUrl,omitempty"`
	DeepLink     string    `json:"deepLink,omitempty"`
	TxID         string    `json:"txId,omitempty"`
	Account      string    `json:"account,omitempty"`
	EngineResult string    `json:"engineResult,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
