package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"trustline-credit/internal/domain/loan"
	"trustline-credit/internal/domain/session"
	loanuc "trustline-credit/internal/usecase/loan"
	"trustline-credit/internal/usecase/signing"
)

var ErrInvalidRole = errors.New("role must be lender or borrower")

// SignIn starts a wallet sign-in for a session.
type SignIn interface {
	SignIn(ctx context.Context, sessionID string, onSigned func(ctx context.Context, account string) error) (*signing.SignRequestDTO, error)
}

// Loans is the part of the loan usecase a wallet connection touches.
type Loans interface {
	Load(ctx context.Context, loanID string) (loan.Loan, error)
	SetAddresses(ctx context.Context, loanID, lender, borrower string) (*loanuc.LoanDTO, error)
}

type SessionDTO struct {
	ID           string    `json:"id"`
	Connected    bool      `json:"connected"`
	Account      string    `json:"account,omitempty"`
	AccountShort string    `json:"accountShort,omitempty"`
	Role         string    `json:"role,omitempty"`
	ConnectedAt  time.Time `json:"connectedAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toDTO(s *session.Session) *SessionDTO {
	dto := &SessionDTO{ID: s.ID, Connected: s.Connected(), Role: s.Role, CreatedAt: s.CreatedAt}
	if s.Connected() {
		dto.Account = s.Account
		dto.AccountShort = session.Shorten(s.Account)
		dto.ConnectedAt = s.ConnectedAt
	}
	return dto
}

type Usecase struct {
	repo   session.Repository
	signIn SignIn
	loans  Loans
	now    func() time.Time
	log    *slog.Logger
}

func NewUsecase(repo session.Repository, signIn SignIn, loans Loans, logger *slog.Logger) *Usecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &Usecase{repo: repo, signIn: signIn, loans: loans, now: time.Now, log: logger.With("component", "session")}
}

func (u *Usecase) Create(ctx context.Context) (*SessionDTO, error) {
	s := session.New(u.now())
	if err := u.repo.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return toDTO(s), nil
}

func (u *Usecase) Get(ctx context.Context, sessionID string) (*SessionDTO, error) {
	s, err := u.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return toDTO(s), nil
}

// Connect asks the wallet to sign in as role. When loanID names an OFFERED loan
// with no address recorded for role, the signed-in account fills it.
func (u *Usecase) Connect(ctx context.Context, sessionID string, role loan.Role, loanID string) (*signing.SignRequestDTO, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if loanID != "" {
		if _, err := u.loans.Load(ctx, loanID); err != nil {
			return nil, err
		}
	}
	return u.signIn.SignIn(ctx, sessionID, func(ctx context.Context, account string) error {
		return u.connected(ctx, sessionID, role, loanID, account)
	})
}

func (u *Usecase) connected(ctx context.Context, sessionID string, role loan.Role, loanID, account string) error {
	s, err := u.repo.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.Connect(account, string(role), u.now())
	if err := u.repo.Save(ctx, s); err != nil {
		return err
	}
	u.log.Info("wallet connected", "session_id", sessionID, "role", role, "account", account)

	if loanID == "" {
		return nil
	}
	l, err := u.loans.Load(ctx, loanID)
	if err != nil {
		return err
	}
	if !l.AddressesEditable() || l.AddressFor(role) != "" {
		return nil
	}
	lender, borrower := "", account
	if role == loan.RoleLender {
		lender, borrower = account, ""
	}
	_, err = u.loans.SetAddresses(ctx, loanID, lender, borrower)
	if errors.Is(err, loan.ErrAddressLocked) {
		// another wallet claimed the slot first; the session stays connected
		u.log.Info("loan address not assigned", "session_id", sessionID, "loan_id", loanID, "err", err)
		return nil
	}
	return err
}

// AssignAddresses writes loan addresses on behalf of a connected session. The
// session may only write the address of the role it connected as, and only with
// its own account.
func (u *Usecase) AssignAddresses(ctx context.Context, sessionID, loanID, lender, borrower string) (*loanuc.LoanDTO, error) {
	s, err := u.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	role := loan.Role(s.Role)
	if !s.Connected() || !role.Valid() {
		return nil, &session.AuthorizationError{Message: "Connect your wallet first."}
	}
	own, other := borrower, lender
	if role == loan.RoleLender {
		own, other = lender, borrower
	}
	if strings.TrimSpace(other) != "" {
		return nil, &session.AuthorizationError{Role: role, Message: fmt.Sprintf("A %s wallet can only set the %s address.", role, role)}
	}
	if strings.TrimSpace(own) != s.Account {
		return nil, &session.AuthorizationError{Role: role, Message: fmt.Sprintf("Only the connected wallet %s can be set as %s.", session.Shorten(s.Account), role)}
	}
	if role == loan.RoleLender {
		return u.loans.SetAddresses(ctx, loanID, s.Account, "")
	}
	return u.loans.SetAddresses(ctx, loanID, "", s.Account)
}

func (u *Usecase) Logout(ctx context.Context, sessionID string) (*SessionDTO, error) {
	s, err := u.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.Logout()
	if err := u.repo.Save(ctx, s); err != nil {
		return nil, err
	}
	return toDTO(s), nil
}
