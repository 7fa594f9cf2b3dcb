package loan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"trustline-credit/pkg/id"
	"trustline-credit/pkg/units"
)

type Status string

const (
	StatusOffered            Status = "OFFERED"
	StatusCollateralLocked   Status = "COLLATERAL_LOCKED"
	StatusCreditSent         Status = "CREDIT_SENT"
	StatusRepaid             Status = "REPAID"
	StatusDefaulted          Status = "DEFAULTED"
	StatusCollateralClaimed  Status = "COLLATERAL_CLAIMED"
	StatusCollateralReturned Status = "COLLATERAL_RETURNED"
)

// Label is the short human description shown next to a loan.
func (s Status) Label() string {
	switch s {
	case StatusOffered:
		return "Offer created"
	case StatusCollateralLocked:
		return "Collateral locked in escrow"
	case StatusCreditSent:
		return "Credit issued"
	case StatusRepaid:
		return "Repayment detected"
	case StatusDefaulted:
		return "Defaulted"
	case StatusCollateralClaimed:
		return "Collateral claimed"
	case StatusCollateralReturned:
		return "Collateral returned"
	default:
		return string(s)
	}
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCollateralClaimed || s == StatusCollateralReturned
}

type Role string

const (
	RoleLender   Role = "lender"
	RoleBorrower Role = "borrower"
)

func (r Role) Valid() bool { return r == RoleLender || r == RoleBorrower }

var (
	ErrNotFound          = errors.New("loan not found")
	ErrInvalidTerms      = errors.New("invalid loan terms")
	ErrInvalidTransition = errors.New("invalid loan state transition")
	ErrGuard             = errors.New("transition guard failed")
	ErrAddressLocked     = errors.New("loan addresses can no longer change")
)

// NotFoundMessage is shown when a shared link points at an unknown loan.
const NotFoundMessage = "Loan not found. Ask the lender for a fresh link."

// EscrowRef identifies the collateral escrow on the ledger. Sequence and TxID are
// only ever set together.
type EscrowRef struct {
	Sequence uint32 `json:"escrowSequence"`
	TxID     string `json:"escrowTxId"`
}

// Loan is the single persisted record of a credit agreement. Values are replaced
// whole; helpers below return modified copies.
type Loan struct {
	ID               string `json:"id"`
	LenderAddress    string `json:"lenderAddress"`
	BorrowerAddress  string `json:"borrowerAddress"`
	CurrencyCode     string `json:"currencyCode"`
	CreditAmount     string `json:"creditAmount"`
	CollateralAmount string `json:"collateralAmount"`
	RepayAmount      string `json:"repayAmount"`
	DueAt            int64  `json:"dueAt"`
	CancelAt         int64  `json:"cancelAt"`
	*EscrowRef
	CreditTxID string    `json:"creditTxId,omitempty"`
	RepayTxID  string    `json:"repayTxId,omitempty"`
	ClaimTxID  string    `json:"claimTxId,omitempty"`
	CancelTxID string    `json:"cancelTxId,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Key derives the persistence key of a loan.
func Key(loanID string) string { return "loan:" + loanID }

// IDFromKey is the inverse of Key.
func IDFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "loan:") || len(key) == len("loan:") {
		return "", false
	}
	return strings.TrimPrefix(key, "loan:"), true
}

// Terms are the caller-supplied parameters of a new offer.
type Terms struct {
	LenderAddress   string
	BorrowerAddress string
	CurrencyCode    string
	CreditAmount    string
	CollateralXRP   string
	RepayXRP        string
	DueMinutes      int64
	GraceMinutes    int64
}

var reCurrency = regexp.MustCompile(`^([A-Za-z0-9?!@#$%^&*<>(){}\[\]|]{3}|[A-Za-z0-9]{4,20}|[A-F0-9]{40})$`)

// ValidCurrency reports whether code can name an issued token. "XRP" is reserved.
func ValidCurrency(code string) bool {
	return reCurrency.MatchString(code) && !strings.EqualFold(code, "XRP")
}

// NewOffer builds a fresh OFFERED loan from terms at time now.
func NewOffer(t Terms, now time.Time) (Loan, error) {
	switch {
	case strings.TrimSpace(t.LenderAddress) == "":
		return Loan{}, fmt.Errorf("%w: lender address is required", ErrInvalidTerms)
	case t.DueMinutes <= 0 || t.GraceMinutes <= 0:
		return Loan{}, fmt.Errorf("%w: due and grace minutes must be positive", ErrInvalidTerms)
	case !units.IsTokenAmount(t.CreditAmount):
		return Loan{}, fmt.Errorf("%w: credit amount must be a positive decimal of at most %d digits", ErrInvalidTerms, units.MaxTokenDigits)
	case !ValidCurrency(t.CurrencyCode):
		return Loan{}, fmt.Errorf("%w: invalid currency code", ErrInvalidTerms)
	case !units.IsXRPAmount(t.CollateralXRP) || !units.IsXRPAmount(t.RepayXRP):
		return Loan{}, fmt.Errorf("%w: collateral and repay amounts must be positive XRP with at most %d decimals", ErrInvalidTerms, units.MaxXRPDecimals)
	}

	collateral := units.ToLedgerAmount(t.CollateralXRP)
	repay := units.ToLedgerAmount(t.RepayXRP)

	now = now.UTC()
	return Loan{
		ID:               id.NewLoanID(),
		LenderAddress:    strings.TrimSpace(t.LenderAddress),
		BorrowerAddress:  strings.TrimSpace(t.BorrowerAddress),
		CurrencyCode:     t.CurrencyCode,
		CreditAmount:     t.CreditAmount,
		CollateralAmount: collateral,
		RepayAmount:      repay,
		DueAt:            units.LedgerEpochFromNowPlusMinutes(now, t.DueMinutes),
		CancelAt:         units.LedgerEpochFromNowPlusMinutes(now, t.DueMinutes+t.GraceMinutes),
		Status:           StatusOffered,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// AddressFor returns the recorded address of the given party.
func (l Loan) AddressFor(r Role) string {
	if r == RoleLender {
		return l.LenderAddress
	}
	return l.BorrowerAddress
}

// HasEscrow reports whether the collateral-lock step is recorded.
func (l Loan) HasEscrow() bool { return l.EscrowRef != nil }

// EscrowSequence returns the escrow sequence, or 0 when no escrow is recorded.
func (l Loan) EscrowSequence() uint32 {
	if l.EscrowRef == nil {
		return 0
	}
	return l.Sequence
}

// AddressesEditable reports whether lender and borrower may still be recorded.
// Once the escrow names its destination on the ledger, both are fixed.
func (l Loan) AddressesEditable() bool { return l.Status == StatusOffered }

// Assign records addr as the address of r. A recorded address is never replaced
// by a different one, and nothing changes once the loan has left OFFERED.
func (l Loan) Assign(r Role, addr string) (Loan, error) {
	addr = strings.TrimSpace(addr)
	if !l.AddressesEditable() {
		return l, fmt.Errorf("%w: status %s", ErrAddressLocked, l.Status)
	}
	if cur := l.AddressFor(r); cur != "" && cur != addr {
		return l, fmt.Errorf("%w: %s address already set", ErrAddressLocked, r)
	}
	if r == RoleLender {
		return l.WithLender(addr), nil
	}
	return l.WithBorrower(addr), nil
}

func (l Loan) WithLender(addr string) Loan {
	l.LenderAddress = strings.TrimSpace(addr)
	return l
}

func (l Loan) WithBorrower(addr string) Loan {
	l.BorrowerAddress = strings.TrimSpace(addr)
	return l
}

func (l Loan) WithEscrow(seq uint32, txID string) Loan {
	l.EscrowRef = &EscrowRef{Sequence: seq, TxID: txID}
	return l
}

func (l Loan) WithStatus(s Status) Loan {
	l.Status = s
	return l
}

// Touch stamps UpdatedAt.
func (l Loan) Touch(now time.Time) Loan {
	l.UpdatedAt = now.UTC()
	return l
}
