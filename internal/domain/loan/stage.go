package loan

// Stage is a tagged view of a Loan: each variant carries exactly the fields that
// are meaningful in that status.
type Stage interface{ stage() Status }

type Offered struct{}

// CollateralLocked carries RepayTxID when a repayment was validated before the
// credit confirmation arrived.
type CollateralLocked struct {
	Escrow    EscrowRef
	RepayTxID string
}

type CreditSent struct {
	Escrow     EscrowRef
	CreditTxID string
}

type Repaid struct {
	Escrow     EscrowRef
	CreditTxID string
	RepayTxID  string
}

type Defaulted struct {
	Escrow     EscrowRef
	CreditTxID string
}

type CollateralClaimed struct {
	Escrow     EscrowRef
	CreditTxID string
	RepayTxID  string
	ClaimTxID  string
}

type CollateralReturned struct {
	Escrow     EscrowRef
	CreditTxID string
	RepayTxID  string
	CancelTxID string
}

func (Offered) stage() Status            { return StatusOffered }
func (CollateralLocked) stage() Status   { return StatusCollateralLocked }
func (CreditSent) stage() Status         { return StatusCreditSent }
func (Repaid) stage() Status             { return StatusRepaid }
func (Defaulted) stage() Status          { return StatusDefaulted }
func (CollateralClaimed) stage() Status  { return StatusCollateralClaimed }
func (CollateralReturned) stage() Status { return StatusCollateralReturned }

// StatusOf returns the status a stage variant stands for.
func StatusOf(s Stage) Status { return s.stage() }

// Stage returns the variant for the loan's status. It returns ErrInvalidTransition
// when the record is inconsistent, e.g. a locked status without an escrow.
func (l Loan) Stage() (Stage, error) {
	if l.Status == StatusOffered {
		return Offered{}, nil
	}
	if l.EscrowRef == nil {
		return nil, ErrInvalidTransition
	}
	esc := *l.EscrowRef
	switch l.Status {
	case StatusCollateralLocked:
		return CollateralLocked{Escrow: esc, RepayTxID: l.RepayTxID}, nil
	case StatusCreditSent:
		return CreditSent{Escrow: esc, CreditTxID: l.CreditTxID}, nil
	case StatusRepaid:
		return Repaid{Escrow: esc, CreditTxID: l.CreditTxID, RepayTxID: l.RepayTxID}, nil
	case StatusDefaulted:
		return Defaulted{Escrow: esc, CreditTxID: l.CreditTxID}, nil
	case StatusCollateralClaimed:
		return CollateralClaimed{Escrow: esc, CreditTxID: l.CreditTxID, RepayTxID: l.RepayTxID, ClaimTxID: l.ClaimTxID}, nil
	case StatusCollateralReturned:
		return CollateralReturned{Escrow: esc, CreditTxID: l.CreditTxID, RepayTxID: l.RepayTxID, CancelTxID: l.CancelTxID}, nil
	}
	return nil, ErrInvalidTransition
}
