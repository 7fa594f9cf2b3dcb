package ledger

import (
	"fmt"

	"trustline-credit/internal/domain/loan"
)

// Step names one user-signed action of the loan lifecycle.
type Step string

const (
	StepTrustline Step = "trustline"
	StepEscrow    Step = "escrow"
	StepCredit    Step = "credit"
	StepRepay     Step = "repay"
	StepClaim     Step = "claim"
	StepCancel    Step = "cancel"
)

var Steps = []Step{StepTrustline, StepEscrow, StepCredit, StepRepay, StepClaim, StepCancel}

func ParseStep(s string) (Step, error) {
	for _, st := range Steps {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStep, s)
}

// Signer is the party whose wallet must sign the step.
func (s Step) Signer() loan.Role {
	switch s {
	case StepCredit, StepClaim:
		return loan.RoleLender
	default:
		return loan.RoleBorrower
	}
}

// Allowed reports whether step may still be issued for l. A step whose outcome is
// already recorded, or whose loan has moved past it, is refused with
// loan.ErrInvalidTransition.
func (s Step) Allowed(l loan.Loan) error {
	st, err := l.Stage()
	if err != nil {
		return err
	}
	var ok bool
	switch st.(type) {
	case loan.Offered:
		ok = s == StepTrustline || s == StepEscrow
	case loan.CollateralLocked:
		ok = s == StepTrustline || s == StepCredit || s == StepCancel
	case loan.CreditSent, loan.Defaulted:
		ok = s == StepRepay || s == StepClaim || s == StepCancel
	case loan.Repaid:
		ok = s == StepClaim || s == StepCancel
	}
	if !ok {
		return fmt.Errorf("%w: %s not allowed from %s", loan.ErrInvalidTransition, s, loan.StatusOf(st))
	}
	return nil
}

// Build produces the unsigned transaction for step from the loan's recorded fields.
func Build(s Step, l loan.Loan) (Tx, error) {
	switch s {
	case StepTrustline:
		return TrustSet(l)
	case StepEscrow:
		return EscrowCreate(l)
	case StepCredit:
		return CreditIssue(l)
	case StepRepay:
		return Repayment(l)
	case StepClaim:
		return EscrowFinish(l)
	case StepCancel:
		return EscrowCancel(l)
	}
	return Tx{}, fmt.Errorf("%w: %q", ErrUnknownStep, string(s))
}

// Event turns the confirmed outcome of a step into a lifecycle event. closeTime is the
// ledger close time of the validated transaction, in ledger epoch seconds.
func (s Step) Event(txID, signer string, sequence uint32, closeTime int64, l loan.Loan) (loan.Event, error) {
	switch s {
	case StepTrustline:
		return loan.TrustlineOpened{TxID: txID, Signer: signer}, nil
	case StepEscrow:
		return loan.EscrowCreated{TxID: txID, Sequence: sequence, Signer: signer}, nil
	case StepCredit:
		return loan.CreditIssued{TxID: txID, Signer: signer}, nil
	case StepRepay:
		// a locally signed repayment carries exactly the loan's own terms
		return loan.RepaymentObserved{TxID: txID, Account: signer, Destination: l.LenderAddress, Amount: l.RepayAmount}, nil
	case StepClaim:
		return loan.EscrowFinished{TxID: txID, Signer: signer, At: closeTime}, nil
	case StepCancel:
		return loan.EscrowCancelled{TxID: txID, Signer: signer, At: closeTime}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStep, string(s))
}
