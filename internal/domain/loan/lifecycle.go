package loan

import "fmt"

// Event is an input to the lifecycle: either the confirmed outcome of a step this
// service signed, or a transaction observed on the ledger stream.
type Event interface {
	// Trigger names the event for audit records and metrics.
	Trigger() string
	// EventTxID is the ledger transaction the event stands for, if any.
	EventTxID() string
}

type TrustlineOpened struct {
	TxID   string
	Signer string
}

type EscrowCreated struct {
	TxID     string
	Sequence uint32
	Signer   string
}

type CreditIssued struct {
	TxID   string
	Signer string
}

// RepaymentObserved is a native payment seen on the validated stream (or signed
// locally). Amount is the raw drops string of the transaction.
type RepaymentObserved struct {
	TxID        string
	Account     string
	Destination string
	Amount      string
}

// DueElapsed marks the loan defaulted when no repayment arrived by DueAt.
type DueElapsed struct {
	At int64
}

type EscrowFinished struct {
	TxID   string
	Signer string
	At     int64
}

type EscrowCancelled struct {
	TxID   string
	Signer string
	At     int64
}

func (TrustlineOpened) Trigger() string   { return "trustline_opened" }
func (EscrowCreated) Trigger() string     { return "escrow_created" }
func (CreditIssued) Trigger() string      { return "credit_issued" }
func (RepaymentObserved) Trigger() string { return "repayment_observed" }
func (DueElapsed) Trigger() string        { return "due_elapsed" }
func (EscrowFinished) Trigger() string    { return "escrow_finished" }
func (EscrowCancelled) Trigger() string   { return "escrow_cancelled" }

func (e TrustlineOpened) EventTxID() string   { return e.TxID }
func (e EscrowCreated) EventTxID() string     { return e.TxID }
func (e CreditIssued) EventTxID() string      { return e.TxID }
func (e RepaymentObserved) EventTxID() string { return e.TxID }
func (DueElapsed) EventTxID() string          { return "" }
func (e EscrowFinished) EventTxID() string    { return e.TxID }
func (e EscrowCancelled) EventTxID() string   { return e.TxID }

// Apply computes the record that follows l once ev is taken into account. It never
// mutates l. changed is false when ev was already applied or does not concern l.
func Apply(l Loan, ev Event) (next Loan, changed bool, err error) {
	switch e := ev.(type) {
	case TrustlineOpened:
		if e.Signer != l.BorrowerAddress {
			return l, false, guardErr("trustline must be opened by the borrower")
		}
		return l, false, nil

	case EscrowCreated:
		if l.HasEscrow() && l.EscrowRef.TxID == e.TxID {
			return l, false, nil
		}
		if l.Status != StatusOffered {
			return l, false, transitionErr(l.Status, ev)
		}
		if e.TxID == "" || e.Sequence == 0 {
			return l, false, guardErr("escrow confirmation needs a tx id and sequence")
		}
		if e.Signer != l.BorrowerAddress {
			return l, false, guardErr("escrow must be created by the borrower")
		}
		return l.WithEscrow(e.Sequence, e.TxID).WithStatus(StatusCollateralLocked), true, nil

	case CreditIssued:
		if l.CreditTxID != "" && l.CreditTxID == e.TxID {
			return l, false, nil
		}
		if l.Status != StatusCollateralLocked {
			return l, false, transitionErr(l.Status, ev)
		}
		if e.Signer != l.LenderAddress {
			return l, false, guardErr("credit must be issued by the lender")
		}
		l.CreditTxID = e.TxID
		if l.RepayTxID != "" {
			// the repayment was validated before the credit was reconciled
			return l.WithStatus(StatusRepaid), true, nil
		}
		return l.WithStatus(StatusCreditSent), true, nil

	case RepaymentObserved:
		if l.RepayTxID != "" {
			// at most one repayment is ever recorded
			return l, false, nil
		}
		if !RepaymentMatches(l, e) {
			return l, false, nil
		}
		switch l.Status {
		case StatusCreditSent, StatusDefaulted:
			l.RepayTxID = e.TxID
			return l.WithStatus(StatusRepaid), true, nil
		case StatusCollateralLocked:
			// kept until CreditIssued moves the loan straight to REPAID
			l.RepayTxID = e.TxID
			return l, true, nil
		}
		return l, false, transitionErr(l.Status, ev)

	case DueElapsed:
		if l.Status == StatusDefaulted {
			return l, false, nil
		}
		if l.Status != StatusCreditSent {
			return l, false, transitionErr(l.Status, ev)
		}
		if e.At < l.DueAt {
			return l, false, nil
		}
		return l.WithStatus(StatusDefaulted), true, nil

	case EscrowFinished:
		if l.ClaimTxID != "" && l.ClaimTxID == e.TxID {
			return l, false, nil
		}
		switch l.Status {
		case StatusCreditSent, StatusRepaid, StatusDefaulted:
		default:
			return l, false, transitionErr(l.Status, ev)
		}
		if e.Signer != l.LenderAddress {
			return l, false, guardErr("collateral can only be claimed by the lender")
		}
		if e.At < l.DueAt {
			return l, false, guardErr("collateral cannot be claimed before the due time")
		}
		l.ClaimTxID = e.TxID
		return l.WithStatus(StatusCollateralClaimed), true, nil

	case EscrowCancelled:
		if l.CancelTxID != "" && l.CancelTxID == e.TxID {
			return l, false, nil
		}
		switch l.Status {
		case StatusCollateralLocked, StatusCreditSent, StatusRepaid, StatusDefaulted:
		default:
			return l, false, transitionErr(l.Status, ev)
		}
		if e.Signer != l.BorrowerAddress {
			return l, false, guardErr("escrow can only be cancelled by the borrower")
		}
		if e.At < l.CancelAt {
			return l, false, guardErr("escrow cannot be cancelled before the cancel time")
		}
		l.CancelTxID = e.TxID
		return l.WithStatus(StatusCollateralReturned), true, nil
	}
	return l, false, fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, ev)
}

// RepaymentMatches applies the exact-match rule: sender, recipient and amount must
// equal the recorded values with no tolerance.
func RepaymentMatches(l Loan, e RepaymentObserved) bool {
	return l.BorrowerAddress != "" &&
		l.LenderAddress != "" &&
		e.Account == l.BorrowerAddress &&
		e.Destination == l.LenderAddress &&
		e.Amount == l.RepayAmount
}

func guardErr(reason string) error { return fmt.Errorf("%w: %s", ErrGuard, reason) }

func transitionErr(from Status, ev Event) error {
	return fmt.Errorf("%w: %s not allowed from %s", ErrInvalidTransition, ev.Trigger(), from)
}
