package loan

import (
	"errors"
	"testing"
)

func TestStage_Variants(t *testing.T) {
	s, err := baseLoan().Stage()
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, ok := s.(Offered); !ok {
		t.Fatalf("got %T, want Offered", s)
	}

	l := creditSent()
	l.CreditTxID = "CRD"
	s, err = l.Stage()
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	cs, ok := s.(CreditSent)
	if !ok {
		t.Fatalf("got %T, want CreditSent", s)
	}
	if cs.Escrow.Sequence != 7 || cs.CreditTxID != "CRD" {
		t.Fatalf("payload = %+v", cs)
	}
	if StatusOf(s) != StatusCreditSent {
		t.Fatalf("StatusOf = %s", StatusOf(s))
	}
}

func TestStage_AllStatuses(t *testing.T) {
	for _, st := range []Status{
		StatusCollateralLocked, StatusCreditSent, StatusRepaid, StatusDefaulted,
		StatusCollateralClaimed, StatusCollateralReturned,
	} {
		s, err := baseLoan().WithEscrow(1, "E").WithStatus(st).Stage()
		if err != nil {
			t.Fatalf("%s: %v", st, err)
		}
		if StatusOf(s) != st {
			t.Fatalf("StatusOf = %s, want %s", StatusOf(s), st)
		}
	}
}

func TestStage_Inconsistent(t *testing.T) {
	if _, err := baseLoan().WithStatus(StatusCreditSent).Stage(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if _, err := baseLoan().WithEscrow(1, "E").WithStatus("BOGUS").Stage(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}
