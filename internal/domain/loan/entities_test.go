package loan

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"trustline-credit/pkg/id"
)

func validTerms() Terms {
	return Terms{
		LenderAddress:   lender,
		BorrowerAddress: borrower,
		CurrencyCode:    "CRD",
		CreditAmount:    "100",
		CollateralXRP:   "5",
		RepayXRP:        "5.2",
		DueMinutes:      10,
		GraceMinutes:    10,
	}
}

func TestNewOffer_Scenario(t *testing.T) {
	T := time.Unix(1_736_000_000, 0)
	l, err := NewOffer(validTerms(), T)
	if err != nil {
		t.Fatalf("NewOffer: %v", err)
	}
	if l.Status != StatusOffered {
		t.Fatalf("status = %s", l.Status)
	}
	if !id.IsLoanID(l.ID) {
		t.Fatalf("id %q is not a uuid", l.ID)
	}
	if l.CollateralAmount != "5000000" || l.RepayAmount != "5200000" {
		t.Fatalf("amounts = %s/%s", l.CollateralAmount, l.RepayAmount)
	}
	if want := int64(1_736_000_000 + 600 - 946_684_800); l.DueAt != want {
		t.Fatalf("dueAt = %d, want %d", l.DueAt, want)
	}
	if want := int64(1_736_000_000 + 1200 - 946_684_800); l.CancelAt != want {
		t.Fatalf("cancelAt = %d, want %d", l.CancelAt, want)
	}
	if l.CancelAt-l.DueAt != 600 {
		t.Fatalf("cancelAt-dueAt = %d", l.CancelAt-l.DueAt)
	}
	if l.HasEscrow() {
		t.Fatalf("fresh offer must not carry an escrow")
	}
}

func TestNewOffer_FreshIDs(t *testing.T) {
	a, _ := NewOffer(validTerms(), time.Now())
	b, _ := NewOffer(validTerms(), time.Now())
	if a.ID == b.ID {
		t.Fatalf("ids collide: %s", a.ID)
	}
}

func TestNewOffer_InvalidTerms(t *testing.T) {
	cases := map[string]func(*Terms){
		"no lender":       func(x *Terms) { x.LenderAddress = " " },
		"zero due":        func(x *Terms) { x.DueMinutes = 0 },
		"negative grace":  func(x *Terms) { x.GraceMinutes = -1 },
		"credit junk":     func(x *Terms) { x.CreditAmount = "lots" },
		"credit zero":     func(x *Terms) { x.CreditAmount = "0" },
		"collateral NaN":  func(x *Terms) { x.CollateralXRP = "NaN" },
		"repay negative":  func(x *Terms) { x.RepayXRP = "-1" },
		"currency xrp":    func(x *Terms) { x.CurrencyCode = "XRP" },
		"currency spaces": func(x *Terms) { x.CurrencyCode = "C D" },
		"collateral exp":  func(x *Terms) { x.CollateralXRP = "1e900000000" },
		"repay sub-drop":  func(x *Terms) { x.RepayXRP = "5.0000001" },
		"repay supply":    func(x *Terms) { x.RepayXRP = "100000000001" },
		"credit exp":      func(x *Terms) { x.CreditAmount = "1e9" },
		"credit digits":   func(x *Terms) { x.CreditAmount = "1.234567890123456" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			terms := validTerms()
			mutate(&terms)
			if _, err := NewOffer(terms, time.Now()); !errors.Is(err, ErrInvalidTerms) {
				t.Fatalf("err = %v, want ErrInvalidTerms", err)
			}
		})
	}
}

func TestNewOffer_BorrowerOptional(t *testing.T) {
	terms := validTerms()
	terms.BorrowerAddress = ""
	l, err := NewOffer(terms, time.Now())
	if err != nil {
		t.Fatalf("NewOffer: %v", err)
	}
	if l.BorrowerAddress != "" {
		t.Fatalf("borrower = %q", l.BorrowerAddress)
	}
}

func TestKey(t *testing.T) {
	if got := Key("abc"); got != "loan:abc" {
		t.Fatalf("Key = %q", got)
	}
	if Key("a") == Key("b") {
		t.Fatalf("Key not injective")
	}
	got, ok := IDFromKey(Key("abc"))
	if !ok || got != "abc" {
		t.Fatalf("IDFromKey = %q, %v", got, ok)
	}
	for _, k := range []string{"loan:", "session:abc", "abc"} {
		if _, ok := IDFromKey(k); ok {
			t.Fatalf("IDFromKey(%q) accepted", k)
		}
	}
}

func TestHelpersReturnCopies(t *testing.T) {
	l := baseLoan()
	m := l.WithLender("rOther").WithBorrower(" rNew ").WithStatus(StatusDefaulted).WithEscrow(3, "E")
	if l.LenderAddress != lender || l.BorrowerAddress != borrower || l.Status != StatusOffered || l.HasEscrow() {
		t.Fatalf("original mutated: %+v", l)
	}
	if m.LenderAddress != "rOther" || m.BorrowerAddress != "rNew" || m.EscrowSequence() != 3 {
		t.Fatalf("copy wrong: %+v", m)
	}
}

func TestLoanJSONLayout(t *testing.T) {
	l := creditSent()
	l.CreditTxID = "CRD"
	b, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"lenderAddress":`, `"escrowSequence":7`, `"escrowTxId":"ESC"`, `"creditTxId":"CRD"`, `"status":"CREDIT_SENT"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("json %s missing %s", s, want)
		}
	}
	if strings.Contains(s, "repayTxId") {
		t.Fatalf("empty repayTxId should be omitted: %s", s)
	}

	offered, _ := json.Marshal(baseLoan())
	if strings.Contains(string(offered), "escrowSequence") {
		t.Fatalf("offered loan should not carry escrow fields: %s", offered)
	}
}

func TestStatusLabelsAndRoles(t *testing.T) {
	if StatusRepaid.Label() != "Repayment detected" {
		t.Fatalf("label = %q", StatusRepaid.Label())
	}
	if StatusDefaulted.Terminal() || !StatusCollateralReturned.Terminal() {
		t.Fatalf("terminal flags wrong")
	}
	if !RoleLender.Valid() || Role("admin").Valid() {
		t.Fatalf("role validity wrong")
	}
	l := baseLoan()
	if l.AddressFor(RoleLender) != lender || l.AddressFor(RoleBorrower) != borrower {
		t.Fatalf("AddressFor wrong")
	}
	if !l.AddressesEditable() || creditSent().AddressesEditable() {
		t.Fatalf("AddressesEditable wrong")
	}
}

func TestAssign(t *testing.T) {
	open := baseLoan().WithBorrower("")

	l, err := open.Assign(RoleBorrower, " "+borrower+" ")
	if err != nil || l.BorrowerAddress != borrower {
		t.Fatalf("fill borrower: %+v %v", l, err)
	}
	if _, err := l.Assign(RoleBorrower, borrower); err != nil {
		t.Fatalf("same address again: %v", err)
	}
	if _, err := l.Assign(RoleBorrower, "rIntruderXXXXXXXXXXXXXXXXXXXXXXXXX"); !errors.Is(err, ErrAddressLocked) {
		t.Fatalf("overwrite borrower: err = %v", err)
	}
	if _, err := open.Assign(RoleLender, "rIntruderXXXXXXXXXXXXXXXXXXXXXXXXX"); !errors.Is(err, ErrAddressLocked) {
		t.Fatalf("overwrite lender: err = %v", err)
	}
	locked := open.WithEscrow(1, "E").WithStatus(StatusCollateralLocked)
	if _, err := locked.Assign(RoleBorrower, borrower); !errors.Is(err, ErrAddressLocked) {
		t.Fatalf("after escrow: err = %v", err)
	}
	if open.BorrowerAddress != "" {
		t.Fatalf("input mutated")
	}
}
