package loan

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"trustline-credit/internal/domain/loan"
	"trustline-credit/internal/domain/transition"
	"trustline-credit/internal/domain/uow"
	"trustline-credit/internal/infrastructure/metrics"
	"trustline-credit/pkg/id"
	"trustline-credit/pkg/units"
)

// TriggerOfferCreated is the audit trigger of a new offer.
const TriggerOfferCreated = "offer_created"

// Observer is told about every committed loan change.
type Observer interface {
	Sync(l loan.Loan)
}

type Options struct {
	// Defaults fill empty terms of CreateOffer. Addresses are ignored.
	Defaults      loan.Terms
	PublicBaseURL string
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Now           func() time.Time
}

type Usecase struct {
	uow         uow.UnitOfWork
	loans       loan.Repository
	transitions transition.Repository

	opts      Options
	log       *slog.Logger
	observers []Observer
}

func NewUsecase(u uow.UnitOfWork, loans loan.Repository, transitions transition.Repository, opts Options) *Usecase {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Usecase{
		uow:         u,
		loans:       loans,
		transitions: transitions,
		opts:        opts,
		log:         opts.Logger.With("component", "loan"),
	}
}

// Observe registers o for committed changes. Not safe to call once serving.
func (u *Usecase) Observe(o Observer) { u.observers = append(u.observers, o) }

// InviteURL is the shareable link a borrower opens to join loanID.
func (u *Usecase) InviteURL(loanID string) string {
	base := strings.TrimRight(u.opts.PublicBaseURL, "/")
	return base + "/?loan=" + url.QueryEscape(loanID)
}

func (u *Usecase) withDefaults(in CreateOfferInput) loan.Terms {
	d := u.opts.Defaults
	t := loan.Terms{
		LenderAddress:   in.LenderAddress,
		BorrowerAddress: in.BorrowerAddress,
		CurrencyCode:    in.CurrencyCode,
		CreditAmount:    in.CreditAmount,
		CollateralXRP:   in.CollateralXRP,
		RepayXRP:        in.RepayXRP,
		DueMinutes:      in.DueMinutes,
		GraceMinutes:    in.GraceMinutes,
	}
	if t.CurrencyCode == "" {
		t.CurrencyCode = d.CurrencyCode
	}
	if t.CreditAmount == "" {
		t.CreditAmount = d.CreditAmount
	}
	if t.CollateralXRP == "" {
		t.CollateralXRP = d.CollateralXRP
	}
	if t.RepayXRP == "" {
		t.RepayXRP = d.RepayXRP
	}
	if t.DueMinutes == 0 {
		t.DueMinutes = d.DueMinutes
	}
	if t.GraceMinutes == 0 {
		t.GraceMinutes = d.GraceMinutes
	}
	return t
}

func (u *Usecase) CreateOffer(ctx context.Context, in CreateOfferInput) (*LoanDTO, error) {
	l, err := loan.NewOffer(u.withDefaults(in), u.opts.Now())
	if err != nil {
		return nil, err
	}

	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		if err := r.Loans.Create(ctx, &l); err != nil {
			return err
		}
		return r.Transitions.Create(ctx, &transition.Transition{
			TransitionID: id.NewID32(),
			LoanID:       l.ID,
			Trigger:      TriggerOfferCreated,
			ToStatus:     string(l.Status),
			CreatedAt:    l.CreatedAt,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}

	u.log.Info("offer created", "loan_id", l.ID, "lender", l.LenderAddress)
	u.opts.Metrics.ObserveTransition(TriggerOfferCreated, string(l.Status))
	u.notify(l)
	return u.toDTO(l), nil
}

// Load returns the stored record. Unknown ids yield loan.ErrNotFound.
func (u *Usecase) Load(ctx context.Context, loanID string) (loan.Loan, error) {
	if !id.IsLoanID(loanID) {
		return loan.Loan{}, loan.ErrNotFound
	}
	l, err := u.loans.GetByLoanID(ctx, loanID)
	if err != nil {
		return loan.Loan{}, err
	}
	return *l, nil
}

func (u *Usecase) Get(ctx context.Context, loanID string) (*LoanDTO, error) {
	l, err := u.Load(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return u.toDTO(l), nil
}

// SetAddresses records the lender and borrower addresses. Empty arguments keep
// the recorded value; a recorded address is never replaced by a different one.
// Only an OFFERED loan accepts changes.
func (u *Usecase) SetAddresses(ctx context.Context, loanID, lender, borrower string) (*LoanDTO, error) {
	if !id.IsLoanID(loanID) {
		return nil, loan.ErrNotFound
	}
	var next loan.Loan
	changed := false
	err := u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *loan.Loan) error {
		next = *l
		for _, a := range []struct {
			role loan.Role
			addr string
		}{{loan.RoleLender, lender}, {loan.RoleBorrower, borrower}} {
			if strings.TrimSpace(a.addr) == "" {
				continue
			}
			var err error
			if next, err = next.Assign(a.role, a.addr); err != nil {
				return err
			}
		}
		if next.LenderAddress == l.LenderAddress && next.BorrowerAddress == l.BorrowerAddress {
			return nil
		}
		changed = true
		next = next.Touch(u.opts.Now())
		return r.Loans.Save(ctx, &next)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		u.log.Info("loan addresses updated", "loan_id", loanID, "lender", next.LenderAddress, "borrower", next.BorrowerAddress)
		u.notify(next)
	}
	return u.toDTO(next), nil
}

// Reconcile applies ev to the stored loan in one read-compute-replace unit and
// records the transition. It reports whether the record changed.
func (u *Usecase) Reconcile(ctx context.Context, loanID string, ev loan.Event) (loan.Loan, bool, error) {
	var (
		next    loan.Loan
		changed bool
		from    loan.Status
	)
	err := u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *loan.Loan) error {
		from = l.Status
		var err error
		next, changed, err = loan.Apply(*l, ev)
		if err != nil {
			return err
		}
		audit := changed
		if _, ok := ev.(loan.TrustlineOpened); ok {
			audit = true
		}
		if !audit {
			return nil
		}
		now := u.opts.Now()
		if changed {
			next = next.Touch(now)
			if err := r.Loans.Save(ctx, &next); err != nil {
				return err
			}
		}
		return r.Transitions.Create(ctx, &transition.Transition{
			TransitionID: id.NewID32(),
			LoanID:       loanID,
			Trigger:      ev.Trigger(),
			FromStatus:   string(from),
			ToStatus:     string(next.Status),
			TxID:         ev.EventTxID(),
			CreatedAt:    now.UTC(),
		})
	})
	if err != nil {
		return loan.Loan{}, false, err
	}
	if changed {
		u.log.Info("loan transition", "loan_id", loanID, "trigger", ev.Trigger(),
			"from", from, "to", next.Status, "tx_id", ev.EventTxID())
		u.opts.Metrics.ObserveTransition(ev.Trigger(), string(next.Status))
		u.notify(next)
	}
	return next, changed, nil
}

// EvaluateDefault marks a credited loan defaulted once its due time has passed.
func (u *Usecase) EvaluateDefault(ctx context.Context, loanID string) (*LoanDTO, error) {
	if !id.IsLoanID(loanID) {
		return nil, loan.ErrNotFound
	}
	l, _, err := u.Reconcile(ctx, loanID, loan.DueElapsed{At: units.LedgerNow(u.opts.Now())})
	if err != nil {
		return nil, err
	}
	return u.toDTO(l), nil
}

func (u *Usecase) Transitions(ctx context.Context, loanID string) ([]TransitionDTO, error) {
	if _, err := u.Load(ctx, loanID); err != nil {
		return nil, err
	}
	ts, err := u.transitions.ListByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	out := make([]TransitionDTO, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTransitionDTO(t))
	}
	return out, nil
}

// ActiveLoans lists loans whose repayment may still arrive on the ledger.
func (u *Usecase) ActiveLoans(ctx context.Context) ([]loan.Loan, error) {
	return u.loans.ListByStatus(ctx,
		loan.StatusOffered, loan.StatusCollateralLocked, loan.StatusCreditSent, loan.StatusDefaulted)
}

func (u *Usecase) notify(l loan.Loan) {
	for _, o := range u.observers {
		o.Sync(l)
	}
}

