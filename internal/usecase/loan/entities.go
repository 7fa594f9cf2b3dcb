package loan

import (
	"time"

	"trustline-credit/internal/domain/ledger"
	"trustline-credit/internal/domain/loan"
	"trustline-credit/internal/domain/transition"
	"trustline-credit/pkg/units"
)

// CreateOfferInput holds the lender's terms. Empty fields take the configured
// defaults.
type CreateOfferInput struct {
	LenderAddress   string
	BorrowerAddress string
	CurrencyCode    string
	CreditAmount    string
	CollateralXRP   string
	RepayXRP        string
	DueMinutes      int64
	GraceMinutes    int64
}

type LoanDTO struct {
	loan.Loan
	StatusLabel   string        `json:"statusLabel"`
	Terminal      bool          `json:"terminal"`
	CollateralXRP string        `json:"collateralXrp"`
	RepayXRP      string        `json:"repayXrp"`
	NextSteps     []ledger.Step `json:"nextSteps"`
	InviteURL     string        `json:"inviteUrl"`
	DueAtTime     string        `json:"dueAtTime"`
	CancelAtTime  string        `json:"cancelAtTime"`
}

type TransitionDTO struct {
	TransitionID string    `json:"transitionId"`
	Trigger      string    `json:"trigger"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	TxID         string    `json:"txId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u *Usecase) toDTO(l loan.Loan) *LoanDTO {
	next := []ledger.Step{}
	for _, s := range ledger.Steps {
		if s.Allowed(l) == nil {
			next = append(next, s)
		}
	}
	return &LoanDTO{
		Loan:          l,
		StatusLabel:   l.Status.Label(),
		Terminal:      l.Status.Terminal(),
		CollateralXRP: units.FromDrops(l.CollateralAmount),
		RepayXRP:      units.FromDrops(l.RepayAmount),
		NextSteps:     next,
		InviteURL:     u.InviteURL(l.ID),
		DueAtTime:     units.FormatLedgerTime(l.DueAt),
		CancelAtTime:  units.FormatLedgerTime(l.CancelAt),
	}
}

func toTransitionDTO(t transition.Transition) TransitionDTO {
	return TransitionDTO{
		TransitionID: t.TransitionID,
		Trigger:      t.Trigger,
		From:         t.FromStatus,
		To:           t.ToStatus,
		TxID:         t.TxID,
		CreatedAt:    t.CreatedAt,
	}
}
