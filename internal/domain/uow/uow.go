package uow

import (
	"context"

	"trustline-credit/internal/domain/loan"
	"trustline-credit/internal/domain/transition"
)

type Repos struct {
	Loans       loan.Repository
	Transitions transition.Repository
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// convenience: lock loan first, then pass it in
	WithinLoanTx(ctx context.Context, loanID string, fn func(r Repos, l *loan.Loan) error) error
}
