package redis

import (
	"context"
	"errors"

	"trustline-credit/internal/domain/loan"
	"trustline-credit/internal/domain/uow"

	goredis "github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic retries when a WATCHed loan changes under us.
const maxTxRetries = 5

var ErrTxContention = errors.New("loan changed concurrently, giving up")

// UoW runs reads on a WATCHed connection and queues writes in MULTI/EXEC.
type UoW struct{ rdb *goredis.Client }

func NewUoW(rdb *goredis.Client) *UoW { return &UoW{rdb: rdb} }

func repos(rd, wr goredis.Cmdable) uow.Repos {
	return uow.Repos{
		Loans:       &LoanRepository{rd: rd, wr: wr},
		Transitions: &TransitionRepository{rd: rd, wr: wr},
	}
}

func (u *UoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	_, err := u.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		return fn(repos(u.rdb, p))
	})
	return err
}

func (u *UoW) WithinLoanTx(ctx context.Context, loanID string, fn func(r uow.Repos, l *loan.Loan) error) error {
	txf := func(tx *goredis.Tx) error {
		l, err := (&LoanRepository{rd: tx, wr: tx}).GetByLoanIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			return fn(repos(tx, p), l)
		})
		return err
	}
	for i := 0; i < maxTxRetries; i++ {
		err := u.rdb.Watch(ctx, txf, loan.Key(loanID))
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return ErrTxContention
}
