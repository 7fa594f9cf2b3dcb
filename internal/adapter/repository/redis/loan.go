package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	loanDomain "trustline-credit/internal/domain/loan"

	goredis "github.com/redis/go-redis/v9"
)

var ErrLoanExists = errors.New("loan already exists")

// LoanRepository stores each loan as one JSON value at loan:<id>. Reads go to rd;
// writes go to wr, which is a MULTI pipeline inside a unit of work.
type LoanRepository struct {
	rd goredis.Cmdable
	wr goredis.Cmdable
}

func NewLoanRepository(rdb goredis.Cmdable) *LoanRepository {
	return &LoanRepository{rd: rdb, wr: rdb}
}

func (r *LoanRepository) Create(ctx context.Context, l *loanDomain.Loan) error {
	n, err := r.rd.Exists(ctx, loanDomain.Key(l.ID)).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", ErrLoanExists, l.ID)
	}
	return r.put(ctx, l)
}

func (r *LoanRepository) Save(ctx context.Context, l *loanDomain.Loan) error {
	n, err := r.rd.Exists(ctx, loanDomain.Key(l.ID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return loanDomain.ErrNotFound
	}
	return r.put(ctx, l)
}

func (r *LoanRepository) put(ctx context.Context, l *loanDomain.Loan) error {
	payload, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return r.wr.Set(ctx, loanDomain.Key(l.ID), payload, 0).Err()
}

func (r *LoanRepository) GetByLoanID(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	v, err := r.rd.Get(ctx, loanDomain.Key(loanID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, loanDomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var l loanDomain.Loan
	if err := json.Unmarshal(v, &l); err != nil {
		return nil, fmt.Errorf("decode %s: %w", loanDomain.Key(loanID), err)
	}
	return &l, nil
}

// GetByLoanIDForUpdate reads the loan. Inside WithinLoanTx the key is already
// WATCHed, so a concurrent write aborts the surrounding EXEC.
func (r *LoanRepository) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	return r.GetByLoanID(ctx, loanID)
}

func (r *LoanRepository) ListByStatus(ctx context.Context, statuses ...loanDomain.Status) ([]loanDomain.Loan, error) {
	want := make(map[loanDomain.Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []loanDomain.Loan
	iter := r.rd.Scan(ctx, 0, loanDomain.Key("*"), 100).Iterator()
	for iter.Next(ctx) {
		id, ok := loanDomain.IDFromKey(iter.Val())
		if !ok {
			continue
		}
		l, err := r.GetByLoanID(ctx, id)
		if errors.Is(err, loanDomain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(want) == 0 || want[l.Status] {
			out = append(out, *l)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
