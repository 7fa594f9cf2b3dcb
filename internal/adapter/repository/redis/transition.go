package redis

import (
	"context"
	"encoding/json"
	"time"

	transitionDomain "trustline-credit/internal/domain/transition"

	goredis "github.com/redis/go-redis/v9"
)

func transitionsKey(loanID string) string { return "loan-transitions:" + loanID }

// TransitionRepository appends audit records to a per-loan list.
type TransitionRepository struct {
	rd goredis.Cmdable
	wr goredis.Cmdable
}

func NewTransitionRepository(rdb goredis.Cmdable) *TransitionRepository {
	return &TransitionRepository{rd: rdb, wr: rdb}
}

func (r *TransitionRepository) Create(ctx context.Context, t *transitionDomain.Transition) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.wr.RPush(ctx, transitionsKey(t.LoanID), payload).Err()
}

func (r *TransitionRepository) ListByLoanID(ctx context.Context, loanID string) ([]transitionDomain.Transition, error) {
	vals, err := r.rd.LRange(ctx, transitionsKey(loanID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]transitionDomain.Transition, 0, len(vals))
	for _, v := range vals {
		var t transitionDomain.Transition
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
