package transitionmock

import (
	"context"
	"sync"

	"trustline-credit/internal/domain/transition"
)

var _ transition.Repository = (*Repo)(nil)

// Repo is a function-backed transition.Repository. With no functions set it keeps
// created transitions in memory.
type Repo struct {
	CreateFn       func(ctx context.Context, t *transition.Transition) error
	ListByLoanIDFn func(ctx context.Context, loanID string) ([]transition.Transition, error)

	mu      sync.Mutex
	Created []transition.Transition
}

func (m *Repo) Create(ctx context.Context, t *transition.Transition) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, t)
	}
	m.mu.Lock()
	m.Created = append(m.Created, *t)
	m.mu.Unlock()
	return nil
}

func (m *Repo) ListByLoanID(ctx context.Context, loanID string) ([]transition.Transition, error) {
	if m.ListByLoanIDFn != nil {
		return m.ListByLoanIDFn(ctx, loanID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []transition.Transition
	for _, t := range m.Created {
		if t.LoanID == loanID {
			out = append(out, t)
		}
	}
	return out, nil
}

// Triggers returns the trigger names recorded so far, in order.
func (m *Repo) Triggers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Created))
	for _, t := range m.Created {
		out = append(out, t.Trigger)
	}
	return out
}
