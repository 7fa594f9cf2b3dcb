package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"trustline-credit/internal/domain/ledger"
	"trustline-credit/internal/domain/loan"
	"trustline-credit/internal/infrastructure/metrics"
)

const subscribeTimeout = 10 * time.Second

// Watched reports whether a repayment for l can still be observed.
func Watched(l loan.Loan) bool {
	if l.LenderAddress == "" || l.BorrowerAddress == "" {
		return false
	}
	switch l.Status {
	case loan.StatusOffered, loan.StatusCollateralLocked, loan.StatusCreditSent, loan.StatusDefaulted:
		return true
	}
	return false
}

// Manager keeps at most one watcher per loan in step with the loan record.
type Manager struct {
	client  ledger.Client
	loans   Loans
	metrics *metrics.Metrics
	log     *slog.Logger

	mu       sync.Mutex
	watchers map[string]*Watcher
	closed   bool
}

func NewManager(client ledger.Client, loans Loans, m *metrics.Metrics, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		client:   client,
		loans:    loans,
		metrics:  m,
		log:      log.With("component", "watcher"),
		watchers: make(map[string]*Watcher),
	}
}

// Sync starts, replaces or stops the loan's watcher to match l. A replaced
// watcher is stopped before its successor subscribes.
func (m *Manager) Sync(l loan.Loan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	cur := m.watchers[l.ID]
	want := Watched(l)
	if cur != nil && want && cur.sameTerms(l) {
		return
	}
	if cur != nil {
		cur.Stop()
		delete(m.watchers, l.ID)
		m.log.Info("watcher stopped", "loan_id", l.ID, "status", l.Status)
	}
	if want {
		ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
		w, err := Start(ctx, m.client, l, m.loans, m.metrics, m.log)
		cancel()
		if err != nil {
			m.log.Warn("watcher subscribe failed", "loan_id", l.ID, "err", err)
		} else {
			m.watchers[l.ID] = w
			m.log.Info("watcher started", "loan_id", l.ID, "lender", l.LenderAddress)
		}
	}
	m.metrics.SetActiveWatchers(len(m.watchers))
}

// Resume starts watchers for every persisted loan still awaiting repayment.
func (m *Manager) Resume(ctx context.Context) error {
	active, err := m.loans.ActiveLoans(ctx)
	if err != nil {
		return err
	}
	for _, l := range active {
		m.Sync(l)
	}
	m.log.Info("watchers resumed", "loans", len(active), "active", m.Active())
	return nil
}

func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

// Close stops every watcher; later Syncs are ignored.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, w := range m.watchers {
		w.Stop()
		delete(m.watchers, id)
	}
	m.metrics.SetActiveWatchers(0)
}
