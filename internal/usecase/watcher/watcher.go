package watcher

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"trustline-credit/internal/domain/ledger"
	"trustline-credit/internal/domain/loan"
	"trustline-credit/internal/infrastructure/metrics"
)

const (
	eventBuffer      = 16
	reconcileTimeout = 15 * time.Second
)

// Loans is the part of the loan usecase the watchers drive.
type Loans interface {
	Reconcile(ctx context.Context, loanID string, ev loan.Event) (loan.Loan, bool, error)
	ActiveLoans(ctx context.Context) ([]loan.Loan, error)
}

// MatchesRepayment reports whether ev is a validated, successful native payment
// from the borrower to the lender for exactly the recorded repay amount.
func MatchesRepayment(l loan.Loan, ev ledger.TransactionEvent) bool {
	if !ev.Validated {
		return false
	}
	if ev.EngineResult != "" && ev.EngineResult != ledger.ResultSuccess {
		return false
	}
	tx := ev.Tx()
	if tx.TransactionType != ledger.TypePayment || tx.Amount == nil || !tx.Amount.Native() {
		return false
	}
	return loan.RepaymentMatches(l, loan.RepaymentObserved{
		Account:     tx.Account,
		Destination: tx.Destination,
		Amount:      tx.Amount.Drops,
	})
}

// Watcher follows the lender account for one loan's repayment.
type Watcher struct {
	terms   loan.Loan
	loans   Loans
	metrics *metrics.Metrics
	log     *slog.Logger

	stopped atomic.Bool
	cancel  func()
	events  chan loan.RepaymentObserved
	quit    chan struct{}
}

// Start subscribes to l's lender account. The watcher keeps the terms of l as
// given; a change of terms needs a new watcher.
func Start(ctx context.Context, client ledger.Client, l loan.Loan, loans Loans, m *metrics.Metrics, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	w := &Watcher{
		terms:   l,
		loans:   loans,
		metrics: m,
		log:     log.With("loan_id", l.ID),
		events:  make(chan loan.RepaymentObserved, eventBuffer),
		quit:    make(chan struct{}),
	}
	cancel, err := client.SubscribeAccount(ctx, l.LenderAddress, w.handle)
	if err != nil {
		return nil, err
	}
	w.cancel = cancel
	go w.loop()
	return w, nil
}

// handle runs on the ledger connection's read loop and never blocks.
func (w *Watcher) handle(ev ledger.TransactionEvent) {
	if w.stopped.Load() || !MatchesRepayment(w.terms, ev) {
		return
	}
	tx := ev.Tx()
	obs := loan.RepaymentObserved{
		TxID:        ev.ID(),
		Account:     tx.Account,
		Destination: tx.Destination,
		Amount:      tx.Amount.Drops,
	}
	select {
	case w.events <- obs:
	default:
		w.log.Warn("repayment dropped, watcher busy", "tx_id", obs.TxID)
	}
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.quit:
			return
		case obs := <-w.events:
			if w.stopped.Load() {
				continue
			}
			w.metrics.WatcherMatched()
			w.log.Info("repayment observed", "tx_id", obs.TxID)
			ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
			if _, _, err := w.loans.Reconcile(ctx, w.terms.ID, obs); err != nil {
				w.log.Warn("repayment not applied", "tx_id", obs.TxID, "err", err)
			}
			cancel()
		}
	}
}

// Stop removes the subscription before returning. Events already queued are
// discarded. Safe to call more than once and from the watcher's own callbacks.
func (w *Watcher) Stop() {
	if !w.stopped.CompareAndSwap(false, true) {
		return
	}
	if w.cancel != nil {
		w.cancel()
	}
	close(w.quit)
}

// sameTerms reports whether l would be watched with the same filter.
func (w *Watcher) sameTerms(l loan.Loan) bool {
	return w.terms.LenderAddress == l.LenderAddress &&
		w.terms.BorrowerAddress == l.BorrowerAddress &&
		w.terms.RepayAmount == l.RepayAmount
}
