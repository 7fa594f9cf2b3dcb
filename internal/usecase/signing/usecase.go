package signing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trustline-credit/internal/domain/ledger"
	"trustline-credit/internal/domain/loan"
	"trustline-credit/internal/domain/session"
	"trustline-credit/internal/domain/wallet"
	"trustline-credit/internal/infrastructure/metrics"

	qrcode "github.com/skip2/go-qrcode"
)

// Loans is the part of the loan usecase signing needs.
type Loans interface {
	Load(ctx context.Context, loanID string) (loan.Loan, error)
	Reconcile(ctx context.Context, loanID string, ev loan.Event) (loan.Loan, bool, error)
}

type Options struct {
	Enabled bool
	Network string
	// ConfirmInterval is the tx lookup period while waiting for validation.
	ConfirmInterval time.Duration
	// RetainFor keeps finished requests readable.
	RetainFor time.Duration
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

type request struct {
	dto     SignRequestDTO
	pending *wallet.Pending
	cancel  context.CancelFunc
}

// Usecase runs wallet sign requests. Each session and each loan has at most one
// pending request; outcomes are awaited in the background.
type Usecase struct {
	signer   wallet.Signer
	ledger   ledger.Client
	sessions session.Repository
	loans    Loans
	opts     Options
	log      *slog.Logger

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu        sync.Mutex
	requests  map[string]*request
	bySession map[string]string
	byLoan    map[string]string
}

func NewUsecase(signer wallet.Signer, lc ledger.Client, sessions session.Repository, loans Loans, opts Options) *Usecase {
	if opts.ConfirmInterval <= 0 {
		opts.ConfirmInterval = 2 * time.Second
	}
	if opts.RetainFor <= 0 {
		opts.RetainFor = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &Usecase{
		signer:    signer,
		ledger:    lc,
		sessions:  sessions,
		loans:     loans,
		opts:      opts,
		log:       opts.Logger.With("component", "signing"),
		base:      base,
		stop:      stop,
		requests:  make(map[string]*request),
		bySession: make(map[string]string),
		byLoan:    make(map[string]string),
	}
}

func (u *Usecase) Enabled() bool { return u.opts.Enabled }

// Start asks the session's wallet to sign step for loanID.
func (u *Usecase) Start(ctx context.Context, sessionID, loanID string, step ledger.Step) (*SignRequestDTO, error) {
	if !u.opts.Enabled {
		return nil, ErrSigningDisabled
	}
	s, err := u.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	l, err := u.loans.Load(ctx, loanID)
	if err != nil {
		return nil, err
	}
	role := step.Signer()
	if err := session.Require(l.AddressFor(role), role, s); err != nil {
		return nil, err
	}
	if err := step.Allowed(l); err != nil {
		return nil, err
	}
	tx, err := ledger.Build(step, l)
	if err != nil {
		return nil, err
	}
	return u.launch(ctx, sessionID, loanID, string(step), tx, u.confirmStep(loanID, step))
}

// SignIn asks the session's wallet to prove control of an account. onSigned runs
// with the signing account once the wallet approves.
func (u *Usecase) SignIn(ctx context.Context, sessionID string, onSigned func(ctx context.Context, account string) error) (*SignRequestDTO, error) {
	if !u.opts.Enabled {
		return nil, ErrSigningDisabled
	}
	if _, err := u.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return u.launch(ctx, sessionID, "", StepSignIn, ledger.SignIn(), func(ctx context.Context, out wallet.Outcome) error {
		if out.Account == "" {
			return errors.New("wallet did not report an account")
		}
		return onSigned(ctx, out.Account)
	})
}

func (u *Usecase) launch(ctx context.Context, sessionID, loanID, step string, tx any,
	finish func(context.Context, wallet.Outcome) error) (*SignRequestDTO, error) {

	u.mu.Lock()
	u.pruneLocked()
	if id, ok := u.bySession[sessionID]; ok {
		u.mu.Unlock()
		return nil, fmt.Errorf("%w: session %s: %s", ErrRequestPending, sessionID, id)
	}
	if id, ok := u.byLoan[loanID]; ok && loanID != "" {
		u.mu.Unlock()
		return nil, fmt.Errorf("%w: loan %s: %s", ErrRequestPending, loanID, id)
	}
	// reserve the slots while the payload is created
	u.bySession[sessionID] = ""
	if loanID != "" {
		u.byLoan[loanID] = ""
	}
	u.mu.Unlock()

	p, err := u.signer.Submit(ctx, tx, u.opts.Network)
	if err != nil {
		u.mu.Lock()
		delete(u.bySession, sessionID)
		if loanID != "" {
			delete(u.byLoan, loanID)
		}
		u.mu.Unlock()
		return nil, fmt.Errorf("submit %s: %w", step, err)
	}

	now := u.opts.Now().UTC()
	rctx, cancel := context.WithCancel(u.base)
	r := &request{
		pending: p,
		cancel:  cancel,
		dto: SignRequestDTO{
			ID:        p.ID,
			SessionID: sessionID,
			LoanID:    loanID,
			Step:      step,
			Status:    StatusPending,
			Message:   "Awaiting signature: " + step,
			QRURL:     p.QRURL,
			DeepLink:  p.DeepLink,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	u.mu.Lock()
	u.requests[p.ID] = r
	u.bySession[sessionID] = p.ID
	if loanID != "" {
		u.byLoan[loanID] = p.ID
	}
	dto := r.dto
	u.mu.Unlock()

	u.log.Info("sign request created", "request_id", p.ID, "step", step, "loan_id", loanID)
	u.wg.Add(1)
	go u.run(rctx, r, finish)
	return &dto, nil
}

func (u *Usecase) run(ctx context.Context, r *request, finish func(context.Context, wallet.Outcome) error) {
	defer u.wg.Done()
	defer r.cancel()
	step := r.dto.Step

	out, err := u.signer.Await(ctx, r.pending)
	switch {
	case err != nil && ctx.Err() != nil:
		u.settle(r, StatusCancelled, "Signature request cancelled.", nil)
		return
	case errors.Is(err, wallet.ErrExpired):
		u.settle(r, StatusExpired, "Signature request expired.", nil)
		return
	case err != nil:
		u.settle(r, StatusFailed, err.Error(), nil)
		return
	case !out.Signed:
		u.settle(r, StatusDeclined, "Signature declined.", nil)
		return
	}

	u.update(r, func(d *SignRequestDTO) {
		d.Status = StatusSigned
		d.TxID = out.TxID
		d.Account = out.Account
		d.Message = step + " signed and submitted."
	})

	err = finish(ctx, out)
	var rejected *RejectedError
	switch {
	case err == nil && step == StepSignIn:
		u.settle(r, StatusConfirmed, "Wallet connected.", nil)
	case err == nil:
		u.settle(r, StatusConfirmed, step+" confirmed on the ledger.", nil)
	case errors.As(err, &rejected):
		u.settle(r, StatusRejected, err.Error(), func(d *SignRequestDTO) { d.EngineResult = rejected.Result })
	case ctx.Err() != nil:
		u.settle(r, StatusCancelled, "Stopped before the ledger confirmed the transaction.", nil)
	default:
		u.settle(r, StatusFailed, err.Error(), nil)
	}
}

func (u *Usecase) update(r *request, fn func(d *SignRequestDTO)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fn(&r.dto)
	r.dto.UpdatedAt = u.opts.Now().UTC()
}

// settle records a final status once; later calls are ignored.
func (u *Usecase) settle(r *request, st Status, msg string, extra func(d *SignRequestDTO)) {
	u.mu.Lock()
	if r.dto.Status.Final() {
		u.mu.Unlock()
		return
	}
	r.dto.Status = st
	r.dto.Message = msg
	if extra != nil {
		extra(&r.dto)
	}
	r.dto.UpdatedAt = u.opts.Now().UTC()
	if u.bySession[r.dto.SessionID] == r.dto.ID {
		delete(u.bySession, r.dto.SessionID)
	}
	if r.dto.LoanID != "" && u.byLoan[r.dto.LoanID] == r.dto.ID {
		delete(u.byLoan, r.dto.LoanID)
	}
	dto := r.dto
	u.mu.Unlock()

	u.opts.Metrics.ObserveSignRequest(dto.Step, string(st))
	lvl := slog.LevelInfo
	if st == StatusFailed || st == StatusRejected {
		lvl = slog.LevelWarn
	}
	u.log.Log(context.Background(), lvl, "sign request finished",
		"request_id", dto.ID, "step", dto.Step, "status", st, "tx_id", dto.TxID, "message", msg)
}

func (u *Usecase) pruneLocked() {
	cutoff := u.opts.Now().Add(-u.opts.RetainFor)
	for id, r := range u.requests {
		if r.dto.Status.Final() && r.dto.UpdatedAt.Before(cutoff) {
			delete(u.requests, id)
		}
	}
}

func (u *Usecase) confirmStep(loanID string, step ledger.Step) func(context.Context, wallet.Outcome) error {
	return func(ctx context.Context, out wallet.Outcome) error {
		info, err := u.awaitValidated(ctx, out.TxID)
		if err != nil {
			return err
		}
		if !info.Succeeded() {
			return &RejectedError{Result: info.Meta.TransactionResult}
		}
		body := info.Body()
		signer := body.Account
		if signer == "" {
			signer = out.Account
		}
		l, err := u.loans.Load(ctx, loanID)
		if err != nil {
			return err
		}
		ev, err := step.Event(out.TxID, signer, body.Sequence, body.Date, l)
		if err != nil {
			return err
		}
		_, _, err = u.loans.Reconcile(ctx, loanID, ev)
		return err
	}
}

// awaitValidated polls the ledger until txID is in a validated ledger. Only ctx
// ends the wait; an unreachable ledger keeps the request SIGNED.
func (u *Usecase) awaitValidated(ctx context.Context, txID string) (*ledger.TxInfo, error) {
	if txID == "" {
		return nil, errors.New("wallet did not report a transaction id")
	}
	ticker := time.NewTicker(u.opts.ConfirmInterval)
	defer ticker.Stop()
	for {
		info, err := u.ledger.Transaction(ctx, txID)
		switch {
		case err == nil && info.Validated:
			return info, nil
		case err != nil && !errors.Is(err, ledger.ErrTxNotFound):
			u.log.Warn("tx lookup failed", "tx_id", txID, "err", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (u *Usecase) Get(requestID string) (*SignRequestDTO, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	r, ok := u.requests[requestID]
	if !ok {
		return nil, ErrRequestNotFound
	}
	dto := r.dto
	return &dto, nil
}

// Cancel withdraws a pending request from the wallet and stops waiting on it.
func (u *Usecase) Cancel(ctx context.Context, requestID string) (*SignRequestDTO, error) {
	u.mu.Lock()
	r, ok := u.requests[requestID]
	final := ok && r.dto.Status.Final()
	u.mu.Unlock()
	if !ok {
		return nil, ErrRequestNotFound
	}
	if final {
		return u.Get(requestID)
	}
	if err := u.signer.Cancel(ctx, r.pending); err != nil {
		u.log.Warn("wallet cancel failed", "request_id", requestID, "err", err)
	}
	u.settle(r, StatusCancelled, "Signature request cancelled.", nil)
	r.cancel()
	return u.Get(requestID)
}

// QRCode renders the request's deep link as a PNG.
func (u *Usecase) QRCode(requestID string, size int) ([]byte, error) {
	dto, err := u.Get(requestID)
	if err != nil {
		return nil, err
	}
	if dto.DeepLink == "" {
		return nil, fmt.Errorf("%w: no link to encode", ErrRequestNotFound)
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(dto.DeepLink, qrcode.Medium, size)
}

// Close stops every outstanding request and waits for the background work.
func (u *Usecase) Close() {
	u.stop()
	u.wg.Wait()
}
