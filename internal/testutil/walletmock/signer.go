package walletmock

import (
	"context"
	"errors"

	"trustline-credit/internal/domain/wallet"
)

var _ wallet.Signer = (*Signer)(nil)

var errUnimplemented = errors.New("walletmock: method not implemented")

// Signer is a function-backed wallet.Signer.
type Signer struct {
	SubmitFn func(ctx context.Context, txjson any, network string) (*wallet.Pending, error)
	AwaitFn  func(ctx context.Context, p *wallet.Pending) (wallet.Outcome, error)
	CancelFn func(ctx context.Context, p *wallet.Pending) error
}

func (m *Signer) Submit(ctx context.Context, txjson any, network string) (*wallet.Pending, error) {
	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, txjson, network)
	}
	return nil, errUnimplemented
}

func (m *Signer) Await(ctx context.Context, p *wallet.Pending) (wallet.Outcome, error) {
	if m.AwaitFn != nil {
		return m.AwaitFn(ctx, p)
	}
	return wallet.Outcome{}, errUnimplemented
}

func (m *Signer) Cancel(ctx context.Context, p *wallet.Pending) error {
	if m.CancelFn != nil {
		return m.CancelFn(ctx, p)
	}
	return nil
}
