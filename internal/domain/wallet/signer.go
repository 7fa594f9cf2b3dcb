package wallet

import (
	"context"
	"errors"
	"time"
)

var ErrExpired = errors.New("signature request expired")

// Pending is a sign request waiting on the user's wallet.
type Pending struct {
	ID        string
	QRURL     string
	DeepLink  string
	StatusURL string
	CreatedAt time.Time
}

// Outcome is the resolved result of a sign request. Signed is false when the user
// declined; TxID and Account are set only for signed requests.
type Outcome struct {
	Signed  bool
	TxID    string
	Account string
}

// Signer submits unsigned transactions to the user's wallet for signing.
type Signer interface {
	Submit(ctx context.Context, txjson any, network string) (*Pending, error)
	// Await blocks until the request resolves or ctx ends. There is no built-in
	// timeout.
	Await(ctx context.Context, p *Pending) (Outcome, error)
	Cancel(ctx context.Context, p *Pending) error
}
