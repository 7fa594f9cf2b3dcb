package ledgermock

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"trustline-credit/internal/domain/ledger"
)

var _ ledger.Client = (*Client)(nil)

var errUnimplemented = errors.New("ledgermock: method not implemented")

// Client is a function-backed ledger.Client. When SubscribeAccountFn is unset it
// keeps handlers per account so tests can Emit stream events.
type Client struct {
	RequestFn          func(ctx context.Context, command string, params map[string]any) (json.RawMessage, error)
	SubscribeAccountFn func(ctx context.Context, account string, h func(ledger.TransactionEvent)) (func(), error)
	TransactionFn      func(ctx context.Context, txID string) (*ledger.TxInfo, error)

	mu           sync.Mutex
	next         int
	handlers     map[string]map[int]func(ledger.TransactionEvent)
	Subscribes   []string
	Unsubscribes []string
}

func (m *Client) Request(ctx context.Context, command string, params map[string]any) (json.RawMessage, error) {
	if m.RequestFn != nil {
		return m.RequestFn(ctx, command, params)
	}
	return nil, errUnimplemented
}

func (m *Client) SubscribeAccount(ctx context.Context, account string, h func(ledger.TransactionEvent)) (func(), error) {
	if m.SubscribeAccountFn != nil {
		return m.SubscribeAccountFn(ctx, account, h)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = map[string]map[int]func(ledger.TransactionEvent){}
	}
	if m.handlers[account] == nil {
		m.handlers[account] = map[int]func(ledger.TransactionEvent){}
	}
	m.next++
	hid := m.next
	m.handlers[account][hid] = h
	m.Subscribes = append(m.Subscribes, account)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.handlers[account], hid)
			m.Unsubscribes = append(m.Unsubscribes, account)
		})
	}, nil
}

func (m *Client) Transaction(ctx context.Context, txID string) (*ledger.TxInfo, error) {
	if m.TransactionFn != nil {
		return m.TransactionFn(ctx, txID)
	}
	return nil, ledger.ErrTxNotFound
}

// Emit delivers ev to the handlers subscribed to its sender or destination.
func (m *Client) Emit(ev ledger.TransactionEvent) {
	tx := ev.Tx()
	m.mu.Lock()
	var hs []func(ledger.TransactionEvent)
	seen := map[int]bool{}
	for _, acct := range []string{tx.Account, tx.Destination} {
		for id, h := range m.handlers[acct] {
			if !seen[id] {
				seen[id] = true
				hs = append(hs, h)
			}
		}
	}
	m.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// Active reports how many handlers are subscribed to account.
func (m *Client) Active(account string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers[account])
}

// Calls returns copies of the subscribe and unsubscribe logs.
func (m *Client) Calls() (subscribes, unsubscribes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Subscribes...), append([]string(nil), m.Unsubscribes...)
}
