package xrpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"trustline-credit/internal/domain/ledger"
	"trustline-credit/internal/infrastructure/metrics"

	"nhooyr.io/websocket"
)

const (
	wsWriteTimeout   = 10 * time.Second
	unsubscribeAfter = 5 * time.Second
	readLimit        = 4 << 20
)

// RPCError is an error response from the ledger server.
type RPCError struct {
	Code    string
	Message string
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return "ledger: " + e.Code
	}
	return fmt.Sprintf("ledger: %s: %s", e.Code, e.Message)
}

type Options struct {
	URL            string
	ReconnectDelay time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

type response struct {
	result json.RawMessage
	err    error
}

type handlerSet map[uint64]func(ledger.TransactionEvent)

// Client is a lazily connected, shared rippled WebSocket connection. Account
// subscriptions are reference counted so each account is subscribed once.
type Client struct {
	opts Options
	log  *slog.Logger

	dialMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[uint64]chan response
	subs    map[string]handlerSet
	closed  bool

	nextID      atomic.Uint64
	nextHandler atomic.Uint64
	stop        chan struct{}
}

var _ ledger.Client = (*Client)(nil)

func NewClient(opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		opts:    opts,
		log:     opts.Logger.With("component", "xrpl"),
		pending: make(map[uint64]chan response),
		subs:    make(map[string]handlerSet),
		stop:    make(chan struct{}),
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ledger.ErrNotConnected
	}
	if c.conn != nil {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, c.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	conn.SetReadLimit(readLimit)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.log.Info("ledger connected", "url", c.opts.URL)
	go c.readLoop(conn)
	return conn, nil
}

// Request sends command with params merged into the top-level request object and
// waits for the matching response.
func (c *Client) Request(ctx context.Context, command string, params map[string]any) (json.RawMessage, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, conn, command, params)
}

func (c *Client) send(ctx context.Context, conn *websocket.Conn, command string, params map[string]any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	msg := make(map[string]any, len(params)+2)
	for k, v := range params {
		msg[k] = v
	}
	msg["id"] = id
	msg["command"] = command
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	ch := make(chan response, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.result, res.err
	}
}

type envelope struct {
	ID           *uint64         `json:"id"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result"`
	Error        string          `json:"error"`
	ErrorMessage string          `json:"error_message"`
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			c.disconnected(conn, err)
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("ledger message not json", "err", err)
			continue
		}
		switch {
		case env.Type == "transaction":
			var ev ledger.TransactionEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				c.log.Warn("ledger transaction undecodable", "err", err)
				continue
			}
			c.dispatch(ev)
		case env.ID != nil:
			c.resolve(*env.ID, env)
		}
	}
}

func (c *Client) resolve(id uint64, env envelope) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	res := response{result: env.Result}
	if env.Status == "error" || env.Error != "" {
		res = response{err: &RPCError{Code: env.Error, Message: env.ErrorMessage}}
	}
	select {
	case ch <- res:
	default:
	}
}

// dispatch hands ev to every handler subscribed to the sender or recipient.
// Handlers run on the read loop and must not block.
func (c *Client) dispatch(ev ledger.TransactionEvent) {
	tx := ev.Tx()
	var hs []func(ledger.TransactionEvent)
	seen := map[uint64]bool{}
	c.mu.Lock()
	for _, acct := range []string{tx.Account, tx.Destination} {
		for id, h := range c.subs[acct] {
			if !seen[id] {
				seen[id] = true
				hs = append(hs, h)
			}
		}
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (c *Client) disconnected(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		select {
		case ch <- response{err: ledger.ErrNotConnected}:
		default:
		}
		delete(c.pending, id)
	}
	resume := !c.closed && len(c.subs) > 0
	c.mu.Unlock()

	if c.isClosed() {
		return
	}
	c.log.Warn("ledger connection lost", "err", err, "resubscribe", resume)
	if resume {
		go c.reconnect()
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// reconnect redials until it succeeds, then restores every account subscription.
func (c *Client) reconnect() {
	for {
		select {
		case <-c.stop:
			return
		case <-time.After(c.opts.ReconnectDelay):
		}
		c.opts.Metrics.LedgerReconnected()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, err := c.connect(ctx)
		if err != nil {
			cancel()
			c.log.Warn("ledger reconnect failed", "err", err)
			continue
		}
		accounts := c.accounts()
		if len(accounts) > 0 {
			if _, err := c.send(ctx, conn, "subscribe", map[string]any{"accounts": accounts}); err != nil {
				cancel()
				c.log.Warn("ledger resubscribe failed", "err", err)
				continue
			}
		}
		cancel()
		c.log.Info("ledger resubscribed", "accounts", len(accounts))
		return
	}
}

func (c *Client) accounts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for a := range c.subs {
		out = append(out, a)
	}
	return out
}

func (c *Client) SubscribeAccount(ctx context.Context, account string, h func(ledger.TransactionEvent)) (func(), error) {
	if account == "" {
		return nil, errors.New("xrpl: empty account")
	}
	hid := c.nextHandler.Add(1)

	c.mu.Lock()
	set, ok := c.subs[account]
	if !ok {
		set = handlerSet{}
		c.subs[account] = set
	}
	set[hid] = h
	first := len(set) == 1
	c.mu.Unlock()

	if first {
		if _, err := c.Request(ctx, "subscribe", map[string]any{"accounts": []string{account}}); err != nil {
			c.remove(account, hid)
			return nil, err
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if !c.remove(account, hid) {
				return
			}
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}
			uctx, done := context.WithTimeout(context.Background(), unsubscribeAfter)
			defer done()
			if _, err := c.send(uctx, conn, "unsubscribe", map[string]any{"accounts": []string{account}}); err != nil {
				c.log.Warn("ledger unsubscribe failed", "account", account, "err", err)
			}
		})
	}
	return cancel, nil
}

// remove drops handler hid and reports whether it was the account's last one.
func (c *Client) remove(account string, hid uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.subs[account]
	delete(set, hid)
	if len(set) == 0 {
		delete(c.subs, account)
		return true
	}
	return false
}

func (c *Client) Transaction(ctx context.Context, txID string) (*ledger.TxInfo, error) {
	raw, err := c.Request(ctx, "tx", map[string]any{"transaction": txID, "binary": false})
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == "txnNotFound" {
			return nil, fmt.Errorf("%w: %s", ledger.ErrTxNotFound, txID)
		}
		return nil, err
	}
	var info ledger.TxInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode tx %s: %w", txID, err)
	}
	return &info, nil
}

// Close drops the connection and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	close(c.stop)
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	return nil
}
