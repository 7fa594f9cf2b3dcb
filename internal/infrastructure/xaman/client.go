package xaman

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"trustline-credit/internal/domain/wallet"

	"nhooyr.io/websocket"
)

const DefaultBaseURL = "https://xumm.app"

// APIError is a non-2xx answer from the platform API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("xaman: http %d: %s", e.Status, e.Body)
}

type Options struct {
	BaseURL      string
	APIKey       string
	APISecret    string
	HTTPClient   *http.Client
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Client talks to the Xaman platform payload API and implements wallet.Signer.
type Client struct {
	opts Options
	http *http.Client
	log  *slog.Logger
}

var _ wallet.Signer = (*Client)(nil)

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{opts: opts, http: hc, log: opts.Logger.With("component", "xaman")}
}

type createRequest struct {
	TxJSON  any           `json:"txjson"`
	Options createOptions `json:"options"`
}

type createOptions struct {
	Submit       bool   `json:"submit"`
	ForceNetwork string `json:"force_network,omitempty"`
}

type createResponse struct {
	UUID string `json:"uuid"`
	Next struct {
		Always string `json:"always"`
	} `json:"next"`
	Refs struct {
		QRPNG           string `json:"qr_png"`
		WebsocketStatus string `json:"websocket_status"`
	} `json:"refs"`
}

type payloadResponse struct {
	Meta struct {
		UUID      string `json:"uuid"`
		Exists    bool   `json:"exists"`
		Resolved  bool   `json:"resolved"`
		Signed    bool   `json:"signed"`
		Cancelled bool   `json:"cancelled"`
		Expired   bool   `json:"expired"`
	} `json:"meta"`
	Response struct {
		TxID    string `json:"txid"`
		Account string `json:"account"`
	} `json:"response"`
}

// Submit creates a payload. The wallet submits the signed transaction itself.
func (c *Client) Submit(ctx context.Context, txjson any, network string) (*wallet.Pending, error) {
	body := createRequest{TxJSON: txjson, Options: createOptions{Submit: true, ForceNetwork: network}}
	var out createResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/platform/payload", body, &out); err != nil {
		return nil, err
	}
	if out.UUID == "" {
		return nil, errors.New("xaman: payload created without uuid")
	}
	c.log.Info("payload created", "uuid", out.UUID)
	return &wallet.Pending{
		ID:        out.UUID,
		QRURL:     out.Refs.QRPNG,
		DeepLink:  out.Next.Always,
		StatusURL: out.Refs.WebsocketStatus,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Await waits on the status socket when one is known and falls back to polling.
// The final answer always comes from the payload endpoint.
func (c *Client) Await(ctx context.Context, p *wallet.Pending) (wallet.Outcome, error) {
	if p.StatusURL != "" {
		if err := c.watchStatus(ctx, p.StatusURL); err != nil {
			if ctx.Err() != nil {
				return wallet.Outcome{}, ctx.Err()
			}
			c.log.Warn("status socket failed, polling", "uuid", p.ID, "err", err)
		}
	}

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		out, done, err := c.resolved(ctx, p.ID)
		if err != nil || done {
			return out, err
		}
		select {
		case <-ctx.Done():
			return wallet.Outcome{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) resolved(ctx context.Context, uuid string) (wallet.Outcome, bool, error) {
	var pr payloadResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/platform/payload/"+uuid, nil, &pr); err != nil {
		return wallet.Outcome{}, false, err
	}
	switch {
	case pr.Meta.Signed:
		return wallet.Outcome{Signed: true, TxID: pr.Response.TxID, Account: pr.Response.Account}, true, nil
	case pr.Meta.Expired || pr.Meta.Cancelled:
		return wallet.Outcome{}, true, wallet.ErrExpired
	case pr.Meta.Resolved:
		return wallet.Outcome{Signed: false}, true, nil
	}
	return wallet.Outcome{}, false, nil
}

type statusMessage struct {
	Signed  *bool `json:"signed"`
	Expired bool  `json:"expired"`
}

// watchStatus returns once the socket reports a decision or expiry.
func (c *Client) watchStatus(ctx context.Context, url string) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg statusMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.Signed != nil || msg.Expired {
			return nil
		}
	}
}

func (c *Client) Cancel(ctx context.Context, p *wallet.Pending) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/platform/payload/"+p.ID, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.opts.APIKey)
	req.Header.Set("X-API-Secret", c.opts.APISecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("xaman %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("xaman decode %s: %w", path, err)
	}
	return nil
}
