package ledger

import (
	"context"
	"encoding/json"
	"errors"
)

const ResultSuccess = "tesSUCCESS"

var (
	ErrTxNotFound   = errors.New("transaction not found")
	ErrNotConnected = errors.New("ledger connection closed")
)

// Client is the shared ledger connection: request/response plus the validated
// transaction stream filtered by account.
type Client interface {
	Request(ctx context.Context, command string, params map[string]any) (json.RawMessage, error)
	// SubscribeAccount delivers every transaction touching account to h until the
	// returned cancel func is called. Cancel removes h before it returns.
	SubscribeAccount(ctx context.Context, account string, h func(TransactionEvent)) (cancel func(), err error)
	Transaction(ctx context.Context, txID string) (*TxInfo, error)
}

// StreamTx is the transaction body carried by stream messages and tx lookups.
type StreamTx struct {
	TransactionType string  `json:"TransactionType"`
	Account         string  `json:"Account"`
	Destination     string  `json:"Destination,omitempty"`
	Amount          *Amount `json:"Amount,omitempty"`
	Sequence        uint32  `json:"Sequence,omitempty"`
	Hash            string  `json:"hash,omitempty"`
	Date            int64   `json:"date,omitempty"`
}

// TransactionEvent is one "transaction" message of the subscription stream.
type TransactionEvent struct {
	Type         string    `json:"type"`
	Validated    bool      `json:"validated"`
	EngineResult string    `json:"engine_result"`
	Hash         string    `json:"hash,omitempty"`
	LedgerIndex  uint32    `json:"ledger_index,omitempty"`
	Transaction  *StreamTx `json:"transaction,omitempty"`
	TxJSON       *StreamTx `json:"tx_json,omitempty"`
}

// Tx returns the transaction body in either API version's layout.
func (e TransactionEvent) Tx() StreamTx {
	if e.Transaction != nil {
		return *e.Transaction
	}
	if e.TxJSON != nil {
		return *e.TxJSON
	}
	return StreamTx{}
}

// ID returns the transaction hash.
func (e TransactionEvent) ID() string {
	if e.Hash != "" {
		return e.Hash
	}
	return e.Tx().Hash
}

// TxInfo is the subset of a tx lookup this service reads.
type TxInfo struct {
	StreamTx
	Validated bool      `json:"validated"`
	TxJSON    *StreamTx `json:"tx_json,omitempty"`
	Meta      struct {
		TransactionResult string `json:"TransactionResult"`
	} `json:"meta"`
}

// Body returns the transaction fields regardless of API version.
func (t TxInfo) Body() StreamTx {
	if t.TxJSON != nil && t.TxJSON.TransactionType != "" {
		b := *t.TxJSON
		if b.Hash == "" {
			b.Hash = t.Hash
		}
		if b.Date == 0 {
			b.Date = t.Date
		}
		return b
	}
	return t.StreamTx
}

// Succeeded reports a validated transaction with a tesSUCCESS result.
func (t TxInfo) Succeeded() bool {
	return t.Validated && t.Meta.TransactionResult == ResultSuccess
}
