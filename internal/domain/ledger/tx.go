package ledger

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"trustline-credit/pkg/units"
)

const (
	TypeTrustSet     = "TrustSet"
	TypeEscrowCreate = "EscrowCreate"
	TypeEscrowFinish = "EscrowFinish"
	TypeEscrowCancel = "EscrowCancel"
	TypePayment      = "Payment"
	TypeSignIn       = "SignIn"
)

// IssuedAmount is a token amount: currency, issuer, decimal value.
type IssuedAmount struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer"`
	Value    string `json:"value"`
}

// Amount is either a native drops string or an issued-token object on the wire.
type Amount struct {
	Drops  string
	Issued *IssuedAmount
}

// DropsAmount carries a native amount as a whole number of drops.
func DropsAmount(drops string) *Amount { return &Amount{Drops: units.NormalizeDrops(drops)} }

func TokenAmount(currency, issuer, value string) *Amount {
	return &Amount{Issued: &IssuedAmount{Currency: EncodeCurrency(currency), Issuer: issuer, Value: value}}
}

// Native reports whether a carries the native coin.
func (a Amount) Native() bool { return a.Issued == nil }

func (a Amount) MarshalJSON() ([]byte, error) {
	if a.Issued != nil {
		return json.Marshal(a.Issued)
	}
	return json.Marshal(a.Drops)
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = Amount{Drops: s}
		return nil
	}
	var iou IssuedAmount
	if err := json.Unmarshal(b, &iou); err != nil {
		return errors.New("ledger: amount is neither drops nor an issued amount")
	}
	*a = Amount{Issued: &iou}
	return nil
}

// Tx is an unsigned transaction descriptor in txjson form.
type Tx struct {
	TransactionType string        `json:"TransactionType"`
	Account         string        `json:"Account,omitempty"`
	Destination     string        `json:"Destination,omitempty"`
	Amount          *Amount       `json:"Amount,omitempty"`
	LimitAmount     *IssuedAmount `json:"LimitAmount,omitempty"`
	FinishAfter     int64         `json:"FinishAfter,omitempty"`
	CancelAfter     int64         `json:"CancelAfter,omitempty"`
	Owner           string        `json:"Owner,omitempty"`
	OfferSequence   uint32        `json:"OfferSequence,omitempty"`
}

// EncodeCurrency returns the on-ledger form of a currency code. Three-character
// codes pass through; longer codes become the 40-hex padded representation.
func EncodeCurrency(code string) string {
	if len(code) <= 3 || isHex40(code) {
		return code
	}
	out := make([]byte, 20)
	copy(out, code)
	return strings.ToUpper(hex.EncodeToString(out))
}

func isHex40(s string) bool {
	if len(s) != 40 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
