package units

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DropsPerXRP is the minor-unit factor of the native coin.
	DropsPerXRP = 1_000_000
	// RippleEpochOffset is the number of seconds between 1970-01-01 and 2000-01-01 UTC.
	RippleEpochOffset int64 = 946_684_800

	// MaxXRPDecimals is the precision of a native amount: one drop.
	MaxXRPDecimals = 6
	// MaxTokenDigits is the significant-digit precision of an issued-currency value.
	MaxTokenDigits = 15

	maxAmountLen = 32
)

var (
	dropsFactor = decimal.NewFromInt(DropsPerXRP)
	// total native supply; no ledger amount can exceed it
	maxXRP = decimal.NewFromInt(100_000_000_000)

	// plain notation only, no exponent
	rePlainDecimal = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)
)

// parse accepts a short plain-notation decimal. Exponents are refused so that a
// tiny input cannot expand into a huge number.
func parse(s string) (decimal.Decimal, bool) {
	if len(s) > maxAmountLen || !rePlainDecimal.MatchString(s) {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

// ToLedgerAmount converts a decimal XRP amount into an integer drops string.
// Anything that does not parse as a plain finite decimal converts to "0".
func ToLedgerAmount(xrp string) string {
	v, ok := parse(xrp)
	if !ok {
		return "0"
	}
	return v.Mul(dropsFactor).Round(0).String()
}

// NormalizeDrops rounds an amount already expressed in drops to an integer string.
func NormalizeDrops(drops string) string {
	v, ok := parse(drops)
	if !ok {
		return "0"
	}
	return v.Round(0).String()
}

// FromDrops renders a drops amount as XRP, mostly for display.
func FromDrops(drops string) string {
	v, ok := parse(drops)
	if !ok {
		return "0"
	}
	return v.Div(dropsFactor).String()
}

// IsXRPAmount reports whether s is a positive native amount with at most drop
// precision and no more than the total supply.
func IsXRPAmount(s string) bool {
	v, ok := parse(s)
	if !ok || !v.IsPositive() || v.GreaterThan(maxXRP) {
		return false
	}
	return fractionDigits(s) <= MaxXRPDecimals
}

// IsTokenAmount reports whether s is a positive issued-currency value the ledger
// can represent without rounding.
func IsTokenAmount(s string) bool {
	v, ok := parse(s)
	return ok && v.IsPositive() && significantDigits(s) <= MaxTokenDigits
}

func fractionDigits(s string) int {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(strings.TrimRight(s[i+1:], "0"))
	}
	return 0
}

func significantDigits(s string) int {
	digits := strings.TrimLeft(s, "+-")
	digits = strings.Replace(digits, ".", "", 1)
	digits = strings.Trim(digits, "0")
	return len(digits)
}

// LedgerNow returns now expressed in ledger epoch seconds.
func LedgerNow(now time.Time) int64 {
	return now.Unix() - RippleEpochOffset
}

// LedgerEpochFromNowPlusMinutes returns floor(now) + minutes*60 in ledger epoch seconds.
func LedgerEpochFromNowPlusMinutes(now time.Time, minutes int64) int64 {
	return now.Unix() + minutes*60 - RippleEpochOffset
}

// ToUnixTime converts ledger epoch seconds back to a wall-clock time in UTC.
func ToUnixTime(ledgerSeconds int64) time.Time {
	return time.Unix(ledgerSeconds+RippleEpochOffset, 0).UTC()
}

// FormatLedgerTime renders ledger epoch seconds as an RFC 3339 UTC timestamp.
func FormatLedgerTime(ledgerSeconds int64) string {
	return ToUnixTime(ledgerSeconds).Format(time.RFC3339)
}
