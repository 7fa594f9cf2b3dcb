package http

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"trustline-credit/internal/domain/loan"
	"trustline-credit/pkg/units"
)

// Reusable error payload
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
type ErrorResponse struct {
	Error   string       `json:"error"`
	Notice  string       `json:"notice,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}

var (
	reHex32 = regexp.MustCompile(`^[a-f0-9]{32}$`)
	// classic address: 'r' then base58 (ripple alphabet has no 0, O, I, l)
	reXRPLAddress = regexp.MustCompile(`^r[1-9A-HJ-NP-Za-km-z]{24,34}$`)
)

type CustomValidator struct{ v *validator.Validate }

func NewValidator() *CustomValidator {
	v := validator.New()

	// session id = 32-char lowercase hex
	_ = v.RegisterValidation("hex32", func(fl validator.FieldLevel) bool {
		return reHex32.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("xrpladdr", func(fl validator.FieldLevel) bool {
		return reXRPLAddress.MatchString(fl.Field().String())
	})
	// plain positive decimals, e.g. "5" or "5.25"
	_ = v.RegisterValidation("xrpamount", func(fl validator.FieldLevel) bool {
		return units.IsXRPAmount(fl.Field().String())
	})
	_ = v.RegisterValidation("tokenamount", func(fl validator.FieldLevel) bool {
		return units.IsTokenAmount(fl.Field().String())
	})
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return loan.ValidCurrency(fl.Field().String())
	})

	return &CustomValidator{v: v}
}

func (cv *CustomValidator) Validate(i any) error { return cv.v.Struct(i) }

// Map validator.ValidationErrors → []FieldError with readable messages.
func ToFieldErrors(err error) []FieldError {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "_", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(ve))
	for _, e := range ve {
		field := e.Field()
		switch e.Tag() {
		case "required":
			out = append(out, FieldError{Field: field, Message: "is required"})
		case "hex32":
			out = append(out, FieldError{Field: field, Message: "must be 32-char lowercase hex"})
		case "xrpladdr":
			out = append(out, FieldError{Field: field, Message: "must be a classic XRPL address"})
		case "xrpamount":
			out = append(out, FieldError{Field: field, Message: fmt.Sprintf("must be a positive XRP amount with at most %d decimals", units.MaxXRPDecimals)})
		case "tokenamount":
			out = append(out, FieldError{Field: field, Message: fmt.Sprintf("must be a positive decimal of at most %d significant digits", units.MaxTokenDigits)})
		case "currency":
			out = append(out, FieldError{Field: field, Message: "must be a 3-char code, 4-20 alphanumerics or 40 hex (not XRP)"})
		case "oneof":
			out = append(out, FieldError{Field: field, Message: "must be one of: " + e.Param()})
		case "uuid4":
			out = append(out, FieldError{Field: field, Message: "must be a UUID"})
		case "gte":
			out = append(out, FieldError{Field: field, Message: "must be greater than or equal to " + e.Param()})
		case "lte":
			out = append(out, FieldError{Field: field, Message: "must be less than or equal to " + e.Param()})
		default:
			out = append(out, FieldError{Field: field, Message: e.Tag() + " validation failed"})
		}
	}
	return out
}
