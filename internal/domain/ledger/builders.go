package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"trustline-credit/internal/domain/loan"
)

// TrustlineLimitMultiplier sizes the borrower's trustline relative to the credit
// amount, leaving headroom above the issued quantity.
const TrustlineLimitMultiplier = 2

var (
	ErrMissingField = errors.New("loan is missing a field the transaction needs")
	ErrUnknownStep  = errors.New("unknown step")
)

func missing(field string) error { return fmt.Errorf("%w: %s", ErrMissingField, field) }

func TrustSet(l loan.Loan) (Tx, error) {
	if l.BorrowerAddress == "" {
		return Tx{}, missing("borrowerAddress")
	}
	if l.LenderAddress == "" {
		return Tx{}, missing("lenderAddress")
	}
	credit, err := decimal.NewFromString(l.CreditAmount)
	if err != nil {
		return Tx{}, missing("creditAmount")
	}
	limit := credit.Mul(decimal.NewFromInt(TrustlineLimitMultiplier))
	return Tx{
		TransactionType: TypeTrustSet,
		Account:         l.BorrowerAddress,
		LimitAmount: &IssuedAmount{
			Currency: EncodeCurrency(l.CurrencyCode),
			Issuer:   l.LenderAddress,
			Value:    limit.String(),
		},
	}, nil
}

func EscrowCreate(l loan.Loan) (Tx, error) {
	if l.BorrowerAddress == "" {
		return Tx{}, missing("borrowerAddress")
	}
	if l.LenderAddress == "" {
		return Tx{}, missing("lenderAddress")
	}
	return Tx{
		TransactionType: TypeEscrowCreate,
		Account:         l.BorrowerAddress,
		Destination:     l.LenderAddress,
		Amount:          DropsAmount(l.CollateralAmount),
		FinishAfter:     l.DueAt,
		CancelAfter:     l.CancelAt,
	}, nil
}

// CreditIssue pays the credit token to the borrower. The trustline is not checked;
// the network rejects the payment if it is absent.
func CreditIssue(l loan.Loan) (Tx, error) {
	if l.LenderAddress == "" {
		return Tx{}, missing("lenderAddress")
	}
	if l.BorrowerAddress == "" {
		return Tx{}, missing("borrowerAddress")
	}
	return Tx{
		TransactionType: TypePayment,
		Account:         l.LenderAddress,
		Destination:     l.BorrowerAddress,
		Amount:          TokenAmount(l.CurrencyCode, l.LenderAddress, l.CreditAmount),
	}, nil
}

func Repayment(l loan.Loan) (Tx, error) {
	if l.BorrowerAddress == "" {
		return Tx{}, missing("borrowerAddress")
	}
	if l.LenderAddress == "" {
		return Tx{}, missing("lenderAddress")
	}
	return Tx{
		TransactionType: TypePayment,
		Account:         l.BorrowerAddress,
		Destination:     l.LenderAddress,
		Amount:          DropsAmount(l.RepayAmount),
	}, nil
}

func EscrowFinish(l loan.Loan) (Tx, error) {
	if l.LenderAddress == "" {
		return Tx{}, missing("lenderAddress")
	}
	if l.BorrowerAddress == "" {
		return Tx{}, missing("borrowerAddress")
	}
	if !l.HasEscrow() {
		return Tx{}, missing("escrowSequence")
	}
	return Tx{
		TransactionType: TypeEscrowFinish,
		Account:         l.LenderAddress,
		Owner:           l.BorrowerAddress,
		OfferSequence:   l.EscrowSequence(),
	}, nil
}

func EscrowCancel(l loan.Loan) (Tx, error) {
	if l.BorrowerAddress == "" {
		return Tx{}, missing("borrowerAddress")
	}
	if !l.HasEscrow() {
		return Tx{}, missing("escrowSequence")
	}
	return Tx{
		TransactionType: TypeEscrowCancel,
		Account:         l.BorrowerAddress,
		Owner:           l.BorrowerAddress,
		OfferSequence:   l.EscrowSequence(),
	}, nil
}

// SignIn is the pseudo-transaction a wallet signs to prove control of an account.
func SignIn() Tx { return Tx{TransactionType: TypeSignIn} }
