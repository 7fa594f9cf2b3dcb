package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"trustline-credit/internal/domain/ledger"
	"trustline-credit/internal/domain/loan"
	loanuc "trustline-credit/internal/usecase/loan"
	"trustline-credit/internal/usecase/signing"
)

// LoanService is the loan usecase as seen by the HTTP layer.
type LoanService interface {
	CreateOffer(ctx context.Context, in loanuc.CreateOfferInput) (*loanuc.LoanDTO, error)
	Load(ctx context.Context, loanID string) (loan.Loan, error)
	Get(ctx context.Context, loanID string) (*loanuc.LoanDTO, error)
	EvaluateDefault(ctx context.Context, loanID string) (*loanuc.LoanDTO, error)
	Transitions(ctx context.Context, loanID string) ([]loanuc.TransitionDTO, error)
}

// StepStarter launches a wallet signature for one lifecycle step.
type StepStarter interface {
	Start(ctx context.Context, sessionID, loanID string, step ledger.Step) (*signing.SignRequestDTO, error)
}

type LoanHandler struct {
	uc      LoanService
	signing StepStarter
	log     *slog.Logger
}

func NewLoanHandler(uc LoanService, signing StepStarter, log *slog.Logger) *LoanHandler {
	if log == nil {
		log = slog.Default()
	}
	return &LoanHandler{uc: uc, signing: signing, log: log}
}

type createLoanReq struct {
	LenderAddress   string `json:"lenderAddress"   validate:"required,xrpladdr"`
	BorrowerAddress string `json:"borrowerAddress" validate:"omitempty,xrpladdr"`
	CurrencyCode    string `json:"currencyCode"    validate:"omitempty,currency"`
	CreditAmount    string `json:"creditAmount"    validate:"omitempty,tokenamount"`
	CollateralXRP   string `json:"collateralXrp"   validate:"omitempty,xrpamount"`
	RepayXRP        string `json:"repayXrp"        validate:"omitempty,xrpamount"`
	DueMinutes      int64  `json:"dueMinutes"      validate:"gte=0,lte=525600"`
	GraceMinutes    int64  `json:"graceMinutes"    validate:"gte=0,lte=525600"`
}

func (h *LoanHandler) CreateLoan(c echo.Context) error {
	var req createLoanReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}
	dto, err := h.uc.CreateOffer(c.Request().Context(), loanuc.CreateOfferInput(req))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *LoanHandler) GetLoan(c echo.Context) error {
	dto, err := h.uc.Get(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}

// EvaluateDefault checks the loan against the current ledger time.
func (h *LoanHandler) EvaluateDefault(c echo.Context) error {
	dto, err := h.uc.EvaluateDefault(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) Transitions(c echo.Context) error {
	list, err := h.uc.Transitions(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if list == nil {
		list = []loanuc.TransitionDTO{}
	}
	return c.JSON(http.StatusOK, list)
}

type stepTxRes struct {
	Step   ledger.Step `json:"step"`
	Signer loan.Role   `json:"signer"`
	TxJSON ledger.Tx   `json:"txjson"`
}

// StepTx previews the unsigned transaction a step would ask the wallet to sign.
func (h *LoanHandler) StepTx(c echo.Context) error {
	step, err := ledger.ParseStep(c.Param("step"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	l, err := h.uc.Load(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := step.Allowed(l); err != nil {
		return respondError(c, h.log, err)
	}
	tx, err := ledger.Build(step, l)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, stepTxRes{Step: step, Signer: step.Signer(), TxJSON: tx})
}

// StartStep asks the session's wallet to sign a step. The result is polled
// through the sign request.
func (h *LoanHandler) StartStep(c echo.Context) error {
	sessionID, bad := sessionHeader(c)
	if bad != nil {
		return c.JSON(http.StatusBadRequest, bad)
	}
	step, err := ledger.ParseStep(c.Param("step"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	dto, err := h.signing.Start(c.Request().Context(), sessionID, c.Param("loan_id"), step)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusAccepted, dto)
}
