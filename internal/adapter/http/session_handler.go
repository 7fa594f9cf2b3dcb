package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"trustline-credit/internal/adapter/middleware"
	"trustline-credit/internal/domain/loan"
	loanuc "trustline-credit/internal/usecase/loan"
	sessionuc "trustline-credit/internal/usecase/session"
	"trustline-credit/internal/usecase/signing"
)

type SessionService interface {
	Create(ctx context.Context) (*sessionuc.SessionDTO, error)
	Get(ctx context.Context, sessionID string) (*sessionuc.SessionDTO, error)
	Connect(ctx context.Context, sessionID string, role loan.Role, loanID string) (*signing.SignRequestDTO, error)
	Logout(ctx context.Context, sessionID string) (*sessionuc.SessionDTO, error)
	AssignAddresses(ctx context.Context, sessionID, loanID, lender, borrower string) (*loanuc.LoanDTO, error)
}

type SessionHandler struct {
	uc  SessionService
	log *slog.Logger
}

func NewSessionHandler(uc SessionService, log *slog.Logger) *SessionHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SessionHandler{uc: uc, log: log}
}

func (h *SessionHandler) sessionID(c echo.Context) (string, bool) {
	id := c.Param("session_id")
	return id, reHex32.MatchString(id)
}

// sessionHeader reads the acting session from the request header.
func sessionHeader(c echo.Context) (string, *ErrorResponse) {
	id := strings.TrimSpace(c.Request().Header.Get(middleware.HeaderSessionID))
	if id == "" {
		return "", &ErrorResponse{Error: "missing " + middleware.HeaderSessionID}
	}
	if !reHex32.MatchString(id) {
		return "", &ErrorResponse{Error: "invalid " + middleware.HeaderSessionID}
	}
	return id, nil
}

func (h *SessionHandler) Create(c echo.Context) error {
	dto, err := h.uc.Create(c.Request().Context())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *SessionHandler) Get(c echo.Context) error {
	id, ok := h.sessionID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid session_id"})
	}
	dto, err := h.uc.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}

type connectReq struct {
	Role   string `json:"role"   validate:"required,oneof=lender borrower"`
	LoanID string `json:"loanId" validate:"omitempty,uuid4"`
}

// Connect starts a wallet sign-in for the session. The session is connected
// once the returned sign request is CONFIRMED.
func (h *SessionHandler) Connect(c echo.Context) error {
	id, ok := h.sessionID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid session_id"})
	}
	var req connectReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}
	dto, err := h.uc.Connect(c.Request().Context(), id, loan.Role(req.Role), req.LoanID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusAccepted, dto)
}

func (h *SessionHandler) Logout(c echo.Context) error {
	id, ok := h.sessionID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid session_id"})
	}
	dto, err := h.uc.Logout(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}

type assignAddressesReq struct {
	LenderAddress   string `json:"lenderAddress"   validate:"omitempty,xrpladdr"`
	BorrowerAddress string `json:"borrowerAddress" validate:"omitempty,xrpladdr"`
}

// AssignAddresses fills the connected wallet's own address on an OFFERED loan.
func (h *SessionHandler) AssignAddresses(c echo.Context) error {
	sessionID, bad := sessionHeader(c)
	if bad != nil {
		return c.JSON(http.StatusBadRequest, bad)
	}
	var req assignAddressesReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}
	if req.LenderAddress == "" && req.BorrowerAddress == "" {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: []FieldError{{Field: "_", Message: "lenderAddress or borrowerAddress is required"}},
		})
	}
	dto, err := h.uc.AssignAddresses(c.Request().Context(), sessionID, c.Param("loan_id"), req.LenderAddress, req.BorrowerAddress)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}
