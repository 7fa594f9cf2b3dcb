package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"trustline-credit/internal/config"
	"trustline-credit/internal/domain/ledger"
	"trustline-credit/internal/domain/loan"
	"trustline-credit/internal/domain/session"
	sessionuc "trustline-credit/internal/usecase/session"
	"trustline-credit/internal/usecase/signing"
)

// statusFor maps domain and usecase errors to an HTTP status.
func statusFor(err error) int {
	var authErr *session.AuthorizationError
	switch {
	case errors.Is(err, signing.ErrSigningDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &authErr):
		return http.StatusForbidden
	case errors.Is(err, loan.ErrNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, signing.ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, loan.ErrInvalidTransition),
		errors.Is(err, loan.ErrGuard),
		errors.Is(err, loan.ErrAddressLocked),
		errors.Is(err, signing.ErrRequestPending),
		errors.Is(err, ledger.ErrMissingField):
		return http.StatusConflict
	case errors.Is(err, loan.ErrInvalidTerms),
		errors.Is(err, sessionuc.ErrInvalidRole):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrUnknownStep):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func messageFor(err error, code int) string {
	switch {
	case code == http.StatusInternalServerError:
		return "internal error"
	case errors.Is(err, loan.ErrNotFound):
		return loan.NotFoundMessage
	case errors.Is(err, session.ErrNotFound):
		return "Session not found or expired. Create a new session."
	}
	return err.Error()
}

// respondError writes err as an ErrorResponse with the mapped status.
func respondError(c echo.Context, log *slog.Logger, err error) error {
	code := statusFor(err)
	res := ErrorResponse{Error: messageFor(err, code)}
	if errors.Is(err, signing.ErrSigningDisabled) {
		res.Notice = config.SetupNotice
	}
	if code == http.StatusInternalServerError {
		log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	}
	return c.JSON(code, res)
}

func invalidBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
}

func validationFailed(c echo.Context, err error) error {
	return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "validation failed",
		Details: ToFieldErrors(err),
	})
}
