package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"trustline-credit/internal/usecase/signing"
)

const (
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

type SignRequestService interface {
	Get(requestID string) (*signing.SignRequestDTO, error)
	Cancel(ctx context.Context, requestID string) (*signing.SignRequestDTO, error)
	QRCode(requestID string, size int) ([]byte, error)
}

type SignRequestHandler struct {
	uc  SignRequestService
	log *slog.Logger
}

func NewSignRequestHandler(uc SignRequestService, log *slog.Logger) *SignRequestHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SignRequestHandler{uc: uc, log: log}
}

func (h *SignRequestHandler) Get(c echo.Context) error {
	dto, err := h.uc.Get(c.Param("request_id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}

// QRCode renders the wallet deep link as a PNG. ?size= sets the edge in pixels.
func (h *SignRequestHandler) QRCode(c echo.Context) error {
	size := defaultQRSize
	if raw := c.QueryParam("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minQRSize || n > maxQRSize {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "size must be an integer between " + strconv.Itoa(minQRSize) + " and " + strconv.Itoa(maxQRSize),
			})
		}
		size = n
	}
	png, err := h.uc.QRCode(c.Param("request_id"), size)
	if err != nil {
		return respondError(c, h.log, err)
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/png", png)
}

func (h *SignRequestHandler) Cancel(c echo.Context) error {
	dto, err := h.uc.Cancel(c.Request().Context(), c.Param("request_id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, dto)
}
