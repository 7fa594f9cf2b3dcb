package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"trustline-credit/internal/config"
)

type Handler struct {
	signingEnabled bool
	network        string
}

func NewHandler(signingEnabled bool, network string) *Handler {
	return &Handler{signingEnabled: signingEnabled, network: network}
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type setupRes struct {
	SigningEnabled bool   `json:"signingEnabled"`
	Network        string `json:"network"`
	Notice         string `json:"notice,omitempty"`
}

// Setup reports whether wallet signing is available. The service keeps serving
// reads when it is not.
func (h *Handler) Setup(c echo.Context) error {
	res := setupRes{SigningEnabled: h.signingEnabled, Network: h.network}
	if !h.signingEnabled {
		res.Notice = config.SetupNotice
	}
	return c.JSON(http.StatusOK, res)
}
