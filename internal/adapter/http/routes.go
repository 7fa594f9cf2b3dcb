package http

import "github.com/labstack/echo/v4"

// Register mounts every API route on e.
func Register(e *echo.Echo, h *Handler, loans *LoanHandler, sessions *SessionHandler, requests *SignRequestHandler) {
	e.GET("/health", h.Health)
	e.GET("/setup", h.Setup)

	e.POST("/loans", loans.CreateLoan)
	e.GET("/loans/:loan_id", loans.GetLoan)
	e.PUT("/loans/:loan_id/addresses", sessions.AssignAddresses)
	e.POST("/loans/:loan_id/evaluate", loans.EvaluateDefault)
	e.GET("/loans/:loan_id/transitions", loans.Transitions)
	e.GET("/loans/:loan_id/steps/:step/tx", loans.StepTx)
	e.POST("/loans/:loan_id/steps/:step", loans.StartStep)

	e.POST("/sessions", sessions.Create)
	e.GET("/sessions/:session_id", sessions.Get)
	e.POST("/sessions/:session_id/connect", sessions.Connect)
	e.DELETE("/sessions/:session_id", sessions.Logout)

	e.GET("/sign-requests/:request_id", requests.Get)
	e.GET("/sign-requests/:request_id/qr.png", requests.QRCode)
	e.DELETE("/sign-requests/:request_id", requests.Cancel)
}
