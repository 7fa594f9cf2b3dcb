package http

import (
	"context"
	"encoding/json"
	"fmt"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"trustline-credit/internal/adapter/middleware"
	domain "trustline-credit/internal/domain/loan"
	"trustline-credit/internal/domain/session"
	uc "trustline-credit/internal/usecase/loan"
	sessionuc "trustline-credit/internal/usecase/session"
	"trustline-credit/internal/usecase/signing"
)

var testSessionID = strings.Repeat("c", 32)

type fakeSessions struct {
	connected bool
	gotRole   domain.Role
	gotLoan   string
	assigned  [2]string
	err       error
}

func (f *fakeSessions) dto(id string) *sessionuc.SessionDTO {
	d := &sessionuc.SessionDTO{ID: id, CreatedAt: time.Now().UTC()}
	if f.connected {
		d.Connected, d.Account, d.AccountShort, d.Role = true, lenderAddr, session.Shorten(lenderAddr), "lender"
	}
	return d
}

func (f *fakeSessions) lookup(id string) error {
	if f.err != nil {
		return f.err
	}
	if id != testSessionID {
		return session.ErrNotFound
	}
	return nil
}

func (f *fakeSessions) Create(context.Context) (*sessionuc.SessionDTO, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.dto(testSessionID), nil
}

func (f *fakeSessions) Get(_ context.Context, id string) (*sessionuc.SessionDTO, error) {
	if err := f.lookup(id); err != nil {
		return nil, err
	}
	return f.dto(id), nil
}

func (f *fakeSessions) Connect(_ context.Context, id string, role domain.Role, loanID string) (*signing.SignRequestDTO, error) {
	if err := f.lookup(id); err != nil {
		return nil, err
	}
	f.gotRole, f.gotLoan = role, loanID
	return &signing.SignRequestDTO{ID: "req-signin", SessionID: id, Step: signing.StepSignIn, Status: signing.StatusPending}, nil
}

func (f *fakeSessions) Logout(_ context.Context, id string) (*sessionuc.SessionDTO, error) {
	if err := f.lookup(id); err != nil {
		return nil, err
	}
	f.connected = false
	return f.dto(id), nil
}

func (f *fakeSessions) AssignAddresses(_ context.Context, id, loanID, lender, borrower string) (*uc.LoanDTO, error) {
	if err := f.lookup(id); err != nil {
		return nil, err
	}
	f.assigned = [2]string{lender, borrower}
	l := sampleLoan()
	l.ID = loanID
	return &uc.LoanDTO{Loan: l, StatusLabel: l.Status.Label()}, nil
}

func serveSessions(svc *fakeSessions, method, path, body string) *httptest.ResponseRecorder {
	return serveSessionsAs(svc, method, path, body, "")
}

func serveSessionsAs(svc *fakeSessions, method, path, body, sessionID string) *httptest.ResponseRecorder {
	e := newEchoWithValidator()
	Register(e, NewHandler(true, "TESTNET"), NewLoanHandler(&fakeLoans{}, &fakeStarter{}, nil), NewSessionHandler(svc, nil), NewSignRequestHandler(&fakeRequests{}, nil))
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if sessionID != "" {
		req.Header.Set(middleware.HeaderSessionID, sessionID)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSession_CreateAndGet(t *testing.T) {
	svc := &fakeSessions{}
	rec := serveSessions(svc, stdhttp.MethodPost, "/sessions", "")
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var dto sessionuc.SessionDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil || dto.ID != testSessionID || dto.Connected {
		t.Fatalf("create dto = %+v err=%v", dto, err)
	}

	svc.connected = true
	rec = serveSessions(svc, stdhttp.MethodGet, "/sessions/"+testSessionID, "")
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil || !dto.Connected || dto.AccountShort == "" {
		t.Fatalf("get dto = %+v err=%v", dto, err)
	}
}

func TestSession_Get_Errors(t *testing.T) {
	rec := serveSessions(&fakeSessions{}, stdhttp.MethodGet, "/sessions/NOT-HEX", "")
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("invalid id status = %d, want 400", rec.Code)
	}
	rec = serveSessions(&fakeSessions{}, stdhttp.MethodGet, "/sessions/"+strings.Repeat("d", 32), "")
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("unknown session status = %d, want 404", rec.Code)
	}
}

func TestSession_Connect(t *testing.T) {
	svc := &fakeSessions{}
	rec := serveSessions(svc, stdhttp.MethodPost, "/sessions/"+testSessionID+"/connect",
		`{"role":"borrower","loanId":"`+testLoanID+`"}`)
	if rec.Code != stdhttp.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var dto signing.SignRequestDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil || dto.Step != signing.StepSignIn {
		t.Fatalf("dto = %+v err=%v", dto, err)
	}
	if svc.gotRole != domain.RoleBorrower || svc.gotLoan != testLoanID {
		t.Fatalf("connect args = %q %q", svc.gotRole, svc.gotLoan)
	}
}

func TestSession_Connect_Validation(t *testing.T) {
	rec := serveSessions(&fakeSessions{}, stdhttp.MethodPost, "/sessions/"+testSessionID+"/connect", `{"role":"broker","loanId":"abc"}`)
	if rec.Code != stdhttp.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var er ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &er)
	if !containsFieldMsg(er.Details, "Role", "lender borrower") || !containsFieldMsg(er.Details, "LoanID", "UUID") {
		t.Fatalf("details = %+v", er.Details)
	}
}

func TestSession_Connect_SigningDisabled(t *testing.T) {
	rec := serveSessions(&fakeSessions{err: signing.ErrSigningDisabled}, stdhttp.MethodPost,
		"/sessions/"+testSessionID+"/connect", `{"role":"lender"}`)
	if rec.Code != stdhttp.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var er ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &er)
	if er.Notice == "" {
		t.Fatalf("setup notice missing: %+v", er)
	}
}

func TestSession_Logout(t *testing.T) {
	svc := &fakeSessions{connected: true}
	rec := serveSessions(svc, stdhttp.MethodDelete, "/sessions/"+testSessionID, "")
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var dto sessionuc.SessionDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil || dto.Connected || dto.Account != "" {
		t.Fatalf("dto = %+v err=%v", dto, err)
	}
}

func TestSession_AssignAddresses(t *testing.T) {
	path := "/loans/" + testLoanID + "/addresses"

	svc := &fakeSessions{connected: true}
	rec := serveSessionsAs(svc, stdhttp.MethodPut, path, `{"borrowerAddress":"`+borrowerAddr+`"}`, testSessionID)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if svc.assigned != [2]string{"", borrowerAddr} {
		t.Fatalf("assigned = %v", svc.assigned)
	}

	cases := []struct {
		name      string
		err       error
		sessionID string
		body      string
		code      int
	}{
		{"missing session header", nil, "", `{"borrowerAddress":"` + borrowerAddr + `"}`, stdhttp.StatusBadRequest},
		{"malformed session header", nil, "NOT-HEX", `{"borrowerAddress":"` + borrowerAddr + `"}`, stdhttp.StatusBadRequest},
		{"no address", nil, testSessionID, `{}`, stdhttp.StatusUnprocessableEntity},
		{"bad address", nil, testSessionID, `{"lenderAddress":"xyz"}`, stdhttp.StatusUnprocessableEntity},
		{"other wallet", &session.AuthorizationError{Role: domain.RoleBorrower, Message: "Only the connected wallet can be set as borrower."}, testSessionID, `{"borrowerAddress":"` + borrowerAddr + `"}`, stdhttp.StatusForbidden},
		{"already set", fmt.Errorf("%w: lender address already set", domain.ErrAddressLocked), testSessionID, `{"lenderAddress":"` + lenderAddr + `"}`, stdhttp.StatusConflict},
		{"unknown session", nil, strings.Repeat("d", 32), `{"borrowerAddress":"` + borrowerAddr + `"}`, stdhttp.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeSessions{connected: true, err: tc.err}
			rec := serveSessionsAs(svc, stdhttp.MethodPut, path, tc.body, tc.sessionID)
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d; body=%s", rec.Code, tc.code, rec.Body.String())
			}
			if svc.assigned != [2]string{} {
				t.Fatalf("assigned despite error: %v", svc.assigned)
			}
		})
	}
}
