package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"trustline-credit/internal/usecase/signing"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

type fakeRequests struct {
	status    signing.Status
	gotSize   int
	cancelled bool
}

func (f *fakeRequests) Get(id string) (*signing.SignRequestDTO, error) {
	if id != "req-1" {
		return nil, signing.ErrRequestNotFound
	}
	return &signing.SignRequestDTO{ID: id, Status: f.status, DeepLink: "https://xumm.app/sign/req-1"}, nil
}

func (f *fakeRequests) Cancel(_ context.Context, id string) (*signing.SignRequestDTO, error) {
	d, err := f.Get(id)
	if err != nil {
		return nil, err
	}
	f.cancelled = true
	d.Status = signing.StatusCancelled
	return d, nil
}

func (f *fakeRequests) QRCode(id string, size int) ([]byte, error) {
	if _, err := f.Get(id); err != nil {
		return nil, err
	}
	f.gotSize = size
	return append(append([]byte{}, pngMagic...), 0, 0, 0), nil
}

func serveRequests(svc *fakeRequests, method, path string) *httptest.ResponseRecorder {
	e := newEchoWithValidator()
	Register(e, NewHandler(true, "TESTNET"), NewLoanHandler(&fakeLoans{}, &fakeStarter{}, nil), NewSessionHandler(&fakeSessions{}, nil), NewSignRequestHandler(svc, nil))
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSignRequest_Get(t *testing.T) {
	rec := serveRequests(&fakeRequests{status: signing.StatusConfirmed}, stdhttp.MethodGet, "/sign-requests/req-1")
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var dto signing.SignRequestDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil || dto.Status != signing.StatusConfirmed {
		t.Fatalf("dto = %+v err=%v", dto, err)
	}

	rec = serveRequests(&fakeRequests{}, stdhttp.MethodGet, "/sign-requests/nope")
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("unknown request = %d, want 404", rec.Code)
	}
}

func TestSignRequest_QRCode(t *testing.T) {
	svc := &fakeRequests{}
	rec := serveRequests(svc, stdhttp.MethodGet, "/sign-requests/req-1/qr.png")
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), pngMagic) || svc.gotSize != defaultQRSize {
		t.Fatalf("png = %x size = %d", rec.Body.Bytes(), svc.gotSize)
	}

	rec = serveRequests(svc, stdhttp.MethodGet, "/sign-requests/req-1/qr.png?size=512")
	if rec.Code != stdhttp.StatusOK || svc.gotSize != 512 {
		t.Fatalf("sized = %d / %d", rec.Code, svc.gotSize)
	}

	for _, bad := range []string{"abc", "8", "4096"} {
		rec = serveRequests(svc, stdhttp.MethodGet, "/sign-requests/req-1/qr.png?size="+bad)
		if rec.Code != stdhttp.StatusBadRequest {
			t.Fatalf("size=%s => %d, want 400", bad, rec.Code)
		}
	}
}

func TestSignRequest_Cancel(t *testing.T) {
	svc := &fakeRequests{status: signing.StatusPending}
	rec := serveRequests(svc, stdhttp.MethodDelete, "/sign-requests/req-1")
	if rec.Code != stdhttp.StatusOK || !svc.cancelled {
		t.Fatalf("status = %d cancelled=%v", rec.Code, svc.cancelled)
	}
	var dto signing.SignRequestDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil || dto.Status != signing.StatusCancelled {
		t.Fatalf("dto = %+v err=%v", dto, err)
	}
}
