package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
)

const (
	testReqID     = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testSessionID = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func setupEcho(rdb goredis.Cmdable, ttl time.Duration, handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(Idempotency(rdb, ttl, nil))
	e.POST("/loans", handler)
	e.GET("/loans", handler)
	return e
}

func mkJSONBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func doReq(t *testing.T, e *echo.Echo, method, path string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return mr, rdb
}

func validHeaders() map[string]string {
	return map[string]string{
		HeaderRequestID: testReqID,
		HeaderRequestAt: time.Now().UTC().Format(time.RFC3339),
		HeaderSessionID: testSessionID,
	}
}

// countingHandler answers 201 and counts how often it actually ran.
func countingHandler(n *int32) echo.HandlerFunc {
	return func(c echo.Context) error {
		v := atomic.AddInt32(n, 1)
		return c.JSON(http.StatusCreated, map[string]any{"ok": true, "run": v})
	}
}

func Test_BypassOnGET_NoHeadersRequired(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	e := setupEcho(rdb, 30*time.Second, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "get ok"})
	})
	rec := doReq(t, e, http.MethodGet, "/loans", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func Test_PassThroughWithoutRequestID(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	var runs int32
	e := setupEcho(rdb, time.Minute, countingHandler(&runs))

	for i := 0; i < 2; i++ {
		rec := doReq(t, e, http.MethodPost, "/loans", mkJSONBody(t, map[string]int{"x": 1}), nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("want 201, got %d", rec.Code)
		}
	}
	if runs != 2 {
		t.Fatalf("handler runs = %d, want 2", runs)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("no entries expected, got %v", keys)
	}
}

func Test_ValidationFailures(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	var runs int32
	e := setupEcho(rdb, 30*time.Second, countingHandler(&runs))

	cases := []struct {
		name  string
		patch map[string]string
		drop  string
	}{
		{name: "invalid request id", patch: map[string]string{HeaderRequestID: "NOT-VALID"}},
		{name: "uppercase request id", patch: map[string]string{HeaderRequestID: strings.Repeat("A", 32)}},
		{name: "missing request at", drop: HeaderRequestAt},
		{name: "invalid request at", patch: map[string]string{HeaderRequestAt: "not-a-time"}},
		{name: "request at skewed", patch: map[string]string{
			HeaderRequestAt: time.Now().UTC().Add(-maxClockSkew - time.Minute).Format(time.RFC3339),
		}},
		{name: "invalid session id", patch: map[string]string{HeaderSessionID: "not32hex"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := validHeaders()
			for k, v := range tc.patch {
				h[k] = v
			}
			delete(h, tc.drop)
			rec := doReq(t, e, http.MethodPost, "/loans", mkJSONBody(t, map[string]int{"x": 1}), h)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("want 400, got %d body=%s", rec.Code, rec.Body.String())
			}
		})
	}
	if runs != 0 {
		t.Fatalf("handler must not run on rejected requests, ran %d", runs)
	}
}

func Test_HappyPath_Then_Replay(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	var runs int32
	e := setupEcho(rdb, 2*time.Minute, countingHandler(&runs))

	h := validHeaders()
	rec1 := doReq(t, e, http.MethodPost, "/loans", mkJSONBody(t, map[string]any{"creditAmount": "100"}), h)
	if rec1.Code != http.StatusCreated {
		t.Fatalf("first request => want 201, got %d, body: %s", rec1.Code, rec1.Body.String())
	}

	rec2 := doReq(t, e, http.MethodPost, "/loans", mkJSONBody(t, map[string]any{"creditAmount": "100"}), h)
	if rec2.Code != http.StatusCreated {
		t.Fatalf("replay => want 201, got %d, body: %s", rec2.Code, rec2.Body.String())
	}
	if rec1.Body.String() != rec2.Body.String() {
		t.Fatalf("replay body mismatch: %q vs %q", rec1.Body.String(), rec2.Body.String())
	}
	if rec2.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("replay header missing")
	}
	if runs != 1 {
		t.Fatalf("handler runs = %d, want 1", runs)
	}
}

func Test_ScopedBySession(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	var runs int32
	e := setupEcho(rdb, 2*time.Minute, countingHandler(&runs))

	h := validHeaders()
	doReq(t, e, http.MethodPost, "/loans", mkJSONBody(t, map[string]int{"x": 1}), h)

	other := validHeaders()
	other[HeaderSessionID] = strings.Repeat("c", 32)
	doReq(t, e, http.MethodPost, "/loans", mkJSONBody(t, map[string]int{"x": 1}), other)

	anon := validHeaders()
	delete(anon, HeaderSessionID)
	doReq(t, e, http.MethodPost, "/loans", mkJSONBody(t, map[string]int{"x": 1}), anon)

	if runs != 3 {
		t.Fatalf("same request id in three scopes should run three times, ran %d", runs)
	}
	if !mr.Exists(buildKey(http.MethodPost, "/loans", anonymousScope, testReqID)) {
		t.Fatalf("anonymous scope key missing: %v", mr.Keys())
	}
}

func Test_ServerErrorIsNotCached(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	var runs int32
	e := setupEcho(rdb, 2*time.Minute, func(c echo.Context) error {
		if atomic.AddInt32(&runs, 1) == 1 {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "boom"})
		}
		return c.JSON(http.StatusCreated, map[string]bool{"ok": true})
	})

	h := validHeaders()
	if rec := doReq(t, e, http.MethodPost, "/loans", mkJSONBody(t, map[string]int{"x": 1}), h); rec.Code != http.StatusInternalServerError {
		t.Fatalf("first => want 500, got %d", rec.Code)
	}
	if rec := doReq(t, e, http.MethodPost, "/loans", mkJSONBody(t, map[string]int{"x": 1}), h); rec.Code != http.StatusCreated {
		t.Fatalf("retry => want 201, got %d", rec.Code)
	}
}

func Test_Conflict_When_InProgress(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	e := setupEcho(rdb, 2*time.Minute, countingHandler(new(int32)))

	body := []byte(`{"x":1}`)
	key := buildKey(http.MethodPost, "/loans", testSessionID, testReqID)
	entry := idempEntry{
		InProgress:  true,
		BodySHA256:  bodyHash(body),
		RequestID:   testReqID,
		RequestAtMS: time.Now().UnixMilli(),
		CreatedAt:   time.Now().UTC(),
	}
	if ok, err := provisionalSet(context.Background(), rdb, key, entry); err != nil || !ok {
		t.Fatalf("seed provisional failed, ok=%v err=%v", ok, err)
	}

	rec := doReq(t, e, http.MethodPost, "/loans", bytes.NewReader(body), validHeaders())
	if rec.Code != http.StatusConflict {
		t.Fatalf("in-progress => want 409, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func Test_Conflict_When_SameReqID_DifferentBody(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	e := setupEcho(rdb, 2*time.Minute, countingHandler(new(int32)))

	key := buildKey(http.MethodPost, "/loans", testSessionID, testReqID)
	final := idempEntry{
		Code:        http.StatusCreated,
		Body:        []byte(`{"ok":true}`),
		BodySHA256:  bodyHash([]byte(`{"x":1}`)),
		RequestID:   testReqID,
		RequestAtMS: time.Now().UnixMilli(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := saveFinal(context.Background(), rdb, key, final, 5*time.Minute); err != nil {
		t.Fatalf("seed final failed: %v", err)
	}

	rec := doReq(t, e, http.MethodPost, "/loans", bytes.NewReader([]byte(`{"x":2}`)), validHeaders())
	if rec.Code != http.StatusConflict {
		t.Fatalf("different body same reqID => want 409, got %d", rec.Code)
	}
}

func Test_StoreUnavailable_Returns503(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	e := setupEcho(rdb, time.Minute, countingHandler(new(int32)))

	rec := doReq(t, e, http.MethodPost, "/loans", bytes.NewReader([]byte(`{}`)), validHeaders())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("store unavailable => want 503, got %d", rec.Code)
	}
}
