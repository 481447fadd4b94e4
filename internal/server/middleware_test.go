package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	applog "larder/internal/log"
)

func TestRequestIDMiddlewareGeneratesID(t *testing.T) {
	var captured string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = applog.RequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if _, err := uuid.Parse(captured); err != nil {
		t.Fatalf("expected generated uuid request id, got %q", captured)
	}
	if got := rec.Header().Get(requestIDHeader); got != captured {
		t.Fatalf("expected response header %q, got %q", captured, got)
	}
}

func TestRequestIDMiddlewareKeepsValidID(t *testing.T) {
	provided := uuid.NewString()
	var captured string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = applog.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, provided)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured != provided {
		t.Fatalf("expected request id %q, got %q", provided, captured)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if captured == "not-a-uuid" {
		t.Fatal("expected malformed request id to be replaced")
	}
}

func TestPanicRecoveryMiddleware(t *testing.T) {
	handler := panicRecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"internal"`) {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestResponseWriterRecordsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	if _, err := rw.Write([]byte("ok")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if rw.Status() != http.StatusCreated || rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d/%d", rw.Status(), rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := withCORS([]string{"https://app.example.com"}, http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodOptions, "/products/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
}
