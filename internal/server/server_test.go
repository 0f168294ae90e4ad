package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iemabdullah/ai-generator-2api/internal/auth"
	"github.com/iemabdullah/ai-generator-2api/internal/codec"
)

func newTestServer(masterKey string) *Server {
	s := New(Options{
		Port:           0,
		RequestTimeout: time.Second,
		Authenticator:  auth.NewAuthenticator(masterKey),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	s.Handle(http.MethodPost, "/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("generated"))
	}, true)
	s.Handle(http.MethodGet, "/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("models"))
	}, false)
	return s
}

func do(s *Server, method, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func checkHeader(t *testing.T, rec *httptest.ResponseRecorder, name, want string) {
	t.Helper()
	if got := rec.Header().Get(name); got != want {
		t.Errorf("header %s = %q, want %q", name, got, want)
	}
}

func checkCORS(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	checkHeader(t, rec, "Access-Control-Allow-Origin", "*")
	checkHeader(t, rec, "Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	checkHeader(t, rec, "Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) codec.ErrorDetail {
	t.Helper()
	var body codec.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestPreflight(t *testing.T) {
	s := newTestServer("sk-secret")

	for _, path := range []string{"/v1/chat/completions", "/v1/models", "/anything/at/all", "/"} {
		t.Run(path, func(t *testing.T) {
			rec := do(s, http.MethodOptions, path, "")
			if rec.Code != http.StatusNoContent {
				t.Errorf("status = %d, want 204", rec.Code)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", rec.Body.String())
			}
			checkCORS(t, rec)
		})
	}
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name       string
		masterKey  string
		method     string
		path       string
		authz      string
		wantStatus int
	}{
		{"valid key", "sk-secret", http.MethodPost, "/v1/chat/completions", "Bearer sk-secret", http.StatusOK},
		{"missing key", "sk-secret", http.MethodPost, "/v1/chat/completions", "", http.StatusUnauthorized},
		{"wrong key", "sk-secret", http.MethodPost, "/v1/chat/completions", "Bearer nope", http.StatusUnauthorized},
		{"open auth", auth.OpenKey, http.MethodPost, "/v1/chat/completions", "", http.StatusOK},
		{"models unprotected", "sk-secret", http.MethodGet, "/v1/models", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestServer(tt.masterKey), tt.method, tt.path, tt.authz)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			checkCORS(t, rec)
			if tt.wantStatus == http.StatusUnauthorized {
				e := decodeError(t, rec)
				if e.Message != "Unauthorized" || e.Code != "unauthorized" || e.Type != "api_error" {
					t.Errorf("error = %+v", e)
				}
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	rec := do(newTestServer("sk-secret"), http.MethodGet, "/v2/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	checkCORS(t, rec)
	e := decodeError(t, rec)
	if e.Message != "Endpoint not found: /v2/unknown" || e.Code != "not_found" {
		t.Errorf("error = %+v", e)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(newTestServer("sk-secret"), http.MethodGet, "/v1/chat/completions", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != "method_not_allowed" {
		t.Errorf("error = %+v", e)
	}
}

func TestHealthz(t *testing.T) {
	rec := do(newTestServer("sk-secret"), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("generated id = %q, header = %q", seen, rec.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "client-123" {
		t.Errorf("id = %q, want caller-supplied id", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if len(seen) > maxRequestIDLen {
		t.Errorf("oversized id was accepted")
	}
}

func TestLoggingMiddleware_Fields(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestIDMiddleware(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "served_model", "flux-schnell")
		AddLogField(r.Context(), "ignored", "")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil))

	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line); err != nil {
		t.Fatalf("log line %q: %v", buf.String(), err)
	}
	if line["msg"] != "request completed" {
		t.Errorf("msg = %v", line["msg"])
	}
	if line["status"] != float64(http.StatusTeapot) || line["bytes"] != float64(len("short and stout")) {
		t.Errorf("status/bytes = %v/%v", line["status"], line["bytes"])
	}
	if line["served_model"] != "flux-schnell" {
		t.Errorf("served_model = %v", line["served_model"])
	}
	if _, ok := line["ignored"]; ok {
		t.Error("empty field should not be logged")
	}
	if line["request_id"] != rec.Header().Get(RequestIDHeader) {
		t.Errorf("request_id = %v", line["request_id"])
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	var deadline bool
	h := TimeoutMiddleware(time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, deadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !deadline {
		t.Error("expected a deadline")
	}

	h = TimeoutMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, deadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if deadline {
		t.Error("zero timeout should not set a deadline")
	}
}

func TestRecoverer(t *testing.T) {
	s := newTestServer("1")
	s.Handle(http.MethodGet, "/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}, false)

	rec := do(s, http.MethodGet, "/panic", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestShutdownWithoutServe(t *testing.T) {
	if err := newTestServer("1").Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
