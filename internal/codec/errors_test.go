package codec

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iemabdullah/ai-generator-2api/internal/domain"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"unauthorized", domain.ErrUnauthorized("Unauthorized"), http.StatusUnauthorized, "unauthorized", "Unauthorized"},
		{"logical", domain.ErrUpstreamLogical("quota exceeded"), http.StatusInternalServerError, "generation_failed", "quota exceeded"},
		{"invalid input", domain.ErrInvalidInput("messages must not be empty"), http.StatusInternalServerError, "generation_failed", "messages must not be empty"},
		{"not found", domain.ErrNotFound("Endpoint not found: /nope"), http.StatusNotFound, "not_found", "Endpoint not found: /nope"},
		{"method", domain.ErrMethodNotAllowed("Method not allowed"), http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error", "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var body ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body.Error.Type != "api_error" || body.Error.Code != tt.wantCode || body.Error.Message != tt.wantMsg {
				t.Errorf("body = %+v", body.Error)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]string{"object": "list"})
	if rec.Code != http.StatusOK || rec.Body.String() != `{"object":"list"}` {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}
