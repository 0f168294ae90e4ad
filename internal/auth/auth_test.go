package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthenticator_Authorize(t *testing.T) {
	tests := []struct {
		name      string
		masterKey string
		header    string
		wantErr   error
	}{
		{"valid bearer", "sk-secret", "Bearer sk-secret", nil},
		{"lowercase scheme", "sk-secret", "bearer sk-secret", nil},
		{"wrong key", "sk-secret", "Bearer sk-other", ErrInvalidKey},
		{"key prefix only", "sk-secret", "Bearer sk-secre", ErrInvalidKey},
		{"missing header", "sk-secret", "", ErrMissingCredentials},
		{"no scheme", "sk-secret", "sk-secret", ErrInvalidFormat},
		{"basic scheme", "sk-secret", "Basic sk-secret", ErrInvalidFormat},
		{"open auth without header", OpenKey, "", nil},
		{"open auth with any key", OpenKey, "Bearer whatever", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAuthenticator(tt.masterKey)
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			err := a.Authorize(req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Authorize() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAuthenticator_Open(t *testing.T) {
	if !NewAuthenticator("1").Open() {
		t.Error("key 1 should enable open auth")
	}
	if NewAuthenticator("11").Open() {
		t.Error("key 11 should not enable open auth")
	}
}
