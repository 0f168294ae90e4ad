// Package auth validates the static master key carried as a bearer token.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// OpenKey is the sentinel master key that disables authentication.
const OpenKey = "1"

var (
	ErrMissingCredentials = errors.New("missing Authorization header")
	ErrInvalidFormat      = errors.New("invalid Authorization header format")
	ErrInvalidKey         = errors.New("invalid API key")
)

// Authenticator checks bearer keys against one master key.
type Authenticator struct {
	keyHash [sha256.Size]byte
	open    bool
}

// NewAuthenticator creates an authenticator for masterKey. The key "1"
// selects open-auth mode where every request is allowed.
func NewAuthenticator(masterKey string) *Authenticator {
	return &Authenticator{
		keyHash: sha256.Sum256([]byte(masterKey)),
		open:    masterKey == OpenKey,
	}
}

// Open reports whether authentication is disabled.
func (a *Authenticator) Open() bool {
	return a.open
}

// ValidateAPIKey compares apiKey with the master key in constant time.
func (a *Authenticator) ValidateAPIKey(apiKey string) error {
	hash := sha256.Sum256([]byte(apiKey))
	if subtle.ConstantTimeCompare(hash[:], a.keyHash[:]) != 1 {
		return ErrInvalidKey
	}
	return nil
}

// Authorize validates the request's bearer credential. It always succeeds in
// open-auth mode.
func (a *Authenticator) Authorize(r *http.Request) error {
	if a.open {
		return nil
	}
	key, err := ExtractAPIKey(r)
	if err != nil {
		return err
	}
	return a.ValidateAPIKey(key)
}

// ExtractAPIKey extracts the API key from the Authorization header
func ExtractAPIKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingCredentials
	}

	// Support "Bearer <key>" format
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrInvalidFormat
	}

	return parts[1], nil
}
