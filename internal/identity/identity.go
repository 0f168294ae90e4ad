// Package identity synthesizes the anonymous browser session presented to the
// upstream image generator on every request.
package identity

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// IP-bearing headers; all of them carry the same spoofed address.
var IPHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Client-IP",
}

const hexDigits = "0123456789abcdef"

// Identity is one synthetic client. It is created once per request and never
// modified afterwards.
type Identity struct {
	Fingerprint string      `json:"fingerprint"`
	AnonUserID  string      `json:"anonUserId"`
	SpoofedIP   string      `json:"spoofedIp"`
	Headers     http.Header `json:"headers"`
}

// Profile holds the static parts of the presented browser.
type Profile struct {
	Origin         string
	UserAgent      string
	AcceptLanguage string
}

// Synthesizer produces identities for a fixed browser profile.
type Synthesizer struct {
	profile Profile
	intN    func(n int) int
	newID   func() string
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithRand replaces the random source, mainly for tests.
func WithRand(r *rand.Rand) Option {
	return func(s *Synthesizer) {
		s.intN = r.IntN
	}
}

// WithIDFunc replaces the anonymous user id generator.
func WithIDFunc(fn func() string) Option {
	return func(s *Synthesizer) {
		s.newID = fn
	}
}

// NewSynthesizer creates a Synthesizer for the given profile.
func NewSynthesizer(profile Profile, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		profile: profile,
		intN:    rand.IntN,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize returns a fresh identity. It performs no I/O and cannot fail.
func (s *Synthesizer) Synthesize() Identity {
	id := Identity{
		Fingerprint: s.fingerprint(),
		AnonUserID:  s.newID(),
		SpoofedIP:   s.spoofedIP(),
	}
	id.Headers = s.headers(id.SpoofedIP, id.AnonUserID)
	return id
}

func (s *Synthesizer) fingerprint() string {
	var b strings.Builder
	b.Grow(32)
	for i := 0; i < 32; i++ {
		b.WriteByte(hexDigits[s.intN(len(hexDigits))])
	}
	return b.String()
}

// spoofedIP draws each octet from [0,255); 255 itself never appears.
func (s *Synthesizer) spoofedIP() string {
	return fmt.Sprintf("%d.%d.%d.%d", s.intN(255), s.intN(255), s.intN(255), s.intN(255))
}

func (s *Synthesizer) headers(ip, anonUserID string) http.Header {
	h := make(http.Header)
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", s.profile.AcceptLanguage)
	h.Set("Content-Type", "application/json")
	h.Set("Origin", s.profile.Origin)
	h.Set("Referer", s.profile.Origin+"/")
	h.Set("User-Agent", s.profile.UserAgent)
	for _, name := range IPHeaders {
		h.Set(name, ip)
	}
	h.Set("Cookie", fmt.Sprintf("anon_user_id=%s;", anonUserID))
	return h
}

// WithoutContentType returns a copy of the headers minus Content-Type, so the
// transport can derive a multipart boundary.
func (id Identity) WithoutContentType() http.Header {
	h := id.Headers.Clone()
	h.Del("Content-Type")
	return h
}
