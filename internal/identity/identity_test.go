package identity

import (
	"math/rand/v2"
	"net"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
)

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

func testProfile() Profile {
	return Profile{
		Origin:         "https://ai-image-generator.co",
		UserAgent:      "Mozilla/5.0 test",
		AcceptLanguage: "en",
	}
}

func TestSynthesize_Invariants(t *testing.T) {
	s := NewSynthesizer(testProfile())

	for i := 0; i < 500; i++ {
		id := s.Synthesize()

		if !fingerprintPattern.MatchString(id.Fingerprint) {
			t.Fatalf("fingerprint %q does not match %s", id.Fingerprint, fingerprintPattern)
		}
		if _, err := uuid.Parse(id.AnonUserID); err != nil {
			t.Fatalf("anon user id %q is not a uuid: %v", id.AnonUserID, err)
		}
		if net.ParseIP(id.SpoofedIP) == nil {
			t.Fatalf("spoofed ip %q is not an address", id.SpoofedIP)
		}
		for _, octet := range strings.Split(id.SpoofedIP, ".") {
			n, err := strconv.Atoi(octet)
			if err != nil || n < 0 || n >= 255 {
				t.Fatalf("octet %q outside [0,255)", octet)
			}
		}
		for _, name := range IPHeaders {
			if got := id.Headers.Get(name); got != id.SpoofedIP {
				t.Fatalf("%s = %q, want %q", name, got, id.SpoofedIP)
			}
		}
	}
}

func TestSynthesize_Headers(t *testing.T) {
	s := NewSynthesizer(testProfile(), WithIDFunc(func() string { return "anon-123" }))
	id := s.Synthesize()

	checks := map[string]string{
		"Cookie":          "anon_user_id=anon-123;",
		"Origin":          "https://ai-image-generator.co",
		"Referer":         "https://ai-image-generator.co/",
		"User-Agent":      "Mozilla/5.0 test",
		"Accept-Language": "en",
		"Accept":          "*/*",
		"Content-Type":    "application/json",
	}
	for name, want := range checks {
		if got := id.Headers.Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}

	for name, values := range id.Headers {
		for _, v := range values {
			for _, r := range v {
				if r < 0x20 || r == 0x7f {
					t.Errorf("header %s carries control character %q", name, r)
				}
			}
		}
	}
}

func TestSynthesize_Deterministic(t *testing.T) {
	newSynth := func() *Synthesizer {
		return NewSynthesizer(testProfile(),
			WithRand(rand.New(rand.NewPCG(1, 2))),
			WithIDFunc(func() string { return "fixed" }),
		)
	}

	a := newSynth().Synthesize()
	b := newSynth().Synthesize()
	if a.Fingerprint != b.Fingerprint || a.SpoofedIP != b.SpoofedIP {
		t.Errorf("same seed produced different identities: %+v vs %+v", a, b)
	}
}

func TestSynthesize_Unique(t *testing.T) {
	s := NewSynthesizer(testProfile())
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		fp := s.Synthesize().Fingerprint
		if seen[fp] {
			t.Fatalf("fingerprint %q repeated", fp)
		}
		seen[fp] = true
	}
}

func TestWithoutContentType(t *testing.T) {
	id := NewSynthesizer(testProfile()).Synthesize()
	h := id.WithoutContentType()

	if h.Get("Content-Type") != "" {
		t.Error("Content-Type should be removed")
	}
	if id.Headers.Get("Content-Type") == "" {
		t.Error("original headers must not be modified")
	}
	if h.Get("X-Forwarded-For") != id.SpoofedIP {
		t.Error("other headers should be preserved")
	}
}
