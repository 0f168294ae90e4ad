package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute(%v) error = %v", args, err)
	}
	return out.String()
}

func TestVersionCmd(t *testing.T) {
	if got := strings.TrimSpace(run(t, "version")); got != version {
		t.Errorf("version = %q, want %q", got, version)
	}
}

func TestIdentityCmd(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")
	out := run(t, "identity", "--config", missing, "-n", "2")

	dec := json.NewDecoder(strings.NewReader(out))
	hex32 := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		var id struct {
			Fingerprint string              `json:"fingerprint"`
			SpoofedIP   string              `json:"spoofedIp"`
			Headers     map[string][]string `json:"headers"`
		}
		if err := dec.Decode(&id); err != nil {
			t.Fatalf("decode identity %d: %v", i, err)
		}
		if !hex32.MatchString(id.Fingerprint) {
			t.Errorf("fingerprint = %q", id.Fingerprint)
		}
		if id.Headers["Origin"][0] != "https://ai-image-generator.co" {
			t.Errorf("Origin = %v", id.Headers["Origin"])
		}
		seen[id.Fingerprint] = true
	}
	if len(seen) != 2 {
		t.Error("identities should differ")
	}
}
