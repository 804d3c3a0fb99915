package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/pomelogate/internal/config"
)

func TestDefaultPath(t *testing.T) {
	for kind, want := range map[string]string{
		"server":    "cmd/pomelod/config.toml",
		"pomelod":   "cmd/pomelod/config.toml",
		"bot":       "cmd/pomelobot/config.toml",
		"pomelobot": "cmd/pomelobot/config.toml",
	} {
		got, err := defaultPath(kind)
		if err != nil || got != want {
			t.Fatalf("defaultPath(%q)=%q,%v want %q", kind, got, err, want)
		}
	}
	if _, err := defaultPath("edge"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestValidateFileTemplates(t *testing.T) {
	dir := t.TempDir()
	for _, kind := range []string{"server", "bot"} {
		path := filepath.Join(dir, kind+".toml")
		if err := config.WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s template: %v", kind, err)
		}
		if err := validateFile(kind, path); err != nil {
			t.Fatalf("validate %s template: %v", kind, err)
		}
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("nope = 1\n"), 0o600); err != nil {
		t.Fatalf("write bad config: %v", err)
	}
	if err := validateFile("server", bad); err == nil {
		t.Fatalf("expected unknown key to fail validation")
	}
	if err := validateFile("edge", bad); err == nil {
		t.Fatalf("expected unknown kind to fail")
	}
}
