package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server: irc.example.org
nick: kestrel
channels:
  - "#bots"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 6667 {
		t.Errorf("Expected default port 6667, got %d", cfg.Port)
	}
	if cfg.CommandPrefix != "." {
		t.Errorf("Expected default prefix \".\", got %q", cfg.CommandPrefix)
	}
	if cfg.Username != "kestrel" {
		t.Errorf("Expected username to default to nick, got %q", cfg.Username)
	}
	if cfg.QueueSize != 32 {
		t.Errorf("Expected default queue size 32, got %d", cfg.QueueSize)
	}
	if cfg.SendInterval != time.Second {
		t.Errorf("Expected default send interval 1s, got %v", cfg.SendInterval)
	}
}

func TestLoadTLSDefaultPort(t *testing.T) {
	path := writeConfig(t, `
server: irc.example.org
tls: true
nick: kestrel
channels:
  - "#bots"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 6697 {
		t.Errorf("Expected default TLS port 6697, got %d", cfg.Port)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no server", "nick: kestrel\nchannels: [\"#bots\"]\n"},
		{"no nick", "server: irc.example.org\nchannels: [\"#bots\"]\n"},
		{"no channels", "server: irc.example.org\nnick: kestrel\n"},
		{"bad channel", "server: irc.example.org\nnick: kestrel\nchannels: [\"bots\"]\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("Expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestPluginSettings(t *testing.T) {
	path := writeConfig(t, `
server: irc.example.org
nick: kestrel
channels:
  - "#bots"
plugins:
  video:
    api_key: secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := cfg.Plugin("video")["api_key"]; got != "secret" {
		t.Errorf("Expected api_key secret, got %q", got)
	}
	if m := cfg.Plugin("nonexistent"); m == nil || len(m) != 0 {
		t.Errorf("Expected empty map for unknown plugin, got %v", m)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyEnv([]string{
		"KESTREL_PLUGIN_VIDEO_API_KEY=fromenv",
		"KESTREL_PLUGIN_TZ_DEFAULT_ZONE=UTC",
		"PATH=/usr/bin",
		"KESTREL_PLUGIN_=junk",
	})

	if got := cfg.Plugin("video")["api_key"]; got != "fromenv" {
		t.Errorf("Expected api_key fromenv, got %q", got)
	}
	if got := cfg.Plugin("tz")["default_zone"]; got != "UTC" {
		t.Errorf("Expected default_zone UTC, got %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for missing file, got %v", err)
	}
}
