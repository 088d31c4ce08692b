package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := DefaultPath(); got != "/tmp/xdg/pubsync/config.yml" {
		t.Errorf("DefaultPath() = %q", got)
	}
}

func TestDataPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/data")
	if got := DataPath(); got != "/tmp/data/pubsync" {
		t.Errorf("DataPath() = %q", got)
	}
}

func TestLoad_DefaultsWhenFileAbsent(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", "/srv/data")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.Store.Path != "/srv/data/pubsync/pubsync.db" {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
	if cfg.Auth.AuthEnabled() {
		t.Error("auth should be disabled by default")
	}
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Load() should fail for a missing explicit path")
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 9000
store:
  path: /var/lib/pubsync/db.sqlite
provider:
  base_url: https://provider.example/v2
  per_page: 50
  timeout: 5s
cache:
  ttl: 1m
log:
  level: debug
`)
	t.Setenv("PUBSYNC_HTTP_PORT", "9100")
	t.Setenv("PUBSYNC_PROVIDER_API_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.HTTP.Port)
	}
	if cfg.Provider.APIKey != "from-env" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
	if cfg.Provider.PerPage != 50 || cfg.Provider.Timeout != 5*time.Second {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Provider.RateLimit != 5 {
		t.Errorf("rate limit = %v, want default 5 kept", cfg.Provider.RateLimit)
	}
	if cfg.Cache.TTL != time.Minute || cfg.Cache.Size != 1024 {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Store.Path != "/var/lib/pubsync/db.sqlite" || cfg.Log.Level != "debug" {
		t.Errorf("store/log = %q/%q", cfg.Store.Path, cfg.Log.Level)
	}
}

func TestLoad_IgnoresUnprefixedEnv(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 9000
store:
  path: /var/lib/pubsync/db.sqlite
attachments:
  dir: /var/lib/pubsync/files
`)
	t.Setenv("PATH", "/usr/local/bin:/usr/bin:/bin")
	t.Setenv("PORT", "1234")
	t.Setenv("DIR", "/tmp/elsewhere")
	t.Setenv("MODE", "token")
	t.Setenv("LEVEL", "trace")
	t.Setenv("SIZE", "3")
	t.Setenv("TTL", "2s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Path != "/var/lib/pubsync/db.sqlite" {
		t.Errorf("store path = %q, want value from file", cfg.Store.Path)
	}
	if cfg.HTTP.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.HTTP.Port)
	}
	if cfg.Attachments.Dir != "/var/lib/pubsync/files" {
		t.Errorf("attachments dir = %q", cfg.Attachments.Dir)
	}
	if cfg.Auth.AuthEnabled() {
		t.Error("auth mode should not come from an unprefixed MODE variable")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want default info", cfg.Log.Level)
	}
	if cfg.Cache.Size != 1024 || cfg.Cache.TTL == 2*time.Second {
		t.Errorf("cache = %+v, want defaults", cfg.Cache)
	}
}

func TestLoad_PrefixedEnvSplitWords(t *testing.T) {
	path := writeConfig(t, "store:\n  path: /from/file.db\n")
	t.Setenv("PUBSYNC_STORE_PATH", "/from/env.db")
	t.Setenv("PUBSYNC_ATTACHMENTS_MAX_BYTES", "2048")
	t.Setenv("PUBSYNC_PROVIDER_RATE_LIMIT", "2.5")
	t.Setenv("PUBSYNC_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Path != "/from/env.db" {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
	if cfg.Attachments.MaxBytes != 2048 {
		t.Errorf("max bytes = %d", cfg.Attachments.MaxBytes)
	}
	if cfg.Provider.RateLimit != 2.5 {
		t.Errorf("rate limit = %v", cfg.Provider.RateLimit)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad port", "http:\n  port: 70000\n", "http"},
		{"bad url", "provider:\n  base_url: not a url\n", "provider"},
		{"bad log level", "log:\n  level: loud\n", "log"},
		{"bad auth mode", "auth:\n  mode: magic\n", "auth"},
		{"token mode without tokens", "auth:\n  mode: token\n", "no tokens"},
		{"plaintext token", "auth:\n  mode: token\n  tokens:\n    - owner_id: alice\n      token_hash: secret\n", "bcrypt"},
		{"malformed yaml", "http: [", "parsing config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_TokenMode(t *testing.T) {
	path := writeConfig(t, `
auth:
  mode: token
  tokens:
    - owner_id: alice
      token_hash: $2a$10$abcdefghijklmnopqrstuv
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.AuthEnabled() || len(cfg.Auth.Tokens) != 1 || cfg.Auth.Tokens[0].OwnerID != "alice" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		in, want string
	}{
		{"~/data", filepath.Join(home, "data")},
		{"~", home},
		{"/abs/path", "/abs/path"},
		{"rel/~path", "rel/~path"},
	}
	for _, tt := range tests {
		if got := ExpandTilde(tt.in); got != tt.want {
			t.Errorf("ExpandTilde(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
