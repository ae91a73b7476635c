package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
init: true
account: 123456
verifykey: secret
platform:
  wshost: localhost:8080
web:
  listenaddr: ":9000"
database:
  path: /tmp/archive.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Account != 123456 {
		t.Errorf("account = %d, want 123456", cfg.Account)
	}
	if cfg.Platform.WSHost != "localhost:8080" {
		t.Errorf("wshost = %q", cfg.Platform.WSHost)
	}
	if cfg.Web.ListenAddr != ":9000" {
		t.Errorf("listenaddr = %q", cfg.Web.ListenAddr)
	}
	if cfg.Web.PageSize != 60 {
		t.Errorf("pagesize default = %d, want 60", cfg.Web.PageSize)
	}
	if cfg.Database.Path != "/tmp/archive.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
}

func TestLoadRejectsUninitialisedTemplate(t *testing.T) {
	path := writeConfig(t, `
init: false
account: 123456
verifykey: secret
platform:
  wshost: localhost:8080
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "not initialised") {
		t.Fatalf("expected template rejection, got %v", err)
	}
}

func TestLoadValidatesRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"missing account",
			"init: true\nverifykey: secret\nplatform:\n  wshost: h:1\n",
			"account",
		},
		{
			"missing verifykey",
			"init: true\naccount: 1\nplatform:\n  wshost: h:1\n",
			"verifykey",
		},
		{
			"missing wshost",
			"init: true\naccount: 1\nverifykey: secret\n",
			"wshost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q error, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
