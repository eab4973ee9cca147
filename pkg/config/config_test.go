package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	cfg := Load()
	if cfg.HTTP.Port != "8080" {
		t.Fatalf("port = %q, want 8080", cfg.HTTP.Port)
	}
	if cfg.Crawler.ScanInterval != time.Minute {
		t.Fatalf("scan interval = %v", cfg.Crawler.ScanInterval)
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asap.yaml")
	body := `
http:
  port: "9000"
db:
  path: /var/lib/asap/asap.db
api_keys:
  - key: s3cret
    role: admin
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv(portEnv, "9001") // env wins over file

	cfg := Load()
	if cfg.HTTP.Port != "9001" {
		t.Fatalf("port = %q, want env override 9001", cfg.HTTP.Port)
	}
	if cfg.DB.Path != "/var/lib/asap/asap.db" {
		t.Fatalf("db path = %q", cfg.DB.Path)
	}
	if len(cfg.Keys) != 1 || cfg.Keys[0].Role != "admin" {
		t.Fatalf("keys = %+v", cfg.Keys)
	}
}

func TestEnvKeysAppended(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(adminKeyEnv, "adm")
	t.Setenv(editorKeyEnv, "edt")

	cfg := Load()
	roles := map[string]string{}
	for _, k := range cfg.Keys {
		roles[k.Key] = k.Role
	}
	if roles["adm"] != "admin" || roles["edt"] != "editor" {
		t.Fatalf("keys = %+v", cfg.Keys)
	}
}
