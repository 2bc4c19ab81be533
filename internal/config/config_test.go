package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, baseDir, body string) {
	t.Helper()
	dir := filepath.Join(baseDir, AppDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(strings.TrimSpace(body)), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewConfigDefaultsWhenMissing(t *testing.T) {
	baseDir := t.TempDir()
	cfg, err := NewConfig(baseDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	s := cfg.Settings
	if s.Backend.BaseURL != DefaultBaseURL {
		t.Fatalf("expected default base url, got %q", s.Backend.BaseURL)
	}
	if s.Backend.UploadPath != "/api/upload-file" || s.Backend.AnalyzePath != "/api/analyze" {
		t.Fatalf("unexpected default paths: %+v", s.Backend)
	}
	if s.Backend.TimeoutDuration() != DefaultTimeout {
		t.Fatalf("expected default timeout, got %s", s.Backend.TimeoutDuration())
	}
	if s.Credentials.Source != SourceStatic {
		t.Fatalf("expected static credentials by default, got %q", s.Credentials.Source)
	}
	if s.Images.MaxBytes != DefaultMaxImageBytes {
		t.Fatalf("expected default max image bytes, got %d", s.Images.MaxBytes)
	}
	if cfg.JournalPath() != filepath.Join(baseDir, AppDir, "logs", "journey.log") {
		t.Fatalf("unexpected journal path %s", cfg.JournalPath())
	}
}

func TestNewConfigParsesYaml(t *testing.T) {
	baseDir := t.TempDir()
	writeConfig(t, baseDir, `
version: 1
backend:
  base_url: https://api.example.com/
  upload_path: upload
  timeout: 5s
credentials:
  source: file
  token_file: secrets/token
images:
  max_bytes: 2048
logging:
  level: DEBUG
`)
	cfg, err := NewConfig(baseDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	s := cfg.Settings
	if s.Backend.BaseURL != "https://api.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", s.Backend.BaseURL)
	}
	if s.Backend.UploadPath != "/upload" {
		t.Fatalf("expected leading slash added, got %q", s.Backend.UploadPath)
	}
	if s.Backend.AnalyzePath != DefaultAnalyzePath {
		t.Fatalf("expected default analyze path, got %q", s.Backend.AnalyzePath)
	}
	if s.Backend.TimeoutDuration() != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %s", s.Backend.TimeoutDuration())
	}
	if want := filepath.Join(baseDir, "secrets", "token"); s.Credentials.TokenFile != want {
		t.Fatalf("expected token file %s, got %s", want, s.Credentials.TokenFile)
	}
	if s.Images.MaxBytes != 2048 {
		t.Fatalf("expected max bytes 2048, got %d", s.Images.MaxBytes)
	}
	if s.Logging.Level != "debug" {
		t.Fatalf("expected level normalized to debug, got %q", s.Logging.Level)
	}
}

func TestNewConfigEnvOverrides(t *testing.T) {
	baseDir := t.TempDir()
	writeConfig(t, baseDir, `
backend:
  base_url: https://file.example.com
credentials:
  source: oauth2
  oauth2:
    client_id: abc
    token_url: https://auth.example.com/oauth/token
`)
	t.Setenv(EnvPrefix+"BASE_URL", "https://env.example.com")
	t.Setenv(EnvPrefix+"TOKEN", "env-token")
	t.Setenv(EnvPrefix+"MAX_IMAGE_BYTES", "4096")

	cfg, err := NewConfig(baseDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	s := cfg.Settings
	if s.Backend.BaseURL != "https://env.example.com" {
		t.Fatalf("env base url not applied: %q", s.Backend.BaseURL)
	}
	if s.Credentials.Source != SourceStatic || s.Credentials.Token != "env-token" {
		t.Fatalf("expected env token to select static source, got %+v", s.Credentials)
	}
	if s.Images.MaxBytes != 4096 {
		t.Fatalf("env max bytes not applied: %d", s.Images.MaxBytes)
	}
}

func TestNewConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "bad url", yaml: "backend:\n  base_url: ftp://example.com", want: "base_url"},
		{name: "bad timeout", yaml: "backend:\n  timeout: soon", want: "backend.timeout"},
		{name: "unknown source", yaml: "credentials:\n  source: magic", want: "credentials.source"},
		{name: "file without path", yaml: "credentials:\n  source: file", want: "token_file"},
		{name: "oauth2 without client", yaml: "credentials:\n  source: oauth2", want: "client_id"},
		{name: "bad level", yaml: "logging:\n  level: loud", want: "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseDir := t.TempDir()
			writeConfig(t, baseDir, tt.yaml)
			_, err := NewConfig(baseDir)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestNewConfigRejectsMalformedYaml(t *testing.T) {
	baseDir := t.TempDir()
	writeConfig(t, baseDir, "backend: [unclosed")
	if _, err := NewConfig(baseDir); err == nil || !strings.Contains(err.Error(), "config: parse") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestInitAppDirWritesDefaultConfig(t *testing.T) {
	baseDir := t.TempDir()
	if err := InitAppDir(baseDir); err != nil {
		t.Fatalf("InitAppDir returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(baseDir, AppDir, "logs")); err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}
	cfg, err := NewConfig(baseDir)
	if err != nil {
		t.Fatalf("default template must load cleanly: %v", err)
	}
	if cfg.Settings.Backend.BaseURL != DefaultBaseURL {
		t.Fatalf("unexpected base url from template: %q", cfg.Settings.Backend.BaseURL)
	}

	custom := []byte("version: 1\nlogging:\n  level: warn\n")
	if err := os.WriteFile(cfg.ConfigPath(), custom, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := InitAppDir(baseDir); err != nil {
		t.Fatalf("second InitAppDir returned error: %v", err)
	}
	data, err := os.ReadFile(cfg.ConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(custom) {
		t.Fatalf("InitAppDir overwrote an existing config")
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte(EnvPrefix+"LOG_LEVEL=debug\n"+EnvPrefix+"AUDIENCE=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPrefix+"LOG_LEVEL", "warn")
	t.Setenv(EnvPrefix+"AUDIENCE", "")
	os.Unsetenv(EnvPrefix + "AUDIENCE")

	LoadDotEnv(envFile, filepath.Join(dir, "missing.env"))
	if got := os.Getenv(EnvPrefix + "LOG_LEVEL"); got != "warn" {
		t.Fatalf("existing env var overwritten: %q", got)
	}
	if got := os.Getenv(EnvPrefix + "AUDIENCE"); got != "from-file" {
		t.Fatalf("expected value from .env, got %q", got)
	}
}
