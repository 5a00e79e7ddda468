package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseByteSize_K8sAndCommonUnits(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1024", 1024},
		{"1Ki", 1024},
		{"1KiB", 1024},
		{"2Mi", 2 * 1024 * 1024},
		{"2MiB", 2 * 1024 * 1024},
		{"3Gi", 3 * 1024 * 1024 * 1024},
		{"3GiB", 3 * 1024 * 1024 * 1024},
		{"10KB", 10 * 1000},
		{"10MB", 10 * 1000 * 1000},
		{"2GB", 2 * 1000 * 1000 * 1000},
		{"512B", 512},
	}
	for _, c := range cases {
		got, err := ParseByteSize(c.in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseByteSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	for _, bad := range []string{"bad", "", "-1Mi"} {
		if _, err := ParseByteSize(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestLoad_WithEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfgPath := filepath.Join(dir, "config.yaml")

	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("TEST_GEMINI_KEY", "secret123")

	yaml := `
server:
  address: ":0"
  readTimeout: 1s
  writeTimeout: 2s
  idleTimeout: 3s
  maxUploadSize: 1Mi
  apiKey: "key123"
  shutdownGrace: 5s

session:
  store: "sqlite"
  ttl: 30m
  databasePath: "` + escapeBackslashes(filepath.Join(dir, "db", "sessions.db")) + `"

llm:
  provider: "gemini"
  attempts: 3
  gemini:
    apiKey: "${TEST_GEMINI_KEY}"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}

	if cfg.Server.Addr != ":0" {
		t.Fatalf("address = %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 1*time.Second || cfg.Server.WriteTimeout != 2*time.Second || cfg.Server.IdleTimeout != 3*time.Second {
		t.Fatalf("timeouts not parsed correctly")
	}
	if uint64(cfg.Server.MaxUploadSize) != 1024*1024 {
		t.Fatalf("maxUploadSize not parsed: %d", cfg.Server.MaxUploadSize)
	}
	if cfg.Server.APIKey != "key123" {
		t.Fatalf("apiKey mismatch")
	}
	if cfg.Server.LogLevel != "info" || cfg.Server.LogFormat != "text" {
		t.Fatalf("log defaults not applied: %q %q", cfg.Server.LogLevel, cfg.Server.LogFormat)
	}

	if cfg.Session.Store != "sqlite" || cfg.Session.TTL != 30*time.Minute {
		t.Fatalf("session config mismatch: %+v", cfg.Session)
	}
	if cfg.Session.CookieName != "healsmart_session" {
		t.Fatalf("cookie default = %q", cfg.Session.CookieName)
	}
	if _, err := os.Stat(filepath.Join(dir, "db")); err != nil {
		t.Fatalf("database dir should be created: %v", err)
	}

	if cfg.LLM.Gemini.APIKey != "secret123" {
		t.Fatalf("env expansion for api key failed")
	}
	if cfg.LLM.Gemini.Model != "gemini-1.5-flash" {
		t.Fatalf("gemini model default = %q", cfg.LLM.Gemini.Model)
	}
	if cfg.LLM.Attempts != 3 || cfg.LLM.RetryBackoff != 2*time.Second {
		t.Fatalf("retry settings mismatch: %d %s", cfg.LLM.Attempts, cfg.LLM.RetryBackoff)
	}
}

func TestLoad_MissingDefaultFileUsesEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HEALSMART_CONFIG", "")
	t.Setenv("GOOGLE_API_KEY", "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.Gemini.APIKey != "from-env" {
		t.Fatalf("expected gemini with env key, got %q / %q", cfg.LLM.Provider, cfg.LLM.Gemini.APIKey)
	}
	if cfg.Session.Store != "memory" || cfg.LLM.Attempts != 1 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoad_DotEnvProvidesKey(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HEALSMART_CONFIG", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	// godotenv does not override variables that are already set, so clear it first.
	if err := os.Unsetenv("GOOGLE_API_KEY"); err != nil {
		t.Fatalf("unsetenv: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GOOGLE_API_KEY=dotenv-key\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("GOOGLE_API_KEY") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Gemini.APIKey != "dotenv-key" {
		t.Fatalf("api key = %q", cfg.LLM.Gemini.APIKey)
	}
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"missing gemini key": `llm: {provider: gemini}`,
		"unknown provider":   `llm: {provider: nope}`,
		"anthropic no key":   `llm: {provider: anthropic}`,
		"redis no address":   "llm: {provider: mock}\nsession: {store: redis}",
		"unknown store":      "llm: {provider: mock}\nsession: {store: etcd}",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			t.Setenv("GOOGLE_API_KEY", "")
			t.Setenv("GEMINI_API_KEY", "")
			p := filepath.Join(dir, "c.yaml")
			if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := Load(p); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func escapeBackslashes(p string) string {
	// On Windows, YAML literal may require escaping backslashes
	return strings.ReplaceAll(p, `\`, `\\`)
}

func TestLoad_ExampleConfig(t *testing.T) {
	path, err := filepath.Abs(filepath.Join("..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	t.Chdir(t.TempDir())
	t.Setenv("GOOGLE_API_KEY", "example-key")
	t.Setenv("HEALSMART_API_KEY", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if cfg.LLM.Gemini.APIKey != "example-key" || cfg.LLM.AIProxy.BaseURL != "http://localhost:8900" {
		t.Fatalf("unexpected llm config %+v", cfg.LLM)
	}
	if cfg.Server.MaxUploadSize != ByteSize(10*1024*1024) || cfg.Session.TTL != 24*time.Hour {
		t.Fatalf("unexpected server/session config %+v %+v", cfg.Server, cfg.Session)
	}
}
