package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/healsmart/internal/common"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	LLM     LLMConfig     `yaml:"llm"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr          string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	MaxUploadSize ByteSize      `yaml:"maxUploadSize"`
	APIKey        string        `yaml:"apiKey"`        // optional static API key header (X-API-Key) for /v1 routes
	ShutdownGrace time.Duration `yaml:"shutdownGrace"` // time to wait for in-flight requests
	LogLevel      string        `yaml:"logLevel"`      // debug|info|warn|error
	LogFormat     string        `yaml:"logFormat"`     // text|json
}

// SessionConfig selects where per-session state lives.
type SessionConfig struct {
	Store        string        `yaml:"store"` // memory|sqlite|redis
	TTL          time.Duration `yaml:"ttl"`
	CookieName   string        `yaml:"cookieName"`
	CookieSecure bool          `yaml:"cookieSecure"`
	DatabasePath string        `yaml:"databasePath"` // sqlite only
	Redis        RedisSettings `yaml:"redis"`
}

// RedisSettings config for the redis session store.
type RedisSettings struct {
	Addr      string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// LLMConfig selects provider and provider-specific options.
type LLMConfig struct {
	Provider     string            `yaml:"provider"` // gemini|aiproxy|anthropic|ollama|mock
	Timeout      time.Duration     `yaml:"timeout"`
	Attempts     int               `yaml:"attempts"`     // total attempts per call, 1 disables retries
	RetryBackoff time.Duration     `yaml:"retryBackoff"` // base backoff, grows linearly per attempt
	Gemini       GeminiSettings    `yaml:"gemini"`
	AIProxy      AIProxySettings   `yaml:"aiproxy"`
	Anthropic    AnthropicSettings `yaml:"anthropic"`
	Ollama       OllamaSettings    `yaml:"ollama"`
	Mock         MockSettings      `yaml:"mock"`
}

// GeminiSettings config for Google Gemini.
type GeminiSettings struct {
	APIKey   string `yaml:"apiKey"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"` // optional, overrides the API endpoint
}

// AIProxySettings config for the AI Proxy (OpenAI-compatible) LLM.
type AIProxySettings struct {
	BaseURL      string  `yaml:"baseUrl"`      // e.g. http://localhost:8900
	APIKey       string  `yaml:"apiKey"`       // optional
	Model        string  `yaml:"model"`        // e.g. gpt-4o-mini
	SystemPrompt string  `yaml:"systemPrompt"` // optional system message
	Temperature  float32 `yaml:"temperature"`  // optional
	MaxTokens    int     `yaml:"maxTokens"`    // optional
}

// AnthropicSettings config for the Anthropic Messages API.
type AnthropicSettings struct {
	APIKey    string `yaml:"apiKey"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"maxTokens"`
	BaseURL   string `yaml:"baseUrl"` // optional
}

// OllamaSettings config for a local Ollama server.
type OllamaSettings struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// MockSettings config for the mock LLM.
type MockSettings struct {
	Delay  time.Duration `yaml:"delay"`
	Prefix string        `yaml:"prefix"`
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		str := strings.TrimSpace(value.Value)
		parsed, err := ParseByteSize(str)
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Supports Kubernetes-style quantities for binary units: Ki, Mi, Gi (case-insensitive).
// Also accepts KiB/MiB/GiB and decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)

	type unit struct {
		suffix string
		value  uint64
	}
	// Longer suffixes first so "MIB" wins over "B".
	units := []unit{
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			if val < 0 {
				return 0, fmt.Errorf("negative size %q", orig)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, and validates it.
// A .env file in the working directory is loaded first when present.
// If path is empty, it will attempt to read from env var HEALSMART_CONFIG, then default to "config.yaml".
// A missing default config.yaml is not an error: defaults plus environment are used instead.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	explicit := true
	if path == "" {
		if env := os.Getenv(common.EnvConfigPath); env != "" {
			path = env
		} else {
			path = "config.yaml"
			explicit = false
		}
	}

	var cfg Config
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case !explicit && errors.Is(err, fs.ErrNotExist):
		// run on defaults and environment
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.Session.Store == common.StoreSQLite {
		if dir := filepath.Dir(cfg.Session.DatabasePath); dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("ensure database dir: %w", err)
			}
		}
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 3 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = ByteSize(common.DefaultMaxUploadMiB * 1024 * 1024)
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.Server.LogFormat) == "" {
		cfg.Server.LogFormat = "text"
	}

	// Session defaults
	cfg.Session.Store = strings.ToLower(strings.TrimSpace(cfg.Session.Store))
	if cfg.Session.Store == "" {
		cfg.Session.Store = common.StoreMemory
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = common.DefaultSessionTTL * time.Hour
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = common.DefaultSessionCookie
	}
	if cfg.Session.DatabasePath == "" {
		cfg.Session.DatabasePath = filepath.Join("data", "healsmart.db")
	}
	if cfg.Session.Redis.KeyPrefix == "" {
		cfg.Session.Redis.KeyPrefix = "healsmart:session:"
	}

	// LLM defaults
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = common.ProviderGemini
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 2 * time.Minute
	}
	if cfg.LLM.Attempts <= 0 {
		cfg.LLM.Attempts = 1
	}
	if cfg.LLM.RetryBackoff == 0 {
		cfg.LLM.RetryBackoff = 2 * time.Second
	}

	if strings.TrimSpace(cfg.LLM.Gemini.APIKey) == "" {
		cfg.LLM.Gemini.APIKey = os.Getenv(common.EnvGoogleAPIKey)
	}
	if strings.TrimSpace(cfg.LLM.Gemini.APIKey) == "" {
		cfg.LLM.Gemini.APIKey = os.Getenv(common.EnvGeminiAPIKey)
	}
	if cfg.LLM.Gemini.Model == "" {
		cfg.LLM.Gemini.Model = "gemini-1.5-flash"
	}

	if strings.TrimSpace(cfg.LLM.AIProxy.BaseURL) == "" {
		cfg.LLM.AIProxy.BaseURL = "http://localhost:8900"
	}
	if strings.TrimSpace(cfg.LLM.AIProxy.Model) == "" {
		cfg.LLM.AIProxy.Model = "gpt-4o-mini"
	}

	if cfg.LLM.Anthropic.Model == "" {
		cfg.LLM.Anthropic.Model = "claude-3-5-sonnet-latest"
	}
	if cfg.LLM.Anthropic.MaxTokens <= 0 {
		cfg.LLM.Anthropic.MaxTokens = 1024
	}

	if cfg.LLM.Ollama.Host == "" {
		cfg.LLM.Ollama.Host = "http://localhost:11434"
	}
	if cfg.LLM.Ollama.Model == "" {
		cfg.LLM.Ollama.Model = "llava"
	}

	if cfg.LLM.Mock.Prefix == "" {
		cfg.LLM.Mock.Prefix = "Generated by Mock"
	}
}

func validate(cfg *Config) error {
	switch cfg.LLM.Provider {
	case common.ProviderGemini:
		if strings.TrimSpace(cfg.LLM.Gemini.APIKey) == "" {
			return fmt.Errorf("llm.gemini.apiKey is required (or set %s)", common.EnvGoogleAPIKey)
		}
	case common.ProviderAnthropic:
		if strings.TrimSpace(cfg.LLM.Anthropic.APIKey) == "" {
			return fmt.Errorf("llm.anthropic.apiKey is required")
		}
	case common.ProviderAIProxy, common.ProviderOllama, common.ProviderMock:
	default:
		return fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}

	switch cfg.Session.Store {
	case common.StoreMemory, common.StoreSQLite:
	case common.StoreRedis:
		if strings.TrimSpace(cfg.Session.Redis.Addr) == "" {
			return fmt.Errorf("session.redis.address is required")
		}
	default:
		return fmt.Errorf("unsupported session store %q", cfg.Session.Store)
	}

	if cfg.Session.TTL < 0 {
		return fmt.Errorf("session.ttl must not be negative")
	}
	return nil
}
