package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jo-hoe/healsmart/internal/common"
	"github.com/jo-hoe/healsmart/internal/config"
	"github.com/jo-hoe/healsmart/internal/llm"
	"github.com/jo-hoe/healsmart/internal/llm/aiproxy"
	"github.com/jo-hoe/healsmart/internal/llm/anthropic"
	"github.com/jo-hoe/healsmart/internal/llm/gemini"
	"github.com/jo-hoe/healsmart/internal/llm/mock"
	"github.com/jo-hoe/healsmart/internal/llm/ollama"
)

// Factory builds a raw provider client from the LLM configuration.
type Factory func(ctx context.Context, cfg config.LLMConfig) (llm.Client, error)

// Registry holds provider factories by name.
type Registry struct {
	byName map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Factory)}
}

func (r *Registry) Add(name string, f Factory) {
	r.byName[name] = f
}

func (r *Registry) Get(name string) (Factory, bool) {
	f, ok := r.byName[name]
	return f, ok
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for k := range r.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Default returns a registry with every built-in provider.
func Default() *Registry {
	r := NewRegistry()
	r.Add(common.ProviderGemini, func(ctx context.Context, cfg config.LLMConfig) (llm.Client, error) {
		return gemini.New(ctx, cfg.Gemini, cfg.Timeout)
	})
	r.Add(common.ProviderAIProxy, func(_ context.Context, cfg config.LLMConfig) (llm.Client, error) {
		return aiproxy.New(cfg.AIProxy, cfg.Timeout), nil
	})
	r.Add(common.ProviderAnthropic, func(_ context.Context, cfg config.LLMConfig) (llm.Client, error) {
		return anthropic.New(cfg.Anthropic, cfg.Timeout)
	})
	r.Add(common.ProviderOllama, func(_ context.Context, cfg config.LLMConfig) (llm.Client, error) {
		return ollama.New(cfg.Ollama, cfg.Timeout)
	})
	r.Add(common.ProviderMock, func(_ context.Context, cfg config.LLMConfig) (llm.Client, error) {
		return mock.New(cfg.Mock), nil
	})
	return r
}

// New builds the configured provider and wraps it with retries and instrumentation.
func (r *Registry) New(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (llm.Client, error) {
	f, ok := r.Get(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("unsupported llm provider %q (known: %v)", cfg.Provider, r.Names())
	}
	c, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.Provider, err)
	}
	c = llm.WithRetry(c, cfg.Attempts, cfg.RetryBackoff, log)
	return llm.Instrument(c, cfg.Provider, log), nil
}
