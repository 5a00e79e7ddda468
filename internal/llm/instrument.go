package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/jo-hoe/healsmart/internal/metrics"
)

type instrumentedClient struct {
	next     Client
	provider string
	log      *slog.Logger
}

// Instrument wraps c with structured logging and Prometheus metrics per call.
func Instrument(c Client, provider string, log *slog.Logger) Client {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &instrumentedClient{next: c, provider: provider, log: log.With("provider", provider)}
}

func (i *instrumentedClient) GenerateWithImage(ctx context.Context, prompt string, img Image) (string, error) {
	start := time.Now()
	out, err := i.next.GenerateWithImage(ctx, prompt, img)
	i.observe(OpImage, start, err, "mime", img.MimeType, "bytes", len(img.Data))
	return out, err
}

func (i *instrumentedClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := i.next.GenerateText(ctx, prompt)
	i.observe(OpText, start, err, "prompt_chars", len(prompt))
	return out, err
}

func (i *instrumentedClient) Close() error {
	return closeClient(i.next)
}

func (i *instrumentedClient) observe(op string, start time.Time, err error, attrs ...any) {
	elapsed := time.Since(start)
	result := resultLabel(err)
	metrics.ModelRequestsTotal.WithLabelValues(i.provider, op, result).Inc()
	metrics.ModelRequestDurationSeconds.WithLabelValues(i.provider, op).Observe(elapsed.Seconds())

	attrs = append(attrs, "op", op, "duration", elapsed.String(), "result", result)
	if err != nil {
		i.log.Error("model call failed", append(attrs, "err", err)...)
		return
	}
	i.log.Info("model call", attrs...)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return "transport"
	}
}
