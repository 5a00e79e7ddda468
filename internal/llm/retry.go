package llm

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// retryClient repeats calls that failed with a retryable error.
type retryClient struct {
	next     Client
	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

// WithRetry wraps c so that retryable failures are attempted up to attempts
// times in total, sleeping attempt*backoff between tries.
// attempts <= 1 returns c unchanged.
func WithRetry(c Client, attempts int, backoff time.Duration, log *slog.Logger) Client {
	if attempts <= 1 {
		return c
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &retryClient{next: c, attempts: attempts, backoff: backoff, log: log}
}

func (r *retryClient) GenerateWithImage(ctx context.Context, prompt string, img Image) (string, error) {
	return r.do(ctx, OpImage, func() (string, error) {
		return r.next.GenerateWithImage(ctx, prompt, img)
	})
}

func (r *retryClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return r.do(ctx, OpText, func() (string, error) {
		return r.next.GenerateText(ctx, prompt)
	})
}

// Close forwards to the wrapped client.
func (r *retryClient) Close() error {
	return closeClient(r.next)
}

func (r *retryClient) do(ctx context.Context, op string, call func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		out, err := call()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == r.attempts {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		wait := time.Duration(attempt) * r.backoff
		r.log.Warn("model call failed, retrying", "op", op, "attempt", attempt, "wait", wait, "err", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", lastErr
}

// Close releases resources held by c if it has any.
func Close(c Client) error {
	return closeClient(c)
}

func closeClient(c Client) error {
	if cl, ok := c.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
