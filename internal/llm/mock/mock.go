package mock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jo-hoe/healsmart/internal/common"
	"github.com/jo-hoe/healsmart/internal/config"
	"github.com/jo-hoe/healsmart/internal/llm"
)

var _ llm.Client = (*Client)(nil)

const summaryLimit = 80

// Client is a deterministic, no-network model used for local runs and tests.
type Client struct {
	delay  time.Duration
	prefix string
}

// New creates a mock client.
func New(cfg config.MockSettings) *Client {
	return &Client{delay: cfg.Delay, prefix: cfg.Prefix}
}

// GenerateWithImage returns a fixed-shape analysis derived from the image digest.
func (c *Client) GenerateWithImage(ctx context.Context, prompt string, img llm.Image) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	if len(img.Data) == 0 {
		return "", llm.NewError(common.ProviderMock, llm.OpImage, llm.ErrRejected, fmt.Errorf("image is empty"))
	}
	sum := sha256.Sum256(img.Data)
	short := hex.EncodeToString(sum[:6])

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s, %d bytes, digest %s)\n\n", c.prefix, img.MimeType, len(img.Data), short)
	b.WriteString("1. Condition: no specific condition can be identified in this image.\n")
	b.WriteString("2. Key observations: the image is uniform with no visible structures.\n")
	b.WriteString("3. Next steps: consult a qualified clinician with the original study.\n")
	b.WriteString("4. Urgent features: none detected.\n")
	return b.String(), nil
}

// GenerateText returns a short paraphrase marker followed by a summary of the prompt tail.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	if strings.TrimSpace(prompt) == "" {
		return "", llm.NewError(common.ProviderMock, llm.OpText, llm.ErrRejected, fmt.Errorf("prompt is empty"))
	}
	return fmt.Sprintf("%s simple version: %s", c.prefix, summarize(prompt)), nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// summarize keeps the last non-empty line, shortened.
func summarize(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if r := []rune(last); len(r) > summaryLimit {
		last = string(r[:summaryLimit]) + "..."
	}
	return last
}
