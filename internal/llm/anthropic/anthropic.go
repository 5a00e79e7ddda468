package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jo-hoe/healsmart/internal/common"
	"github.com/jo-hoe/healsmart/internal/config"
	"github.com/jo-hoe/healsmart/internal/llm"
)

var _ llm.Client = (*Client)(nil)

const (
	defaultTimeout   = 2 * time.Minute
	defaultMaxTokens = 1024
)

// Client implements llm.Client using Anthropic's Messages API.
type Client struct {
	api       sdk.Client
	model     string
	maxTokens int64
}

// New creates an Anthropic client. Retries are left to llm.WithRetry.
func New(cfg config.AnthropicSettings, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, llm.NewError(common.ProviderAnthropic, "init", llm.ErrAuth, errors.New("missing api key"))
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		api:       sdk.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

// GenerateWithImage sends the image block followed by the instruction.
func (c *Client) GenerateWithImage(ctx context.Context, prompt string, img llm.Image) (string, error) {
	if len(img.Data) == 0 {
		return "", llm.NewError(common.ProviderAnthropic, llm.OpImage, llm.ErrRejected, errors.New("image is empty"))
	}
	msg := sdk.NewUserMessage(
		sdk.NewImageBlockBase64(mediaType(img.MimeType), base64.StdEncoding.EncodeToString(img.Data)),
		sdk.NewTextBlock(prompt),
	)
	return c.send(ctx, llm.OpImage, msg)
}

// GenerateText sends a single text block.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.send(ctx, llm.OpText, sdk.NewUserMessage(sdk.NewTextBlock(prompt)))
}

func (c *Client) send(ctx context.Context, op string, msg sdk.MessageParam) (string, error) {
	resp, err := c.api.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  []sdk.MessageParam{msg},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classify(op, err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return llm.RequireText(common.ProviderAnthropic, op, b.String())
}

func classify(op string, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return llm.StatusError(common.ProviderAnthropic, op, apiErr.StatusCode, err)
	}
	return llm.NewError(common.ProviderAnthropic, op, llm.ErrTransport, err)
}

func mediaType(mime string) string {
	mt := strings.ToLower(strings.TrimSpace(mime))
	if mt == common.MimeImageJPG {
		return common.MimeImageJPEG
	}
	return mt
}
