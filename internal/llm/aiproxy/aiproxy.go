package aiproxy

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jo-hoe/healsmart/internal/common"
	"github.com/jo-hoe/healsmart/internal/config"
	"github.com/jo-hoe/healsmart/internal/llm"
)

var _ llm.Client = (*Client)(nil)

const (
	// Content types
	contentTypeOctetStream = "application/octet-stream"

	// Endpoint prefix appended to the configured base URL
	apiVersionPath = "/v1"

	defaultTimeout = 2 * time.Minute

	// Data URL constants
	dataURLPrefix    = "data:"
	dataURLBase64Sep = ";base64,"
)

// Client implements llm.Client by calling an OpenAI-compatible AI Proxy.
type Client struct {
	api         *openai.Client
	model       string
	system      string
	temperature float32
	maxTokens   int
}

// New creates a new AI Proxy LLM client.
func New(cfg config.AIProxySettings, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + apiVersionPath
	oc.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{
		api:         openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		system:      strings.TrimSpace(cfg.SystemPrompt),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// GenerateWithImage sends the instruction and the image as a data URL part of one user message.
func (c *Client) GenerateWithImage(ctx context.Context, prompt string, img llm.Image) (string, error) {
	if len(img.Data) == 0 {
		return "", llm.NewError(common.ProviderAIProxy, llm.OpImage, llm.ErrRejected, errors.New("image is empty"))
	}
	user := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    buildDataURL(img.MimeType, img.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			},
		},
	}
	return c.complete(ctx, llm.OpImage, user)
}

// GenerateText sends a plain text user message.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt}
	return c.complete(ctx, llm.OpText, user)
}

func (c *Client) complete(ctx context.Context, op string, user openai.ChatCompletionMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.messages(user),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classify(op, err)
	}
	if len(resp.Choices) == 0 {
		return "", llm.NewError(common.ProviderAIProxy, op, llm.ErrEmptyResponse, errors.New("no choices"))
	}
	return llm.RequireText(common.ProviderAIProxy, op, resp.Choices[0].Message.Content)
}

func (c *Client) messages(user openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	if c.system == "" {
		return []openai.ChatCompletionMessage{user}
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: c.system},
		user,
	}
}

func classify(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return llm.StatusError(common.ProviderAIProxy, op, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return llm.StatusError(common.ProviderAIProxy, op, reqErr.HTTPStatusCode, err)
	}
	return llm.NewError(common.ProviderAIProxy, op, llm.ErrTransport, err)
}

func buildDataURL(mime string, data []byte) string {
	mt := strings.TrimSpace(mime)
	if mt == "" {
		mt = contentTypeOctetStream
	}
	enc := base64.StdEncoding.EncodeToString(data)
	return dataURLPrefix + mt + dataURLBase64Sep + enc
}
