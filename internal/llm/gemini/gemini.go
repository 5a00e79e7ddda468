package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jo-hoe/healsmart/internal/common"
	"github.com/jo-hoe/healsmart/internal/config"
	"github.com/jo-hoe/healsmart/internal/llm"
)

var _ llm.Client = (*Client)(nil)

const defaultTimeout = 2 * time.Minute

// Client implements llm.Client on top of the Google Gemini API.
type Client struct {
	api     *genai.Client
	model   string
	timeout time.Duration
}

// New creates a Gemini client authenticated with the configured API key.
func New(ctx context.Context, cfg config.GeminiSettings, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, llm.NewError(common.ProviderGemini, "init", llm.ErrAuth, errors.New("missing api key"))
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if ep := strings.TrimSpace(cfg.Endpoint); ep != "" {
		opts = append(opts, option.WithEndpoint(ep))
	}
	api, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{api: api, model: cfg.Model, timeout: timeout}, nil
}

// GenerateWithImage sends the prompt followed by the image as inline data.
func (c *Client) GenerateWithImage(ctx context.Context, prompt string, img llm.Image) (string, error) {
	if len(img.Data) == 0 {
		return "", llm.NewError(common.ProviderGemini, llm.OpImage, llm.ErrRejected, errors.New("image is empty"))
	}
	return c.generate(ctx, llm.OpImage, genai.Text(prompt), genai.Blob{MIMEType: normalizeMime(img.MimeType), Data: img.Data})
}

// GenerateText sends a text-only prompt.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, llm.OpText, genai.Text(prompt))
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.api.Close()
}

func (c *Client) generate(ctx context.Context, op string, parts ...genai.Part) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.GenerativeModel(c.model).GenerateContent(callCtx, parts...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if callCtx.Err() != nil {
			// our own deadline, not the caller's
			return "", llm.NewError(common.ProviderGemini, op, llm.ErrTransport, fmt.Errorf("no answer within %s: %w", c.timeout, err))
		}
		return "", classify(op, err)
	}
	return llm.RequireText(common.ProviderGemini, op, responseText(resp))
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

func classify(op string, err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return llm.NewError(common.ProviderGemini, op, llm.ErrEmptyResponse, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code != 0 {
		return llm.StatusError(common.ProviderGemini, op, gerr.Code, err)
	}
	var aerr *apierror.APIError
	if errors.As(err, &aerr) && aerr.HTTPCode() > 0 {
		return llm.StatusError(common.ProviderGemini, op, aerr.HTTPCode(), err)
	}
	return llm.NewError(common.ProviderGemini, op, llm.ErrTransport, err)
}

// normalizeMime maps the non-standard image/jpg alias to the type the API expects.
func normalizeMime(mime string) string {
	mt := strings.ToLower(strings.TrimSpace(mime))
	if mt == common.MimeImageJPG {
		return common.MimeImageJPEG
	}
	return mt
}
