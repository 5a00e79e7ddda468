package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	api "github.com/ollama/ollama/api"

	"github.com/jo-hoe/healsmart/internal/common"
	"github.com/jo-hoe/healsmart/internal/config"
	"github.com/jo-hoe/healsmart/internal/llm"
)

var _ llm.Client = (*Client)(nil)

const defaultTimeout = 2 * time.Minute

// Client implements llm.Client against a local Ollama server running a vision model.
type Client struct {
	api   *api.Client
	model string
}

func New(cfg config.OllamaSettings, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.Host))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ollama host %q", cfg.Host)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		api:   api.NewClient(u, &http.Client{Timeout: timeout}),
		model: cfg.Model,
	}, nil
}

func (c *Client) GenerateWithImage(ctx context.Context, prompt string, img llm.Image) (string, error) {
	if len(img.Data) == 0 {
		return "", llm.NewError(common.ProviderOllama, llm.OpImage, llm.ErrRejected, errors.New("image is empty"))
	}
	return c.generate(ctx, llm.OpImage, prompt, []api.ImageData{img.Data})
}

func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, llm.OpText, prompt, nil)
}

func (c *Client) generate(ctx context.Context, op, prompt string, images []api.ImageData) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Images: images,
		Stream: &stream,
	}

	var out strings.Builder
	err := c.api.Generate(ctx, req, func(gr api.GenerateResponse) error {
		out.WriteString(gr.Response)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classify(op, err)
	}
	return llm.RequireText(common.ProviderOllama, op, out.String())
}

// classify maps client errors onto llm kinds. The client reports an error
// message from the server as a plain error, so anything that is not a
// network failure means the server answered and refused the request.
func classify(op string, err error) error {
	var se api.StatusError
	if errors.As(err, &se) && se.StatusCode != 0 {
		return llm.StatusError(common.ProviderOllama, op, se.StatusCode, err)
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return llm.NewError(common.ProviderOllama, op, llm.ErrTransport, err)
	}
	return llm.NewError(common.ProviderOllama, op, llm.ErrRejected, err)
}
