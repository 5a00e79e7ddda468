package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jo-hoe/healsmart/internal/common"
	"github.com/jo-hoe/healsmart/internal/llm"
)

// AnalysisPrompt is sent together with every uploaded image.
const AnalysisPrompt = `
You are a medical assistant. Analyze this medical image and provide the following:
1. What condition or issue is shown in the image?
2. What are the key observations?
3. What might be potential treatments or next steps?
4. Are there any concerning features that require immediate attention?
`

// SimplifyPrefix is prepended to the text that should be paraphrased.
const SimplifyPrefix = "You have to explain the below piece of information to a five years old. \n"

var (
	ErrEmptyImage       = errors.New("image is empty")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrEmptyText        = errors.New("text to simplify is empty")
	ErrReadImage        = errors.New("read image")
)

// ImageAsset is an uploaded image kept in memory for the duration of one request.
type ImageAsset struct {
	Data     []byte
	MimeType string
}

// Service runs the two model operations over a shared client.
type Service struct {
	client llm.Client
	log    *slog.Logger
}

func New(client llm.Client, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{client: client, log: log}
}

// Analyze asks the model to describe the image. Empty model output surfaces as llm.ErrEmptyResponse.
func (s *Service) Analyze(ctx context.Context, img ImageAsset) (string, error) {
	if len(img.Data) == 0 {
		return "", ErrEmptyImage
	}
	mt := strings.ToLower(strings.TrimSpace(img.MimeType))
	if !common.IsSupportedImageMime(mt) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, img.MimeType)
	}

	out, err := s.client.GenerateWithImage(ctx, AnalysisPrompt, llm.Image{Data: img.Data, MimeType: mt})
	if err != nil {
		return "", fmt.Errorf("analyze image: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", llm.NewError("analysis", llm.OpImage, llm.ErrEmptyResponse, errors.New("model returned no text"))
	}
	s.log.Debug("image analyzed", "mime", mt, "bytes", len(img.Data), "chars", len(out))
	return out, nil
}

// AnalyzeFile reads an image from disk, detects its type from content and analyzes it.
func (s *Service) AnalyzeFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrReadImage, path, err)
	}
	return s.Analyze(ctx, ImageAsset{Data: data, MimeType: DetectMime(data)})
}

// Simplify rephrases text for a five-year-old. Any text is accepted, not only analyses.
func (s *Service) Simplify(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	out, err := s.client.GenerateText(ctx, SimplifyPrefix+text)
	if err != nil {
		return "", fmt.Errorf("simplify text: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", llm.NewError("analysis", llm.OpText, llm.ErrEmptyResponse, errors.New("model returned no text"))
	}
	return out, nil
}

// DetectMime sniffs the content type, dropping any parameters.
func DetectMime(data []byte) string {
	mt, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return strings.TrimSpace(mt)
}
