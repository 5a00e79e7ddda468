package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/jo-hoe/healsmart/internal/analysis"
	"github.com/jo-hoe/healsmart/internal/common"
)

var (
	ErrNoFile          = errors.New("no file provided")
	ErrTooLarge        = errors.New("upload exceeds size limit")
	ErrUnsupportedType = errors.New("unsupported content type")
)

// ReadImage validates an uploaded png/jpeg and returns it as an in-memory asset.
// The type is sniffed from the bytes; the declared Content-Type is only reported in errors.
func ReadImage(fileHeader *multipart.FileHeader, maxBytes int64) (analysis.ImageAsset, error) {
	if fileHeader == nil {
		return analysis.ImageAsset{}, ErrNoFile
	}
	if maxBytes > 0 && fileHeader.Size > maxBytes {
		return analysis.ImageAsset{}, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, fileHeader.Size, maxBytes)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return analysis.ImageAsset{}, fmt.Errorf("open uploaded file: %w", err)
	}
	defer func() { _ = src.Close() }()

	data, err := readLimited(src, maxBytes)
	if err != nil {
		return analysis.ImageAsset{}, err
	}
	if len(data) == 0 {
		return analysis.ImageAsset{}, analysis.ErrEmptyImage
	}

	mimeType := analysis.DetectMime(data)
	if !common.IsSupportedImageMime(mimeType) {
		declared := strings.TrimSpace(fileHeader.Header.Get("Content-Type"))
		return analysis.ImageAsset{}, fmt.Errorf("%w: detected %s, declared %q", ErrUnsupportedType, mimeType, declared)
	}
	return analysis.ImageAsset{Data: data, MimeType: mimeType}, nil
}

// readLimited reads at most maxBytes, failing with ErrTooLarge if more is available.
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}
