package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/jo-hoe/healsmart/internal/analysis"
	"github.com/jo-hoe/healsmart/internal/llm"
	"github.com/jo-hoe/healsmart/internal/metrics"
	"github.com/jo-hoe/healsmart/internal/upload"
)

var errNoAnalysis = errors.New("no analysis in session")

// nginx convention for a client that went away before the answer
const statusClientClosedRequest = 499

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps a failure to the HTTP status and the message shown to the user.
func statusFor(err error) (int, string) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, upload.ErrTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, "image is too large"
	case errors.Is(err, upload.ErrUnsupportedType), errors.Is(err, analysis.ErrUnsupportedImage):
		return http.StatusUnsupportedMediaType, "only JPEG and PNG images are supported"
	case errors.Is(err, upload.ErrNoFile), errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return http.StatusBadRequest, "please choose an image to upload"
	case errors.Is(err, analysis.ErrEmptyImage):
		return http.StatusBadRequest, "the uploaded image is empty"
	case errors.Is(err, analysis.ErrEmptyText):
		return http.StatusBadRequest, "there is no text to explain"
	case errors.Is(err, llm.ErrAuth):
		return http.StatusBadGateway, "model rejected credentials"
	case errors.Is(err, llm.ErrEmptyResponse):
		return http.StatusBadGateway, "the model returned no answer, please try again"
	case errors.Is(err, llm.ErrTransport), errors.Is(err, llm.ErrRejected), errors.Is(err, llm.ErrMalformedResponse):
		return http.StatusBadGateway, "the model could not be reached, please try again"
	case errors.Is(err, errNoAnalysis):
		return http.StatusConflict, "analyze an image first"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "request canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "the model took too long to answer"
	}
	return http.StatusInternalServerError, "internal error"
}

// rejectionReason labels upload validation failures for metrics; empty for other errors.
func rejectionReason(err error) string {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, upload.ErrTooLarge), errors.As(err, &maxErr):
		return "too_large"
	case errors.Is(err, upload.ErrUnsupportedType), errors.Is(err, analysis.ErrUnsupportedImage):
		return "unsupported_type"
	case errors.Is(err, analysis.ErrEmptyImage):
		return "empty"
	case errors.Is(err, upload.ErrNoFile), errors.Is(err, http.ErrMissingFile):
		return "missing"
	}
	return ""
}

func countRejection(err error) {
	if reason := rejectionReason(err); reason != "" {
		metrics.UploadsRejectedTotal.WithLabelValues(reason).Inc()
	}
}

// isCanceled reports a request abandoned by the caller; such failures are not logged as errors.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
