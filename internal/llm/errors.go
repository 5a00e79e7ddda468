package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error kinds. Every provider failure is reported as an *Error whose Kind is one of these.
var (
	ErrTransport         = errors.New("model transport failure")
	ErrAuth              = errors.New("model rejected credentials")
	ErrRejected          = errors.New("model rejected request")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrEmptyResponse     = errors.New("empty model response")
)

// Error is a classified failure of a single model call.
type Error struct {
	Provider   string
	Op         string
	Kind       error
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %v", e.Provider, e.Op, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds a classified error with an explicit kind.
func NewError(provider, op string, kind error, err error) *Error {
	return &Error{Provider: provider, Op: op, Kind: kind, Err: err}
}

// StatusError classifies a failed call that carried an HTTP status code.
func StatusError(provider, op string, status int, err error) *Error {
	return &Error{Provider: provider, Op: op, Kind: KindForStatus(status), StatusCode: status, Err: err}
}

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		return ErrTransport
	case status >= http.StatusInternalServerError:
		return ErrTransport
	case status >= http.StatusBadRequest:
		return ErrRejected
	default:
		return ErrMalformedResponse
	}
}

// IsRetryable reports whether repeating the call could succeed.
// Only transport failures qualify; auth, rejected and malformed responses do not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport)
}

// RequireText turns an empty or whitespace-only answer into ErrEmptyResponse.
func RequireText(provider, op, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", NewError(provider, op, ErrEmptyResponse, nil)
	}
	return text, nil
}
