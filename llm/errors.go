package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrEmptyResponse is returned when a provider answers without any content.
	ErrEmptyResponse = errors.New("empty response from provider")

	// ErrUnknownProvider is returned by the factory for unsupported provider names.
	ErrUnknownProvider = errors.New("unknown provider")
)

// FailureKind classifies why a provider call failed.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureTransport
	FailureAuth
	FailureRateLimit
	FailureMalformed
	FailureTimeout
	FailureCanceled
)

// String returns the string representation of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureAuth:
		return "auth"
	case FailureRateLimit:
		return "rate_limit"
	case FailureMalformed:
		return "malformed"
	case FailureTimeout:
		return "timeout"
	case FailureCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// CallError is returned by Client for every failed provider call.
type CallError struct {
	Kind     FailureKind
	Provider string
	Model    string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Provider, e.Model, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Classify maps a raw provider error onto a FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	if errors.Is(err, ErrEmptyResponse) {
		return FailureMalformed
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return classifyStatus(anthropicErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FailureTimeout
		}
		return FailureTransport
	}

	return FailureUnknown
}

func classifyStatus(code int) FailureKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusPaymentRequired:
		return FailureAuth
	case code == http.StatusTooManyRequests:
		return FailureRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return FailureTimeout
	case code >= 500:
		return FailureTransport
	case code >= 400:
		return FailureMalformed
	default:
		return FailureUnknown
	}
}
