// LLMClient - wrapper around a Provider that bounds every call in time and
// translates failures into CallError.

package llm

import (
	"context"
	"time"
)

// Client wraps a Provider with per-call timeouts and error classification.
type Client struct {
	provider Provider
	timeout  time.Duration
}

// NewClient creates a new LLM client from a provider. A zero timeout
// leaves calls bounded only by the caller's context.
func NewClient(provider Provider, timeout time.Duration) *Client {
	return &Client{provider: provider, timeout: timeout}
}

// Complete sends a blocking chat completion request and returns just the content.
func (c *Client) Complete(ctx context.Context, model string, messages []ChatMessage) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := ChatRequest{Model: model, Messages: messages}
	response, err := c.provider.Chat(ctx, req)
	if err != nil {
		return "", c.wrap(ctx, req, err)
	}
	if response.Content == "" {
		return "", c.wrap(ctx, req, ErrEmptyResponse)
	}
	return response.Content, nil
}

// Stream relays fragments from the provider to chunks until the provider
// stream ends. The caller owns chunks and closes it after Stream returns.
func (c *Client) Stream(ctx context.Context, model string, messages []ChatMessage, chunks chan<- string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := ChatRequest{Model: model, Messages: messages}
	if _, err := c.provider.StreamChat(ctx, req, chunks); err != nil {
		return c.wrap(ctx, req, err)
	}
	// Some SDKs end iteration quietly when the context expires.
	if err := ctx.Err(); err != nil {
		return c.wrap(ctx, req, err)
	}
	return nil
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) wrap(ctx context.Context, req ChatRequest, err error) error {
	kind := Classify(err)
	// The SDK error text rarely says which deadline fired.
	if ctxErr := ctx.Err(); ctxErr != nil {
		kind = Classify(ctxErr)
		if kind == FailureTimeout || kind == FailureCanceled {
			err = ctxErr
		}
	}
	return &CallError{
		Kind:     kind,
		Provider: c.provider.Name(),
		Model:    modelOr(req.Model, c.provider.Model()),
		Err:      err,
	}
}
