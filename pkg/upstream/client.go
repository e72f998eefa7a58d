// Package upstream is the boundary to the streaming completion provider.
// The provider is treated as an opaque service: requests carry a model
// identifier, an ordered message list, a streaming flag and a reasoning
// effort option; responses are either an SSE token stream or a non-success
// status (429 = rate-limited, anything else = generic failure).
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"branchchat/pkg/models"
)

// StatusError is a non-success upstream response. The dispatcher inspects
// the code to tell rate-limit signals apart from generic failures.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}

// RateLimited reports whether the upstream rejected the credential for
// quota reasons.
func (e *StatusError) RateLimited() bool {
	return e.Code == http.StatusTooManyRequests
}

type completionRequest struct {
	Model     string           `json:"model"`
	Messages  []models.Message `json:"messages"`
	Stream    bool             `json:"stream"`
	Reasoning *reasoningOpts   `json:"reasoning,omitempty"`
}

type reasoningOpts struct {
	Enabled bool   `json:"enabled"`
	Effort  string `json:"effort"`
}

// Client issues streaming chat-completion calls against an OpenRouter
// compatible endpoint.
type Client struct {
	baseURL string
	model   string
	effort  string
	hc      *http.Client
}

// New builds a client. The timeout bounds the whole exchange including the
// body read; "high effort" reasoning responses can stream for a while, so
// callers should configure it generously (default 120s).
func New(baseURL, model, effort string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		effort:  effort,
		hc:      &http.Client{Timeout: timeout},
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Complete opens a streaming completion call authorized by secret. On
// success it returns the raw SSE body; the caller owns closing it. On a
// non-2xx response it drains the body and returns a *StatusError.
func (c *Client) Complete(ctx context.Context, secret string, msgs []models.Message) (io.ReadCloser, error) {
	payload := completionRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   true,
	}
	if c.effort != "" {
		payload.Reasoning = &reasoningOpts{Enabled: true, Effort: c.effort}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, nil
}
