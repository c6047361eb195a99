// Package anthropic implements [reasoning.Engine] on the Anthropic
// Messages API.
//
//	client := anthropic.NewClient(os.Getenv("ANTHROPIC_API_KEY"), "")
//	text, err := client.Generate(ctx, "Say hi", reasoning.Options{})
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/matzehuels/stackfix/pkg/cache"
	"github.com/matzehuels/stackfix/pkg/integrations"
	"github.com/matzehuels/stackfix/pkg/reasoning"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 4096
	APIVersion       = "2023-06-01"

	defaultTimeout = 2 * time.Minute
)

// Client calls the Messages API.
type Client struct {
	*integrations.Client
	baseURL   string
	model     string
	maxTokens int
}

// NewClient creates a client authenticated with apiKey. An empty baseURL
// uses the public API.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	headers := map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": APIVersion,
	}
	return &Client{
		Client:    integrations.NewClient(nil, "", 0, headers).WithTimeout(defaultTimeout),
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
}

// WithModel sets the default model and returns c.
func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// WithMaxTokens sets the default response budget and returns c.
func (c *Client) WithMaxTokens(n int) *Client {
	if n > 0 {
		c.maxTokens = n
	}
	return c
}

// Generate implements [reasoning.Engine].
func (c *Client) Generate(ctx context.Context, prompt string, opts reasoning.Options) (string, error) {
	return c.GenerateWithHistory(ctx, reasoning.Transcript{}.User(prompt), opts)
}

// GenerateWithHistory implements [reasoning.Engine]. Rate limits and server
// errors are retried with backoff.
func (c *Client) GenerateWithHistory(ctx context.Context, t reasoning.Transcript, opts reasoning.Options) (string, error) {
	req := messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    t.System(),
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		temp := opts.Temperature
		req.Temperature = &temp
	}
	for _, m := range t.Messages() {
		req.Messages = append(req.Messages, message{Role: string(m.Role), Content: m.Content})
	}
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("anthropic: empty transcript")
	}

	var resp messagesResponse
	err := cache.RetryWithBackoff(ctx, func() error {
		resp = messagesResponse{}
		return c.Post(ctx, c.baseURL+"/v1/messages", nil, req, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic: response had no text content (stop_reason %q)", resp.StopReason)
	}
	return sb.String(), nil
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

var _ reasoning.Engine = (*Client)(nil)
