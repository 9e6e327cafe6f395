// Package openai implements llm.Client on the OpenAI chat-completion API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/scoutline/startup-enricher/internal/llm"
)

const providerName = "openai"

var _ llm.Client = (*Client)(nil)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the API endpoint. Useful for proxies/testing.
	BaseURL string
}

type Client struct {
	client *goopenai.Client
	model  string
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = goopenai.GPT4oMini
	}

	clientCfg := goopenai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}
	return &Client{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

func (c *Client) Name() string { return providerName }

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classifyErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyErr maps OpenAI API failures onto the shared taxonomy. OpenAI
// reports both per-minute throttling and exhausted quotas as 429; the
// insufficient_quota code marks the latter.
func classifyErr(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
				return &llm.QuotaError{Provider: providerName, Err: err}
			}
			return &llm.RateLimitError{Provider: providerName, Err: err}
		}
		if apiErr.HTTPStatusCode/100 == 5 {
			return &llm.RateLimitError{Provider: providerName, Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &llm.RateLimitError{Provider: providerName, Err: err}
	}
	return err
}
