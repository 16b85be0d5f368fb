package provider

import (
	"context"
	"strings"
)

const (
	defaultAnthropicBaseURL   = "https://api.anthropic.com"
	defaultAnthropicModel     = "claude-sonnet-4-20250514"
	defaultAnthropicMaxTokens = 1024
	anthropicAPIVersion       = "2023-06-01"
)

// AnthropicProvider drafts reminder text with the Anthropic Messages API.
type AnthropicProvider struct {
	config Config
}

// NewAnthropicProvider returns a provider for cfg, filling unset fields with
// the Anthropic defaults.
func NewAnthropicProvider(cfg Config) *AnthropicProvider {
	return &AnthropicProvider{config: defaults{
		baseURL:   defaultAnthropicBaseURL,
		model:     defaultAnthropicModel,
		maxTokens: defaultAnthropicMaxTokens,
	}.apply(cfg)}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

type anthropicResponse struct {
	ID      string              `json:"id"`
	Type    string              `json:"type"`
	Content []anthropicRespItem `json:"content"`
	Usage   anthropicUsage      `json:"usage"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type anthropicRespItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (r *anthropicResponse) apiError() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Type + ": " + r.Error.Message
}

func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	system, rest := systemAndRest(messages)
	in := anthropicRequest{
		Model:     p.config.Model,
		MaxTokens: p.config.MaxTokens,
		System:    system,
		Messages:  rest,
	}
	headers := map[string]string{
		"x-api-key":         p.config.APIKey,
		"anthropic-version": anthropicAPIVersion,
	}
	var out anthropicResponse
	if err := postJSON(ctx, p.config, p.Name(), p.config.BaseURL+"/v1/messages", headers, in, &out); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, item := range out.Content {
		if item.Type == "text" {
			text.WriteString(item.Text)
		}
	}
	return &Response{
		Content: text.String(),
		Usage:   Usage{InputTokens: out.Usage.InputTokens, OutputTokens: out.Usage.OutputTokens},
	}, nil
}
