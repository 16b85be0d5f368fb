package provider

import (
	"context"
	"errors"
)

const (
	defaultOpenAIBaseURL   = "https://api.openai.com"
	defaultOpenAIModel     = "gpt-4o"
	defaultOpenAIMaxTokens = 1024
)

// OpenAIProvider drafts reminder text with the OpenAI Chat Completions API.
type OpenAIProvider struct {
	config Config
}

// NewOpenAIProvider returns a provider for cfg, filling unset fields with the
// OpenAI defaults.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	return &OpenAIProvider{config: defaults{
		baseURL:   defaultOpenAIBaseURL,
		model:     defaultOpenAIModel,
		maxTokens: defaultOpenAIMaxTokens,
	}.apply(cfg)}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type openaiRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type openaiChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (r *openaiResponse) apiError() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Type + ": " + r.Error.Message
}

var errNoChoices = errors.New("openai: no choices in response")

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	in := openaiRequest{Model: p.config.Model, Messages: messages, MaxTokens: p.config.MaxTokens}
	headers := map[string]string{"Authorization": "Bearer " + p.config.APIKey}
	var out openaiResponse
	if err := postJSON(ctx, p.config, p.Name(), p.config.BaseURL+"/v1/chat/completions", headers, in, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, errNoChoices
	}
	return &Response{
		Content: out.Choices[0].Message.Content,
		Usage:   Usage{InputTokens: out.Usage.PromptTokens, OutputTokens: out.Usage.CompletionTokens},
	}, nil
}
