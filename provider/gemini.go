package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const (
	defaultGeminiBaseURL   = "https://generativelanguage.googleapis.com"
	defaultGeminiModel     = "gemini-2.0-flash"
	defaultGeminiMaxTokens = 1024
)

// GeminiProvider drafts reminder text with the Gemini generateContent API.
type GeminiProvider struct {
	config Config
}

// NewGeminiProvider returns a provider for cfg, filling unset fields with the
// Gemini defaults.
func NewGeminiProvider(cfg Config) *GeminiProvider {
	return &GeminiProvider{config: defaults{
		baseURL:   defaultGeminiBaseURL,
		model:     defaultGeminiModel,
		maxTokens: defaultGeminiMaxTokens,
	}.apply(cfg)}
}

func (p *GeminiProvider) Name() string { return "gemini" }

type geminiRequest struct {
	SystemInstruction *geminiContent        `json:"systemInstruction,omitempty"`
	Contents          []geminiContent       `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (r *geminiResponse) apiError() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Status + ": " + r.Error.Message
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.config.BaseURL, url.PathEscape(p.config.Model))
	headers := map[string]string{"x-goog-api-key": p.config.APIKey}
	var out geminiResponse
	if err := postJSON(ctx, p.config, p.Name(), endpoint, headers, p.buildRequest(messages), &out); err != nil {
		return nil, err
	}

	var text strings.Builder
	if len(out.Candidates) > 0 {
		for _, part := range out.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	return &Response{
		Content: text.String(),
		Usage: Usage{
			InputTokens:  out.UsageMetadata.PromptTokenCount,
			OutputTokens: out.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}

func (p *GeminiProvider) buildRequest(messages []Message) *geminiRequest {
	system, rest := systemAndRest(messages)
	req := &geminiRequest{
		GenerationConfig: geminiGenerationConfig{MaxOutputTokens: p.config.MaxTokens},
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	for _, msg := range rest {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: msg.Content}}})
	}
	return req
}
