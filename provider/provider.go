// Package provider defines the text-generation backends the assistant uses.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Role identifies the sender of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Response is a completed provider response.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Provider is a text-generation backend.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "gemini", "mock").
	Name() string

	// Chat sends the conversation and returns the complete response.
	Chat(ctx context.Context, messages []Message) (*Response, error)
}

// Config selects and configures a provider. Unset fields take the chosen
// backend's defaults.
type Config struct {
	Name       string
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int
	HTTPClient *http.Client
}

// New builds the provider named by cfg.Name. The mock provider is not
// available here; tests construct it directly.
func New(cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name != "" && cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key is required", name)
	}
	switch name {
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "gemini":
		return NewGeminiProvider(cfg), nil
	case "":
		return nil, fmt.Errorf("no provider configured")
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// systemAndRest splits the system prompt from the remaining messages.
func systemAndRest(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
