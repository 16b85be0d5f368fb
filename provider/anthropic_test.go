package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("expected x-api-key=test-key, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("expected anthropic-version=2023-06-01, got %s", r.Header.Get("anthropic-version"))
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != defaultAnthropicModel {
			t.Errorf("expected model %s, got %s", defaultAnthropicModel, req.Model)
		}
		if req.System != "You write reminders." {
			t.Errorf("expected system prompt, got %q", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Fatalf("expected 1 user message, got %+v", req.Messages)
		}

		resp := anthropicResponse{
			ID:   "msg_123",
			Type: "message",
			Content: []anthropicRespItem{
				{Type: "text", Text: "Hi Anna, "},
				{Type: "text", Text: "see you at 5."},
			},
			Usage: anthropicUsage{InputTokens: 15, OutputTokens: 8},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: server.URL})
	resp, err := p.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "You write reminders."},
		{Role: RoleUser, Content: "Message Anna"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Hi Anna, see you at 5." {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Usage.InputTokens != 15 || resp.Usage.OutputTokens != 8 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
}

func TestAnthropicChatAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprint(w, `{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer server.Close()

	p := NewAnthropicProvider(Config{APIKey: "bad-key", BaseURL: server.URL})
	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Hello"}})
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("expected error to mention 401, got: %v", err)
	}
}

func TestAnthropicDefaults(t *testing.T) {
	p := NewAnthropicProvider(Config{})
	if p.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got %q", p.Name())
	}
	if p.config.Model != defaultAnthropicModel {
		t.Errorf("expected default model %s, got %s", defaultAnthropicModel, p.config.Model)
	}
	if p.config.BaseURL != defaultAnthropicBaseURL {
		t.Errorf("expected default base URL %s, got %s", defaultAnthropicBaseURL, p.config.BaseURL)
	}
	if p.config.MaxTokens != defaultAnthropicMaxTokens {
		t.Errorf("expected default max tokens %d, got %d", defaultAnthropicMaxTokens, p.config.MaxTokens)
	}
}
