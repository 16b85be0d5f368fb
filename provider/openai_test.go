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

func TestOpenAIChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected Authorization=Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "gpt-4o" {
			t.Errorf("expected model gpt-4o, got %s", req.Model)
		}
		if len(req.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(req.Messages))
		}
		if req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected roles %s, %s", req.Messages[0].Role, req.Messages[1].Role)
		}

		resp := openaiResponse{
			ID: "chatcmpl-123",
			Choices: []openaiChoice{{
				Message:      Message{Role: RoleAssistant, Content: "Dear team, ..."},
				FinishReason: "stop",
			}},
			Usage: openaiUsage{PromptTokens: 15, CompletionTokens: 8},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL})
	resp, err := p.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "You write emails."},
		{Role: RoleUser, Content: "Status update"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Dear team, ..." {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Usage.InputTokens != 15 || resp.Usage.OutputTokens != 8 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
}

func TestOpenAIChatNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"id":"x","choices":[]}`)
	}))
	defer server.Close()

	p := NewOpenAIProvider(Config{APIKey: "k", BaseURL: server.URL})
	if _, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOpenAIChatAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = fmt.Fprint(w, `{"error":{"type":"rate_limit","message":"slow down"}}`)
	}))
	defer server.Close()

	p := NewOpenAIProvider(Config{APIKey: "k", BaseURL: server.URL})
	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}

func TestOpenAIDefaults(t *testing.T) {
	p := NewOpenAIProvider(Config{})
	if p.Name() != "openai" {
		t.Errorf("expected name 'openai', got %q", p.Name())
	}
	if p.config.Model != defaultOpenAIModel || p.config.BaseURL != defaultOpenAIBaseURL {
		t.Errorf("unexpected defaults %+v", p.config)
	}
}
