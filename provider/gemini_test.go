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

func TestGeminiChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.0-flash:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("expected x-goog-api-key=test-key, got %s", r.Header.Get("x-goog-api-key"))
		}

		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "Be brief." {
			t.Errorf("expected system instruction, got %+v", req.SystemInstruction)
		}
		if len(req.Contents) != 2 {
			t.Fatalf("expected 2 contents, got %d", len(req.Contents))
		}
		if req.Contents[0].Role != "user" || req.Contents[1].Role != "model" {
			t.Errorf("unexpected roles %s, %s", req.Contents[0].Role, req.Contents[1].Role)
		}

		_, _ = fmt.Fprint(w, `{
			"candidates":[{"content":{"role":"model","parts":[{"text":"1. best plumber near me"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":6}
		}`)
	}))
	defer server.Close()

	p := NewGeminiProvider(Config{APIKey: "test-key", BaseURL: server.URL})
	resp, err := p.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "Be brief."},
		{Role: RoleUser, Content: "Find a plumber"},
		{Role: RoleAssistant, Content: "Sure."},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "1. best plumber near me" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 6 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
}

func TestGeminiChatAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprint(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	}))
	defer server.Close()

	p := NewGeminiProvider(Config{APIKey: "bad", BaseURL: server.URL})
	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err == nil || !strings.Contains(err.Error(), "API key not valid") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestGeminiChatNoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer server.Close()

	p := NewGeminiProvider(Config{APIKey: "k", BaseURL: server.URL})
	resp, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "" {
		t.Errorf("expected empty content, got %q", resp.Content)
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"anthropic", "openai", "gemini", "Gemini"} {
		p, err := New(Config{Name: name, APIKey: "k"})
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		if p.Name() != strings.ToLower(name) {
			t.Errorf("New(%s).Name() = %s", name, p.Name())
		}
	}
	if _, err := New(Config{Name: "gemini"}); err == nil {
		t.Error("expected error for missing api key")
	}
	if _, err := New(Config{Name: "copilot", APIKey: "k"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty provider")
	}
}
