package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/GoCodeAlone/tickler/provider"
)

func TestMockProvider_Name(t *testing.T) {
	m := New()
	if got := m.Name(); got != "mock" {
		t.Errorf("Name() = %q, want %q", got, "mock")
	}
}

func TestMockProvider_Chat_DefaultResponse(t *testing.T) {
	m := New()
	resp, err := m.Chat(context.Background(), nil)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Content != defaultResponse {
		t.Errorf("Chat() content = %q, want %q", resp.Content, defaultResponse)
	}
}

func TestMockProvider_Chat_CyclesResponses(t *testing.T) {
	m := New("first", "second", "third")

	want := []string{"first", "second", "third", "first"}
	for i, w := range want {
		resp, err := m.Chat(context.Background(), nil)
		if err != nil {
			t.Fatalf("Chat() call %d error = %v", i, err)
		}
		if resp.Content != w {
			t.Errorf("Chat() call %d = %q, want %q", i, resp.Content, w)
		}
	}
}

func TestMockProvider_RecordsCalls(t *testing.T) {
	m := New("hello")
	msgs := []provider.Message{{Role: provider.RoleUser, Content: "hi"}}
	if _, err := m.Chat(context.Background(), msgs); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	calls := m.Calls()
	if len(calls) != 1 || calls[0][0].Content != "hi" {
		t.Errorf("Calls() = %+v", calls)
	}
}

func TestMockProvider_Failing(t *testing.T) {
	boom := errors.New("offline")
	m := Failing(boom)
	if _, err := m.Chat(context.Background(), nil); !errors.Is(err, boom) {
		t.Errorf("Chat() error = %v, want %v", err, boom)
	}
}
