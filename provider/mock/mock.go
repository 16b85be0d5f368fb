// Package mock provides a scripted provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/GoCodeAlone/tickler/provider"
)

const defaultResponse = "Reminder noted."

// MockProvider implements provider.Provider for testing. It returns scripted
// responses and records the conversations it was sent.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	idx       int
	err       error
	calls     [][]provider.Message
}

// New creates a MockProvider that cycles through the given responses.
func New(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

// Failing creates a MockProvider whose every call returns err.
func Failing(err error) *MockProvider {
	return &MockProvider{err: err}
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string { return "mock" }

// Chat returns the next scripted response, cycling through the queue.
func (m *MockProvider) Chat(_ context.Context, messages []provider.Message) (*provider.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]provider.Message(nil), messages...))
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &provider.Response{Content: defaultResponse}, nil
	}
	resp := m.responses[m.idx%len(m.responses)]
	m.idx++
	return &provider.Response{Content: resp}, nil
}

// Calls returns every conversation sent so far.
func (m *MockProvider) Calls() [][]provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]provider.Message(nil), m.calls...)
}
