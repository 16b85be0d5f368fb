// Package assist drafts text for a task: search queries for web_search
// tasks, a ready-to-send message for email and whatsapp tasks. Its output is
// advisory and never written back to a task.
package assist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/tickler/provider"
	"github.com/GoCodeAlone/tickler/task"
)

// ErrEmptyResult is returned when the backend produced no text.
var ErrEmptyResult = errors.New("assistant returned no text")

// Request describes the task to draft text for.
type Request struct {
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Type              task.Type `json:"type"`
	CustomInstruction string    `json:"custom_instruction,omitempty"`
}

// RequestFor builds a Request from a task.
func RequestFor(t task.Task, instruction string) Request {
	return Request{
		Title:             t.Title,
		Description:       t.Description,
		Type:              t.Type,
		CustomInstruction: instruction,
	}
}

// Generator produces assistant text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Assistant is a Generator backed by a chat provider.
type Assistant struct {
	provider provider.Provider
}

// New returns an Assistant that uses p.
func New(p provider.Provider) *Assistant {
	return &Assistant{provider: p}
}

// Generate builds the prompt for req and returns the provider's text.
func (a *Assistant) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Title) == "" {
		return "", &task.ValidationError{Field: "title", Reason: "required"}
	}
	resp, err := a.provider.Chat(ctx, Prompt(req))
	if err != nil {
		return "", fmt.Errorf("assist via %s: %w", a.provider.Name(), err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}

var _ Generator = (*Assistant)(nil)
