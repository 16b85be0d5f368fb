// Package action turns a task into the external hand-off its type implies:
// a mail draft, a WhatsApp share, a web search, a phone call or clipboard text.
package action

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/GoCodeAlone/tickler/task"
)

// Kind is the channel an action goes through.
type Kind string

const (
	KindNone      Kind = "none"
	KindURL       Kind = "url"
	KindClipboard Kind = "clipboard"
)

// Action is the hand-off for one task.
type Action struct {
	Kind Kind   `json:"kind"`
	URL  string `json:"url,omitempty"`
	Text string `json:"text,omitempty"`
}

// Build returns the action for t.
func Build(t task.Task) (Action, error) {
	body := t.Title
	if d := strings.TrimSpace(t.Description); d != "" {
		body = t.Title + "\n" + d
	}

	switch t.Type {
	case task.TypeEmail:
		q := "subject=" + escape(t.Title) + "&body=" + escape(body)
		return Action{Kind: KindURL, URL: "mailto:?" + q}, nil
	case task.TypeWhatsApp:
		return Action{Kind: KindURL, URL: "https://wa.me/?text=" + escape(body)}, nil
	case task.TypeWebSearch:
		return Action{Kind: KindURL, URL: "https://www.google.com/search?q=" + url.QueryEscape(t.Title)}, nil
	case task.TypeCall:
		number := PhoneNumber(t.Description)
		if number == "" {
			number = PhoneNumber(t.Title)
		}
		if number == "" {
			return Action{}, fmt.Errorf("call %s: no phone number in title or description", t.ID)
		}
		return Action{Kind: KindURL, URL: "tel:" + number}, nil
	case task.TypeCopy:
		return Action{Kind: KindClipboard, Text: body}, nil
	case task.TypeReminder, "":
		return Action{Kind: KindNone}, nil
	default:
		return Action{}, fmt.Errorf("no action for task type %q", t.Type)
	}
}

// PhoneNumber extracts the digits of s, keeping a leading plus sign.
func PhoneNumber(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	if b.String() == "+" {
		return ""
	}
	return b.String()
}

// escape percent-encodes s for mailto and share links, where spaces must
// be %20 rather than +.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
