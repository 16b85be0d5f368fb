package assist

import (
	"fmt"
	"strings"

	"github.com/GoCodeAlone/tickler/provider"
	"github.com/GoCodeAlone/tickler/task"
)

const (
	searchSystem = "You help people find information quickly."
	writerSystem = "You are a personal business assistant."
	noteSystem   = "You are a concise personal assistant."
)

// Prompt returns the conversation sent to the provider for req.
func Prompt(req Request) []provider.Message {
	details := strings.TrimSpace(req.Description)
	if details == "" {
		details = "none"
	}

	var system string
	var b strings.Builder
	switch req.Type {
	case task.TypeWebSearch:
		system = searchSystem
		fmt.Fprintf(&b, "Task: %q.\nDetails: %q.\n", req.Title, details)
		b.WriteString("Goal: help find the information needed to get this done.\n")
		b.WriteString("Write the 3 most effective Google search queries for this task, ")
		b.WriteString("then give one short expert tip on what to pay attention to.")
	case task.TypeEmail, task.TypeWhatsApp:
		system = writerSystem
		channel := "Email"
		if req.Type == task.TypeWhatsApp {
			channel = "WhatsApp"
		}
		fmt.Fprintf(&b, "Write the text of a message to send via %s.\n", channel)
		fmt.Fprintf(&b, "Subject: %q.\nDetails: %q.\n\n", req.Title, details)
		b.WriteString("Requirements:\n")
		b.WriteString("1. Style: polite, businesslike, concise.\n")
		b.WriteString("2. No filler (do not write \"Here is your text\" or \"Subject:\").\n")
		b.WriteString("3. Output only the ready-to-send text.")
	default:
		system = noteSystem
		fmt.Fprintf(&b, "Task: %q.\nDetails: %q.\n", req.Title, details)
		b.WriteString("Write a short, helpful note on how to get this done.")
	}
	if instr := strings.TrimSpace(req.CustomInstruction); instr != "" {
		fmt.Fprintf(&b, "\n\nAdditional instruction: %s", instr)
	}

	return []provider.Message{
		{Role: provider.RoleSystem, Content: system},
		{Role: provider.RoleUser, Content: b.String()},
	}
}
