package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/tickler/action"
	"github.com/GoCodeAlone/tickler/assist"
	"github.com/GoCodeAlone/tickler/task"
)

// View returns owner's tasks matching f in display order. A zero f.Now uses
// the service clock.
func (s *Service) View(owner string, f task.Filter) []task.Task {
	if f.Now.IsZero() {
		f.Now = s.now()
	}
	return f.Apply(s.cache.Tasks(owner))
}

func (s *Service) Task(owner string, id task.ID) (task.Task, bool) {
	return s.cache.Task(owner, id)
}

func (s *Service) Lists(owner string) []task.List { return s.cache.Lists(owner) }

func (s *Service) Templates(owner string) []task.Template { return s.cache.Templates(owner) }

// Resolve finds the task a user typed: its exact id, or a unique prefix of
// its remote id or pending token.
func (s *Service) Resolve(owner, ref string) (task.ID, error) {
	tasks := s.cache.Tasks(owner)
	ids := make([]task.ID, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return resolve("task", ids, ref)
}

func (s *Service) ResolveList(owner, ref string) (task.ID, error) {
	lists := s.cache.Lists(owner)
	ids := make([]task.ID, 0, len(lists))
	for _, l := range lists {
		if strings.EqualFold(l.Title, ref) {
			return l.ID, nil
		}
		ids = append(ids, l.ID)
	}
	return resolve("list", ids, ref)
}

func (s *Service) ResolveTemplate(owner, ref string) (task.ID, error) {
	templates := s.cache.Templates(owner)
	ids := make([]task.ID, 0, len(templates))
	for _, tp := range templates {
		if strings.EqualFold(tp.Title, ref) {
			return tp.ID, nil
		}
		ids = append(ids, tp.ID)
	}
	return resolve("template", ids, ref)
}

func resolve(kind string, ids []task.ID, ref string) (task.ID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return task.ID{}, fmt.Errorf("%s %q: %w", kind, ref, ErrNotFound)
	}
	var matches []task.ID
	for _, id := range ids {
		if id.String() == ref {
			return id, nil
		}
		if strings.HasPrefix(id.String(), ref) || (id.IsPending() && strings.HasPrefix(id.Token(), ref)) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return task.ID{}, fmt.Errorf("%s %q: %w", kind, ref, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return task.ID{}, fmt.Errorf("%s %q matches %d records: %w", kind, ref, len(matches), ErrAmbiguous)
	}
}

// Suggest asks the assistant for text to help with the task. The result is
// advisory and never stored.
func (s *Service) Suggest(ctx context.Context, owner string, id task.ID, instruction string) (string, error) {
	if s.assistant == nil {
		return "", ErrNoAssistant
	}
	t, ok := s.cache.Task(owner, id)
	if !ok {
		return "", fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	text, err := s.assistant.Generate(ctx, assist.RequestFor(t, instruction))
	if err != nil {
		s.logger.Warn("suggestion failed", "owner", owner, "id", id.String(), "error", err)
		return "", err
	}
	return text, nil
}

// Action returns the external hand-off for the task.
func (s *Service) Action(owner string, id task.ID) (action.Action, error) {
	t, ok := s.cache.Task(owner, id)
	if !ok {
		return action.Action{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return action.Build(t)
}
