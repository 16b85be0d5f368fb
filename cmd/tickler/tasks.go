package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/tickler/engine"
	"github.com/GoCodeAlone/tickler/recur"
	"github.com/GoCodeAlone/tickler/task"
)

// viewFlags select the tasks ls and mv operate on.
type viewFlags struct {
	view    string
	list    string
	unfiled bool
	search  string
}

func (v *viewFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&v.view, "view", "all", "one of "+viewNames())
	f.StringVarP(&v.list, "list", "l", "", "only tasks in this list (title or id)")
	f.BoolVar(&v.unfiled, "unfiled", false, "only tasks in no list")
	f.StringVarP(&v.search, "search", "s", "", "only titles containing this text")
}

func viewNames() string {
	names := make([]string, len(task.Views))
	for i, v := range task.Views {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}

func (v *viewFlags) filter(a *app) (task.Filter, error) {
	view, err := task.ParseView(v.view)
	if err != nil {
		return task.Filter{}, err
	}
	f := task.Filter{View: view, Search: v.search}
	switch {
	case v.unfiled:
		f.Scoped = true
	case v.list != "":
		id, err := a.svc.ResolveList(a.owner, v.list)
		if err != nil {
			return task.Filter{}, err
		}
		f.Scoped, f.List = true, &id
	}
	return f, nil
}

func lsCmd(opts *globalOptions) *cobra.Command {
	var (
		vf     viewFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(_ context.Context, a *app) error {
				f, err := vf.filter(a)
				if err != nil {
					return err
				}
				tasks := a.svc.View(a.owner, f)
				if asJSON {
					return printJSON(a.out, tasks)
				}
				return printTasks(a.out, tasks, a.svc.Lists(a.owner))
			})
		},
	}
	vf.bind(cmd)
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func showCmd(opts *globalOptions) *cobra.Command {
	var upcoming int
	cmd := &cobra.Command{
		Use:   "show <task>",
		Short: "Print one task as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(_ context.Context, a *app) error {
				id, err := a.svc.Resolve(a.owner, args[0])
				if err != nil {
					return err
				}
				t, _ := a.svc.Task(a.owner, id)
				if err := printJSON(a.out, t); err != nil {
					return err
				}
				if upcoming <= 0 || t.NextRun == nil || !t.Frequency.Recurring() {
					return nil
				}
				series, err := recur.Series(t.NextRun.Time, t.Frequency, upcoming)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, "upcoming:") //nolint:errcheck
				for _, at := range series {
					fmt.Fprintf(a.out, "  %s\n", at.Format("Mon 2006-01-02 15:04")) //nolint:errcheck
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&upcoming, "upcoming", "n", 0, "also list this many runs after the next one")
	return cmd
}

// taskFlags are the content fields shared by add and edit.
type taskFlags struct {
	description string
	typ         string
	frequency   string
	at          string
	priority    string
	flagged     bool
	list        string
}

func (tf *taskFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&tf.description, "desc", "d", "", "description")
	f.StringVarP(&tf.typ, "type", "t", "", "reminder, email, whatsapp, web_search, call or copy")
	f.StringVarP(&tf.frequency, "freq", "f", "", "once, daily, weekly or monthly")
	f.StringVar(&tf.at, "at", "", `due time, e.g. "2026-03-01 09:00" or "tomorrow 18:30"`)
	f.StringVarP(&tf.priority, "priority", "p", "", "none, low, medium, high or 0-3")
	f.BoolVar(&tf.flagged, "flag", false, "flag the task")
	f.StringVarP(&tf.list, "list", "l", "", "list title or id")
}

// patch turns the flags the user actually set into a Patch.
func (tf *taskFlags) patch(cmd *cobra.Command, a *app, now time.Time) (task.Patch, error) {
	var p task.Patch
	changed := cmd.Flags().Changed
	if changed("desc") {
		p.Description = &tf.description
	}
	if changed("type") {
		typ := task.Type(tf.typ)
		p.Type = &typ
	}
	if changed("freq") {
		freq := task.Frequency(tf.frequency)
		p.Frequency = &freq
	}
	if changed("at") {
		w, err := parseWhen(tf.at, now)
		if err != nil {
			return p, err
		}
		p.NextRun = &w
	}
	if changed("priority") {
		pr, err := parsePriority(tf.priority)
		if err != nil {
			return p, err
		}
		p.Priority = &pr
	}
	if changed("flag") {
		p.IsFlagged = &tf.flagged
	}
	if changed("list") {
		id, err := a.svc.ResolveList(a.owner, tf.list)
		if err != nil {
			return p, err
		}
		p.ListID = &id
	}
	return p, nil
}

func addCmd(opts *globalOptions) *cobra.Command {
	var tf taskFlags
	cmd := &cobra.Command{
		Use:   "add <title>...",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, a *app) error {
				p, err := tf.patch(cmd, a, time.Now())
				if err != nil {
					return err
				}
				var t task.Task
				t.Title = strings.Join(args, " ")
				t.ApplyPatch(p)
				created, err := a.svc.CreateTask(ctx, a.owner, t)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "added %s\n", created) //nolint:errcheck
				return nil
			})
		},
	}
	tf.bind(cmd)
	return cmd
}

func editCmd(opts *globalOptions) *cobra.Command {
	var (
		tf      taskFlags
		title   string
		noDate  bool
		unfile  bool
		lastRun string
	)
	cmd := &cobra.Command{
		Use:   "edit <task>",
		Short: "Change a task's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, a *app) error {
				id, err := a.svc.Resolve(a.owner, args[0])
				if err != nil {
					return err
				}
				now := time.Now()
				p, err := tf.patch(cmd, a, now)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("title") {
					p.Title = &title
				}
				if cmd.Flags().Changed("last-run") {
					w, err := parseWhen(lastRun, now)
					if err != nil {
						return err
					}
					p.LastRun = &w
				}
				p.ClearNextRun = noDate
				p.ClearList = unfile
				if p.IsEmpty() {
					return fmt.Errorf("nothing to change")
				}
				t, err := a.svc.UpdateTask(ctx, a.owner, id, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "updated %s\n", t) //nolint:errcheck
				return nil
			})
		},
	}
	tf.bind(cmd)
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().BoolVar(&noDate, "no-date", false, "remove the due time")
	cmd.Flags().BoolVar(&unfile, "unfile", false, "remove the task from its list")
	cmd.Flags().StringVar(&lastRun, "last-run", "", "record when the task was last done")
	cmd.MarkFlagsMutuallyExclusive("at", "no-date")
	cmd.MarkFlagsMutuallyExclusive("list", "unfile")
	return cmd
}

// taskAction builds a command that resolves one task and applies fn.
func taskAction(opts *globalOptions, use, short, verb string, fn func(ctx context.Context, a *app, id task.ID) (task.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, a *app) error {
				id, err := a.svc.Resolve(a.owner, args[0])
				if err != nil {
					return err
				}
				t, err := fn(ctx, a, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s %s\n", verb, t) //nolint:errcheck
				return nil
			})
		},
	}
}

func doneCmd(opts *globalOptions) *cobra.Command {
	return taskAction(opts, "done", "Complete a task; recurring tasks move to their next run", "completed",
		func(ctx context.Context, a *app, id task.ID) (task.Task, error) {
			t, err := a.svc.CompleteTask(ctx, a.owner, id)
			if err == nil && !t.Completed && t.NextRun != nil {
				fmt.Fprintf(a.out, "next run %s\n", t.NextRun.Format("2006-01-02 15:04")) //nolint:errcheck
			}
			return t, err
		})
}

func reopenCmd(opts *globalOptions) *cobra.Command {
	return taskAction(opts, "reopen", "Mark a completed task as not done", "reopened",
		func(ctx context.Context, a *app, id task.ID) (task.Task, error) {
			return a.svc.ReopenTask(ctx, a.owner, id)
		})
}

func flagCmd(opts *globalOptions) *cobra.Command {
	var off bool
	cmd := taskAction(opts, "flag", "Flag a task", "flag set on",
		func(ctx context.Context, a *app, id task.ID) (task.Task, error) {
			return a.svc.FlagTask(ctx, a.owner, id, !off)
		})
	cmd.Flags().BoolVar(&off, "off", false, "remove the flag")
	return cmd
}

func pauseCmd(opts *globalOptions) *cobra.Command {
	var off bool
	cmd := taskAction(opts, "pause", "Pause a task so it is never overdue", "pause set on",
		func(ctx context.Context, a *app, id task.ID) (task.Task, error) {
			return a.svc.PauseTask(ctx, a.owner, id, !off)
		})
	cmd.Flags().BoolVar(&off, "off", false, "resume the task")
	return cmd
}

func restoreCmd(opts *globalOptions) *cobra.Command {
	return taskAction(opts, "restore", "Bring a deleted task back", "restored",
		func(ctx context.Context, a *app, id task.ID) (task.Task, error) {
			return a.svc.RestoreTask(ctx, a.owner, id)
		})
}

// confirmed builds a command for the delete-style operations that ask first.
func confirmed(opts *globalOptions, use, short, verb string, fn func(ctx context.Context, a *app, id task.ID) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, a *app) error {
				id, err := a.svc.Resolve(a.owner, args[0])
				if err != nil {
					return err
				}
				ok, err := fn(ctx, a, id)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "cancelled") //nolint:errcheck
					return nil
				}
				fmt.Fprintf(a.out, "%s %s\n", verb, id) //nolint:errcheck
				return nil
			})
		},
	}
}

func rmCmd(opts *globalOptions) *cobra.Command {
	return confirmed(opts, "rm", "Move a task to the deleted view", "deleted",
		func(ctx context.Context, a *app, id task.ID) (bool, error) {
			return a.svc.DeleteTask(ctx, a.owner, id)
		})
}

func purgeCmd(opts *globalOptions) *cobra.Command {
	return confirmed(opts, "purge", "Permanently remove a deleted task", "purged",
		func(ctx context.Context, a *app, id task.ID) (bool, error) {
			return a.svc.PurgeTask(ctx, a.owner, id)
		})
}

func mvCmd(opts *globalOptions) *cobra.Command {
	var vf viewFlags
	cmd := &cobra.Command{
		Use:   "mv <task> <position>",
		Short: "Move a task to a 1-based position within a view",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := strconv.Atoi(args[1])
			if err != nil || to < 1 {
				return fmt.Errorf("invalid position %q", args[1])
			}
			return run(cmd, opts, func(ctx context.Context, a *app) error {
				id, err := a.svc.Resolve(a.owner, args[0])
				if err != nil {
					return err
				}
				f, err := vf.filter(a)
				if err != nil {
					return err
				}
				from := slices.IndexFunc(a.svc.View(a.owner, f), func(t task.Task) bool { return t.ID == id })
				if from < 0 {
					return fmt.Errorf("task %s is not in the %s view: %w", id, f.View, engine.ErrNotFound)
				}
				if _, err := a.svc.Reorder(ctx, a.owner, f, from, to-1); err != nil {
					return err
				}
				return printTasks(a.out, a.svc.View(a.owner, f), a.svc.Lists(a.owner))
			})
		},
	}
	vf.bind(cmd)
	return cmd
}

func suggestCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <task> [instruction...]",
		Short: "Ask the assistant to draft text for a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, a *app) error {
				id, err := a.svc.Resolve(a.owner, args[0])
				if err != nil {
					return err
				}
				text, err := a.svc.Suggest(ctx, a.owner, id, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, text) //nolint:errcheck
				return nil
			})
		},
	}
}

func actCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "act <task>",
		Short: "Print the link or text a task hands off to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(_ context.Context, a *app) error {
				id, err := a.svc.Resolve(a.owner, args[0])
				if err != nil {
					return err
				}
				act, err := a.svc.Action(a.owner, id)
				if err != nil {
					return err
				}
				switch {
				case act.URL != "":
					fmt.Fprintln(a.out, act.URL) //nolint:errcheck
				case act.Text != "":
					fmt.Fprintln(a.out, act.Text) //nolint:errcheck
				default:
					fmt.Fprintln(a.out, "this task has no action") //nolint:errcheck
				}
				return nil
			})
		},
	}
}
