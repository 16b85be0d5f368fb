package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/tickler/task"
)

func listsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Show and manage lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(_ context.Context, a *app) error {
				counts := make(map[task.ID]int)
				for _, t := range a.svc.View(a.owner, task.Filter{}) {
					if t.ListID != nil {
						counts[*t.ListID]++
					}
				}
				tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tOPEN\t") //nolint:errcheck
				for _, l := range a.svc.Lists(a.owner) {
					fmt.Fprintf(tw, "%s\t%s\t%d\t\n", shortID(l.ID), l.Title, counts[l.ID]) //nolint:errcheck
				}
				return tw.Flush()
			})
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <title>...",
			Short: "Create a list",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, opts, func(ctx context.Context, a *app) error {
					l, err := a.svc.CreateList(ctx, a.owner, strings.Join(args, " "))
					if err != nil {
						return err
					}
					fmt.Fprintf(a.out, "added list %s %q\n", l.ID, l.Title) //nolint:errcheck
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "rename <list> <title>...",
			Short: "Rename a list",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, opts, func(ctx context.Context, a *app) error {
					id, err := a.svc.ResolveList(a.owner, args[0])
					if err != nil {
						return err
					}
					l, err := a.svc.RenameList(ctx, a.owner, id, strings.Join(args[1:], " "))
					if err != nil {
						return err
					}
					fmt.Fprintf(a.out, "renamed list %s to %q\n", l.ID, l.Title) //nolint:errcheck
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "rm <list>",
			Short: "Delete a list; its tasks become unfiled",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, opts, func(ctx context.Context, a *app) error {
					id, err := a.svc.ResolveList(a.owner, args[0])
					if err != nil {
						return err
					}
					ok, err := a.svc.DeleteList(ctx, a.owner, id)
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(a.out, "cancelled") //nolint:errcheck
						return nil
					}
					fmt.Fprintf(a.out, "deleted list %s\n", id) //nolint:errcheck
					return nil
				})
			},
		},
	)
	return cmd
}

// templateFlags are the content fields of a template.
type templateFlags struct {
	description string
	typ         string
}

func (tf *templateFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&tf.description, "desc", "d", "", "description")
	cmd.Flags().StringVarP(&tf.typ, "type", "t", "", "task type for tasks made from it")
}

func templatesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"tpl"},
		Short:   "Show and manage templates",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(_ context.Context, a *app) error {
				tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tTYPE\t") //nolint:errcheck
				for _, tp := range a.svc.Templates(a.owner) {
					fmt.Fprintf(tw, "%s\t%s\t%s\t\n", shortID(tp.ID), tp.Title, tp.Type) //nolint:errcheck
				}
				return tw.Flush()
			})
		},
	}

	var addFlags templateFlags
	add := &cobra.Command{
		Use:   "add <title>...",
		Short: "Create a template",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, a *app) error {
				tp, err := a.svc.CreateTemplate(ctx, a.owner, task.Template{
					Title:       strings.Join(args, " "),
					Description: addFlags.description,
					Type:        task.Type(addFlags.typ),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "added template %s %q\n", tp.ID, tp.Title) //nolint:errcheck
				return nil
			})
		},
	}
	addFlags.bind(add)

	var (
		editFlags templateFlags
		editTitle string
	)
	edit := &cobra.Command{
		Use:   "edit <template>",
		Short: "Change a template's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, a *app) error {
				id, err := a.svc.ResolveTemplate(a.owner, args[0])
				if err != nil {
					return err
				}
				var cur task.Template
				for _, tp := range a.svc.Templates(a.owner) {
					if tp.ID == id {
						cur = tp
					}
				}
				if cmd.Flags().Changed("title") {
					cur.Title = editTitle
				}
				if cmd.Flags().Changed("desc") {
					cur.Description = editFlags.description
				}
				if cmd.Flags().Changed("type") {
					cur.Type = task.Type(editFlags.typ)
				}
				tp, err := a.svc.UpdateTemplate(ctx, a.owner, id, cur)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "updated template %s %q\n", tp.ID, tp.Title) //nolint:errcheck
				return nil
			})
		},
	}
	editFlags.bind(edit)
	edit.Flags().StringVar(&editTitle, "title", "", "new title")

	rm := &cobra.Command{
		Use:   "rm <template>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, a *app) error {
				id, err := a.svc.ResolveTemplate(a.owner, args[0])
				if err != nil {
					return err
				}
				ok, err := a.svc.DeleteTemplate(ctx, a.owner, id)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "cancelled") //nolint:errcheck
					return nil
				}
				fmt.Fprintf(a.out, "deleted template %s\n", id) //nolint:errcheck
				return nil
			})
		},
	}

	var at string
	use := &cobra.Command{
		Use:   "use <template>",
		Short: "Create a task from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, a *app) error {
				id, err := a.svc.ResolveTemplate(a.owner, args[0])
				if err != nil {
					return err
				}
				var next *task.Wall
				if at != "" {
					w, err := parseWhen(at, time.Now())
					if err != nil {
						return err
					}
					next = &w
				}
				t, err := a.svc.TaskFromTemplate(ctx, a.owner, id, next)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "added %s\n", t) //nolint:errcheck
				return nil
			})
		},
	}
	use.Flags().StringVar(&at, "at", "", "due time for the new task")

	cmd.AddCommand(add, edit, rm, use)
	return cmd
}
