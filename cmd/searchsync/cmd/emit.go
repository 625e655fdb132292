package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/event"
)

// eventFactories builds each change event variant from command line input.
var eventFactories = map[string]func(uid int, table string, fields event.Fields, groupsRemoved bool) event.ChangeEvent{
	event.TypeRecordUpdated: func(uid int, table string, f event.Fields, _ bool) event.ChangeEvent {
		return event.NewRecordUpdated(uid, table, f)
	},
	event.TypeRecordDeleted: func(uid int, table string, _ event.Fields, _ bool) event.ChangeEvent {
		return event.NewRecordDeleted(uid, table)
	},
	event.TypeRecordMoved: func(uid int, table string, _ event.Fields, _ bool) event.ChangeEvent {
		return event.NewRecordMoved(uid, table)
	},
	event.TypePageMoved: func(uid int, _ string, _ event.Fields, _ bool) event.ChangeEvent {
		return event.NewPageMoved(uid)
	},
	event.TypeVersionSwapped: func(uid int, table string, _ event.Fields, _ bool) event.ChangeEvent {
		return event.NewVersionSwapped(uid, table)
	},
	event.TypeContentElementDeleted: func(uid int, _ string, _ event.Fields, _ bool) event.ChangeEvent {
		return event.NewContentElementDeleted(uid)
	},
	event.TypeRecordGarbageCheck: func(uid int, table string, f event.Fields, removed bool) event.ChangeEvent {
		return event.NewRecordGarbageCheck(uid, table, f, removed)
	},
}

func eventTypeNames() []string {
	names := make([]string, 0, len(eventFactories))
	for name := range eventFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newEmitCmd(opts *rootOptions) *cobra.Command {
	var (
		table         string
		uid           int
		fieldArgs     []string
		force         bool
		groupsRemoved bool
	)

	cmd := &cobra.Command{
		Use:   "emit <type>",
		Short: "Dispatch a change event",
		Long: fmt.Sprintf(`Dispatch a change event as if the CMS had reported it. The monitoring
type decides whether the event is handled now, queued or dropped; --force
handles it immediately in every mode.

Types: %s`, strings.Join(eventTypeNames(), ", ")),
		Example: `  searchsync emit record_updated --table pages --uid 12 --field hidden=0
  searchsync emit record_deleted --table tx_news --uid 7 --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			factory, ok := eventFactories[args[0]]
			if !ok {
				return fmt.Errorf("unknown event type %q (expected one of %s)", args[0], strings.Join(eventTypeNames(), ", "))
			}
			if uid <= 0 {
				return fmt.Errorf("--uid must be positive")
			}
			fields, err := parseFields(fieldArgs)
			if err != nil {
				return err
			}
			if table == "" {
				table = event.PageTable
			}
			ev := factory(uid, table, fields, groupsRemoved)
			ev.ForceImmediateProcessing(force)

			return opts.withApp(func(a *app) error {
				outcome := "ignored"
				a.router.Notifications().AddListener("cli.outcome", func(_ context.Context, v any) error {
					switch v.(type) {
					case event.ProcessingFinished:
						outcome = "processed"
					case event.QueuingFinished:
						outcome = "queued"
					}
					return nil
				})
				if err := a.dispatcher.Dispatch(cmd.Context(), ev); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s:%d %s\n", args[0], ev.Table(), ev.UID(), outcome)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "Record table (default pages)")
	cmd.Flags().IntVar(&uid, "uid", 0, "Record uid")
	cmd.Flags().StringArrayVar(&fieldArgs, "field", nil, "Updated field as name=value, repeatable")
	cmd.Flags().BoolVar(&force, "force", false, "Handle immediately regardless of monitoring type")
	cmd.Flags().BoolVar(&groupsRemoved, "groups-removed", false, "Frontend groups were removed (record_garbage_check)")

	return cmd
}

// parseFields turns name=value pairs into event fields. Integer values are
// stored as numbers.
func parseFields(args []string) (event.Fields, error) {
	fields := event.Fields{}
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --field %q (expected name=value)", arg)
		}
		if n, err := strconv.Atoi(value); err == nil {
			fields[name] = n
		} else {
			fields[name] = value
		}
	}
	return fields, nil
}
