package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/eventqueue"
	"github.com/Aman-CERP/searchsync/internal/ui"
)

func newEventsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Manage the deferred event queue",
		Long: `In delayed monitoring mode change events are stored instead of being
handled. 'events drain' hands them to the handlers oldest first.`,
	}

	cmd.AddCommand(newEventsDrainCmd(opts))
	cmd.AddCommand(newEventsListCmd(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "retry",
		Short: "Clear the error flag of failed events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app) error {
				n, err := a.events.ResetErrors(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "reset %d events\n", n)
				return err
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every queued event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app) error {
				n, err := a.events.RemoveAll(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d events\n", n)
				return err
			})
		},
	})

	return cmd
}

func newEventsDrainCmd(opts *rootOptions) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Process queued events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app) error {
				if limit <= 0 {
					limit = a.cfg.EventQueue.Limit
				}
				res, err := a.drainer.Run(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					return ui.NewStatusRenderer(out, true).RenderJSON(res)
				}
				_, err = fmt.Fprintf(out, "processed %d events, %d failed in %s\n",
					res.Processed, res.Failed, ui.FormatDuration(res.Duration))
				return err
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Events to process (default event_queue.limit)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// eventRow is the listing form of a queued event.
type eventRow struct {
	ID      int64     `json:"id"`
	EventID string    `json:"event_id"`
	Queued  time.Time `json:"queued"`
	Table   string    `json:"table"`
	UID     int       `json:"uid"`
	Error   string    `json:"error,omitempty"`
}

func newEventsListCmd(opts *rootOptions) *cobra.Command {
	var (
		errored    bool
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued events oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app) error {
				items, err := a.events.GetEventQueueItems(cmd.Context(), limit, true)
				if err != nil {
					return err
				}
				rows := listedEvents(items, errored)
				out := cmd.OutOrStdout()
				if jsonOutput {
					return ui.NewStatusRenderer(out, true).RenderJSON(rows)
				}
				if len(rows) == 0 {
					_, err := fmt.Fprintln(out, "no queued events")
					return err
				}
				for _, r := range rows {
					fmt.Fprintf(out, "%d %s %s:%d queued %s\n", r.ID, r.EventID, r.Table, r.UID, r.Queued.Format(time.RFC3339))
					if r.Error != "" {
						fmt.Fprintf(out, "    error: %s\n", r.Error)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&errored, "errored", false, "Only failed events")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of events")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func listedEvents(items []eventqueue.Item, erroredOnly bool) []eventRow {
	rows := []eventRow{}
	for _, it := range items {
		if erroredOnly && !it.Error {
			continue
		}
		r := eventRow{
			ID:      it.ID,
			EventID: it.EventID,
			Queued:  time.Unix(it.Tstamp, 0),
			Table:   it.Table,
			UID:     it.UID,
		}
		if it.Error {
			r.Error = it.ErrorMessage
		}
		rows = append(rows, r)
	}
	return rows
}
