package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/ui"
	"github.com/Aman-CERP/searchsync/internal/worker"
)

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Work off the index queue",
	}
	cmd.AddCommand(newWorkerRunCmd(opts))
	return cmd
}

func newWorkerRunCmd(opts *rootOptions) *cobra.Command {
	var (
		siteSel    string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Index one batch of pending items per site",
		Long: `Index up to --limit pending items for each selected site. Sites run in
parallel up to worker.concurrency; a site whose lock is held by another
worker is skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app) error {
				sites, err := a.selectSites(cmd.Context(), siteSel)
				if err != nil {
					return err
				}
				if limit <= 0 {
					limit = a.cfg.Worker.Limit
				}
				runs, runErr := a.worker.RunAll(cmd.Context(), sites, limit, a.cfg.Worker.Concurrency)

				out := cmd.OutOrStdout()
				renderer := ui.NewStatusRenderer(out, !ui.UseColor(out))
				summaries := runSummaries(runs)
				if jsonOutput {
					if err := renderer.RenderJSON(summaries); err != nil {
						return err
					}
				} else if err := renderer.RenderRuns(summaries); err != nil {
					return err
				}
				return runErr
			})
		},
	}

	cmd.Flags().StringVar(&siteSel, "site", "", "Root page id or domain (default all sites)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Items per site (default worker.limit)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSummaries(runs []worker.SiteRun) []ui.RunSummary {
	out := make([]ui.RunSummary, 0, len(runs))
	for _, r := range runs {
		s := ui.RunSummary{Domain: r.Site.Domain, Root: r.Site.RootPageID}
		if r.Result != nil {
			s.Fetched = r.Result.Fetched
			s.Indexed = r.Result.Indexed
			s.Failed = r.Result.Failed
			s.Skipped = r.Result.Skipped
			s.Swept = r.Result.Swept
			s.Cancelled = r.Result.Cancelled
			s.Duration = r.Result.Duration
		}
		switch {
		case errors.Is(r.Err, worker.ErrSiteLocked):
			s.Error = "skipped, locked by another worker"
		case r.Err != nil:
			s.Error = r.Err.Error()
		}
		out = append(out, s)
	}
	return out
}
