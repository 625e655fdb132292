package worker

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/searchsync/internal/site"
)

// SiteRun is the outcome of one site within RunAll.
type SiteRun struct {
	Site   site.Site
	Result *RunResult
	Err    error
}

// RunAll runs every site with at most concurrency runs in parallel. A failing
// site does not stop the others; their errors are joined.
func (w *Worker) RunAll(ctx context.Context, sites []site.Site, limit, concurrency int) ([]SiteRun, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	runs := make([]SiteRun, len(sites))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, s := range sites {
		g.Go(func() error {
			runs[i].Site = s
			if ctx.Err() != nil {
				runs[i].Err = ctx.Err()
				return nil
			}
			runs[i].Result, runs[i].Err = w.Run(ctx, s, limit)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range runs {
		if r.Err != nil && !errors.Is(r.Err, ErrSiteLocked) {
			errs = append(errs, fmt.Errorf("site %s: %w", r.Site.Domain, r.Err))
		}
	}
	return runs, errors.Join(errs...)
}
