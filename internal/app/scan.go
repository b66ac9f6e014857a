package app

import (
	"context"
	"fmt"
	"time"

	"arb-route-alerts/internal/service"
)

// Scan runs a single pass and returns. Errors are logged but swallowed so
// that cron-style callers do not mark the whole schedule as failed over one
// bad tick; the next invocation simply tries again.
func (a *App) Scan(ctx context.Context, opts ScanOptions) error {
	states, pg, closeStore, err := a.openStore(ctx)
	if err != nil {
		a.Logger.Error().Err(err).Msg("scan aborted: state backend unavailable")
		return nil
	}
	if closeStore != nil {
		defer closeStore()
	}

	runID := opts.RunID
	if opts.Demo && runID == "" {
		runID = fmt.Sprintf("manual-%d", time.Now().UTC().Unix())
	}

	svc := a.newService(nil, a.newQuoteSource(), states, pg)

	bucket := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	if err := svc.ProcessTick(ctx, bucket, service.TickOptions{Demo: opts.Demo, RunID: runID}); err != nil {
		a.Logger.Error().Err(err).Time("bucket", bucket).Msg("scan tick failed")
	}
	return nil
}
