package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"arb-route-alerts/internal/statestore"
)

// Show prints recent opportunity samples, or recent alert emissions with
// --alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	_, pg, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if pg == nil {
		return errors.New("state.dsn not configured; history unavailable")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Alerts {
		return showAlerts(ctx, pg, opts.Limit)
	}
	return showSamples(ctx, pg, opts.Limit)
}

func showSamples(ctx context.Context, store statestore.SampleStore, limit int) error {
	samples, err := store.ListRecentSamples(ctx, limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tScope\tAsset\tRoute\tSize\tProfit%\tGas\tNoRoute")

	for _, sample := range samples {
		routeText := sample.BuyVenue + "->" + sample.SellVenue
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			sample.Bucket.UTC().Format(time.RFC3339),
			sample.Scope,
			sample.Asset,
			routeText,
			sample.Size.String(),
			sample.ProfitPct.StringFixed(3),
			sample.GasCost.StringFixed(3),
			sample.NoRoute,
		)
	}

	writer.Flush()
	return nil
}

func showAlerts(ctx context.Context, store statestore.AlertAuditStore, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sent (UTC)\tScope\tAsset\tRoute\tProfit%\tReason\tRecipients")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.SentAt.UTC().Format(time.RFC3339),
			alert.Scope,
			alert.Asset,
			alert.BuyVenue+"->"+alert.SellVenue,
			alert.ProfitPct.StringFixed(3),
			alert.Reason,
			sanitizeInline(strings.Join(alert.Recipients, ",")),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
