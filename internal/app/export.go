package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"arb-route-alerts/internal/statestore"
)

// Export renders historical opportunity samples as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	_, pg, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if pg == nil {
		return errors.New("state.dsn not configured; sample history unavailable")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := pg.ListSamplesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no samples found for export window")
		return nil
	}

	downsampled := downsampleSamples(samples, opts.MaxPoints)
	a.Logger.Info().Int("total", len(samples)).Int("exported", len(downsampled)).Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSamples(samples []statestore.OpportunitySample, max int) []statestore.OpportunitySample {
	if max <= 0 || len(samples) <= max {
		return samples
	}

	result := make([]statestore.OpportunitySample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, samples []statestore.OpportunitySample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"bucket_ts", "scope", "asset", "buy_venue", "sell_venue", "trade_size", "profit_pct", "gas_cost", "no_route"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		noRoute := "false"
		if sample.NoRoute {
			noRoute = "true"
		}
		record := []string{
			sample.Bucket.Format(time.RFC3339),
			sample.Scope,
			sample.Asset,
			sample.BuyVenue,
			sample.SellVenue,
			sample.Size.String(),
			sample.ProfitPct.String(),
			sample.GasCost.String(),
			noRoute,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// writeSamplesPNG charts profit percentage over time, one series per
// scope:asset pair. No-route ticks are plotted as zero so gaps stay visible
// without breaking the line.
func writeSamplesPNG(path string, samples []statestore.OpportunitySample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	type point struct {
		t time.Time
		v float64
	}
	grouped := make(map[string][]point)
	for _, sample := range samples {
		key := sample.Scope + ":" + sample.Asset
		v := 0.0
		if !sample.NoRoute {
			v = sample.ProfitPct.InexactFloat64()
		}
		grouped[key] = append(grouped[key], point{t: sample.Bucket, v: v})
	}

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}

	series := make([]chart.Series, 0, len(names))
	for _, name := range names {
		points := grouped[name]
		x := make([]time.Time, len(points))
		y := make([]float64, len(points))
		for i, p := range points {
			x[i] = p.t
			y[i] = p.v
		}
		series = append(series, chart.TimeSeries{
			Name:    name,
			XValues: x,
			YValues: y,
		})
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Profit (%)",
			ValueFormatter: pctFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
