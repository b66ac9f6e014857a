package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"arb-route-alerts/internal/app"
)

var exportFlags struct {
	from      string
	to        string
	pngPath   string
	csvPath   string
	maxPoints int
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the opportunity sample history as CSV and/or PNG",
	Long: `Export persisted per-tick route observations. The window defaults to the
most recent max-points ticks; --from/--to narrow it. Requires the Postgres
state backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath:   exportFlags.pngPath,
			CSVPath:   exportFlags.csvPath,
			MaxPoints: exportFlags.maxPoints,
		}

		var err error
		if opts.From, err = parseTimeFlag("from", exportFlags.from); err != nil {
			return err
		}
		if opts.To, err = parseTimeFlag("to", exportFlags.to); err != nil {
			return err
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value %q: %w", name, value, err)
	}
	return &ts, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportFlags.from, "from", "", "Window start (RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportFlags.to, "to", "", "Window end (RFC3339, exclusive, defaults to now)")
	exportCmd.Flags().StringVar(&exportFlags.pngPath, "png", "", "Write a profit-over-time chart to this path")
	exportCmd.Flags().StringVar(&exportFlags.csvPath, "csv", "", "Write the raw sample rows to this path")
	exportCmd.Flags().IntVar(&exportFlags.maxPoints, "max-points", 0, "Cap on exported points (0 uses export.max_data_points)")
}
