package cli

import (
	"os"

	"github.com/spf13/cobra"

	"arb-route-alerts/internal/app"
)

var (
	scanDemo  bool
	scanRunID string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single pass and exit",
	Long: `Run one sampling pass over all configured scopes and exit with code 0
even when the pass or the configuration fails, so external schedulers keep
invoking it.`,
	// Failures are reported through our own logging; cobra's error+usage
	// dump would defeat the quiet exit.
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		runID := scanRunID
		if runID == "" {
			runID = os.Getenv("GITHUB_RUN_ID")
		}
		return getApp().Scan(cmd.Context(), app.ScanOptions{
			Demo:  scanDemo,
			RunID: runID,
		})
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanDemo, "demo", false, "Send one demo alert regardless of gating (at most once per run id)")
	scanCmd.Flags().StringVar(&scanRunID, "run-id", "", "Identifier deduplicating demo sends across retries")
}
