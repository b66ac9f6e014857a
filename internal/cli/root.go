package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"arb-route-alerts/internal/app"
	"arb-route-alerts/internal/config"
	"arb-route-alerts/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

// errQuietConfigFailure marks a configuration failure on a command that must
// not report an error exit. Scheduled runners re-invoke `scan` forever; a
// config typo should read as "nothing to do" there instead of flapping the
// whole schedule, matching the predecessor bot's exit-0-on-fatal behaviour.
// The long-running `run` daemon still fails loudly.
var errQuietConfigFailure = errors.New("configuration failure on quiet command")

var rootCmd = &cobra.Command{
	Use:   "arbwatcher",
	Short: "Watch multi-venue arbitrage opportunities and send gated alerts",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			if quietOnConfigFailure(cmd) {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return errQuietConfigFailure
			}
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

func quietOnConfigFailure(cmd *cobra.Command) bool {
	return cmd.Name() == scanCmd.Name()
}

// Execute runs the root command.
func Execute() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errQuietConfigFailure) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(simulateCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
