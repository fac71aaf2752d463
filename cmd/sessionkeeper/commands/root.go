// Package commands implements the CLI commands for sessionkeeper.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/sessionkeeper/internal/config"
	"github.com/jmylchreest/sessionkeeper/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "sessionkeeper",
	Short: "Keep authenticated portal sessions alive in headless Chrome",
	Long: `Sessionkeeper signs in to web portals with headless Chrome, gets past
challenge walls, and keeps each account's cookies between runs so later
logins can skip re-authentication.

Every account runs in its own isolated browser context.

Examples:
  # Log in to every configured account
  sessionkeeper scrape

  # One account, results as YAML
  sessionkeeper scrape --account acme --format yaml

  # Inspect and drop stored cookie jars
  sessionkeeper cookies list
  sessionkeeper cookies clear acme`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Init(logger.Options{
			Debug: viper.GetBool("debug"),
			Quiet: viper.GetBool("quiet"),
			JSON:  viper.GetBool("json_logs"),
		})
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.sessionkeeper.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.BoolP("quiet", "q", false, "suppress progress output")
	flags.Bool("json-logs", false, "log as JSON")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("json_logs", flags.Lookup("json-logs"))
}

func initConfig() {
	if err := config.Init(viper.GetViper(), viper.GetString("config")); err != nil {
		logError("%v", err)
	}
}

// loadConfig decodes and validates the active configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
