// Package main provides the keysieve command line.
package main

import (
	"fmt"
	"os"

	internal "github.com/ZanzyTHEbar/keysieve/sieve"
	"github.com/ZanzyTHEbar/keysieve/sieve/config"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	appConfig  *config.Config
	logger     zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "keysieve",
	Short: "keysieve - generate keypairs and sieve their addresses against a known set",
	Long: `keysieve ingests a list of known addresses into a local store, builds a
probabilistic filter over it, and then continuously generates candidate
keypairs on every core. Candidates that pass the filter are confirmed against
the store and confirmed hits are appended to the hit log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		appConfig = cfg
		logger = internal.NewLogger(cfg.Log.Level, cfg.Log.Pretty)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (default: search ., .., ~/.config/keysieve)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(hitsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		newConsole(os.Stdout, os.Stderr).Error("keysieve failed", err)
		os.Exit(1)
	}
}
