package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	dataDir    string
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "matchcrawl",
	Short: "A credential-refreshing crawler for a dating-platform API",
	Long: `matchcrawl walks the user-discovery feed of a dating platform,
persists discovered users, and backfills detailed profile data for each of
them, keeping its bearer credential fresh across multi-hour unattended runs.

Features:
  - Automatic token refresh with a shared single-flight exchange
  - Resumable, idempotent persistence (sqlite, first-seen wins)
  - Concurrent discovery and profile-backfill loops
  - Randomized politeness delays and request rate capping
  - Optional randomized like/pass interactions with a durable ledger`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .matchcrawl.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding the token file, database and ledger")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log errors")

	rootCmd.SetVersionTemplate(`matchcrawl {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags collects the persistent flags into the config merge map
func globalFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if quiet {
		flags["log-level"] = "error"
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if dataDir != "" {
		flags["data-dir"] = dataDir
	}
	return flags
}
