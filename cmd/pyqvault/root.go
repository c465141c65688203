package main

import (
	"github.com/spf13/cobra"

	"github.com/pyqvault/pyqvault/internal/api"
	"github.com/pyqvault/pyqvault/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "pyqvault",
	Short: "Extract structured questions from past-year exam paper PDFs",
	Long: `pyqvault extracts structured question banks from scanned past-year
exam papers using vision-capable LLMs.

The pipeline includes:
  - Duplicate detection by exam identity and content hash
  - AI metadata detection from the first page
  - Per-page question extraction with expected-range validation
  - Section aggregation with missing-question reporting
  - Cost tracking for every model call`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.pyqvault/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "pyqvault home directory (default: ~/.pyqvault)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
