// Package commands implements the analyzecli Cobra command tree:
// analyze runs the coverage pipeline against a claim file, and
// validate-config checks a configuration bundle loads cleanly.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kirimku/coverage-analyzer/pkg/logger"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "analyzecli",
	Short: "analyzecli runs the warranty coverage analyzer pipeline",
	Long:  "analyzecli adjudicates repair-claim line items against a warranty policy's coverage rules, part catalog, and LLM fallback.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		logger.Init()
		log.Info().Str("version", Version).Str("commit", Commit).Str("build_date", BuildDate).Msg("analyzecli starting")
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/analyzer_config.yaml", "path to the analyzer configuration file")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(validateConfigCmd)
}
