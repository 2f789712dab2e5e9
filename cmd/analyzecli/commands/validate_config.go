package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kirimku/coverage-analyzer/internal/coverage"
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load the analyzer configuration and report any problems",
	RunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := coverage.LoadFromPath(configPath)
		if err != nil {
			return err
		}

		log.Info().
			Str("config_version", loaded.Analyzer.ConfigVersion).
			Bool("use_llm_fallback", loaded.Analyzer.UseLLMFallback).
			Int("llm_max_items", loaded.Analyzer.LLMMaxItems).
			Int("keyword_mappings", len(loaded.Keyword.Mappings)).
			Int("component_synonyms", len(loaded.Component.ComponentSynonyms)).
			Msg("configuration loaded successfully")

		fmt.Printf("config OK: %s\n", configPath)
		return nil
	},
}
