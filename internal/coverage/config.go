package coverage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ComponentConfig is the customer-specific component vocabulary,
// loaded once per analyzer from a sibling *_component_config.yaml and
// never mutated afterward.
type ComponentConfig struct {
	ComponentSynonyms                map[string][]string           `yaml:"component_synonyms"`
	CategoryAliases                  map[string][]string           `yaml:"category_aliases"`
	RepairContextKeywords            map[string]RepairKeywordEntry `yaml:"repair_context_keywords"`
	DistributionCatchAllComponents   map[string]struct{}           `yaml:"-"`
	DistributionCatchAllKeywords     []string                      `yaml:"distribution_catch_all_keywords"`
	GasketSealIndicators             map[string]struct{}           `yaml:"-"`
	AncillaryKeywords                map[string]struct{}           `yaml:"-"`
	AdditionalPolicyParts            map[string][]string           `yaml:"additional_policy_parts"`
}

// RepairKeywordEntry maps a keyword to its (component, category) pair.
type RepairKeywordEntry struct {
	Component string `yaml:"component"`
	Category  string `yaml:"category"`
}

// componentConfigYAML mirrors the on-disk shape before sets are
// materialized from the raw string lists.
type componentConfigYAML struct {
	ComponentSynonyms              map[string][]string            `yaml:"component_synonyms"`
	CategoryAliases                map[string][]string            `yaml:"category_aliases"`
	RepairContextKeywords          map[string]RepairKeywordEntry   `yaml:"repair_context_keywords"`
	DistributionCatchAllComponents []string                        `yaml:"distribution_catch_all_components"`
	DistributionCatchAllKeywords   []string                        `yaml:"distribution_catch_all_keywords"`
	GasketSealIndicators           []string                        `yaml:"gasket_seal_indicators"`
	AncillaryKeywords              []string                        `yaml:"ancillary_keywords"`
	AdditionalPolicyParts          map[string][]string             `yaml:"additional_policy_parts"`
}

// DefaultComponentConfig returns empty defaults (no vocabulary
// loaded), mirroring ComponentConfig.default() in the original.
func DefaultComponentConfig() ComponentConfig {
	return ComponentConfig{
		ComponentSynonyms:              map[string][]string{},
		CategoryAliases:                map[string][]string{},
		RepairContextKeywords:          map[string]RepairKeywordEntry{},
		DistributionCatchAllComponents: map[string]struct{}{},
		DistributionCatchAllKeywords:   nil,
		GasketSealIndicators:           map[string]struct{}{},
		AncillaryKeywords:              map[string]struct{}{},
		AdditionalPolicyParts:          map[string][]string{},
	}
}

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

// ParseComponentConfig builds a ComponentConfig from raw YAML bytes.
func ParseComponentConfig(data []byte) (ComponentConfig, error) {
	var raw componentConfigYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return ComponentConfig{}, NewConfigError("parsing component config", err)
	}
	cfg := DefaultComponentConfig()
	if raw.ComponentSynonyms != nil {
		cfg.ComponentSynonyms = raw.ComponentSynonyms
	}
	if raw.CategoryAliases != nil {
		cfg.CategoryAliases = raw.CategoryAliases
	}
	if raw.RepairContextKeywords != nil {
		cfg.RepairContextKeywords = raw.RepairContextKeywords
	}
	cfg.DistributionCatchAllComponents = toSet(raw.DistributionCatchAllComponents)
	cfg.DistributionCatchAllKeywords = raw.DistributionCatchAllKeywords
	cfg.GasketSealIndicators = toSet(raw.GasketSealIndicators)
	cfg.AncillaryKeywords = toSet(raw.AncillaryKeywords)
	if raw.AdditionalPolicyParts != nil {
		cfg.AdditionalPolicyParts = raw.AdditionalPolicyParts
	}
	return cfg, nil
}

// AnalyzerConfig configures the top-level pipeline behavior.
type AnalyzerConfig struct {
	KeywordMinConfidence    float64
	UseLLMFallback           bool
	LLMMaxItems              int
	LLMMaxConcurrent         int
	ConfigVersion            string
	DefaultCoveragePercent   *float64
	UseLLMPrimaryRepair      bool
	NominalPriceThreshold    float64
}

// DefaultAnalyzerConfig mirrors AnalyzerConfig()'s dataclass defaults.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		KeywordMinConfidence:  0.80,
		UseLLMFallback:        true,
		LLMMaxItems:           35,
		LLMMaxConcurrent:      3,
		ConfigVersion:         "1.0",
		NominalPriceThreshold: 2.0,
	}
}

type analyzerConfigYAML struct {
	KeywordMinConfidence   *float64 `yaml:"keyword_min_confidence"`
	UseLLMFallback         *bool    `yaml:"use_llm_fallback"`
	LLMMaxItems            *int     `yaml:"llm_max_items"`
	LLMMaxConcurrent       *int     `yaml:"llm_max_concurrent"`
	ConfigVersion          *string  `yaml:"config_version"`
	DefaultCoveragePercent *float64 `yaml:"default_coverage_percent"`
	UseLLMPrimaryRepair    *bool    `yaml:"use_llm_primary_repair"`
	NominalPriceThreshold  *float64 `yaml:"nominal_price_threshold"`
}

// ParseAnalyzerConfig builds an AnalyzerConfig, applying defaults for
// any field absent from the YAML.
func ParseAnalyzerConfig(data []byte) (AnalyzerConfig, error) {
	cfg := DefaultAnalyzerConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	var raw analyzerConfigYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, NewConfigError("parsing analyzer config", err)
	}
	if raw.KeywordMinConfidence != nil {
		cfg.KeywordMinConfidence = *raw.KeywordMinConfidence
	}
	if raw.UseLLMFallback != nil {
		cfg.UseLLMFallback = *raw.UseLLMFallback
	}
	if raw.LLMMaxItems != nil {
		cfg.LLMMaxItems = *raw.LLMMaxItems
	}
	if raw.LLMMaxConcurrent != nil {
		cfg.LLMMaxConcurrent = *raw.LLMMaxConcurrent
	}
	if raw.ConfigVersion != nil {
		cfg.ConfigVersion = *raw.ConfigVersion
	}
	if raw.DefaultCoveragePercent != nil {
		cfg.DefaultCoveragePercent = raw.DefaultCoveragePercent
	}
	if raw.UseLLMPrimaryRepair != nil {
		cfg.UseLLMPrimaryRepair = *raw.UseLLMPrimaryRepair
	}
	if raw.NominalPriceThreshold != nil {
		cfg.NominalPriceThreshold = *raw.NominalPriceThreshold
	}
	return cfg, nil
}

// LLMMatcherConfig configures the bounded, retried, parallel LLM
// fallback stage.
type LLMMatcherConfig struct {
	MaxConcurrent   int
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	MaxItems        int
}

func DefaultLLMMatcherConfig() LLMMatcherConfig {
	return LLMMatcherConfig{
		MaxConcurrent:  3,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  15 * time.Second,
		MaxItems:       35,
	}
}

type llmConfigYAML struct {
	MaxConcurrent      *int     `yaml:"max_concurrent"`
	MaxRetries         *int     `yaml:"max_retries"`
	RetryBaseDelaySecs *float64 `yaml:"retry_base_delay"`
	RetryMaxDelaySecs  *float64 `yaml:"retry_max_delay"`
	MaxItems           *int     `yaml:"max_items"`
}

func ParseLLMMatcherConfig(data []byte) (LLMMatcherConfig, error) {
	cfg := DefaultLLMMatcherConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	var raw llmConfigYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, NewConfigError("parsing llm config", err)
	}
	if raw.MaxConcurrent != nil {
		cfg.MaxConcurrent = *raw.MaxConcurrent
	}
	if raw.MaxRetries != nil {
		cfg.MaxRetries = *raw.MaxRetries
	}
	if raw.RetryBaseDelaySecs != nil {
		cfg.RetryBaseDelay = time.Duration(*raw.RetryBaseDelaySecs * float64(time.Second))
	}
	if raw.RetryMaxDelaySecs != nil {
		cfg.RetryMaxDelay = time.Duration(*raw.RetryMaxDelaySecs * float64(time.Second))
	}
	if raw.MaxItems != nil {
		cfg.MaxItems = *raw.MaxItems
	}
	return cfg, nil
}

// RuleConfig configures the deterministic rule engine's compiled
// pattern sets. Patterns are data, loaded from YAML, not hard-coded.
type RuleConfig struct {
	ExclusionPatterns         []string `yaml:"exclusion_patterns"`
	NonCoveredLaborPatterns   []string `yaml:"non_covered_labor_patterns"`
	ConsumablePatterns        []string `yaml:"consumable_patterns"`
	FluidPatterns             []string `yaml:"fluid_patterns"`
}

func DefaultRuleConfig() RuleConfig { return RuleConfig{} }

func ParseRuleConfig(data []byte) (RuleConfig, error) {
	cfg := DefaultRuleConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, NewConfigError("parsing rule config", err)
	}
	return cfg, nil
}

// KeywordConfig holds the language-specific term-to-category mapping
// file, loaded from <customer>_keyword_mappings.yaml.
type KeywordConfig struct {
	Mappings map[string]KeywordMapping `yaml:"mappings"`
}

// KeywordMapping pairs a category with the matcher's confidence for
// that term.
type KeywordMapping struct {
	Category   string  `yaml:"category"`
	Confidence float64 `yaml:"confidence"`
}

func DefaultKeywordConfig() KeywordConfig {
	return KeywordConfig{Mappings: map[string]KeywordMapping{}}
}

func ParseKeywordConfig(data []byte) (KeywordConfig, error) {
	cfg := DefaultKeywordConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, NewConfigError("parsing keyword config", err)
	}
	if cfg.Mappings == nil {
		cfg.Mappings = map[string]KeywordMapping{}
	}
	return cfg, nil
}

// LoadedConfig is the full bundle produced by LoadFromPath, ready to
// build a CoverageAnalyzer.
type LoadedConfig struct {
	Analyzer  AnalyzerConfig
	Rule      RuleConfig
	Keyword   KeywordConfig
	LLM       LLMMatcherConfig
	Component ComponentConfig
}

// mainConfigYAML is the top-level document shape: analyzer/rules/
// keywords/llm sections.
type mainConfigYAML struct {
	Analyzer yaml.Node `yaml:"analyzer"`
	Rules    yaml.Node `yaml:"rules"`
	Keywords yaml.Node `yaml:"keywords"`
	LLM      yaml.Node `yaml:"llm"`
}

func findSibling(configPath string, pattern string) (string, bool) {
	dir := filepath.Dir(configPath)
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

// LoadFromPath loads the main YAML config at path plus sibling
// *_keyword_mappings.yaml / *_component_config.yaml files, matching
// CoverageAnalyzer.from_config_path in the original.
//
// A missing config file is not fatal: it is logged as a warning and
// default configuration is returned (spec §7 "Config-file missing").
func LoadFromPath(path string) (LoadedConfig, error) {
	out := LoadedConfig{
		Analyzer:  DefaultAnalyzerConfig(),
		Rule:      DefaultRuleConfig(),
		Keyword:   DefaultKeywordConfig(),
		LLM:       DefaultLLMMatcherConfig(),
		Component: DefaultComponentConfig(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", path).Msg("coverage config file not found, using defaults")
			return out, nil
		}
		return out, NewConfigError(fmt.Sprintf("reading config %s", path), err)
	}

	var main mainConfigYAML
	if err := yaml.Unmarshal(data, &main); err != nil {
		return out, NewConfigError("parsing main config", err)
	}

	if analyzerCfg, err := ParseAnalyzerConfig(reencode(main.Analyzer)); err == nil {
		out.Analyzer = analyzerCfg
	} else {
		return out, err
	}
	if ruleCfg, err := ParseRuleConfig(reencode(main.Rules)); err == nil {
		out.Rule = ruleCfg
	} else {
		return out, err
	}
	if llmCfg, err := ParseLLMMatcherConfig(reencode(main.LLM)); err == nil {
		out.LLM = llmCfg
	} else {
		return out, err
	}

	keywordBytes := reencode(main.Keywords)
	hasMappings := false
	if len(keywordBytes) > 0 {
		var probe KeywordConfig
		if err := yaml.Unmarshal(keywordBytes, &probe); err == nil && len(probe.Mappings) > 0 {
			hasMappings = true
		}
	}
	if hasMappings {
		kwCfg, err := ParseKeywordConfig(keywordBytes)
		if err != nil {
			return out, err
		}
		out.Keyword = kwCfg
	} else if sibling, ok := findSibling(path, "*_keyword_mappings.yaml"); ok {
		siblingData, err := os.ReadFile(sibling)
		if err != nil {
			return out, NewConfigError(fmt.Sprintf("reading %s", sibling), err)
		}
		kwCfg, err := ParseKeywordConfig(siblingData)
		if err != nil {
			return out, err
		}
		out.Keyword = kwCfg
		log.Info().Str("file", filepath.Base(sibling)).Msg("loaded keyword mappings")
	}

	if sibling, ok := findSibling(path, "*_component_config.yaml"); ok {
		siblingData, err := os.ReadFile(sibling)
		if err != nil {
			return out, NewConfigError(fmt.Sprintf("reading %s", sibling), err)
		}
		compCfg, err := ParseComponentConfig(siblingData)
		if err != nil {
			return out, err
		}
		out.Component = compCfg
		log.Info().Str("file", filepath.Base(sibling)).Msg("loaded component config")
	}

	return out, nil
}

// reencode round-trips a yaml.Node back to bytes so the section
// sub-parsers can use their own typed structs.
func reencode(node yaml.Node) []byte {
	if node.Kind == 0 {
		return nil
	}
	out, err := yaml.Marshal(&node)
	if err != nil {
		return nil
	}
	return out
}
