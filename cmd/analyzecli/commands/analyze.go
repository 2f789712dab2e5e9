package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kirimku/coverage-analyzer/internal/catalog"
	"github.com/kirimku/coverage-analyzer/internal/coverage"
)

var (
	claimPath          string
	catalogPath        string
	catalogBackend     string
	catalogDSN         string
	catalogRedisPrefix string
	catalogCacheTTL    time.Duration
	outPath            string
)

// buildPartLookup constructs the configured catalog backend. memory
// (the default) holds the whole CSV in process memory; sqlite and
// redis point at an external store, optionally seeded from the same
// CSV and optionally wrapped in an in-process TTL cache so repeat part
// numbers within or across claims don't repeat the round trip.
func buildPartLookup() (coverage.PartLookup, error) {
	if catalogBackend == "" || catalogBackend == "memory" {
		if catalogPath == "" {
			return nil, nil
		}
		mem := catalog.NewMemoryCatalog()
		if err := mem.LoadCSVFile(catalogPath); err != nil {
			return nil, err
		}
		return mem, nil
	}

	var lookup coverage.PartLookup
	switch catalogBackend {
	case "sqlite":
		if catalogDSN == "" {
			return nil, fmt.Errorf("--catalog-dsn is required for --catalog-backend=sqlite")
		}
		store, err := catalog.OpenSQLiteCatalog(catalogDSN)
		if err != nil {
			return nil, err
		}
		if catalogPath != "" {
			entries, err := loadCatalogEntries(catalogPath)
			if err != nil {
				return nil, err
			}
			for _, entry := range entries {
				if err := store.Upsert(entry); err != nil {
					return nil, err
				}
			}
		}
		lookup = store

	case "redis":
		if catalogDSN == "" {
			return nil, fmt.Errorf("--catalog-dsn is required for --catalog-backend=redis (host:port)")
		}
		client := redis.NewClient(&redis.Options{Addr: catalogDSN})
		prefix := catalogRedisPrefix
		if prefix == "" {
			prefix = "coverage:catalog:"
		}
		store := catalog.NewRedisCatalog(client, prefix, 0)
		if catalogPath != "" {
			entries, err := loadCatalogEntries(catalogPath)
			if err != nil {
				return nil, err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			for _, entry := range entries {
				if err := store.Put(ctx, entry); err != nil {
					return nil, err
				}
			}
		}
		lookup = store

	default:
		return nil, fmt.Errorf("unknown --catalog-backend %q (want memory, sqlite, or redis)", catalogBackend)
	}

	if catalogCacheTTL > 0 {
		lookup = catalog.NewCachedCatalog(lookup, catalogCacheTTL, catalogCacheTTL*2)
	}
	return lookup, nil
}

func loadCatalogEntries(path string) ([]catalog.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog csv %q: %w", path, err)
	}
	defer f.Close()
	return catalog.ParseCSV(f)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a single claim file and print the coverage result as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := coverage.LoadFromPath(configPath)
		if err != nil {
			return err
		}

		partLookup, err := buildPartLookup()
		if err != nil {
			return err
		}

		var llmMatcher *coverage.LLMMatcher
		if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" && loaded.Analyzer.UseLLMFallback {
			baseURL := os.Getenv("LLM_BASE_URL")
			if baseURL == "" {
				baseURL = "https://api.openai.com/v1"
			}
			model := os.Getenv("LLM_MODEL")
			if model == "" {
				model = "gpt-4o-mini"
			}
			client := coverage.NewOpenAIClient(baseURL, apiKey, model)
			llmMatcher = coverage.NewLLMMatcher(client, coverage.DefaultPromptProvider{}, loaded.LLM)
		}

		analyzer := coverage.NewCoverageAnalyzer(loaded, partLookup, llmMatcher)

		f, err := os.Open(claimPath)
		if err != nil {
			return err
		}
		defer f.Close()

		req, err := coverage.DecodeAnalyzeRequest(f)
		if err != nil {
			return err
		}
		if req.ClaimRunID == "" {
			req.ClaimRunID = uuid.NewString()
		}

		result, err := analyzer.Analyze(context.Background(), req)
		if err != nil {
			return err
		}

		out := os.Stdout
		if outPath != "" {
			file, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer file.Close()
			out = file
		}

		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&claimPath, "claim", "", "path to the claim JSON file (required)")
	analyzeCmd.Flags().StringVar(&catalogPath, "catalog", "", "path to a part-number catalog CSV (optional; seeds memory/sqlite/redis backends)")
	analyzeCmd.Flags().StringVar(&catalogBackend, "catalog-backend", "memory", "part catalog backend: memory, sqlite, or redis")
	analyzeCmd.Flags().StringVar(&catalogDSN, "catalog-dsn", "", "sqlite db file path, or redis host:port")
	analyzeCmd.Flags().StringVar(&catalogRedisPrefix, "catalog-redis-prefix", "coverage:catalog:", "key prefix for the redis catalog backend")
	analyzeCmd.Flags().DurationVar(&catalogCacheTTL, "catalog-cache-ttl", 0, "wrap the sqlite/redis backend in an in-process TTL cache (0 disables)")
	analyzeCmd.Flags().StringVar(&outPath, "out", "", "path to write the result JSON (defaults to stdout)")
	_ = analyzeCmd.MarkFlagRequired("claim")
}
