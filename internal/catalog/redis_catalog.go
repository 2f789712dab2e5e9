package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirimku/coverage-analyzer/internal/coverage"
)

// RedisCatalog is a coverage.PartLookup backed by a Redis hash-per-
// part-number, for deployments where the catalog is maintained by a
// separate ingestion service and shared across analyzer replicas.
type RedisCatalog struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisCatalog wraps client. keyPrefix namespaces catalog keys
// (e.g. "coverage:catalog:"); ttl of 0 means entries never expire.
func NewRedisCatalog(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisCatalog {
	return &RedisCatalog{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

type redisEntry struct {
	System               string `json:"system"`
	Component            string `json:"component"`
	ComponentDescription string `json:"component_description,omitempty"`
	Covered              *bool  `json:"covered,omitempty"`
	Note                 string `json:"note,omitempty"`
}

// Put writes one catalog entry, JSON-encoded under its key.
func (c *RedisCatalog) Put(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(redisEntry{
		System:               e.System,
		Component:            e.Component,
		ComponentDescription: e.ComponentDescription,
		Covered:              e.Covered,
		Note:                 e.Note,
	})
	if err != nil {
		return fmt.Errorf("encoding redis catalog entry %q: %w", e.PartNumber, err)
	}
	if err := c.client.Set(ctx, c.key(e.PartNumber), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing redis catalog entry %q: %w", e.PartNumber, err)
	}
	return nil
}

func (c *RedisCatalog) key(partNumber string) string {
	return c.keyPrefix + normalizePartNumber(partNumber)
}

// Lookup implements coverage.PartLookup. It uses context.Background
// with a short timeout since coverage.PartLookup carries no context
// parameter of its own.
func (c *RedisCatalog) Lookup(itemCode string) (*coverage.PartLookupResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, c.key(itemCode)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &coverage.PartLookupResult{Found: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading redis catalog entry %q: %w", itemCode, err)
	}

	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decoding redis catalog entry %q: %w", itemCode, err)
	}

	return &coverage.PartLookupResult{
		Found:                true,
		System:               entry.System,
		Component:            entry.Component,
		ComponentDescription: entry.ComponentDescription,
		PartNumber:           itemCode,
		LookupSource:         "redis_catalog",
		Covered:              entry.Covered,
		Note:                 entry.Note,
	}, nil
}
