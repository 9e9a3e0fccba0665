package executor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"tablegraph/internal/naming"
	"tablegraph/internal/resolver"
	"tablegraph/internal/schemafilter"
	"tablegraph/internal/store"
)

// Config is the per-request configuration. Naming, Filters, Tables and the
// page sizes shape the compiled schema; the limits only affect execution.
type Config struct {
	Naming  naming.Config
	Filters schemafilter.Config
	// Tables maps database -> table -> override.
	Tables          map[string]map[string]store.Override
	DefaultPageSize int
	MaxPageSize     int

	TimeLimit  time.Duration
	MaxFetches int
}

// DefaultConfig returns an unbounded configuration with default page sizes.
func DefaultConfig() Config {
	return Config{
		Naming:          naming.DefaultConfig(),
		DefaultPageSize: resolver.DefaultPageSize,
		MaxPageSize:     resolver.DefaultMaxPageSize,
	}
}

// Fingerprint hashes the schema-shaping parts of the configuration. Maps are
// encoded with sorted keys, so equal configurations hash equally.
func (c Config) Fingerprint() string {
	payload := struct {
		Naming          naming.Config                        `json:"naming"`
		Filters         schemafilter.Config                  `json:"filters"`
		Tables          map[string]map[string]store.Override `json:"tables"`
		DefaultPageSize int                                  `json:"default_page_size"`
		MaxPageSize     int                                  `json:"max_page_size"`
	}{c.Naming, c.Filters, c.Tables, c.DefaultPageSize, c.MaxPageSize}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}
