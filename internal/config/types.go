// Package config loads and validates the YAML runtime configuration, with
// BLAKE3 checksum locking so a tampered config fails closed at startup.
package config

import "time"

// Config is the full runtime configuration.
type Config struct {
	Service Service       `yaml:"service"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Loaders Loaders       `yaml:"loaders"`
	Mapping MappingConfig `yaml:"mapping"`
	API     API           `yaml:"api"`
}

// Service names the deployment and sets the log surface.
type Service struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, text
}

// RuntimeConfig tunes the orchestrator and dispatcher.
type RuntimeConfig struct {
	StartupTimeout  time.Duration `yaml:"startup_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	FailOnEmpty     bool          `yaml:"fail_on_empty"`
}

// Loaders enables and orders the plugin sources.
type Loaders struct {
	Static   StaticLoaderConfig   `yaml:"static"`
	Manifest ManifestLoaderConfig `yaml:"manifest"`
}

type StaticLoaderConfig struct {
	Enabled  bool `yaml:"enabled"`
	Priority int  `yaml:"priority"`
}

type ManifestLoaderConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Priority int      `yaml:"priority"`
	Roots    []string `yaml:"roots"`
}

// MappingConfig selects and tunes the operation-to-process mapping source.
type MappingConfig struct {
	// Source is one of "static", "sqlite", "http".
	Source      string        `yaml:"source"`
	TTL         time.Duration `yaml:"ttl"`
	FallbackTTL time.Duration `yaml:"fallback_ttl"`
	MaxEntries  int           `yaml:"max_entries"`

	SQLitePath string          `yaml:"sqlite_path"`
	HTTP       HTTPSource      `yaml:"http"`
	Static     []StaticMapping `yaml:"static"`
}

type HTTPSource struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StaticMapping is one fixed routing row for the static mapping source.
type StaticMapping struct {
	TenantID    string `yaml:"tenant_id"`
	OperationID string `yaml:"operation_id"`
	ProductID   string `yaml:"product_id"`
	Channel     string `yaml:"channel"`
	ProcessID   string `yaml:"process_id"`
	Version     string `yaml:"version"`
}

// API configures the HTTP surface.
type API struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Auth    Auth   `yaml:"auth"`
}

type Auth struct {
	Tokens []Token `yaml:"tokens"`
}

// Token is one bearer credential. Scopes gate API routes; the grant lists
// become the dispatch session.
type Token struct {
	Name        string   `yaml:"name"`
	Token       string   `yaml:"token"`
	TenantID    string   `yaml:"tenant_id"`
	Scopes      []string `yaml:"scopes"`
	Permissions []string `yaml:"permissions"`
	Roles       []string `yaml:"roles"`
	Features    []string `yaml:"features"`
}
