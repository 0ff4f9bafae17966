package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Defaults returns a config that starts a useful runtime with no file at all:
// static loader on, vanilla-friendly mapping, API off.
func Defaults() *Config {
	return &Config{
		Service: Service{
			Name:      "prochub",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Runtime: RuntimeConfig{
			StartupTimeout:  2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			DispatchTimeout: 30 * time.Second,
		},
		Loaders: Loaders{
			Static:   StaticLoaderConfig{Enabled: true, Priority: 0},
			Manifest: ManifestLoaderConfig{Enabled: false, Priority: 1},
		},
		Mapping: MappingConfig{
			Source:      "static",
			TTL:         5 * time.Minute,
			FallbackTTL: 30 * time.Second,
			MaxEntries:  4096,
		},
		API: API{
			Enabled: false,
			Listen:  "127.0.0.1:8710",
		},
	}
}

// Load reads, env-expands, verifies, and validates the config file at path.
// A .checksums manifest next to the file, when present, must match.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s", absPath)
	}

	if err := verifyAgainstManifest(absPath); err != nil {
		return nil, err
	}

	expanded := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the runtime cannot honor.
func (c *Config) Validate() error {
	switch c.Service.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("service.log_level: unknown level %q", c.Service.LogLevel)
	}
	switch c.Service.LogFormat {
	case "", "json", "text":
	default:
		return fmt.Errorf("service.log_format: must be json or text, got %q", c.Service.LogFormat)
	}

	if c.Runtime.StartupTimeout < 0 || c.Runtime.ShutdownTimeout < 0 || c.Runtime.DispatchTimeout < 0 {
		return fmt.Errorf("runtime: timeouts must not be negative")
	}

	if c.Loaders.Manifest.Enabled && len(c.Loaders.Manifest.Roots) == 0 {
		return fmt.Errorf("loaders.manifest: enabled but no roots configured")
	}
	if c.Loaders.Static.Enabled && c.Loaders.Manifest.Enabled &&
		c.Loaders.Static.Priority == c.Loaders.Manifest.Priority {
		return fmt.Errorf("loaders: static and manifest share priority %d", c.Loaders.Static.Priority)
	}

	switch c.Mapping.Source {
	case "static":
	case "sqlite":
		if c.Mapping.SQLitePath == "" {
			return fmt.Errorf("mapping: sqlite source requires sqlite_path")
		}
	case "http":
		if c.Mapping.HTTP.BaseURL == "" {
			return fmt.Errorf("mapping: http source requires http.base_url")
		}
	default:
		return fmt.Errorf("mapping.source: must be static, sqlite, or http, got %q", c.Mapping.Source)
	}
	if c.Mapping.MaxEntries < 0 {
		return fmt.Errorf("mapping.max_entries: must not be negative")
	}
	for i, m := range c.Mapping.Static {
		if m.TenantID == "" || m.OperationID == "" || m.ProcessID == "" {
			return fmt.Errorf("mapping.static[%d]: tenant_id, operation_id, and process_id are required", i)
		}
	}

	if c.API.Enabled {
		if c.API.Listen == "" {
			return fmt.Errorf("api: enabled but no listen address configured")
		}
		if len(c.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api: enabled but no auth tokens configured")
		}
		seen := make(map[string]string, len(c.API.Auth.Tokens))
		for i, tok := range c.API.Auth.Tokens {
			if tok.Token == "" {
				return fmt.Errorf("api.auth.tokens[%d] (%s): empty token", i, tok.Name)
			}
			if len(tok.Token) < 16 {
				return fmt.Errorf("api.auth.tokens[%d] (%s): token must be at least 16 characters", i, tok.Name)
			}
			if prev, dup := seen[tok.Token]; dup {
				return fmt.Errorf("api.auth.tokens[%d] (%s): duplicate token value (also used by %s)", i, tok.Name, prev)
			}
			seen[tok.Token] = tok.Name
		}
	}
	return nil
}
