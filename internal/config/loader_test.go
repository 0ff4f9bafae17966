package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `
service:
  name: prochub-test
  log_level: debug
  log_format: text
runtime:
  startup_timeout: 10s
  shutdown_timeout: 5s
  dispatch_timeout: 2s
  fail_on_empty: true
loaders:
  static:
    enabled: true
    priority: 0
  manifest:
    enabled: true
    priority: 1
    roots:
      - /etc/prochub/plugins
mapping:
  source: static
  ttl: 1m
  fallback_ttl: 10s
  static:
    - tenant_id: acme
      operation_id: refund
      process_id: refund-handler
api:
  enabled: true
  listen: "127.0.0.1:9000"
  auth:
    tokens:
      - name: admin
        token: "0123456789abcdef0123456789abcdef"
        tenant_id: acme
        scopes: ["*"]
        permissions: ["*"]
`

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prochub-test", cfg.Service.Name)
	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Runtime.StartupTimeout)
	assert.True(t, cfg.Runtime.FailOnEmpty)
	assert.True(t, cfg.Loaders.Manifest.Enabled)
	assert.Equal(t, []string{"/etc/prochub/plugins"}, cfg.Loaders.Manifest.Roots)
	require.Len(t, cfg.Mapping.Static, 1)
	assert.Equal(t, "refund-handler", cfg.Mapping.Static[0].ProcessID)
	require.Len(t, cfg.API.Auth.Tokens, 1)
	assert.Equal(t, "acme", cfg.API.Auth.Tokens[0].TenantID)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "service:\n  name: minimal\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", cfg.Service.Name)
	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, 2*time.Minute, cfg.Runtime.StartupTimeout)
	assert.Equal(t, 30*time.Second, cfg.Runtime.DispatchTimeout)
	assert.Equal(t, "static", cfg.Mapping.Source)
	assert.Equal(t, 4096, cfg.Mapping.MaxEntries)
	assert.False(t, cfg.API.Enabled)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("PROCHUB_TEST_TOKEN", "0123456789abcdef0123456789abcdef")

	path := writeConfig(t, t.TempDir(), `
api:
  enabled: true
  listen: "127.0.0.1:9000"
  auth:
    tokens:
      - name: admin
        token: "${PROCHUB_TEST_TOKEN}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.API.Auth.Tokens[0].Token)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad log level", func(c *Config) { c.Service.LogLevel = "verbose" }, "log_level"},
		{"bad log format", func(c *Config) { c.Service.LogFormat = "xml" }, "log_format"},
		{"negative timeout", func(c *Config) { c.Runtime.DispatchTimeout = -time.Second }, "negative"},
		{"manifest without roots", func(c *Config) { c.Loaders.Manifest.Enabled = true }, "roots"},
		{"duplicate loader priority", func(c *Config) {
			c.Loaders.Manifest.Enabled = true
			c.Loaders.Manifest.Roots = []string{"/tmp"}
			c.Loaders.Manifest.Priority = c.Loaders.Static.Priority
		}, "priority"},
		{"unknown mapping source", func(c *Config) { c.Mapping.Source = "redis" }, "mapping.source"},
		{"sqlite without path", func(c *Config) { c.Mapping.Source = "sqlite" }, "sqlite_path"},
		{"http without base url", func(c *Config) { c.Mapping.Source = "http" }, "base_url"},
		{"static row missing process id", func(c *Config) {
			c.Mapping.Static = []StaticMapping{{TenantID: "t", OperationID: "op"}}
		}, "process_id"},
		{"api without tokens", func(c *Config) { c.API.Enabled = true }, "tokens"},
		{"short token", func(c *Config) {
			c.API.Enabled = true
			c.API.Auth.Tokens = []Token{{Name: "t", Token: "short"}}
		}, "16 characters"},
		{"duplicate token", func(c *Config) {
			c.API.Enabled = true
			c.API.Auth.Tokens = []Token{
				{Name: "a", Token: "0123456789abcdef"},
				{Name: "b", Token: "0123456789abcdef"},
			}
		}, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLockAndVerify(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validConfig)

	checksumPath, err := Lock(path)
	require.NoError(t, err)
	assert.FileExists(t, checksumPath)

	require.NoError(t, Verify(path))

	// Load succeeds while the file matches its manifest.
	_, err = Load(path)
	require.NoError(t, err)

	// Any edit after locking must fail both Verify and Load.
	require.NoError(t, os.WriteFile(path, []byte(validConfig+"\n# edited\n"), 0644))
	err = Verify(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integrity")
}

func TestVerifyWithoutManifest(t *testing.T) {
	path := writeConfig(t, t.TempDir(), validConfig)

	err := Verify(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksums file not found")

	// Load tolerates an absent manifest.
	_, err = Load(path)
	assert.NoError(t, err)
}
