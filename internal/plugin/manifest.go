package plugin

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SupportedManifestVersion is the manifest schema version this runtime reads.
const SupportedManifestVersion = 1

// Manifest is the declarative plugin descriptor read from manifest.yaml.
// It is consumed only at discovery time; the manifest loader synthesizes
// Metadata from it and wraps the constructed handler.
type Manifest struct {
	ManifestVersion int    `yaml:"manifest_version"`
	ProcessID       string `yaml:"process_id"`
	Version         string `yaml:"version"`
	// Handler names the registered handler factory that builds the
	// executable instance for this manifest.
	Handler     string `yaml:"handler"`
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Category    string `yaml:"category,omitempty"`

	Deprecated bool   `yaml:"deprecated,omitempty"`
	ReplacedBy string `yaml:"replaced_by,omitempty"`
	Vanilla    bool   `yaml:"vanilla,omitempty"`

	Capabilities []string `yaml:"capabilities,omitempty"`
	Tags         []string `yaml:"tags,omitempty"`

	Permissions []string `yaml:"permissions,omitempty"`
	Roles       []string `yaml:"roles,omitempty"`
	Features    []string `yaml:"features,omitempty"`

	Config map[string]any `yaml:"config,omitempty"`
}

// ParseManifest decodes and validates a manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Validate checks required manifest fields.
func (m *Manifest) Validate() error {
	if m.ManifestVersion == 0 {
		return fmt.Errorf("manifest_version is required")
	}
	if m.ManifestVersion != SupportedManifestVersion {
		return fmt.Errorf("unsupported manifest_version %d (supported: %d)",
			m.ManifestVersion, SupportedManifestVersion)
	}
	if strings.TrimSpace(m.ProcessID) == "" {
		return fmt.Errorf("process_id is required")
	}
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("version is required")
	}
	if strings.TrimSpace(m.Handler) == "" {
		return fmt.Errorf("handler is required")
	}
	if m.Deprecated && m.ReplacedBy == m.ProcessID {
		return fmt.Errorf("replaced_by must not point at the deprecated process itself")
	}
	return nil
}

// ToMetadata synthesizes Metadata from the declarative fields. sourceType is
// the loader type stamping the instance.
func (m *Manifest) ToMetadata(sourceType string) Metadata {
	return Metadata{
		ProcessID:           m.ProcessID,
		Version:             m.Version,
		Name:                m.Name,
		Description:         m.Description,
		Category:            m.Category,
		Deprecated:          m.Deprecated,
		ReplacedBy:          m.ReplacedBy,
		Capabilities:        m.Capabilities,
		Tags:                m.Tags,
		RequiredPermissions: m.Permissions,
		RequiredRoles:       m.Roles,
		RequiredFeatures:    m.Features,
		SourceType:          sourceType,
		Vanilla:             m.Vanilla,
	}
}
