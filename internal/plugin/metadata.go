package plugin

import (
	"context"
	"fmt"
	"strings"
)

// Metadata describes a process plugin. It is owned by the plugin instance and
// immutable once constructed; loaders that synthesize metadata from a
// manifest wrap the instance instead of mutating it (see WithMetadata).
type Metadata struct {
	ProcessID   string `json:"process_id"`
	Version     string `json:"version"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`

	Deprecated bool   `json:"deprecated,omitempty"`
	ReplacedBy string `json:"replaced_by,omitempty"`

	Capabilities []string `json:"capabilities,omitempty"`
	Tags         []string `json:"tags,omitempty"`

	RequiredPermissions []string `json:"required_permissions,omitempty"`
	RequiredRoles       []string `json:"required_roles,omitempty"`
	RequiredFeatures    []string `json:"required_features,omitempty"`

	// SourceType names the loader that produced this instance.
	SourceType string `json:"source_type,omitempty"`
	// Checksum is the content digest of the manifest this instance was built
	// from. Empty for plugins without a manifest.
	Checksum string `json:"checksum,omitempty"`
	// Vanilla marks a fallback/default implementation.
	Vanilla bool `json:"vanilla,omitempty"`
}

// Validate checks the fields the registry depends on.
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.ProcessID) == "" {
		return fmt.Errorf("process_id is required")
	}
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("version is required")
	}
	return nil
}

// Descriptor identifies a discoverable candidate for an explicit load
// request. Transient: produced by a caller, consumed immediately by a loader.
type Descriptor struct {
	ProcessID string `json:"process_id"`
	// Handle optionally names a concrete handler at the source (e.g. a
	// manifest handler key). Empty means "resolve by process id".
	Handle string `json:"handle,omitempty"`
	// SourceType restricts the descriptor to one loader type. Empty means
	// any loader may resolve it.
	SourceType string `json:"source_type,omitempty"`
	// ForceReload re-registers even when the (id, version) pair is already
	// present in the registry.
	ForceReload bool `json:"force_reload,omitempty"`
}

// Validate rejects descriptors no loader could resolve.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.ProcessID) == "" {
		return fmt.Errorf("descriptor process_id is required")
	}
	return nil
}

// metadataOverride wraps a plugin to substitute its metadata accessor while
// delegating all executable behavior to the original instance.
type metadataOverride struct {
	inner Plugin
	md    Metadata
}

// WithMetadata returns a view of p whose Metadata (and derived ProcessID /
// Version) come from md. The original instance is held by reference and left
// untouched.
func WithMetadata(p Plugin, md Metadata) Plugin {
	return &metadataOverride{inner: p, md: md}
}

func (w *metadataOverride) ProcessID() string  { return w.md.ProcessID }
func (w *metadataOverride) Version() string    { return w.md.Version }
func (w *metadataOverride) Metadata() Metadata { return w.md }

func (w *metadataOverride) Init(ctx context.Context) error   { return w.inner.Init(ctx) }
func (w *metadataOverride) Health(ctx context.Context) error { return w.inner.Health(ctx) }

func (w *metadataOverride) Execute(ctx context.Context, req Request) (Result, error) {
	return w.inner.Execute(ctx, req)
}
