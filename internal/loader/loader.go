// Package loader defines the discovery-source capability and its two
// built-in implementations: a static registration table for compiled-in
// plugins and a filesystem loader driven by declarative manifests.
package loader

import (
	"context"
	"iter"

	"github.com/prochub/prochub/internal/plugin"
)

// Loader discovers candidate plugins from one source. The orchestrator
// initializes and drains enabled loaders strictly in priority order; a
// disabled loader is never touched at all.
type Loader interface {
	// Type is the stable string identifying this source.
	Type() string
	// Priority orders loaders at startup; lower initializes first.
	Priority() int
	// Enabled gates the loader. Disabled loaders are skipped entirely.
	Enabled() bool
	// Supports reports whether this loader can resolve desc for an
	// explicit load request.
	Supports(desc plugin.Descriptor) bool
	// Init performs one-time setup. Called once per startup.
	Init(ctx context.Context) error
	// Discover streams the plugins found at this source, in the source's
	// own discovery order. The sequence is lazy and finite; a consumer
	// registers each instance as it is yielded. A non-nil yielded error
	// ends the sequence.
	Discover(ctx context.Context) iter.Seq2[plugin.Plugin, error]
	// Load resolves one plugin by descriptor, bypassing full discovery.
	// Fails with procerr.InvalidDescriptor when Supports would reject desc
	// and with procerr.NotFound when no candidate matches.
	Load(ctx context.Context, desc plugin.Descriptor) (plugin.Plugin, error)
	// Unload is a best-effort removal from the loader's own tracking. It
	// does not mutate the shared registry.
	Unload(id string) error
	// Shutdown releases loader resources. Must tolerate being called on a
	// loader whose Init was never invoked.
	Shutdown(ctx context.Context) error
}
