// Package mapping resolves a request's logical identifiers (tenant,
// operation, product, channel) into a concrete process id and version. The
// resolution is cache-backed with TTL expiry, an LRU bound, and tenant-scoped
// invalidation; a missing or unreachable mapping source degrades to the
// vanilla fallback instead of failing the dispatch.
package mapping

import (
	"context"
	"errors"
)

// ErrNoMapping is returned by a Source when no mapping is configured for the
// requested key.
var ErrNoMapping = errors.New("no mapping configured")

// Key is the full resolution input. It doubles as the cache key: any subset
// would alias distinct routes.
type Key struct {
	TenantID    string
	OperationID string
	ProductID   string
	Channel     string
}

// Mapping is the resolved routing decision. An empty Version means "use the
// registry's current version".
type Mapping struct {
	ProcessID string `json:"process_id"`
	Version   string `json:"version,omitempty"`
	// Vanilla marks a fallback resolution: the operation id was used as
	// the process id because no explicit mapping exists.
	Vanilla bool `json:"vanilla,omitempty"`
}

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks github.com/prochub/prochub/internal/mapping Source

// Source fetches mappings from an external system. Implementations carry
// their own timeouts; a failure degrades to the vanilla fallback upstream.
type Source interface {
	FetchMapping(ctx context.Context, key Key) (Mapping, error)
}

// vanilla builds the fallback mapping for key: auto-routed passthrough with
// the operation id as the process id.
func vanilla(key Key) Mapping {
	return Mapping{ProcessID: key.OperationID, Vanilla: true}
}
