package loader

import (
	"context"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/prochub/prochub/internal/plugin"
	"github.com/prochub/prochub/internal/procerr"
)

// TypeStatic is the loader type of the static registration table.
const TypeStatic = "static"

// StaticLoader serves a fixed, in-code registration table. It is the
// no-reflection answer to annotation scanning: compiled-in plugins list
// themselves in the table and the loader hands them out in table order.
type StaticLoader struct {
	priority int
	enabled  bool

	mu       sync.Mutex
	table    []plugin.Plugin
	unloaded map[string]bool
}

// NewStaticLoader builds a loader over table. Table order is discovery order.
func NewStaticLoader(priority int, enabled bool, table []plugin.Plugin) *StaticLoader {
	return &StaticLoader{
		priority: priority,
		enabled:  enabled,
		table:    table,
		unloaded: make(map[string]bool),
	}
}

func (l *StaticLoader) Type() string  { return TypeStatic }
func (l *StaticLoader) Priority() int { return l.priority }
func (l *StaticLoader) Enabled() bool { return l.enabled }

func (l *StaticLoader) Supports(desc plugin.Descriptor) bool {
	if desc.Validate() != nil {
		return false
	}
	return desc.SourceType == "" || desc.SourceType == TypeStatic
}

func (l *StaticLoader) Init(context.Context) error { return nil }

// Discover yields the table in order, skipping unloaded entries. The state
// is snapshotted up front so consumers may call back into the loader while
// ranging.
func (l *StaticLoader) Discover(ctx context.Context) iter.Seq2[plugin.Plugin, error] {
	return func(yield func(plugin.Plugin, error) bool) {
		l.mu.Lock()
		table := slices.Clone(l.table)
		unloaded := maps.Clone(l.unloaded)
		l.mu.Unlock()

		for _, p := range table {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if unloaded[p.ProcessID()] {
				continue
			}
			if !yield(l.stamp(p), nil) {
				return
			}
		}
	}
}

func (l *StaticLoader) Load(_ context.Context, desc plugin.Descriptor) (plugin.Plugin, error) {
	if !l.Supports(desc) {
		return nil, procerr.NewInvalidDescriptor("static loader cannot resolve descriptor for " + desc.ProcessID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.table {
		if p.ProcessID() != desc.ProcessID {
			continue
		}
		delete(l.unloaded, desc.ProcessID)
		return l.stamp(p), nil
	}
	return nil, procerr.NewNotFound(desc.ProcessID, "")
}

func (l *StaticLoader) Unload(id string) error {
	l.mu.Lock()
	l.unloaded[id] = true
	l.mu.Unlock()
	return nil
}

func (l *StaticLoader) Shutdown(context.Context) error { return nil }

// stamp fills in the source type without mutating the table entry.
func (l *StaticLoader) stamp(p plugin.Plugin) plugin.Plugin {
	md := p.Metadata()
	if md.SourceType == TypeStatic {
		return p
	}
	md.SourceType = TypeStatic
	return plugin.WithMetadata(p, md)
}
