// Package registry is the in-memory store of plugin instances keyed by
// (process id, version). Mutation is key-scoped: each process id owns its own
// lock, so registrations and lookups on unrelated ids never contend.
package registry

import (
	"sort"
	"sync"

	"github.com/prochub/prochub/internal/plugin"
	"github.com/prochub/prochub/internal/procerr"
)

// Registry holds registered plugins indexed by process id and version.
// Safe for arbitrary concurrent callers.
type Registry struct {
	procs sync.Map // process id -> *versionSet
}

// versionSet holds all registered versions of one process id plus the
// "current" pointer. dead marks a set that was removed from the map while a
// concurrent Register held a stale reference.
type versionSet struct {
	mu       sync.RWMutex
	dead     bool
	versions map[string]plugin.Plugin
	current  string
}

// ProcessInfo is a read-only snapshot of one process id, used by the HTTP
// surface and the CLI.
type ProcessInfo struct {
	ProcessID      string          `json:"process_id"`
	CurrentVersion string          `json:"current_version"`
	Versions       []string        `json:"versions"`
	Metadata       plugin.Metadata `json:"metadata"`
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register inserts or atomically replaces the (id, version) entry and
// recomputes the current-version pointer for that id. Concurrent lookups see
// either the old or the new instance, never a partial state.
func (r *Registry) Register(p plugin.Plugin) error {
	if err := p.Metadata().Validate(); err != nil {
		return err
	}

	id, version := p.ProcessID(), p.Version()
	for {
		actual, _ := r.procs.LoadOrStore(id, &versionSet{versions: make(map[string]plugin.Plugin)})
		vs := actual.(*versionSet)

		vs.mu.Lock()
		if vs.dead {
			// Lost a race with the final Unregister of this id; the map
			// entry is gone, start over with a fresh set.
			vs.mu.Unlock()
			continue
		}
		vs.versions[version] = p
		vs.recomputeCurrentLocked()
		vs.mu.Unlock()
		return nil
	}
}

// Lookup returns the current-version instance for id.
func (r *Registry) Lookup(id string) (plugin.Plugin, error) {
	vs, ok := r.load(id)
	if !ok {
		return nil, procerr.NewNotFound(id, "")
	}

	vs.mu.RLock()
	defer vs.mu.RUnlock()
	p, ok := vs.versions[vs.current]
	if !ok {
		return nil, procerr.NewNotFound(id, "")
	}
	return p, nil
}

// LookupVersion returns the exact (id, version) instance.
func (r *Registry) LookupVersion(id, version string) (plugin.Plugin, error) {
	vs, ok := r.load(id)
	if !ok {
		return nil, procerr.NewNotFound(id, version)
	}

	vs.mu.RLock()
	defer vs.mu.RUnlock()
	p, ok := vs.versions[version]
	if !ok {
		return nil, procerr.NewNotFound(id, version)
	}
	return p, nil
}

// Unregister removes every version of id.
func (r *Registry) Unregister(id string) error {
	vs, ok := r.load(id)
	if !ok {
		return procerr.NewNotFound(id, "")
	}

	vs.mu.Lock()
	vs.versions = make(map[string]plugin.Plugin)
	vs.current = ""
	vs.dead = true
	r.procs.Delete(id)
	vs.mu.Unlock()
	return nil
}

// UnregisterVersion removes one (id, version) entry. When the removed version
// was current, current is recomputed from the remaining versions; removing
// the last version clears the id entirely.
func (r *Registry) UnregisterVersion(id, version string) error {
	vs, ok := r.load(id)
	if !ok {
		return procerr.NewNotFound(id, version)
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()
	if _, ok := vs.versions[version]; !ok {
		return procerr.NewNotFound(id, version)
	}
	delete(vs.versions, version)
	if len(vs.versions) == 0 {
		vs.current = ""
		vs.dead = true
		r.procs.Delete(id)
		return nil
	}
	vs.recomputeCurrentLocked()
	return nil
}

// Size returns the count of distinct process ids.
func (r *Registry) Size() int {
	n := 0
	r.procs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// TotalVersionCount returns the count of all (id, version) pairs.
func (r *Registry) TotalVersionCount() int {
	n := 0
	r.procs.Range(func(_, v any) bool {
		vs := v.(*versionSet)
		vs.mu.RLock()
		n += len(vs.versions)
		vs.mu.RUnlock()
		return true
	})
	return n
}

// ProcessIDs returns all registered process ids, sorted.
func (r *Registry) ProcessIDs() []string {
	var ids []string
	r.procs.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Versions returns the registered versions of id, sorted ascending.
func (r *Registry) Versions(id string) ([]string, error) {
	vs, ok := r.load(id)
	if !ok {
		return nil, procerr.NewNotFound(id, "")
	}

	vs.mu.RLock()
	out := make([]string, 0, len(vs.versions))
	for v := range vs.versions {
		out = append(out, v)
	}
	vs.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return versionLess(out[i], out[j]) })
	return out, nil
}

// Info returns the snapshot for one process id.
func (r *Registry) Info(id string) (ProcessInfo, error) {
	vs, ok := r.load(id)
	if !ok {
		return ProcessInfo{}, procerr.NewNotFound(id, "")
	}

	vs.mu.RLock()
	defer vs.mu.RUnlock()
	cur, ok := vs.versions[vs.current]
	if !ok {
		return ProcessInfo{}, procerr.NewNotFound(id, "")
	}

	versions := make([]string, 0, len(vs.versions))
	for v := range vs.versions {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versionLess(versions[i], versions[j]) })

	return ProcessInfo{
		ProcessID:      id,
		CurrentVersion: vs.current,
		Versions:       versions,
		Metadata:       cur.Metadata(),
	}, nil
}

// Snapshot returns the ProcessInfo of every registered id, sorted by id.
func (r *Registry) Snapshot() []ProcessInfo {
	ids := r.ProcessIDs()
	out := make([]ProcessInfo, 0, len(ids))
	for _, id := range ids {
		info, err := r.Info(id)
		if err != nil {
			// Unregistered between Range and Info; skip.
			continue
		}
		out = append(out, info)
	}
	return out
}

func (r *Registry) load(id string) (*versionSet, bool) {
	v, ok := r.procs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*versionSet), true
}

// recomputeCurrentLocked selects the highest version as current. Caller holds
// the write lock.
func (vs *versionSet) recomputeCurrentLocked() {
	best := ""
	for v := range vs.versions {
		if best == "" || versionLess(best, v) {
			best = v
		}
	}
	vs.current = best
}
