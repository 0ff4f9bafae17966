package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prochub/prochub/internal/plugin"
	"github.com/prochub/prochub/internal/procerr"
)

func testPlugin(id, version string) plugin.Plugin {
	return plugin.Func(plugin.Metadata{ProcessID: id, Version: version},
		func(ctx context.Context, req plugin.Request) (plugin.Result, error) {
			return plugin.Result{Output: map[string]any{"version": version}}, nil
		})
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testPlugin("refund", "1.0.0")))

	p, err := r.Lookup("refund")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", p.Version())

	_, err = r.Lookup("missing")
	assert.True(t, procerr.IsNotFound(err))

	_, err = r.LookupVersion("refund", "9.9.9")
	assert.True(t, procerr.IsNotFound(err))
}

func TestRegisterRejectsInvalidMetadata(t *testing.T) {
	r := New()
	assert.Error(t, r.Register(testPlugin("", "1.0.0")))
	assert.Error(t, r.Register(testPlugin("refund", "")))
	assert.Equal(t, 0, r.Size())
}

func TestCurrentVersionIsHighest(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testPlugin("refund", "1.0.0")))
	require.NoError(t, r.Register(testPlugin("refund", "2.0.0")))

	p, err := r.Lookup("refund")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", p.Version())

	// Registration order must not matter.
	r2 := New()
	require.NoError(t, r2.Register(testPlugin("refund", "2.0.0")))
	require.NoError(t, r2.Register(testPlugin("refund", "1.0.0")))
	p2, err := r2.Lookup("refund")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", p2.Version())
}

func TestCurrentVersionSemverBeatsLexicographic(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testPlugin("p", "9.0.0")))
	require.NoError(t, r.Register(testPlugin("p", "10.0.0")))

	p, err := r.Lookup("p")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0", p.Version())
}

func TestReRegisterReplacesInstance(t *testing.T) {
	r := New()
	first := testPlugin("refund", "1.0.0")
	second := testPlugin("refund", "1.0.0")

	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	got, err := r.LookupVersion("refund", "1.0.0")
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.TotalVersionCount())
}

func TestUnregisterVersionRecomputesCurrent(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testPlugin("refund", "1.0.0")))
	require.NoError(t, r.Register(testPlugin("refund", "2.0.0")))

	require.NoError(t, r.UnregisterVersion("refund", "2.0.0"))

	p, err := r.Lookup("refund")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", p.Version())

	// Removing the last version clears the id.
	require.NoError(t, r.UnregisterVersion("refund", "1.0.0"))
	_, err = r.Lookup("refund")
	assert.True(t, procerr.IsNotFound(err))
	assert.Equal(t, 0, r.Size())
}

func TestUnregisterWholeID(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testPlugin("refund", "1.0.0")))
	require.NoError(t, r.Register(testPlugin("refund", "2.0.0")))
	require.NoError(t, r.Register(testPlugin("notify", "1.0.0")))

	require.NoError(t, r.Unregister("refund"))
	assert.Equal(t, 1, r.Size())
	assert.Equal(t, 1, r.TotalVersionCount())

	err := r.Unregister("refund")
	assert.True(t, procerr.IsNotFound(err))
}

func TestCounts(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testPlugin("a", "1.0.0")))
	require.NoError(t, r.Register(testPlugin("a", "2.0.0")))
	require.NoError(t, r.Register(testPlugin("b", "1.0.0")))

	assert.Equal(t, 2, r.Size())
	assert.Equal(t, 3, r.TotalVersionCount())
	assert.Equal(t, []string{"a", "b"}, r.ProcessIDs())

	versions, err := r.Versions("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0", "2.0.0"}, versions)
}

func TestSnapshot(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testPlugin("b", "1.0.0")))
	require.NoError(t, r.Register(testPlugin("a", "1.0.0")))
	require.NoError(t, r.Register(testPlugin("a", "2.0.0")))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].ProcessID)
	assert.Equal(t, "2.0.0", snap[0].CurrentVersion)
	assert.Equal(t, []string{"1.0.0", "2.0.0"}, snap[0].Versions)
	assert.Equal(t, "b", snap[1].ProcessID)
}

// Concurrent register/lookup on distinct and overlapping keys must never
// observe a torn state: every lookup either misses or returns a complete
// instance whose id matches the key.
func TestConcurrentRegisterLookup(t *testing.T) {
	r := New()
	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("proc-%d", w%4)
			for i := 0; i < perWorker; i++ {
				v := fmt.Sprintf("1.0.%d", i)
				if err := r.Register(testPlugin(id, v)); err != nil {
					t.Error(err)
					return
				}
				p, err := r.Lookup(id)
				if err != nil {
					t.Error(err)
					return
				}
				if p.ProcessID() != id {
					t.Errorf("lookup %q returned plugin %q", id, p.ProcessID())
					return
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 4, r.Size())
	assert.Equal(t, 4*perWorker, r.TotalVersionCount())
}

func TestConcurrentUnregisterAndRegisterSameID(t *testing.T) {
	r := New()
	const rounds = 200

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = r.Register(testPlugin("p", "1.0.0"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = r.Unregister("p")
		}
	}()
	wg.Wait()

	// Registry must end in a consistent state: either p is fully present or
	// fully absent.
	if _, err := r.Lookup("p"); err == nil {
		assert.Equal(t, 1, r.Size())
	} else {
		assert.True(t, procerr.IsNotFound(err))
		assert.Equal(t, 0, r.Size())
	}
}
