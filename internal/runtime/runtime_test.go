package runtime

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prochub/prochub/internal/events"
	"github.com/prochub/prochub/internal/loader"
	"github.com/prochub/prochub/internal/plugin"
	"github.com/prochub/prochub/internal/procerr"
	"github.com/prochub/prochub/internal/registry"
)

// callRecorder collects loader call order across loaders.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (c *callRecorder) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *callRecorder) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// fakeLoader is a scriptable loader for orchestration tests.
type fakeLoader struct {
	typ      string
	priority int
	enabled  bool
	plugins  []plugin.Plugin
	recorder *callRecorder

	initErr     error
	discoverErr error
	shutdownErr error
	initDelay   time.Duration

	// beforeYield observes each step of the discovery stream.
	beforeYield func(i int)
}

func (f *fakeLoader) Type() string  { return f.typ }
func (f *fakeLoader) Priority() int { return f.priority }
func (f *fakeLoader) Enabled() bool { return f.enabled }

func (f *fakeLoader) Supports(desc plugin.Descriptor) bool {
	return desc.SourceType == "" || desc.SourceType == f.typ
}

func (f *fakeLoader) Init(ctx context.Context) error {
	f.recorder.record(f.typ + ".init")
	if f.initDelay > 0 {
		select {
		case <-time.After(f.initDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.initErr
}

func (f *fakeLoader) Discover(ctx context.Context) iter.Seq2[plugin.Plugin, error] {
	return func(yield func(plugin.Plugin, error) bool) {
		f.recorder.record(f.typ + ".discover")
		if f.discoverErr != nil {
			yield(nil, f.discoverErr)
			return
		}
		for i, p := range f.plugins {
			if f.beforeYield != nil {
				f.beforeYield(i)
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (f *fakeLoader) Load(ctx context.Context, desc plugin.Descriptor) (plugin.Plugin, error) {
	for _, p := range f.plugins {
		if p.ProcessID() == desc.ProcessID {
			return p, nil
		}
	}
	return nil, procerr.NewNotFound(desc.ProcessID, "")
}

func (f *fakeLoader) Unload(id string) error {
	f.recorder.record(f.typ + ".unload:" + id)
	return nil
}

func (f *fakeLoader) Shutdown(ctx context.Context) error {
	f.recorder.record(f.typ + ".shutdown")
	return f.shutdownErr
}

func testPlugin(id, version string) plugin.Plugin {
	return plugin.Func(plugin.Metadata{ProcessID: id, Version: version},
		func(ctx context.Context, req plugin.Request) (plugin.Result, error) {
			return plugin.Result{}, nil
		})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRuntime(loaders []loader.Loader, opts Options) (*Runtime, *registry.Registry) {
	reg := registry.New()
	rt := New(reg, loaders, events.NopSink{}, nil, quietLogger(), opts)
	return rt, reg
}

func TestStartRunsLoadersInPriorityOrder(t *testing.T) {
	rec := &callRecorder{}
	l1 := &fakeLoader{typ: "first", priority: 0, enabled: true, recorder: rec,
		plugins: []plugin.Plugin{testPlugin("a", "1.0.0")}}
	l2 := &fakeLoader{typ: "second", priority: 1, enabled: true, recorder: rec,
		plugins: []plugin.Plugin{testPlugin("b", "1.0.0")}}

	// Pass out of order; priority must win.
	rt, reg := newRuntime([]loader.Loader{l2, l1}, Options{})
	require.NoError(t, rt.Start(context.Background()))

	assert.Equal(t, []string{"first.init", "first.discover", "second.init", "second.discover"}, rec.snapshot())
	assert.Equal(t, StateRunning, rt.State())
	assert.True(t, rt.Ready())
	assert.Equal(t, 2, reg.Size())
}

func TestStartRegistersEachInstanceAsYielded(t *testing.T) {
	rec := &callRecorder{}
	reg := registry.New()

	l := &fakeLoader{typ: "stream", priority: 0, enabled: true, recorder: rec,
		plugins: []plugin.Plugin{testPlugin("a", "1.0.0"), testPlugin("b", "1.0.0")}}
	var sizes []int
	l.beforeYield = func(int) { sizes = append(sizes, reg.Size()) }

	rt := New(reg, []loader.Loader{l}, events.NopSink{}, nil, quietLogger(), Options{})
	require.NoError(t, rt.Start(context.Background()))

	// The first instance is registered before the loader produces the second.
	assert.Equal(t, []int{0, 1}, sizes)
	assert.Equal(t, 2, reg.Size())
}

func TestDisabledLoaderNeverTouched(t *testing.T) {
	rec := &callRecorder{}
	on := &fakeLoader{typ: "on", priority: 0, enabled: true, recorder: rec}
	off := &fakeLoader{typ: "off", priority: 1, enabled: false, recorder: rec,
		plugins: []plugin.Plugin{testPlugin("hidden", "1.0.0")}}

	rt, reg := newRuntime([]loader.Loader{on, off}, Options{})
	require.NoError(t, rt.Start(context.Background()))
	require.NoError(t, rt.Stop(context.Background()))

	for _, call := range rec.snapshot() {
		assert.NotContains(t, call, "off.")
	}
	assert.Equal(t, 0, reg.Size())
}

func TestStartFailsOnLoaderError(t *testing.T) {
	rec := &callRecorder{}
	bad := &fakeLoader{typ: "bad", priority: 0, enabled: true, recorder: rec,
		initErr: errors.New("connection refused")}
	after := &fakeLoader{typ: "after", priority: 1, enabled: true, recorder: rec}

	rt, _ := newRuntime([]loader.Loader{bad, after}, Options{})
	err := rt.Start(context.Background())
	require.Error(t, err)
	assert.True(t, procerr.IsInitializationFailure(err))
	assert.Equal(t, StateStopped, rt.State())

	// The failing loader aborts the whole sequence.
	assert.NotContains(t, rec.snapshot(), "after.init")
}

func TestStartTimesOut(t *testing.T) {
	rec := &callRecorder{}
	slow := &fakeLoader{typ: "slow", priority: 0, enabled: true, recorder: rec,
		initDelay: 500 * time.Millisecond}

	rt, _ := newRuntime([]loader.Loader{slow}, Options{StartupTimeout: 50 * time.Millisecond})
	err := rt.Start(context.Background())
	require.Error(t, err)
	assert.True(t, procerr.IsInitializationFailure(err))
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, StateStopped, rt.State())
}

func TestFailOnEmptyPolicy(t *testing.T) {
	rec := &callRecorder{}

	empty := &fakeLoader{typ: "empty", priority: 0, enabled: true, recorder: rec}
	rt, _ := newRuntime([]loader.Loader{empty}, Options{FailOnEmpty: true})
	err := rt.Start(context.Background())
	require.Error(t, err)
	assert.True(t, procerr.IsInitializationFailure(err))

	// With the policy off, an empty startup succeeds.
	empty2 := &fakeLoader{typ: "empty", priority: 0, enabled: true, recorder: rec}
	rt2, reg := newRuntime([]loader.Loader{empty2}, Options{FailOnEmpty: false})
	require.NoError(t, rt2.Start(context.Background()))
	assert.Equal(t, 0, reg.Size())
	assert.True(t, rt2.Ready())
}

func TestStartRefusedWhileRunning(t *testing.T) {
	rec := &callRecorder{}
	l := &fakeLoader{typ: "l", priority: 0, enabled: true, recorder: rec}

	rt, _ := newRuntime([]loader.Loader{l}, Options{})
	require.NoError(t, rt.Start(context.Background()))

	err := rt.Start(context.Background())
	require.Error(t, err)
	assert.True(t, procerr.IsInitializationFailure(err))
}

func TestStopIsBestEffort(t *testing.T) {
	rec := &callRecorder{}
	ok := &fakeLoader{typ: "ok", priority: 0, enabled: true, recorder: rec}
	failing := &fakeLoader{typ: "failing", priority: 1, enabled: true, recorder: rec,
		shutdownErr: errors.New("already closed")}

	rt, _ := newRuntime([]loader.Loader{ok, failing}, Options{})
	require.NoError(t, rt.Start(context.Background()))
	require.NoError(t, rt.Stop(context.Background()))

	calls := rec.snapshot()
	assert.Contains(t, calls, "ok.shutdown")
	assert.Contains(t, calls, "failing.shutdown")
	assert.Equal(t, StateStopped, rt.State())
	assert.False(t, rt.Ready())
}

func TestSystemInitializedEventCarriesCounts(t *testing.T) {
	rec := &callRecorder{}
	l := &fakeLoader{typ: "l", priority: 0, enabled: true, recorder: rec,
		plugins: []plugin.Plugin{
			testPlugin("refund", "1.0.0"),
			testPlugin("refund", "2.0.0"),
			testPlugin("notify", "1.0.0"),
		}}

	hub := events.NewHub(16)
	reg := registry.New()
	rt := New(reg, []loader.Loader{l}, hub, nil, quietLogger(), Options{})
	require.NoError(t, rt.Start(context.Background()))

	var initialized []events.Event
	for _, ev := range hub.SnapshotSince(0) {
		if ev.Type == events.TypeSystemInitialized {
			initialized = append(initialized, ev)
		}
	}
	require.Len(t, initialized, 1)
	assert.Contains(t, string(initialized[0].Data), `"process_count":2`)
	assert.Contains(t, string(initialized[0].Data), `"version_count":3`)
}

func TestLoadPluginOnDemand(t *testing.T) {
	rec := &callRecorder{}
	l := &fakeLoader{typ: "static", priority: 0, enabled: true, recorder: rec,
		plugins: []plugin.Plugin{testPlugin("ondemand", "1.0.0")}}

	rt, reg := newRuntime([]loader.Loader{l}, Options{})

	// Refused before the runtime is running.
	_, err := rt.LoadPlugin(context.Background(), plugin.Descriptor{ProcessID: "ondemand"})
	assert.True(t, procerr.IsUnavailable(err))

	require.NoError(t, rt.Start(context.Background()))
	// Startup already registered it; unload first to exercise the load path.
	require.NoError(t, rt.UnloadPlugin("ondemand", ""))
	assert.Equal(t, 0, reg.Size())

	p, err := rt.LoadPlugin(context.Background(), plugin.Descriptor{ProcessID: "ondemand"})
	require.NoError(t, err)
	assert.Equal(t, "ondemand", p.ProcessID())
	assert.Equal(t, 1, reg.Size())

	// Invalid descriptor surfaces as the caller's fault.
	_, err = rt.LoadPlugin(context.Background(), plugin.Descriptor{})
	assert.True(t, procerr.IsInvalidDescriptor(err))

	// Descriptor addressed to an unknown loader type: nothing supports it.
	_, err = rt.LoadPlugin(context.Background(), plugin.Descriptor{ProcessID: "ondemand", SourceType: "other"})
	assert.True(t, procerr.IsInvalidDescriptor(err))
}

func TestLoadPluginForceReload(t *testing.T) {
	rec := &callRecorder{}
	l := &fakeLoader{typ: "static", priority: 0, enabled: true, recorder: rec,
		plugins: []plugin.Plugin{testPlugin("p", "1.0.0")}}

	rt, reg := newRuntime([]loader.Loader{l}, Options{})
	require.NoError(t, rt.Start(context.Background()))

	registered, err := reg.LookupVersion("p", "1.0.0")
	require.NoError(t, err)

	// Without ForceReload the already-registered instance is returned.
	got, err := rt.LoadPlugin(context.Background(), plugin.Descriptor{ProcessID: "p"})
	require.NoError(t, err)
	assert.Same(t, registered, got)
}

func TestHealthCheckPublishesFailures(t *testing.T) {
	rec := &callRecorder{}
	sick := plugin.Func(plugin.Metadata{ProcessID: "sick", Version: "1.0.0"},
		func(ctx context.Context, req plugin.Request) (plugin.Result, error) {
			return plugin.Result{}, nil
		})
	// Wrap to make Health fail.
	failing := healthFailing{sick}

	l := &fakeLoader{typ: "l", priority: 0, enabled: true, recorder: rec,
		plugins: []plugin.Plugin{failing}}

	hub := events.NewHub(16)
	reg := registry.New()
	rt := New(reg, []loader.Loader{l}, hub, nil, quietLogger(), Options{})
	require.NoError(t, rt.Start(context.Background()))

	rt.HealthCheck(context.Background())

	found := false
	for _, ev := range hub.SnapshotSince(0) {
		if ev.Type == events.TypeHealthCheckFailed {
			found = true
			assert.Contains(t, string(ev.Data), "sick")
		}
	}
	assert.True(t, found)
}

type healthFailing struct {
	plugin.Plugin
}

func (h healthFailing) Health(context.Context) error {
	return errors.New("dependency unreachable")
}
