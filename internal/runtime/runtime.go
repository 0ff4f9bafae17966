// Package runtime sequences startup and shutdown across all loaders and the
// registry. Startup deliberately blocks the hosting process until the whole
// bounded sequence completes or times out: the system must not accept
// dispatches before the registry is populated.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prochub/prochub/internal/events"
	"github.com/prochub/prochub/internal/loader"
	"github.com/prochub/prochub/internal/metrics"
	"github.com/prochub/prochub/internal/plugin"
	"github.com/prochub/prochub/internal/procerr"
	"github.com/prochub/prochub/internal/registry"
)

// State is the runtime lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

const (
	// DefaultStartupTimeout bounds the entire startup sequence.
	DefaultStartupTimeout = 2 * time.Minute
	// DefaultShutdownTimeout bounds the best-effort loader shutdowns.
	DefaultShutdownTimeout = 30 * time.Second
)

// Options tune the orchestrator. Zero values take the defaults.
type Options struct {
	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration
	// FailOnEmpty makes startup fatal when no process id was discovered.
	FailOnEmpty bool
}

// Runtime drives the loaders and owns the lifecycle state machine:
// stopped → starting → running → stopping → stopped. A failure during
// starting is terminal for that attempt; the hosting process fails fast.
type Runtime struct {
	registry *registry.Registry
	loaders  []loader.Loader
	events   events.Sink
	metrics  metrics.Sink
	logger   *slog.Logger
	opts     Options

	mu        sync.Mutex
	state     State
	startedAt time.Time
}

// New wires a runtime. Nil sinks default to no-ops.
func New(reg *registry.Registry, loaders []loader.Loader, sink events.Sink, m metrics.Sink, logger *slog.Logger, opts Options) *Runtime {
	if sink == nil {
		sink = events.NopSink{}
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Runtime{
		registry: reg,
		loaders:  loaders,
		events:   sink,
		metrics:  m,
		logger:   logger,
		opts:     opts,
		state:    StateStopped,
	}
}

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Ready reports whether dispatches are accepted.
func (r *Runtime) Ready() bool {
	return r.State() == StateRunning
}

// Uptime is zero until the runtime reaches running.
func (r *Runtime) Uptime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return 0
	}
	return time.Since(r.startedAt)
}

// Start brings all enabled loaders online in priority order and populates
// the registry. It blocks until the sequence completes, fails, or the
// startup timeout elapses; any failure aborts startup as a fatal
// InitializationFailure with no partial retry.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateStopped {
		state := r.state
		r.mu.Unlock()
		return procerr.NewInitializationFailure(fmt.Errorf("cannot start from state %q", state))
	}
	r.state = StateStarting
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.opts.StartupTimeout)
	defer cancel()

	began := time.Now()
	if err := r.startSequence(ctx); err != nil {
		r.mu.Lock()
		r.state = StateStopped
		r.mu.Unlock()
		if ctx.Err() != nil {
			err = fmt.Errorf("startup timed out after %s: %w", r.opts.StartupTimeout, err)
		}
		return procerr.NewInitializationFailure(err)
	}

	elapsed := time.Since(began)
	processCount := r.registry.Size()
	versionCount := r.registry.TotalVersionCount()

	r.mu.Lock()
	r.state = StateRunning
	r.startedAt = time.Now()
	r.mu.Unlock()

	events.Notify(r.logger, events.TypeSystemInitialized, func() {
		r.events.Publish(events.TypeSystemInitialized, events.StartupPayload{
			ProcessCount: processCount,
			VersionCount: versionCount,
			ElapsedMs:    elapsed.Milliseconds(),
		})
	})
	r.metrics.RecordInitialization(elapsed, processCount)
	r.metrics.SetRegisteredPluginCount(versionCount)

	r.logger.Info("runtime initialized",
		"process_count", processCount,
		"version_count", versionCount,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return nil
}

// startSequence runs the loaders strictly sequentially by ascending
// priority: each loader is initialized and fully drained before the next one
// is touched.
func (r *Runtime) startSequence(ctx context.Context) error {
	enabled := r.enabledLoaders()

	for _, ld := range enabled {
		if err := ctx.Err(); err != nil {
			return err
		}

		ldLogger := r.logger.With("loader", ld.Type(), "priority", ld.Priority())
		ldLogger.Info("initializing loader")
		if err := ld.Init(ctx); err != nil {
			return fmt.Errorf("loader %s: initialize: %w", ld.Type(), err)
		}

		discovered := 0
		for p, derr := range ld.Discover(ctx) {
			if derr != nil {
				return fmt.Errorf("loader %s: discover: %w", ld.Type(), derr)
			}
			// Register as yielded: each instance is online before the
			// loader produces the next one.
			if err := r.bringOnline(ctx, p, ld.Type()); err != nil {
				return fmt.Errorf("loader %s: plugin %s@%s: %w", ld.Type(), p.ProcessID(), p.Version(), err)
			}
			discovered++
		}
		ldLogger.Info("loader drained", "discovered", discovered)
	}

	if r.opts.FailOnEmpty && r.registry.Size() == 0 {
		return fmt.Errorf("no process plugins discovered and fail_on_empty is set")
	}
	return nil
}

// bringOnline initializes one plugin and registers it. Init runs exactly once
// before the instance becomes visible to lookups.
func (r *Runtime) bringOnline(ctx context.Context, p plugin.Plugin, loaderType string) error {
	if err := p.Init(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := r.registry.Register(p); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	events.Notify(r.logger, events.TypePluginRegistered, func() {
		r.events.Publish(events.TypePluginRegistered, events.RegistrationPayload{
			ProcessID: p.ProcessID(),
			Version:   p.Version(),
			Loader:    loaderType,
		})
	})
	return nil
}

// Stop shuts down all enabled loaders, best-effort and concurrently, bounded
// by the shutdown timeout. Individual shutdown errors are logged, never
// propagated. Dispatches stop being accepted the moment the state leaves
// running.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateRunning {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("cannot stop from state %q", state)
	}
	r.state = StateStopping
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.opts.ShutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, ld := range r.enabledLoaders() {
		wg.Add(1)
		go func(ld loader.Loader) {
			defer wg.Done()
			if err := ld.Shutdown(ctx); err != nil {
				r.logger.Error("loader shutdown failed", "loader", ld.Type(), "error", err)
			}
		}(ld)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Error("shutdown timed out", "timeout", r.opts.ShutdownTimeout)
	}

	r.mu.Lock()
	r.state = StateStopped
	r.mu.Unlock()
	r.logger.Info("runtime stopped")
	return nil
}

// LoadPlugin resolves desc through the first enabled loader (in priority
// order) whose Supports accepts it, initializes the instance, and registers
// it. Without ForceReload, an already-registered (id, version) pair is
// returned as-is.
func (r *Runtime) LoadPlugin(ctx context.Context, desc plugin.Descriptor) (plugin.Plugin, error) {
	if !r.Ready() {
		return nil, &procerr.UnavailableError{State: string(r.State())}
	}
	if err := desc.Validate(); err != nil {
		return nil, procerr.NewInvalidDescriptor(err.Error())
	}

	for _, ld := range r.enabledLoaders() {
		if !ld.Supports(desc) {
			continue
		}
		p, err := ld.Load(ctx, desc)
		if err != nil {
			return nil, err
		}

		if !desc.ForceReload {
			if existing, err := r.registry.LookupVersion(p.ProcessID(), p.Version()); err == nil {
				return existing, nil
			}
		}
		if err := r.bringOnline(ctx, p, ld.Type()); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, procerr.NewInvalidDescriptor("no enabled loader supports descriptor for " + desc.ProcessID)
}

// UnloadPlugin removes a process (or one version of it) from the registry
// and, best-effort, from every enabled loader's tracking.
func (r *Runtime) UnloadPlugin(id, version string) error {
	var err error
	if version == "" {
		err = r.registry.Unregister(id)
	} else {
		err = r.registry.UnregisterVersion(id, version)
	}
	if err != nil {
		return err
	}

	for _, ld := range r.enabledLoaders() {
		if uerr := ld.Unload(id); uerr != nil {
			r.logger.Warn("loader unload failed", "loader", ld.Type(), "process_id", id, "error", uerr)
		}
	}

	events.Notify(r.logger, events.TypePluginUnregistered, func() {
		r.events.Publish(events.TypePluginUnregistered, events.RegistrationPayload{
			ProcessID: id,
			Version:   version,
		})
	})
	return nil
}

// HealthCheck sweeps the current version of every registered process and
// reports failures to the event sink.
func (r *Runtime) HealthCheck(ctx context.Context) {
	for _, id := range r.registry.ProcessIDs() {
		p, err := r.registry.Lookup(id)
		if err != nil {
			continue
		}
		if herr := p.Health(ctx); herr != nil {
			r.logger.Warn("plugin health check failed",
				"process_id", p.ProcessID(), "version", p.Version(), "error", herr)
			events.Notify(r.logger, events.TypeHealthCheckFailed, func() {
				r.events.Publish(events.TypeHealthCheckFailed, events.HealthPayload{
					ProcessID: p.ProcessID(),
					Version:   p.Version(),
					Error:     herr.Error(),
				})
			})
		}
	}
}

// enabledLoaders filters and stable-sorts by ascending priority.
func (r *Runtime) enabledLoaders() []loader.Loader {
	enabled := make([]loader.Loader, 0, len(r.loaders))
	for _, ld := range r.loaders {
		if ld.Enabled() {
			enabled = append(enabled, ld)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority() < enabled[j].Priority()
	})
	return enabled
}
