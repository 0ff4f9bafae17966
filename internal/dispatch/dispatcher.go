// Package dispatch is the execution pipeline: resolve the routing decision,
// look up the plugin instance, authorize the caller, then invoke with a
// bounded deadline. Authorization always happens before the first execution
// event so denied calls never look like attempts.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/prochub/prochub/internal/authz"
	"github.com/prochub/prochub/internal/events"
	"github.com/prochub/prochub/internal/mapping"
	"github.com/prochub/prochub/internal/metrics"
	"github.com/prochub/prochub/internal/plugin"
	"github.com/prochub/prochub/internal/procerr"
	"github.com/prochub/prochub/internal/registry"
)

// DefaultTimeout bounds one plugin invocation when the caller's context
// carries no earlier deadline.
const DefaultTimeout = 30 * time.Second

// Call is one dispatch request as received from the API surface.
type Call struct {
	TenantID    string
	OperationID string
	ProductID   string
	Channel     string
	// Version pins a specific registered version. Empty means the mapping's
	// version, falling back to the registry's current version.
	Version string
	Payload []byte
}

// Record is the outcome of one dispatch, successful or not.
type Record struct {
	ExecutionID string        `json:"execution_id"`
	ProcessID   string        `json:"process_id"`
	Version     string        `json:"version"`
	Vanilla     bool          `json:"vanilla,omitempty"`
	Elapsed     time.Duration `json:"-"`
	ElapsedMs   int64         `json:"elapsed_ms"`
	Result      plugin.Result `json:"result"`
}

// Resolver yields the routing decision for a call. *mapping.Cache satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, key mapping.Key) (mapping.Mapping, error)
}

// Readiness gates dispatching on runtime state. *runtime.Runtime satisfies it.
type Readiness interface {
	Ready() bool
}

// Options tune a Dispatcher.
type Options struct {
	// Timeout bounds each invocation. Zero takes DefaultTimeout.
	Timeout time.Duration
}

// Dispatcher executes operations against registered process plugins.
type Dispatcher struct {
	ready    Readiness
	resolver Resolver
	registry *registry.Registry
	gate     authz.Gate
	events   events.Sink
	metrics  metrics.Sink
	logger   *slog.Logger
	timeout  time.Duration
}

// New wires a dispatcher. Nil gate defaults to SessionGate, nil sinks to
// no-ops.
func New(ready Readiness, resolver Resolver, reg *registry.Registry, gate authz.Gate, sink events.Sink, m metrics.Sink, logger *slog.Logger, opts Options) *Dispatcher {
	if gate == nil {
		gate = authz.SessionGate{}
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Dispatcher{
		ready:    ready,
		resolver: resolver,
		registry: reg,
		gate:     gate,
		events:   sink,
		metrics:  m,
		logger:   logger,
		timeout:  opts.Timeout,
	}
}

// Execute runs one call end to end. The caller's session must already be
// attached to ctx (or passed explicitly through ExecuteAs).
func (d *Dispatcher) Execute(ctx context.Context, call Call) (Record, error) {
	session, _ := authz.FromContext(ctx)
	return d.ExecuteAs(ctx, session, call)
}

// ExecuteAs runs one call under an explicit session.
func (d *Dispatcher) ExecuteAs(ctx context.Context, session authz.Session, call Call) (Record, error) {
	if d.ready != nil && !d.ready.Ready() {
		return Record{}, &procerr.UnavailableError{State: "not running"}
	}
	if call.TenantID == "" || call.OperationID == "" {
		return Record{}, procerr.NewInvalidDescriptor("tenant id and operation id are required")
	}

	m, err := d.resolver.Resolve(ctx, mapping.Key{
		TenantID:    call.TenantID,
		OperationID: call.OperationID,
		ProductID:   call.ProductID,
		Channel:     call.Channel,
	})
	if err != nil {
		return Record{}, err
	}

	// Explicit version on the call wins, then the mapping's pin, then the
	// registry's notion of current.
	version := call.Version
	if version == "" {
		version = m.Version
	}

	var p plugin.Plugin
	if version == "" {
		p, err = d.registry.Lookup(m.ProcessID)
	} else {
		p, err = d.registry.LookupVersion(m.ProcessID, version)
	}
	if err != nil {
		return Record{}, err
	}

	md := p.Metadata()
	if err := d.gate.Authorize(ctx, session, p.ProcessID(), authz.Requirements{
		Permissions: md.RequiredPermissions,
		Roles:       md.RequiredRoles,
		Features:    md.RequiredFeatures,
	}); err != nil {
		return Record{}, err
	}

	executionID := uuid.NewString()
	logger := d.logger.With(
		"execution_id", executionID,
		"process_id", p.ProcessID(),
		"version", p.Version(),
		"tenant_id", call.TenantID,
		"operation_id", call.OperationID,
	)
	if md.Deprecated {
		logger.Warn("dispatching to deprecated process", "replaced_by", md.ReplacedBy)
	}

	events.Notify(logger, events.TypeExecutionStarted, func() {
		d.events.Publish(events.TypeExecutionStarted, events.ExecutionPayload{
			ExecutionID: executionID,
			ProcessID:   p.ProcessID(),
			Version:     p.Version(),
			TenantID:    call.TenantID,
			OperationID: call.OperationID,
			Vanilla:     m.Vanilla,
		})
	})

	execCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	began := time.Now()
	result, execErr := p.Execute(execCtx, plugin.Request{
		ExecutionID: executionID,
		OperationID: call.OperationID,
		TenantID:    call.TenantID,
		ProductID:   call.ProductID,
		Channel:     call.Channel,
		Payload:     call.Payload,
	})
	elapsed := time.Since(began)

	if execErr != nil {
		failure := d.classify(p, execCtx, execErr)
		d.metrics.RecordExecution(p.ProcessID(), metrics.StatusFailed, elapsed)
		events.Notify(logger, events.TypeExecutionFailed, func() {
			d.events.Publish(events.TypeExecutionFailed, events.ExecutionPayload{
				ExecutionID: executionID,
				ProcessID:   p.ProcessID(),
				Version:     p.Version(),
				TenantID:    call.TenantID,
				Code:        failure.Code,
				Error:       failure.Message,
				ElapsedMs:   elapsed.Milliseconds(),
			})
		})
		logger.Error("execution failed", "code", failure.Code, "error", execErr, "elapsed_ms", elapsed.Milliseconds())
		return Record{}, failure
	}

	d.metrics.RecordExecution(p.ProcessID(), metrics.StatusSucceeded, elapsed)
	events.Notify(logger, events.TypeExecutionCompleted, func() {
		d.events.Publish(events.TypeExecutionCompleted, events.ExecutionPayload{
			ExecutionID: executionID,
			ProcessID:   p.ProcessID(),
			Version:     p.Version(),
			TenantID:    call.TenantID,
			ElapsedMs:   elapsed.Milliseconds(),
		})
	})
	logger.Info("execution completed", "elapsed_ms", elapsed.Milliseconds())

	return Record{
		ExecutionID: executionID,
		ProcessID:   p.ProcessID(),
		Version:     p.Version(),
		Vanilla:     m.Vanilla,
		Elapsed:     elapsed,
		ElapsedMs:   elapsed.Milliseconds(),
		Result:      result,
	}, nil
}

// classify maps an invocation failure to a stable execution error code.
// A deadline hit on the per-call context is a timeout; cancellation from the
// caller side keeps its own code so clients can tell the two apart.
func (d *Dispatcher) classify(p plugin.Plugin, execCtx context.Context, execErr error) *procerr.ExecutionError {
	code := procerr.CodeExecFailed
	switch {
	case errors.Is(execCtx.Err(), context.DeadlineExceeded) || errors.Is(execErr, context.DeadlineExceeded):
		code = procerr.CodeExecTimeout
	case errors.Is(execCtx.Err(), context.Canceled) || errors.Is(execErr, context.Canceled):
		code = procerr.CodeExecCanceled
	}
	return procerr.NewExecutionFailure(p.ProcessID(), p.Version(), code, execErr)
}
