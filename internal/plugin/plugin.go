// Package plugin defines the process plugin contract: the executable unit
// the registry stores and the dispatcher invokes, its metadata, and the
// declarative manifest loaders use to synthesize metadata for handlers that
// do not describe themselves.
package plugin

import (
	"context"
	"encoding/json"
)

// Plugin is a versioned, executable handler unit registered under a process id.
type Plugin interface {
	// ProcessID is the stable registry key. Never empty.
	ProcessID() string
	// Version is the semantic version string of this instance.
	Version() string
	// Metadata describes the plugin. Immutable once constructed.
	Metadata() Metadata
	// Init performs one-time async setup. It is invoked exactly once before
	// the instance becomes visible in the registry and must be idempotent.
	Init(ctx context.Context) error
	// Execute runs one operation. The dispatcher applies a deadline via ctx.
	Execute(ctx context.Context, req Request) (Result, error)
	// Health reports whether the plugin can currently serve executions.
	Health(ctx context.Context) error
}

// Request carries one execution through a plugin.
type Request struct {
	ExecutionID string          `json:"execution_id"`
	OperationID string          `json:"operation_id"`
	TenantID    string          `json:"tenant_id"`
	ProductID   string          `json:"product_id,omitempty"`
	Channel     string          `json:"channel,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Result is a plugin's typed execution outcome.
type Result struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Output  map[string]any  `json:"output,omitempty"`
}

// ExecuteFunc adapts a plain function to the Execute capability.
type ExecuteFunc func(ctx context.Context, req Request) (Result, error)

// funcPlugin backs Func. Init and Health are no-ops.
type funcPlugin struct {
	md Metadata
	fn ExecuteFunc
}

// Func wraps fn as a Plugin carrying md. Useful for static registration
// tables and tests.
func Func(md Metadata, fn ExecuteFunc) Plugin {
	return &funcPlugin{md: md, fn: fn}
}

func (p *funcPlugin) ProcessID() string            { return p.md.ProcessID }
func (p *funcPlugin) Version() string              { return p.md.Version }
func (p *funcPlugin) Metadata() Metadata           { return p.md }
func (p *funcPlugin) Init(context.Context) error   { return nil }
func (p *funcPlugin) Health(context.Context) error { return nil }

func (p *funcPlugin) Execute(ctx context.Context, req Request) (Result, error) {
	return p.fn(ctx, req)
}
