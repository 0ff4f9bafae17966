// Package handlers holds the built-in process handlers: the compiled-in
// static registration table and the factories the manifest loader uses to
// build instances for declarative manifests.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prochub/prochub/internal/loader"
	"github.com/prochub/prochub/internal/plugin"
)

// Builtin is the static registration table: compiled-in plugins discovered
// by the static loader in this order.
func Builtin() []plugin.Plugin {
	return []plugin.Plugin{
		plugin.Func(plugin.Metadata{
			ProcessID:   "echo",
			Version:     "1.0.0",
			Name:        "Echo",
			Description: "Returns the request payload unchanged.",
			Category:    "diagnostics",
			Vanilla:     true,
		}, echo),
	}
}

// Factories maps manifest handler names to constructors.
func Factories() map[string]loader.HandlerFactory {
	return map[string]loader.HandlerFactory{
		"echo":            newEcho,
		"static-response": newStaticResponse,
	}
}

func echo(_ context.Context, req plugin.Request) (plugin.Result, error) {
	return plugin.Result{
		Payload: req.Payload,
		Output: map[string]any{
			"execution_id": req.ExecutionID,
			"operation_id": req.OperationID,
		},
	}, nil
}

func newEcho(m *plugin.Manifest) (plugin.Plugin, error) {
	return plugin.Func(m.ToMetadata(""), echo), nil
}

// newStaticResponse builds a handler that always answers with the response
// block from the manifest's config.
func newStaticResponse(m *plugin.Manifest) (plugin.Plugin, error) {
	response, ok := m.Config["response"]
	if !ok {
		return nil, fmt.Errorf("static-response handler for %s: config.response is required", m.ProcessID)
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("static-response handler for %s: config.response is not serializable: %w", m.ProcessID, err)
	}

	return plugin.Func(m.ToMetadata(""), func(context.Context, plugin.Request) (plugin.Result, error) {
		return plugin.Result{Payload: payload}, nil
	}), nil
}
