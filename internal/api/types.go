package api

import (
	"encoding/json"

	"github.com/prochub/prochub/internal/plugin"
	"github.com/prochub/prochub/internal/registry"
)

// ExecuteRequest is the JSON body for POST /execute/{tenant}/{operation}.
type ExecuteRequest struct {
	ProductID string          `json:"product_id,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Version   string          `json:"version,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ExecuteResponse is returned on a successful dispatch.
type ExecuteResponse struct {
	ExecutionID string          `json:"execution_id"`
	ProcessID   string          `json:"process_id"`
	Version     string          `json:"version"`
	Vanilla     bool            `json:"vanilla,omitempty"`
	ElapsedMs   int64           `json:"elapsed_ms"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Output      map[string]any  `json:"output,omitempty"`
}

// LoadRequest is the JSON body for POST /processes/load.
type LoadRequest struct {
	ProcessID   string `json:"process_id"`
	Handle      string `json:"handle,omitempty"`
	SourceType  string `json:"source_type,omitempty"`
	ForceReload bool   `json:"force_reload,omitempty"`
}

// LoadResponse is returned when a plugin was loaded on demand.
type LoadResponse struct {
	ProcessID string          `json:"process_id"`
	Version   string          `json:"version"`
	Metadata  plugin.Metadata `json:"metadata"`
}

// ProcessListResponse is returned by GET /processes.
type ProcessListResponse struct {
	Processes []registry.ProcessInfo `json:"processes"`
	Count     int                    `json:"count"`
}

// InvalidateResponse is returned by DELETE /mappings/{tenant}.
type InvalidateResponse struct {
	TenantID string `json:"tenant_id"`
	Dropped  int    `json:"dropped"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	Ready         bool   `json:"ready"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ProcessCount  int    `json:"process_count"`
	VersionCount  int    `json:"version_count"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
