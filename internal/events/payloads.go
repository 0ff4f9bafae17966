package events

// scoped lets a payload promote the process and tenant it concerns onto the
// event envelope.
type scoped interface {
	scope() (processID, tenantID string)
}

// RegistrationPayload rides plugin.registered and plugin.unregistered.
// Version is empty when an unregistration removed every version at once.
type RegistrationPayload struct {
	ProcessID string `json:"process_id"`
	Version   string `json:"version"`
	Loader    string `json:"loader,omitempty"`
}

func (p RegistrationPayload) scope() (string, string) { return p.ProcessID, "" }

// ExecutionPayload rides the execution lifecycle events. Started carries the
// call identifiers; completed and failed carry the outcome fields.
type ExecutionPayload struct {
	ExecutionID string `json:"execution_id"`
	ProcessID   string `json:"process_id"`
	Version     string `json:"version"`
	TenantID    string `json:"tenant_id,omitempty"`
	OperationID string `json:"operation_id,omitempty"`
	Vanilla     bool   `json:"vanilla,omitempty"`
	Code        string `json:"code,omitempty"`
	Error       string `json:"error,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms,omitempty"`
}

func (p ExecutionPayload) scope() (string, string) { return p.ProcessID, p.TenantID }

// HealthPayload rides plugin.health_failed.
type HealthPayload struct {
	ProcessID string `json:"process_id"`
	Version   string `json:"version"`
	Error     string `json:"error"`
}

func (p HealthPayload) scope() (string, string) { return p.ProcessID, "" }

// StartupPayload rides system.initialized.
type StartupPayload struct {
	ProcessCount int   `json:"process_count"`
	VersionCount int   `json:"version_count"`
	ElapsedMs    int64 `json:"elapsed_ms"`
}
