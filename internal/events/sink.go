// Package events carries the runtime's lifecycle notifications: an in-memory
// hub with a ring buffer for late subscribers, plus the Notify helper that
// enforces the best-effort contract around every sink call.
package events

import "log/slog"

// Lifecycle event types published by the runtime and dispatcher.
const (
	TypePluginRegistered   = "plugin.registered"
	TypePluginUnregistered = "plugin.unregistered"
	TypeExecutionStarted   = "execution.started"
	TypeExecutionCompleted = "execution.completed"
	TypeExecutionFailed    = "execution.failed"
	TypeHealthCheckFailed  = "plugin.health_failed"
	TypeSystemInitialized  = "system.initialized"
)

// Sink receives fire-and-forget notifications. Implementations may block or
// fail internally; callers always go through Notify so a broken sink never
// affects control flow.
type Sink interface {
	Publish(eventType string, data any)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Publish(string, any) {}

// Notify runs one sink call, absorbing panics. Sink failures are logged and
// never propagated to the caller.
func Notify(logger *slog.Logger, eventType string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event sink failed", "event", eventType, "panic", r)
		}
	}()
	fn()
}
