// Package metrics defines the record contract the runtime and dispatcher
// report into, plus an in-memory recorder exposed through the HTTP surface.
package metrics

import (
	"sync"
	"time"
)

// Execution statuses recorded per dispatch.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Sink receives best-effort measurements. Implementations must be safe for
// concurrent callers.
type Sink interface {
	RecordInitialization(elapsed time.Duration, pluginCount int)
	SetRegisteredPluginCount(n int)
	RecordExecution(processID, status string, elapsed time.Duration)
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheFallback()
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordInitialization(time.Duration, int)       {}
func (Nop) SetRegisteredPluginCount(int)                  {}
func (Nop) RecordExecution(string, string, time.Duration) {}
func (Nop) RecordCacheHit()                               {}
func (Nop) RecordCacheMiss()                              {}
func (Nop) RecordCacheFallback()                          {}

// ProcessStats aggregates execution outcomes for one process id.
type ProcessStats struct {
	Succeeded     int64         `json:"succeeded"`
	Failed        int64         `json:"failed"`
	TotalDuration time.Duration `json:"total_duration_ns"`
}

// Snapshot is a point-in-time copy of the recorder's counters.
type Snapshot struct {
	InitializationMs      int64                   `json:"initialization_ms"`
	InitializedPlugins    int                     `json:"initialized_plugins"`
	RegisteredPluginCount int                     `json:"registered_plugin_count"`
	CacheHits             int64                   `json:"cache_hits"`
	CacheMisses           int64                   `json:"cache_misses"`
	CacheFallbacks        int64                   `json:"cache_fallbacks"`
	Executions            map[string]ProcessStats `json:"executions"`
}

// Recorder is the in-memory Sink implementation.
type Recorder struct {
	mu sync.Mutex

	initMs          int64
	initPlugins     int
	registeredCount int
	cacheHits       int64
	cacheMisses     int64
	cacheFallbacks  int64
	executions      map[string]ProcessStats
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{executions: make(map[string]ProcessStats)}
}

func (r *Recorder) RecordInitialization(elapsed time.Duration, pluginCount int) {
	r.mu.Lock()
	r.initMs = elapsed.Milliseconds()
	r.initPlugins = pluginCount
	r.mu.Unlock()
}

func (r *Recorder) SetRegisteredPluginCount(n int) {
	r.mu.Lock()
	r.registeredCount = n
	r.mu.Unlock()
}

func (r *Recorder) RecordExecution(processID, status string, elapsed time.Duration) {
	r.mu.Lock()
	stats := r.executions[processID]
	switch status {
	case StatusSucceeded:
		stats.Succeeded++
	default:
		stats.Failed++
	}
	stats.TotalDuration += elapsed
	r.executions[processID] = stats
	r.mu.Unlock()
}

func (r *Recorder) RecordCacheHit() {
	r.mu.Lock()
	r.cacheHits++
	r.mu.Unlock()
}

func (r *Recorder) RecordCacheMiss() {
	r.mu.Lock()
	r.cacheMisses++
	r.mu.Unlock()
}

func (r *Recorder) RecordCacheFallback() {
	r.mu.Lock()
	r.cacheFallbacks++
	r.mu.Unlock()
}

// Snapshot copies the current counters.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	executions := make(map[string]ProcessStats, len(r.executions))
	for k, v := range r.executions {
		executions[k] = v
	}
	return Snapshot{
		InitializationMs:      r.initMs,
		InitializedPlugins:    r.initPlugins,
		RegisteredPluginCount: r.registeredCount,
		CacheHits:             r.cacheHits,
		CacheMisses:           r.cacheMisses,
		CacheFallbacks:        r.cacheFallbacks,
		Executions:            executions,
	}
}
