package executor

import (
	"sync"

	"github.com/flowforge/orchestrator/internal/engine"
)

// HandleRegistry is the process-wide map from run id to its live
// engine.WorkflowHandle, implementing RunHandles for the ApprovalSignaler
// and GatewayAdapter. Entries must be removed once a run reaches a
// terminal status so a stale handle is never signaled.
type HandleRegistry struct {
	mu      sync.RWMutex
	handles map[string]engine.WorkflowHandle
}

// NewHandleRegistry constructs an empty HandleRegistry.
func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{handles: make(map[string]engine.WorkflowHandle)}
}

// Put registers runID's handle, replacing any previous entry.
func (r *HandleRegistry) Put(runID string, h engine.WorkflowHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[runID] = h
}

// Delete removes runID's handle, e.g. once the run completes.
func (r *HandleRegistry) Delete(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, runID)
}

// Handle implements RunHandles.
func (r *HandleRegistry) Handle(runID string) (engine.WorkflowHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[runID]
	return h, ok
}
