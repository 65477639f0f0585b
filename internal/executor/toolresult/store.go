// Package toolresult provides an in-memory executor.ToolResultStore for
// tests and single-process deployments.
package toolresult

import (
	"context"
	"sync"

	"github.com/flowforge/orchestrator/internal/model"
)

// Store is a mutex-guarded map keyed by callId. Entries are never pruned
// and the Store has no method to remove them; their memory is reclaimed
// only when the process restarts.
type Store struct {
	mu      sync.Mutex
	results map[string]model.ToolCallResult
}

// New constructs an empty Store.
func New() *Store {
	return &Store{results: make(map[string]model.ToolCallResult)}
}

// Put records callID's result, overwriting any previous value. The
// Executor only calls this once per callID: handleToolCall drops a
// redelivered signal before it reaches ActivityRunToolCall.
func (s *Store) Put(_ context.Context, callID string, result model.ToolCallResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[callID] = result
	return nil
}

// Get returns callID's result, or ok=false while it is still pending.
func (s *Store) Get(_ context.Context, callID string) (model.ToolCallResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[callID]
	return r, ok, nil
}
