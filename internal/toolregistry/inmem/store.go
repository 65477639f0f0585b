// Package inmem provides an in-memory implementation of toolregistry.Store
// for tests and local development.
package inmem

import (
	"context"
	"sync"

	"github.com/flowforge/orchestrator/internal/toolregistry"
)

// Store is an in-memory implementation of toolregistry.Store. It is safe
// for concurrent use.
type Store struct {
	mu   sync.Mutex
	runs map[string]map[string]toolregistry.RegisteredTool
}

// New returns an empty Store.
func New() *Store {
	return &Store{runs: make(map[string]map[string]toolregistry.RegisteredTool)}
}

// Put implements toolregistry.Store.
func (s *Store) Put(_ context.Context, tool toolregistry.RegisteredTool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes, ok := s.runs[tool.RunID]
	if !ok {
		nodes = make(map[string]toolregistry.RegisteredTool)
		s.runs[tool.RunID] = nodes
	}
	nodes[tool.NodeID] = tool
	return nil
}

// Get implements toolregistry.Store.
func (s *Store) Get(_ context.Context, runID, nodeID string) (toolregistry.RegisteredTool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tool, ok := s.runs[runID][nodeID]
	return tool, ok, nil
}

// ListByRun implements toolregistry.Store.
func (s *Store) ListByRun(_ context.Context, runID string) ([]toolregistry.RegisteredTool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := s.runs[runID]
	out := make([]toolregistry.RegisteredTool, 0, len(nodes))
	for _, tool := range nodes {
		out = append(out, tool)
	}
	return out, nil
}

// DeleteByRun implements toolregistry.Store.
func (s *Store) DeleteByRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}
