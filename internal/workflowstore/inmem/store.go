// Package inmem provides an in-memory implementation of workflowstore.Store.
//
// It is intended for tests and local development. Production deployments
// should use a durable implementation backed by the configured database.
package inmem

import (
	"context"
	"sort"
	"sync"

	"github.com/flowforge/orchestrator/internal/workflowstore"
)

// Store is an in-memory implementation of workflowstore.Store. It is safe
// for concurrent use.
type Store struct {
	mu        sync.Mutex
	workflows map[string]workflowstore.Workflow
}

// New returns an empty Store.
func New() *Store {
	return &Store{workflows: make(map[string]workflowstore.Workflow)}
}

// Create implements workflowstore.Store.
func (s *Store) Create(_ context.Context, wf workflowstore.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.ID] = wf
	return nil
}

// Get implements workflowstore.Store.
func (s *Store) Get(_ context.Context, id string) (workflowstore.Workflow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	return wf, ok, nil
}

// Update implements workflowstore.Store.
func (s *Store) Update(_ context.Context, id string, mutate func(workflowstore.Workflow) workflowstore.Workflow) (workflowstore.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return workflowstore.Workflow{}, errNotFound{id: id}
	}
	updated := mutate(wf)
	s.workflows[id] = updated
	return updated, nil
}

// List implements workflowstore.Store.
func (s *Store) List(_ context.Context, organizationID string) ([]workflowstore.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]workflowstore.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		if organizationID != "" && wf.OrganizationID != organizationID {
			continue
		}
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type errNotFound struct{ id string }

func (e errNotFound) Error() string { return "workflowstore: workflow " + e.id + " not found" }
