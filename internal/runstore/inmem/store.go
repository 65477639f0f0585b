// Package inmem provides an in-memory implementation of runstore.Store.
//
// It is intended for tests and local development. Production deployments
// should use a durable implementation backed by the configured database.
package inmem

import (
	"context"
	"sort"
	"sync"

	"github.com/flowforge/orchestrator/internal/model"
)

// Store is an in-memory implementation of runstore.Store. It is safe for
// concurrent use.
type Store struct {
	mu   sync.Mutex
	runs map[string]model.Run
}

// New returns an empty Store.
func New() *Store {
	return &Store{runs: make(map[string]model.Run)}
}

// Create implements runstore.Store.
func (s *Store) Create(_ context.Context, run model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

// Get implements runstore.Store.
func (s *Store) Get(_ context.Context, runID string) (model.Run, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	return run, ok, nil
}

// Update implements runstore.Store.
func (s *Store) Update(_ context.Context, runID string, mutate func(model.Run) model.Run) (model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return model.Run{}, errNotFound{runID: runID}
	}
	updated := mutate(run)
	s.runs[runID] = updated
	return updated, nil
}

// List implements runstore.Store.
func (s *Store) List(_ context.Context, organizationID string) ([]model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if organizationID != "" && run.OrganizationID != organizationID {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type errNotFound struct{ runID string }

func (e errNotFound) Error() string { return "runstore: run " + e.runID + " not found" }
