// Package inmem provides an in-memory implementation of trace.Store.
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

// Store is an in-memory implementation of trace.Store. It is safe for
// concurrent use.
type Store struct {
	mu     sync.Mutex
	seqs   map[string]int64
	events map[string][]model.TraceEvent
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		seqs:   make(map[string]int64),
		events: make(map[string][]model.TraceEvent),
	}
}

// NextSequence implements trace.Store.
func (s *Store) NextSequence(_ context.Context, runID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[runID]++
	return s.seqs[runID], nil
}

// Insert implements trace.Store.
func (s *Store) Insert(_ context.Context, evt model.TraceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events[evt.RunID] {
		if existing.Sequence == evt.Sequence {
			return errSequenceConflict{runID: evt.RunID, sequence: evt.Sequence}
		}
	}
	s.events[evt.RunID] = append(s.events[evt.RunID], evt)
	return nil
}

// ListByRunID implements trace.Store.
func (s *Store) ListByRunID(_ context.Context, runID string) ([]model.TraceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.TraceEvent(nil), s.events[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// ListSince implements trace.Store.
func (s *Store) ListSince(_ context.Context, runID string, after int64) ([]model.TraceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TraceEvent
	for _, evt := range s.events[runID] {
		if evt.Sequence > after {
			out = append(out, evt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// CountByType implements trace.Store.
func (s *Store) CountByType(_ context.Context, runID string, typ model.TraceEventType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, evt := range s.events[runID] {
		if evt.Type == typ {
			n++
		}
	}
	return n, nil
}

type errSequenceConflict struct {
	runID    string
	sequence int64
}

func (e errSequenceConflict) Error() string {
	return "trace: sequence already assigned for run"
}
