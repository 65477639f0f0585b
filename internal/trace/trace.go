// Package trace implements the Trace Sink (§4.9): the append-only,
// monotonically sequenced event log that every run's nodes write to and
// that the HTTP surface's trace/stream endpoints read from.
package trace

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/model"
)

// Store persists trace events and assigns their sequence numbers. Sequence
// assignment must be atomic per run: concurrent appends for the same run
// never observe or hand out the same sequence twice.
type Store interface {
	// NextSequence returns lastSequence(runId)+1, starting at 1 for a run
	// with no events yet. Two concurrent callers may receive the same
	// value; Sink.Append resolves that by retrying NextSequence/Insert
	// when Insert rejects a duplicate sequence.
	NextSequence(ctx context.Context, runID string) (int64, error)
	// Insert persists evt. Implementations must reject (and the caller
	// must retry with a fresh NextSequence) if evt.Sequence already exists
	// for evt.RunID.
	Insert(ctx context.Context, evt model.TraceEvent) error
	// ListByRunID returns all events for runID ordered by sequence.
	ListByRunID(ctx context.Context, runID string) ([]model.TraceEvent, error)
	// ListSince returns events for runID with sequence > after, ordered by
	// sequence, for the GET .../trace?after=seq resume path.
	ListSince(ctx context.Context, runID string, after int64) ([]model.TraceEvent, error)
	// CountByType returns how many events of typ exist for runID.
	CountByType(ctx context.Context, runID string, typ model.TraceEventType) (int, error)
}

// Subscription delivers newly appended events for a single run until
// Close is called or the sink shuts down.
type Subscription struct {
	C      <-chan model.TraceEvent
	cancel func()
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Sink is the Trace Sink: it appends events with a run-scoped monotonic
// sequence and fans them out to live subscribers (the SSE stream
// endpoint). Events appended before a subscription are read from the
// store (ListByRunID or ListSince), not replayed to the subscriber.
type Sink struct {
	store Store

	mu   sync.Mutex
	subs map[string][]chan model.TraceEvent
}

// New constructs a Sink backed by store.
func New(store Store) *Sink {
	return &Sink{store: store, subs: make(map[string][]chan model.TraceEvent)}
}

// Append assigns the next sequence number for evt.RunID and persists it,
// retrying NextSequence/Insert on conflict (§4.9's unique-constraint-retry
// semantics for concurrent node appends within the same run). Successful
// appends are pushed to any live subscribers for the run.
func (s *Sink) Append(ctx context.Context, evt model.TraceEvent) (model.TraceEvent, error) {
	if evt.RunID == "" {
		return model.TraceEvent{}, apierr.New(apierr.KindValidation, "trace event requires runId")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	const maxAttempts = 5
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		seq, err := s.store.NextSequence(ctx, evt.RunID)
		if err != nil {
			return model.TraceEvent{}, apierr.Wrap(apierr.KindDependency, err, "assign trace sequence for run %s", evt.RunID)
		}
		candidate := evt
		candidate.Sequence = seq
		if err := s.store.Insert(ctx, candidate); err != nil {
			lastErr = err
			continue
		}
		s.publish(candidate)
		return candidate, nil
	}
	return model.TraceEvent{}, apierr.Wrap(apierr.KindConflict, lastErr, "append trace event for run %s after %d attempts", evt.RunID, maxAttempts)
}

// ListByRunID returns the full ordered trace for runID.
func (s *Sink) ListByRunID(ctx context.Context, runID string) ([]model.TraceEvent, error) {
	return s.store.ListByRunID(ctx, runID)
}

// ListSince returns events with sequence > after, for the
// GET .../trace?after=seq path. The SSE stream does not use it.
func (s *Sink) ListSince(ctx context.Context, runID string, after int64) ([]model.TraceEvent, error) {
	return s.store.ListSince(ctx, runID, after)
}

// CountByType reports how many events of typ have been recorded for runID,
// used by §8's testable properties (e.g. exactly one NODE_COMPLETED or
// NODE_FAILED per node).
func (s *Sink) CountByType(ctx context.Context, runID string, typ model.TraceEventType) (int, error) {
	return s.store.CountByType(ctx, runID, typ)
}

// Subscribe registers a live listener for runID. The returned channel
// receives events appended after subscription; callers that need the
// backlog should Subscribe first and then read it with ListByRunID or
// ListSince, since an event appended between a read and a later Subscribe
// is delivered by neither. Subscribing first can deliver an event both in
// the backlog and on the channel; callers de-dupe on sequence.
func (s *Sink) Subscribe(runID string) *Subscription {
	ch := make(chan model.TraceEvent, 64)

	s.mu.Lock()
	s.subs[runID] = append(s.subs[runID], ch)
	s.mu.Unlock()

	return &Subscription{
		C: ch,
		cancel: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			list := s.subs[runID]
			for i, c := range list {
				if c == ch {
					s.subs[runID] = append(list[:i], list[i+1:]...)
					close(ch)
					break
				}
			}
			if len(s.subs[runID]) == 0 {
				delete(s.subs, runID)
			}
		},
	}
}

func (s *Sink) publish(evt model.TraceEvent) {
	s.mu.Lock()
	list := append([]chan model.TraceEvent(nil), s.subs[evt.RunID]...)
	s.mu.Unlock()

	for _, ch := range list {
		select {
		case ch <- evt:
		default:
			// Slow subscriber: drop rather than block the appending node.
			// The client recovers via GET .../trace?after=seq.
		}
	}
}
