package trace_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/trace"
	"github.com/flowforge/orchestrator/internal/trace/inmem"
)

func TestAppendAssignsMonotonicSequence(t *testing.T) {
	sink := trace.New(inmem.New())
	ctx := context.Background()

	first, err := sink.Append(ctx, model.TraceEvent{RunID: "run-1", Type: model.NodeStarted, NodeRef: "n1"})
	require.NoError(t, err)
	second, err := sink.Append(ctx, model.TraceEvent{RunID: "run-1", Type: model.NodeCompleted, NodeRef: "n1"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(2), second.Sequence)
}

func TestAppendConcurrentNeverDuplicatesSequence(t *testing.T) {
	sink := trace.New(inmem.New())
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	seqs := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			evt, err := sink.Append(ctx, model.TraceEvent{RunID: "run-concurrent", Type: model.NodeProgress})
			require.NoError(t, err)
			seqs[i] = evt.Sequence
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, s := range seqs {
		assert.False(t, seen[s], "duplicate sequence %d", s)
		seen[s] = true
	}
	assert.Len(t, seen, n)
}

func TestListSinceReturnsOnlyNewerEvents(t *testing.T) {
	sink := trace.New(inmem.New())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := sink.Append(ctx, model.TraceEvent{RunID: "run-2", Type: model.NodeProgress})
		require.NoError(t, err)
	}

	out, err := sink.ListSince(ctx, "run-2", 1)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[0].Sequence)
	assert.Equal(t, int64(3), out[1].Sequence)
}

func TestCountByTypeCountsExactType(t *testing.T) {
	sink := trace.New(inmem.New())
	ctx := context.Background()

	_, err := sink.Append(ctx, model.TraceEvent{RunID: "run-3", Type: model.NodeCompleted})
	require.NoError(t, err)
	_, err = sink.Append(ctx, model.TraceEvent{RunID: "run-3", Type: model.NodeFailed})
	require.NoError(t, err)

	count, err := sink.CountByType(ctx, "run-3", model.NodeCompleted)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSubscribeReceivesAppendedEvents(t *testing.T) {
	sink := trace.New(inmem.New())
	ctx := context.Background()

	sub := sink.Subscribe("run-4")
	defer sub.Close()

	_, err := sink.Append(ctx, model.TraceEvent{RunID: "run-4", Type: model.NodeStarted})
	require.NoError(t, err)

	select {
	case evt := <-sub.C:
		assert.Equal(t, model.NodeStarted, evt.Type)
	default:
		t.Fatal("expected subscriber to receive appended event")
	}
}
