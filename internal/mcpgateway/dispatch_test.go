package mcpgateway_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/mcpgateway"
	"github.com/flowforge/orchestrator/internal/model"
)

func TestPartitionArgsSplitsByBindingType(t *testing.T) {
	inputs := []model.Port{
		{Name: "target", BindingType: model.BindingAction},
		{Name: "rate_limit", BindingType: model.BindingConfig},
		{Name: "api_key", BindingType: model.BindingCredential},
	}
	args := map[string]any{
		"target":     "example.com",
		"rate_limit": 50,
		"api_key":    "should-be-dropped",
	}

	actionArgs, paramOverrides := mcpgateway.PartitionArgs(inputs, args)

	assert.Equal(t, map[string]any{"target": "example.com"}, actionArgs)
	assert.Equal(t, map[string]any{"rate_limit": 50}, paramOverrides)
}

func TestPartitionArgsOmitsPortsNotSupplied(t *testing.T) {
	inputs := []model.Port{{Name: "target", BindingType: model.BindingAction}}
	actionArgs, paramOverrides := mcpgateway.PartitionArgs(inputs, map[string]any{})
	assert.Empty(t, actionArgs)
	assert.Empty(t, paramOverrides)
}

type fakeExecutor struct {
	mu        sync.Mutex
	calls     int
	readyAt   int
	result    map[string]any
	callErr   error
	resultErr error
}

func (f *fakeExecutor) ExecuteToolCall(_ context.Context, _, _, _ string, _ map[string]any) error {
	return f.callErr
}

func (f *fakeExecutor) GetToolCallResult(_ context.Context, _ string) (map[string]any, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.resultErr != nil {
		return nil, false, f.resultErr
	}
	if f.calls < f.readyAt {
		return nil, false, nil
	}
	return f.result, true, nil
}

func TestComponentDispatcherPollsUntilResultReady(t *testing.T) {
	exec := &fakeExecutor{readyAt: 3, result: map[string]any{"subdomains": []string{"a.example.com"}}}
	d := mcpgateway.NewComponentDispatcher(exec)

	result, err := d.Call(context.Background(), "run-1", "n1", map[string]any{"target": "example.com"})
	require.NoError(t, err)
	assert.Equal(t, exec.result, result)
	assert.GreaterOrEqual(t, exec.calls, 3)
}

func TestComponentDispatcherPropagatesSignalFailure(t *testing.T) {
	exec := &fakeExecutor{callErr: assertErr{}}
	d := mcpgateway.NewComponentDispatcher(exec)

	_, err := d.Call(context.Background(), "run-1", "n1", nil)
	require.Error(t, err)
	assert.Equal(t, apierr.KindDependency, apierr.KindOf(err))
}

func TestComponentDispatcherTimesOutIfResultNeverArrives(t *testing.T) {
	exec := &fakeExecutor{readyAt: 1 << 30}
	d := mcpgateway.NewComponentDispatcherWithClock(exec, fakeClock(0*time.Millisecond, 61*time.Second))

	_, err := d.Call(context.Background(), "run-1", "n1", nil)
	require.Error(t, err)
	assert.Equal(t, apierr.KindTimeout, apierr.KindOf(err))
}

func fakeClock(start, jumpTo time.Duration) func() time.Time {
	base := time.Unix(0, 0)
	first := true
	return func() time.Time {
		if first {
			first = false
			return base.Add(start)
		}
		return base.Add(jumpTo)
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
