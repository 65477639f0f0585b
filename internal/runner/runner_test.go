package runner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/execctx"
	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/runner"
	"github.com/flowforge/orchestrator/internal/telemetry"
)

func newCtx() *execctx.Context {
	return execctx.New("run-1", "node-1", telemetry.NoopLogger{}, nil)
}

func TestExecuteInlineSuccess(t *testing.T) {
	r := runner.New(map[model.RunnerKind]runner.Strategy{model.RunnerInline: runner.Inline()})

	def := model.ComponentDefinition{
		ID:     "echo",
		Runner: model.Runner{Kind: model.RunnerInline},
		ExecuteFn: func(ctx model.ExecContext, params map[string]any) (map[string]any, error) {
			return map[string]any{"echoed": params["value"]}, nil
		},
	}

	out, err := r.Execute(context.Background(), def, newCtx(), map[string]any{"value": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out["echoed"])
}

type countingStrategy struct {
	calls int
	fail  int
	err   error
}

func (c *countingStrategy) Run(ctx context.Context, def model.ComponentDefinition, ec *execctx.Context, params map[string]any) (map[string]any, error) {
	c.calls++
	if c.calls <= c.fail {
		return nil, c.err
	}
	return map[string]any{"ok": true}, nil
}

func TestExecuteRetriesOnRetryableError(t *testing.T) {
	strat := &countingStrategy{fail: 2, err: apierr.New(apierr.KindDependency, "transient")}
	r := runner.New(map[model.RunnerKind]runner.Strategy{model.RunnerRemote: strat})

	def := model.ComponentDefinition{
		ID:     "flaky",
		Runner: model.Runner{Kind: model.RunnerRemote},
		RetryPolicy: model.RetryPolicy{
			MaxAttempts:            5,
			InitialIntervalSeconds: 0.001,
			BackoffCoefficient:     1,
			MaximumIntervalSeconds: 0.001,
		},
	}

	out, err := r.Execute(context.Background(), def, newCtx(), nil)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, 3, strat.calls)
}

func TestExecuteStopsOnNonRetryableError(t *testing.T) {
	strat := &countingStrategy{fail: 5, err: apierr.New(apierr.KindValidation, "bad input")}
	r := runner.New(map[model.RunnerKind]runner.Strategy{model.RunnerRemote: strat})

	def := model.ComponentDefinition{
		ID:          "bad",
		Runner:      model.Runner{Kind: model.RunnerRemote},
		RetryPolicy: model.RetryPolicy{MaxAttempts: 5},
	}

	_, err := r.Execute(context.Background(), def, newCtx(), nil)
	require.Error(t, err)
	assert.Equal(t, 1, strat.calls)
}

func TestExecuteUnregisteredKind(t *testing.T) {
	r := runner.New(map[model.RunnerKind]runner.Strategy{})
	def := model.ComponentDefinition{ID: "x", Runner: model.Runner{Kind: model.RunnerContainer}}

	_, err := r.Execute(context.Background(), def, newCtx(), nil)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindConfiguration, apiErr.Kind)
}
