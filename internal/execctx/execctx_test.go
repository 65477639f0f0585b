package execctx_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/execctx"
	"github.com/flowforge/orchestrator/internal/telemetry"
)

func TestEmitProgressInvokesCallback(t *testing.T) {
	var got execctx.Progress
	ec := execctx.New("run-1", "node-1", telemetry.NoopLogger{}, func(_ context.Context, p execctx.Progress) {
		got = p
	})

	ec.EmitProgress(context.Background(), "loading")

	assert.Equal(t, "loading", got.Message)
	assert.Equal(t, execctx.ProgressInfo, got.Level)
}

func TestRequireStorageFailsClosedWhenAbsent(t *testing.T) {
	ec := execctx.New("run-1", "node-1", telemetry.NoopLogger{}, nil)

	_, err := ec.RequireStorage()
	require.Error(t, err)

	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindConfiguration, apiErr.Kind)
	assert.Equal(t, "storage", apiErr.Fields["configKey"])
}

func TestRunIDAndComponentRef(t *testing.T) {
	ec := execctx.New("run-1", "node-9", telemetry.NoopLogger{}, nil)
	assert.Equal(t, "run-1", ec.RunID())
	assert.Equal(t, "node-9", ec.ComponentRef())
}
