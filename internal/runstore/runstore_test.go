package runstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/runstore"
	"github.com/flowforge/orchestrator/internal/runstore/inmem"
)

func TestCreateRecordsRunAsRunning(t *testing.T) {
	reg := runstore.New(inmem.New())
	run, err := reg.Create(context.Background(), runstore.CreateInput{RunID: "run-1", WorkflowID: "wf-1", OrganizationID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, model.RunRunning, run.Status)

	loaded, err := reg.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", loaded.WorkflowID)
}

func TestFinishRecordsOutputsAndStatus(t *testing.T) {
	reg := runstore.New(inmem.New())
	_, err := reg.Create(context.Background(), runstore.CreateInput{RunID: "run-1"})
	require.NoError(t, err)

	outputs := map[string]map[string]any{"scan": {"ok": true}}
	run, err := reg.Finish(context.Background(), "run-1", model.RunCompleted, outputs, "")
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, outputs, run.Outputs)
}

func TestGetUnknownRunIsNotFound(t *testing.T) {
	reg := runstore.New(inmem.New())
	_, err := reg.Get(context.Background(), "missing")
	require.Error(t, err)
}

func TestListFiltersByOrganization(t *testing.T) {
	reg := runstore.New(inmem.New())
	_, err := reg.Create(context.Background(), runstore.CreateInput{RunID: "run-1", OrganizationID: "org-a"})
	require.NoError(t, err)
	_, err = reg.Create(context.Background(), runstore.CreateInput{RunID: "run-2", OrganizationID: "org-b"})
	require.NoError(t, err)

	runs, err := reg.List(context.Background(), "org-a")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
}

func TestRunOrganizationAnswersGatewayLookup(t *testing.T) {
	reg := runstore.New(inmem.New())
	_, err := reg.Create(context.Background(), runstore.CreateInput{RunID: "run-1", OrganizationID: "org-a"})
	require.NoError(t, err)

	org, ok, err := reg.RunOrganization(context.Background(), "run-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "org-a", org)

	_, ok, err = reg.RunOrganization(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
