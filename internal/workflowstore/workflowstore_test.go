package workflowstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/component"
	"github.com/flowforge/orchestrator/internal/graph"
	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/workflowstore"
	"github.com/flowforge/orchestrator/internal/workflowstore/inmem"
)

func newService(t *testing.T) *workflowstore.Service {
	t.Helper()
	registry := component.New()
	require.NoError(t, registry.Register(model.ComponentDefinition{
		ID:       "trigger.manual",
		Category: model.CategoryTrigger,
		Runner:   model.Runner{Kind: model.RunnerInline},
	}))
	return workflowstore.New(inmem.New(), graph.New(registry))
}

func sampleGraph() model.Graph {
	return model.Graph{
		Name: "demo",
		Nodes: []model.Node{
			{ID: "start", ComponentID: "trigger.manual"},
		},
	}
}

func TestCreateStoresUncommittedDraft(t *testing.T) {
	svc := newService(t)
	wf, err := svc.Create(context.Background(), workflowstore.CreateInput{ID: "wf-1", OrganizationID: "org-1", Graph: sampleGraph()})
	require.NoError(t, err)
	assert.Nil(t, wf.Committed)
	assert.Equal(t, 0, wf.Version)
}

func TestCommitCompilesDraftIntoActionPlan(t *testing.T) {
	svc := newService(t)
	_, err := svc.Create(context.Background(), workflowstore.CreateInput{ID: "wf-1", Graph: sampleGraph()})
	require.NoError(t, err)

	wf, err := svc.Commit(context.Background(), "wf-1")
	require.NoError(t, err)
	require.NotNil(t, wf.Committed)
	assert.Equal(t, "start", wf.Committed.Entrypoint.Ref)
	assert.Equal(t, 1, wf.Version)
}

func TestReplaceLeavesPriorCommitUntouched(t *testing.T) {
	svc := newService(t)
	_, err := svc.Create(context.Background(), workflowstore.CreateInput{ID: "wf-1", Graph: sampleGraph()})
	require.NoError(t, err)
	_, err = svc.Commit(context.Background(), "wf-1")
	require.NoError(t, err)

	updated := sampleGraph()
	updated.Description = "revised"
	wf, err := svc.Replace(context.Background(), "wf-1", updated)
	require.NoError(t, err)
	require.NotNil(t, wf.Committed)
	assert.Equal(t, "", wf.Committed.Description)
	assert.Equal(t, "revised", wf.Draft.Description)
}

func TestCommitUnknownWorkflowIsNotFound(t *testing.T) {
	svc := newService(t)
	_, err := svc.Commit(context.Background(), "missing")
	require.Error(t, err)
}
