package graph_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/component"
	"github.com/flowforge/orchestrator/internal/graph"
	"github.com/flowforge/orchestrator/internal/model"
)

func testRegistry(t *testing.T) *component.Registry {
	t.Helper()
	reg := component.New()
	require.NoError(t, reg.Register(model.ComponentDefinition{
		ID:       "scan.trigger",
		Category: model.CategoryTrigger,
		Outputs:  []model.Port{{Name: "scanId", ConnectionType: model.ConnectionPrimitive, Primitive: model.PrimitiveText}},
	}))
	require.NoError(t, reg.Register(model.ComponentDefinition{
		ID:       "subfinder",
		Category: model.CategoryAction,
		Inputs: []model.Port{
			{Name: "domain", ConnectionType: model.ConnectionPrimitive, Primitive: model.PrimitiveText, Required: true},
			{Name: "timeoutSeconds", ConnectionType: model.ConnectionPrimitive, Primitive: model.PrimitiveNumber, Default: json.RawMessage(`30`)},
		},
		Outputs: []model.Port{{Name: "subdomains", ConnectionType: model.ConnectionList}},
	}))
	require.NoError(t, reg.Register(model.ComponentDefinition{
		ID:       "httpx",
		Category: model.CategoryAction,
		Inputs: []model.Port{
			{Name: "hosts", ConnectionType: model.ConnectionList, Required: true},
		},
	}))
	return reg
}

func linearGraph() model.Graph {
	return model.Graph{
		Name: "recon",
		Nodes: []model.Node{
			{ID: "n1", ComponentID: "scan.trigger"},
			{ID: "n2", ComponentID: "subfinder", Data: model.NodeData{Config: map[string]any{"domain": "example.com"}}},
			{ID: "n3", ComponentID: "httpx"},
		},
		Edges: []model.Edge{
			{ID: "e1", Source: "n1", Target: "n2", SourceHandle: "scanId", TargetHandle: "domain"},
			{ID: "e2", Source: "n2", Target: "n3", SourceHandle: "subdomains", TargetHandle: "hosts"},
		},
	}
}

func TestCompilePlanDeterminism(t *testing.T) {
	reg := testRegistry(t)
	c := graph.New(reg)

	g := linearGraph()

	plan1, err := c.Compile(g)
	require.NoError(t, err)
	plan2, err := c.Compile(g)
	require.NoError(t, err)

	b1, err := json.Marshal(plan1)
	require.NoError(t, err)
	b2, err := json.Marshal(plan2)
	require.NoError(t, err)

	assert.Equal(t, string(b1), string(b2))
}

func TestCompileUnknownComponent(t *testing.T) {
	reg := testRegistry(t)
	c := graph.New(reg)

	g := model.Graph{
		Nodes: []model.Node{
			{ID: "n1", ComponentID: "scan.trigger"},
			{ID: "n2", ComponentID: "nope"},
		},
	}

	_, err := c.Compile(g)
	require.Error(t, err)

	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, apiErr.Kind)
	assert.Equal(t, "UnknownComponent", apiErr.Fields["kind"])
	assert.Equal(t, "n2", apiErr.Fields["nodeId"])
	assert.Equal(t, "nope", apiErr.Fields["componentId"])
}

func TestCompileMissingTrigger(t *testing.T) {
	reg := testRegistry(t)
	c := graph.New(reg)

	g := model.Graph{
		Nodes: []model.Node{{ID: "n1", ComponentID: "subfinder", Data: model.NodeData{Config: map[string]any{"domain": "x"}}}},
	}

	_, err := c.Compile(g)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, "MissingTrigger", apiErr.Fields["kind"])
}

func TestCompileCycleDetected(t *testing.T) {
	reg := testRegistry(t)
	c := graph.New(reg)

	g := model.Graph{
		Nodes: []model.Node{
			{ID: "n1", ComponentID: "scan.trigger"},
			{ID: "n2", ComponentID: "subfinder", Data: model.NodeData{Config: map[string]any{"domain": "x"}}},
			{ID: "n3", ComponentID: "httpx"},
		},
		Edges: []model.Edge{
			{ID: "e1", Source: "n1", Target: "n2", TargetHandle: "domain"},
			{ID: "e2", Source: "n2", Target: "n3", TargetHandle: "hosts"},
			{ID: "e3", Source: "n3", Target: "n2", TargetHandle: "domain"},
		},
	}

	_, err := c.Compile(g)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, "CycleDetected", apiErr.Fields["kind"])
}

func TestCompileMissingBinding(t *testing.T) {
	reg := testRegistry(t)
	c := graph.New(reg)

	g := model.Graph{
		Nodes: []model.Node{
			{ID: "n1", ComponentID: "scan.trigger"},
			{ID: "n2", ComponentID: "subfinder"},
		},
		Edges: []model.Edge{{ID: "e1", Source: "n1", Target: "n2", TargetHandle: "scanId"}},
	}

	_, err := c.Compile(g)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, "MissingBinding", apiErr.Fields["kind"])
	assert.Equal(t, "n2", apiErr.Fields["nodeId"])
	assert.Equal(t, "domain", apiErr.Fields["inputId"])
}

func TestCompileConfigExpression(t *testing.T) {
	reg := testRegistry(t)
	c := graph.New(reg)

	g := model.Graph{
		Nodes: []model.Node{
			{ID: "n1", ComponentID: "scan.trigger", Data: model.NodeData{Config: map[string]any{"seed": "example.com"}}},
			{ID: "n2", ComponentID: "subfinder", Data: model.NodeData{Config: map[string]any{"domain": "${n1.config.seed}"}}},
		},
	}

	plan, err := c.Compile(g)
	require.NoError(t, err)

	var n2 *model.Action
	for i := range plan.Actions {
		if plan.Actions[i].Ref == "n2" {
			n2 = &plan.Actions[i]
		}
	}
	require.NotNil(t, n2)
	assert.Equal(t, "example.com", n2.Params["domain"])
}
