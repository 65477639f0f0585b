package toolregistry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/toolregistry"
	"github.com/flowforge/orchestrator/internal/toolregistry/inmem"
)

func testSealer(t *testing.T) *toolregistry.AESGCMSealer {
	t.Helper()
	s, err := toolregistry.NewAESGCMSealer(make([]byte, 32))
	require.NoError(t, err)
	return s
}

func TestRegisterComponentSealsCredentials(t *testing.T) {
	reg := toolregistry.New(inmem.New(), testSealer(t))
	ctx := context.Background()

	tool, err := reg.RegisterComponent(ctx, toolregistry.RegisterComponentInput{
		RunID: "run-1", NodeID: "n1", ToolName: "subfinder", ComponentID: "subfinder",
		Credentials: []byte(`{"apiKey":"secret"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, toolregistry.StatusReady, tool.Status)
	assert.NotContains(t, string(tool.Credentials), "secret")

	plain, ok, err := reg.GetToolCredentials(ctx, "run-1", "n1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"apiKey":"secret"}`, string(plain))
}

func TestRegisterRemoteStartsPendingThenReady(t *testing.T) {
	reg := toolregistry.New(inmem.New(), nil)
	ctx := context.Background()

	tool, err := reg.RegisterRemote(ctx, toolregistry.RegisterRemoteInput{RunID: "run-1", NodeID: "n2", Endpoint: "https://example.com/mcp"})
	require.NoError(t, err)
	assert.Equal(t, toolregistry.StatusPending, tool.Status)

	require.NoError(t, reg.MarkReady(ctx, "run-1", "n2"))
	tools, err := reg.GetToolsForRun(ctx, "run-1", nil)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, toolregistry.StatusReady, tools[0].Status)
}

func TestGetToolsForRunFiltersByAllowedNodeIDs(t *testing.T) {
	reg := toolregistry.New(inmem.New(), nil)
	ctx := context.Background()

	_, err := reg.RegisterRemote(ctx, toolregistry.RegisterRemoteInput{RunID: "run-1", NodeID: "n1"})
	require.NoError(t, err)
	_, err = reg.RegisterRemote(ctx, toolregistry.RegisterRemoteInput{RunID: "run-1", NodeID: "n2"})
	require.NoError(t, err)

	tools, err := reg.GetToolsForRun(ctx, "run-1", []string{"n2"})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "n2", tools[0].NodeID)
}

func TestCleanupRunReturnsLocalContainerIDs(t *testing.T) {
	reg := toolregistry.New(inmem.New(), nil)
	ctx := context.Background()

	_, err := reg.RegisterLocal(ctx, toolregistry.RegisterLocalInput{RunID: "run-1", NodeID: "n1", ContainerID: "c-1"})
	require.NoError(t, err)

	ids, err := reg.CleanupRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c-1"}, ids)

	tools, err := reg.GetToolsForRun(ctx, "run-1", nil)
	require.NoError(t, err)
	assert.Empty(t, tools)
}

func TestAreAllToolsReadyRequiresEveryNode(t *testing.T) {
	reg := toolregistry.New(inmem.New(), nil)
	ctx := context.Background()

	_, err := reg.RegisterRemote(ctx, toolregistry.RegisterRemoteInput{RunID: "run-1", NodeID: "n1"})
	require.NoError(t, err)
	_, err = reg.RegisterRemote(ctx, toolregistry.RegisterRemoteInput{RunID: "run-1", NodeID: "n2"})
	require.NoError(t, err)
	require.NoError(t, reg.MarkReady(ctx, "run-1", "n1"))

	ready, err := reg.AreAllToolsReady(ctx, "run-1", []string{"n1", "n2"})
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, reg.MarkReady(ctx, "run-1", "n2"))
	ready, err = reg.AreAllToolsReady(ctx, "run-1", []string{"n1", "n2"})
	require.NoError(t, err)
	assert.True(t, ready)
}
