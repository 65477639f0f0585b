package mcpgateway_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/mcpgateway"
	"github.com/flowforge/orchestrator/internal/sessiontoken"
	"github.com/flowforge/orchestrator/internal/toolregistry"
	"github.com/flowforge/orchestrator/internal/toolregistry/inmem"
)

type fakeRuns struct {
	orgByRun map[string]string
}

func (f *fakeRuns) RunOrganization(_ context.Context, runID string) (string, bool, error) {
	org, ok := f.orgByRun[runID]
	return org, ok, nil
}

func TestOpenSessionRejectsUnknownRun(t *testing.T) {
	reg := toolregistry.New(inmem.New(), nil)
	gw := mcpgateway.New(reg, &fakeRuns{orgByRun: map[string]string{}})

	_, _, err := gw.OpenSession(context.Background(), sessiontoken.Claims{RunID: "missing"})
	require.Error(t, err)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}

func TestOpenSessionRejectsOrganizationMismatch(t *testing.T) {
	reg := toolregistry.New(inmem.New(), nil)
	gw := mcpgateway.New(reg, &fakeRuns{orgByRun: map[string]string{"run-1": "org-a"}})

	_, _, err := gw.OpenSession(context.Background(), sessiontoken.Claims{RunID: "run-1", OrganizationID: "org-b"})
	require.Error(t, err)
	assert.Equal(t, apierr.KindAuthorization, apierr.KindOf(err))
}

func TestOpenSessionMaterializesVirtualServer(t *testing.T) {
	reg := toolregistry.New(inmem.New(), nil)
	ctx := context.Background()
	_, err := reg.RegisterComponent(ctx, toolregistry.RegisterComponentInput{
		RunID: "run-1", NodeID: "n1", ToolName: "recon_scan", ComponentID: "recon",
	})
	require.NoError(t, err)

	gw := mcpgateway.New(reg, &fakeRuns{orgByRun: map[string]string{"run-1": "org-a"}})

	sess, srv, err := gw.OpenSession(ctx, sessiontoken.Claims{RunID: "run-1", OrganizationID: "org-a"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", sess.RunID)
	require.NotNil(t, srv)
}

func TestRefreshServersForRunIsIdempotent(t *testing.T) {
	reg := toolregistry.New(inmem.New(), nil)
	ctx := context.Background()
	_, err := reg.RegisterComponent(ctx, toolregistry.RegisterComponentInput{
		RunID: "run-1", NodeID: "n1", ToolName: "recon_scan", ComponentID: "recon",
	})
	require.NoError(t, err)

	gw := mcpgateway.New(reg, &fakeRuns{orgByRun: map[string]string{"run-1": "org-a"}})

	srv1, err := gw.RefreshServersForRun(ctx, "run-1", nil)
	require.NoError(t, err)
	srv2, err := gw.RefreshServersForRun(ctx, "run-1", nil)
	require.NoError(t, err)
	assert.Same(t, srv1, srv2)
}

func TestExternalToolNameIsCollisionFree(t *testing.T) {
	a := mcpgateway.ExternalToolName("src1", "search")
	b := mcpgateway.ExternalToolName("src2", "search")
	assert.NotEqual(t, a, b)
	assert.Equal(t, "src1__search", a)
}
