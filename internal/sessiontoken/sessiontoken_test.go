package sessiontoken_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/sessiontoken"
	"github.com/flowforge/orchestrator/internal/sessiontoken/inmem"
)

func TestMintValidateRoundTrip(t *testing.T) {
	m := sessiontoken.New(inmem.New(), []byte("test-signing-key"))
	ctx := context.Background()

	token, err := m.Mint(ctx, "run-1", "org-1", "agent-1", []string{"n1", "n2"}, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, ok, err := m.Validate(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-1", claims.RunID)
	assert.Equal(t, "org-1", claims.OrganizationID)
	assert.Equal(t, []string{"n1", "n2"}, claims.AllowedNodeIDs)
}

func TestValidateMissIndistinguishableFromExpiry(t *testing.T) {
	m := sessiontoken.New(inmem.New(), []byte("test-signing-key"))
	ctx := context.Background()

	_, ok, err := m.Validate(ctx, "orch_sess_does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)

	token, err := m.Mint(ctx, "run-1", "", "", nil, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, ok, err = m.Validate(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeEndsSessionImmediately(t *testing.T) {
	m := sessiontoken.New(inmem.New(), []byte("test-signing-key"))
	ctx := context.Background()

	token, err := m.Mint(ctx, "run-1", "", "", nil, time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, token))

	_, ok, err := m.Validate(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateRejectsMistypedToken(t *testing.T) {
	m := sessiontoken.New(inmem.New(), []byte("test-signing-key"))
	_, ok, err := m.Validate(context.Background(), "not-a-session-token")
	require.NoError(t, err)
	assert.False(t, ok)
}
