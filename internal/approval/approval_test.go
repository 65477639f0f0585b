package approval_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/approval"
	"github.com/flowforge/orchestrator/internal/approval/inmem"
	"github.com/flowforge/orchestrator/internal/model"
)

type recordingSignaler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *recordingSignaler) SignalApprovalResolved(_ context.Context, _ string, _ model.ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *recordingSignaler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestCreateMintsDistinctTokens(t *testing.T) {
	c := approval.New(inmem.New(), nil, nil)
	req, err := c.Create(context.Background(), "appr-1", model.CreateApprovalInput{RunID: "run-1", NodeRef: "n1"})
	require.NoError(t, err)

	assert.NotEmpty(t, req.ApproveToken)
	assert.NotEmpty(t, req.RejectToken)
	assert.NotEqual(t, req.ApproveToken, req.RejectToken)
	assert.Equal(t, model.ApprovalPending, req.Status)
}

func TestResolveByApproveTokenSignalsRun(t *testing.T) {
	sig := &recordingSignaler{}
	c := approval.New(inmem.New(), sig, nil)
	req, err := c.Create(context.Background(), "appr-2", model.CreateApprovalInput{RunID: "run-1", WorkflowID: "wf-1", NodeRef: "n1"})
	require.NoError(t, err)

	resolved, err := c.ResolveByApproveToken(context.Background(), req.ApproveToken, model.ResolveApprovalInput{RespondedBy: "user:alice"})
	require.NoError(t, err)

	assert.Equal(t, model.ApprovalApproved, resolved.Status)
	assert.Equal(t, 1, sig.count())
}

func TestResolveIsSingleResolution(t *testing.T) {
	c := approval.New(inmem.New(), nil, nil)
	req, err := c.Create(context.Background(), "appr-3", model.CreateApprovalInput{RunID: "run-1", NodeRef: "n1"})
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	successes := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.ResolveByApproveToken(context.Background(), req.ApproveToken, model.ResolveApprovalInput{})
			successes[i] = err == nil
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range successes {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent resolution should succeed")
}

func TestRejectTokenResolvesAsRejected(t *testing.T) {
	c := approval.New(inmem.New(), nil, nil)
	req, err := c.Create(context.Background(), "appr-4", model.CreateApprovalInput{RunID: "run-1", NodeRef: "n1"})
	require.NoError(t, err)

	resolved, err := c.ResolveByRejectToken(context.Background(), req.RejectToken, model.ResolveApprovalInput{ResponseNote: "not now"})
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalRejected, resolved.Status)
}

func TestExpirePastDeadlineMarksExpired(t *testing.T) {
	c := approval.New(inmem.New(), nil, nil)
	past := time.Now().Add(-time.Minute)
	req, err := c.Create(context.Background(), "appr-5", model.CreateApprovalInput{RunID: "run-1", NodeRef: "n1", TimeoutAt: &past})
	require.NoError(t, err)

	expired, err := c.ExpirePastDeadline(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, req.ID, expired[0].ID)
	assert.Equal(t, model.ApprovalExpired, expired[0].Status)
}

func TestSignalFailureDoesNotRollBackResolution(t *testing.T) {
	sig := &recordingSignaler{err: assertErr{}}
	c := approval.New(inmem.New(), sig, noopLogger{})
	req, err := c.Create(context.Background(), "appr-6", model.CreateApprovalInput{RunID: "run-1", WorkflowID: "wf-1", NodeRef: "n1"})
	require.NoError(t, err)

	resolved, err := c.ResolveByApproveToken(context.Background(), req.ApproveToken, model.ResolveApprovalInput{})
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalApproved, resolved.Status)
}

type assertErr struct{}

func (assertErr) Error() string { return "signal delivery failed" }

type noopLogger struct{}

func (noopLogger) Error(_ context.Context, _ string, _ ...any) {}
