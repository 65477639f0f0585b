package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/approval"
	approvalinmem "github.com/flowforge/orchestrator/internal/approval/inmem"
	"github.com/flowforge/orchestrator/internal/component"
	"github.com/flowforge/orchestrator/internal/engine"
	"github.com/flowforge/orchestrator/internal/engine/inmem"
	"github.com/flowforge/orchestrator/internal/executor"
	"github.com/flowforge/orchestrator/internal/executor/toolresult"
	"github.com/flowforge/orchestrator/internal/graph"
	"github.com/flowforge/orchestrator/internal/httpapi"
	"github.com/flowforge/orchestrator/internal/mcpgateway"
	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/runner"
	"github.com/flowforge/orchestrator/internal/runstore"
	runstoreinmem "github.com/flowforge/orchestrator/internal/runstore/inmem"
	"github.com/flowforge/orchestrator/internal/sessiontoken"
	sessiontokeninmem "github.com/flowforge/orchestrator/internal/sessiontoken/inmem"
	"github.com/flowforge/orchestrator/internal/toolregistry"
	toolregistryinmem "github.com/flowforge/orchestrator/internal/toolregistry/inmem"
	"github.com/flowforge/orchestrator/internal/trace"
	traceinmem "github.com/flowforge/orchestrator/internal/trace/inmem"
	"github.com/flowforge/orchestrator/internal/workflowstore"
	workflowstoreinmem "github.com/flowforge/orchestrator/internal/workflowstore/inmem"
)

const (
	internalToken = "test-internal-token"
	adminUser     = "admin"
	adminPass     = "hunter2"
	workflowName  = "orchestrator.run"
	taskQueue     = "default"
)

func newTestServer(t *testing.T) (*httptest.Server, *runstore.Registry) {
	t.Helper()

	components := component.New()
	require.NoError(t, components.Register(model.ComponentDefinition{
		ID:       "trigger.manual",
		Category: model.CategoryTrigger,
		Runner:   model.Runner{Kind: model.RunnerInline},
	}))
	require.NoError(t, components.Register(model.ComponentDefinition{
		ID:       "action.echo",
		Category: model.CategoryAction,
		Runner:   model.Runner{Kind: model.RunnerInline},
		ExecuteFn: func(ec model.ExecContext, params map[string]any) (map[string]any, error) {
			return map[string]any{"echoed": params["message"]}, nil
		},
	}))

	var eng engine.Engine = inmem.New()
	rnr := runner.New(map[model.RunnerKind]runner.Strategy{model.RunnerInline: runner.Inline()})
	handles := executor.NewHandleRegistry()
	signaler := executor.NewApprovalSignaler(handles)
	approvals := approval.New(approvalinmem.New(), signaler, nil)
	traceSink := trace.New(traceinmem.New())
	results := toolresult.New()

	exec := executor.New(components, rnr, approvals, traceSink, results)
	require.NoError(t, eng.RegisterWorkflow(context.Background(), exec.WorkflowDefinition(workflowName, taskQueue)))
	for _, def := range exec.ActivityDefinitions(taskQueue) {
		require.NoError(t, eng.RegisterActivity(context.Background(), def))
	}

	runs := runstore.New(runstoreinmem.New())
	compiler := graph.New(components)
	workflows := workflowstore.New(workflowstoreinmem.New(), compiler)

	toolsRegistry := toolregistry.New(toolregistryinmem.New(), nil)
	gateway := mcpgateway.New(toolsRegistry, runs)
	minter := sessiontoken.New(sessiontokeninmem.New(), []byte("test-signing-key-0123456789abcdef"))
	componentExecutor := executor.NewGatewayAdapter(handles, results)

	srv := httpapi.NewServer(httpapi.Config{
		InternalServiceToken: internalToken,
		WorkflowName:         workflowName,
		TaskQueue:            taskQueue,
		SessionTokenTTL:      time.Hour,
	}, httpapi.Deps{
		Engine:            eng,
		Workflows:         workflows,
		Runs:              runs,
		Handles:           handles,
		Approvals:         approvals,
		Traces:            traceSink,
		Gateway:           gateway,
		Tools:             toolsRegistry,
		Minter:            minter,
		ComponentExecutor: componentExecutor,
		Sessions:          httpapi.BasicSessionProvider{Username: adminUser, Password: adminPass},
	})

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, runs
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any, auth bool) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.SetBasicAuth(adminUser, adminPass)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func sampleGraph() model.Graph {
	return model.Graph{
		Name: "scan",
		Nodes: []model.Node{
			{ID: "start", ComponentID: "trigger.manual"},
			{ID: "echo", ComponentID: "action.echo", Data: model.NodeData{Config: map[string]any{"message": "hi"}}},
		},
		Edges: []model.Edge{
			{ID: "e1", Source: "start", Target: "echo"},
		},
	}
}

func TestHappyPathCreateCommitRun(t *testing.T) {
	ts, runs := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/workflows", map[string]any{
		"id":             "wf-1",
		"organizationId": "org-1",
		"graph":          sampleGraph(),
	}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodPost, "/workflows/wf-1/commit", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodPost, "/workflows/wf-1/run", map[string]any{}, true)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var runBody struct {
		RunID string `json:"runId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runBody))
	resp.Body.Close()
	require.NotEmpty(t, runBody.RunID)

	require.Eventually(t, func() bool {
		run, err := runs.Get(context.Background(), runBody.RunID)
		return err == nil && run.Status.IsTerminal()
	}, time.Second, 10*time.Millisecond)

	resp = doJSON(t, ts, http.MethodGet, "/workflows/runs/"+runBody.RunID+"/result", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Status model.RunStatus `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	resp.Body.Close()
	assert.Equal(t, model.RunCompleted, result.Status)
}

func TestRunWithoutCommitIsConflict(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/workflows", map[string]any{
		"id":    "wf-2",
		"graph": sampleGraph(),
	}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodPost, "/workflows/wf-2/run", nil, true)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestOperatorRoutesRequireAuth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/workflows", map[string]any{"id": "wf-3", "graph": sampleGraph()}, false)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestPublicApprovalResolveUnknownTokenIsNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, ts, http.MethodGet, "/approve/does-not-exist", nil, false)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestInternalRoutesRejectMissingToken(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/internal/mcp/generate-token", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestInternalGenerateTokenAndMintedSessionValidates(t *testing.T) {
	ts, runs := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/workflows", map[string]any{"id": "wf-4", "organizationId": "org-z", "graph": sampleGraph()}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = doJSON(t, ts, http.MethodPost, "/workflows/wf-4/commit", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = doJSON(t, ts, http.MethodPost, "/workflows/wf-4/run", map[string]any{}, true)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var runBody struct {
		RunID string `json:"runId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runBody))
	resp.Body.Close()

	require.Eventually(t, func() bool {
		_, err := runs.Get(context.Background(), runBody.RunID)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/internal/mcp/generate-token", bytes.NewReader(mustJSON(map[string]any{
		"runId": runBody.RunID,
	})))
	require.NoError(t, err)
	req.Header.Set("X-Internal-Token", internalToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var tokenBody struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokenBody))
	resp.Body.Close()
	assert.NotEmpty(t, tokenBody.Token)
}

func mustJSON(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
