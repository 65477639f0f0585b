package executor_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/approval"
	approvalinmem "github.com/flowforge/orchestrator/internal/approval/inmem"
	"github.com/flowforge/orchestrator/internal/component"
	"github.com/flowforge/orchestrator/internal/engine"
	"github.com/flowforge/orchestrator/internal/engine/inmem"
	"github.com/flowforge/orchestrator/internal/executor"
	"github.com/flowforge/orchestrator/internal/executor/toolresult"
	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/runner"
	"github.com/flowforge/orchestrator/internal/trace"
	traceinmem "github.com/flowforge/orchestrator/internal/trace/inmem"
)

func setup(t *testing.T) (*executor.Executor, engine.Engine, *executor.HandleRegistry, *component.Registry) {
	t.Helper()
	eng := inmem.New()
	components := component.New()
	rnr := runner.New(map[model.RunnerKind]runner.Strategy{model.RunnerInline: runner.Inline()})
	handles := executor.NewHandleRegistry()
	signaler := executor.NewApprovalSignaler(handles)
	approvals := approval.New(approvalinmem.New(), signaler, nil)
	traceSink := trace.New(traceinmem.New())
	results := toolresult.New()

	exec := executor.New(components, rnr, approvals, traceSink, results)

	require.NoError(t, eng.RegisterWorkflow(context.Background(), exec.WorkflowDefinition("orchestrator.run", "default")))
	for _, def := range exec.ActivityDefinitions("default") {
		require.NoError(t, eng.RegisterActivity(context.Background(), def))
	}
	return exec, eng, handles, components
}

func echoComponent(id string, out map[string]any) model.ComponentDefinition {
	return model.ComponentDefinition{
		ID:       id,
		Category: model.CategoryAction,
		Runner:   model.Runner{Kind: model.RunnerInline},
		ExecuteFn: func(ec model.ExecContext, params map[string]any) (map[string]any, error) {
			return out, nil
		},
	}
}

func TestRunCompletesTwoDependentActions(t *testing.T) {
	_, eng, handles, components := setup(t)

	require.NoError(t, components.Register(echoComponent("subfinder", map[string]any{"subdomains": []string{"a.example.com"}})))
	require.NoError(t, components.Register(model.ComponentDefinition{
		ID:       "httpx",
		Category: model.CategoryAction,
		Runner:   model.Runner{Kind: model.RunnerInline},
		ExecuteFn: func(ec model.ExecContext, params map[string]any) (map[string]any, error) {
			return map[string]any{"alive": params["subdomains"]}, nil
		},
	}))

	plan := model.ActionPlan{
		Entrypoint: model.Entrypoint{Ref: "scan"},
		Actions: []model.Action{
			{Ref: "scan", ComponentID: "subfinder"},
			{Ref: "probe", ComponentID: "httpx", DependsOn: []string{"scan"},
				Bindings: []model.Binding{{TargetInput: "subdomains", SourceRef: "scan", SourceOutput: "subdomains"}},
			},
		},
	}

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID: "run-1", Workflow: "orchestrator.run",
		Input: executor.RunInput{RunID: "run-1", Plan: plan},
	})
	require.NoError(t, err)
	handles.Put("run-1", handle)

	var out executor.RunOutput
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, handle.Wait(ctx, &out))

	assert.Equal(t, model.RunCompleted, out.Status)
	assert.Equal(t, []string{"a.example.com"}, out.Outputs["probe"]["alive"])
}

func TestRunFailsAndSkipsDownstream(t *testing.T) {
	_, eng, handles, components := setup(t)

	require.NoError(t, components.Register(model.ComponentDefinition{
		ID:       "broken",
		Category: model.CategoryAction,
		Runner:   model.Runner{Kind: model.RunnerInline},
		ExecuteFn: func(ec model.ExecContext, params map[string]any) (map[string]any, error) {
			return nil, apierr.New(apierr.KindContainer, "boom")
		},
	}))
	require.NoError(t, components.Register(echoComponent("never_runs", map[string]any{})))

	plan := model.ActionPlan{
		Entrypoint: model.Entrypoint{Ref: "step1"},
		Actions: []model.Action{
			{Ref: "step1", ComponentID: "broken"},
			{Ref: "step2", ComponentID: "never_runs", DependsOn: []string{"step1"}},
		},
	}

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID: "run-2", Workflow: "orchestrator.run",
		Input: executor.RunInput{RunID: "run-2", Plan: plan},
	})
	require.NoError(t, err)
	handles.Put("run-2", handle)

	var out executor.RunOutput
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, handle.Wait(ctx, &out))

	assert.Equal(t, model.RunFailed, out.Status)
}

func TestRunSuspendsForApprovalUntilResolved(t *testing.T) {
	_, eng, handles, components := setup(t)

	require.NoError(t, components.Register(model.ComponentDefinition{
		ID:       "confirm",
		Category: model.CategoryApproval,
	}))

	plan := model.ActionPlan{
		Entrypoint: model.Entrypoint{Ref: "gate"},
		Actions: []model.Action{
			{Ref: "gate", ComponentID: "confirm", Params: map[string]any{"title": "Proceed?"}},
		},
	}

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID: "run-3", Workflow: "orchestrator.run",
		Input: executor.RunInput{RunID: "run-3", Plan: plan},
	})
	require.NoError(t, err)
	handles.Put("run-3", handle)

	doneCh := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		var out executor.RunOutput
		_ = handle.Wait(ctx, &out)
		close(doneCh)
	}()

	select {
	case <-doneCh:
		t.Fatal("workflow completed before its approval was resolved")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestResolvingApprovalUnblocksSuspendedAction(t *testing.T) {
	eng := inmem.New()
	components := component.New()
	rnr := runner.New(map[model.RunnerKind]runner.Strategy{model.RunnerInline: runner.Inline()})
	handles := executor.NewHandleRegistry()
	signaler := executor.NewApprovalSignaler(handles)
	store := approvalinmem.New()
	coordinator := approval.New(store, signaler, nil)
	traceSink := trace.New(traceinmem.New())
	results := toolresult.New()

	exec := executor.New(components, rnr, coordinator, traceSink, results)
	require.NoError(t, eng.RegisterWorkflow(context.Background(), exec.WorkflowDefinition("orchestrator.run", "default")))
	for _, def := range exec.ActivityDefinitions("default") {
		require.NoError(t, eng.RegisterActivity(context.Background(), def))
	}
	require.NoError(t, components.Register(model.ComponentDefinition{ID: "confirm", Category: model.CategoryApproval}))

	plan := model.ActionPlan{
		Entrypoint: model.Entrypoint{Ref: "gate"},
		Actions:    []model.Action{{Ref: "gate", ComponentID: "confirm", Params: map[string]any{"title": "Proceed?"}}},
	}

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID: "run-4", Workflow: "orchestrator.run",
		Input: executor.RunInput{RunID: "run-4", Plan: plan},
	})
	require.NoError(t, err)
	handles.Put("run-4", handle)

	require.Eventually(t, func() bool {
		req, err := store.Get(context.Background(), "gate:approval")
		return err == nil && req.Status == model.ApprovalPending
	}, time.Second, 5*time.Millisecond)

	_, err = coordinator.Resolve(context.Background(), "gate:approval", model.ResolveApprovalInput{Approved: true, RespondedBy: "operator"})
	require.NoError(t, err)

	var out executor.RunOutput
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, handle.Wait(ctx, &out))

	assert.Equal(t, model.RunCompleted, out.Status)
	assert.Equal(t, true, out.Outputs["gate"]["approved"])
}

func TestCancelSignalStopsTheRun(t *testing.T) {
	eng := inmem.New()
	components := component.New()
	rnr := runner.New(map[model.RunnerKind]runner.Strategy{model.RunnerInline: runner.Inline()})
	handles := executor.NewHandleRegistry()
	signaler := executor.NewApprovalSignaler(handles)
	coordinator := approval.New(approvalinmem.New(), signaler, nil)
	traceSink := trace.New(traceinmem.New())
	results := toolresult.New()

	exec := executor.New(components, rnr, coordinator, traceSink, results)
	require.NoError(t, eng.RegisterWorkflow(context.Background(), exec.WorkflowDefinition("orchestrator.run", "default")))
	for _, def := range exec.ActivityDefinitions("default") {
		require.NoError(t, eng.RegisterActivity(context.Background(), def))
	}
	require.NoError(t, components.Register(model.ComponentDefinition{ID: "confirm", Category: model.CategoryApproval}))

	plan := model.ActionPlan{
		Entrypoint: model.Entrypoint{Ref: "gate"},
		Actions:    []model.Action{{Ref: "gate", ComponentID: "confirm"}},
	}

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID: "run-5", Workflow: "orchestrator.run",
		Input: executor.RunInput{RunID: "run-5", Plan: plan},
	})
	require.NoError(t, err)
	handles.Put("run-5", handle)

	require.NoError(t, handle.Signal(context.Background(), executor.SignalCancelRun, struct{}{}))

	var out executor.RunOutput
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, handle.Wait(ctx, &out))
	assert.Equal(t, model.RunCancelled, out.Status)
}

func TestCancelDuringAwaitingInputEmitsNoFailureTrace(t *testing.T) {
	eng := inmem.New()
	components := component.New()
	rnr := runner.New(map[model.RunnerKind]runner.Strategy{model.RunnerInline: runner.Inline()})
	handles := executor.NewHandleRegistry()
	signaler := executor.NewApprovalSignaler(handles)
	store := approvalinmem.New()
	coordinator := approval.New(store, signaler, nil)
	traceSink := trace.New(traceinmem.New())
	results := toolresult.New()

	exec := executor.New(components, rnr, coordinator, traceSink, results)
	require.NoError(t, eng.RegisterWorkflow(context.Background(), exec.WorkflowDefinition("orchestrator.run", "default")))
	for _, def := range exec.ActivityDefinitions("default") {
		require.NoError(t, eng.RegisterActivity(context.Background(), def))
	}
	require.NoError(t, components.Register(model.ComponentDefinition{ID: "confirm", Category: model.CategoryApproval}))

	plan := model.ActionPlan{
		Entrypoint: model.Entrypoint{Ref: "gate"},
		Actions:    []model.Action{{Ref: "gate", ComponentID: "confirm"}},
	}

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID: "run-8", Workflow: "orchestrator.run",
		Input: executor.RunInput{RunID: "run-8", Plan: plan},
	})
	require.NoError(t, err)
	handles.Put("run-8", handle)

	require.Eventually(t, func() bool {
		req, err := store.Get(context.Background(), "gate:approval")
		return err == nil && req.Status == model.ApprovalPending
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, handle.Signal(context.Background(), executor.SignalCancelRun, struct{}{}))

	var out executor.RunOutput
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, handle.Wait(ctx, &out))
	assert.Equal(t, model.RunCancelled, out.Status)

	events, err := traceSink.ListByRunID(context.Background(), "run-8")
	require.NoError(t, err)
	for _, evt := range events {
		assert.NotEqual(t, model.NodeFailed, evt.Type, "no NODE_FAILED trace expected for a cancelled awaiting_input action")
	}
}

func TestToolCallDispatchRoundTripsThroughGatewayAdapter(t *testing.T) {
	eng := inmem.New()
	components := component.New()
	rnr := runner.New(map[model.RunnerKind]runner.Strategy{model.RunnerInline: runner.Inline()})
	handles := executor.NewHandleRegistry()
	signaler := executor.NewApprovalSignaler(handles)
	coordinator := approval.New(approvalinmem.New(), signaler, nil)
	traceSink := trace.New(traceinmem.New())
	results := toolresult.New()
	adapter := executor.NewGatewayAdapter(handles, results)

	exec := executor.New(components, rnr, coordinator, traceSink, results)
	require.NoError(t, eng.RegisterWorkflow(context.Background(), exec.WorkflowDefinition("orchestrator.run", "default")))
	for _, def := range exec.ActivityDefinitions("default") {
		require.NoError(t, eng.RegisterActivity(context.Background(), def))
	}

	require.NoError(t, components.Register(model.ComponentDefinition{
		ID:       "whois",
		Category: model.CategoryAction,
		Runner:   model.Runner{Kind: model.RunnerInline},
		ExecuteFn: func(ec model.ExecContext, params map[string]any) (map[string]any, error) {
			return map[string]any{"registrar": params["domain"]}, nil
		},
	}))

	plan := model.ActionPlan{
		Entrypoint: model.Entrypoint{Ref: "agent"},
		Actions:    []model.Action{{Ref: "agent", ComponentID: "whois"}},
	}

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID: "run-6", Workflow: "orchestrator.run",
		Input: executor.RunInput{RunID: "run-6", Plan: plan},
	})
	require.NoError(t, err)
	handles.Put("run-6", handle)

	err = adapter.ExecuteToolCall(context.Background(), "run-6", "agent", "run-6:agent:1", map[string]any{"domain": "example.com"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok, err := adapter.GetToolCallResult(context.Background(), "run-6:agent:1")
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)

	out, ok, err := adapter.GetToolCallResult(context.Background(), "run-6:agent:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "example.com", out["registrar"])
}

func TestRedeliveredToolCallSignalRunsComponentOnlyOnce(t *testing.T) {
	eng := inmem.New()
	components := component.New()
	rnr := runner.New(map[model.RunnerKind]runner.Strategy{model.RunnerInline: runner.Inline()})
	handles := executor.NewHandleRegistry()
	signaler := executor.NewApprovalSignaler(handles)
	coordinator := approval.New(approvalinmem.New(), signaler, nil)
	traceSink := trace.New(traceinmem.New())
	results := toolresult.New()
	adapter := executor.NewGatewayAdapter(handles, results)

	exec := executor.New(components, rnr, coordinator, traceSink, results)
	require.NoError(t, eng.RegisterWorkflow(context.Background(), exec.WorkflowDefinition("orchestrator.run", "default")))
	for _, def := range exec.ActivityDefinitions("default") {
		require.NoError(t, eng.RegisterActivity(context.Background(), def))
	}

	var callCount int32
	require.NoError(t, components.Register(model.ComponentDefinition{
		ID:       "counter",
		Category: model.CategoryAction,
		Runner:   model.Runner{Kind: model.RunnerInline},
		ExecuteFn: func(ec model.ExecContext, params map[string]any) (map[string]any, error) {
			atomic.AddInt32(&callCount, 1)
			return map[string]any{"ok": true}, nil
		},
	}))

	plan := model.ActionPlan{
		Entrypoint: model.Entrypoint{Ref: "agent"},
		Actions:    []model.Action{{Ref: "agent", ComponentID: "counter"}},
	}

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID: "run-7", Workflow: "orchestrator.run",
		Input: executor.RunInput{RunID: "run-7", Plan: plan},
	})
	require.NoError(t, err)
	handles.Put("run-7", handle)

	require.NoError(t, adapter.ExecuteToolCall(context.Background(), "run-7", "agent", "run-7:agent:1", nil))
	require.Eventually(t, func() bool {
		_, ok, err := adapter.GetToolCallResult(context.Background(), "run-7:agent:1")
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)

	// Resend the exact same callId, as a redelivered signal would.
	require.NoError(t, adapter.ExecuteToolCall(context.Background(), "run-7", "agent", "run-7:agent:1", nil))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&callCount))
}
