package mcpgateway

import (
	"context"
	"fmt"
	"time"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/telemetry"
)

// callDispatchSpan names the span wrapping one Call, matching
// ActivityRunAction's style of naming spans after the operation they trace.
const callDispatchSpan = "mcpgateway.toolCall"

// ComponentExecutor is the Workflow Executor's signal/query surface as seen
// by the Gateway (§4.7 "Component tool" dispatch). Implemented by
// internal/executor; declared here to avoid a dependency from the Gateway
// onto the Executor's full package.
type ComponentExecutor interface {
	// ExecuteToolCall signals the run to execute a pending component tool
	// call. It returns immediately; the result arrives asynchronously and
	// is retrieved via GetToolCallResult.
	ExecuteToolCall(ctx context.Context, runID, nodeID, callID string, actionArgs map[string]any) error
	// GetToolCallResult answers the result of a previously-dispatched call,
	// or ok=false while it is still pending.
	GetToolCallResult(ctx context.Context, callID string) (result map[string]any, ok bool, err error)
}

// pollInterval and pollTimeout implement §4.7's component tool call poll:
// 500ms cadence, up to 60s before surfacing a timeout to the agent.
const (
	pollInterval = 500 * time.Millisecond
	pollTimeout  = 60 * time.Second
)

// PartitionArgs splits an agent's call arguments into actionArgs
// (BindingAction ports, supplied fresh on every call) and
// parameterOverrides (BindingConfig ports, whose compile-time bound value
// the agent is overriding for this call) by consulting the component's
// declared input ports (§4.7). Credential-bound ports are never agent
// supplied and are dropped.
func PartitionArgs(inputs []model.Port, args map[string]any) (actionArgs, parameterOverrides map[string]any) {
	actionArgs = make(map[string]any)
	parameterOverrides = make(map[string]any)
	for _, in := range inputs {
		v, ok := args[in.Name]
		if !ok {
			continue
		}
		switch in.BindingType {
		case model.BindingConfig:
			parameterOverrides[in.Name] = v
		case model.BindingCredential:
			// agent-supplied values never satisfy credential ports.
		default:
			actionArgs[in.Name] = v
		}
	}
	return actionArgs, parameterOverrides
}

// ComponentDispatcher executes component-backed tool calls on behalf of
// the virtual MCP server.
type ComponentDispatcher struct {
	executor ComponentExecutor
	clock    func() time.Time
	tracer   telemetry.Tracer
	metrics  telemetry.Metrics
}

// DispatcherOption configures optional ComponentDispatcher dependencies.
type DispatcherOption func(*ComponentDispatcher)

// WithDispatcherTracer overrides the dispatcher's default no-op Tracer.
func WithDispatcherTracer(t telemetry.Tracer) DispatcherOption {
	return func(d *ComponentDispatcher) { d.tracer = t }
}

// WithDispatcherMetrics overrides the dispatcher's default no-op Metrics.
func WithDispatcherMetrics(m telemetry.Metrics) DispatcherOption {
	return func(d *ComponentDispatcher) { d.metrics = m }
}

// NewComponentDispatcher constructs a ComponentDispatcher.
func NewComponentDispatcher(executor ComponentExecutor, opts ...DispatcherOption) *ComponentDispatcher {
	return newDispatcher(executor, time.Now, opts...)
}

// NewComponentDispatcherWithClock constructs a ComponentDispatcher with an
// injected clock, for deterministic timeout tests.
func NewComponentDispatcherWithClock(executor ComponentExecutor, clock func() time.Time, opts ...DispatcherOption) *ComponentDispatcher {
	return newDispatcher(executor, clock, opts...)
}

func newDispatcher(executor ComponentExecutor, clock func() time.Time, opts ...DispatcherOption) *ComponentDispatcher {
	d := &ComponentDispatcher{
		executor: executor,
		clock:    clock,
		tracer:   telemetry.NewNoopTracer("mcpgateway"),
		metrics:  telemetry.NewNoopMetrics("mcpgateway"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Call implements the component tool dispatch: generates callId, signals
// executeToolCall, and polls getToolCallResult at 500ms up to 60s.
func (d *ComponentDispatcher) Call(ctx context.Context, runID, nodeID string, actionArgs map[string]any) (map[string]any, error) {
	ctx, span := d.tracer.Start(ctx, callDispatchSpan)
	defer span.End()
	start := d.clock()

	callID := fmt.Sprintf("%s:%s:%d", runID, nodeID, d.clock().UnixNano())

	result, err := d.dispatchAndPoll(ctx, start, runID, nodeID, callID, actionArgs)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
	}
	d.metrics.RecordTimer(callDispatchSpan+".duration", d.clock().Sub(start), "outcome", outcome)
	d.metrics.IncCounter(callDispatchSpan+".count", 1, "outcome", outcome)
	return result, err
}

func (d *ComponentDispatcher) dispatchAndPoll(ctx context.Context, start time.Time, runID, nodeID, callID string, actionArgs map[string]any) (map[string]any, error) {
	if err := d.executor.ExecuteToolCall(ctx, runID, nodeID, callID, actionArgs); err != nil {
		return nil, apierr.Wrap(apierr.KindDependency, err, "dispatch tool call %s", callID)
	}

	deadline := start.Add(pollTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		result, ok, err := d.executor.GetToolCallResult(ctx, callID)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindDependency, err, "poll tool call %s", callID)
		}
		if ok {
			return result, nil
		}
		if d.clock().After(deadline) {
			return nil, apierr.New(apierr.KindTimeout, "tool call %s timed out after %s", callID, pollTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
