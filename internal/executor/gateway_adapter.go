package executor

import (
	"context"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/engine"
	"github.com/flowforge/orchestrator/internal/model"
)

// RunHandles resolves a run's live engine.WorkflowHandle, letting the MCP
// Gateway signal a run it did not itself start.
type RunHandles interface {
	Handle(runID string) (engine.WorkflowHandle, bool)
}

// GatewayAdapter implements mcpgateway.ComponentExecutor on top of the
// Executor's tool-call signal channel and ToolResultStore, so the MCP
// Gateway's component-tool dispatch never needs to know about the engine
// abstraction directly.
type GatewayAdapter struct {
	handles RunHandles
	results ToolResultStore
}

// NewGatewayAdapter constructs a GatewayAdapter.
func NewGatewayAdapter(handles RunHandles, results ToolResultStore) *GatewayAdapter {
	return &GatewayAdapter{handles: handles, results: results}
}

// ExecuteToolCall signals the run's workflow with a ToolCallRequest on
// SignalExecuteToolCall.
func (a *GatewayAdapter) ExecuteToolCall(ctx context.Context, runID, nodeID, callID string, actionArgs map[string]any) error {
	h, ok := a.handles.Handle(runID)
	if !ok {
		return apierr.New(apierr.KindNotFound, "run %s has no live workflow handle", runID)
	}
	return h.Signal(ctx, SignalExecuteToolCall, model.ToolCallRequest{
		CallID:    callID,
		NodeID:    nodeID,
		Arguments: actionArgs,
	})
}

// GetToolCallResult reads the result recorded by the Executor's
// ActivityRunToolCall once it completes.
func (a *GatewayAdapter) GetToolCallResult(ctx context.Context, callID string) (map[string]any, bool, error) {
	result, ok, err := a.results.Get(ctx, callID)
	if err != nil || !ok {
		return nil, ok, err
	}
	if !result.Success {
		return nil, true, apierr.New(apierr.KindDependency, "tool call %s failed: %s", callID, result.Error)
	}
	return result.Output, true, nil
}
