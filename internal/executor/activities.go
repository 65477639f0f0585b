package executor

import (
	"context"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/execctx"
	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/telemetry"
)

// runActionActivity is the ActivityRunAction handler: it looks up no
// component state itself (the definition travels in the input, already
// resolved by the workflow handler against the Component Registry) and
// dispatches to the Action Runner.
func (e *Executor) runActionActivity(ctx context.Context, raw any) (any, error) {
	in, ok := raw.(actionCallInput)
	if !ok {
		return nil, apierr.New(apierr.KindValidation, "executor: unexpected runAction input type %T", raw)
	}
	ec := execctx.New(in.RunID, in.Ref, telemetry.NewNoopLogger(), e.progressEmitter(in.RunID, in.Ref))
	return e.runner.Execute(ctx, in.Def, ec, in.Params)
}

// progressEmitter turns a component's EmitProgress calls into NODE_PROGRESS
// trace events for ref.
func (e *Executor) progressEmitter(runID, ref string) func(context.Context, execctx.Progress) {
	return func(ctx context.Context, p execctx.Progress) {
		_, _ = e.traceSink.Append(ctx, model.TraceEvent{RunID: runID, Type: model.NodeProgress, NodeRef: ref, Level: model.TraceLevel(p.Level), Message: p.Message, Data: p.Data})
	}
}

// runToolCallActivity executes an agent-initiated tool call and records
// its result in the ToolResultStore for the MCP Gateway to retrieve.
func (e *Executor) runToolCallActivity(ctx context.Context, raw any) (any, error) {
	req, ok := raw.(toolCallActivityInput)
	if !ok {
		return nil, apierr.New(apierr.KindValidation, "executor: unexpected runToolCall input type %T", raw)
	}

	ec := execctx.New(req.RunID, req.NodeID, telemetry.NewNoopLogger(), e.progressEmitter(req.RunID, req.NodeID))
	out, err := e.runner.Execute(ctx, req.Def, ec, req.Params)

	result := model.ToolCallResult{Success: err == nil, Output: out}
	if err != nil {
		result.Error = err.Error()
	}
	if putErr := e.toolResults.Put(ctx, req.CallID, result); putErr != nil {
		return nil, apierr.Wrap(apierr.KindDependency, putErr, "store tool call result %s", req.CallID)
	}
	return nil, nil
}

// toolCallActivityInput is the input to ActivityRunToolCall, distinct from
// the wire-shaped model.ToolCallRequest since it travels with the already
// resolved component definition.
type toolCallActivityInput struct {
	Def    model.ComponentDefinition
	Params map[string]any
	RunID  string
	NodeID string
	CallID string
}

func (e *Executor) createApprovalActivity(ctx context.Context, raw any) (any, error) {
	in, ok := raw.(model.CreateApprovalInput)
	if !ok {
		return nil, apierr.New(apierr.KindValidation, "executor: unexpected createApproval input type %T", raw)
	}
	return e.approvals.Create(ctx, approvalIDForNode(in), in)
}

func (e *Executor) cancelApprovalActivity(ctx context.Context, raw any) (any, error) {
	id, ok := raw.(string)
	if !ok {
		return nil, apierr.New(apierr.KindValidation, "executor: unexpected cancelApproval input type %T", raw)
	}
	return e.approvals.Cancel(ctx, id)
}

func (e *Executor) appendTraceActivity(ctx context.Context, raw any) (any, error) {
	evt, ok := raw.(model.TraceEvent)
	if !ok {
		return nil, apierr.New(apierr.KindValidation, "executor: unexpected appendTrace input type %T", raw)
	}
	return e.traceSink.Append(ctx, evt)
}

// approvalIDForNode derives the Approval Request id from its NodeRef,
// matching the RequestID the workflow handler built in buildPendingApproval.
func approvalIDForNode(in model.CreateApprovalInput) string {
	return in.NodeRef + ":approval"
}
