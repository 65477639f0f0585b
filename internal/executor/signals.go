package executor

import (
	"context"
	"sync"

	"github.com/flowforge/orchestrator/internal/approval"
	"github.com/flowforge/orchestrator/internal/engine"
	"github.com/flowforge/orchestrator/internal/model"
)

// approvalInbox fans out approval.SignalApprovalResolved deliveries (all
// arriving on one engine signal channel) to whichever suspended action is
// waiting on that specific request id.
type approvalInbox struct {
	mu   sync.Mutex
	subs map[string]chan model.ApprovalRequest
}

func newApprovalInbox() *approvalInbox {
	return &approvalInbox{subs: make(map[string]chan model.ApprovalRequest)}
}

func (b *approvalInbox) subscribe(id string) chan model.ApprovalRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan model.ApprovalRequest, 1)
	b.subs[id] = ch
	return ch
}

func (b *approvalInbox) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

func (b *approvalInbox) deliver(req model.ApprovalRequest) {
	b.mu.Lock()
	ch, ok := b.subs[req.ID]
	b.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- req:
	default:
	}
}

// dispatchApprovalSignals loops receiving resolved Approval Requests from
// the engine signal channel and routes each to its waiting subscriber.
// Signals for requests nobody is waiting on yet (delivered before the
// suspending action subscribed) are silently dropped; this cannot happen
// in practice since the request is only signaled after the Executor has
// already subscribed and persisted the pending record.
func (e *Executor) dispatchApprovalSignals(wctx engine.WorkflowContext, inbox *approvalInbox) {
	ch := wctx.SignalChannel(approval.SignalApprovalResolved)
	for {
		var req model.ApprovalRequest
		if err := ch.Receive(wctx.Context(), &req); err != nil {
			return
		}
		inbox.deliver(req)
	}
}

// dispatchToolCallSignals loops receiving agent tool-call requests and
// forwards them onto the channel serveToolCalls reads from.
func (e *Executor) dispatchToolCallSignals(wctx engine.WorkflowContext, out chan<- model.ToolCallRequest) {
	ch := wctx.SignalChannel(SignalExecuteToolCall)
	for {
		var req model.ToolCallRequest
		if err := ch.Receive(wctx.Context(), &req); err != nil {
			close(out)
			return
		}
		select {
		case out <- req:
		case <-wctx.Context().Done():
			return
		}
	}
}

// serveToolCalls dispatches each incoming tool call request to the Action
// Runner via ActivityRunToolCall, one goroutine per call so slow tools
// never block other agent calls within the same run. byRef resolves the
// calling node's componentId from the run's own plan: the MCP Gateway only
// knows the node id, not which component backs it.
func (e *Executor) serveToolCalls(ctx context.Context, wctx engine.WorkflowContext, runID string, byRef map[string]model.Action, in <-chan model.ToolCallRequest) {
	for {
		select {
		case req, ok := <-in:
			if !ok {
				return
			}
			go e.handleToolCall(ctx, wctx, runID, byRef, req)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Executor) handleToolCall(ctx context.Context, wctx engine.WorkflowContext, runID string, byRef map[string]model.Action, req model.ToolCallRequest) {
	// Idempotent callId (§4.5 Ordering): a redelivered signal for a callId
	// already stored or still dispatched is dropped rather than executed
	// again.
	if _, found, err := e.toolResults.Get(ctx, req.CallID); err == nil && found {
		return
	}
	if !e.beginCall(req.CallID) {
		return
	}
	defer e.endCall(req.CallID)

	a, ok := byRef[req.NodeID]
	if !ok {
		_ = e.toolResults.Put(ctx, req.CallID, model.ToolCallResult{Success: false, Error: "unknown node " + req.NodeID})
		return
	}
	def, ok := e.components.Get(a.ComponentID)
	if !ok {
		_ = e.toolResults.Put(ctx, req.CallID, model.ToolCallResult{Success: false, Error: "unknown component " + a.ComponentID})
		return
	}

	params := make(map[string]any, len(req.Arguments)+len(req.Parameters))
	for k, v := range req.Parameters {
		params[k] = v
	}
	for k, v := range req.Arguments {
		params[k] = v
	}

	_ = wctx.ExecuteActivity(ctx, engine.ActivityRequest{
		Name: ActivityRunToolCall,
		Input: toolCallActivityInput{
			Def: def, Params: params, RunID: runID, NodeID: req.NodeID, CallID: req.CallID,
		},
	}, new(any))

	e.emitTrace(wctx, model.TraceEvent{
		RunID: runID, Type: model.NodeProgress, NodeRef: req.NodeID, Level: model.LevelInfo,
		Message: "tool call completed", Data: map[string]any{"callId": req.CallID},
	})
}
