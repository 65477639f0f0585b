// Package executor implements the Workflow Executor (§4.5): it drives one
// compiled ActionPlan's actions through the engine abstraction, maintaining
// the per-action state machine, suspension for human input, agent tool
// call dispatch, and cancellation.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/approval"
	"github.com/flowforge/orchestrator/internal/component"
	"github.com/flowforge/orchestrator/internal/engine"
	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/runner"
	"github.com/flowforge/orchestrator/internal/telemetry"
	"github.com/flowforge/orchestrator/internal/trace"
)

// Signal names the Executor listens for on its workflow's signal
// channels, in addition to approval.SignalApprovalResolved.
const (
	SignalExecuteToolCall = "orchestrator.tool.execute"
	SignalCancelRun       = "orchestrator.run.cancel"

	// ActivityRunAction executes one compiled Action (§4.4, via
	// internal/runner). CategoryApproval actions never reach it: runOne
	// builds their PendingHumanInput suspension marker in the workflow
	// handler itself.
	ActivityRunAction = "executor.runAction"
	// ActivityRunToolCall executes one agent-initiated tool call against
	// the same Action Runner, on behalf of the MCP Gateway.
	ActivityRunToolCall = "executor.runToolCall"
	// ActivityCreateApproval registers a suspension with the Pause/Resume
	// Coordinator.
	ActivityCreateApproval = "executor.createApproval"
	// ActivityCancelApproval cancels a pending Approval Request.
	ActivityCancelApproval = "executor.cancelApproval"
	// ActivityAppendTrace appends one event to the Trace Sink.
	ActivityAppendTrace = "executor.appendTrace"
)

// ToolResultStore holds the asynchronous result of an agent tool call,
// keyed by callId, so the MCP Gateway's getToolCallResult poll (outside
// the workflow) can observe it without the engine needing a query
// primitive. The in-memory implementation (internal/executor/toolresult)
// never prunes its entries.
type ToolResultStore interface {
	Put(ctx context.Context, callID string, result model.ToolCallResult) error
	Get(ctx context.Context, callID string) (model.ToolCallResult, bool, error)
}

// RunInput starts one ActionPlan execution.
type RunInput struct {
	RunID          string
	OrganizationID string
	Plan           model.ActionPlan
}

// RunOutput is the Workflow Executor's terminal result.
type RunOutput struct {
	Status  model.RunStatus
	Outputs map[string]map[string]any
	Error   string
}

// actionCallInput is the input to ActivityRunAction.
type actionCallInput struct {
	Def    model.ComponentDefinition
	Params map[string]any
	RunID  string
	Ref    string
}

// Executor drives ActionPlans against an engine.Engine.
type Executor struct {
	components  *component.Registry
	runner      *runner.Runner
	approvals   *approval.Coordinator
	traceSink   *trace.Sink
	toolResults ToolResultStore

	// timeoutDefault bounds an action's suspension when its
	// PendingHumanInput carries no TimeoutAt.
	timeoutDefault time.Duration

	// callsInFlight tracks callIds currently dispatched to
	// ActivityRunToolCall but not yet recorded in toolResults, so a
	// redelivered executeToolCall signal for the same callId (§4.5
	// Ordering: "the same callId is idempotent") is dropped instead of
	// running the component a second time.
	callsInFlightMu sync.Mutex
	callsInFlight   map[string]struct{}

	tracer  telemetry.Tracer
	metrics telemetry.Metrics
}

// Option configures optional Executor dependencies.
type Option func(*Executor)

// WithTracer overrides the Executor's default no-op Tracer, so action
// dispatch is recorded under the caller's OTEL TracerProvider.
func WithTracer(t telemetry.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// WithMetrics overrides the Executor's default no-op Metrics.
func WithMetrics(m telemetry.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New constructs an Executor.
func New(components *component.Registry, rnr *runner.Runner, approvals *approval.Coordinator, traceSink *trace.Sink, toolResults ToolResultStore, opts ...Option) *Executor {
	e := &Executor{
		components:     components,
		runner:         rnr,
		approvals:      approvals,
		traceSink:      traceSink,
		toolResults:    toolResults,
		timeoutDefault: 24 * time.Hour,
		callsInFlight:  make(map[string]struct{}),
		tracer:         telemetry.NewNoopTracer("executor"),
		metrics:        telemetry.NewNoopMetrics("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// beginCall marks callID as dispatched, reporting false if it was already
// in flight. Paired with endCall.
func (e *Executor) beginCall(callID string) bool {
	e.callsInFlightMu.Lock()
	defer e.callsInFlightMu.Unlock()
	if _, ok := e.callsInFlight[callID]; ok {
		return false
	}
	e.callsInFlight[callID] = struct{}{}
	return true
}

func (e *Executor) endCall(callID string) {
	e.callsInFlightMu.Lock()
	defer e.callsInFlightMu.Unlock()
	delete(e.callsInFlight, callID)
}

// WorkflowDefinition returns the engine registration for the Executor's
// run-driving handler.
func (e *Executor) WorkflowDefinition(name, taskQueue string) engine.WorkflowDefinition {
	return engine.WorkflowDefinition{Name: name, TaskQueue: taskQueue, Handler: e.Run}
}

// ActivityDefinitions returns every activity the Executor's workflow
// handler schedules. Callers must register all of them with the engine
// before starting workers.
func (e *Executor) ActivityDefinitions(taskQueue string) []engine.ActivityDefinition {
	return []engine.ActivityDefinition{
		{Name: ActivityRunAction, Handler: e.runActionActivity, Options: engine.ActivityOptions{Queue: taskQueue}},
		{Name: ActivityRunToolCall, Handler: e.runToolCallActivity, Options: engine.ActivityOptions{Queue: taskQueue}},
		{Name: ActivityCreateApproval, Handler: e.createApprovalActivity, Options: engine.ActivityOptions{Queue: taskQueue}},
		{Name: ActivityCancelApproval, Handler: e.cancelApprovalActivity, Options: engine.ActivityOptions{Queue: taskQueue}},
		{Name: ActivityAppendTrace, Handler: e.appendTraceActivity, Options: engine.ActivityOptions{Queue: taskQueue}},
	}
}

// run is the mutable scheduling state for one workflow execution.
type run struct {
	input model.ActionPlan
	runID string

	mu      sync.Mutex
	status  map[string]model.ActionStatus
	outputs map[string]map[string]any
	pending map[string]string // ref -> approval request id, for Cancel on run cancellation

	cancelled bool
}

// Run is the Workflow Executor's engine.WorkflowFunc.
func (e *Executor) Run(wctx engine.WorkflowContext, rawInput any) (any, error) {
	input, ok := rawInput.(RunInput)
	if !ok {
		return nil, apierr.New(apierr.KindValidation, "executor: unexpected workflow input type %T", rawInput)
	}

	r := &run{
		input:   input.Plan,
		runID:   input.RunID,
		status:  make(map[string]model.ActionStatus),
		outputs: make(map[string]map[string]any),
		pending: make(map[string]string),
	}
	for _, a := range input.Plan.Actions {
		r.status[a.Ref] = model.ActionPending
	}

	ctx, cancel := context.WithCancel(wctx.Context())
	defer cancel()
	go e.watchCancelSignal(wctx, r, cancel)

	byRef := make(map[string]model.Action, len(input.Plan.Actions))
	for _, a := range input.Plan.Actions {
		byRef[a.Ref] = a
	}

	approvalInbox := newApprovalInbox()
	go e.dispatchApprovalSignals(wctx, approvalInbox)

	toolInbox := make(chan model.ToolCallRequest, 16)
	go e.dispatchToolCallSignals(wctx, toolInbox)
	go e.serveToolCalls(ctx, wctx, input.RunID, byRef, toolInbox)

	type done struct {
		ref string
		err error
	}
	results := make(chan done, len(input.Plan.Actions))
	inFlight := 0
	scheduled := make(map[string]bool)

	fail := func(ref string, err error) {
		r.mu.Lock()
		r.status[ref] = model.ActionFailed
		r.mu.Unlock()
		e.emitTrace(wctx, model.TraceEvent{RunID: r.runID, Type: model.NodeFailed, NodeRef: ref, Level: model.LevelError, Error: err.Error()})
	}

	// completeOrSuppress records a finished action's outcome. If the run was
	// already cancelled by the time this result arrived, the failure (almost
	// always ctx.Err() from a suspended action unblocked by the cancel) is
	// attributed to the cancellation instead: no NODE_FAILED trace is
	// emitted for an action the operator cancelled, matching "no subsequent
	// trace events" for an action that was awaiting input when cancelled.
	completeOrSuppress := func(ref string, err error) {
		r.mu.Lock()
		cancelledNow := r.cancelled
		r.mu.Unlock()
		if cancelledNow {
			r.mu.Lock()
			if r.status[ref] != model.ActionCompleted {
				r.status[ref] = model.ActionCancelled
			}
			r.mu.Unlock()
			return
		}
		fail(ref, err)
	}

	for {
		r.mu.Lock()
		cancelled := r.cancelled
		ready := []string{}
		remaining := 0
		for ref, st := range r.status {
			if st == model.ActionPending {
				remaining++
				if dependenciesSatisfied(byRef[ref], r.status) && !scheduled[ref] {
					ready = append(ready, ref)
				}
			}
		}
		r.mu.Unlock()

		if cancelled {
			e.cancelAllPending(wctx, r)
			return e.finish(r, model.RunCancelled, ""), nil
		}
		if remaining == 0 && inFlight == 0 {
			break
		}

		for _, ref := range ready {
			scheduled[ref] = true
			inFlight++
			go e.runOne(ctx, wctx, r, byRef[ref], approvalInbox, func(err error) { results <- done{ref, err} })
		}

		if inFlight == 0 {
			// Nothing ready and nothing in flight, but actions remain: a
			// dependency never resolved because it failed upstream.
			e.skipUnreachable(wctx, r, byRef)
			continue
		}

		select {
		case d := <-results:
			inFlight--
			if d.err != nil {
				completeOrSuppress(d.ref, d.err)
			}
		case <-ctx.Done():
			r.mu.Lock()
			r.cancelled = true
			r.mu.Unlock()
		}
	}

	status := model.RunCompleted
	r.mu.Lock()
	for _, st := range r.status {
		if st == model.ActionFailed {
			status = model.RunFailed
		}
	}
	r.mu.Unlock()
	return e.finish(r, status, ""), nil
}

func (e *Executor) finish(r *run, status model.RunStatus, errMsg string) RunOutput {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]map[string]any, len(r.outputs))
	for k, v := range r.outputs {
		out[k] = v
	}
	return RunOutput{Status: status, Outputs: out, Error: errMsg}
}

// dependenciesSatisfied reports whether every dependency of a is in a
// status that lets a run: Completed or Skipped. A Failed or Cancelled
// dependency never satisfies it; the caller relies on skipUnreachable to
// cascade that instead.
func dependenciesSatisfied(a model.Action, status map[string]model.ActionStatus) bool {
	for _, dep := range a.DependsOn {
		st := status[dep]
		if st != model.ActionCompleted && st != model.ActionSkipped {
			return false
		}
	}
	return true
}

// skipUnreachable marks every still-pending action whose dependency chain
// contains a Failed or Cancelled action as Skipped, and emits NODE_SKIPPED.
func (e *Executor) skipUnreachable(wctx engine.WorkflowContext, r *run, byRef map[string]model.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := true
	for changed {
		changed = false
		for ref, st := range r.status {
			if st != model.ActionPending {
				continue
			}
			for _, dep := range byRef[ref].DependsOn {
				depSt := r.status[dep]
				if depSt == model.ActionFailed || depSt == model.ActionCancelled || depSt == model.ActionSkipped {
					r.status[ref] = model.ActionSkipped
					changed = true
					e.emitTrace(wctx, model.TraceEvent{RunID: r.runID, Type: model.NodeSkipped, NodeRef: ref, Level: model.LevelInfo})
					break
				}
			}
		}
	}
}

// runOne executes a single action end to end, including suspension for
// human input, and reports completion via done.
func (e *Executor) runOne(ctx context.Context, wctx engine.WorkflowContext, r *run, a model.Action, inbox *approvalInbox, done func(error)) {
	r.mu.Lock()
	r.status[a.Ref] = model.ActionRunning
	r.mu.Unlock()
	e.emitTrace(wctx, model.TraceEvent{RunID: r.runID, Type: model.NodeStarted, NodeRef: a.Ref, Level: model.LevelInfo})

	def, ok := e.components.Get(a.ComponentID)
	if !ok {
		done(apierr.New(apierr.KindConfiguration, "unknown component %q for action %q", a.ComponentID, a.Ref).WithField("nodeId", a.Ref).WithField("componentId", a.ComponentID))
		return
	}

	params := resolveParams(a, r)

	var result model.ActionResult
	var execErr error
	if def.Category == model.CategoryApproval {
		result = buildPendingApproval(a, params)
	} else {
		result, execErr = e.runAction(ctx, wctx, r.runID, a, def, params)
	}

	if execErr != nil {
		done(execErr)
		return
	}

	if result.Pending != nil {
		resolved, err := e.suspend(ctx, wctx, r, a, result.Pending, inbox)
		if err != nil {
			done(err)
			return
		}
		result = resolved
	}

	r.mu.Lock()
	r.status[a.Ref] = model.ActionCompleted
	r.outputs[a.Ref] = result.Output
	r.mu.Unlock()
	e.emitTrace(wctx, model.TraceEvent{RunID: r.runID, Type: model.NodeCompleted, NodeRef: a.Ref, Level: model.LevelInfo, OutputSummary: result.Output})
	done(nil)
}

// runAction schedules the action's activity and unpacks its result.
func (e *Executor) runAction(ctx context.Context, wctx engine.WorkflowContext, runID string, a model.Action, def model.ComponentDefinition, params map[string]any) (model.ActionResult, error) {
	spanCtx, span := e.tracer.Start(ctx, ActivityRunAction)
	defer span.End()
	start := time.Now()

	var out map[string]any
	err := wctx.ExecuteActivity(spanCtx, engine.ActivityRequest{
		Name:  ActivityRunAction,
		Input: actionCallInput{Def: def, Params: params, RunID: runID, Ref: a.Ref},
	}, &out)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
	}
	e.metrics.RecordTimer(ActivityRunAction+".duration", time.Since(start), "component", def.ID, "outcome", outcome)
	e.metrics.IncCounter(ActivityRunAction+".count", 1, "component", def.ID, "outcome", outcome)
	if err != nil {
		return model.ActionResult{}, err
	}
	return model.ActionResult{Output: out}, nil
}

func buildPendingApproval(a model.Action, params map[string]any) model.ActionResult {
	requestID := fmt.Sprintf("%s:%s", a.Ref, "approval")
	title, _ := params["title"].(string)
	description, _ := params["description"].(string)
	return model.ActionResult{
		Pending: &model.PendingHumanInput{
			RequestID:   requestID,
			InputType:   model.InputApproval,
			Title:       title,
			Description: description,
			ContextData: params,
		},
	}
}

// resolveParams merges an action's static Params with values bound from
// upstream actions' outputs via its Bindings.
func resolveParams(a model.Action, r *run) map[string]any {
	out := make(map[string]any, len(a.Params)+len(a.Bindings))
	for k, v := range a.Params {
		out[k] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range a.Bindings {
		src, ok := r.outputs[b.SourceRef]
		if !ok {
			continue
		}
		out[b.TargetInput] = src[b.SourceOutput]
	}
	return out
}

// suspend registers the action's PendingHumanInput with the Pause/Resume
// Coordinator, emits AWAITING_INPUT, and blocks until the request resolves
// or its deadline elapses.
func (e *Executor) suspend(ctx context.Context, wctx engine.WorkflowContext, r *run, a model.Action, p *model.PendingHumanInput, inbox *approvalInbox) (model.ActionResult, error) {
	r.mu.Lock()
	r.status[a.Ref] = model.ActionAwaitingInput
	r.pending[a.Ref] = p.RequestID
	r.mu.Unlock()
	e.emitTrace(wctx, model.TraceEvent{RunID: r.runID, Type: model.AwaitingInput, NodeRef: a.Ref, Level: model.LevelInfo, Data: p.ContextData})

	createIn := model.CreateApprovalInput{
		RunID: r.runID, WorkflowID: wctx.WorkflowID(), NodeRef: a.Ref,
		Title: p.Title, Description: p.Description, Context: p.ContextData,
		TimeoutAt: p.TimeoutAt,
	}
	// Subscribe before the record exists, so a resolution signaled right
	// after it is persisted cannot arrive ahead of the subscriber.
	ch := inbox.subscribe(approvalIDForNode(createIn))
	defer inbox.unsubscribe(approvalIDForNode(createIn))

	var created model.ApprovalRequest
	err := wctx.ExecuteActivity(ctx, engine.ActivityRequest{
		Name:  ActivityCreateApproval,
		Input: createIn,
	}, &created)
	if err != nil {
		return model.ActionResult{}, err
	}

	d := e.timeoutDefault
	if p.TimeoutAt != nil {
		d = time.Until(*p.TimeoutAt)
		if d < 0 {
			d = 0
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	deadline := timer.C

	select {
	case resolved := <-ch:
		return model.ActionResult{Output: map[string]any{
			"approved":     resolved.Status == model.ApprovalApproved,
			"respondedBy":  resolved.RespondedBy,
			"responseNote": resolved.ResponseNote,
		}}, nil
	case <-deadline:
		return model.ActionResult{}, apierr.New(apierr.KindTimeout, "approval request %s expired", created.ID)
	case <-ctx.Done():
		return model.ActionResult{}, ctx.Err()
	}
}

// cancelAllPending cancels every Approval Request still awaiting a
// decision when the run itself is cancelled.
func (e *Executor) cancelAllPending(wctx engine.WorkflowContext, r *run) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.pending))
	for ref, id := range r.pending {
		if r.status[ref] == model.ActionAwaitingInput {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()
	for _, id := range ids {
		_ = wctx.ExecuteActivity(wctx.Context(), engine.ActivityRequest{Name: ActivityCancelApproval, Input: id}, new(model.ApprovalRequest))
	}
}

func (e *Executor) emitTrace(wctx engine.WorkflowContext, evt model.TraceEvent) {
	_ = wctx.ExecuteActivity(wctx.Context(), engine.ActivityRequest{Name: ActivityAppendTrace, Input: evt}, new(model.TraceEvent))
}

func (e *Executor) watchCancelSignal(wctx engine.WorkflowContext, r *run, cancel context.CancelFunc) {
	ch := wctx.SignalChannel(SignalCancelRun)
	var payload any
	if err := ch.Receive(wctx.Context(), &payload); err == nil {
		r.mu.Lock()
		r.cancelled = true
		r.mu.Unlock()
		cancel()
	}
}
