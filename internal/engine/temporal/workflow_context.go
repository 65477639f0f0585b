package temporal

import (
	"context"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/flowforge/orchestrator/internal/engine"
	"github.com/flowforge/orchestrator/internal/telemetry"
)

type workflowContext struct {
	engine     *Engine
	ctx        workflow.Context
	workflowID string
	runID      string
	logger     telemetry.Logger
	metrics    telemetry.Metrics
	tracer     telemetry.Tracer
}

type signalReceiver struct {
	ctx workflow.Context
	ch  workflow.ReceiveChannel
}

type future struct {
	future workflow.Future
	ctx    workflow.Context
}

func newWorkflowContext(e *Engine, ctx workflow.Context) *workflowContext {
	info := workflow.GetInfo(ctx)
	wfCtx := &workflowContext{
		engine:     e,
		ctx:        ctx,
		workflowID: info.WorkflowExecution.ID,
		runID:      info.WorkflowExecution.RunID,
		logger:     e.logger,
		metrics:    e.metrics,
		tracer:     e.tracer,
	}
	e.workflowContexts.Store(wfCtx.runID, wfCtx)
	return wfCtx
}

// normalizeError translates Temporal cancellation errors to context.Canceled
// so the Workflow Executor can classify cancellation uniformly across engine
// backends without depending on Temporal SDK error types.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if temporal.IsCanceledError(err) {
		return context.Canceled
	}
	return err
}

func mergeRetryPolicies(base, override engine.RetryPolicy) engine.RetryPolicy {
	result := base
	if override.MaxAttempts != 0 {
		result.MaxAttempts = override.MaxAttempts
	}
	if override.InitialInterval != 0 {
		result.InitialInterval = override.InitialInterval
	}
	if override.BackoffCoefficient != 0 {
		result.BackoffCoefficient = override.BackoffCoefficient
	}
	if override.MaximumInterval != 0 {
		result.MaximumInterval = override.MaximumInterval
	}
	if len(override.NonRetryableErrors) > 0 {
		result.NonRetryableErrors = override.NonRetryableErrors
	}
	return result
}

func convertRetryPolicy(r engine.RetryPolicy) *temporal.RetryPolicy {
	if r.MaxAttempts == 0 && r.InitialInterval == 0 && r.BackoffCoefficient == 0 {
		return nil
	}
	policy := &temporal.RetryPolicy{}
	if r.MaxAttempts > 0 {
		//nolint:gosec // validated at compile time to be a small positive count.
		policy.MaximumAttempts = int32(r.MaxAttempts)
	}
	if r.InitialInterval > 0 {
		policy.InitialInterval = r.InitialInterval
	}
	if r.BackoffCoefficient > 0 {
		policy.BackoffCoefficient = r.BackoffCoefficient
	}
	if r.MaximumInterval > 0 {
		policy.MaximumInterval = r.MaximumInterval
	}
	if len(r.NonRetryableErrors) > 0 {
		policy.NonRetryableErrorTypes = r.NonRetryableErrors
	}
	return policy
}

func (w *workflowContext) Context() context.Context {
	return context.Background()
}

func (w *workflowContext) WorkflowID() string { return w.workflowID }
func (w *workflowContext) RunID() string      { return w.runID }

func (w *workflowContext) Logger() telemetry.Logger   { return w.logger }
func (w *workflowContext) Metrics() telemetry.Metrics { return w.metrics }
func (w *workflowContext) Tracer() telemetry.Tracer   { return w.tracer }
func (w *workflowContext) Now() time.Time             { return workflow.Now(w.ctx) }

func (w *workflowContext) ExecuteActivity(_ context.Context, req engine.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(context.Background(), req)
	if err != nil {
		return err
	}
	return fut.Get(context.Background(), result)
}

func (w *workflowContext) ExecuteActivityAsync(_ context.Context, req engine.ActivityRequest) (engine.Future, error) {
	defaults := w.engine.activityDefaultsFor(req.Name)

	queue := req.Queue
	if queue == "" {
		queue = defaults.Queue
	}
	if queue == "" {
		queue = w.engine.defaultQueue
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = defaults.Timeout
	}
	if timeout == 0 {
		timeout = time.Minute
	}

	retry := mergeRetryPolicies(defaults.RetryPolicy, req.RetryPolicy)

	actx := workflow.WithActivityOptions(w.ctx, workflow.ActivityOptions{
		// ScheduleToStartTimeout bounds queue wait time as well as execution
		// time so a run cannot block until its overall timeout when workers
		// are unavailable.
		ScheduleToStartTimeout: timeout,
		StartToCloseTimeout:    timeout,
		TaskQueue:              queue,
		RetryPolicy:            convertRetryPolicy(retry),
	})
	fut := workflow.ExecuteActivity(actx, req.Name, req.Input)
	return &future{future: fut, ctx: actx}, nil
}

func (w *workflowContext) SignalChannel(name string) engine.SignalChannel {
	ch := workflow.GetSignalChannel(w.ctx, name)
	return &signalReceiver{ctx: w.ctx, ch: ch}
}

func (f *future) Get(_ context.Context, result any) error {
	if err := f.future.Get(f.ctx, result); err != nil {
		return normalizeError(err)
	}
	return nil
}

func (f *future) IsReady() bool { return f.future.IsReady() }

func (r *signalReceiver) Receive(_ context.Context, dest any) error {
	r.ch.Receive(r.ctx, dest)
	return nil
}

func (r *signalReceiver) ReceiveAsync(dest any) bool {
	return r.ch.ReceiveAsync(dest)
}
