// Package engine defines the workflow engine abstraction and adapters for
// durable execution backends (§5, Workflow Executor). It lets the same
// run-driving logic target Temporal in production or an in-memory engine in
// tests without modification.
package engine

import (
	"context"
	"time"

	"github.com/flowforge/orchestrator/internal/telemetry"
)

type (
	// Engine abstracts workflow registration and execution so adapters
	// (Temporal, in-memory, or a future custom backend) can be swapped
	// without touching the Workflow Executor. Implementations translate
	// these generic types into backend-specific primitives.
	Engine interface {
		// RegisterWorkflow registers a workflow definition with the engine.
		// Called once during process initialization, before the worker pool
		// starts. Returns an error if the name is already registered.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActivity registers an activity definition. Must be called
		// during initialization before starting workers.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartWorkflow initiates a new run and returns a handle for
		// interacting with it. req.ID must be unique for the engine
		// instance. Neither adapter reports a reused id as a ConflictError:
		// the in-memory engine does not check for one, and the Temporal
		// adapter returns the Temporal client's own error unchanged.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds a run-driving handler to a logical name and
	// default task queue.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is the Workflow Executor's entry point, invoked by the
	// engine once per run. It must be deterministic: given the same input
	// and the same sequence of activity/signal results, every replay must
	// produce the same sequence of engine calls.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to the run-driving handler
	// within the deterministic execution environment of a workflow. It
	// wraps engine-specific contexts (Temporal's workflow.Context, the
	// in-memory engine's own bookkeeping) behind one API.
	//
	// Implementations must preserve deterministic replay: any operation
	// that interacts with the engine (ExecuteActivity, SignalChannel, Now)
	// must be replay-safe. Direct I/O, randomness, or wall-clock access
	// inside a workflow handler breaks this guarantee.
	//
	// WorkflowContext is bound to one workflow execution and must not be
	// shared across goroutines outside what the engine itself schedules.
	WorkflowContext interface {
		// Context returns the Go context for the workflow. Use this for
		// activity execution and cancellation propagation.
		Context() context.Context

		// WorkflowID returns the unique identifier for this execution —
		// the run id (§4.3).
		WorkflowID() string

		// RunID returns the engine-assigned run identifier used for
		// observability correlation. Distinct from WorkflowID on engines
		// that version or continue-as-new a run.
		RunID() string

		// ExecuteActivity schedules an activity and blocks for its result,
		// applying req's retry policy. result is populated with the
		// activity's return value.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error

		// ExecuteActivityAsync schedules an activity without blocking,
		// returning a Future resolved later via Future.Get. This is how
		// the executor runs independent actions in parallel.
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

		// SignalChannel returns the channel for the named signal (e.g.
		// "approval.resolved", "toolcall.completed", "run.pause"). Workflow
		// code blocks or polls on it to react to external events.
		SignalChannel(name string) SignalChannel

		// Logger returns a logger scoped to this run.
		Logger() telemetry.Logger
		// Metrics returns a metrics recorder scoped to this run.
		Metrics() telemetry.Metrics
		// Tracer returns a tracer for spans within this run.
		Tracer() telemetry.Tracer

		// Now returns the current time in a deterministic, replay-safe
		// manner.
		Now() time.Time
	}

	// Future represents a pending activity result. Futures let the
	// executor launch several actions concurrently via
	// ExecuteActivityAsync and join on them later.
	//
	// Get is idempotent: calling it more than once returns the same
	// result/error every time.
	Future interface {
		// Get blocks until the activity completes and populates result.
		Get(ctx context.Context, result any) error
		// IsReady reports whether Get will not block.
		IsReady() bool
	}

	// ActivityDefinition registers an activity handler. Activities are
	// stateless, short-lived tasks invoked from a workflow — the Action
	// Runner's execution of a single compiled Action is always run as an
	// activity, never inline in the workflow goroutine.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc handles one activity invocation. Unlike workflow code,
	// activities may perform side effects (I/O, container execution,
	// remote HTTP calls).
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry/timeout behavior for an activity.
	ActivityOptions struct {
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowStartRequest describes how to launch a run.
	WorkflowStartRequest struct {
		ID               string
		Workflow         string
		TaskQueue        string
		Input            any
		Memo             map[string]any
		SearchAttributes map[string]any
		RetryPolicy      RetryPolicy
	}

	// ActivityRequest contains what's needed to schedule one activity.
	ActivityRequest struct {
		Name        string
		Input       any
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle lets callers interact with a running workflow:
	// waiting for completion, delivering signals (pause/resume, approval
	// resolution, tool-call completion), or cancelling.
	WorkflowHandle interface {
		Wait(ctx context.Context, result any) error
		Signal(ctx context.Context, name string, payload any) error
		Cancel(ctx context.Context) error
	}

	// RetryPolicy defines retry semantics shared by workflow-start
	// attempts and activities, mirroring §4.4's component RetryPolicy in
	// engine-native units. Zero-valued fields mean "use the engine
	// default".
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
		MaximumInterval    time.Duration
		NonRetryableErrors []string
	}

	// SignalChannel exposes workflow signal delivery in an engine-agnostic
	// way, wrapping Temporal signal channels or the in-memory engine's Go
	// channels behind one blocking/non-blocking receive API.
	SignalChannel interface {
		// Receive blocks until a value is delivered and decodes it into
		// dest.
		Receive(ctx context.Context, dest any) error
		// ReceiveAsync attempts a non-blocking receive, reporting whether
		// dest was populated.
		ReceiveAsync(dest any) bool
	}
)
