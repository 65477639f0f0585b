package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/approval"
	"github.com/flowforge/orchestrator/internal/engine"
	"github.com/flowforge/orchestrator/internal/executor"
	"github.com/flowforge/orchestrator/internal/mcpgateway"
	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/runstore"
	"github.com/flowforge/orchestrator/internal/sessiontoken"
	"github.com/flowforge/orchestrator/internal/telemetry"
	"github.com/flowforge/orchestrator/internal/toolregistry"
	"github.com/flowforge/orchestrator/internal/trace"
	"github.com/flowforge/orchestrator/internal/workflowstore"
)

// Config configures a Server: the shared secrets and workflow engine
// identifiers the route handlers need alongside their package dependencies.
type Config struct {
	InternalServiceToken string
	WorkflowName         string
	TaskQueue            string
	SessionTokenTTL      time.Duration
}

// Server wires every in-process subsystem (§4) behind the HTTP surface
// named in §6. It holds no state of its own beyond routing: all mutation
// goes through the wrapped packages.
type Server struct {
	cfg Config

	engine    engine.Engine
	workflows *workflowstore.Service
	runs      *runstore.Registry
	handles   *executor.HandleRegistry
	approvals *approval.Coordinator
	traces    *trace.Sink
	gateway   *mcpgateway.Gateway
	tools     *toolregistry.Registry
	minter    *sessiontoken.Minter
	sessions  SessionProvider
	logger    telemetry.Logger
	tracer    telemetry.Tracer
	metrics   telemetry.Metrics

	// componentExecutor is the MCP Gateway's dispatch target for
	// component-backed tool calls (§4.7), normally an
	// executor.GatewayAdapter bound to the same HandleRegistry as Handles.
	componentExecutor mcpgateway.ComponentExecutor

	mux *http.ServeMux
}

// Deps collects the Server's collaborators, one per §4 subsystem.
type Deps struct {
	Engine            engine.Engine
	Workflows         *workflowstore.Service
	Runs              *runstore.Registry
	Handles           *executor.HandleRegistry
	Approvals         *approval.Coordinator
	Traces            *trace.Sink
	Gateway           *mcpgateway.Gateway
	Tools             *toolregistry.Registry
	Minter            *sessiontoken.Minter
	Sessions          SessionProvider
	ComponentExecutor mcpgateway.ComponentExecutor
	Logger            telemetry.Logger
	Tracer            telemetry.Tracer
	Metrics           telemetry.Metrics
}

// NewServer builds a Server and registers every §6 route on its mux.
func NewServer(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer("mcpgateway")
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics("mcpgateway")
	}
	if cfg.SessionTokenTTL == 0 {
		cfg.SessionTokenTTL = time.Hour
	}

	s := &Server{
		cfg:               cfg,
		engine:            deps.Engine,
		workflows:         deps.Workflows,
		runs:              deps.Runs,
		handles:           deps.Handles,
		approvals:         deps.Approvals,
		traces:            deps.Traces,
		gateway:           deps.Gateway,
		tools:             deps.Tools,
		minter:            deps.Minter,
		sessions:          deps.Sessions,
		componentExecutor: deps.ComponentExecutor,
		logger:            logger,
		tracer:            tracer,
		metrics:           metrics,
		mux:               http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	operator := func(h http.HandlerFunc) http.HandlerFunc {
		return operatorAuth(s.cfg.InternalServiceToken, s.sessions, h)
	}
	internal := func(h http.HandlerFunc) http.HandlerFunc {
		return internalOnly(s.cfg.InternalServiceToken, h)
	}
	mcp := func(h http.HandlerFunc) http.HandlerFunc {
		return mcpAuth(func(ctx context.Context, token string) (any, bool, error) {
			claims, ok, err := s.minter.Validate(ctx, token)
			return claims, ok, err
		}, h)
	}

	s.mux.HandleFunc("POST /workflows", operator(s.handleCreateWorkflow))
	s.mux.HandleFunc("PUT /workflows/{id}", operator(s.handleReplaceWorkflow))
	s.mux.HandleFunc("POST /workflows/{id}/commit", operator(s.handleCommitWorkflow))
	s.mux.HandleFunc("POST /workflows/{id}/run", operator(s.handleRunWorkflow))

	s.mux.HandleFunc("GET /workflows/runs/{runId}/status", operator(s.handleRunStatus))
	s.mux.HandleFunc("GET /workflows/runs/{runId}/result", operator(s.handleRunResult))
	s.mux.HandleFunc("POST /workflows/runs/{runId}/cancel", operator(s.handleCancelRun))
	s.mux.HandleFunc("GET /workflows/runs/{runId}/trace", operator(s.handleRunTrace))
	s.mux.HandleFunc("GET /workflows/runs/{runId}/stream", operator(s.handleRunStream))

	s.mux.HandleFunc("GET /approvals", operator(s.handleListApprovals))
	s.mux.HandleFunc("GET /approvals/{id}", operator(s.handleGetApproval))
	s.mux.HandleFunc("POST /approvals/{id}/approve", operator(s.handleResolveApproval(true)))
	s.mux.HandleFunc("POST /approvals/{id}/reject", operator(s.handleResolveApproval(false)))

	s.mux.HandleFunc("GET /approve/{token}", s.handlePublicResolve(true))
	s.mux.HandleFunc("GET /reject/{token}", s.handlePublicResolve(false))

	s.mux.HandleFunc("GET /mcp/sse", mcp(s.handleMCPSSE))
	s.mux.HandleFunc("POST /mcp/messages", mcp(s.handleMCPMessages))

	s.mux.HandleFunc("POST /internal/mcp/generate-token", internal(s.handleGenerateToken))
	s.mux.HandleFunc("POST /internal/mcp/register-component", internal(s.handleRegisterComponent))
	s.mux.HandleFunc("POST /internal/mcp/register-remote", internal(s.handleRegisterRemote))
	s.mux.HandleFunc("POST /internal/mcp/register-local", internal(s.handleRegisterLocal))
	s.mux.HandleFunc("POST /internal/mcp/cleanup", internal(s.handleCleanup))
	s.mux.HandleFunc("POST /internal/mcp/tools-ready", internal(s.handleToolsReady))
}

// startRun launches plan as a new engine workflow execution, records it in
// the Run Registry as RUNNING, stores its handle, and spawns the goroutine
// that awaits completion and finalizes the run record (§4.3, §4.5). It
// returns as soon as the run is durably recorded; execution proceeds
// asynchronously.
func (s *Server) startRun(ctx context.Context, workflowID, organizationID string, plan model.ActionPlan) (model.Run, error) {
	runID := uuid.NewString()
	internalRunID := uuid.NewString()

	run, err := s.runs.Create(ctx, runstore.CreateInput{
		RunID:          runID,
		InternalRunID:  internalRunID,
		WorkflowID:     workflowID,
		TotalActions:   len(plan.Actions),
		OrganizationID: organizationID,
	})
	if err != nil {
		return model.Run{}, err
	}

	handle, err := s.engine.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:        internalRunID,
		Workflow:  s.cfg.WorkflowName,
		TaskQueue: s.cfg.TaskQueue,
		Input: executor.RunInput{
			RunID:          runID,
			OrganizationID: organizationID,
			Plan:           plan,
		},
	})
	if err != nil {
		_, _ = s.runs.Finish(ctx, runID, model.RunFailed, nil, err.Error())
		return model.Run{}, apierr.Wrap(apierr.KindDependency, err, "start workflow for run %s", runID)
	}
	s.handles.Put(runID, handle)

	go s.awaitRun(runID, handle)

	return run, nil
}

func (s *Server) awaitRun(runID string, handle engine.WorkflowHandle) {
	ctx := context.Background()
	var out executor.RunOutput
	err := handle.Wait(ctx, &out)
	s.handles.Delete(runID)

	if err != nil {
		if _, finErr := s.runs.Finish(ctx, runID, model.RunFailed, nil, err.Error()); finErr != nil {
			s.logger.Error(ctx, "finalize run after wait error", "runId", runID, "error", finErr)
		}
		return
	}
	if _, finErr := s.runs.Finish(ctx, runID, out.Status, out.Outputs, out.Error); finErr != nil {
		s.logger.Error(ctx, "finalize run", "runId", runID, "error", finErr)
	}
}
