// Command orchestratord runs the orchestrator daemon: the HTTP surface
// (§6), the Workflow Executor wired to a durable engine backend (§5), and
// every in-process subsystem (§4) they depend on.
//
// # Configuration
//
// Environment variables (see internal/config for the full list and
// defaults):
//
//	HTTP_ADDR                - HTTP listen address (default ":8080")
//	ENGINE_BACKEND           - "temporal" or "inmem" (default "inmem")
//	TEMPORAL_ADDRESS         - Temporal frontend address
//	DATABASE_URL             - MongoDB connection string for the Run
//	                           Registry; in-memory storage is used when unset
//	TOOL_REGISTRY_REDIS_URL  - Redis connection string for the Tool
//	                           Registry and session tokens; in-memory
//	                           storage is used when unset
//	COMPONENTS_DIR           - directory of component definition YAML files
//	INTERNAL_SERVICE_TOKEN   - shared secret for service-to-service calls
//	AUTH_PROVIDER            - "basic" or "clerk"
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dockerclient "github.com/docker/docker/client"
	"goa.design/clue/log"

	"github.com/flowforge/orchestrator/internal/approval"
	approvalinmem "github.com/flowforge/orchestrator/internal/approval/inmem"
	"github.com/flowforge/orchestrator/internal/component"
	"github.com/flowforge/orchestrator/internal/component/seed"
	"github.com/flowforge/orchestrator/internal/config"
	"github.com/flowforge/orchestrator/internal/executor"
	"github.com/flowforge/orchestrator/internal/executor/toolresult"
	"github.com/flowforge/orchestrator/internal/graph"
	"github.com/flowforge/orchestrator/internal/httpapi"
	"github.com/flowforge/orchestrator/internal/mcpgateway"
	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/runner"
	"github.com/flowforge/orchestrator/internal/runner/container"
	"github.com/flowforge/orchestrator/internal/telemetry"
	"github.com/flowforge/orchestrator/internal/trace"
	traceinmem "github.com/flowforge/orchestrator/internal/trace/inmem"
	"github.com/flowforge/orchestrator/internal/workflowstore"
	workflowstoreinmem "github.com/flowforge/orchestrator/internal/workflowstore/inmem"
)

const workflowName = "orchestrator.run"

func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	if err := run(ctx); err != nil {
		log.Fatalf(ctx, err, "orchestratord exited")
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	log.Print(ctx, log.KV{K: "msg", V: "starting orchestratord"}, log.KV{K: "config", V: cfg.String()})

	logger := telemetry.NewClueLogger()

	var closers closerList
	defer closers.closeAll(ctx, logger)

	components := component.New()
	if err := loadComponents(ctx, cfg, components, logger); err != nil {
		return err
	}

	rnr := runner.New(buildRunnerStrategies(ctx, logger))

	handles := executor.NewHandleRegistry()
	signaler := executor.NewApprovalSignaler(handles)
	approvals := approval.New(approvalinmem.New(), signaler, logger)
	traceSink := trace.New(traceinmem.New())
	toolResults := toolresult.New()

	exec := executor.New(components, rnr, approvals, traceSink, toolResults,
		executor.WithTracer(telemetry.NewClueTracer("executor")),
		executor.WithMetrics(telemetry.NewClueMetrics("executor")))

	eng, err := buildEngine(ctx, cfg, logger, &closers)
	if err != nil {
		return fmt.Errorf("build workflow engine: %w", err)
	}

	if err := eng.RegisterWorkflow(ctx, exec.WorkflowDefinition(workflowName, cfg.Temporal.TaskQueue)); err != nil {
		return fmt.Errorf("register workflow: %w", err)
	}
	for _, def := range exec.ActivityDefinitions(cfg.Temporal.TaskQueue) {
		if err := eng.RegisterActivity(ctx, def); err != nil {
			return fmt.Errorf("register activity %s: %w", def.Name, err)
		}
	}

	runs, err := buildRunStore(ctx, cfg, &closers)
	if err != nil {
		return fmt.Errorf("build run store: %w", err)
	}

	compiler := graph.New(components)
	workflows := workflowstore.New(workflowstoreinmem.New(), compiler)

	tools, err := buildToolRegistry(ctx, cfg, &closers)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	minter, err := buildSessionMinter(ctx, cfg, &closers)
	if err != nil {
		return fmt.Errorf("build session minter: %w", err)
	}

	gateway := mcpgateway.New(tools, runs)
	componentExecutor := executor.NewGatewayAdapter(handles, toolResults)

	sessions, err := buildSessionProvider(cfg)
	if err != nil {
		return fmt.Errorf("build session provider: %w", err)
	}

	srv := httpapi.NewServer(httpapi.Config{
		InternalServiceToken: cfg.InternalServiceToken,
		WorkflowName:         workflowName,
		TaskQueue:            cfg.Temporal.TaskQueue,
		SessionTokenTTL:      config.SessionTokenTTL,
	}, httpapi.Deps{
		Engine:            eng,
		Workflows:         workflows,
		Runs:              runs,
		Handles:           handles,
		Approvals:         approvals,
		Traces:            traceSink,
		Gateway:           gateway,
		Tools:             tools,
		Minter:            minter,
		ComponentExecutor: componentExecutor,
		Sessions:          sessions,
		Logger:            logger,
		Tracer:            telemetry.NewClueTracer("mcpgateway"),
		Metrics:           telemetry.NewClueMetrics("mcpgateway"),
	})

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: srv}

	errc := make(chan error, 1)
	go func() {
		log.Print(ctx, log.KV{K: "msg", V: "http server listening"}, log.KV{K: "addr", V: cfg.HTTPAddr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
			return
		}
		errc <- nil
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-sigc:
		log.Print(ctx, log.KV{K: "msg", V: "shutting down"}, log.KV{K: "signal", V: sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// closerList collects teardown callbacks for backends built during run, so
// a later failure still releases earlier connections (a Redis client
// opened before a Mongo dial error, for instance).
type closerList []func() error

func (c *closerList) add(fn func() error) { *c = append(*c, fn) }

func (c *closerList) closeAll(ctx context.Context, logger telemetry.Logger) {
	for i := len(*c) - 1; i >= 0; i-- {
		if err := (*c)[i](); err != nil {
			logger.Error(ctx, "error closing backend during shutdown", "error", err)
		}
	}
}

// loadComponents seeds the Component Registry from COMPONENTS_DIR. A
// missing directory is a warning, not a startup failure, so a bare
// development checkout without any component files still starts.
func loadComponents(ctx context.Context, cfg *config.Config, components *component.Registry, logger telemetry.Logger) error {
	if cfg.ComponentsDir == "" {
		return nil
	}
	if _, err := os.Stat(cfg.ComponentsDir); os.IsNotExist(err) {
		logger.Warn(ctx, "components directory does not exist, starting with an empty registry", "dir", cfg.ComponentsDir)
		return nil
	}

	loader := seed.New(cfg.ComponentsDir, components, logger)
	if err := loader.Load(ctx); err != nil {
		return fmt.Errorf("load components: %w", err)
	}
	if err := loader.Watch(ctx); err != nil {
		return fmt.Errorf("watch components directory: %w", err)
	}
	return nil
}

// buildRunnerStrategies wires the inline and container Action Runner
// strategies. The container strategy is built against a Docker client
// configured from the environment (DOCKER_HOST and friends); a Docker
// daemon being unreachable there degrades container-backed components to
// a runtime error at dispatch time rather than failing daemon startup,
// since a deployment might only ever use inline or remote components.
func buildRunnerStrategies(ctx context.Context, logger telemetry.Logger) map[model.RunnerKind]runner.Strategy {
	strategies := map[model.RunnerKind]runner.Strategy{
		model.RunnerInline: runner.Inline(),
	}

	docker, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		logger.Warn(ctx, "docker client unavailable, container-backed components will fail at dispatch", "error", err)
		return strategies
	}
	strategies[model.RunnerContainer] = container.New(docker)
	return strategies
}
