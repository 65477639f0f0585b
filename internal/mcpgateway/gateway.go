// Package mcpgateway implements the MCP Gateway (§4.7): it materializes a
// per-agent virtual MCP server from the Tool Registry, validates session
// tokens, and dispatches agent tool calls back into the running workflow
// (component tools) or proxies them to external MCP servers.
package mcpgateway

import (
	"context"
	"sync"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/sessiontoken"
	"github.com/flowforge/orchestrator/internal/toolregistry"
)

// RunAccessor answers whether a run exists and which organization owns it,
// so the Gateway can enforce §4.7 step 3 without depending on the run
// store's full interface.
type RunAccessor interface {
	RunOrganization(ctx context.Context, runID string) (organizationID string, ok bool, err error)
}

// VirtualServer is the mutable, cached server materialized for one cache
// key (§4.7): it tracks the registered-tool-name set it has announced so
// repeated RefreshServersForRun calls are idempotent.
type VirtualServer struct {
	mu             sync.Mutex
	RunID          string
	AllowedNodeIDs []string
	announced      map[string]bool
}

// announcedNames returns a snapshot of the tool names already announced.
func (v *VirtualServer) announcedNames() map[string]bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]bool, len(v.announced))
	for k := range v.announced {
		out[k] = true
	}
	return out
}

func (v *VirtualServer) markAnnounced(names []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.announced == nil {
		v.announced = make(map[string]bool)
	}
	for _, n := range names {
		v.announced[n] = true
	}
}

// Gateway caches one VirtualServer per CacheKey and refreshes it from the
// Tool Registry.
type Gateway struct {
	registry *toolregistry.Registry
	runs     RunAccessor

	mu      sync.Mutex
	servers map[string]*VirtualServer
}

// New constructs a Gateway.
func New(registry *toolregistry.Registry, runs RunAccessor) *Gateway {
	return &Gateway{registry: registry, runs: runs, servers: make(map[string]*VirtualServer)}
}

// Session is the validated identity of a connected MCP client (§4.7 step 2).
type Session struct {
	RunID          string
	OrganizationID string
	AllowedNodeIDs []string
	AllowedTools   []string
}

// OpenSession implements the session lifecycle (§4.7 steps 1-4): validates
// the bearer token, checks run/organization access, and materializes (or
// reuses) the cached virtual server for this session's scope.
func (g *Gateway) OpenSession(ctx context.Context, claims sessiontoken.Claims) (*Session, *VirtualServer, error) {
	sess := &Session{
		RunID:          claims.RunID,
		OrganizationID: claims.OrganizationID,
		AllowedNodeIDs: claims.AllowedNodeIDs,
	}

	orgID, ok, err := g.runs.RunOrganization(ctx, sess.RunID)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.KindDependency, err, "look up run %s", sess.RunID)
	}
	if !ok {
		return nil, nil, apierr.New(apierr.KindNotFound, "run %s not found", sess.RunID)
	}
	if sess.OrganizationID != "" && sess.OrganizationID != orgID {
		return nil, nil, apierr.New(apierr.KindAuthorization, "session organization does not match run")
	}

	srv, err := g.RefreshServersForRun(ctx, sess.RunID, sess.AllowedNodeIDs)
	if err != nil {
		return nil, nil, err
	}
	return sess, srv, nil
}

// RefreshServersForRun materializes (first call) or refreshes (later
// calls) the cached VirtualServer for runID+allowedNodeIDs, announcing any
// newly-registered tools. It is idempotent: tools already announced are
// not re-announced.
func (g *Gateway) RefreshServersForRun(ctx context.Context, runID string, allowedNodeIDs []string) (*VirtualServer, error) {
	key := CacheKey(runID, allowedNodeIDs)

	g.mu.Lock()
	srv, ok := g.servers[key]
	if !ok {
		srv = &VirtualServer{RunID: runID, AllowedNodeIDs: allowedNodeIDs}
		g.servers[key] = srv
	}
	g.mu.Unlock()

	tools, err := g.registry.GetToolsForRun(ctx, runID, allowedNodeIDs)
	if err != nil {
		return nil, err
	}

	already := srv.announcedNames()
	var fresh []string
	for _, tool := range tools {
		if tool.Status != toolregistry.StatusReady {
			continue
		}
		if !already[tool.ToolName] {
			fresh = append(fresh, tool.ToolName)
		}
	}
	if len(fresh) > 0 {
		srv.markAnnounced(fresh)
	}
	return srv, nil
}

// CloseSession tears down the transport-level session but never tears
// down the Tool Registry (§4.7 step 6) — the owning run may still be
// executing.
func (g *Gateway) CloseSession(_ context.Context, _ *Session) {
	// Intentionally a no-op on the registry: only the caller's live
	// transport (SSE connection, goroutines) is released, which the HTTP
	// surface owns and tears down itself.
}

// ExternalToolName builds the agent-visible name for a proxied external
// tool, preventing collisions across sources (§4.7 naming rule).
func ExternalToolName(sourceToolName, externalToolName string) string {
	return sourceToolName + "__" + externalToolName
}
