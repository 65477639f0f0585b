// Package toolregistry implements the Tool Registry (§4.6): a KV keyed by
// (runId, nodeId) that records which tools are available to a run's MCP
// Gateway, shared across gateway instances so they agree on the tool set.
package toolregistry

import (
	"context"
	"encoding/json"

	"github.com/flowforge/orchestrator/internal/apierr"
)

// Status is a Registered Tool's readiness state.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Type discriminates how a Registered Tool is backed.
type Type string

const (
	TypeComponent Type = "component"
	TypeRemote    Type = "remote"
	TypeLocal     Type = "local"
)

// RegisteredTool is one (runId, nodeId) entry (§3).
type RegisteredTool struct {
	RunID       string          `json:"runId"`
	NodeID      string          `json:"nodeId"`
	ToolName    string          `json:"toolName"`
	Type        Type            `json:"type"`
	ComponentID string          `json:"componentId,omitempty"`
	Endpoint    string          `json:"endpoint,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	Parameters  map[string]any  `json:"parameters,omitempty"`
	// Credentials is the envelope-encrypted blob; nil if the tool has none.
	Credentials []byte `json:"credentials,omitempty"`
	Status      Status `json:"status"`
	ContainerID string `json:"containerId,omitempty"`
}

// Sealer envelope-encrypts/decrypts credential payloads with a master key
// read once at startup (§9's envelope-encryption rotation note: rotating
// means re-sealing all affected rows with a new Sealer, not dual-reading).
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// Store is the shared KV backing the registry. Implementations must make
// per-(runId,nodeId) writes atomic; concurrent registrations for distinct
// nodeIds commute, and concurrent registrations for the same nodeId are
// last-writer-wins (§5 ordering rule (c)).
type Store interface {
	Put(ctx context.Context, tool RegisteredTool) error
	Get(ctx context.Context, runID, nodeID string) (RegisteredTool, bool, error)
	ListByRun(ctx context.Context, runID string) ([]RegisteredTool, error)
	DeleteByRun(ctx context.Context, runID string) error
}

// Registry implements the Tool Registry operations.
type Registry struct {
	store  Store
	sealer Sealer
}

// New constructs a Registry. sealer may be nil if no component registers
// credentials (RegisterComponent then rejects a non-empty credentials map).
func New(store Store, sealer Sealer) *Registry {
	return &Registry{store: store, sealer: sealer}
}

// RegisterComponentInput is the payload for RegisterComponent.
type RegisterComponentInput struct {
	RunID       string
	NodeID      string
	ToolName    string
	ComponentID string
	Description string
	InputSchema json.RawMessage
	Credentials []byte // plaintext; sealed before storage
	Parameters  map[string]any
}

// RegisterComponent stores a ready, component-backed tool. Credentials, if
// provided, are envelope-encrypted before storage; a decryption/encryption
// failure here is fatal, per §9's "decryption failures are fatal" rule.
func (r *Registry) RegisterComponent(ctx context.Context, in RegisterComponentInput) (RegisteredTool, error) {
	tool := RegisteredTool{
		RunID:       in.RunID,
		NodeID:      in.NodeID,
		ToolName:    in.ToolName,
		Type:        TypeComponent,
		ComponentID: in.ComponentID,
		Description: in.Description,
		InputSchema: in.InputSchema,
		Parameters:  in.Parameters,
		Status:      StatusReady,
	}
	if len(in.Credentials) > 0 {
		if r.sealer == nil {
			return RegisteredTool{}, apierr.New(apierr.KindConfiguration, "tool registry has no sealer configured for credentials")
		}
		sealed, err := r.sealer.Seal(in.Credentials)
		if err != nil {
			return RegisteredTool{}, apierr.Wrap(apierr.KindDependency, err, "seal credentials for %s/%s", in.RunID, in.NodeID)
		}
		tool.Credentials = sealed
	}
	if err := r.store.Put(ctx, tool); err != nil {
		return RegisteredTool{}, apierr.Wrap(apierr.KindDependency, err, "register component tool %s/%s", in.RunID, in.NodeID)
	}
	return tool, nil
}

// RegisterRemoteInput is the payload for RegisterRemote.
type RegisterRemoteInput struct {
	RunID       string
	NodeID      string
	ToolName    string
	Endpoint    string
	Description string
}

// RegisterRemote stores a pending, endpoint-backed tool. The caller (MCP
// Gateway) transitions it to ready after the first successful listTools.
func (r *Registry) RegisterRemote(ctx context.Context, in RegisterRemoteInput) (RegisteredTool, error) {
	tool := RegisteredTool{
		RunID:       in.RunID,
		NodeID:      in.NodeID,
		ToolName:    in.ToolName,
		Type:        TypeRemote,
		Endpoint:    in.Endpoint,
		Description: in.Description,
		Status:      StatusPending,
	}
	if err := r.store.Put(ctx, tool); err != nil {
		return RegisteredTool{}, apierr.Wrap(apierr.KindDependency, err, "register remote tool %s/%s", in.RunID, in.NodeID)
	}
	return tool, nil
}

// RegisterLocalInput is the payload for RegisterLocal.
type RegisterLocalInput struct {
	RunID       string
	NodeID      string
	ToolName    string
	ContainerID string
	Endpoint    string
	Description string
}

// RegisterLocal stores a pending, container-backed tool, recording the
// container id so cleanupRun can return it for teardown.
func (r *Registry) RegisterLocal(ctx context.Context, in RegisterLocalInput) (RegisteredTool, error) {
	tool := RegisteredTool{
		RunID:       in.RunID,
		NodeID:      in.NodeID,
		ToolName:    in.ToolName,
		Type:        TypeLocal,
		Endpoint:    in.Endpoint,
		ContainerID: in.ContainerID,
		Description: in.Description,
		Status:      StatusPending,
	}
	if err := r.store.Put(ctx, tool); err != nil {
		return RegisteredTool{}, apierr.Wrap(apierr.KindDependency, err, "register local tool %s/%s", in.RunID, in.NodeID)
	}
	return tool, nil
}

// MarkReady transitions a pending remote/local tool to ready after its
// first successful listTools.
func (r *Registry) MarkReady(ctx context.Context, runID, nodeID string) error {
	tool, ok, err := r.store.Get(ctx, runID, nodeID)
	if err != nil {
		return apierr.Wrap(apierr.KindDependency, err, "load tool %s/%s", runID, nodeID)
	}
	if !ok {
		return apierr.New(apierr.KindNotFound, "no registered tool %s/%s", runID, nodeID)
	}
	tool.Status = StatusReady
	return r.store.Put(ctx, tool)
}

// MarkFailed transitions a tool to failed, e.g. after a listTools error.
func (r *Registry) MarkFailed(ctx context.Context, runID, nodeID string) error {
	tool, ok, err := r.store.Get(ctx, runID, nodeID)
	if err != nil {
		return apierr.Wrap(apierr.KindDependency, err, "load tool %s/%s", runID, nodeID)
	}
	if !ok {
		return apierr.New(apierr.KindNotFound, "no registered tool %s/%s", runID, nodeID)
	}
	tool.Status = StatusFailed
	return r.store.Put(ctx, tool)
}

// GetToolsForRun returns the tools registered for runID, optionally filtered
// to allowedNodeIDs.
func (r *Registry) GetToolsForRun(ctx context.Context, runID string, allowedNodeIDs []string) ([]RegisteredTool, error) {
	all, err := r.store.ListByRun(ctx, runID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDependency, err, "list tools for run %s", runID)
	}
	if len(allowedNodeIDs) == 0 {
		return all, nil
	}
	allowed := make(map[string]bool, len(allowedNodeIDs))
	for _, id := range allowedNodeIDs {
		allowed[id] = true
	}
	var out []RegisteredTool
	for _, tool := range all {
		if allowed[tool.NodeID] {
			out = append(out, tool)
		}
	}
	return out, nil
}

// GetToolCredentials decrypts and returns a tool's credentials. ok is false
// if the tool or its credentials are absent (not an error); a decryption
// failure is always an error (§9: "decryption failures are fatal").
func (r *Registry) GetToolCredentials(ctx context.Context, runID, nodeID string) (plaintext []byte, ok bool, err error) {
	tool, found, err := r.store.Get(ctx, runID, nodeID)
	if err != nil {
		return nil, false, apierr.Wrap(apierr.KindDependency, err, "load tool %s/%s", runID, nodeID)
	}
	if !found || len(tool.Credentials) == 0 {
		return nil, false, nil
	}
	if r.sealer == nil {
		return nil, false, apierr.New(apierr.KindConfiguration, "tool registry has no sealer configured for credentials")
	}
	plain, err := r.sealer.Open(tool.Credentials)
	if err != nil {
		return nil, false, apierr.Wrap(apierr.KindDependency, err, "decrypt credentials for %s/%s", runID, nodeID)
	}
	return plain, true, nil
}

// CleanupRun removes all records for runID and returns the container ids of
// any local tools so the caller can stop them.
func (r *Registry) CleanupRun(ctx context.Context, runID string) ([]string, error) {
	tools, err := r.store.ListByRun(ctx, runID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDependency, err, "list tools for run %s", runID)
	}
	var containerIDs []string
	for _, tool := range tools {
		if tool.Type == TypeLocal && tool.ContainerID != "" {
			containerIDs = append(containerIDs, tool.ContainerID)
		}
	}
	if err := r.store.DeleteByRun(ctx, runID); err != nil {
		return nil, apierr.Wrap(apierr.KindDependency, err, "cleanup tools for run %s", runID)
	}
	return containerIDs, nil
}

// AreAllToolsReady reports whether every id in requiredNodeIDs has a ready
// registered tool, used by the Executor before handing a run to an agent.
func (r *Registry) AreAllToolsReady(ctx context.Context, runID string, requiredNodeIDs []string) (bool, error) {
	all, err := r.store.ListByRun(ctx, runID)
	if err != nil {
		return false, apierr.Wrap(apierr.KindDependency, err, "list tools for run %s", runID)
	}
	byNode := make(map[string]RegisteredTool, len(all))
	for _, tool := range all {
		byNode[tool.NodeID] = tool
	}
	for _, id := range requiredNodeIDs {
		tool, ok := byNode[id]
		if !ok || tool.Status != StatusReady {
			return false, nil
		}
	}
	return true, nil
}
