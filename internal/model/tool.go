package model

import "time"

// ToolType discriminates a registered tool's backing implementation (§3
// Registered Tool, §4.6).
type ToolType string

const (
	ToolComponent ToolType = "component"
	ToolRemote    ToolType = "remote"
	ToolLocal     ToolType = "local"
)

// ToolStatus tracks a registered tool's readiness.
type ToolStatus string

const (
	ToolPending ToolStatus = "pending"
	ToolReady   ToolStatus = "ready"
	ToolFailed  ToolStatus = "failed"
)

// RegisteredTool is a per-run, per-node tool record stored in the shared
// Tool Registry KV (§4.6).
type RegisteredTool struct {
	RunID         string         `json:"runId"`
	NodeID        string         `json:"nodeId"`
	ToolName      string         `json:"toolName"`
	Type          ToolType       `json:"type"`
	ComponentID   string         `json:"componentId,omitempty"`
	Endpoint      string         `json:"endpoint,omitempty"`
	Description   string         `json:"description"`
	InputSchema   []byte         `json:"inputSchema,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Credentials   []byte         `json:"credentials,omitempty"` // envelope-encrypted opaque blob
	Status        ToolStatus     `json:"status"`
	ContainerID   string         `json:"containerId,omitempty"`
}

// SessionToken scopes an MCP session to a run, organization, agent, and
// allowed node set (§3 Session Token, §4.10).
type SessionToken struct {
	Token          string    `json:"-"`
	RunID          string    `json:"runId"`
	OrganizationID string    `json:"organizationId,omitempty"`
	AgentID        string    `json:"agentId,omitempty"`
	AllowedNodeIDs []string  `json:"allowedNodeIds,omitempty"`
	AllowedTools   []string  `json:"allowedTools,omitempty"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// ToolCallRequest round-trips an agent's tool invocation through the
// Workflow Executor via signal in / query out (§3 Tool Call Request).
type ToolCallRequest struct {
	CallID      string         `json:"callId"`
	NodeID      string         `json:"nodeId"`
	ComponentID string         `json:"componentId"`
	Arguments   map[string]any `json:"arguments"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Credentials map[string]any `json:"credentials,omitempty"`
	RequestedAt time.Time      `json:"requestedAt"`
}

// ToolCallResult is the stored envelope returned by getToolCallResult.
type ToolCallResult struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ToolCallCompleted is the observational signal payload fired after a tool
// call's result has been delivered back to the agent.
type ToolCallCompleted struct {
	NodeRef      string `json:"nodeRef"`
	ToolName     string `json:"toolName"`
	Output       map[string]any `json:"output,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Status       string `json:"status"`
}
