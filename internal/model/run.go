package model

import "time"

// RunStatus is the lifecycle status of a Workflow Run (§3 Workflow Run).
type RunStatus string

const (
	RunRunning    RunStatus = "RUNNING"
	RunCompleted  RunStatus = "COMPLETED"
	RunFailed     RunStatus = "FAILED"
	RunCancelled  RunStatus = "CANCELLED"
	RunTerminated RunStatus = "TERMINATED"
	RunTimedOut   RunStatus = "TIMED_OUT"
	RunUnknown    RunStatus = "UNKNOWN"
)

// IsTerminal reports whether status ends the run's lifecycle.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunTerminated, RunTimedOut:
		return true
	default:
		return false
	}
}

// Run is the externally visible record of one ActionPlan execution.
// Created and finished by the HTTP surface through runstore.Registry.
type Run struct {
	RunID          string    `json:"runId"`
	InternalRunID  string    `json:"internalRunId"`
	WorkflowID     string    `json:"workflowId"`
	TotalActions   int       `json:"totalActions"`
	OrganizationID string    `json:"organizationId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Status         RunStatus `json:"status"`
	// Outputs and Error are populated once the run reaches a terminal
	// status, mirroring the Workflow Executor's RunOutput (§4.5).
	Outputs map[string]map[string]any `json:"outputs,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// ActionStatus is the per-action state machine (§4.5).
type ActionStatus string

const (
	ActionPending         ActionStatus = "pending"
	ActionRunning         ActionStatus = "running"
	ActionCompleted       ActionStatus = "completed"
	ActionFailed          ActionStatus = "failed"
	ActionAwaitingInput   ActionStatus = "awaiting_input"
	ActionCancelled       ActionStatus = "cancelled"
	ActionSkipped         ActionStatus = "skipped"
)

// ActionResult is the value an Action Runner returns for one action: either
// a terminal output envelope or a PendingHumanInput suspension marker.
type ActionResult struct {
	Output  map[string]any   `json:"output,omitempty"`
	Pending *PendingHumanInput `json:"pending,omitempty"`
	Warning string           `json:"warning,omitempty"`
}

// HumanInputType discriminates approval vs selection suspension.
type HumanInputType string

const (
	InputApproval  HumanInputType = "approval"
	InputSelection HumanInputType = "selection"
)

// PendingHumanInput is returned by an action instead of a terminal result
// when the action must suspend the run for human input (§4.5).
type PendingHumanInput struct {
	RequestID   string         `json:"requestId"`
	InputType   HumanInputType `json:"inputType"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	ContextData map[string]any `json:"contextData,omitempty"`
	TimeoutAt   *time.Time     `json:"timeoutAt,omitempty"`
}

// HumanInputResponse is the full response envelope for a resolved
// human-input request. The Executor does not build one: a resumed action's
// output is a map holding only approved, respondedBy and responseNote.
type HumanInputResponse struct {
	Approved     bool       `json:"approved"`
	Rejected     bool       `json:"rejected,omitempty"`
	Selection    string     `json:"selection,omitempty"`
	RespondedBy  string     `json:"respondedBy,omitempty"`
	RespondedAt  time.Time  `json:"respondedAt"`
	ResponseNote string     `json:"responseNote,omitempty"`
}
