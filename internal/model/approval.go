package model

import "time"

// ApprovalStatus is the lifecycle state of an Approval Request (§3, §4.8).
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalExpired   ApprovalStatus = "expired"
	ApprovalCancelled ApprovalStatus = "cancelled"
)

// ApprovalRequest is a durable, token-addressable question posed to a human
// as part of a run. Each of ApproveToken/RejectToken is single-resolution:
// the record transitions pending -> {approved|rejected|expired|cancelled}
// exactly once, regardless of which token resolves it.
type ApprovalRequest struct {
	ID             string         `json:"id"`
	RunID          string         `json:"runId"`
	WorkflowID     string         `json:"workflowId,omitempty"`
	NodeRef        string         `json:"nodeRef"`
	Status         ApprovalStatus `json:"status"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	ApproveToken   string         `json:"-"`
	RejectToken    string         `json:"-"`
	TimeoutAt      *time.Time     `json:"timeoutAt,omitempty"`
	RespondedAt    *time.Time     `json:"respondedAt,omitempty"`
	RespondedBy    string         `json:"respondedBy,omitempty"`
	ResponseNote   string         `json:"responseNote,omitempty"`
	OrganizationID string         `json:"organizationId,omitempty"`
	// PendingSignal resolves the open question in SPEC_FULL.md §9 about
	// signalApproval failures: set when the record resolved but the signal
	// to the owning run has not yet been confirmed delivered. It does not
	// change Status, preserving the five-value invariant.
	PendingSignal bool `json:"pendingSignal,omitempty"`
}

// CreateApprovalInput is the payload for Coordinator.Create.
type CreateApprovalInput struct {
	RunID          string
	WorkflowID     string
	NodeRef        string
	Title          string
	Description    string
	Context        map[string]any
	TimeoutAt      *time.Time
	OrganizationID string
}

// ResolveApprovalInput is the payload for Coordinator.Resolve.
type ResolveApprovalInput struct {
	Approved     bool
	Selection    string
	RespondedBy  string
	ResponseNote string
}
