package executor

import (
	"context"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/approval"
	"github.com/flowforge/orchestrator/internal/model"
)

// ApprovalSignaler implements approval.ResumeSignaler by looking up the
// owning run's live engine.WorkflowHandle and delivering the resolution on
// approval.SignalApprovalResolved, where dispatchApprovalSignals routes it
// to the specific suspended action awaiting it.
type ApprovalSignaler struct {
	handles RunHandles
}

// NewApprovalSignaler constructs an ApprovalSignaler.
func NewApprovalSignaler(handles RunHandles) *ApprovalSignaler {
	return &ApprovalSignaler{handles: handles}
}

// SignalApprovalResolved implements approval.ResumeSignaler.
func (s *ApprovalSignaler) SignalApprovalResolved(ctx context.Context, workflowID string, req model.ApprovalRequest) error {
	h, ok := s.handles.Handle(workflowID)
	if !ok {
		return apierr.New(apierr.KindNotFound, "run %s has no live workflow handle", workflowID)
	}
	return h.Signal(ctx, approval.SignalApprovalResolved, req)
}
