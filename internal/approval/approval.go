// Package approval implements the Pause/Resume Coordinator (§4.8): it mints
// single-resolution approve/reject tokens for a run's pending Approval
// Requests and signals the owning workflow once a human resolves one.
package approval

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/model"
)

// tokenBytes is the byte length of a minted token, giving 256 bits of
// entropy — comfortably above the spec's >=128 bit floor.
const tokenBytes = 32

// SignalApprovalResolved is the workflow signal name used to deliver an
// approval decision to the paused node awaiting it.
const SignalApprovalResolved = "orchestrator.approval.resolved"

// Store persists Approval Requests. Implementations must make
// CompareAndResolve atomic: exactly one caller transitions a pending
// record to a terminal status, regardless of which token it resolved
// through or how many callers race on it.
type Store interface {
	Insert(ctx context.Context, req model.ApprovalRequest) error
	Get(ctx context.Context, id string) (model.ApprovalRequest, error)
	GetByApproveToken(ctx context.Context, token string) (model.ApprovalRequest, error)
	GetByRejectToken(ctx context.Context, token string) (model.ApprovalRequest, error)
	// CompareAndResolve transitions the record identified by id from
	// ApprovalPending to the fields in update, but only if it is still
	// pending. It returns false (no error) if another caller already
	// resolved it first.
	CompareAndResolve(ctx context.Context, id string, update model.ApprovalRequest) (bool, error)
	// ClearPendingSignal marks id's record as successfully delivered,
	// so a later reconciliation pass does not re-signal it.
	ClearPendingSignal(ctx context.Context, id string) error
	ListExpirable(ctx context.Context, asOf time.Time) ([]model.ApprovalRequest, error)
	// List returns every Approval Request, ordered by id, optionally
	// filtered to organizationID (all organizations if empty).
	List(ctx context.Context, organizationID string) ([]model.ApprovalRequest, error)
}

// ResumeSignaler delivers the resolved ApprovalRequest to the run's workflow.
// Signaling failures are logged, not rolled back: the Store record is the
// source of truth for resolution, and PendingSignal marks records whose
// delivery has not yet been confirmed (SPEC_FULL.md §9 open question).
type ResumeSignaler interface {
	SignalApprovalResolved(ctx context.Context, workflowID string, req model.ApprovalRequest) error
}

// Coordinator implements the Pause/Resume Coordinator.
type Coordinator struct {
	store  Store
	signal ResumeSignaler
	logger interface {
		Error(ctx context.Context, msg string, keyvals ...any)
	}
}

// New constructs a Coordinator. logger may be nil.
func New(store Store, signal ResumeSignaler, logger interface {
	Error(ctx context.Context, msg string, keyvals ...any)
}) *Coordinator {
	return &Coordinator{store: store, signal: signal, logger: logger}
}

// Create mints a new pending Approval Request with fresh approve/reject
// tokens and persists it.
func (c *Coordinator) Create(ctx context.Context, id string, in model.CreateApprovalInput) (model.ApprovalRequest, error) {
	approveToken, err := mintToken()
	if err != nil {
		return model.ApprovalRequest{}, apierr.Wrap(apierr.KindDependency, err, "mint approve token")
	}
	rejectToken, err := mintToken()
	if err != nil {
		return model.ApprovalRequest{}, apierr.Wrap(apierr.KindDependency, err, "mint reject token")
	}

	req := model.ApprovalRequest{
		ID:             id,
		RunID:          in.RunID,
		WorkflowID:     in.WorkflowID,
		NodeRef:        in.NodeRef,
		Status:         model.ApprovalPending,
		Title:          in.Title,
		Description:    in.Description,
		Context:        in.Context,
		ApproveToken:   approveToken,
		RejectToken:    rejectToken,
		TimeoutAt:      in.TimeoutAt,
		OrganizationID: in.OrganizationID,
	}
	if err := c.store.Insert(ctx, req); err != nil {
		return model.ApprovalRequest{}, apierr.Wrap(apierr.KindDependency, err, "persist approval request %s", id)
	}
	return req, nil
}

// ResolveByApproveToken resolves the matching pending record as approved.
func (c *Coordinator) ResolveByApproveToken(ctx context.Context, token string, in model.ResolveApprovalInput) (model.ApprovalRequest, error) {
	in.Approved = true
	return c.resolveByToken(ctx, token, true, in)
}

// ResolveByRejectToken resolves the matching pending record as rejected.
func (c *Coordinator) ResolveByRejectToken(ctx context.Context, token string, in model.ResolveApprovalInput) (model.ApprovalRequest, error) {
	in.Approved = false
	return c.resolveByToken(ctx, token, false, in)
}

func (c *Coordinator) resolveByToken(ctx context.Context, token string, approveSide bool, in model.ResolveApprovalInput) (model.ApprovalRequest, error) {
	var (
		req model.ApprovalRequest
		err error
	)
	if approveSide {
		req, err = c.store.GetByApproveToken(ctx, token)
	} else {
		req, err = c.store.GetByRejectToken(ctx, token)
	}
	if err != nil {
		return model.ApprovalRequest{}, apierr.New(apierr.KindNotFound, "approval token not found or already resolved")
	}
	return c.resolve(ctx, req, in)
}

// Resolve resolves the Approval Request identified by id (the authenticated
// operator path, as opposed to the public token links).
func (c *Coordinator) Resolve(ctx context.Context, id string, in model.ResolveApprovalInput) (model.ApprovalRequest, error) {
	req, err := c.store.Get(ctx, id)
	if err != nil {
		return model.ApprovalRequest{}, apierr.Wrap(apierr.KindNotFound, err, "approval request %s", id)
	}
	return c.resolve(ctx, req, in)
}

func (c *Coordinator) resolve(ctx context.Context, req model.ApprovalRequest, in model.ResolveApprovalInput) (model.ApprovalRequest, error) {
	if req.Status != model.ApprovalPending {
		return model.ApprovalRequest{}, apierr.New(apierr.KindConflict, "approval request %s already resolved", req.ID)
	}

	now := time.Now().UTC()
	if req.TimeoutAt != nil && now.After(*req.TimeoutAt) {
		expired := req
		expired.Status = model.ApprovalExpired
		expired.PendingSignal = true
		if ok, err := c.store.CompareAndResolve(ctx, req.ID, expired); err == nil && ok {
			c.notify(ctx, expired)
		}
		return model.ApprovalRequest{}, apierr.New(apierr.KindConflict, "approval request %s expired", req.ID)
	}

	update := req
	if in.Approved {
		update.Status = model.ApprovalApproved
	} else {
		update.Status = model.ApprovalRejected
	}
	update.RespondedAt = &now
	update.RespondedBy = in.RespondedBy
	update.ResponseNote = in.ResponseNote
	update.PendingSignal = true

	ok, err := c.store.CompareAndResolve(ctx, req.ID, update)
	if err != nil {
		return model.ApprovalRequest{}, apierr.Wrap(apierr.KindDependency, err, "resolve approval request %s", req.ID)
	}
	if !ok {
		return model.ApprovalRequest{}, apierr.New(apierr.KindConflict, "approval request %s already resolved", req.ID)
	}

	c.notify(ctx, update)
	return update, nil
}

// Get returns the Approval Request identified by id, for the operator-facing
// GET /approvals/{id} endpoint.
func (c *Coordinator) Get(ctx context.Context, id string) (model.ApprovalRequest, error) {
	req, err := c.store.Get(ctx, id)
	if err != nil {
		return model.ApprovalRequest{}, apierr.Wrap(apierr.KindNotFound, err, "approval request %s", id)
	}
	return req, nil
}

// List returns every Approval Request visible to organizationID (all of
// them if empty), for the operator-facing GET /approvals endpoint.
func (c *Coordinator) List(ctx context.Context, organizationID string) ([]model.ApprovalRequest, error) {
	reqs, err := c.store.List(ctx, organizationID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDependency, err, "list approval requests")
	}
	return reqs, nil
}

// Cancel transitions a pending Approval Request to cancelled, e.g. when the
// owning run is cancelled while awaiting a decision.
func (c *Coordinator) Cancel(ctx context.Context, id string) (model.ApprovalRequest, error) {
	req, err := c.store.Get(ctx, id)
	if err != nil {
		return model.ApprovalRequest{}, apierr.Wrap(apierr.KindNotFound, err, "approval request %s", id)
	}
	if req.Status != model.ApprovalPending {
		return req, nil
	}

	update := req
	update.Status = model.ApprovalCancelled
	now := time.Now().UTC()
	update.RespondedAt = &now

	ok, err := c.store.CompareAndResolve(ctx, id, update)
	if err != nil {
		return model.ApprovalRequest{}, apierr.Wrap(apierr.KindDependency, err, "cancel approval request %s", id)
	}
	if !ok {
		return model.ApprovalRequest{}, apierr.New(apierr.KindConflict, "approval request %s already resolved", id)
	}
	return update, nil
}

// ExpirePastDeadline resolves every pending request whose TimeoutAt has
// elapsed as of asOf to ApprovalExpired. Intended to be driven by a
// periodic scanner (Temporal schedule or equivalent).
func (c *Coordinator) ExpirePastDeadline(ctx context.Context, asOf time.Time) ([]model.ApprovalRequest, error) {
	pending, err := c.store.ListExpirable(ctx, asOf)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDependency, err, "list expirable approval requests")
	}

	var expired []model.ApprovalRequest
	for _, req := range pending {
		update := req
		update.Status = model.ApprovalExpired
		update.PendingSignal = true
		ok, err := c.store.CompareAndResolve(ctx, req.ID, update)
		if err != nil || !ok {
			continue
		}
		c.notify(ctx, update)
		expired = append(expired, update)
	}
	return expired, nil
}

// notify best-effort delivers the resolution to the owning workflow. A
// signal failure is logged, never rolled back: the Store record already
// reflects the terminal status and remains PendingSignal=true until a
// later delivery (or reconciliation pass) clears it.
func (c *Coordinator) notify(ctx context.Context, req model.ApprovalRequest) {
	if c.signal == nil || req.WorkflowID == "" {
		return
	}
	if err := c.signal.SignalApprovalResolved(ctx, req.WorkflowID, req); err != nil {
		if c.logger != nil {
			c.logger.Error(ctx, "failed to signal approval resolution", "approvalId", req.ID, "workflowId", req.WorkflowID, "err", err)
		}
		return
	}
	if err := c.store.ClearPendingSignal(ctx, req.ID); err != nil && c.logger != nil {
		c.logger.Error(ctx, "failed to clear pending signal flag", "approvalId", req.ID, "err", err)
	}
}

func mintToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
