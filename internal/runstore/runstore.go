// Package runstore implements the Run Registry: the externally queryable
// record of every Workflow Run (§3 Workflow Run), sitting alongside the
// Workflow Executor so the HTTP surface can answer status/result/list
// requests without reaching into a live engine.WorkflowHandle.
package runstore

import (
	"context"
	"time"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/model"
)

// Store persists Run records. Implementations must make Update atomic with
// respect to concurrent terminal-status writes: a run transitions out of
// RunRunning exactly once.
type Store interface {
	Create(ctx context.Context, run model.Run) error
	Get(ctx context.Context, runID string) (model.Run, bool, error)
	// Update applies mutate to the stored record and persists the result.
	// mutate observes the current record so callers can do read-modify-write
	// without a separate lock.
	Update(ctx context.Context, runID string, mutate func(model.Run) model.Run) (model.Run, error)
	List(ctx context.Context, organizationID string) ([]model.Run, error)
}

// Registry is the Run Registry: a thin, store-backed API the HTTP surface
// uses to record and query run lifecycle state.
type Registry struct {
	store Store
}

// New constructs a Registry backed by store.
func New(store Store) *Registry {
	return &Registry{store: store}
}

// CreateInput starts tracking a new run.
type CreateInput struct {
	RunID          string
	InternalRunID  string
	WorkflowID     string
	TotalActions   int
	OrganizationID string
}

// Create records a freshly started run as RunRunning.
func (r *Registry) Create(ctx context.Context, in CreateInput) (model.Run, error) {
	now := time.Now().UTC()
	run := model.Run{
		RunID:          in.RunID,
		InternalRunID:  in.InternalRunID,
		WorkflowID:     in.WorkflowID,
		TotalActions:   in.TotalActions,
		OrganizationID: in.OrganizationID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Status:         model.RunRunning,
	}
	if err := r.store.Create(ctx, run); err != nil {
		return model.Run{}, apierr.Wrap(apierr.KindDependency, err, "create run %s", in.RunID)
	}
	return run, nil
}

// Finish records a run's terminal outcome.
func (r *Registry) Finish(ctx context.Context, runID string, status model.RunStatus, outputs map[string]map[string]any, errMsg string) (model.Run, error) {
	run, err := r.store.Update(ctx, runID, func(run model.Run) model.Run {
		run.Status = status
		run.Outputs = outputs
		run.Error = errMsg
		run.UpdatedAt = time.Now().UTC()
		return run
	})
	if err != nil {
		return model.Run{}, apierr.Wrap(apierr.KindDependency, err, "finish run %s", runID)
	}
	return run, nil
}

// Get returns runID's record.
func (r *Registry) Get(ctx context.Context, runID string) (model.Run, error) {
	run, ok, err := r.store.Get(ctx, runID)
	if err != nil {
		return model.Run{}, apierr.Wrap(apierr.KindDependency, err, "load run %s", runID)
	}
	if !ok {
		return model.Run{}, apierr.New(apierr.KindNotFound, "run %s not found", runID)
	}
	return run, nil
}

// List returns every run visible to organizationID (all of them if empty).
func (r *Registry) List(ctx context.Context, organizationID string) ([]model.Run, error) {
	runs, err := r.store.List(ctx, organizationID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDependency, err, "list runs")
	}
	return runs, nil
}

// RunOrganization implements mcpgateway.RunAccessor: it answers whether
// runID exists and which organization owns it.
func (r *Registry) RunOrganization(ctx context.Context, runID string) (string, bool, error) {
	run, ok, err := r.store.Get(ctx, runID)
	if err != nil {
		return "", false, apierr.Wrap(apierr.KindDependency, err, "load run %s", runID)
	}
	return run.OrganizationID, ok, nil
}
