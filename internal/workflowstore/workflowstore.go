// Package workflowstore implements the Workflow Definition store backing
// POST/PUT /workflows and POST /workflows/{id}/commit (§6): it holds each
// workflow's editable draft Graph plus its most recently committed,
// compiled ActionPlan, the one a run is actually started from.
package workflowstore

import (
	"context"
	"time"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/graph"
	"github.com/flowforge/orchestrator/internal/model"
)

// Workflow is one stored workflow definition: its editable draft graph and,
// once committed, the compiled plan a run is started from.
type Workflow struct {
	ID             string
	OrganizationID string
	Draft          model.Graph
	Committed      *model.ActionPlan
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store persists Workflow records.
type Store interface {
	Create(ctx context.Context, wf Workflow) error
	Get(ctx context.Context, id string) (Workflow, bool, error)
	Update(ctx context.Context, id string, mutate func(Workflow) Workflow) (Workflow, error)
	List(ctx context.Context, organizationID string) ([]Workflow, error)
}

// Service implements create/update/commit against a Store and the Workflow
// Compiler.
type Service struct {
	store    Store
	compiler *graph.Compiler
}

// New constructs a Service.
func New(store Store, compiler *graph.Compiler) *Service {
	return &Service{store: store, compiler: compiler}
}

// CreateInput is the payload for Create.
type CreateInput struct {
	ID             string
	OrganizationID string
	Graph          model.Graph
}

// Create stores a new draft workflow, uncommitted.
func (s *Service) Create(ctx context.Context, in CreateInput) (Workflow, error) {
	now := time.Now().UTC()
	wf := Workflow{
		ID:             in.ID,
		OrganizationID: in.OrganizationID,
		Draft:          in.Graph,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, wf); err != nil {
		return Workflow{}, apierr.Wrap(apierr.KindDependency, err, "create workflow %s", in.ID)
	}
	return wf, nil
}

// Replace overwrites id's draft graph, leaving any previously committed
// plan untouched until the caller commits again.
func (s *Service) Replace(ctx context.Context, id string, g model.Graph) (Workflow, error) {
	wf, err := s.store.Update(ctx, id, func(wf Workflow) Workflow {
		wf.Draft = g
		wf.UpdatedAt = time.Now().UTC()
		return wf
	})
	if err != nil {
		return Workflow{}, apierr.Wrap(apierr.KindNotFound, err, "workflow %s", id)
	}
	return wf, nil
}

// Commit compiles id's current draft graph against the Component Registry
// and, on success, stores the resulting ActionPlan as the workflow's
// committed version (§4.2, §6 POST .../commit).
func (s *Service) Commit(ctx context.Context, id string) (Workflow, error) {
	current, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return Workflow{}, apierr.Wrap(apierr.KindDependency, err, "load workflow %s", id)
	}
	if !ok {
		return Workflow{}, apierr.New(apierr.KindNotFound, "workflow %s not found", id)
	}

	plan, err := s.compiler.Compile(current.Draft)
	if err != nil {
		return Workflow{}, err
	}

	wf, err := s.store.Update(ctx, id, func(wf Workflow) Workflow {
		wf.Committed = &plan
		wf.Version++
		wf.UpdatedAt = time.Now().UTC()
		return wf
	})
	if err != nil {
		return Workflow{}, apierr.Wrap(apierr.KindDependency, err, "persist committed workflow %s", id)
	}
	return wf, nil
}

// Get returns id's stored workflow.
func (s *Service) Get(ctx context.Context, id string) (Workflow, error) {
	wf, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return Workflow{}, apierr.Wrap(apierr.KindDependency, err, "load workflow %s", id)
	}
	if !ok {
		return Workflow{}, apierr.New(apierr.KindNotFound, "workflow %s not found", id)
	}
	return wf, nil
}

// List returns every workflow visible to organizationID (all of them if
// empty).
func (s *Service) List(ctx context.Context, organizationID string) ([]Workflow, error) {
	wfs, err := s.store.List(ctx, organizationID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDependency, err, "list workflows")
	}
	return wfs, nil
}
