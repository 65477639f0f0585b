package httpapi

import (
	"net/http"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/workflowstore"
)

// createWorkflowRequest is the body for POST /workflows.
type createWorkflowRequest struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organizationId,omitempty"`
	Graph          model.Graph `json:"graph"`
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID == "" {
		writeError(w, apierr.New(apierr.KindValidation, "id is required"))
		return
	}

	wf, err := s.workflows.Create(r.Context(), workflowstore.CreateInput{
		ID:             req.ID,
		OrganizationID: req.OrganizationID,
		Graph:          req.Graph,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, workflowResponse(wf))
}

func (s *Server) handleReplaceWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req model.Graph
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	wf, err := s.workflows.Replace(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflowResponse(wf))
}

func (s *Server) handleCommitWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, err := s.workflows.Commit(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflowResponse(wf))
}

// runWorkflowRequest is the body for POST /workflows/{id}/run: inputs are
// merged into the committed plan's entrypoint action's Params before the
// run starts, letting a caller parameterize each invocation.
type runWorkflowRequest struct {
	Inputs         map[string]any `json:"inputs,omitempty"`
	OrganizationID string         `json:"organizationId,omitempty"`
}

func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req runWorkflowRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	wf, err := s.workflows.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if wf.Committed == nil {
		writeError(w, apierr.New(apierr.KindConflict, "workflow %s has no committed plan; call commit first", id))
		return
	}

	plan := *wf.Committed
	if len(req.Inputs) > 0 {
		plan.Actions = append([]model.Action(nil), plan.Actions...)
		for i, action := range plan.Actions {
			if action.Ref != plan.Entrypoint.Ref {
				continue
			}
			merged := make(map[string]any, len(action.Params)+len(req.Inputs))
			for k, v := range action.Params {
				merged[k] = v
			}
			for k, v := range req.Inputs {
				merged[k] = v
			}
			plan.Actions[i].Params = merged
		}
	}

	organizationID := req.OrganizationID
	if organizationID == "" {
		organizationID = wf.OrganizationID
	}

	run, err := s.startRun(r.Context(), id, organizationID, plan)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse(run))
}

type workflowPayload struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organizationId,omitempty"`
	Draft          model.Graph       `json:"draft"`
	Committed      *model.ActionPlan `json:"committed,omitempty"`
	Version        int               `json:"version"`
}

func workflowResponse(wf workflowstore.Workflow) workflowPayload {
	return workflowPayload{
		ID:             wf.ID,
		OrganizationID: wf.OrganizationID,
		Draft:          wf.Draft,
		Committed:      wf.Committed,
		Version:        wf.Version,
	}
}
