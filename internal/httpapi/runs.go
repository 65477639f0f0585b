package httpapi

import (
	"net/http"
	"strconv"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/model"
)

type runPayload struct {
	RunID          string                     `json:"runId"`
	InternalRunID  string                     `json:"internalRunId,omitempty"`
	WorkflowID     string                     `json:"workflowId"`
	TotalActions   int                        `json:"totalActions"`
	OrganizationID string                     `json:"organizationId,omitempty"`
	Status         model.RunStatus            `json:"status"`
	Outputs        map[string]map[string]any `json:"outputs,omitempty"`
	Error          string                     `json:"error,omitempty"`
}

func runResponse(run model.Run) runPayload {
	return runPayload{
		RunID:          run.RunID,
		InternalRunID:  run.InternalRunID,
		WorkflowID:     run.WorkflowID,
		TotalActions:   run.TotalActions,
		OrganizationID: run.OrganizationID,
		Status:         run.Status,
		Outputs:        run.Outputs,
		Error:          run.Error,
	}
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runId")
	run, err := s.runs.Get(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse(run))
}

func (s *Server) handleRunResult(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runId")
	run, err := s.runs.Get(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !run.Status.IsTerminal() {
		writeError(w, apierr.New(apierr.KindConflict, "run %s has not completed (status %s)", runID, run.Status))
		return
	}
	writeJSON(w, http.StatusOK, runResponse(run))
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runId")
	handle, ok := s.handles.Handle(runID)
	if !ok {
		writeError(w, apierr.New(apierr.KindNotFound, "run %s is not active", runID))
		return
	}
	if err := handle.Cancel(r.Context()); err != nil {
		writeError(w, apierr.Wrap(apierr.KindDependency, err, "cancel run %s", runID))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID, "status": "cancelling"})
}

func (s *Server) handleRunTrace(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runId")

	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, apierr.New(apierr.KindValidation, "after must be an integer sequence number"))
			return
		}
		after = v
	}

	var (
		events []model.TraceEvent
		err    error
	)
	if after > 0 {
		events, err = s.traces.ListSince(r.Context(), runID, after)
	} else {
		events, err = s.traces.ListByRunID(r.Context(), runID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runId": runID, "events": events})
}
