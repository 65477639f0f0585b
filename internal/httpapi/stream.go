package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/model"
	"github.com/flowforge/orchestrator/internal/trace"
)

// streamKeepalive is §6's literal 15s keepalive requirement for
// GET .../stream, distinct from the 10s heartbeat the teacher pack uses
// for its own SSE endpoint.
const streamKeepalive = 15 * time.Second

// handleRunStream implements GET /workflows/runs/{runId}/stream (§6): an
// SSE feed of `ready`, `trace`, `status`, `dataflow` and `complete` events
// for one run, plus a `keepalive` event every streamKeepalive. It backfills
// the run's whole trace history (no `after` parameter is read) before
// switching to live delivery. No `error` event is sent.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apierr.New(apierr.KindConfiguration, "streaming not supported by this response writer"))
		return
	}

	run, err := s.runs.Get(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}

	projector := s.dataflowProjector(r.Context(), run.WorkflowID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "ready", map[string]string{"runId": runID})
	flusher.Flush()

	sub := s.traces.Subscribe(runID)
	defer sub.Close()

	backlog, err := s.traces.ListByRunID(r.Context(), runID)
	if err == nil {
		for _, evt := range backlog {
			s.emitTraceEvent(w, evt, projector)
		}
		flusher.Flush()
	}

	if run.Status.IsTerminal() {
		writeSSE(w, "complete", runResponse(run))
		flusher.Flush()
		return
	}

	ticker := time.NewTicker(streamKeepalive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeSSE(w, "keepalive", map[string]string{})
			flusher.Flush()
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			s.emitTraceEvent(w, evt, projector)
			if evt.Type == model.NodeFailed || evt.Type == model.NodeCompleted {
				if run, err := s.runs.Get(ctx, runID); err == nil && run.Status.IsTerminal() {
					writeSSE(w, "complete", runResponse(run))
					flusher.Flush()
					return
				}
			}
			flusher.Flush()
		}
	}
}

func (s *Server) emitTraceEvent(w http.ResponseWriter, evt model.TraceEvent, projector *trace.DataflowProjector) {
	writeSSE(w, "trace", evt)
	if evt.Type == model.AwaitingInput {
		writeSSE(w, "status", map[string]string{"runId": evt.RunID, "status": "awaiting_input"})
	}
	if projector == nil {
		return
	}
	dataflowEvents, err := projector.Project(evt)
	if err != nil {
		s.logger.Warn(context.Background(), "dataflow projection failed", "runId", evt.RunID, "nodeRef", evt.NodeRef, "error", err)
		return
	}
	for _, df := range dataflowEvents {
		writeSSE(w, "dataflow", df)
	}
}

// dataflowProjector builds the dataflow SSE event deriver for workflowID's
// committed plan. Workflows with no committed plan (or runs started ahead
// of a later recompile) simply emit no dataflow events.
func (s *Server) dataflowProjector(ctx context.Context, workflowID string) *trace.DataflowProjector {
	wf, err := s.workflows.Get(ctx, workflowID)
	if err != nil || wf.Committed == nil {
		return nil
	}
	projector, err := trace.NewDataflowProjector(*wf.Committed, nil)
	if err != nil {
		s.logger.Warn(ctx, "build dataflow projector", "workflowId", workflowID, "error", err)
		return nil
	}
	return projector
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
