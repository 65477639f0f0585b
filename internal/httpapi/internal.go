package httpapi

import (
	"net/http"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/toolregistry"
)

// generateTokenRequest is the body for POST /internal/mcp/generate-token,
// called by the Workflow Executor once a run reaches a node that needs
// agent tool access (§4.10).
type generateTokenRequest struct {
	RunID          string   `json:"runId"`
	OrganizationID string   `json:"organizationId"`
	AgentID        string   `json:"agentId"`
	AllowedNodeIDs []string `json:"allowedNodeIds"`
}

func (s *Server) handleGenerateToken(w http.ResponseWriter, r *http.Request) {
	var req generateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.RunID == "" {
		writeError(w, apierr.New(apierr.KindValidation, "runId is required"))
		return
	}

	token, err := s.minter.Mint(r.Context(), req.RunID, req.OrganizationID, req.AgentID, req.AllowedNodeIDs, s.cfg.SessionTokenTTL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func (s *Server) handleRegisterComponent(w http.ResponseWriter, r *http.Request) {
	var in toolregistry.RegisterComponentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	tool, err := s.tools.RegisterComponent(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tool)
}

func (s *Server) handleRegisterRemote(w http.ResponseWriter, r *http.Request) {
	var in toolregistry.RegisterRemoteInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	tool, err := s.tools.RegisterRemote(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tool)
}

func (s *Server) handleRegisterLocal(w http.ResponseWriter, r *http.Request) {
	var in toolregistry.RegisterLocalInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	tool, err := s.tools.RegisterLocal(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tool)
}

type cleanupRequest struct {
	RunID string `json:"runId"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	containerIDs, err := s.tools.CleanupRun(r.Context(), req.RunID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runId": req.RunID, "containerIds": containerIDs})
}

type toolsReadyRequest struct {
	RunID           string   `json:"runId"`
	RequiredNodeIDs []string `json:"requiredNodeIds"`
}

func (s *Server) handleToolsReady(w http.ResponseWriter, r *http.Request) {
	var req toolsReadyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ready, err := s.tools.AreAllToolsReady(r.Context(), req.RunID, req.RequiredNodeIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runId": req.RunID, "ready": ready})
}
