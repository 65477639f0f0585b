package httpapi

import (
	"net/http"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/model"
)

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	organizationID := r.URL.Query().Get("organizationId")
	approvals, err := s.approvals.List(r.Context(), organizationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": approvals})
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	approval, err := s.approvals.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

// resolveApprovalRequest is the authenticated operator resolution body for
// POST /approvals/{id}/{approve|reject}.
type resolveApprovalRequest struct {
	Selection    string `json:"selection,omitempty"`
	ResponseNote string `json:"responseNote,omitempty"`
}

// handleResolveApproval builds the operator-authenticated resolve handler
// for either side (approved=true for .../approve, false for .../reject);
// the caller's identity (attached by operatorAuth) becomes RespondedBy.
func (s *Server) handleResolveApproval(approved bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		var req resolveApprovalRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, err)
				return
			}
		}

		respondedBy, _ := IdentityFromContext(r.Context())

		result, err := s.approvals.Resolve(r.Context(), id, model.ResolveApprovalInput{
			Approved:     approved,
			Selection:    req.Selection,
			RespondedBy:  respondedBy,
			ResponseNote: req.ResponseNote,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// handlePublicResolve builds the public, unauthenticated token-resolution
// handler for GET /approve/{token} and GET /reject/{token} (§6: no auth, a
// 404 on an unknown or already-resolved token rather than a structured
// error body, so the approve/reject link itself never leaks state).
func (s *Server) handlePublicResolve(approved bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.PathValue("token")

		var (
			result model.ApprovalRequest
			err    error
		)
		in := model.ResolveApprovalInput{Approved: approved}
		if approved {
			result, err = s.approvals.ResolveByApproveToken(r.Context(), token, in)
		} else {
			result, err = s.approvals.ResolveByRejectToken(r.Context(), token, in)
		}
		if err != nil {
			if apiErr, ok := apierr.As(err); ok && (apiErr.Kind == apierr.KindNotFound || apiErr.Kind == apierr.KindConflict) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
