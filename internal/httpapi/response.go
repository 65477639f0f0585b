// Package httpapi implements the orchestrator daemon's HTTP surface (§6
// EXTERNAL INTERFACES): a thin net/http + http.ServeMux adapter layer over
// the in-process Workflow Compiler, Executor, Tool Registry, MCP Gateway,
// Pause/Resume Coordinator and Trace Sink. It does not build a
// general-purpose web framework; it implements exactly the paths spec.md
// §6 names.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/flowforge/orchestrator/internal/apierr"
)

// writeJSON writes status and body as a JSON response. Encoding failures
// are swallowed: the status line and headers are already committed by the
// time json.Marshal could fail on a well-formed body.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// errorBody is the wire shape for every error response this surface
// produces, mirroring the apierr.Error taxonomy (§7) so a caller can branch
// on `kind` without parsing `message`.
type errorBody struct {
	Kind    apierr.Kind    `json:"kind"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// writeError translates err into a JSON response at its apierr.Kind's
// mapped HTTP status (§7: never a stack trace, always the taxonomy's
// kind+message). Opaque errors default to a 502 KindDependency response.
func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Wrap(apierr.KindOf(err), err, "%s", err.Error())
	}
	writeJSON(w, apiErr.HTTPStatus(), errorBody{
		Kind:    apiErr.Kind,
		Message: apiErr.Error(),
		Fields:  apiErr.Fields,
	})
}

// decodeJSON decodes r's body into dest, reporting a KindValidation error
// on malformed JSON rather than letting handlers leak a raw json error.
func decodeJSON(r *http.Request, dest any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return apierr.Wrap(apierr.KindValidation, err, "decode request body")
	}
	return nil
}
