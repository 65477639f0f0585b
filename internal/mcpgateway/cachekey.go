package mcpgateway

import (
	"sort"
	"strings"
)

// CacheKey computes the virtual-server cache key for a run (§4.7):
// runId alone, or runId + sorted(allowedNodeIds) when the caller scopes
// the session to a node subset. Node ids containing commas are
// escape-encoded first so a crafted id cannot forge a collision with a
// different node-id set that happens to produce the same joined string.
func CacheKey(runID string, allowedNodeIDs []string) string {
	if len(allowedNodeIDs) == 0 {
		return runID
	}
	escaped := make([]string, len(allowedNodeIDs))
	for i, id := range allowedNodeIDs {
		escaped[i] = escapeComma(id)
	}
	sort.Strings(escaped)
	return runID + "+" + strings.Join(escaped, ",")
}

func escapeComma(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, ",", `\,`)
}
