package mcpgateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/time/rate"

	"github.com/flowforge/orchestrator/internal/apierr"
)

// externalListToolsRetries/Delay and externalCallToolRetries/Backoff/Timeout
// implement §4.7's external tool proxy retry policy: listTools retried up
// to 5x with a flat 1s delay, callTool retried up to 3x with linear
// backoff and a 30s wall-clock timeout per attempt.
const (
	externalListToolsRetries = 5
	externalListToolsDelay   = time.Second

	externalCallToolRetries  = 3
	externalCallToolBackoff  = time.Second
	externalCallToolTimeout  = 30 * time.Second

	// externalCallToolRatePerSecond/Burst throttle outbound calls to a single
	// external MCP endpoint so one misbehaving workflow can't flood a
	// third-party server; distinct from the retry/backoff above, which
	// paces re-attempts of a single call rather than the aggregate rate.
	externalCallToolRatePerSecond = 10
	externalCallToolBurst         = 5
)

// ExternalClient proxies tool calls to a remote MCP server reached over
// its own session, grounded on the stdio client pattern used in-pack but
// dialing the component's declared HTTP/SSE endpoint instead of spawning
// a subprocess.
type ExternalClient struct {
	sourceToolName string
	endpoint       string
	client         *mcpclient.Client
	sessionID      string
	limiter        *rate.Limiter
}

// DialExternal connects a fresh MCP client to endpoint under a unique
// session id and lists its tools, retrying listTools up to 5x at 1s
// intervals per §4.7.
func DialExternal(ctx context.Context, sourceToolName, endpoint string) (*ExternalClient, []mcp.Tool, error) {
	sessionID := uuid.NewString()

	c, err := mcpclient.NewSSEMCPClient(endpoint, mcpclient.WithHeaders(map[string]string{
		"X-MCP-Session-Id": sessionID,
	}))
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.KindDependency, err, "dial external MCP endpoint %s", endpoint)
	}
	if err := c.Start(ctx); err != nil {
		return nil, nil, apierr.Wrap(apierr.KindDependency, err, "start external MCP session for %s", endpoint)
	}

	ec := &ExternalClient{
		sourceToolName: sourceToolName,
		endpoint:       endpoint,
		client:         c,
		sessionID:      sessionID,
		limiter:        rate.NewLimiter(rate.Limit(externalCallToolRatePerSecond), externalCallToolBurst),
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "orchestrator-mcp-gateway", Version: "1"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		ec.Close()
		return nil, nil, apierr.Wrap(apierr.KindDependency, err, "initialize external MCP session for %s", endpoint)
	}

	var tools []mcp.Tool
	var lastErr error
	for attempt := 0; attempt < externalListToolsRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				ec.Close()
				return nil, nil, ctx.Err()
			case <-time.After(externalListToolsDelay):
			}
		}
		res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
		if err == nil {
			tools = res.Tools
			lastErr = nil
			break
		}
		lastErr = err
	}
	if lastErr != nil {
		ec.Close()
		return nil, nil, apierr.Wrap(apierr.KindDependency, lastErr, "listTools on %s failed after %d attempts", endpoint, externalListToolsRetries)
	}

	return ec, tools, nil
}

// AnnouncedNames returns the agent-visible, collision-free names for the
// tools this client discovered (§4.7 naming rule:
// {sourceToolName}__{externalToolName}).
func AnnouncedNames(sourceToolName string, tools []mcp.Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = ExternalToolName(sourceToolName, t.Name)
	}
	return names
}

// Call proxies one tool invocation, retrying up to 3x with linear backoff
// and a 30s wall-clock timeout per attempt (§4.7).
func (ec *ExternalClient) Call(ctx context.Context, externalToolName string, args map[string]any) (*mcp.CallToolResult, error) {
	if err := ec.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = externalToolName
	req.Params.Arguments = args

	var lastErr error
	for attempt := 0; attempt < externalCallToolRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * externalCallToolBackoff):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, externalCallToolTimeout)
		res, err := ec.client.CallTool(attemptCtx, req)
		cancel()
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return nil, apierr.Wrap(apierr.KindDependency, lastErr, "callTool %s on %s failed after %d attempts", externalToolName, ec.endpoint, externalCallToolRetries)
}

// Close always tears down the underlying client, on every path (success,
// error, or abandonment).
func (ec *ExternalClient) Close() error {
	if ec.client == nil {
		return nil
	}
	return ec.client.Close()
}

// TextContent extracts the text payload of a tool result, used when
// relaying a proxied call's output back to the calling agent.
func TextContent(res *mcp.CallToolResult) (string, bool) {
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			return tc.Text, true
		}
	}
	return "", false
}
