package mcpgateway_test

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"

	"github.com/flowforge/orchestrator/internal/mcpgateway"
)

func TestAnnouncedNamesPrefixesWithSourceToolName(t *testing.T) {
	tools := []mcp.Tool{{Name: "search"}, {Name: "fetch"}}
	names := mcpgateway.AnnouncedNames("recon_external", tools)
	assert.Equal(t, []string{"recon_external__search", "recon_external__fetch"}, names)
}

func TestTextContentExtractsFirstTextBlock(t *testing.T) {
	res := &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent("hello")},
	}
	text, ok := mcpgateway.TextContent(res)
	assert.True(t, ok)
	assert.Equal(t, "hello", text)
}

func TestTextContentAbsentWhenNoTextBlock(t *testing.T) {
	res := &mcp.CallToolResult{}
	_, ok := mcpgateway.TextContent(res)
	assert.False(t, ok)
}
