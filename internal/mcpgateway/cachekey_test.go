package mcpgateway_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowforge/orchestrator/internal/mcpgateway"
)

func TestCacheKeyNoNodesIsJustRunID(t *testing.T) {
	assert.Equal(t, "run-1", mcpgateway.CacheKey("run-1", nil))
}

func TestCacheKeyIsOrderIndependent(t *testing.T) {
	a := mcpgateway.CacheKey("run-1", []string{"n2", "n1"})
	b := mcpgateway.CacheKey("run-1", []string{"n1", "n2"})
	assert.Equal(t, a, b)
}

func TestCacheKeyEscapesCommaToPreventCollision(t *testing.T) {
	// Without escaping, {"a,b"} and {"a","b"} would both join to "a,b".
	withComma := mcpgateway.CacheKey("run-1", []string{"a,b"})
	withoutComma := mcpgateway.CacheKey("run-1", []string{"a", "b"})
	assert.NotEqual(t, withComma, withoutComma)
}
