package component_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/component"
	"github.com/flowforge/orchestrator/internal/model"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := component.New()
	def := model.ComponentDefinition{ID: "subfinder", Label: "Subfinder", Category: model.CategoryAction}

	require.NoError(t, reg.Register(def))

	got, ok := reg.Get("subfinder")
	require.True(t, ok)
	assert.Equal(t, "Subfinder", got.Label)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistryDuplicateID(t *testing.T) {
	reg := component.New()
	require.NoError(t, reg.Register(model.ComponentDefinition{ID: "dup"}))

	err := reg.Register(model.ComponentDefinition{ID: "dup"})
	require.Error(t, err)

	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, apiErr.Kind)
	assert.Equal(t, "dup", apiErr.Fields["componentId"])
}

func TestRegistryListIsInsertionOrdered(t *testing.T) {
	reg := component.New()
	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		require.NoError(t, reg.Register(model.ComponentDefinition{ID: id}))
	}

	list := reg.List()
	require.Len(t, list, 3)
	for i, id := range ids {
		assert.Equal(t, id, list[i].ID)
	}
}
