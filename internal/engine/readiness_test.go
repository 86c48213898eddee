package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhale/cascade/internal/graph"
)

func TestReadyUnits(t *testing.T) {
	units := []graph.Unit{
		{ID: "u1"},
		{ID: "u2", Dependencies: []string{"u1"}},
		{ID: "u3", Dependencies: []string{"u1", "u2"}},
		{ID: "u4"},
	}

	t.Run("nothing executed", func(t *testing.T) {
		ready := ReadyUnits(units, map[string]bool{})
		require.Len(t, ready, 2)
		assert.Equal(t, "u1", ready[0].ID)
		assert.Equal(t, "u4", ready[1].ID)
	})

	t.Run("partial progress", func(t *testing.T) {
		ready := ReadyUnits(units, map[string]bool{"u1": true, "u4": true})
		require.Len(t, ready, 1)
		assert.Equal(t, "u2", ready[0].ID)
	})

	t.Run("all executed", func(t *testing.T) {
		ready := ReadyUnits(units, map[string]bool{
			"u1": true, "u2": true, "u3": true, "u4": true,
		})
		assert.Empty(t, ready)
	})

	t.Run("dangling dependency never becomes ready", func(t *testing.T) {
		dangling := []graph.Unit{{ID: "u1", Dependencies: []string{"ghost"}}}
		assert.Empty(t, ReadyUnits(dangling, map[string]bool{}))
	})

	t.Run("declaration order preserved", func(t *testing.T) {
		many := []graph.Unit{{ID: "z"}, {ID: "a"}, {ID: "m"}}
		ready := ReadyUnits(many, map[string]bool{})
		require.Len(t, ready, 3)
		assert.Equal(t, []string{"z", "a", "m"}, []string{ready[0].ID, ready[1].ID, ready[2].ID})
	})
}

func TestPartitionBatch(t *testing.T) {
	ready := []graph.Unit{
		{ID: "s1"},
		{ID: "p1", Parallel: true},
		{ID: "s2"},
		{ID: "p2", Parallel: true},
	}

	parallel, sequential := partitionBatch(ready)

	require.Len(t, parallel, 2)
	assert.Equal(t, "p1", parallel[0].ID)
	assert.Equal(t, "p2", parallel[1].ID)

	require.Len(t, sequential, 2)
	assert.Equal(t, "s1", sequential[0].ID)
	assert.Equal(t, "s2", sequential[1].ID)
}
