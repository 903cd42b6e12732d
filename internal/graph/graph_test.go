package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ValidDiamond(t *testing.T) {
	g, err := New([]StageDefinition{
		{Name: "extract", Kind: "extract"},
		{Name: "score", Kind: "score", DependsOn: []string{"extract"}, ParallelGroup: "enrich"},
		{Name: "profile", Kind: "profile", DependsOn: []string{"extract"}, ParallelGroup: "enrich"},
		{Name: "upload", Kind: "upload", DependsOn: []string{"score", "profile"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())

	def, ok := g.Def("score")
	require.True(t, ok)
	assert.Equal(t, "enrich", def.ParallelGroup)
}

func TestNew_CycleDetected(t *testing.T) {
	_, err := New([]StageDefinition{
		{Name: "a", Kind: "a", DependsOn: []string{"c"}},
		{Name: "b", Kind: "b", DependsOn: []string{"a"}},
		{Name: "c", Kind: "c", DependsOn: []string{"b"}},
	})
	assert.ErrorIs(t, err, ErrCyclicGraph)
}

func TestNew_SelfCycle(t *testing.T) {
	_, err := New([]StageDefinition{
		{Name: "a", Kind: "a", DependsOn: []string{"a"}},
	})
	assert.ErrorIs(t, err, ErrCyclicGraph)
}

func TestNew_UnknownDependency(t *testing.T) {
	_, err := New([]StageDefinition{
		{Name: "a", Kind: "a", DependsOn: []string{"missing"}},
	})

	var depErr *UnknownDependencyError
	require.True(t, errors.As(err, &depErr))
	assert.Equal(t, "a", depErr.Stage)
	assert.Equal(t, "missing", depErr.Dependency)
}

func TestNew_DuplicateStage(t *testing.T) {
	_, err := New([]StageDefinition{
		{Name: "a", Kind: "a"},
		{Name: "a", Kind: "a2"},
	})

	var dupErr *DuplicateStageError
	require.True(t, errors.As(err, &dupErr))
	assert.Equal(t, "a", dupErr.Stage)
}

func TestNew_UnknownMergeMode(t *testing.T) {
	_, err := New([]StageDefinition{
		{Name: "a", Kind: "a", Merge: "zip"},
	})
	assert.Error(t, err)
}

func TestNew_EmptyGraph(t *testing.T) {
	g, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
	assert.Empty(t, g.Stages())
}

func TestDependents_Transitive(t *testing.T) {
	g, err := New([]StageDefinition{
		{Name: "a", Kind: "a"},
		{Name: "b", Kind: "b", DependsOn: []string{"a"}},
		{Name: "c", Kind: "c", DependsOn: []string{"b"}},
		{Name: "d", Kind: "d", DependsOn: []string{"c"}},
		{Name: "e", Kind: "e"}, // unrelated
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c", "d"}, g.Dependents("a"))
	assert.Equal(t, []string{"d"}, g.Dependents("c"))
	assert.Empty(t, g.Dependents("e"))
}

func TestStages_DeclarationOrder(t *testing.T) {
	g, err := New([]StageDefinition{
		{Name: "z", Kind: "z"},
		{Name: "m", Kind: "m"},
		{Name: "a", Kind: "a"},
	})
	require.NoError(t, err)

	var names []string
	for _, def := range g.Stages() {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"z", "m", "a"}, names)
}
