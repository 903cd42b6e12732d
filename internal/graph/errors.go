package graph

import (
	"errors"
	"fmt"
)

// ErrCyclicGraph is returned when the stage definitions contain a dependency
// cycle. Validation happens before a run starts; a cyclic graph never runs.
var ErrCyclicGraph = errors.New("stage graph contains a cycle")

// UnknownDependencyError indicates a stage depends on a stage that is not
// defined in the graph.
type UnknownDependencyError struct {
	Stage      string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("stage %q depends on undefined stage %q", e.Stage, e.Dependency)
}

// DuplicateStageError indicates two definitions share the same stage name.
type DuplicateStageError struct {
	Stage string
}

func (e *DuplicateStageError) Error() string {
	return fmt.Sprintf("duplicate stage definition: %q", e.Stage)
}
