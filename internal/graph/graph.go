// Package graph provides the declarative stage dependency graph: typed stage
// definitions, acyclicity validation, and dependency queries used by the
// execution engine.
package graph

import "fmt"

// Merge modes for the chunked processing strategy.
const (
	MergeConcat     = "concat"
	MergeSynthesize = "synthesize"
)

// StageDefinition is a declarative node in the stage graph.
type StageDefinition struct {
	// Name uniquely identifies the stage within the graph.
	Name string `json:"name" validate:"required"`
	// Kind is the unit-of-work identifier handed to the collaborator port.
	Kind string `json:"kind" validate:"required"`
	// DependsOn lists stages whose success is required before this one runs.
	DependsOn []string `json:"depends_on,omitempty"`
	// Checkpoint marks the stage result for durable persistence on success.
	Checkpoint bool `json:"checkpoint,omitempty"`
	// Gated subjects the stage output to quality evaluation.
	Gated bool `json:"gated,omitempty"`
	// Optional lets downstream stages proceed with a null result when this
	// stage fails.
	Optional bool `json:"optional,omitempty"`
	// ParallelGroup tags stages that may run concurrently once ready.
	ParallelGroup string `json:"parallel_group,omitempty"`
	// Merge selects how chunked outputs are recombined (concat, synthesize).
	Merge string `json:"merge,omitempty"`
	// SchemaPath points at the JSON Schema used by the quality gate.
	SchemaPath string `json:"schema_path,omitempty"`
	// Checklist lists required top-level fields for the completeness check.
	Checklist []string `json:"checklist,omitempty"`
	// Final marks the stage's payload as part of the run's output batch,
	// persisted through the deduplicating writer at run completion.
	Final bool `json:"final,omitempty"`
}

// Graph is a validated, immutable stage dependency graph.
type Graph struct {
	defs  map[string]StageDefinition
	order []string            // declaration order, for stable iteration
	next  map[string][]string // forward edges: stage -> direct dependents
}

// New builds a graph from stage definitions and validates it: unique names,
// known dependencies, no cycles. A cyclic graph fails fast with
// ErrCyclicGraph so the run never starts.
func New(defs []StageDefinition) (*Graph, error) {
	g := &Graph{
		defs: make(map[string]StageDefinition, len(defs)),
		next: make(map[string][]string, len(defs)),
	}

	for _, def := range defs {
		if _, exists := g.defs[def.Name]; exists {
			return nil, &DuplicateStageError{Stage: def.Name}
		}
		if def.Merge != "" && def.Merge != MergeConcat && def.Merge != MergeSynthesize {
			return nil, fmt.Errorf("stage %q: unknown merge mode %q", def.Name, def.Merge)
		}
		g.defs[def.Name] = def
		g.order = append(g.order, def.Name)
	}

	for _, def := range defs {
		for _, dep := range def.DependsOn {
			if _, ok := g.defs[dep]; !ok {
				return nil, &UnknownDependencyError{Stage: def.Name, Dependency: dep}
			}
			g.next[dep] = append(g.next[dep], def.Name)
		}
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}

	return g, nil
}

// validateAcyclic runs DFS with color marking over the forward edges:
// white (unvisited), gray (on the current path), black (done). A gray node
// reached again is a back edge, i.e. a cycle.
func (g *Graph) validateAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[string]int, len(g.defs))

	var visit func(name string) bool
	visit = func(name string) bool {
		colors[name] = gray
		for _, succ := range g.next[name] {
			switch colors[succ] {
			case gray:
				return true
			case white:
				if visit(succ) {
					return true
				}
			}
		}
		colors[name] = black
		return false
	}

	for _, name := range g.order {
		if colors[name] == white {
			if visit(name) {
				return ErrCyclicGraph
			}
		}
	}
	return nil
}

// Stages returns all definitions in declaration order
func (g *Graph) Stages() []StageDefinition {
	out := make([]StageDefinition, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.defs[name])
	}
	return out
}

// Def returns the definition for a stage name
func (g *Graph) Def(name string) (StageDefinition, bool) {
	def, ok := g.defs[name]
	return def, ok
}

// Len returns the number of stages in the graph
func (g *Graph) Len() int {
	return len(g.order)
}

// Dependents returns the transitive closure of stages that depend on the
// given stage, in declaration order. Used to propagate skips on failure.
func (g *Graph) Dependents(name string) []string {
	seen := map[string]bool{}
	var walk func(n string)
	walk = func(n string) {
		for _, succ := range g.next[n] {
			if !seen[succ] {
				seen[succ] = true
				walk(succ)
			}
		}
	}
	walk(name)

	var out []string
	for _, n := range g.order {
		if seen[n] {
			out = append(out, n)
		}
	}
	return out
}
