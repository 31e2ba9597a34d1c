package plugin

import (
	"fmt"
	"strings"
)

// MissingDep names one unsatisfied dependency edge.
type MissingDep struct {
	Plugin     string
	Dependency string
}

// CycleReport lists every distinct dependency cycle (one entry per strongly
// connected component), so all violations can be fixed in a single pass
// instead of one re-registration per cycle.
type CycleReport struct {
	Cycles [][]string
}

func (r *CycleReport) Error() string {
	parts := make([]string, len(r.Cycles))
	for i, cycle := range r.Cycles {
		parts[i] = strings.Join(cycle, " -> ") + " -> " + cycle[0]
	}
	return "circular plugin dependencies: " + strings.Join(parts, "; ")
}

// DependencyError aggregates every dependency violation found at
// registration time. It is fatal: the manager refuses to finalize.
type DependencyError struct {
	Missing   []MissingDep
	Cycles    [][]string
	Conflicts [][2]string
}

func (e *DependencyError) Error() string {
	var parts []string
	for _, m := range e.Missing {
		parts = append(parts, fmt.Sprintf("plugin %q depends on unregistered %q", m.Plugin, m.Dependency))
	}
	if len(e.Cycles) > 0 {
		parts = append(parts, (&CycleReport{Cycles: e.Cycles}).Error())
	}
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("plugin %q conflicts with %q", c[0], c[1]))
	}
	return "plugin dependency resolution failed: " + strings.Join(parts, "; ")
}

// DepGraph is the plugin dependency graph: one node per plugin name, one
// directed edge per dependent -> dependency declaration.
type DepGraph struct {
	order []string // insertion order, used as a deterministic tie-break
	nodes map[string]bool
	deps  map[string][]string
}

// NewDepGraph creates an empty graph.
func NewDepGraph() *DepGraph {
	return &DepGraph{
		nodes: make(map[string]bool),
		deps:  make(map[string][]string),
	}
}

// AddNode registers a plugin name.
func (g *DepGraph) AddNode(name string) {
	if g.nodes[name] {
		return
	}
	g.nodes[name] = true
	g.order = append(g.order, name)
}

// AddDependency records that dependent requires dependency. The dependency
// name does not need to be registered yet; MissingDependencies reports
// edges that never get a node.
func (g *DepGraph) AddDependency(dependent, dependency string) {
	g.deps[dependent] = append(g.deps[dependent], dependency)
}

// MissingDependencies reports every edge whose dependency was never
// registered, naming the exact missing plugin.
func (g *DepGraph) MissingDependencies() []MissingDep {
	var missing []MissingDep
	for _, name := range g.order {
		for _, dep := range g.deps[name] {
			if !g.nodes[dep] {
				missing = append(missing, MissingDep{Plugin: name, Dependency: dep})
			}
		}
	}
	return missing
}

// TopologicalOrder returns the plugin names so that every dependency
// precedes its dependents. Ties are broken by insertion order, making the
// result deterministic. When the graph has cycles a CycleReport naming
// every cycle is returned instead.
func (g *DepGraph) TopologicalOrder() ([]string, *CycleReport) {
	if cycles := g.findCycles(); len(cycles) > 0 {
		return nil, &CycleReport{Cycles: cycles}
	}

	placed := make(map[string]bool, len(g.order))
	out := make([]string, 0, len(g.order))
	for len(out) < len(g.order) {
		for _, name := range g.order {
			if placed[name] {
				continue
			}
			ready := true
			for _, dep := range g.deps[name] {
				// Unregistered dependencies never block ordering;
				// they are surfaced by MissingDependencies.
				if g.nodes[dep] && !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				placed[name] = true
				out = append(out, name)
			}
		}
	}
	return out, nil
}

// findCycles enumerates the strongly connected components with more than
// one member, plus self-dependencies, using Tarjan's algorithm with an
// explicit stack frame list (no recursion on graph depth).
func (g *DepGraph) findCycles() [][]string {
	index := make(map[string]int, len(g.order))
	lowlink := make(map[string]int, len(g.order))
	onStack := make(map[string]bool, len(g.order))
	var stack []string
	var cycles [][]string
	next := 0

	type frame struct {
		name string
		edge int
	}

	for _, start := range g.order {
		if _, seen := index[start]; seen {
			continue
		}
		frames := []frame{{name: start}}
		index[start] = next
		lowlink[start] = next
		next++
		stack = append(stack, start)
		onStack[start] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			edges := g.registeredDeps(f.name)
			if f.edge < len(edges) {
				child := edges[f.edge]
				f.edge++
				if _, seen := index[child]; !seen {
					index[child] = next
					lowlink[child] = next
					next++
					stack = append(stack, child)
					onStack[child] = true
					frames = append(frames, frame{name: child})
				} else if onStack[child] {
					if index[child] < lowlink[f.name] {
						lowlink[f.name] = index[child]
					}
				}
				continue
			}

			// Frame exhausted: close the component if this is its root.
			if lowlink[f.name] == index[f.name] {
				var component []string
				for {
					top := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[top] = false
					component = append(component, top)
					if top == f.name {
						break
					}
				}
				if len(component) > 1 || g.selfDependent(f.name) {
					// Reverse to report in dependency-declaration order.
					for i, j := 0, len(component)-1; i < j; i, j = i+1, j-1 {
						component[i], component[j] = component[j], component[i]
					}
					cycles = append(cycles, component)
				}
			}
			done := *f
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := &frames[len(frames)-1]
				if lowlink[done.name] < lowlink[parent.name] {
					lowlink[parent.name] = lowlink[done.name]
				}
			}
		}
	}
	return cycles
}

func (g *DepGraph) registeredDeps(name string) []string {
	var out []string
	for _, dep := range g.deps[name] {
		if g.nodes[dep] {
			out = append(out, dep)
		}
	}
	return out
}

func (g *DepGraph) selfDependent(name string) bool {
	for _, dep := range g.deps[name] {
		if dep == name {
			return true
		}
	}
	return false
}
