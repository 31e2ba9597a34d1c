package domain

import "github.com/aretw0/weft/pkg/tree"

// State is one immutable, versioned snapshot of a document: the node pool
// plus every plugin's resource. States are never modified; applying a
// transaction produces a new State and leaves every previously handed-out
// State valid and traversable. Reads need no locking.
type State struct {
	// Version increases by exactly one per accepted transaction,
	// including plugin follow-ups.
	Version uint64

	// Pool is the document tree at this version.
	Pool *tree.Pool

	// Resources maps plugin names to their state. Treat as immutable;
	// the engine clones the map (copy-on-write) when producing the next
	// State.
	Resources ResourceMap
}

// NewState creates the version-0 state over a pool with no plugin resources.
func NewState(pool *tree.Pool) *State {
	return &State{
		Pool:      pool,
		Resources: make(ResourceMap),
	}
}

// Resource returns the named plugin's resource.
func (s *State) Resource(name string) (Resource, bool) {
	r, ok := s.Resources[name]
	return r, ok
}

// Next derives the successor state: version bumped by one, the given pool,
// and a copy-on-write clone of the resource map for the engine to fill in.
func (s *State) Next(pool *tree.Pool) *State {
	return &State{
		Version:   s.Version + 1,
		Pool:      pool,
		Resources: s.Resources.Clone(),
	}
}
