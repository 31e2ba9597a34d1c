package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrMultipleParents is returned when a node is referenced as a child
	// by more than one parent.
	ErrMultipleParents = errors.New("node has multiple parents")

	// ErrUnreachableNode is returned when a node is not reachable from
	// the root.
	ErrUnreachableNode = errors.New("node not reachable from root")
)

// Build reconstructs a pool from a full node set, e.g. when restoring a
// snapshot. It validates the tree invariants: the root exists, every child
// reference resolves, every reachable node has exactly one parent, there
// are no cycles, and no node is left unreachable.
func Build(rootID NodeID, nodes []Node, opts ...Option) (*Pool, error) {
	byID := make(map[NodeID]*Node, len(nodes))
	for i := range nodes {
		n := nodes[i]
		if _, dup := byID[n.ID]; dup {
			return nil, fmt.Errorf("build pool: node %s: %w", n.ID, ErrDuplicateNode)
		}
		byID[n.ID] = &n
	}
	root, ok := byID[rootID]
	if !ok {
		return nil, fmt.Errorf("build pool: root %s: %w", rootID, ErrNodeNotFound)
	}

	p := &Pool{
		rootID: rootID,
		cache:  newQueryCache(),
		logger: discardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	seen := map[NodeID]bool{rootID: true}
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		p.setNode(n)
		for _, childID := range n.Content {
			child, ok := byID[childID]
			if !ok {
				return nil, fmt.Errorf("build pool: child %s of %s: %w", childID, n.ID, ErrNodeNotFound)
			}
			// A repeat visit means either two parents or a cycle.
			if seen[childID] {
				return nil, fmt.Errorf("build pool: node %s: %w", childID, ErrMultipleParents)
			}
			seen[childID] = true
			p.setParent(childID, n.ID)
			stack = append(stack, child)
		}
	}
	if len(seen) != len(byID) {
		for id := range byID {
			if !seen[id] {
				return nil, fmt.Errorf("build pool: node %s: %w", id, ErrUnreachableNode)
			}
		}
	}
	return p, nil
}
