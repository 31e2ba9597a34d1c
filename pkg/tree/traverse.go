package tree

import "fmt"

// Children returns the direct children of a node in document order.
func (p *Pool) Children(id NodeID) ([]NodeID, error) {
	n, ok := p.Get(id)
	if !ok {
		return nil, fmt.Errorf("children of %s: %w", id, ErrNodeNotFound)
	}
	out := make([]NodeID, len(n.Content))
	copy(out, n.Content)
	return out, nil
}

// Descendants returns every node below the given one in depth-first
// document order, excluding the node itself. The traversal uses an explicit
// work stack so its depth never depends on how deeply the document nests.
func (p *Pool) Descendants(id NodeID) ([]NodeID, error) {
	start, ok := p.Get(id)
	if !ok {
		return nil, fmt.Errorf("descendants of %s: %w", id, ErrNodeNotFound)
	}

	var out []NodeID
	stack := make([]NodeID, 0, len(start.Content))
	for i := len(start.Content) - 1; i >= 0; i-- {
		stack = append(stack, start.Content[i])
	}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, current)

		n, ok := p.Get(current)
		if !ok {
			return nil, fmt.Errorf("descendants of %s: child %s: %w", id, current, ErrNodeNotFound)
		}
		for i := len(n.Content) - 1; i >= 0; i-- {
			stack = append(stack, n.Content[i])
		}
	}
	return out, nil
}
