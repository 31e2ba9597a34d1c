package domain

import (
	"fmt"

	"github.com/aretw0/weft/pkg/tree"
)

// StepKind tags the closed set of step variants.
type StepKind string

const (
	StepAddNode    StepKind = "add_node"
	StepRemoveNode StepKind = "remove_node"
	StepSetAttr    StepKind = "set_attr"
	StepAddMark    StepKind = "add_mark"
	StepRemoveMark StepKind = "remove_mark"
	StepBatch      StepKind = "batch"
)

// Step is one atomic, invertible document edit. Apply is a deterministic
// function from pool to pool: it either produces the next pool version or
// reports a ValidationError, never a partial write. Invert derives the
// reverse step from the pool the step is about to run against.
type Step interface {
	Kind() StepKind
	Apply(pool *tree.Pool) (*tree.Pool, error)
	Invert(pre *tree.Pool) (Step, error)
}

// AddNodeStep attaches a new node under Parent. Pos is the child index to
// insert at; negative means append.
type AddNodeStep struct {
	Parent tree.NodeID
	Node   tree.Node
	Pos    int
}

func (s *AddNodeStep) Kind() StepKind { return StepAddNode }

func (s *AddNodeStep) Apply(pool *tree.Pool) (*tree.Pool, error) {
	next, err := pool.WithNodeInserted(s.Parent, s.Node, s.Pos)
	if err != nil {
		return nil, &ValidationError{Op: string(StepAddNode), NodeID: s.Node.ID, Cause: err}
	}
	return next, nil
}

func (s *AddNodeStep) Invert(pre *tree.Pool) (Step, error) {
	return &RemoveNodeStep{ID: s.Node.ID}, nil
}

// RemoveNodeStep removes a node and its entire subtree.
type RemoveNodeStep struct {
	ID tree.NodeID
}

func (s *RemoveNodeStep) Kind() StepKind { return StepRemoveNode }

func (s *RemoveNodeStep) Apply(pool *tree.Pool) (*tree.Pool, error) {
	next, err := pool.WithNodeRemoved(s.ID)
	if err != nil {
		return nil, &ValidationError{Op: string(StepRemoveNode), NodeID: s.ID, Cause: err}
	}
	return next, nil
}

// Invert rebuilds the removed subtree from the pre-state: the node itself
// at its original child position, then every descendant in document order.
// Nodes are re-added with empty content; the add steps themselves rebuild
// the child lists in order.
func (s *RemoveNodeStep) Invert(pre *tree.Pool) (Step, error) {
	n, ok := pre.Get(s.ID)
	if !ok {
		return nil, &ValidationError{Op: string(StepRemoveNode), NodeID: s.ID, Cause: tree.ErrNodeNotFound}
	}
	parentID, ok := pre.Parent(s.ID)
	if !ok {
		return nil, &ValidationError{Op: string(StepRemoveNode), NodeID: s.ID, Cause: tree.ErrRemoveRoot}
	}
	parent, _ := pre.Get(parentID)
	pos := 0
	for i, child := range parent.Content {
		if child == s.ID {
			pos = i
			break
		}
	}

	steps := []Step{&AddNodeStep{Parent: parentID, Node: bareNode(n), Pos: pos}}
	descendants, err := pre.Descendants(s.ID)
	if err != nil {
		return nil, err
	}
	for _, id := range descendants {
		child, _ := pre.Get(id)
		childParent, _ := pre.Parent(id)
		steps = append(steps, &AddNodeStep{Parent: childParent, Node: bareNode(child), Pos: -1})
	}
	return &BatchStep{Steps: steps}, nil
}

// bareNode copies a node without its content list, which the inverse add
// steps reconstruct.
func bareNode(n *tree.Node) tree.Node {
	out := *n
	out.Content = nil
	return out
}

// SetAttrStep merges Set into a node's attributes and removes the Unset names.
type SetAttrStep struct {
	ID    tree.NodeID
	Set   tree.Attrs
	Unset []string
}

func (s *SetAttrStep) Kind() StepKind { return StepSetAttr }

func (s *SetAttrStep) Apply(pool *tree.Pool) (*tree.Pool, error) {
	next, err := pool.WithAttrsSet(s.ID, s.Set, s.Unset)
	if err != nil {
		return nil, &ValidationError{Op: string(StepSetAttr), NodeID: s.ID, Cause: err}
	}
	return next, nil
}

func (s *SetAttrStep) Invert(pre *tree.Pool) (Step, error) {
	n, ok := pre.Get(s.ID)
	if !ok {
		return nil, &ValidationError{Op: string(StepSetAttr), NodeID: s.ID, Cause: tree.ErrNodeNotFound}
	}
	inv := &SetAttrStep{ID: s.ID}
	for _, attr := range s.Set {
		if old, existed := n.Attrs.Get(attr.Name); existed {
			inv.Set = inv.Set.With(attr.Name, old)
		} else {
			inv.Unset = append(inv.Unset, attr.Name)
		}
	}
	for _, name := range s.Unset {
		if old, existed := n.Attrs.Get(name); existed {
			inv.Set = inv.Set.With(name, old)
		}
	}
	return inv, nil
}

// AddMarkStep adds a mark to a node.
type AddMarkStep struct {
	ID   tree.NodeID
	Mark tree.Mark
}

func (s *AddMarkStep) Kind() StepKind { return StepAddMark }

func (s *AddMarkStep) Apply(pool *tree.Pool) (*tree.Pool, error) {
	next, err := pool.WithMarkAdded(s.ID, s.Mark)
	if err != nil {
		return nil, &ValidationError{Op: string(StepAddMark), NodeID: s.ID, Cause: err}
	}
	return next, nil
}

func (s *AddMarkStep) Invert(pre *tree.Pool) (Step, error) {
	n, ok := pre.Get(s.ID)
	if !ok {
		return nil, &ValidationError{Op: string(StepAddMark), NodeID: s.ID, Cause: tree.ErrNodeNotFound}
	}
	if n.Marks.Contains(s.Mark) {
		// The mark was already present; the step changed nothing.
		return &BatchStep{}, nil
	}
	return &RemoveMarkStep{ID: s.ID, Mark: s.Mark}, nil
}

// RemoveMarkStep removes a mark from a node.
type RemoveMarkStep struct {
	ID   tree.NodeID
	Mark tree.Mark
}

func (s *RemoveMarkStep) Kind() StepKind { return StepRemoveMark }

func (s *RemoveMarkStep) Apply(pool *tree.Pool) (*tree.Pool, error) {
	next, err := pool.WithMarkRemoved(s.ID, s.Mark)
	if err != nil {
		return nil, &ValidationError{Op: string(StepRemoveMark), NodeID: s.ID, Cause: err}
	}
	return next, nil
}

func (s *RemoveMarkStep) Invert(pre *tree.Pool) (Step, error) {
	n, ok := pre.Get(s.ID)
	if !ok {
		return nil, &ValidationError{Op: string(StepRemoveMark), NodeID: s.ID, Cause: tree.ErrNodeNotFound}
	}
	if !n.Marks.Contains(s.Mark) {
		return &BatchStep{}, nil
	}
	return &AddMarkStep{ID: s.ID, Mark: s.Mark}, nil
}

// BatchStep applies its sub-steps in order. The batch is atomic: if any
// sub-step fails, the error propagates and the caller keeps the pre-batch
// pool, which no sub-step has touched. An empty batch is the identity step.
type BatchStep struct {
	Steps []Step
}

func (s *BatchStep) Kind() StepKind { return StepBatch }

func (s *BatchStep) Apply(pool *tree.Pool) (*tree.Pool, error) {
	next := pool
	for i, step := range s.Steps {
		var err error
		next, err = step.Apply(next)
		if err != nil {
			return nil, fmt.Errorf("batch step %d/%d: %w", i+1, len(s.Steps), err)
		}
	}
	return next, nil
}

// Invert inverts each sub-step against the pool state it would actually see
// and reverses the order.
func (s *BatchStep) Invert(pre *tree.Pool) (Step, error) {
	inverted := make([]Step, 0, len(s.Steps))
	pool := pre
	for i, step := range s.Steps {
		inv, err := step.Invert(pool)
		if err != nil {
			return nil, fmt.Errorf("invert batch step %d/%d: %w", i+1, len(s.Steps), err)
		}
		pool, err = step.Apply(pool)
		if err != nil {
			return nil, fmt.Errorf("invert batch step %d/%d: %w", i+1, len(s.Steps), err)
		}
		inverted = append(inverted, inv)
	}
	for i, j := 0, len(inverted)-1; i < j; i, j = i+1, j-1 {
		inverted[i], inverted[j] = inverted[j], inverted[i]
	}
	return &BatchStep{Steps: inverted}, nil
}
