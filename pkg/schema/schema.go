package schema

import (
	"fmt"

	"github.com/aretw0/weft/pkg/tree"
)

// AttrSchema is a map of attribute names to their expected types.
// Example: {"level": Int(), "align": String()}
type AttrSchema map[string]Type

// NodeSpec constrains one node type: which attributes it may carry, which
// child node types it accepts, and which marks may be applied to it.
type NodeSpec struct {
	// Attrs declares the allowed attributes. Attributes present on a node
	// but absent from the schema are rejected. A nil map allows anything.
	Attrs AttrSchema

	// Required lists attribute names that must be present.
	Required []string

	// Content lists the allowed child node types. A nil slice allows any
	// child; an empty non-nil slice requires a leaf.
	Content []string

	// Marks lists the allowed mark types. A nil slice allows any mark; an
	// empty non-nil slice forbids marks.
	Marks []string
}

// Schema maps node types to their specs. Node types absent from the schema
// are rejected, so a schema is always closed over the types it names.
type Schema map[string]NodeSpec

// ValidateNode checks one node against the schema, including its direct
// children's types. It does not recurse; use ValidatePool for whole trees.
func (s Schema) ValidateNode(pool *tree.Pool, n tree.Node) error {
	spec, ok := s[n.Type]
	if !ok {
		return &ValidationError{NodeID: n.ID, Reason: fmt.Sprintf("unknown node type %q", n.Type)}
	}

	var errs []error

	for _, name := range spec.Required {
		if !n.Attrs.Has(name) {
			errs = append(errs, &ValidationError{
				NodeID: n.ID,
				Attr:   name,
				Reason: "required",
			})
		}
	}

	if spec.Attrs != nil {
		for _, attr := range n.Attrs {
			typ, declared := spec.Attrs[attr.Name]
			if !declared {
				errs = append(errs, &ValidationError{
					NodeID: n.ID,
					Attr:   attr.Name,
					Reason: fmt.Sprintf("not allowed on %q nodes", n.Type),
					Value:  attr.Value,
				})
				continue
			}
			if err := typ.Validate(attr.Value); err != nil {
				errs = append(errs, &ValidationError{
					NodeID: n.ID,
					Attr:   attr.Name,
					Reason: err.Error(),
					Value:  attr.Value,
				})
			}
		}
	}

	if spec.Marks != nil {
		for _, m := range n.Marks {
			if !contains(spec.Marks, m.Type) {
				errs = append(errs, &ValidationError{
					NodeID: n.ID,
					Reason: fmt.Sprintf("mark %q not allowed on %q nodes", m.Type, n.Type),
				})
			}
		}
	}

	if spec.Content != nil {
		for _, childID := range n.Content {
			child, ok := pool.Get(childID)
			if !ok {
				errs = append(errs, &ValidationError{
					NodeID: n.ID,
					Reason: fmt.Sprintf("child %s not in pool", childID),
				})
				continue
			}
			if !contains(spec.Content, child.Type) {
				errs = append(errs, &ValidationError{
					NodeID: n.ID,
					Reason: fmt.Sprintf("child %q not allowed in %q nodes", child.Type, n.Type),
				})
			}
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// ValidatePool checks every node reachable from the pool root. Validation
// failures across nodes are aggregated into a single error.
func (s Schema) ValidatePool(pool *tree.Pool) error {
	if len(s) == 0 {
		// No schema = no validation
		return nil
	}

	root := pool.Root()
	if root == nil {
		return fmt.Errorf("pool has no root")
	}

	var errs []error
	check := func(n tree.Node) {
		if err := s.ValidateNode(pool, n); err != nil {
			if agg, ok := err.(*AggregateError); ok {
				errs = append(errs, agg.Errors...)
				return
			}
			errs = append(errs, err)
		}
	}

	check(*root)
	ids, err := pool.Descendants(root.ID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		n, ok := pool.Get(id)
		if !ok {
			return fmt.Errorf("node %s not in pool: %w", id, tree.ErrNodeNotFound)
		}
		check(*n)
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, have := range list {
		if have == s {
			return true
		}
	}
	return false
}
