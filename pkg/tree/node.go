package tree

import "github.com/google/uuid"

// NodeID uniquely identifies a node within a pool.
type NodeID string

// NewNodeID generates a fresh random node identifier.
func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}

// Attr is a single named attribute value.
type Attr struct {
	Name  string `json:"name" yaml:"name"`
	Value any    `json:"value" yaml:"value"`
}

// Attrs is an ordered attribute list. Order is insertion order, which makes
// serialization deterministic without sorting. All mutating helpers return a
// fresh copy; an Attrs value is never modified in place.
type Attrs []Attr

// Get returns the value for the named attribute.
func (a Attrs) Get(name string) (any, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return nil, false
}

// Has reports whether the named attribute is present.
func (a Attrs) Has(name string) bool {
	_, ok := a.Get(name)
	return ok
}

// With returns a copy with the named attribute set. An existing attribute
// keeps its position; a new one is appended.
func (a Attrs) With(name string, value any) Attrs {
	out := make(Attrs, len(a), len(a)+1)
	copy(out, a)
	for i, attr := range out {
		if attr.Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Attr{Name: name, Value: value})
}

// Without returns a copy with the named attribute removed.
func (a Attrs) Without(name string) Attrs {
	out := make(Attrs, 0, len(a))
	for _, attr := range a {
		if attr.Name != name {
			out = append(out, attr)
		}
	}
	return out
}

// Equal reports attribute-list equality, including order.
func (a Attrs) Equal(other Attrs) bool {
	if len(a) != len(other) {
		return false
	}
	for i, attr := range a {
		if attr.Name != other[i].Name || attr.Value != other[i].Value {
			return false
		}
	}
	return true
}

// Mark is a named annotation attached to a node (e.g. "bold", "comment").
// Marks have value semantics: two marks with the same type and attributes
// are the same mark.
type Mark struct {
	Type  string `json:"type" yaml:"type"`
	Attrs Attrs  `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

// Equal reports mark equality by type and attributes.
func (m Mark) Equal(other Mark) bool {
	return m.Type == other.Type && m.Attrs.Equal(other.Attrs)
}

// Marks is a set of marks, deduplicated by Mark.Equal.
type Marks []Mark

// Contains reports whether the set holds an equal mark.
func (ms Marks) Contains(m Mark) bool {
	for _, have := range ms {
		if have.Equal(m) {
			return true
		}
	}
	return false
}

// With returns a copy with the mark added. Adding a mark that is already
// present returns an equal set.
func (ms Marks) With(m Mark) Marks {
	if ms.Contains(m) {
		return ms
	}
	out := make(Marks, len(ms), len(ms)+1)
	copy(out, ms)
	return append(out, m)
}

// Without returns a copy with the equal mark removed.
func (ms Marks) Without(m Mark) Marks {
	out := make(Marks, 0, len(ms))
	for _, have := range ms {
		if !have.Equal(m) {
			out = append(out, have)
		}
	}
	return out
}

// Node is one element of the document tree. Nodes are immutable values:
// every edit produces a new Node, and the pool takes care of sharing the
// untouched remainder of the tree between versions.
type Node struct {
	ID    NodeID `json:"id" yaml:"id"`
	Type  string `json:"type" yaml:"type"`
	Attrs Attrs  `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Marks Marks  `json:"marks,omitempty" yaml:"marks,omitempty"`

	// Content lists child node IDs in document order. Leaf nodes carry
	// Text instead; a node never has both.
	Content []NodeID `json:"content,omitempty" yaml:"content,omitempty"`
	Text    string   `json:"text,omitempty" yaml:"text,omitempty"`
}

// NewNode creates a node of the given type with a fresh ID.
func NewNode(nodeType string) Node {
	return Node{ID: NewNodeID(), Type: nodeType}
}

// WithAttrs returns a copy with the given attributes set (merged over the
// existing ones).
func (n Node) WithAttrs(set Attrs) Node {
	attrs := n.Attrs
	for _, attr := range set {
		attrs = attrs.With(attr.Name, attr.Value)
	}
	n.Attrs = attrs
	return n
}

// WithoutAttrs returns a copy with the named attributes removed.
func (n Node) WithoutAttrs(names ...string) Node {
	attrs := n.Attrs
	for _, name := range names {
		attrs = attrs.Without(name)
	}
	n.Attrs = attrs
	return n
}

// WithMark returns a copy with the mark added.
func (n Node) WithMark(m Mark) Node {
	n.Marks = n.Marks.With(m)
	return n
}

// WithoutMark returns a copy with the mark removed.
func (n Node) WithoutMark(m Mark) Node {
	n.Marks = n.Marks.Without(m)
	return n
}

func (n Node) withChildInserted(id NodeID, pos int) Node {
	if pos < 0 || pos > len(n.Content) {
		pos = len(n.Content)
	}
	content := make([]NodeID, 0, len(n.Content)+1)
	content = append(content, n.Content[:pos]...)
	content = append(content, id)
	content = append(content, n.Content[pos:]...)
	n.Content = content
	return n
}

func (n Node) withChildRemoved(id NodeID) Node {
	content := make([]NodeID, 0, len(n.Content))
	for _, child := range n.Content {
		if child != id {
			content = append(content, child)
		}
	}
	n.Content = content
	return n
}
