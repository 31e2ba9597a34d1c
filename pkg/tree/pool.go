package tree

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

var (
	// ErrNodeNotFound is returned when a node ID does not exist in the pool.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when adding a node whose ID is already taken.
	ErrDuplicateNode = errors.New("node already exists")

	// ErrRemoveRoot is returned when attempting to remove the document root.
	ErrRemoveRoot = errors.New("cannot remove root node")

	// ErrLeafContent is returned when adding children under a text leaf.
	ErrLeafContent = errors.New("text node cannot have children")
)

// Pool is an immutable snapshot of one document tree. Every edit returns a
// new Pool; the node store and parent index are persistent tries, so the two
// versions share all untouched structure by reference. Any number of readers
// may traverse a Pool while newer versions are being produced.
type Pool struct {
	nodes   *hamtNode[*Node]
	parents *hamtNode[NodeID]
	size    int
	rootID  NodeID
	version uint64

	// cache and logger are shared by every version derived from the same
	// New call. Cache entries key on the version, so sharing is safe.
	cache  *queryCache
	logger *slog.Logger
}

// Option configures a pool at construction time.
type Option func(*Pool)

// WithLogger sets the diagnostic logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithCacheCapacity bounds the number of retained query results.
func WithCacheCapacity(n int) Option {
	return func(p *Pool) {
		p.cache.capacity = n
	}
}

// WithCacheHook registers a callback for cache hit/miss/bypass events.
func WithCacheHook(hook func(CacheEvent)) Option {
	return func(p *Pool) {
		p.cache.hook = hook
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// New creates a version-0 pool containing only the given root node. The
// root must be childless: a one-node pool cannot resolve content
// references, so a root with Content panics. Multi-node trees go through
// Build, which validates reachability and single-parentage.
func New(root Node, opts ...Option) *Pool {
	if len(root.Content) > 0 {
		panic("tree: New root must be childless; use Build for multi-node trees")
	}
	p := &Pool{
		rootID: root.ID,
		cache:  newQueryCache(),
		logger: discardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.nodes, _ = hamtInsert[*Node](nil, hashKey(root.ID), 0, hamtLeaf[*Node]{key: root.ID, value: &root})
	p.size = 1
	return p
}

// Get returns the node with the given ID.
func (p *Pool) Get(id NodeID) (*Node, bool) {
	return hamtGet(p.nodes, hashKey(id), 0, id)
}

// Parent returns the parent of the given node. The root has no parent.
func (p *Pool) Parent(id NodeID) (NodeID, bool) {
	return hamtGet(p.parents, hashKey(id), 0, id)
}

// RootID returns the ID of the document root.
func (p *Pool) RootID() NodeID {
	return p.rootID
}

// Root returns the document root node.
func (p *Pool) Root() *Node {
	root, _ := p.Get(p.rootID)
	return root
}

// Version returns the pool version, incremented by one per edit.
func (p *Pool) Version() uint64 {
	return p.version
}

// Len returns the number of nodes in the pool.
func (p *Pool) Len() int {
	return p.size
}

// derive produces the next pool version sharing cache and logger.
func (p *Pool) derive() *Pool {
	next := *p
	next.version = p.version + 1
	return &next
}

func (p *Pool) setNode(n *Node) {
	var delta int
	p.nodes, delta = hamtInsert(p.nodes, hashKey(n.ID), 0, hamtLeaf[*Node]{key: n.ID, value: n})
	p.size += delta
}

func (p *Pool) deleteNode(id NodeID) {
	var removed int
	p.nodes, removed = hamtDelete(p.nodes, hashKey(id), 0, id)
	p.size -= removed
	p.parents, _ = hamtDelete(p.parents, hashKey(id), 0, id)
}

func (p *Pool) setParent(child, parent NodeID) {
	p.parents, _ = hamtInsert(p.parents, hashKey(child), 0, hamtLeaf[NodeID]{key: child, value: parent})
}

// WithNodeAdded returns a new pool with the node attached as the last child
// of the given parent.
func (p *Pool) WithNodeAdded(parentID NodeID, n Node) (*Pool, error) {
	return p.WithNodeInserted(parentID, n, -1)
}

// WithNodeInserted returns a new pool with the node attached as a child of
// the given parent at position pos. A negative or out-of-range pos appends.
func (p *Pool) WithNodeInserted(parentID NodeID, n Node, pos int) (*Pool, error) {
	parent, ok := p.Get(parentID)
	if !ok {
		return nil, fmt.Errorf("add node %s: parent %s: %w", n.ID, parentID, ErrNodeNotFound)
	}
	if parent.Text != "" {
		return nil, fmt.Errorf("add node %s under %s: %w", n.ID, parentID, ErrLeafContent)
	}
	if _, exists := p.Get(n.ID); exists {
		return nil, fmt.Errorf("add node %s: %w", n.ID, ErrDuplicateNode)
	}

	next := p.derive()
	updated := parent.withChildInserted(n.ID, pos)
	next.setNode(&updated)
	next.setNode(&n)
	next.setParent(n.ID, parentID)
	next.logger.Debug("node added", "id", n.ID, "parent", parentID, "version", next.version)
	return next, nil
}

// WithNodeRemoved returns a new pool with the node and its entire subtree
// removed. The root cannot be removed.
func (p *Pool) WithNodeRemoved(id NodeID) (*Pool, error) {
	if id == p.rootID {
		return nil, fmt.Errorf("remove node %s: %w", id, ErrRemoveRoot)
	}
	if _, ok := p.Get(id); !ok {
		return nil, fmt.Errorf("remove node %s: %w", id, ErrNodeNotFound)
	}
	subtree, err := p.Descendants(id)
	if err != nil {
		return nil, err
	}

	next := p.derive()
	if parentID, ok := p.Parent(id); ok {
		if parent, ok := p.Get(parentID); ok {
			updated := parent.withChildRemoved(id)
			next.setNode(&updated)
		}
	}
	next.deleteNode(id)
	for _, descendant := range subtree {
		next.deleteNode(descendant)
	}
	next.logger.Debug("node removed", "id", id, "subtree", len(subtree), "version", next.version)
	return next, nil
}

// WithAttrsSet returns a new pool with the given attributes merged into the
// node and the named attributes removed.
func (p *Pool) WithAttrsSet(id NodeID, set Attrs, unset []string) (*Pool, error) {
	n, ok := p.Get(id)
	if !ok {
		return nil, fmt.Errorf("set attrs on %s: %w", id, ErrNodeNotFound)
	}
	next := p.derive()
	updated := n.WithAttrs(set).WithoutAttrs(unset...)
	next.setNode(&updated)
	return next, nil
}

// WithMarkAdded returns a new pool with the mark added to the node. Adding
// a mark that is already present still produces a new pool version.
func (p *Pool) WithMarkAdded(id NodeID, m Mark) (*Pool, error) {
	n, ok := p.Get(id)
	if !ok {
		return nil, fmt.Errorf("add mark on %s: %w", id, ErrNodeNotFound)
	}
	next := p.derive()
	updated := n.WithMark(m)
	next.setNode(&updated)
	return next, nil
}

// WithMarkRemoved returns a new pool with the mark removed from the node.
func (p *Pool) WithMarkRemoved(id NodeID, m Mark) (*Pool, error) {
	n, ok := p.Get(id)
	if !ok {
		return nil, fmt.Errorf("remove mark on %s: %w", id, ErrNodeNotFound)
	}
	next := p.derive()
	updated := n.WithoutMark(m)
	next.setNode(&updated)
	return next, nil
}
