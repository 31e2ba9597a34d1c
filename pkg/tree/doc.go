/*
Package tree implements the persistent, structurally-shared document tree.

A Pool is an immutable snapshot of one document: a persistent node store, a
parent index, and an advisory query-result cache. Every edit (WithNodeAdded,
WithAttrsSet, ...) returns a new Pool that shares all untouched structure
with its predecessor by reference, so arbitrarily many older versions stay
alive and traversable at the cost of only the edited path.

# Key Entities

  - Node: one immutable element of the document (type, attrs, marks, content).
  - Mark: a value-semantic annotation on a node (e.g. emphasis, comment).
  - Pool: one immutable, versioned tree snapshot.
  - Query: a read-only predicate evaluated via QueryReduce across a bounded
    worker set.

Traversals use explicit work stacks, so document depth never translates into
call-stack depth. Diagnostics go through a slog.Logger that discards
everything unless one is injected with WithLogger.
*/
package tree
