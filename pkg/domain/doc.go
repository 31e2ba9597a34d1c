/*
Package domain contains the core models of the weft transaction protocol.

It defines the edit vocabulary (Step variants and Transactions), the
immutable versioned State combining a tree.Pool with plugin resources, and
the type-safe Resource container. This package is kept free of persistence
and I/O concerns, following Hexagonal Architecture principles.

# Key Entities

  - Step: one atomic, invertible edit (AddNode, RemoveNode, SetAttr,
    AddMark, RemoveMark, Batch).
  - Transaction: an ordered, atomically-applied batch of steps plus
    metadata, sealed by Commit.
  - State: an immutable snapshot (version, pool, resources); applying a
    transaction yields a new State and never disturbs old ones.
  - Resource / ResourceMap: type-erased plugin state, reachable only
    through checked type assertions so a mismatch fails closed.
*/
package domain
