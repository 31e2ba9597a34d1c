/*
Package ports defines the driven ports (interfaces) of the weft core.

These interfaces decouple the engine from external implementations,
allowing snapshots to be persisted to various storage backends without the
core knowing about any of them.

# Key Interfaces

  - SnapshotStore: persists exported document snapshots by document ID.

The package also ships RunSnapshotStoreContract, a reusable test suite that
every adapter runs against a real instance to prove contract compliance.
*/
package ports
