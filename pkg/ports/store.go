package ports

import "context"

// SnapshotStore persists exported document snapshots (the byte stream
// produced by codec.EncodeState) keyed by document ID. It is the contract
// between this core and persistence collaborators; the engine itself never
// requires one.
type SnapshotStore interface {
	// Save persists the snapshot for a document ID, replacing any
	// previous snapshot.
	Save(ctx context.Context, docID string, snapshot []byte) error

	// Load retrieves the snapshot for a document ID.
	// Returns domain.ErrSnapshotNotFound if it does not exist.
	Load(ctx context.Context, docID string) ([]byte, error)

	// Delete removes the snapshot for a document ID.
	Delete(ctx context.Context, docID string) error

	// List returns the IDs of all stored documents.
	List(ctx context.Context) ([]string, error)
}
