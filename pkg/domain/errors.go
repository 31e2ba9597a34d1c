package domain

import (
	"errors"
	"fmt"

	"github.com/aretw0/weft/pkg/tree"
)

// ErrTransactionCommitted is returned when modifying a committed transaction.
var ErrTransactionCommitted = errors.New("transaction already committed")

// ErrTransactionOpen is returned when applying a transaction that was never committed.
var ErrTransactionOpen = errors.New("transaction not committed")

// ErrFollowUpLimit is returned when plugin follow-up transactions recurse
// past the configured depth. This is a configuration error in the plugin
// set, never a silent stop.
var ErrFollowUpLimit = errors.New("follow-up transaction depth exceeded")

// ErrSnapshotNotFound is returned when a document snapshot does not exist
// in a snapshot store.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrResourceNotFound is returned when a required plugin resource is absent.
var ErrResourceNotFound = errors.New("resource not found")

// TypeMismatchError reports a resource accessed as a type other than its
// stored payload type. It is recoverable: the resource stays in place and
// no memory is ever read as the wrong type.
type TypeMismatchError struct {
	Name string // resource name
	Tag  string // stored payload type
	Want string // requested payload type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("resource %q holds %s, not %s", e.Name, e.Tag, e.Want)
}

// ValidationError reports a step whose preconditions failed against the
// pool it was applied to. It aborts only the enclosing transaction.
type ValidationError struct {
	Op     string
	NodeID tree.NodeID
	Cause  error
}

func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("step %s on node %s: %v", e.Op, e.NodeID, e.Cause)
	}
	return fmt.Sprintf("step %s: %v", e.Op, e.Cause)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}
