package schema

import (
	"fmt"

	"github.com/aretw0/weft/pkg/tree"
)

// ValidationError represents a single schema violation on one node.
type ValidationError struct {
	NodeID tree.NodeID // Node that failed validation
	Attr   string      // Attribute name, when the failure is attribute-level
	Reason string      // Human-readable reason for failure
	Value  any         // The value that failed validation
}

func (e *ValidationError) Error() string {
	if e.Attr == "" {
		return fmt.Sprintf("node %s: %s", e.NodeID, e.Reason)
	}
	if e.Value == nil {
		return fmt.Sprintf("node %s: attribute %q: %s", e.NodeID, e.Attr, e.Reason)
	}
	return fmt.Sprintf("node %s: attribute %q: %s (got %T)", e.NodeID, e.Attr, e.Reason, e.Value)
}

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// ValidationErrors returns all validation errors if err is an AggregateError.
// Otherwise returns nil.
func ValidationErrors(err error) []error {
	if aggr, ok := err.(*AggregateError); ok {
		return aggr.Errors
	}
	return nil
}
