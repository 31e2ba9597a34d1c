package domain

import (
	"fmt"

	"github.com/aretw0/weft/pkg/tree"
	"github.com/google/uuid"
)

// Transaction is an ordered batch of steps applied atomically against one
// state version, plus free-form metadata. A transaction is opened against a
// state, steps are added, and Commit seals it. Once committed it is
// immutable, which makes re-applying it from the same base version
// idempotent (used for retries after transient plugin errors).
type Transaction struct {
	ID          string
	BaseVersion uint64
	Steps       []Step
	Meta        map[string]any

	committed bool
}

// NewTransaction opens a transaction against the given state.
func NewTransaction(base *State) *Transaction {
	return &Transaction{
		ID:          uuid.NewString(),
		BaseVersion: base.Version,
		Meta:        make(map[string]any),
	}
}

// Add appends a step. Fails once the transaction is committed.
func (t *Transaction) Add(step Step) error {
	if t.committed {
		return ErrTransactionCommitted
	}
	t.Steps = append(t.Steps, step)
	return nil
}

// SetMeta sets a metadata entry. Fails once the transaction is committed.
func (t *Transaction) SetMeta(key string, value any) error {
	if t.committed {
		return ErrTransactionCommitted
	}
	t.Meta[key] = value
	return nil
}

// Commit seals the transaction. Committing twice is an error.
func (t *Transaction) Commit() error {
	if t.committed {
		return ErrTransactionCommitted
	}
	t.committed = true
	return nil
}

// Committed reports whether the transaction has been sealed.
func (t *Transaction) Committed() bool {
	return t.committed
}

// Fold applies every step over the pool in order. Because pools are
// immutable, a failure leaves the input pool untouched and the whole fold
// is atomic.
func (t *Transaction) Fold(pool *tree.Pool) (*tree.Pool, error) {
	next := pool
	for i, step := range t.Steps {
		var err error
		next, err = step.Apply(next)
		if err != nil {
			return nil, fmt.Errorf("transaction %s step %d/%d: %w", t.ID, i+1, len(t.Steps), err)
		}
	}
	return next, nil
}

// Inverted produces the committed reverse transaction against the pool this
// transaction would apply to: each step inverted against its own pre-state,
// in reverse order. Consumed by undo-history collaborators.
func (t *Transaction) Inverted(pre *tree.Pool) (*Transaction, error) {
	if !t.committed {
		return nil, ErrTransactionOpen
	}
	inv := &Transaction{
		ID:          uuid.NewString(),
		BaseVersion: t.BaseVersion,
		Meta:        map[string]any{"inverts": t.ID},
	}
	pool := pre
	for i, step := range t.Steps {
		stepInv, err := step.Invert(pool)
		if err != nil {
			return nil, fmt.Errorf("invert transaction %s step %d/%d: %w", t.ID, i+1, len(t.Steps), err)
		}
		pool, err = step.Apply(pool)
		if err != nil {
			return nil, fmt.Errorf("invert transaction %s step %d/%d: %w", t.ID, i+1, len(t.Steps), err)
		}
		inv.Steps = append(inv.Steps, stepInv)
	}
	for i, j := 0, len(inv.Steps)-1; i < j; i, j = i+1, j-1 {
		inv.Steps[i], inv.Steps[j] = inv.Steps[j], inv.Steps[i]
	}
	inv.committed = true
	return inv, nil
}

// Sealed reconstructs a committed transaction from its parts, e.g. after
// deserialization. The result is immutable like any committed transaction.
func Sealed(id string, baseVersion uint64, steps []Step, meta map[string]any) *Transaction {
	if meta == nil {
		meta = make(map[string]any)
	}
	return &Transaction{
		ID:          id,
		BaseVersion: baseVersion,
		Steps:       steps,
		Meta:        meta,
		committed:   true,
	}
}
