package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"log/slog"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/codec"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/tree"
)

// Applier runs a transaction against a document state. The runtime engine
// satisfies this; tests substitute lighter implementations.
type Applier interface {
	Apply(ctx context.Context, state *domain.State, tx *domain.Transaction) (*domain.State, error)
}

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager gives each open document a single writer. Transactions against the
// same document are serialized; different documents proceed concurrently. It
// uses reference counting to garbage collect unused locks.
type Manager struct {
	store    ports.SnapshotStore
	applier  Applier
	payloads *codec.PayloadRegistry
	poolOpts []tree.Option

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	logger *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithPayloadRegistry sets the codec registry used to persist plugin
// resources alongside the document tree.
func WithPayloadRegistry(reg *codec.PayloadRegistry) Option {
	return func(m *Manager) {
		m.payloads = reg
	}
}

// WithPoolOptions forwards pool options to every decoded document, for
// example a cache hook feeding metrics.
func WithPoolOptions(opts ...tree.Option) Option {
	return func(m *Manager) {
		m.poolOpts = opts
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager over the given snapshot store.
func NewManager(store ports.SnapshotStore, applier Applier, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		applier: applier,
		locks:   make(map[string]*lockEntry),
		logger:  logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(docID) after
// unlocking.
func (m *Manager) acquire(docID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[docID]
	if !exists {
		entry = &lockEntry{}
		m.locks[docID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches
// zero.
func (m *Manager) release(docID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[docID]
	if !exists {
		return // Should not happen if paired correctly
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, docID)
	}
}

// Load retrieves an existing document from the store.
func (m *Manager) Load(ctx context.Context, docID string) (*domain.State, error) {
	var state *domain.State
	err := m.WithLock(ctx, docID, func(ctx context.Context) error {
		var err error
		state, err = m.load(ctx, docID)
		return err
	})
	return state, err
}

// LoadOrCreate tries to load a document. If not found, it calls create for a
// fresh state and persists it immediately to reserve the ID.
func (m *Manager) LoadOrCreate(ctx context.Context, docID string, create func() (*domain.State, error)) (*domain.State, error) {
	var state *domain.State
	err := m.WithLock(ctx, docID, func(ctx context.Context) error {
		var err error
		state, err = m.load(ctx, docID)
		if err == nil {
			return nil
		}

		if !errors.Is(err, domain.ErrSnapshotNotFound) {
			return fmt.Errorf("failed to check document existence: %w", err)
		}

		state, err = create()
		if err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}

		if err := m.save(ctx, docID, state); err != nil {
			return fmt.Errorf("failed to initialize document: %w", err)
		}
		return nil
	})
	return state, err
}

// Apply loads the document, runs the transaction through the applier and
// persists the accepted state, all under the document's lock. A filtered
// transaction persists nothing and returns the loaded state unchanged.
func (m *Manager) Apply(ctx context.Context, docID string, tx *domain.Transaction) (*domain.State, error) {
	var state *domain.State
	err := m.WithLock(ctx, docID, func(ctx context.Context) error {
		loaded, err := m.load(ctx, docID)
		if err != nil {
			return err
		}

		next, err := m.applier.Apply(ctx, loaded, tx)
		if err != nil {
			return err
		}
		if next.Version == loaded.Version {
			// Filtered: nothing changed, nothing to persist.
			state = next
			return nil
		}

		if err := m.save(ctx, docID, next); err != nil {
			return fmt.Errorf("failed to persist document: %w", err)
		}
		state = next
		return nil
	})
	return state, err
}

// Save persists the document state.
func (m *Manager) Save(ctx context.Context, docID string, state *domain.State) error {
	return m.WithLock(ctx, docID, func(ctx context.Context) error {
		return m.save(ctx, docID, state)
	})
}

// Delete removes the document from the store.
func (m *Manager) Delete(ctx context.Context, docID string) error {
	return m.WithLock(ctx, docID, func(ctx context.Context) error {
		return m.store.Delete(ctx, docID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}

// WithLock executes a function while holding the lock for the document.
func (m *Manager) WithLock(ctx context.Context, docID string, fn func(context.Context) error) error {
	entry := m.acquire(docID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(docID)
	}()

	return fn(ctx)
}

func (m *Manager) load(ctx context.Context, docID string) (*domain.State, error) {
	data, err := m.store.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	state, err := codec.DecodeState(data, m.payloads, m.poolOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", docID, err)
	}
	return state, nil
}

func (m *Manager) save(ctx context.Context, docID string, state *domain.State) error {
	data, err := codec.EncodeState(state, m.payloads)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", docID, err)
	}
	return m.store.Save(ctx, docID, data)
}
