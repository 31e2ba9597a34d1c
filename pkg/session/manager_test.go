package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/session"
	"github.com/aretw0/weft/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// foldApplier folds committed transactions straight into the pool, without
// the full plugin pipeline.
type foldApplier struct{}

func (foldApplier) Apply(_ context.Context, state *domain.State, tx *domain.Transaction) (*domain.State, error) {
	next, err := tx.Fold(state.Pool)
	if err != nil {
		return nil, err
	}
	return state.Next(next), nil
}

// vetoApplier returns the input state untouched, like a filtered transaction.
type vetoApplier struct{}

func (vetoApplier) Apply(_ context.Context, state *domain.State, _ *domain.Transaction) (*domain.State, error) {
	return state, nil
}

func newDocState(t *testing.T) *domain.State {
	t.Helper()
	pool, err := tree.Build("doc", []tree.Node{
		{ID: "doc", Type: "doc", Content: []tree.NodeID{"p1"}},
		{ID: "p1", Type: "paragraph", Text: "hello"},
	})
	require.NoError(t, err)
	return domain.NewState(pool)
}

func TestManager_LoadOrCreate(t *testing.T) {
	ctx := context.Background()
	mgr := session.NewManager(memory.NewStore(), foldApplier{})

	created := 0
	create := func() (*domain.State, error) {
		created++
		return newDocState(t), nil
	}

	state, err := mgr.LoadOrCreate(ctx, "doc-1", create)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 1, created)

	// The fresh document is persisted immediately.
	docs, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, docs, "doc-1")

	// A second call loads instead of creating.
	again, err := mgr.LoadOrCreate(ctx, "doc-1", create)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, state.Pool.RootID(), again.Pool.RootID())
}

func TestManager_Load_Missing(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), foldApplier{})

	_, err := mgr.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}

func TestManager_Apply_PersistsAcceptedState(t *testing.T) {
	ctx := context.Background()
	mgr := session.NewManager(memory.NewStore(), foldApplier{})

	_, err := mgr.LoadOrCreate(ctx, "doc-1", func() (*domain.State, error) {
		return newDocState(t), nil
	})
	require.NoError(t, err)

	loaded, err := mgr.Load(ctx, "doc-1")
	require.NoError(t, err)

	tx := domain.NewTransaction(loaded)
	require.NoError(t, tx.Add(&domain.AddNodeStep{
		Parent: "doc",
		Node:   tree.Node{ID: "p2", Type: "paragraph", Text: "world"},
		Pos:    1,
	}))
	require.NoError(t, tx.Commit())

	next, err := mgr.Apply(ctx, "doc-1", tx)
	require.NoError(t, err)
	assert.Equal(t, loaded.Version+1, next.Version)

	// Reload from the store and confirm the edit survived the round trip.
	reloaded, err := mgr.Load(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, next.Version, reloaded.Version)
	_, ok := reloaded.Pool.Get("p2")
	assert.True(t, ok)
}

func TestManager_Apply_FilteredSkipsPersist(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	seed := session.NewManager(store, foldApplier{})
	initial, err := seed.LoadOrCreate(ctx, "doc-1", func() (*domain.State, error) {
		return newDocState(t), nil
	})
	require.NoError(t, err)

	before, err := store.Load(ctx, "doc-1")
	require.NoError(t, err)

	mgr := session.NewManager(store, vetoApplier{})
	tx := domain.NewTransaction(initial)
	require.NoError(t, tx.Commit())

	state, err := mgr.Apply(ctx, "doc-1", tx)
	require.NoError(t, err)
	assert.Equal(t, initial.Version, state.Version)

	after, err := store.Load(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, before, after, "Filtered transactions must not rewrite the snapshot")
}

func TestManager_Delete(t *testing.T) {
	ctx := context.Background()
	mgr := session.NewManager(memory.NewStore(), foldApplier{})

	_, err := mgr.LoadOrCreate(ctx, "doc-1", func() (*domain.State, error) {
		return newDocState(t), nil
	})
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(ctx, "doc-1"))
	_, err = mgr.Load(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}

func TestManager_WithLock_SerializesPerDocument(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), foldApplier{})
	ctx := context.Background()

	const workers = 16
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mgr.WithLock(ctx, "doc-1", func(context.Context) error {
				// Unsynchronized increment; the lock is the only guard.
				counter++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestManager_WithLock_PropagatesError(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), foldApplier{})

	sentinel := errors.New("boom")
	err := mgr.WithLock(context.Background(), "doc-1", func(context.Context) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}
