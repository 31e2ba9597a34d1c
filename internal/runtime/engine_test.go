package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/plugin"
	"github.com/aretw0/weft/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emptyManager(t *testing.T) *plugin.Manager {
	t.Helper()
	m := plugin.NewManager()
	require.NoError(t, m.Finalize())
	return m
}

func managerWith(t *testing.T, specs ...*plugin.Spec) *plugin.Manager {
	t.Helper()
	m := plugin.NewManager()
	for _, s := range specs {
		require.NoError(t, m.Register(s))
	}
	require.NoError(t, m.Finalize())
	return m
}

func commit(t *testing.T, tx *domain.Transaction) *domain.Transaction {
	t.Helper()
	require.NoError(t, tx.Commit())
	return tx
}

// The canonical editing walkthrough: an empty document gains a paragraph,
// then the paragraph is aligned, and every intermediate state stays
// readable at its own version.
func TestEngine_Apply_EditWalkthrough(t *testing.T) {
	eng := runtime.NewEngine(emptyManager(t))
	ctx := context.Background()

	root := tree.NewNode("doc")
	v0 := domain.NewState(tree.New(root))
	require.Equal(t, uint64(0), v0.Version)

	para := tree.NewNode("paragraph")
	tx1 := domain.NewTransaction(v0)
	require.NoError(t, tx1.Add(&domain.AddNodeStep{Parent: root.ID, Node: para, Pos: -1}))
	v1, err := eng.Apply(ctx, v0, commit(t, tx1))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v1.Version)
	assert.Equal(t, 2, v1.Pool.Len())

	tx2 := domain.NewTransaction(v1)
	require.NoError(t, tx2.Add(&domain.SetAttrStep{
		ID:  para.ID,
		Set: tree.Attrs{{Name: "align", Value: "center"}},
	}))
	v2, err := eng.Apply(ctx, v1, commit(t, tx2))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v2.Version)

	got, ok := v2.Pool.Get(para.ID)
	require.True(t, ok)
	align, _ := got.Attrs.Get("align")
	assert.Equal(t, "center", align)

	// Old versions are unaffected by later edits.
	assert.Equal(t, 1, v0.Pool.Len())
	prev, ok := v1.Pool.Get(para.ID)
	require.True(t, ok)
	assert.False(t, prev.Attrs.Has("align"))
}

func TestEngine_Apply_RejectsOpenTransaction(t *testing.T) {
	eng := runtime.NewEngine(emptyManager(t))
	state := domain.NewState(tree.New(tree.NewNode("doc")))

	tx := domain.NewTransaction(state)
	_, err := eng.Apply(context.Background(), state, tx)
	assert.ErrorIs(t, err, domain.ErrTransactionOpen)
}

// A committed transaction is immutable, so re-applying it to the same base
// state must give the same result.
func TestEngine_Apply_IdempotentReapply(t *testing.T) {
	eng := runtime.NewEngine(emptyManager(t))
	ctx := context.Background()

	root := tree.NewNode("doc")
	v0 := domain.NewState(tree.New(root))

	tx := domain.NewTransaction(v0)
	require.NoError(t, tx.Add(&domain.AddNodeStep{Parent: root.ID, Node: tree.NewNode("paragraph"), Pos: -1}))
	commit(t, tx)

	first, err := eng.Apply(ctx, v0, tx)
	require.NoError(t, err)
	second, err := eng.Apply(ctx, v0, tx)
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.Pool.Len(), second.Pool.Len())

	ids1, err := first.Pool.CollectMatching(ctx, tree.Query{}, 1)
	require.NoError(t, err)
	ids2, err := second.Pool.CollectMatching(ctx, tree.Query{}, 1)
	require.NoError(t, err)
	assert.Equal(t, ids1, ids2)
}

type vetoBehavior struct {
	plugin.BaseBehavior
	metaKey string
}

func (b *vetoBehavior) FilterTransaction(ctx context.Context, tx *domain.Transaction, state *domain.State) bool {
	_, blocked := tx.Meta[b.metaKey]
	return !blocked
}

func TestEngine_Apply_Veto(t *testing.T) {
	guard := &plugin.Spec{
		Metadata: plugin.Metadata{Name: "readonly-guard"},
		Config:   plugin.DefaultConfig(),
		Behavior: &vetoBehavior{metaKey: "blocked"},
	}

	var filtered []*domain.TransactionEvent
	eng := runtime.NewEngine(managerWith(t, guard), runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnTransactionFiltered: func(_ context.Context, ev *domain.TransactionEvent) {
			filtered = append(filtered, ev)
		},
	}))

	root := tree.NewNode("doc")
	state := domain.NewState(tree.New(root))

	tx := domain.NewTransaction(state)
	require.NoError(t, tx.Add(&domain.AddNodeStep{Parent: root.ID, Node: tree.NewNode("paragraph"), Pos: -1}))
	require.NoError(t, tx.SetMeta("blocked", true))
	commit(t, tx)

	got, err := eng.Apply(context.Background(), state, tx)
	require.NoError(t, err, "a veto is not an error")
	assert.Same(t, state, got, "the input state comes back unchanged")
	require.Len(t, filtered, 1)
	assert.Equal(t, "readonly-guard", filtered[0].Plugin)
}

func TestEngine_Apply_FailedStepKeepsState(t *testing.T) {
	var failed []*domain.TransactionEvent
	eng := runtime.NewEngine(emptyManager(t), runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnTransactionFailed: func(_ context.Context, ev *domain.TransactionEvent) {
			failed = append(failed, ev)
		},
	}))

	state := domain.NewState(tree.New(tree.NewNode("doc")))
	tx := domain.NewTransaction(state)
	require.NoError(t, tx.Add(&domain.RemoveNodeStep{ID: "ghost"}))
	commit(t, tx)

	next, err := eng.Apply(context.Background(), state, tx)
	require.Error(t, err)
	assert.ErrorIs(t, err, tree.ErrNodeNotFound)
	assert.Nil(t, next)
	assert.Equal(t, uint64(0), state.Version, "the input state remains current")
	assert.Len(t, failed, 1)
}

// appendOnce appends one follow-up transaction the first time it sees a
// transaction without its marker meta key.
type appendOnce struct {
	plugin.BaseBehavior
	nodeType string
}

func (b *appendOnce) AppendTransaction(ctx context.Context, applied []*domain.Transaction, oldState, newState *domain.State) (*domain.Transaction, error) {
	for _, tx := range applied {
		if tx.Meta["follow-up"] == b.nodeType {
			return nil, nil
		}
	}
	follow := domain.NewTransaction(newState)
	if err := follow.Add(&domain.AddNodeStep{
		Parent: newState.Pool.RootID(),
		Node:   tree.NewNode(b.nodeType),
		Pos:    -1,
	}); err != nil {
		return nil, err
	}
	if err := follow.SetMeta("follow-up", b.nodeType); err != nil {
		return nil, err
	}
	if err := follow.Commit(); err != nil {
		return nil, err
	}
	return follow, nil
}

func TestEngine_Apply_FollowUp(t *testing.T) {
	auditor := &plugin.Spec{
		Metadata: plugin.Metadata{Name: "auditor"},
		Config:   plugin.DefaultConfig(),
		Behavior: &appendOnce{nodeType: "audit-note"},
	}

	var followUps []*domain.TransactionEvent
	eng := runtime.NewEngine(managerWith(t, auditor), runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnFollowUp: func(_ context.Context, ev *domain.TransactionEvent) {
			followUps = append(followUps, ev)
		},
	}))

	root := tree.NewNode("doc")
	v0 := domain.NewState(tree.New(root))

	tx := domain.NewTransaction(v0)
	require.NoError(t, tx.Add(&domain.AddNodeStep{Parent: root.ID, Node: tree.NewNode("paragraph"), Pos: -1}))
	commit(t, tx)

	final, err := eng.Apply(context.Background(), v0, tx)
	require.NoError(t, err)

	// One user transaction plus one follow-up: two version bumps.
	assert.Equal(t, uint64(2), final.Version)
	assert.Equal(t, 3, final.Pool.Len())
	require.Len(t, followUps, 1)
	assert.Equal(t, "auditor", followUps[0].Plugin)
}

// appendAlways appends forever; the engine must cut it off at the depth
// bound instead of recursing without end.
type appendAlways struct {
	plugin.BaseBehavior
}

func (appendAlways) AppendTransaction(ctx context.Context, applied []*domain.Transaction, oldState, newState *domain.State) (*domain.Transaction, error) {
	follow := domain.NewTransaction(newState)
	if err := follow.Add(&domain.AddNodeStep{
		Parent: newState.Pool.RootID(),
		Node:   tree.NewNode("echo"),
		Pos:    -1,
	}); err != nil {
		return nil, err
	}
	if err := follow.Commit(); err != nil {
		return nil, err
	}
	return follow, nil
}

func TestEngine_Apply_FollowUpLimit(t *testing.T) {
	echo := &plugin.Spec{
		Metadata: plugin.Metadata{Name: "echo"},
		Config:   plugin.DefaultConfig(),
		Behavior: appendAlways{},
	}

	t.Run("Default Bound", func(t *testing.T) {
		eng := runtime.NewEngine(managerWith(t, echo))
		state := domain.NewState(tree.New(tree.NewNode("doc")))

		tx := domain.NewTransaction(state)
		commit(t, tx)

		_, err := eng.Apply(context.Background(), state, tx)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrFollowUpLimit)
	})

	t.Run("Custom Bound", func(t *testing.T) {
		eng := runtime.NewEngine(managerWith(t, echo), runtime.WithMaxFollowUps(2))
		state := domain.NewState(tree.New(tree.NewNode("doc")))

		tx := domain.NewTransaction(state)
		commit(t, tx)

		_, err := eng.Apply(context.Background(), state, tx)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrFollowUpLimit)
	})
}

// appendBlocked proposes one follow-up carrying the veto marker another
// plugin filters on.
type appendBlocked struct {
	plugin.BaseBehavior
}

func (appendBlocked) AppendTransaction(ctx context.Context, applied []*domain.Transaction, oldState, newState *domain.State) (*domain.Transaction, error) {
	for _, tx := range applied {
		if tx.Meta["follow-up"] == "memo" {
			return nil, nil
		}
	}
	follow := domain.NewTransaction(newState)
	if err := follow.Add(&domain.AddNodeStep{
		Parent: newState.Pool.RootID(),
		Node:   tree.NewNode("memo"),
		Pos:    -1,
	}); err != nil {
		return nil, err
	}
	if err := follow.SetMeta("follow-up", "memo"); err != nil {
		return nil, err
	}
	if err := follow.SetMeta("blocked", true); err != nil {
		return nil, err
	}
	if err := follow.Commit(); err != nil {
		return nil, err
	}
	return follow, nil
}

// appendRecorder records the applied-transaction IDs it is shown.
type appendRecorder struct {
	plugin.BaseBehavior
	seen [][]string
}

func (b *appendRecorder) AppendTransaction(ctx context.Context, applied []*domain.Transaction, oldState, newState *domain.State) (*domain.Transaction, error) {
	ids := make([]string, len(applied))
	for i, tx := range applied {
		ids[i] = tx.ID
	}
	b.seen = append(b.seen, ids)
	return nil, nil
}

// A follow-up that gets vetoed was never applied, so plugins running after
// it must not see it in the applied list.
func TestEngine_Apply_VetoedFollowUpNotReportedApplied(t *testing.T) {
	proposer := &plugin.Spec{
		Metadata: plugin.Metadata{Name: "proposer"},
		Config:   plugin.Config{Enabled: true, Priority: 10},
		Behavior: appendBlocked{},
	}
	gate := &plugin.Spec{
		Metadata: plugin.Metadata{Name: "gate"},
		Config:   plugin.Config{Enabled: true, Priority: 5},
		Behavior: &vetoBehavior{metaKey: "blocked"},
	}
	recorder := &appendRecorder{}
	audit := &plugin.Spec{
		Metadata: plugin.Metadata{Name: "audit"},
		Config:   plugin.DefaultConfig(),
		Behavior: recorder,
	}

	eng := runtime.NewEngine(managerWith(t, proposer, gate, audit))

	root := tree.NewNode("doc")
	v0 := domain.NewState(tree.New(root))

	tx := domain.NewTransaction(v0)
	require.NoError(t, tx.Add(&domain.AddNodeStep{Parent: root.ID, Node: tree.NewNode("paragraph"), Pos: -1}))
	commit(t, tx)

	final, err := eng.Apply(context.Background(), v0, tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), final.Version, "a vetoed follow-up bumps nothing")
	assert.Equal(t, 2, final.Pool.Len())

	// The recorder runs after the vetoed follow-up; only the user
	// transaction counts as applied.
	require.NotEmpty(t, recorder.seen)
	for _, ids := range recorder.seen {
		assert.Equal(t, []string{tx.ID}, ids)
	}
}

type nodeCountField struct{}

func (nodeCountField) Init(base *domain.State) domain.Resource {
	return domain.NewResource(base.Pool.Len())
}

func (nodeCountField) Apply(ctx context.Context, tx *domain.Transaction, old domain.Resource, oldState, newState *domain.State) (domain.Resource, error) {
	return domain.NewResource(newState.Pool.Len()), nil
}

func TestEngine_Apply_StateFields(t *testing.T) {
	counter := &plugin.Spec{
		Metadata: plugin.Metadata{Name: "node-count"},
		Config:   plugin.DefaultConfig(),
		State:    nodeCountField{},
	}

	m := managerWith(t, counter)
	eng := runtime.NewEngine(m)

	root := tree.NewNode("doc")
	v0 := domain.NewState(tree.New(root))
	require.NoError(t, m.InitResources(v0))

	count, ok := domain.GetResource[int](v0.Resources, "node-count")
	require.True(t, ok)
	assert.Equal(t, 1, count)

	tx := domain.NewTransaction(v0)
	require.NoError(t, tx.Add(&domain.AddNodeStep{Parent: root.ID, Node: tree.NewNode("paragraph"), Pos: -1}))
	commit(t, tx)

	v1, err := eng.Apply(context.Background(), v0, tx)
	require.NoError(t, err)

	count, ok = domain.GetResource[int](v1.Resources, "node-count")
	require.True(t, ok)
	assert.Equal(t, 2, count)

	// The old state's resource is untouched.
	count, _ = domain.GetResource[int](v0.Resources, "node-count")
	assert.Equal(t, 1, count)
}

func TestEngine_Apply_Validator(t *testing.T) {
	rejectHeadings := func(pool *tree.Pool) error {
		count, err := pool.CountMatching(context.Background(), tree.Query{
			Match: func(n *tree.Node) bool { return n.Type == "heading" },
		}, 1)
		if err != nil {
			return err
		}
		if count > 0 {
			return errors.New("headings are not allowed here")
		}
		return nil
	}

	eng := runtime.NewEngine(emptyManager(t), runtime.WithValidator(rejectHeadings))

	root := tree.NewNode("doc")
	state := domain.NewState(tree.New(root))

	tx := domain.NewTransaction(state)
	require.NoError(t, tx.Add(&domain.AddNodeStep{Parent: root.ID, Node: tree.NewNode("heading"), Pos: -1}))
	commit(t, tx)

	_, err := eng.Apply(context.Background(), state, tx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "headings are not allowed")
	assert.Equal(t, 1, state.Pool.Len())
}
