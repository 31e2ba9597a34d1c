package weft_test

import (
	"context"
	"testing"

	weft "github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/codec"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/plugin"
	"github.com/aretw0/weft/pkg/schema"
	"github.com/aretw0/weft/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nodeCount struct {
	Nodes int `json:"nodes"`
}

type nodeCountField struct{}

func (nodeCountField) Init(base *domain.State) domain.Resource {
	return domain.NewResource(nodeCount{Nodes: base.Pool.Len()})
}

func (nodeCountField) Apply(_ context.Context, _ *domain.Transaction, _ domain.Resource, _, newState *domain.State) (domain.Resource, error) {
	return domain.NewResource(nodeCount{Nodes: newState.Pool.Len()}), nil
}

func counterSpec() *plugin.Spec {
	return &plugin.Spec{
		Metadata: plugin.Metadata{Name: "node-count"},
		Config:   plugin.DefaultConfig(),
		State:    nodeCountField{},
	}
}

func commitTx(t *testing.T, state *domain.State, steps ...domain.Step) *domain.Transaction {
	t.Helper()
	tx := domain.NewTransaction(state)
	for _, s := range steps {
		require.NoError(t, tx.Add(s))
	}
	require.NoError(t, tx.Commit())
	return tx
}

func TestNew_PluginDependencyProblemsSurface(t *testing.T) {
	t.Run("Missing Dependency", func(t *testing.T) {
		_, err := weft.New(weft.WithPlugins(&plugin.Spec{
			Metadata: plugin.Metadata{Name: "toolbar", Dependencies: []string{"menu"}},
			Config:   plugin.DefaultConfig(),
		}))
		require.Error(t, err)

		var depErr *plugin.DependencyError
		require.ErrorAs(t, err, &depErr)
		require.Len(t, depErr.Missing, 1)
		assert.Equal(t, "menu", depErr.Missing[0].Dependency)
	})

	t.Run("Cycle", func(t *testing.T) {
		_, err := weft.New(weft.WithPlugins(
			&plugin.Spec{
				Metadata: plugin.Metadata{Name: "a", Dependencies: []string{"b"}},
				Config:   plugin.DefaultConfig(),
			},
			&plugin.Spec{
				Metadata: plugin.Metadata{Name: "b", Dependencies: []string{"a"}},
				Config:   plugin.DefaultConfig(),
			},
		))
		require.Error(t, err)

		var depErr *plugin.DependencyError
		require.ErrorAs(t, err, &depErr)
		assert.NotEmpty(t, depErr.Cycles)
	})
}

func TestEngine_EditWalkthrough(t *testing.T) {
	eng, err := weft.New(weft.WithPlugins(counterSpec()))
	require.NoError(t, err)

	state, err := eng.NewDocument(tree.NewNode("doc"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), state.Version)

	count, ok := domain.GetResource[nodeCount](state.Resources, "node-count")
	require.True(t, ok)
	assert.Equal(t, 1, count.Nodes)

	tx := commitTx(t, state, &domain.AddNodeStep{
		Parent: state.Pool.RootID(),
		Node:   tree.Node{ID: "p1", Type: "paragraph", Text: "hello"},
	})

	next, err := eng.Apply(context.Background(), state, tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next.Version)

	count, ok = domain.GetResource[nodeCount](next.Resources, "node-count")
	require.True(t, ok)
	assert.Equal(t, 2, count.Nodes)

	// The previous state stays readable.
	assert.Equal(t, 1, state.Pool.Len())
}

func TestEngine_NewDocument_RejectsRootWithChildren(t *testing.T) {
	eng, err := weft.New()
	require.NoError(t, err)

	root := tree.NewNode("doc")
	root.Content = []tree.NodeID{"dangling"}

	_, err = eng.NewDocument(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "childless")
}

func TestEngine_WithSchema(t *testing.T) {
	s := schema.Schema{
		"doc":       {Content: []string{"paragraph"}},
		"paragraph": {Content: []string{}},
	}
	eng, err := weft.New(weft.WithSchema(s))
	require.NoError(t, err)

	t.Run("Rejects Invalid Root", func(t *testing.T) {
		_, err := eng.NewDocument(tree.NewNode("spreadsheet"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "spreadsheet")
	})

	t.Run("Rejects Invalid Transaction", func(t *testing.T) {
		state, err := eng.NewDocument(tree.NewNode("doc"))
		require.NoError(t, err)

		tx := commitTx(t, state, &domain.AddNodeStep{
			Parent: state.Pool.RootID(),
			Node:   tree.Node{ID: "t1", Type: "table"},
		})

		_, err = eng.Apply(context.Background(), state, tx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "table")
	})

	t.Run("Accepts Valid Transaction", func(t *testing.T) {
		state, err := eng.NewDocument(tree.NewNode("doc"))
		require.NoError(t, err)

		tx := commitTx(t, state, &domain.AddNodeStep{
			Parent: state.Pool.RootID(),
			Node:   tree.Node{ID: "p1", Type: "paragraph", Text: "hi"},
		})

		next, err := eng.Apply(context.Background(), state, tx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), next.Version)
	})
}

func TestEngine_SnapshotRestore(t *testing.T) {
	eng, err := weft.New(
		weft.WithPlugins(counterSpec()),
		weft.WithSnapshotStore(memory.NewStore()),
		weft.WithPayloadCodec("weft_test.nodeCount", codec.JSONPayload[nodeCount]()),
	)
	require.NoError(t, err)
	ctx := context.Background()

	state, err := eng.NewDocument(tree.NewNode("doc"))
	require.NoError(t, err)

	tx := commitTx(t, state, &domain.AddNodeStep{
		Parent: state.Pool.RootID(),
		Node:   tree.Node{ID: "p1", Type: "paragraph", Text: "persisted"},
	})
	next, err := eng.Apply(ctx, state, tx)
	require.NoError(t, err)

	require.NoError(t, eng.Snapshot(ctx, "doc-1", next))

	restored, err := eng.Restore(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, next.Version, restored.Version)

	p1, ok := restored.Pool.Get("p1")
	require.True(t, ok)
	assert.Equal(t, "persisted", p1.Text)

	count, ok := domain.GetResource[nodeCount](restored.Resources, "node-count")
	require.True(t, ok)
	assert.Equal(t, 2, count.Nodes)
}

func TestEngine_SnapshotWithoutStore(t *testing.T) {
	eng, err := weft.New()
	require.NoError(t, err)

	state, err := eng.NewDocument(tree.NewNode("doc"))
	require.NoError(t, err)

	err = eng.Snapshot(context.Background(), "doc-1", state)
	assert.Error(t, err)

	_, err = eng.Restore(context.Background(), "doc-1")
	assert.Error(t, err)

	assert.Nil(t, eng.Sessions())
}
