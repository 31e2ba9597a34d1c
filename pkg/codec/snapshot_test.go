package codec_test

import (
	"testing"

	"github.com/aretw0/weft/pkg/codec"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/tree"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wordCount struct {
	Words int `json:"words"`
}

func snapshotState(t *testing.T) *domain.State {
	t.Helper()
	pool, err := tree.Build("doc", []tree.Node{
		{ID: "doc", Type: "doc", Content: []tree.NodeID{"p1", "p2"}},
		{ID: "p1", Type: "paragraph", Text: "hello"},
		{ID: "p2", Type: "paragraph", Attrs: tree.Attrs{{Name: "align", Value: "center"}}},
	})
	require.NoError(t, err)

	state := domain.NewState(pool)
	domain.StoreResource(state.Resources, "word-count", wordCount{Words: 1})
	return state
}

func wordCountRegistry() *codec.PayloadRegistry {
	reg := codec.NewPayloadRegistry()
	reg.Register("codec_test.wordCount", codec.JSONPayload[wordCount]())
	return reg
}

func TestState_RoundTrip(t *testing.T) {
	state := snapshotState(t)
	reg := wordCountRegistry()

	data, err := codec.EncodeState(state, reg)
	require.NoError(t, err)

	decoded, err := codec.DecodeState(data, reg)
	require.NoError(t, err)

	assert.Equal(t, state.Version, decoded.Version)
	assert.Equal(t, tree.NodeID("doc"), decoded.Pool.RootID())
	assert.Equal(t, 3, decoded.Pool.Len())

	p1, ok := decoded.Pool.Get("p1")
	require.True(t, ok)
	assert.Equal(t, "hello", p1.Text)

	parent, ok := decoded.Pool.Parent("p2")
	require.True(t, ok)
	assert.Equal(t, tree.NodeID("doc"), parent)

	wc, ok := domain.GetResource[wordCount](decoded.Resources, "word-count")
	require.True(t, ok)
	assert.Equal(t, 1, wc.Words)
}

func TestEncodeState_Deterministic(t *testing.T) {
	state := snapshotState(t)
	reg := wordCountRegistry()

	first, err := codec.EncodeState(state, reg)
	require.NoError(t, err)
	second, err := codec.EncodeState(state, reg)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestEncodeState_MissingPayloadCodec(t *testing.T) {
	state := snapshotState(t)

	_, err := codec.EncodeState(state, codec.NewPayloadRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no payload codec")
}

func TestDecodeState_Errors(t *testing.T) {
	reg := wordCountRegistry()

	t.Run("Unsupported Version", func(t *testing.T) {
		_, err := codec.DecodeState([]byte(`{"v":2,"version":0,"root":"doc","nodes":[]}`), reg)
		assert.ErrorIs(t, err, codec.ErrUnsupportedFormat)
	})

	t.Run("Invalid Tree", func(t *testing.T) {
		// p1 is referenced twice; the rebuilt tree must be rejected, not
		// silently repaired.
		data := []byte(`{"v":1,"version":0,"root":"doc","nodes":[` +
			`{"id":"doc","type":"doc","content":["p1","p1"]},` +
			`{"id":"p1","type":"paragraph"}]}`)
		_, err := codec.DecodeState(data, reg)
		assert.ErrorIs(t, err, tree.ErrMultipleParents)
	})
}

func TestGolden_Snapshot(t *testing.T) {
	g := goldie.New(t)

	data, err := codec.EncodeState(snapshotState(t), wordCountRegistry())
	require.NoError(t, err)
	g.Assert(t, "snapshot", data)
}
