package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/tree"
)

type resourceDTO struct {
	Tag  string          `json:"tag"`
	Data json.RawMessage `json:"data"`
}

type snapshotEnvelope struct {
	V         int                    `json:"v"`
	Version   uint64                 `json:"version"`
	Root      tree.NodeID            `json:"root"`
	Nodes     []nodeDTO              `json:"nodes"`
	Resources map[string]resourceDTO `json:"resources,omitempty"`
}

// EncodeState exports a state snapshot: the full node pool plus the plugin
// resource map. Nodes are sorted by ID so the same state always produces
// the same bytes. The pool's query cache is a performance artifact and is
// never part of the snapshot.
//
// Resource payloads are encoded through the registry; a resource whose tag
// has no registered codec is an error, not a silent omission.
func EncodeState(s *domain.State, payloads *PayloadRegistry) ([]byte, error) {
	nodes := make([]nodeDTO, 0, s.Pool.Len())
	// A query with no ID never consults or populates the cache; snapshots
	// must not depend on it.
	ids, err := s.Pool.CollectMatching(context.Background(), tree.Query{}, 1)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	for _, id := range ids {
		n, ok := s.Pool.Get(id)
		if !ok {
			return nil, fmt.Errorf("encode state: node %s: %w", id, tree.ErrNodeNotFound)
		}
		nodes = append(nodes, toNodeDTO(*n))
	}

	var resources map[string]resourceDTO
	if len(s.Resources) > 0 {
		resources = make(map[string]resourceDTO, len(s.Resources))
		names := make([]string, 0, len(s.Resources))
		for name := range s.Resources {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			res := s.Resources[name]
			c, ok := payloads.Lookup(res.Tag())
			if !ok {
				return nil, fmt.Errorf("encode state: resource %q: no payload codec for tag %q", name, res.Tag())
			}
			data, err := c.Encode(res.Payload())
			if err != nil {
				return nil, fmt.Errorf("encode state: resource %q: %w", name, err)
			}
			resources[name] = resourceDTO{Tag: res.Tag(), Data: data}
		}
	}

	return json.Marshal(snapshotEnvelope{
		V:         FormatVersion,
		Version:   s.Version,
		Root:      s.Pool.RootID(),
		Nodes:     nodes,
		Resources: resources,
	})
}

// DecodeState rebuilds a state from a snapshot, validating the tree
// invariants on the way in. Pool options (logger, cache sizing) apply to
// the rebuilt pool.
func DecodeState(data []byte, payloads *PayloadRegistry, poolOpts ...tree.Option) (*domain.State, error) {
	var env snapshotEnvelope
	if err := decodeStrictNumbers(data, &env); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if env.V != FormatVersion {
		return nil, fmt.Errorf("decode state: v%d: %w", env.V, ErrUnsupportedFormat)
	}

	nodes := make([]tree.Node, len(env.Nodes))
	for i, dto := range env.Nodes {
		nodes[i] = fromNodeDTO(dto)
	}
	pool, err := tree.Build(env.Root, nodes, poolOpts...)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	resources := make(domain.ResourceMap, len(env.Resources))
	for name, dto := range env.Resources {
		c, ok := payloads.Lookup(dto.Tag)
		if !ok {
			return nil, fmt.Errorf("decode state: resource %q: no payload codec for tag %q", name, dto.Tag)
		}
		payload, err := c.Decode(dto.Data)
		if err != nil {
			return nil, fmt.Errorf("decode state: resource %q: %w", name, err)
		}
		resources[name] = domain.NewResource(payload)
	}

	return &domain.State{
		Version:   env.Version,
		Pool:      pool,
		Resources: resources,
	}, nil
}
