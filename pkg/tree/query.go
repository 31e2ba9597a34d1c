package tree

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
)

// Query describes a read-only predicate over the pool.
//
// ID is the predicate's identity for caching purposes; two queries with the
// same ID and Params must match the same nodes on the same pool version.
// A query with an empty ID is never cached.
type Query struct {
	ID     string
	Params map[string]any
	Match  func(*Node) bool
}

// QueryReduce partitions the pool's nodes across a bounded worker set, maps
// each partition's matching nodes with mapPartition, and folds combine over
// every partial result. The reduce happens on the caller's goroutine only
// after all partitions have completed; no partial is ever dropped.
//
// Workers only read the immutable pool, so the only synchronization is the
// final join. Cancelling ctx abandons the result; queries have no side
// effects, so partial work is simply discarded.
func QueryReduce[R any](ctx context.Context, p *Pool, q Query, workers int, mapPartition func(matches []*Node) R, combine func(R, R) R) (R, error) {
	var zero R

	key, cacheable := p.queryCacheKey(q)
	if cacheable {
		if v, ok := p.cache.get(key); ok {
			if cached, ok := v.(R); ok {
				p.cache.emit(CacheEvent{Query: q.ID, Version: p.version, Hit: true})
				return cacheClone(cached), nil
			}
		}
		p.cache.emit(CacheEvent{Query: q.ID, Version: p.version})
	}

	nodes := p.allNodes()
	if workers < 1 {
		workers = 1
	}
	if workers > len(nodes) && len(nodes) > 0 {
		workers = len(nodes)
	}

	partials := make([]R, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo, hi := partitionBounds(len(nodes), workers, w)
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			var matches []*Node
			for i := lo; i < hi; i++ {
				if i%1024 == 0 && ctx.Err() != nil {
					return
				}
				if q.Match == nil || q.Match(nodes[i]) {
					matches = append(matches, nodes[i])
				}
			}
			partials[w] = mapPartition(matches)
		}(w, lo, hi)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	// Fold over every partition. Skipping or substituting any partial here
	// would silently corrupt the result.
	result := partials[0]
	for i := 1; i < len(partials); i++ {
		result = combine(result, partials[i])
	}

	if cacheable {
		p.cache.put(key, cacheClone(result))
	}
	return result, nil
}

// cacheClone returns a value safe to hand across the cache boundary. Slice
// results are shallow-copied so the cache and the caller never share a
// backing array; every other kind passes through unchanged.
func cacheClone[R any](v R) R {
	rv := reflect.ValueOf(&v).Elem()
	if rv.Kind() != reflect.Slice || rv.IsNil() {
		return v
	}
	cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
	reflect.Copy(cp, rv)
	rv.Set(cp)
	return v
}

// CountMatching returns the number of nodes matching the query.
func (p *Pool) CountMatching(ctx context.Context, q Query, workers int) (int, error) {
	return QueryReduce(ctx, p, q, workers,
		func(matches []*Node) int { return len(matches) },
		func(a, b int) int { return a + b },
	)
}

// CollectMatching returns the IDs of all matching nodes, sorted for
// determinism (partition boundaries must not leak into the result).
func (p *Pool) CollectMatching(ctx context.Context, q Query, workers int) ([]NodeID, error) {
	ids, err := QueryReduce(ctx, p, q, workers,
		func(matches []*Node) []NodeID {
			out := make([]NodeID, len(matches))
			for i, n := range matches {
				out[i] = n.ID
			}
			return out
		},
		func(a, b []NodeID) []NodeID { return append(a, b...) },
	)
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// queryCacheKey derives the cache key for a query, reporting whether the
// cache applies. Unserializable keys bypass the cache entirely rather than
// degrading to a colliding placeholder.
func (p *Pool) queryCacheKey(q Query) (string, bool) {
	if q.ID == "" {
		return "", false
	}
	key, err := cacheKey(q.ID, q.Params, p.version)
	if err != nil {
		if errors.Is(err, ErrUncacheableKey) {
			p.logger.Debug("query cache bypassed", "query", q.ID, "err", err)
			p.cache.emit(CacheEvent{Query: q.ID, Version: p.version, Bypass: true})
		}
		return "", false
	}
	return key, true
}

// allNodes snapshots every node pointer in the pool. Order is trie order,
// which is stable for a given pool version.
func (p *Pool) allNodes() []*Node {
	out := make([]*Node, 0, p.size)
	hamtWalk(p.nodes, func(_ NodeID, n *Node) bool {
		out = append(out, n)
		return true
	})
	return out
}

// partitionBounds splits n items into parts contiguous ranges and returns
// the half-open bounds of part w.
func partitionBounds(n, parts, w int) (int, int) {
	base := n / parts
	rem := n % parts
	lo := w*base + min(w, rem)
	hi := lo + base
	if w < rem {
		hi++
	}
	return lo, hi
}
