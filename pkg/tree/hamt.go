package tree

import (
	"hash/fnv"
	"math/bits"
)

// Persistent hash array mapped trie. Keys are NodeIDs hashed with FNV-1a;
// every write copies only the trie path it touches, so two pool versions
// share all untouched branches by reference.

const (
	hamtBits     = 5
	hamtWidth    = 1 << hamtBits
	hamtMask     = hamtWidth - 1
	hamtMaxShift = 60 // past this the hash is exhausted; use collision buckets
)

func hashKey(key NodeID) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return h.Sum64()
}

type hamtLeaf[V any] struct {
	key   NodeID
	value V
}

type hamtEntry[V any] struct {
	leaf *hamtLeaf[V] // single key/value
	sub  *hamtNode[V] // subtree, set when leaf is nil
}

type hamtNode[V any] struct {
	bitmap  uint32
	entries []hamtEntry[V]

	// bucket holds colliding keys once the hash is exhausted. A node is
	// either a bitmap node or a bucket node, never both.
	bucket []hamtLeaf[V]
}

func hamtGet[V any](n *hamtNode[V], h uint64, shift uint, key NodeID) (V, bool) {
	var zero V
	for n != nil {
		if n.bucket != nil {
			for _, l := range n.bucket {
				if l.key == key {
					return l.value, true
				}
			}
			return zero, false
		}
		bit := uint32(1) << ((h >> shift) & hamtMask)
		if n.bitmap&bit == 0 {
			return zero, false
		}
		e := n.entries[bits.OnesCount32(n.bitmap&(bit-1))]
		if e.leaf != nil {
			if e.leaf.key == key {
				return e.leaf.value, true
			}
			return zero, false
		}
		n = e.sub
		shift += hamtBits
	}
	return zero, false
}

// hamtInsert returns the new root and the number of keys added (0 on
// replace, 1 on insert). The input trie is never modified.
func hamtInsert[V any](n *hamtNode[V], h uint64, shift uint, leaf hamtLeaf[V]) (*hamtNode[V], int) {
	if shift > hamtMaxShift {
		if n == nil {
			return &hamtNode[V]{bucket: []hamtLeaf[V]{leaf}}, 1
		}
		bucket := make([]hamtLeaf[V], 0, len(n.bucket)+1)
		added := 1
		for _, l := range n.bucket {
			if l.key == leaf.key {
				added = 0
				continue
			}
			bucket = append(bucket, l)
		}
		bucket = append(bucket, leaf)
		return &hamtNode[V]{bucket: bucket}, added
	}

	bit := uint32(1) << ((h >> shift) & hamtMask)
	if n == nil {
		return &hamtNode[V]{bitmap: bit, entries: []hamtEntry[V]{{leaf: &leaf}}}, 1
	}
	idx := bits.OnesCount32(n.bitmap & (bit - 1))

	if n.bitmap&bit == 0 {
		entries := make([]hamtEntry[V], len(n.entries)+1)
		copy(entries, n.entries[:idx])
		entries[idx] = hamtEntry[V]{leaf: &leaf}
		copy(entries[idx+1:], n.entries[idx:])
		return &hamtNode[V]{bitmap: n.bitmap | bit, entries: entries}, 1
	}

	e := n.entries[idx]
	var replacement hamtEntry[V]
	added := 0
	switch {
	case e.leaf != nil && e.leaf.key == leaf.key:
		replacement = hamtEntry[V]{leaf: &leaf}
	case e.leaf != nil:
		// Slot collision between two distinct keys: push both one level down.
		sub, _ := hamtInsert[V](nil, hashKey(e.leaf.key), shift+hamtBits, *e.leaf)
		sub, _ = hamtInsert(sub, h, shift+hamtBits, leaf)
		replacement = hamtEntry[V]{sub: sub}
		added = 1
	default:
		sub, d := hamtInsert(e.sub, h, shift+hamtBits, leaf)
		replacement = hamtEntry[V]{sub: sub}
		added = d
	}

	entries := make([]hamtEntry[V], len(n.entries))
	copy(entries, n.entries)
	entries[idx] = replacement
	return &hamtNode[V]{bitmap: n.bitmap, entries: entries}, added
}

// hamtDelete returns the new root and the number of keys removed (0 or 1).
func hamtDelete[V any](n *hamtNode[V], h uint64, shift uint, key NodeID) (*hamtNode[V], int) {
	if n == nil {
		return nil, 0
	}
	if n.bucket != nil {
		bucket := make([]hamtLeaf[V], 0, len(n.bucket))
		removed := 0
		for _, l := range n.bucket {
			if l.key == key {
				removed = 1
				continue
			}
			bucket = append(bucket, l)
		}
		if removed == 0 {
			return n, 0
		}
		if len(bucket) == 0 {
			return nil, 1
		}
		return &hamtNode[V]{bucket: bucket}, 1
	}

	bit := uint32(1) << ((h >> shift) & hamtMask)
	if n.bitmap&bit == 0 {
		return n, 0
	}
	idx := bits.OnesCount32(n.bitmap & (bit - 1))
	e := n.entries[idx]

	if e.leaf != nil {
		if e.leaf.key != key {
			return n, 0
		}
		if len(n.entries) == 1 {
			return nil, 1
		}
		entries := make([]hamtEntry[V], len(n.entries)-1)
		copy(entries, n.entries[:idx])
		copy(entries[idx:], n.entries[idx+1:])
		return &hamtNode[V]{bitmap: n.bitmap &^ bit, entries: entries}, 1
	}

	sub, removed := hamtDelete(e.sub, h, shift+hamtBits, key)
	if removed == 0 {
		return n, 0
	}
	if sub == nil {
		if len(n.entries) == 1 {
			return nil, 1
		}
		entries := make([]hamtEntry[V], len(n.entries)-1)
		copy(entries, n.entries[:idx])
		copy(entries[idx:], n.entries[idx+1:])
		return &hamtNode[V]{bitmap: n.bitmap &^ bit, entries: entries}, 1
	}
	entries := make([]hamtEntry[V], len(n.entries))
	copy(entries, n.entries)
	entries[idx] = hamtEntry[V]{sub: sub}
	return &hamtNode[V]{bitmap: n.bitmap, entries: entries}, 1
}

// hamtWalk visits every leaf using an explicit work stack, so traversal
// depth never depends on trie depth.
func hamtWalk[V any](root *hamtNode[V], visit func(key NodeID, value V) bool) {
	if root == nil {
		return
	}
	stack := []*hamtNode[V]{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, l := range n.bucket {
			if !visit(l.key, l.value) {
				return
			}
		}
		for _, e := range n.entries {
			if e.leaf != nil {
				if !visit(e.leaf.key, e.leaf.value) {
					return
				}
				continue
			}
			stack = append(stack, e.sub)
		}
	}
}
