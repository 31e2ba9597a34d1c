package tree

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUncacheableKey signals that a query key cannot be canonically
// serialized. The query still runs; only the cache is bypassed. Degrading to
// a lossy placeholder key instead would let unrelated queries collide and
// poison each other's results.
var ErrUncacheableKey = errors.New("query key is not canonically serializable")

// cacheKeyDomain versions the key derivation so the scheme can change
// without old and new keys ever matching.
const cacheKeyDomain = "weft/query/v1"

// CacheEvent describes one query-cache lookup.
type CacheEvent struct {
	Query   string
	Version uint64
	Hit     bool
	Bypass  bool
}

// queryCache memoizes query results per (query identity, pool version).
// It is shared by every pool version derived from the same New call; the
// version inside the key keeps entries from leaking across versions. The
// cache is purely a performance artifact: it is never serialized and losing
// it is always safe.
type queryCache struct {
	mu       sync.Mutex
	entries  map[string]any
	capacity int
	hook     func(CacheEvent)
}

const defaultCacheCapacity = 256

func newQueryCache() *queryCache {
	return &queryCache{
		entries:  make(map[string]any),
		capacity: defaultCacheCapacity,
	}
}

func (c *queryCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *queryCache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.capacity {
		// Advisory cache: dropping everything is cheaper than tracking
		// recency, and correctness never depends on retained entries.
		c.entries = make(map[string]any)
	}
	c.entries[key] = value
}

func (c *queryCache) emit(ev CacheEvent) {
	if c.hook != nil {
		c.hook(ev)
	}
}

// cacheKey derives the canonical key for (query identity, pool version).
// Returns ErrUncacheableKey when any parameter value has no deterministic
// canonical form.
func cacheKey(queryID string, params map[string]any, version uint64) (string, error) {
	payload := map[string]any{
		"query":   queryID,
		"version": version,
	}
	if len(params) > 0 {
		payload["params"] = params
	}
	canonical, err := marshalCanonical(payload)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(cacheKeyDomain))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// marshalCanonical produces a canonical JSON encoding: object keys sorted,
// no floats, no nulls. Anything outside that closed set is uncacheable.
func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case string:
		return marshalCanonicalString(val), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case int:
		return fmt.Appendf(nil, "%d", val), nil
	case int64:
		return fmt.Appendf(nil, "%d", val), nil
	case uint64:
		return fmt.Appendf(nil, "%d", val), nil
	case NodeID:
		return marshalCanonicalString(string(val)), nil
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return marshalCanonicalArray(arr)
	case []any:
		return marshalCanonicalArray(val)
	case map[string]any:
		return marshalCanonicalObject(val)
	case nil:
		return nil, fmt.Errorf("null value: %w", ErrUncacheableKey)
	default:
		return nil, fmt.Errorf("value of type %T: %w", v, ErrUncacheableKey)
	}
}

func marshalCanonicalString(s string) []byte {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for _, r := range s {
		switch r {
		case '"':
			out = append(out, '\\', '"')
		case '\\':
			out = append(out, '\\', '\\')
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		case '\t':
			out = append(out, '\\', 't')
		default:
			if r < 0x20 {
				out = fmt.Appendf(out, "\\u%04x", r)
			} else {
				out = append(out, string(r)...)
			}
		}
	}
	return append(out, '"')
}

func marshalCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		enc, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(enc)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(marshalCanonicalString(k))
		buf.WriteByte(':')
		enc, err := marshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(enc)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
