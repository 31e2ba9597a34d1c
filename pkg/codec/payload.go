package codec

import (
	"encoding/json"
	"fmt"
	"sync"
)

// PayloadCodec serializes one plugin's resource payload type. Payloads are
// opaque to the engine, so snapshot export needs the owning plugin to say
// how its payload crosses the wire.
type PayloadCodec struct {
	Encode func(payload any) ([]byte, error)
	Decode func(data []byte) (any, error)
}

// PayloadRegistry maps resource type tags to payload codecs. It is an
// explicit object passed to EncodeState/DecodeState, never a process-wide
// static, so two engines can register different payload sets.
type PayloadRegistry struct {
	mu     sync.RWMutex
	codecs map[string]PayloadCodec
}

// NewPayloadRegistry creates an empty registry.
func NewPayloadRegistry() *PayloadRegistry {
	return &PayloadRegistry{codecs: make(map[string]PayloadCodec)}
}

// Register adds a codec for a resource type tag. Registering the same tag
// again overwrites.
func (r *PayloadRegistry) Register(tag string, c PayloadCodec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[tag] = c
}

// Lookup returns the codec for a tag.
func (r *PayloadRegistry) Lookup(tag string) (PayloadCodec, bool) {
	if r == nil {
		return PayloadCodec{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[tag]
	return c, ok
}

// JSONPayload builds a codec that round-trips a payload type through JSON.
func JSONPayload[T any]() PayloadCodec {
	return PayloadCodec{
		Encode: func(payload any) ([]byte, error) {
			v, ok := payload.(T)
			if !ok {
				return nil, fmt.Errorf("payload is %T, codec expects different type", payload)
			}
			return json.Marshal(v)
		},
		Decode: func(data []byte) (any, error) {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}
