package domain

import "fmt"

// Resource is a type-erased container for plugin-owned state. The payload
// is only reachable through checked type assertions (GetResource and
// friends), so a type mismatch is a clean "not there" answer, never memory
// read as the wrong type.
type Resource struct {
	tag     string
	payload any
}

// NewResource wraps a payload. The tag records the concrete Go type and is
// used for snapshot serialization and diagnostics.
func NewResource[T any](payload T) Resource {
	return Resource{
		tag:     fmt.Sprintf("%T", payload),
		payload: payload,
	}
}

// Tag returns the type tag recorded at construction.
func (r Resource) Tag() string {
	return r.tag
}

// Payload returns the raw payload. Callers needing a concrete type should
// use GetResource instead.
func (r Resource) Payload() any {
	return r.payload
}

// IsZero reports whether the resource is empty.
func (r Resource) IsZero() bool {
	return r.payload == nil && r.tag == ""
}

// ResourceAs extracts the payload as T. A wrong T fails closed: it returns
// the zero value and false.
func ResourceAs[T any](r Resource) (T, bool) {
	v, ok := r.payload.(T)
	return v, ok
}

// ResourceMap associates plugin names with their resources. A ResourceMap
// held by a State is immutable: producing the next State clones the map
// (copy-on-write at the map level), so readers of old states are never
// locked out.
type ResourceMap map[string]Resource

// Clone returns a shallow copy. Payloads are owned by plugins and are
// themselves treated as immutable values.
func (m ResourceMap) Clone() ResourceMap {
	out := make(ResourceMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StoreResource sets the resource for a plugin name.
func StoreResource[T any](m ResourceMap, name string, payload T) {
	m[name] = NewResource(payload)
}

// GetResource extracts the named resource's payload as T. Missing name or
// mismatched type both return the zero value and false.
func GetResource[T any](m ResourceMap, name string) (T, bool) {
	var zero T
	r, ok := m[name]
	if !ok {
		return zero, false
	}
	return ResourceAs[T](r)
}

// RequireResource extracts the named resource's payload as T, with typed
// failures: ErrResourceNotFound when the name is absent, *TypeMismatchError
// when the stored payload is a different type. Use it where a missing or
// mistyped resource is a hard error rather than a "not there" answer.
func RequireResource[T any](m ResourceMap, name string) (T, error) {
	var zero T
	r, ok := m[name]
	if !ok {
		return zero, fmt.Errorf("resource %q: %w", name, ErrResourceNotFound)
	}
	v, ok := ResourceAs[T](r)
	if !ok {
		return zero, &TypeMismatchError{
			Name: name,
			Tag:  r.tag,
			Want: fmt.Sprintf("%T", zero),
		}
	}
	return v, nil
}

// TakeResource removes and returns the named resource's payload as T. On a
// type mismatch the resource is left in place and the zero value returned.
func TakeResource[T any](m ResourceMap, name string) (T, bool) {
	var zero T
	r, ok := m[name]
	if !ok {
		return zero, false
	}
	v, ok := ResourceAs[T](r)
	if !ok {
		return zero, false
	}
	delete(m, name)
	return v, true
}
