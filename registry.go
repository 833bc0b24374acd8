package eventbus

import (
	"reflect"
	"sync"
)

// typeRegistry is the map from concrete event type to handler bucket
// (spec C1). Entries are created on first registration for a type and are
// never removed on unregister — buckets may be left empty, matching the
// spec's stated lifecycle.
type typeRegistry struct {
	buckets sync.Map // reflect.Type -> *handlerBucket
}

func newTypeRegistry() *typeRegistry {
	return &typeRegistry{}
}

// bucketFor returns (creating if necessary) the bucket for t.
func (r *typeRegistry) bucketFor(t reflect.Type) *handlerBucket {
	if v, ok := r.buckets.Load(t); ok {
		return v.(*handlerBucket)
	}
	nb := newHandlerBucket()
	actual, _ := r.buckets.LoadOrStore(t, nb)
	return actual.(*handlerBucket)
}

// existing returns the bucket for t without creating one.
func (r *typeRegistry) existing(t reflect.Type) (*handlerBucket, bool) {
	v, ok := r.buckets.Load(t)
	if !ok {
		return nil, false
	}
	return v.(*handlerBucket), true
}

// matchingKeys returns every registered bucket key K' such that K' == k or
// K' is a supertype of k (k itself, or an interface k implements).
// Iteration order is insignificant per spec §4.7.2 — ordering happens
// within each bucket, not across buckets.
func (r *typeRegistry) matchingKeys(k reflect.Type) []reflect.Type {
	var keys []reflect.Type
	r.buckets.Range(func(key, _ any) bool {
		kt, _ := key.(reflect.Type)
		if kt == k || (kt.Kind() == reflect.Interface && k.Implements(kt)) {
			keys = append(keys, kt)
		}
		return true
	})
	return keys
}

// removeByOwner filters every bucket for descriptors whose OwnerTag equals
// owner. Used to implement unregister-by-source.
func (r *typeRegistry) removeByOwner(owner any) int {
	total := 0
	r.buckets.Range(func(_, v any) bool {
		total += v.(*handlerBucket).removeMatching(func(d *HandlerDescriptor) bool {
			return sameOwner(d.OwnerTag, owner)
		})
		return true
	})
	return total
}

// sameOwner compares two opaque owner tags. OwnerTag values are expected to
// be comparable (pointers, strings, uuids); a non-comparable tag (slice,
// map, func) simply never matches rather than panicking.
func sameOwner(a, b any) (eq bool) {
	if a == nil || b == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

// bucketCount returns the number of distinct registered type keys,
// including ones left empty by unregistration.
func (r *typeRegistry) bucketCount() int {
	n := 0
	r.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// clear drops every bucket. Called from Engine.Close.
func (r *typeRegistry) clear() {
	r.buckets.Range(func(k, _ any) bool {
		r.buckets.Delete(k)
		return true
	})
}
