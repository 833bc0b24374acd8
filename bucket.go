package eventbus

import (
	"sort"
	"sync/atomic"
)

// handlerBucket holds every descriptor registered for exactly one event
// type. Mutation builds the next snapshot and swaps it in with a CAS loop
// (spec §4.1); readers always see an immutable, already priority-sorted
// slice and never take a lock.
type handlerBucket struct {
	snap atomic.Pointer[[]*HandlerDescriptor]
}

func newHandlerBucket() *handlerBucket {
	return &handlerBucket{}
}

// snapshot returns the current sorted view. Safe to call without holding
// any lock; the returned slice must not be mutated by the caller.
func (b *handlerBucket) snapshot() []*HandlerDescriptor {
	p := b.snap.Load()
	if p == nil {
		return nil
	}
	return *p
}

func sortDescriptors(ds []*HandlerDescriptor) {
	sort.Slice(ds, func(i, j int) bool {
		pi, pj := ds[i].priority(), ds[j].priority()
		if pi != pj {
			return pi > pj
		}
		return ds[i].seq < ds[j].seq
	})
}

// insert appends d and re-sorts descending by priority, ties broken by
// insertion sequence (so ties remain FIFO regardless of how the underlying
// sort is implemented). Retries on CAS conflict.
func (b *handlerBucket) insert(d *HandlerDescriptor) {
	for {
		old := b.snap.Load()
		var oldSlice []*HandlerDescriptor
		if old != nil {
			oldSlice = *old
		}
		next := make([]*HandlerDescriptor, len(oldSlice), len(oldSlice)+1)
		copy(next, oldSlice)
		next = append(next, d)
		sortDescriptors(next)
		if b.snap.CompareAndSwap(old, &next) {
			return
		}
	}
}

// removeMatching filters out every descriptor for which pred returns true.
// Returns the number of descriptors removed.
func (b *handlerBucket) removeMatching(pred func(*HandlerDescriptor) bool) int {
	for {
		old := b.snap.Load()
		if old == nil {
			return 0
		}
		oldSlice := *old
		next := make([]*HandlerDescriptor, 0, len(oldSlice))
		for _, d := range oldSlice {
			if !pred(d) {
				next = append(next, d)
			}
		}
		removed := len(oldSlice) - len(next)
		if removed == 0 {
			return 0
		}
		if b.snap.CompareAndSwap(old, &next) {
			return removed
		}
	}
}

// removeByID removes the single descriptor with the given handler id.
func (b *handlerBucket) removeByID(id string) bool {
	return b.removeMatching(func(d *HandlerDescriptor) bool { return d.HandlerID == id }) > 0
}
