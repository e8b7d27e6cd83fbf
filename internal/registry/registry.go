// Package registry tracks the one operation a shell is currently running.
//
// A [Registry] combines two pieces of state:
//
//   - a single published slot holding the [ID] of the running operation, read
//     and written with atomic swaps only;
//   - a table of reference-counted entries keyed by [ID], so a goroutine that
//     picked an ID out of the slot can reach the object even while its owner
//     is finishing.
//
// IDs are never reused. An ID read from the slot after its operation has been
// removed can only fail to acquire; it can never resolve to a newer operation.
package registry

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// ID identifies a registered object. The zero value, [None], means no object.
type ID int64

// None is the empty slot value.
const None ID = 0

// entry is one reference-counted object in the table.
type entry[T any] struct {
	// obj is the registered value handed out by [Registry.Acquire].
	obj T
	// refs counts the owner's reference plus every outstanding acquire.
	refs int
	// removing is set by [Registry.Remove]. Once set, acquires fail even
	// though refs may still keep the entry alive.
	removing bool
}

// Registry is a single-slot registry over a reference-counted object table.
// All methods are safe for concurrent use.
type Registry[T any] struct {
	// slot holds the published ID, or [None].
	slot atomic.Int64

	// mu guards next and entries. It is only ever held for one
	// check-and-mutate step and never while calling out to destroy.
	mu      sync.Mutex
	next    ID
	entries map[ID]*entry[T]

	// destroy is called exactly once per entry, when its count reaches zero.
	destroy func(T)
}

// New creates an empty Registry. destroy may be nil.
func New[T any](destroy func(T)) *Registry[T] {
	return &Registry[T]{
		entries: make(map[ID]*entry[T]),
		destroy: destroy,
	}
}

// ///////////////////////////////////////////////
// Reference Table
// ///////////////////////////////////////////////

// Add registers obj with a reference count of one, owned by the caller, and
// returns its fresh ID. The owner gives that reference up with [Registry.Remove].
func (r *Registry[T]) Add(obj T) ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.entries[id] = &entry[T]{obj: obj, refs: 1}
	return id
}

// Remove starts destruction of id: later acquires fail, and the owner's
// reference is dropped. The object is destroyed now if nobody else holds a
// reference, otherwise by the last [Registry.Release]. It reports false if id
// is unknown or already being removed.
func (r *Registry[T]) Remove(id ID) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.removing {
		r.mu.Unlock()
		return false
	}
	e.removing = true
	obj, dead := r.dropLocked(id, e)
	r.mu.Unlock()

	if dead {
		r.destroyObject(obj)
	}
	return true
}

// Acquire takes a reference to the object registered under id. It fails for
// [None], for unknown IDs, and for entries whose owner has already called
// [Registry.Remove]. Every successful Acquire must be paired with a
// [Registry.Release].
func (r *Registry[T]) Acquire(id ID) (T, bool) {
	var zero T
	if id == None {
		return zero, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.removing {
		return zero, false
	}
	e.refs++
	return e.obj, true
}

// Release drops a reference taken by [Registry.Acquire], destroying the object
// if it was the last one.
func (r *Registry[T]) Release(id ID) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if !e.removing && e.refs <= 1 {
		// Only the owner's reference is left; releasing it here would
		// destroy the object under a live owner.
		r.mu.Unlock()
		slog.Warn("registry: unbalanced release", "id", int64(id))
		return
	}
	obj, dead := r.dropLocked(id, e)
	r.mu.Unlock()

	if dead {
		r.destroyObject(obj)
	}
}

// Len returns the number of entries still alive, including those being removed.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// dropLocked decrements e and deletes it from the table when the count hits
// zero, returning the object to destroy. r.mu must be held.
func (r *Registry[T]) dropLocked(id ID, e *entry[T]) (T, bool) {
	e.refs--
	if e.refs > 0 {
		var zero T
		return zero, false
	}
	delete(r.entries, id)
	return e.obj, true
}

func (r *Registry[T]) destroyObject(obj T) {
	if r.destroy != nil {
		r.destroy(obj)
	}
}

// ///////////////////////////////////////////////
// Active Slot
// ///////////////////////////////////////////////

// Publish stores id as the active operation and returns whatever was there
// before. A non-[None] return value means a previous owner never cleared
// the slot.
func (r *Registry[T]) Publish(id ID) ID {
	return ID(r.slot.Swap(int64(id)))
}

// Clear empties the slot and returns the ID it held. Owners call it when
// their operation ends; the cancellation worker calls it to claim the ID, so
// two overlapping cancel requests never both see the same value.
func (r *Registry[T]) Clear() ID {
	return ID(r.slot.Swap(int64(None)))
}

// Current returns the published ID without clearing it.
func (r *Registry[T]) Current() ID {
	return ID(r.slot.Load())
}
