// Package kv provides the key-value persistence abstraction backing the
// task and workflow stores. Production binds it to an on-disk store (file
// or sqlite); tests bind it to an in-memory map.
package kv

// UpdateFunc transforms the current value of a key during an atomic
// read-modify-write. current is nil when the key is absent. Returning
// nil deletes the key.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is a durable key-value store with change notification.
//
// Set, Delete, and Update are all-or-nothing per call: a failed write
// leaves previously persisted state intact. Update re-reads the current
// value under exclusion immediately before applying fn, so two
// concurrent updates from different handles are serialized rather than
// lost. Subscribers are told only which key changed, never the new
// value; an observer must re-read. A handle may observe notifications
// for its own writes.
type Store interface {
	// Get returns the stored value, or nil if the key is absent.
	Get(key string) ([]byte, error)

	// Set stores value under key.
	Set(key string, value []byte) error

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(key string) error

	// Update applies fn to the freshly read current value of key.
	Update(key string, fn UpdateFunc) error

	// Subscribe registers fn to be called with the key of every
	// observed change. The returned cancel function removes the
	// subscription.
	Subscribe(fn func(key string)) (cancel func(), err error)

	// Close releases watchers and connections.
	Close() error
}
