package store

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrRead indicates a point read or snapshot load failed.
	ErrRead = errors.New("store: read failed")
	// ErrWrite indicates a write, key mutation, or removal failed.
	ErrWrite = errors.New("store: write failed")
	// ErrInvalidPath indicates a malformed hierarchical path.
	ErrInvalidPath = errors.New("store: invalid path")
)

// Entry is one keyed value of a collection snapshot, in store-reported order.
type Entry struct {
	Key   string
	Value json.RawMessage
}

// Snapshot carries the entire current state of a collection, not a delta.
type Snapshot struct {
	Entries []Entry
}

// Client exposes the remote collection primitives the engine consumes.
// Paths are slash-joined segments rooted at a collection name, for example
// "novels/<key>" or "novels/<key>/likes/<viewer>".
type Client interface {
	// Subscribe registers for full-collection snapshots. The stream fires
	// immediately with the current state and then on every committed change
	// until the context is done or the cancel func is called.
	Subscribe(ctx context.Context, collection string) (<-chan Snapshot, func(), error)

	// ReadOnce performs a single point read. A missing path yields a nil
	// value and no error.
	ReadOnce(ctx context.Context, path string) (json.RawMessage, error)

	// WriteWhole replaces everything at a record path with value.
	WriteWhole(ctx context.Context, path string, value any) error

	// WriteKey sets exactly one nested key, leaving sibling keys untouched.
	WriteKey(ctx context.Context, path string, value any) error

	// RemoveKey deletes the value at a record or nested path.
	RemoveKey(ctx context.Context, path string) error

	// Push creates a record under a collection with a store-assigned key.
	Push(ctx context.Context, collection string, value any) (string, error)
}
