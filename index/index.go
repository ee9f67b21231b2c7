// Package index defines the sorted key-value index abstraction shared by the
// in-memory structures and the Pebble-backed store. Keys compare as unsigned
// byte strings.
package index

import "errors"

var ErrKeyNotFound = errors.New("key not found")

type Index interface {
	Insert(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error

	// Range returns an iterator over all keys in [start, end). A nil end
	// means no upper bound.
	Range(start, end []byte) (Iterator, error)

	// Cursor returns a seekable cursor bounded by [lower, upper), positioned
	// at the first key >= lower.
	Cursor(lower, upper []byte) (Cursor, error)

	Len() int
	Close() error
}

// Tuple is a single index record.
type Tuple struct {
	Key   []byte
	Value []byte
}
