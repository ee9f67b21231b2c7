package index

type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// Cursor is a positioned, forward-only view of an index.
//
// Seek returns a tuple only when the sought key exists. Whether or not it
// does, the following Next yields the first key strictly greater than the
// sought key. Next after a positioned tuple yields its successor. A cursor
// never reports keys outside its bounds; running past them is exhaustion,
// not an error.
type Cursor interface {
	// Tuple returns the tuple the cursor is positioned at, if any.
	Tuple() (Tuple, bool)
	Seek(key []byte) (Tuple, bool, error)
	Next() (Tuple, bool, error)
	Close() error
}
