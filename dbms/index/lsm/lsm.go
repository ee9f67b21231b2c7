// Package lsm wraps Pebble (CockroachDB's LSM storage engine) behind the
// common Index interface so z-order keys can be persisted and scanned with
// the same cursor contract as the in-memory structures.
package lsm

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/btree-query-bench/zscan/index"
)

var _ index.Index = (*LSM)(nil)

type LSM struct {
	db   *pebble.DB
	sync bool
}

type options struct {
	memTableSize uint64
	fs           vfs.FS
	sync         bool
}

// Option configures Open.
type Option func(*options)

// WithMemTableSize sets the Pebble memtable size in bytes.
func WithMemTableSize(n uint64) Option {
	return func(o *options) { o.memTableSize = n }
}

// WithFS runs the store on the given filesystem, e.g. vfs.NewMem() in tests.
func WithFS(fs vfs.FS) Option {
	return func(o *options) { o.fs = fs }
}

// WithSync makes every write durable before it returns.
func WithSync(sync bool) Option {
	return func(o *options) { o.sync = sync }
}

// Open opens (or creates) a Pebble database at the given directory path.
func Open(dir string, opts ...Option) (*LSM, error) {
	o := options{memTableSize: 16 << 20}
	for _, fn := range opts {
		fn(&o)
	}

	pOpts := &pebble.Options{
		MemTableSize: o.memTableSize,
		// Keep 2 memtables so one can be flushed while the other is active.
		MemTableStopWritesThreshold: 4,
		// L0 compaction trigger.
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 12,
		FS:                    o.fs,
	}

	db, err := pebble.Open(dir, pOpts)
	if err != nil {
		return nil, fmt.Errorf("lsm: open: %w", err)
	}
	return &LSM{db: db, sync: o.sync}, nil
}

// Close cleanly shuts down Pebble, flushing any in-memory state.
func (l *LSM) Close() error {
	return l.db.Close()
}

func (l *LSM) writeOpts() *pebble.WriteOptions {
	if l.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// Insert inserts or updates the value for key.
func (l *LSM) Insert(key, value []byte) error {
	if err := l.db.Set(key, value, l.writeOpts()); err != nil {
		return fmt.Errorf("lsm: insert: %w", err)
	}
	return nil
}

// Get retrieves the value for key.
func (l *LSM) Get(key []byte) ([]byte, error) {
	val, closer, err := l.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, index.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lsm: get: %w", err)
	}
	// val is only valid until closer.Close(), so we copy it.
	result := bytes.Clone(val)
	closer.Close()
	return result, nil
}

// Delete removes the key from the store.
func (l *LSM) Delete(key []byte) error {
	err := l.db.Delete(key, l.writeOpts())
	if err != nil {
		return fmt.Errorf("lsm: delete: %w", err)
	}
	return nil
}

// Len counts live keys with a full scan. Intended for tooling, not hot paths.
func (l *LSM) Len() int {
	iter, err := l.db.NewIter(nil)
	if err != nil {
		return 0
	}
	defer iter.Close()
	n := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		n++
	}
	return n
}

// Range returns an iterator over all keys in [start, end).
func (l *LSM) Range(start, end []byte) (index.Iterator, error) {
	iterOpts := &pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	}
	iter, err := l.db.NewIter(iterOpts)
	if err != nil {
		return nil, fmt.Errorf("lsm: range: %w", err)
	}
	iter.First()
	return &rangeIterator{iter: iter, first: true}, nil
}

// Cursor returns a seekable cursor over [lower, upper).
func (l *LSM) Cursor(lower, upper []byte) (index.Cursor, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("lsm: cursor: %w", err)
	}
	c := &cursor{iter: iter, lower: lower}
	c.valid = iter.First()
	if err := iter.Error(); err != nil {
		iter.Close()
		return nil, fmt.Errorf("lsm: cursor: %w", err)
	}
	return c, nil
}

// ─── Range Iterator ───────────────────────────────────────────────────────────

type rangeIterator struct {
	iter  *pebble.Iterator
	first bool
	key   []byte
	val   []byte
	err   error
}

func (it *rangeIterator) Next() bool {
	var valid bool
	if it.first {
		// iter.First() was already called in Range(); just check validity.
		it.first = false
		valid = it.iter.Valid()
	} else {
		valid = it.iter.Next()
	}
	if !valid {
		it.err = it.iter.Error()
		return false
	}
	// Copy key and value: Pebble reuses the buffers on Next().
	it.key = bytes.Clone(it.iter.Key())
	it.val = bytes.Clone(it.iter.Value())
	return true
}

func (it *rangeIterator) Key() []byte   { return it.key }
func (it *rangeIterator) Value() []byte { return it.val }
func (it *rangeIterator) Error() error  { return it.err }
func (it *rangeIterator) Close() error  { return it.iter.Close() }

// ─── Cursor ───────────────────────────────────────────────────────────────────

// cursor adapts pebble's SeekGE to the exact-match Seek contract. After a
// Seek that lands past the sought key the iterator already sits on the
// successor, so the next call to Next must not advance it again.
type cursor struct {
	iter    *pebble.Iterator
	lower   []byte
	valid   bool
	pending bool
}

func (c *cursor) tuple() index.Tuple {
	return index.Tuple{
		Key:   bytes.Clone(c.iter.Key()),
		Value: bytes.Clone(c.iter.Value()),
	}
}

func (c *cursor) Tuple() (index.Tuple, bool) {
	if !c.valid {
		return index.Tuple{}, false
	}
	return c.tuple(), true
}

func (c *cursor) Seek(key []byte) (index.Tuple, bool, error) {
	clamped := bytes.Compare(key, c.lower) < 0
	if clamped {
		key = c.lower
	}
	ok := c.iter.SeekGE(key)
	if err := c.iter.Error(); err != nil {
		c.valid, c.pending = false, false
		return index.Tuple{}, false, fmt.Errorf("lsm: seek: %w", err)
	}
	if ok && !clamped && bytes.Equal(c.iter.Key(), key) {
		c.valid, c.pending = true, false
		return c.tuple(), true, nil
	}
	c.valid, c.pending = false, ok
	return index.Tuple{}, false, nil
}

func (c *cursor) Next() (index.Tuple, bool, error) {
	var ok bool
	switch {
	case c.pending:
		c.pending = false
		ok = c.iter.Valid()
	case c.valid:
		ok = c.iter.Next()
	default:
		return index.Tuple{}, false, nil
	}
	if err := c.iter.Error(); err != nil {
		c.valid = false
		return index.Tuple{}, false, fmt.Errorf("lsm: next: %w", err)
	}
	c.valid = ok
	if !ok {
		return index.Tuple{}, false, nil
	}
	return c.tuple(), true, nil
}

func (c *cursor) Close() error { return c.iter.Close() }
