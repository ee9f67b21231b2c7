// Package bptree implements a paged B+ tree over variable-length byte keys.
//
// Internal cell format:
//
//	[0-3]   uint32  left child page ID
//	[4-5]   uint16  key length
//	[6+]    []byte  key
//
// Leaf cell format:
//
//	[0-1]   uint16  key length
//	[2-3]   uint16  value length
//	[4+]    []byte  key, then value
//
// Internal nodes store no values, only separator keys and child pointers.
// Leaf nodes are linked via nextLeaf for range scans and cursors.
// The rightmost child is stored in the page header for internal nodes.
package bptree

import (
	"encoding/binary"
	"errors"

	"github.com/cockroachdb/pebble/vfs"

	"github.com/btree-query-bench/zscan/dbms/index/btpage"
	"github.com/btree-query-bench/zscan/dbms/index/shared"
	"github.com/btree-query-bench/zscan/dbms/pager"
	"github.com/btree-query-bench/zscan/index"
)

var _ index.Index = (*BPTree)(nil)

const (
	internalHeader = 4 + 2 // leftChild + key length
	leafHeader     = 2 + 2 // key length + value length
)

type accessor struct{}

func (accessor) CellSize(isLeaf bool, key, value []byte) int {
	if isLeaf {
		return leafHeader + len(key) + len(value)
	}
	return internalHeader + len(key)
}

func (accessor) ReadCell(p *pager.Page, i int, isLeaf bool) (key, value []byte, leftChild uint32) {
	off := btpage.CellPtr(p, i)
	if isLeaf {
		kl := int(binary.LittleEndian.Uint16(p[off : off+2]))
		vl := int(binary.LittleEndian.Uint16(p[off+2 : off+4]))
		ks := off + leafHeader
		return p[ks : ks+kl : ks+kl], p[ks+kl : ks+kl+vl : ks+kl+vl], 0
	}
	leftChild = binary.LittleEndian.Uint32(p[off : off+4])
	kl := int(binary.LittleEndian.Uint16(p[off+4 : off+6]))
	ks := off + internalHeader
	return p[ks : ks+kl : ks+kl], nil, leftChild
}

func (accessor) WriteCell(p *pager.Page, off int, key, value []byte, leftChild uint32, isLeaf bool) {
	if isLeaf {
		binary.LittleEndian.PutUint16(p[off:off+2], uint16(len(key)))
		binary.LittleEndian.PutUint16(p[off+2:off+4], uint16(len(value)))
		n := copy(p[off+leafHeader:], key)
		copy(p[off+leafHeader+n:], value)
		return
	}
	binary.LittleEndian.PutUint32(p[off:off+4], leftChild)
	binary.LittleEndian.PutUint16(p[off+4:off+6], uint16(len(key)))
	copy(p[off+internalHeader:], key)
}

func (accessor) SetLeftChild(p *pager.Page, i int, leftChild uint32) {
	off := btpage.CellPtr(p, i)
	binary.LittleEndian.PutUint32(p[off:off+4], leftChild)
}

// BPTree is a B+ tree stored in a single paged file.
type BPTree struct {
	tree *shared.Tree
}

type options struct {
	fs         vfs.FS
	cachePages int
}

// Option configures Open.
type Option func(*options)

// WithFS stores the tree on the given filesystem, e.g. vfs.NewMem().
func WithFS(fs vfs.FS) Option {
	return func(o *options) { o.fs = fs }
}

// WithCachePages sets the number of pages held in the pager's LRU cache.
func WithCachePages(n int) Option {
	return func(o *options) { o.cachePages = n }
}

// Open opens (or creates) the tree stored at path+".bpt".
func Open(path string, opts ...Option) (*BPTree, error) {
	o := options{fs: vfs.Default, cachePages: 256}
	for _, fn := range opts {
		fn(&o)
	}
	pg, err := pager.Open(o.fs, path+".bpt", o.cachePages)
	if err != nil {
		return nil, err
	}
	t, err := shared.Init(pg, accessor{})
	if err != nil {
		return nil, errors.Join(err, pg.Close())
	}
	return &BPTree{tree: t}, nil
}

func (t *BPTree) Get(key []byte) ([]byte, error) { return t.tree.Get(key) }

func (t *BPTree) Insert(key, value []byte) error { return t.tree.Insert(key, value) }

func (t *BPTree) Delete(key []byte) error { return t.tree.Delete(key) }

func (t *BPTree) Len() int { return int(t.tree.Count) }

func (t *BPTree) Range(start, end []byte) (index.Iterator, error) {
	it, err := t.tree.Range(start, end)
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (t *BPTree) Cursor(lower, upper []byte) (index.Cursor, error) {
	c, err := t.tree.NewCursor(lower, upper)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Flush persists the header and syncs the file.
func (t *BPTree) Flush() error {
	if err := t.tree.WriteHeader(); err != nil {
		return err
	}
	return t.tree.Pg.Sync()
}

// Pages returns the number of pages in the file, header pages included.
func (t *BPTree) Pages() uint64 { return t.tree.Pg.PageCount() }

func (t *BPTree) Close() error {
	return errors.Join(t.tree.WriteHeader(), t.tree.Pg.Close())
}
