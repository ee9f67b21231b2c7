package shared

import (
	"bytes"

	"github.com/btree-query-bench/zscan/dbms/index/btpage"
	"github.com/btree-query-bench/zscan/index"
)

// LeafCursor walks the leaf chain. It is positioned at (leaf, idx); when
// valid, that slot is the current tuple, otherwise it is the slot the next
// call to Next examines. Tuples are copied out of the page.
type LeafCursor struct {
	tree         *Tree
	lower, upper []byte
	leaf         uint32
	idx          int
	valid        bool
	cur          index.Tuple
}

// NewCursor returns a cursor over [lower, upper) positioned at the first key
// >= lower.
func (t *Tree) NewCursor(lower, upper []byte) (*LeafCursor, error) {
	c := &LeafCursor{tree: t, lower: lower, upper: upper}
	if _, err := c.position(lower); err != nil {
		return nil, err
	}
	var err error
	c.valid, err = c.settle()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *LeafCursor) position(key []byte) (bool, error) {
	leaf, err := c.tree.FindLeaf(key)
	if err != nil {
		return false, err
	}
	p, err := c.tree.Pg.Read(uint64(leaf))
	if err != nil {
		return false, err
	}
	c.leaf = leaf
	var found bool
	c.idx, found = c.tree.LowerBound(p, key)
	return found, nil
}

// settle follows NextLeaf over exhausted or emptied leaves and reports
// whether the slot holds a key below the upper bound.
func (c *LeafCursor) settle() (bool, error) {
	for c.leaf != btpage.InvalidPage {
		p, err := c.tree.Pg.Read(uint64(c.leaf))
		if err != nil {
			return false, err
		}
		if c.idx < btpage.NumCells(p) {
			k, v, _ := c.tree.Acc.ReadCell(p, c.idx, true)
			if c.upper != nil && bytes.Compare(k, c.upper) >= 0 {
				return false, nil
			}
			c.cur = index.Tuple{Key: bytes.Clone(k), Value: bytes.Clone(v)}
			return true, nil
		}
		c.leaf = btpage.NextLeaf(p)
		c.idx = 0
	}
	return false, nil
}

func (c *LeafCursor) Tuple() (index.Tuple, bool) {
	if !c.valid {
		return index.Tuple{}, false
	}
	return c.cur, true
}

func (c *LeafCursor) Seek(key []byte) (index.Tuple, bool, error) {
	clamped := bytes.Compare(key, c.lower) < 0
	if clamped {
		key = c.lower
	}
	c.valid = false
	found, err := c.position(key)
	if err != nil || !found || clamped {
		return index.Tuple{}, false, err
	}
	c.valid, err = c.settle()
	if err != nil || !c.valid {
		return index.Tuple{}, false, err
	}
	return c.cur, true, nil
}

func (c *LeafCursor) Next() (index.Tuple, bool, error) {
	if c.leaf == btpage.InvalidPage {
		return index.Tuple{}, false, nil
	}
	if c.valid {
		c.idx++
	}
	var err error
	c.valid, err = c.settle()
	if err != nil || !c.valid {
		c.valid = false
		return index.Tuple{}, false, err
	}
	return c.cur, true, nil
}

func (c *LeafCursor) Close() error { return nil }

// RangeIterator adapts a LeafCursor to index.Iterator.
type RangeIterator struct {
	cur   *LeafCursor
	first bool
	t     index.Tuple
	err   error
}

func (t *Tree) Range(start, end []byte) (*RangeIterator, error) {
	c, err := t.NewCursor(start, end)
	if err != nil {
		return nil, err
	}
	return &RangeIterator{cur: c, first: true}, nil
}

func (it *RangeIterator) Next() bool {
	if it.err != nil {
		return false
	}
	var ok bool
	if it.first {
		it.first = false
		it.t, ok = it.cur.Tuple()
	} else {
		it.t, ok, it.err = it.cur.Next()
	}
	return ok
}

func (it *RangeIterator) Key() []byte   { return it.t.Key }
func (it *RangeIterator) Value() []byte { return it.t.Value }
func (it *RangeIterator) Error() error  { return it.err }
func (it *RangeIterator) Close() error  { return it.cur.Close() }
