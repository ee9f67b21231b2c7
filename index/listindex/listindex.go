// Package listindex keeps entries in a sorted slice. It is the simplest
// correct index and serves as the reference when checking the tree and LSM
// implementations.
package listindex

import (
	"bytes"
	"slices"

	"github.com/btree-query-bench/zscan/index"
)

var _ index.Index = (*ListIndex)(nil)

type Data struct {
	Key []byte
	Val []byte
}

type ListIndex struct {
	Data []Data
}

func NewListIndex() *ListIndex {
	return &ListIndex{
		Data: make([]Data, 0),
	}
}

func compareData(d Data, key []byte) int { return bytes.Compare(d.Key, key) }

func (l *ListIndex) search(key []byte) (int, bool) {
	return slices.BinarySearchFunc(l.Data, key, compareData)
}

func (l *ListIndex) Insert(key, value []byte) error {
	i, found := l.search(key)
	if found {
		l.Data[i].Val = value
		return nil
	}
	l.Data = slices.Insert(l.Data, i, Data{Key: bytes.Clone(key), Val: value})
	return nil
}

func (l *ListIndex) Get(key []byte) ([]byte, error) {
	i, found := l.search(key)
	if !found {
		return nil, index.ErrKeyNotFound
	}
	return l.Data[i].Val, nil
}

func (l *ListIndex) Delete(key []byte) error {
	i, found := l.search(key)
	if !found {
		return index.ErrKeyNotFound
	}
	l.Data = slices.Delete(l.Data, i, i+1)
	return nil
}

func (l *ListIndex) Range(start, end []byte) (index.Iterator, error) {
	i, _ := l.search(start)
	return &ListIterator{
		data: l.Data,
		cur:  i - 1,
		end:  end,
	}, nil
}

func (l *ListIndex) Cursor(lower, upper []byte) (index.Cursor, error) {
	c := &ListCursor{data: l.Data, lower: lower, upper: upper}
	i, _ := l.search(lower)
	c.pos = i
	c.valid = c.inBounds(i)
	return c, nil
}

func (l *ListIndex) Len() int     { return len(l.Data) }
func (l *ListIndex) Close() error { return nil }

type ListIterator struct {
	data []Data
	cur  int
	end  []byte
}

func (it *ListIterator) Next() bool {
	it.cur++
	if it.cur >= len(it.data) {
		return false
	}
	return it.end == nil || bytes.Compare(it.data[it.cur].Key, it.end) < 0
}

func (it *ListIterator) Key() []byte   { return it.data[it.cur].Key }
func (it *ListIterator) Value() []byte { return it.data[it.cur].Val }
func (it *ListIterator) Error() error  { return nil }
func (it *ListIterator) Close() error  { return nil }

// ListCursor walks the slice by position. pos is the current element when
// valid, otherwise the element the next call to Next will return.
type ListCursor struct {
	data         []Data
	lower, upper []byte
	pos          int
	valid        bool
}

func (c *ListCursor) inBounds(i int) bool {
	if i < 0 || i >= len(c.data) {
		return false
	}
	return c.upper == nil || bytes.Compare(c.data[i].Key, c.upper) < 0
}

func (c *ListCursor) tuple() index.Tuple {
	d := c.data[c.pos]
	return index.Tuple{Key: d.Key, Value: d.Val}
}

func (c *ListCursor) Tuple() (index.Tuple, bool) {
	if !c.valid {
		return index.Tuple{}, false
	}
	return c.tuple(), true
}

func (c *ListCursor) Seek(key []byte) (index.Tuple, bool, error) {
	clamped := bytes.Compare(key, c.lower) < 0
	if clamped {
		key = c.lower
	}
	i, found := slices.BinarySearchFunc(c.data, key, compareData)
	if found && !clamped && c.inBounds(i) {
		c.pos, c.valid = i, true
		return c.tuple(), true, nil
	}
	c.pos, c.valid = i, false
	return index.Tuple{}, false, nil
}

func (c *ListCursor) Next() (index.Tuple, bool, error) {
	if c.valid {
		c.pos++
	}
	c.valid = c.inBounds(c.pos)
	if !c.valid {
		return index.Tuple{}, false, nil
	}
	return c.tuple(), true, nil
}

func (c *ListCursor) Close() error { return nil }
