package btree

import (
	"bytes"
	"slices"

	"github.com/btree-query-bench/zscan/index"
)

var _ index.Index = (*BTree)(nil)

type BTreeNode struct {
	Leaf     bool
	Keys     [][]byte
	Values   [][]byte
	Children []*BTreeNode
}

type BTree struct {
	T    int
	Root *BTreeNode
	size int
}

func NewBTree(t int) *BTree {
	if t < 2 {
		t = 2
	}
	return &BTree{T: t, Root: &BTreeNode{Leaf: true}}
}

func searchKeys(keys [][]byte, key []byte) (int, bool) {
	return slices.BinarySearchFunc(keys, key, bytes.Compare)
}

func (bt *BTree) Get(key []byte) ([]byte, error) {
	return bt.search(bt.Root, key)
}

func (bt *BTree) search(x *BTreeNode, key []byte) ([]byte, error) {
	i, found := searchKeys(x.Keys, key)
	if found {
		return x.Values[i], nil
	}
	if x.Leaf {
		return nil, index.ErrKeyNotFound
	}
	return bt.search(x.Children[i], key)
}

func (bt *BTree) Insert(key, value []byte) error {
	root := bt.Root
	if len(root.Keys) == (2*bt.T - 1) {
		newRoot := &BTreeNode{Children: []*BTreeNode{root}}
		bt.splitChild(newRoot, 0)
		bt.Root = newRoot
	}
	bt.insertNonFull(bt.Root, bytes.Clone(key), value)
	return nil
}

func (bt *BTree) insertNonFull(x *BTreeNode, k, v []byte) {
	idx, found := searchKeys(x.Keys, k)
	if found {
		x.Values[idx] = v
		return
	}
	if x.Leaf {
		x.Keys = slices.Insert(x.Keys, idx, k)
		x.Values = slices.Insert(x.Values, idx, v)
		bt.size++
		return
	}
	if len(x.Children[idx].Keys) == (2*bt.T - 1) {
		bt.splitChild(x, idx)
		switch c := bytes.Compare(k, x.Keys[idx]); {
		case c == 0:
			x.Values[idx] = v
			return
		case c > 0:
			idx++
		}
	}
	bt.insertNonFull(x.Children[idx], k, v)
}

func (bt *BTree) splitChild(x *BTreeNode, i int) {
	t := bt.T
	y := x.Children[i]
	z := &BTreeNode{Leaf: y.Leaf}
	z.Keys = append(z.Keys, y.Keys[t:]...)
	z.Values = append(z.Values, y.Values[t:]...)
	if !y.Leaf {
		z.Children = append(z.Children, y.Children[t:]...)
	}

	midKey, midVal := y.Keys[t-1], y.Values[t-1]
	y.Keys, y.Values = y.Keys[:t-1:t-1], y.Values[:t-1:t-1]
	if !y.Leaf {
		y.Children = y.Children[:t:t]
	}

	x.Keys = slices.Insert(x.Keys, i, midKey)
	x.Values = slices.Insert(x.Values, i, midVal)
	x.Children = slices.Insert(x.Children, i+1, z)
}

// Delete removes key, rebalancing on the way down so every visited child
// keeps at least T keys.
func (bt *BTree) Delete(key []byte) error {
	if _, err := bt.Get(key); err != nil {
		return err
	}
	bt.delete(bt.Root, key)
	bt.size--
	if len(bt.Root.Keys) == 0 && !bt.Root.Leaf {
		bt.Root = bt.Root.Children[0]
	}
	return nil
}

func (bt *BTree) delete(x *BTreeNode, k []byte) {
	idx, found := searchKeys(x.Keys, k)
	if found {
		if x.Leaf {
			x.Keys = slices.Delete(x.Keys, idx, idx+1)
			x.Values = slices.Delete(x.Values, idx, idx+1)
		} else {
			bt.deleteInternal(x, idx)
		}
		return
	}
	if x.Leaf {
		return
	}
	last := idx == len(x.Keys)
	if len(x.Children[idx].Keys) < bt.T {
		bt.fill(x, idx)
	}
	// A merge with the left sibling moved the last child one slot down.
	if last && idx > len(x.Keys) {
		bt.delete(x.Children[idx-1], k)
	} else {
		bt.delete(x.Children[idx], k)
	}
}

func (bt *BTree) deleteInternal(x *BTreeNode, i int) {
	k, y, z := x.Keys[i], x.Children[i], x.Children[i+1]
	switch {
	case len(y.Keys) >= bt.T:
		pk, pv := bt.getPred(y)
		x.Keys[i], x.Values[i] = pk, pv
		bt.delete(y, pk)
	case len(z.Keys) >= bt.T:
		sk, sv := bt.getSucc(z)
		x.Keys[i], x.Values[i] = sk, sv
		bt.delete(z, sk)
	default:
		bt.merge(x, i)
		bt.delete(y, k)
	}
}

func (bt *BTree) getPred(x *BTreeNode) ([]byte, []byte) {
	for !x.Leaf {
		x = x.Children[len(x.Keys)]
	}
	return x.Keys[len(x.Keys)-1], x.Values[len(x.Values)-1]
}

func (bt *BTree) getSucc(x *BTreeNode) ([]byte, []byte) {
	for !x.Leaf {
		x = x.Children[0]
	}
	return x.Keys[0], x.Values[0]
}

func (bt *BTree) fill(x *BTreeNode, i int) {
	switch {
	case i != 0 && len(x.Children[i-1].Keys) >= bt.T:
		bt.borrowPrev(x, i)
	case i != len(x.Keys) && len(x.Children[i+1].Keys) >= bt.T:
		bt.borrowNext(x, i)
	case i != len(x.Keys):
		bt.merge(x, i)
	default:
		bt.merge(x, i-1)
	}
}

func (bt *BTree) borrowPrev(x *BTreeNode, i int) {
	c, s := x.Children[i], x.Children[i-1]
	c.Keys = slices.Insert(c.Keys, 0, x.Keys[i-1])
	c.Values = slices.Insert(c.Values, 0, x.Values[i-1])
	if !c.Leaf {
		c.Children = slices.Insert(c.Children, 0, s.Children[len(s.Keys)])
		s.Children = s.Children[:len(s.Keys)]
	}
	x.Keys[i-1], x.Values[i-1] = s.Keys[len(s.Keys)-1], s.Values[len(s.Keys)-1]
	s.Keys, s.Values = s.Keys[:len(s.Keys)-1], s.Values[:len(s.Values)-1]
}

func (bt *BTree) borrowNext(x *BTreeNode, i int) {
	c, s := x.Children[i], x.Children[i+1]
	c.Keys, c.Values = append(c.Keys, x.Keys[i]), append(c.Values, x.Values[i])
	if !c.Leaf {
		c.Children = append(c.Children, s.Children[0])
		s.Children = slices.Delete(s.Children, 0, 1)
	}
	x.Keys[i], x.Values[i] = s.Keys[0], s.Values[0]
	s.Keys, s.Values = s.Keys[1:], s.Values[1:]
}

func (bt *BTree) merge(x *BTreeNode, i int) {
	y, z := x.Children[i], x.Children[i+1]
	y.Keys, y.Values = append(y.Keys, x.Keys[i]), append(y.Values, x.Values[i])
	y.Keys, y.Values = append(y.Keys, z.Keys...), append(y.Values, z.Values...)
	if !y.Leaf {
		y.Children = append(y.Children, z.Children...)
	}
	x.Keys, x.Values = slices.Delete(x.Keys, i, i+1), slices.Delete(x.Values, i, i+1)
	x.Children = slices.Delete(x.Children, i+1, i+2)
}

func (bt *BTree) Len() int     { return bt.size }
func (bt *BTree) Close() error { return nil }

// Range walks [start, end) with a cursor.
func (bt *BTree) Range(start, end []byte) (index.Iterator, error) {
	c := bt.newCursor(start, end)
	return &BTreeIterator{cur: c, first: true}, nil
}

type BTreeIterator struct {
	cur   *BTreeCursor
	first bool
	t     index.Tuple
}

func (it *BTreeIterator) Next() bool {
	var ok bool
	if it.first {
		it.first = false
		it.t, ok = it.cur.Tuple()
	} else {
		it.t, ok, _ = it.cur.Next()
	}
	return ok
}

func (it *BTreeIterator) Key() []byte   { return it.t.Key }
func (it *BTreeIterator) Value() []byte { return it.t.Value }
func (it *BTreeIterator) Error() error  { return nil }
func (it *BTreeIterator) Close() error  { return nil }

// --- CURSOR ---

func (bt *BTree) Cursor(lower, upper []byte) (index.Cursor, error) {
	return bt.newCursor(lower, upper), nil
}

func (bt *BTree) newCursor(lower, upper []byte) *BTreeCursor {
	c := &BTreeCursor{tree: bt, lower: lower, upper: upper}
	c.position(lower)
	c.valid = c.settle()
	return c
}

// frame is one node on the root-to-key path. Keys[i] is the next key of the
// node in order; the subtree Children[i] left of it has been entered already
// when a deeper frame sits above this one.
type frame struct {
	n *BTreeNode
	i int
}

// BTreeCursor walks keys in order with an explicit stack, since B-tree
// nodes keep no parent or sibling links.
type BTreeCursor struct {
	tree         *BTree
	lower, upper []byte
	stack        []frame
	valid        bool
}

func (c *BTreeCursor) position(key []byte) bool {
	c.stack = c.stack[:0]
	n := c.tree.Root
	for {
		i, found := searchKeys(n.Keys, key)
		c.stack = append(c.stack, frame{n, i})
		if found {
			return true
		}
		if n.Leaf {
			return false
		}
		n = n.Children[i]
	}
}

// settle pops finished frames and reports whether the top frame holds a key
// below the upper bound.
func (c *BTreeCursor) settle() bool {
	for len(c.stack) > 0 {
		top := c.stack[len(c.stack)-1]
		if top.i < len(top.n.Keys) {
			break
		}
		c.stack = c.stack[:len(c.stack)-1]
	}
	if len(c.stack) == 0 {
		return false
	}
	top := c.stack[len(c.stack)-1]
	return c.upper == nil || bytes.Compare(top.n.Keys[top.i], c.upper) < 0
}

// advance moves past the current key into the leftmost leaf of the subtree
// on its right.
func (c *BTreeCursor) advance() {
	top := &c.stack[len(c.stack)-1]
	top.i++
	n, i := top.n, top.i
	if n.Leaf {
		return
	}
	for child := n.Children[i]; ; child = child.Children[0] {
		c.stack = append(c.stack, frame{child, 0})
		if child.Leaf {
			return
		}
	}
}

func (c *BTreeCursor) tuple() index.Tuple {
	top := c.stack[len(c.stack)-1]
	return index.Tuple{Key: top.n.Keys[top.i], Value: top.n.Values[top.i]}
}

func (c *BTreeCursor) Tuple() (index.Tuple, bool) {
	if !c.valid {
		return index.Tuple{}, false
	}
	return c.tuple(), true
}

func (c *BTreeCursor) Seek(key []byte) (index.Tuple, bool, error) {
	clamped := bytes.Compare(key, c.lower) < 0
	if clamped {
		key = c.lower
	}
	found := c.position(key)
	if found && !clamped && c.settle() {
		c.valid = true
		return c.tuple(), true, nil
	}
	c.valid = false
	return index.Tuple{}, false, nil
}

func (c *BTreeCursor) Next() (index.Tuple, bool, error) {
	if len(c.stack) == 0 {
		return index.Tuple{}, false, nil
	}
	if c.valid {
		c.advance()
	}
	c.valid = c.settle()
	if !c.valid {
		return index.Tuple{}, false, nil
	}
	return c.tuple(), true, nil
}

func (c *BTreeCursor) Close() error { return nil }
