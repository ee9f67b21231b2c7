package bplus

import (
	"bytes"
	"slices"

	"github.com/btree-query-bench/zscan/index"
)

var _ index.Index = (*BPlusTree)(nil)

type BPlusNode struct {
	IsLeaf   bool
	Keys     [][]byte
	Values   [][]byte     // Only populated if IsLeaf == true
	Children []*BPlusNode // Only populated if IsLeaf == false
	Next     *BPlusNode   // Pointer to next leaf for Range scans
}

type BPlusTree struct {
	T    int // Minimum degree (t). Max keys = 2t-1
	Root *BPlusNode
	size int
}

func NewBPlusTree(t int) *BPlusTree {
	if t < 2 {
		t = 2
	}
	return &BPlusTree{
		T:    t,
		Root: &BPlusNode{IsLeaf: true},
	}
}

func searchKeys(keys [][]byte, key []byte) (int, bool) {
	return slices.BinarySearchFunc(keys, key, bytes.Compare)
}

// --- GET (Point Query) ---

func (bt *BPlusTree) Get(key []byte) ([]byte, error) {
	node := bt.findLeaf(bt.Root, key)
	idx, found := searchKeys(node.Keys, key)
	if !found {
		return nil, index.ErrKeyNotFound
	}
	return node.Values[idx], nil
}

// findLeaf returns the leaf that holds key if present. Every key >= key lives
// in this leaf or one reachable through the Next chain.
func (bt *BPlusTree) findLeaf(curr *BPlusNode, key []byte) *BPlusNode {
	for !curr.IsLeaf {
		i := 0
		for i < len(curr.Keys) && bytes.Compare(key, curr.Keys[i]) >= 0 {
			i++
		}
		curr = curr.Children[i]
	}
	return curr
}

// --- INSERT ---

func (bt *BPlusTree) Insert(key, value []byte) error {
	root := bt.Root
	// If root is full, tree grows in height
	if len(root.Keys) == (2*bt.T - 1) {
		newRoot := &BPlusNode{IsLeaf: false, Children: []*BPlusNode{root}}
		bt.splitChild(newRoot, 0)
		bt.Root = newRoot
	}
	bt.insertNonFull(bt.Root, bytes.Clone(key), value)
	return nil
}

func (bt *BPlusTree) insertNonFull(x *BPlusNode, k, v []byte) {
	if x.IsLeaf {
		idx, found := searchKeys(x.Keys, k)
		if found {
			x.Values[idx] = v // Update existing
			return
		}
		x.Keys = slices.Insert(x.Keys, idx, k)
		x.Values = slices.Insert(x.Values, idx, v)
		bt.size++
		return
	}
	i := 0
	for i < len(x.Keys) && bytes.Compare(k, x.Keys[i]) >= 0 {
		i++
	}
	if len(x.Children[i].Keys) == (2*bt.T - 1) {
		bt.splitChild(x, i)
		if bytes.Compare(k, x.Keys[i]) >= 0 {
			i++
		}
	}
	bt.insertNonFull(x.Children[i], k, v)
}

func (bt *BPlusTree) splitChild(x *BPlusNode, i int) {
	t := bt.T
	y := x.Children[i]
	z := &BPlusNode{IsLeaf: y.IsLeaf}

	if y.IsLeaf {
		// B+ Leaf Split: The first key of the new leaf is copied to parent
		z.Keys = append([][]byte{}, y.Keys[t-1:]...)
		z.Values = append([][]byte{}, y.Values[t-1:]...)
		z.Next = y.Next
		y.Next = z

		y.Keys = y.Keys[:t-1:t-1]
		y.Values = y.Values[:t-1:t-1]

		x.Keys = slices.Insert(x.Keys, i, z.Keys[0])
	} else {
		// B+ Internal Split: Middle key is pushed to parent and removed from child
		z.Keys = append([][]byte{}, y.Keys[t:]...)
		z.Children = append([]*BPlusNode{}, y.Children[t:]...)

		midKey := y.Keys[t-1]
		y.Keys = y.Keys[:t-1:t-1]
		y.Children = y.Children[:t:t]

		x.Keys = slices.Insert(x.Keys, i, midKey)
	}
	x.Children = slices.Insert(x.Children, i+1, z)
}

// --- DELETE (Simplified Rebalancing) ---

// Delete removes key from its leaf. Leaves may become sparse or empty; the
// cursor skips empty leaves when following the chain.
func (bt *BPlusTree) Delete(key []byte) error {
	node := bt.findLeaf(bt.Root, key)
	idx, found := searchKeys(node.Keys, key)
	if !found {
		return index.ErrKeyNotFound
	}
	node.Keys = slices.Delete(node.Keys, idx, idx+1)
	node.Values = slices.Delete(node.Values, idx, idx+1)
	bt.size--
	return nil
}

func (bt *BPlusTree) Len() int     { return bt.size }
func (bt *BPlusTree) Close() error { return nil }

// --- RANGE (The Iterator) ---

func (bt *BPlusTree) Range(start, end []byte) (index.Iterator, error) {
	leaf := bt.findLeaf(bt.Root, start)
	i, _ := searchKeys(leaf.Keys, start)
	return &BPlusIterator{
		curr: leaf,
		i:    i,
		end:  end,
	}, nil
}

type BPlusIterator struct {
	curr *BPlusNode
	i    int
	end  []byte
	key  []byte
	val  []byte
}

func (it *BPlusIterator) Next() bool {
	for it.curr != nil {
		if it.i < len(it.curr.Keys) {
			k := it.curr.Keys[it.i]
			if it.end != nil && bytes.Compare(k, it.end) >= 0 {
				return false
			}
			it.key = k
			it.val = it.curr.Values[it.i]
			it.i++
			return true
		}
		// Follow the leaf chain
		it.curr = it.curr.Next
		it.i = 0
	}
	return false
}

func (it *BPlusIterator) Key() []byte   { return it.key }
func (it *BPlusIterator) Value() []byte { return it.val }
func (it *BPlusIterator) Error() error  { return nil }
func (it *BPlusIterator) Close() error  { return nil }

// --- CURSOR (Seek / Next) ---

func (bt *BPlusTree) Cursor(lower, upper []byte) (index.Cursor, error) {
	c := &BPlusCursor{tree: bt, lower: lower, upper: upper}
	c.position(lower)
	c.valid = c.settle()
	return c, nil
}

// BPlusCursor is positioned at (leaf, i). When valid, that slot is the
// current tuple; otherwise it is the slot the next call to Next examines.
type BPlusCursor struct {
	tree         *BPlusTree
	lower, upper []byte
	leaf         *BPlusNode
	i            int
	valid        bool
}

func (c *BPlusCursor) position(key []byte) bool {
	c.leaf = c.tree.findLeaf(c.tree.Root, key)
	var found bool
	c.i, found = searchKeys(c.leaf.Keys, key)
	return found
}

// settle moves forward over exhausted or empty leaves and reports whether the
// slot holds a key within the upper bound.
func (c *BPlusCursor) settle() bool {
	for c.leaf != nil && c.i >= len(c.leaf.Keys) {
		c.leaf = c.leaf.Next
		c.i = 0
	}
	if c.leaf == nil {
		return false
	}
	return c.upper == nil || bytes.Compare(c.leaf.Keys[c.i], c.upper) < 0
}

func (c *BPlusCursor) tuple() index.Tuple {
	return index.Tuple{Key: c.leaf.Keys[c.i], Value: c.leaf.Values[c.i]}
}

func (c *BPlusCursor) Tuple() (index.Tuple, bool) {
	if !c.valid {
		return index.Tuple{}, false
	}
	return c.tuple(), true
}

func (c *BPlusCursor) Seek(key []byte) (index.Tuple, bool, error) {
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

func (c *BPlusCursor) Next() (index.Tuple, bool, error) {
	if c.leaf == nil {
		return index.Tuple{}, false, nil
	}
	if c.valid {
		c.i++
	}
	c.valid = c.settle()
	if !c.valid {
		return index.Tuple{}, false, nil
	}
	return c.tuple(), true, nil
}

func (c *BPlusCursor) Close() error { return nil }
