// Package shared holds the page-level B+ tree algorithms: descent, insert
// with node splits, lazy delete and the leaf-chain cursor. The cell encoding
// is left to a NodeAccessor.
package shared

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/btree-query-bench/zscan/dbms/index/btpage"
	"github.com/btree-query-bench/zscan/dbms/pager"
	"github.com/btree-query-bench/zscan/index"
)

// ErrCellTooLarge is returned when a key/value pair cannot fit in a page
// next to three others.
var ErrCellTooLarge = errors.New("shared: cell too large for a page")

// headerPage stores the root page ID in [0:4] and the record count in [4:12].
const headerPage = 1

// NodeAccessor encodes cells. Slices returned by ReadCell alias the page.
type NodeAccessor interface {
	CellSize(isLeaf bool, key, value []byte) int

	ReadCell(p *pager.Page, i int, isLeaf bool) (key, value []byte, leftChild uint32)

	WriteCell(p *pager.Page, off int, key, value []byte, leftChild uint32, isLeaf bool)

	// SetLeftChild rewrites the child pointer of internal cell i in place.
	SetLeftChild(p *pager.Page, i int, leftChild uint32)
}

type Tree struct {
	Pg     *pager.Pager
	RootID uint32
	Count  uint64
	Acc    NodeAccessor
}

type CellData struct {
	Key       []byte
	Value     []byte
	LeftChild uint32
}

// Init loads the tree stored in pg, or lays out a header page and an empty
// root leaf when the file is new.
func Init(pg *pager.Pager, acc NodeAccessor) (*Tree, error) {
	t := &Tree{Pg: pg, Acc: acc}
	if pg.PageCount() > headerPage {
		return t, t.ReadHeader()
	}
	if _, err := pg.Allocate(); err != nil {
		return nil, err
	}
	rootID, err := pg.Allocate()
	if err != nil {
		return nil, err
	}
	p := new(pager.Page)
	btpage.InitPage(p, btpage.TypeLeaf)
	if err := pg.Write(rootID, p); err != nil {
		return nil, err
	}
	t.RootID = uint32(rootID)
	return t, t.WriteHeader()
}

// --- helpers ---

func (t *Tree) readCell(p *pager.Page, i int) ([]byte, []byte, uint32) {
	return t.Acc.ReadCell(p, i, btpage.IsLeaf(p))
}

func (t *Tree) AppendCell(p *pager.Page, c CellData) {
	leaf := btpage.IsLeaf(p)
	off := btpage.AllocCell(p, t.Acc.CellSize(leaf, c.Key, c.Value))
	t.Acc.WriteCell(p, off, c.Key, c.Value, c.LeftChild, leaf)
	btpage.InsertCellPtr(p, btpage.NumCells(p), off)
}

// cells copies every cell out of p.
func (t *Tree) cells(p *pager.Page) []CellData {
	n := btpage.NumCells(p)
	out := make([]CellData, n)
	for i := range out {
		k, v, lc := t.readCell(p, i)
		out[i] = CellData{Key: bytes.Clone(k), Value: bytes.Clone(v), LeftChild: lc}
	}
	return out
}

func (t *Tree) ChildAt(p *pager.Page, idx, n int) uint32 {
	if idx == n {
		return btpage.Rightmost(p)
	}
	_, _, lc := t.Acc.ReadCell(p, idx, false)
	return lc
}

// LowerBound returns the first slot whose key is >= key.
func (t *Tree) LowerBound(p *pager.Page, key []byte) (int, bool) {
	leaf := btpage.IsLeaf(p)
	return binarySearch(btpage.NumCells(p), func(i int) int {
		k, _, _ := t.Acc.ReadCell(p, i, leaf)
		return bytes.Compare(k, key)
	})
}

// childIdx returns the slot of the child covering key. A separator is the
// first key of its right subtree, so equal keys route right.
func (t *Tree) childIdx(p *pager.Page, key []byte) int {
	i, found := t.LowerBound(p, key)
	if found {
		i++
	}
	return i
}

func binarySearch(n int, cmp func(int) int) (int, bool) {
	lo, hi := 0, n
	for lo < hi {
		m := int(uint(lo+hi) >> 1)
		if cmp(m) < 0 {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo, lo < n && cmp(lo) == 0
}

func (t *Tree) FindLeaf(key []byte) (uint32, error) {
	curr := t.RootID
	for {
		p, err := t.Pg.Read(uint64(curr))
		if err != nil {
			return 0, err
		}
		if btpage.IsLeaf(p) {
			return curr, nil
		}
		curr = t.ChildAt(p, t.childIdx(p, key), btpage.NumCells(p))
	}
}

// Get returns a copy of the value stored under key.
func (t *Tree) Get(key []byte) ([]byte, error) {
	leafID, err := t.FindLeaf(key)
	if err != nil {
		return nil, err
	}
	p, err := t.Pg.Read(uint64(leafID))
	if err != nil {
		return nil, err
	}
	idx, found := t.LowerBound(p, key)
	if !found {
		return nil, index.ErrKeyNotFound
	}
	_, v, _ := t.Acc.ReadCell(p, idx, true)
	return bytes.Clone(v), nil
}

// --- insert ---

func (t *Tree) Insert(key, value []byte) error {
	if t.Acc.CellSize(true, key, value) > btpage.MaxCellSize || t.Acc.CellSize(false, key, nil) > btpage.MaxCellSize {
		return fmt.Errorf("%w: key %d bytes, value %d bytes", ErrCellTooLarge, len(key), len(value))
	}
	sep, rightID, split, err := t.insertRec(t.RootID, key, value)
	if err != nil || !split {
		return err
	}

	newRoot, err := t.Pg.Allocate()
	if err != nil {
		return err
	}
	p := new(pager.Page)
	btpage.InitPage(p, btpage.TypeInternal)
	btpage.SetRightmost(p, rightID)
	t.AppendCell(p, CellData{Key: sep, LeftChild: t.RootID})
	if err := t.Pg.Write(newRoot, p); err != nil {
		return err
	}
	t.RootID = uint32(newRoot)
	return t.WriteHeader()
}

// insertRec returns the separator and page ID of a new right sibling when
// the node at id split.
func (t *Tree) insertRec(id uint32, key, value []byte) ([]byte, uint32, bool, error) {
	p, err := t.Pg.Read(uint64(id))
	if err != nil {
		return nil, 0, false, err
	}
	if btpage.IsLeaf(p) {
		return t.insertLeaf(id, p, key, value)
	}

	childID := t.ChildAt(p, t.childIdx(p, key), btpage.NumCells(p))
	sep, rc, split, err := t.insertRec(childID, key, value)
	if err != nil || !split {
		return nil, 0, false, err
	}

	// Re-read after the child write, the page may have been evicted.
	p, err = t.Pg.Read(uint64(id))
	if err != nil {
		return nil, 0, false, err
	}
	return t.insertInternal(id, p, t.childIdx(p, sep), sep, rc)
}

func (t *Tree) insertLeaf(id uint32, p *pager.Page, key, value []byte) ([]byte, uint32, bool, error) {
	idx, found := t.LowerBound(p, key)
	if found {
		_, old, _ := t.Acc.ReadCell(p, idx, true)
		if len(old) == len(value) {
			t.Acc.WriteCell(p, btpage.CellPtr(p, idx), key, value, 0, true)
			return nil, 0, false, t.Pg.Write(uint64(id), p)
		}
		btpage.DeleteCellPtr(p, idx)
	}

	c := CellData{Key: key, Value: value}
	if t.makeRoom(p, t.Acc.CellSize(true, key, value)) {
		t.insertAt(p, idx, c)
		if err := t.Pg.Write(uint64(id), p); err != nil {
			return nil, 0, false, err
		}
		if !found {
			t.Count++
		}
		return nil, 0, false, nil
	}

	all := slices.Insert(t.cells(p), idx, c)
	mid := splitPoint(t.sizes(true, all), 1, len(all)-1)
	newID, err := t.Pg.Allocate()
	if err != nil {
		return nil, 0, false, err
	}

	right := new(pager.Page)
	btpage.InitPage(right, btpage.TypeLeaf)
	btpage.SetNextLeaf(right, btpage.NextLeaf(p))
	for _, c := range all[mid:] {
		t.AppendCell(right, c)
	}
	btpage.InitPage(p, btpage.TypeLeaf)
	btpage.SetNextLeaf(p, uint32(newID))
	for _, c := range all[:mid] {
		t.AppendCell(p, c)
	}

	if err := t.Pg.Write(newID, right); err != nil {
		return nil, 0, false, err
	}
	if err := t.Pg.Write(uint64(id), p); err != nil {
		return nil, 0, false, err
	}
	if !found {
		t.Count++
	}
	return all[mid].Key, uint32(newID), true, nil // copy-up
}

// insertInternal adds separator sep at idx. The child left of sep is the one
// that split; rc, its new right sibling, takes the slot after sep.
func (t *Tree) insertInternal(id uint32, p *pager.Page, idx int, sep []byte, rc uint32) ([]byte, uint32, bool, error) {
	n := btpage.NumCells(p)
	c := CellData{Key: sep, LeftChild: t.ChildAt(p, idx, n)}

	if t.makeRoom(p, t.Acc.CellSize(false, sep, nil)) {
		t.insertAt(p, idx, c)
		if idx == n {
			btpage.SetRightmost(p, rc)
		} else {
			t.Acc.SetLeftChild(p, idx+1, rc)
		}
		return nil, 0, false, t.Pg.Write(uint64(id), p)
	}

	all := slices.Insert(t.cells(p), idx, c)
	rightmost := btpage.Rightmost(p)
	if idx == n {
		rightmost = rc
	} else {
		all[idx+1].LeftChild = rc
	}

	mid := splitPoint(t.sizes(false, all), 1, len(all)-2)
	median := all[mid]
	newID, err := t.Pg.Allocate()
	if err != nil {
		return nil, 0, false, err
	}

	right := new(pager.Page)
	btpage.InitPage(right, btpage.TypeInternal)
	btpage.SetRightmost(right, rightmost)
	for _, c := range all[mid+1:] {
		t.AppendCell(right, c)
	}
	btpage.InitPage(p, btpage.TypeInternal)
	btpage.SetRightmost(p, median.LeftChild)
	for _, c := range all[:mid] {
		t.AppendCell(p, c)
	}

	if err := t.Pg.Write(newID, right); err != nil {
		return nil, 0, false, err
	}
	if err := t.Pg.Write(uint64(id), p); err != nil {
		return nil, 0, false, err
	}
	return median.Key, uint32(newID), true, nil // push-up
}

func (t *Tree) insertAt(p *pager.Page, idx int, c CellData) {
	leaf := btpage.IsLeaf(p)
	off := btpage.AllocCell(p, t.Acc.CellSize(leaf, c.Key, c.Value))
	t.Acc.WriteCell(p, off, c.Key, c.Value, c.LeftChild, leaf)
	btpage.InsertCellPtr(p, idx, off)
}

// makeRoom reports whether a cell of the given size fits in p, compacting
// the page first if deleted cells left holes.
func (t *Tree) makeRoom(p *pager.Page, size int) bool {
	n := btpage.NumCells(p)
	need := size + btpage.CellPtrSize
	if btpage.FreeSpace(p, n) >= need {
		return true
	}
	leaf := btpage.IsLeaf(p)
	live := 0
	for i := 0; i < n; i++ {
		k, v, _ := t.Acc.ReadCell(p, i, leaf)
		live += t.Acc.CellSize(leaf, k, v)
	}
	if pager.PageSize-btpage.OffCellPtrs-n*btpage.CellPtrSize-live < need {
		return false
	}
	t.compact(p)
	return true
}

// compact rewrites the cells of p contiguously at the bottom of the page.
func (t *Tree) compact(p *pager.Page) {
	all := t.cells(p)
	pt, rightmost, next := p[btpage.OffType], btpage.Rightmost(p), btpage.NextLeaf(p)
	btpage.InitPage(p, pt)
	btpage.SetRightmost(p, rightmost)
	btpage.SetNextLeaf(p, next)
	for _, c := range all {
		t.AppendCell(p, c)
	}
}

func (t *Tree) sizes(leaf bool, all []CellData) []int {
	s := make([]int, len(all))
	for i, c := range all {
		s[i] = t.Acc.CellSize(leaf, c.Key, c.Value) + btpage.CellPtrSize
	}
	return s
}

// splitPoint returns the first index of the upper half so that the lower
// half holds at least half of the bytes, clamped to [lo, hi].
func splitPoint(sizes []int, lo, hi int) int {
	total := 0
	for _, s := range sizes {
		total += s
	}
	mid, acc := len(sizes), 0
	for i, s := range sizes {
		acc += s
		if 2*acc >= total {
			mid = i + 1
			break
		}
	}
	return min(max(mid, lo), hi)
}

// --- delete ---

// Delete removes key from its leaf. Pages are never merged; the cursor steps
// over leaves left empty.
func (t *Tree) Delete(key []byte) error {
	leafID, err := t.FindLeaf(key)
	if err != nil {
		return err
	}
	p, err := t.Pg.Read(uint64(leafID))
	if err != nil {
		return err
	}
	idx, found := t.LowerBound(p, key)
	if !found {
		return index.ErrKeyNotFound
	}
	btpage.DeleteCellPtr(p, idx)
	t.Count--
	return t.Pg.Write(uint64(leafID), p)
}

// --- header ---

func (t *Tree) WriteHeader() error {
	p, err := t.Pg.Read(headerPage)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(p[0:4], t.RootID)
	binary.LittleEndian.PutUint64(p[4:12], t.Count)
	return t.Pg.Write(headerPage, p)
}

func (t *Tree) ReadHeader() error {
	p, err := t.Pg.Read(headerPage)
	if err != nil {
		return err
	}
	t.RootID = binary.LittleEndian.Uint32(p[0:4])
	t.Count = binary.LittleEndian.Uint64(p[4:12])
	return nil
}
