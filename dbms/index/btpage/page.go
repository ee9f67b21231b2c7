// Package btpage provides the on-disk slotted page layout used by the paged
// B+ tree.
//
// Page layout:
//
//	[0]     1 byte   page type (TypeInternal / TypeLeaf)
//	[1-2]   2 bytes  numCells
//	[3-4]   2 bytes  cellContentStart (top of cell area, grows upward from bottom)
//	[5-8]   4 bytes  rightmost child page ID (internal pages only)
//	[9-12]  4 bytes  nextLeaf page ID (leaf pages only, else InvalidPage)
//	[13+]   cell pointer array, one uint16 offset per cell, grows downward
//	        ...free space...
//	        cell content area, grows upward from bottom of page
package btpage

import (
	"encoding/binary"

	"github.com/btree-query-bench/zscan/dbms/pager"
)

const (
	TypeInternal = byte(0)
	TypeLeaf     = byte(1)

	OffType        = 0
	OffNumCells    = 1
	OffCellContent = 3
	OffRightmost   = 5
	OffNextLeaf    = 9
	OffCellPtrs    = 13

	CellPtrSize = 2

	InvalidPage = uint32(0xFFFFFFFF)

	// MaxCellSize keeps at least four cells on every page so a split
	// always leaves two non-empty halves.
	MaxCellSize = (pager.PageSize-OffCellPtrs)/4 - CellPtrSize
)

func InitPage(p *pager.Page, pt byte) {
	clear(p[:])
	p[OffType] = pt
	SetNumCells(p, 0)
	SetCellContent(p, uint16(pager.PageSize))
	SetNextLeaf(p, InvalidPage)
}

func IsLeaf(p *pager.Page) bool { return p[OffType] == TypeLeaf }

func NumCells(p *pager.Page) int {
	return int(binary.LittleEndian.Uint16(p[OffNumCells : OffNumCells+2]))
}

func SetNumCells(p *pager.Page, n int) {
	binary.LittleEndian.PutUint16(p[OffNumCells:OffNumCells+2], uint16(n))
}

// CellContent is the offset of the lowest cell byte.
func CellContent(p *pager.Page) int {
	return int(binary.LittleEndian.Uint16(p[OffCellContent : OffCellContent+2]))
}

func SetCellContent(p *pager.Page, v uint16) {
	binary.LittleEndian.PutUint16(p[OffCellContent:OffCellContent+2], v)
}

func Rightmost(p *pager.Page) uint32 {
	return binary.LittleEndian.Uint32(p[OffRightmost : OffRightmost+4])
}

func SetRightmost(p *pager.Page, id uint32) {
	binary.LittleEndian.PutUint32(p[OffRightmost:OffRightmost+4], id)
}

func NextLeaf(p *pager.Page) uint32 {
	return binary.LittleEndian.Uint32(p[OffNextLeaf : OffNextLeaf+4])
}

func SetNextLeaf(p *pager.Page, id uint32) {
	binary.LittleEndian.PutUint32(p[OffNextLeaf:OffNextLeaf+4], id)
}

func CellPtr(p *pager.Page, i int) int {
	o := OffCellPtrs + i*CellPtrSize
	return int(binary.LittleEndian.Uint16(p[o : o+2]))
}

func SetCellPtr(p *pager.Page, i int, off int) {
	o := OffCellPtrs + i*CellPtrSize
	binary.LittleEndian.PutUint16(p[o:o+2], uint16(off))
}

// FreeSpace is the gap between the pointer array of n cells and the cell
// content area.
func FreeSpace(p *pager.Page, n int) int {
	return CellContent(p) - (OffCellPtrs + n*CellPtrSize)
}

func AllocCell(p *pager.Page, size int) int {
	top := CellContent(p) - size
	SetCellContent(p, uint16(top))
	return top
}

// InsertCellPtr opens slot i in the pointer array and points it at off.
func InsertCellPtr(p *pager.Page, i, off int) {
	n := NumCells(p)
	for j := n; j > i; j-- {
		SetCellPtr(p, j, CellPtr(p, j-1))
	}
	SetCellPtr(p, i, off)
	SetNumCells(p, n+1)
}

// DeleteCellPtr drops slot i. The cell bytes stay behind until the page is
// compacted.
func DeleteCellPtr(p *pager.Page, i int) {
	n := NumCells(p)
	for j := i; j < n-1; j++ {
		SetCellPtr(p, j, CellPtr(p, j+1))
	}
	SetNumCells(p, n-1)
}
