package pager

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestPagerAllocateWriteRead(t *testing.T) {
	fs := vfs.NewMem()
	p, err := Open(fs, "pages", 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.PageCount(), "page 0 is the header")

	id, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	pg := new(Page)
	copy(pg[:], "hello")
	pg[PageSize-1] = 0xAB
	require.NoError(t, p.Write(id, pg))

	got, err := p.Read(id)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got[:5]))
	assert.Equal(t, byte(0xAB), got[PageSize-1])

	_, err = p.Read(7)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	assert.ErrorIs(t, p.Write(7, pg), ErrPageOutOfRange)
	require.NoError(t, p.Close())
}

func TestPagerReopenKeepsPages(t *testing.T) {
	fs := vfs.NewMem()
	p, err := Open(fs, "pages", 2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		id, err := p.Allocate()
		require.NoError(t, err)
		pg := new(Page)
		pg[0] = byte(10 + i)
		require.NoError(t, p.Write(id, pg))
	}
	require.NoError(t, p.Close())

	p, err = Open(fs, "pages", 2)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, uint64(6), p.PageCount())
	for i := 0; i < 5; i++ {
		pg, err := p.Read(uint64(i + 1))
		require.NoError(t, err)
		assert.Equal(t, byte(10+i), pg[0])
	}
}

func TestPagerRejectsTornFile(t *testing.T) {
	fs := vfs.NewMem()
	f, err := fs.Create("torn")
	require.NoError(t, err)
	_, err = f.Write(make([]byte, PageSize+10))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(fs, "torn", 1)
	assert.ErrorContains(t, err, "not a multiple")
}

func TestPagerCacheIsBounded(t *testing.T) {
	p, err := Open(vfs.NewMem(), "pages", 0)
	require.NoError(t, err)
	defer p.Close()

	for i := 0; i < 3; i++ {
		_, err := p.Allocate()
		require.NoError(t, err)
	}
	for id := uint64(1); id <= 3; id++ {
		_, err := p.Read(id)
		require.NoError(t, err)
		assert.Equal(t, 1, p.CachedPages())
	}
}

func TestLRUCacheEvictsLeastRecent(t *testing.T) {
	c := newLRUCache(2)
	a, b, d := new(Page), new(Page), new(Page)
	c.put(1, a)
	c.put(2, b)
	assert.Same(t, a, c.get(1)) // 1 is now most recent
	c.put(3, d)

	assert.Nil(t, c.get(2))
	assert.Same(t, a, c.get(1))
	assert.Same(t, d, c.get(3))
	assert.Len(t, c.items, 2)

	e := new(Page)
	c.put(3, e)
	assert.Same(t, e, c.get(3))
	assert.Len(t, c.items, 2)
}

func TestPagerConcurrentReads(t *testing.T) {
	p, err := Open(vfs.NewMem(), "pages", 3)
	require.NoError(t, err)
	defer p.Close()
	for i := 0; i < 10; i++ {
		id, err := p.Allocate()
		require.NoError(t, err)
		pg := new(Page)
		pg[0] = byte(id)
		require.NoError(t, p.Write(id, pg))
	}

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for n := 0; n < 200; n++ {
				id := uint64(1 + (w+n)%10)
				pg, err := p.Read(id)
				if err != nil {
					return err
				}
				if pg[0] != byte(id) {
					return fmt.Errorf("page %d holds %d", id, pg[0])
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, p.CachedPages(), 3)
}
