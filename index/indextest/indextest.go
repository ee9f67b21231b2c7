// Package indextest checks index.Index implementations against the shared
// point, range and cursor contract.
package indextest

import (
	"bytes"
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btree-query-bench/zscan/index"
)

// Factory returns an empty index. The suite closes it.
type Factory func(t *testing.T) index.Index

func key(i int) []byte { return []byte(fmt.Sprintf("k%04d", i)) }

// load inserts the even keys k0000, k0002, ... k0198.
func load(t *testing.T, idx index.Index) {
	t.Helper()
	for i := 0; i < 200; i += 2 {
		require.NoError(t, idx.Insert(key(i), []byte(fmt.Sprint(i))))
	}
}

func next(t *testing.T, c index.Cursor) []byte {
	t.Helper()
	tup, ok, err := c.Next()
	require.NoError(t, err)
	if !ok {
		return nil
	}
	return tup.Key
}

// Run executes the whole suite against indexes built by newIndex.
func Run(t *testing.T, newIndex Factory) {
	t.Run("PointOps", func(t *testing.T) { testPointOps(t, newIndex(t)) })
	t.Run("Range", func(t *testing.T) { testRange(t, newIndex(t)) })
	t.Run("CursorSeek", func(t *testing.T) { testCursorSeek(t, newIndex(t)) })
	t.Run("CursorBounds", func(t *testing.T) { testCursorBounds(t, newIndex(t)) })
	t.Run("CursorRandom", func(t *testing.T) { testCursorRandom(t, newIndex(t)) })
}

func testPointOps(t *testing.T, idx index.Index) {
	defer idx.Close()
	load(t, idx)
	assert.Equal(t, 100, idx.Len())

	v, err := idx.Get(key(42))
	require.NoError(t, err)
	assert.Equal(t, []byte("42"), v)

	_, err = idx.Get(key(43))
	assert.ErrorIs(t, err, index.ErrKeyNotFound)

	require.NoError(t, idx.Insert(key(42), []byte("updated")))
	v, err = idx.Get(key(42))
	require.NoError(t, err)
	assert.Equal(t, []byte("updated"), v)
	assert.Equal(t, 100, idx.Len())

	require.NoError(t, idx.Delete(key(42)))
	_, err = idx.Get(key(42))
	assert.ErrorIs(t, err, index.ErrKeyNotFound)
	assert.Equal(t, 99, idx.Len())
}

func testRange(t *testing.T, idx index.Index) {
	defer idx.Close()
	load(t, idx)

	it, err := idx.Range(key(9), key(20))
	require.NoError(t, err)
	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	require.NoError(t, it.Error())
	require.NoError(t, it.Close())
	assert.Equal(t, []string{"k0010", "k0012", "k0014", "k0016", "k0018"}, got)

	it, err = idx.Range(key(190), nil)
	require.NoError(t, err)
	n := 0
	for it.Next() {
		n++
	}
	require.NoError(t, it.Close())
	assert.Equal(t, 5, n)
}

func testCursorSeek(t *testing.T, idx index.Index) {
	defer idx.Close()
	load(t, idx)

	c, err := idx.Cursor(nil, nil)
	require.NoError(t, err)
	defer c.Close()

	first, ok := c.Tuple()
	require.True(t, ok)
	assert.Equal(t, key(0), first.Key)

	// Exact match positions on the key.
	tup, ok, err := c.Seek(key(50))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, key(50), tup.Key)
	assert.Equal(t, []byte("50"), tup.Value)
	cur, ok := c.Tuple()
	require.True(t, ok)
	assert.Equal(t, key(50), cur.Key)
	assert.Equal(t, key(52), next(t, c))

	// A miss reports nothing; Next yields the successor of the sought key.
	_, ok, err = c.Seek(key(61))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, key(62), next(t, c))
	assert.Equal(t, key(64), next(t, c))

	// Seeking backwards is allowed.
	_, ok, err = c.Seek(key(3))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, key(4), next(t, c))

	// Past the last key the cursor is exhausted.
	_, ok, err = c.Seek(key(500))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, next(t, c))
	assert.Nil(t, next(t, c))
}

func testCursorBounds(t *testing.T, idx index.Index) {
	defer idx.Close()
	load(t, idx)

	c, err := idx.Cursor(key(10), key(20))
	require.NoError(t, err)
	defer c.Close()

	first, ok := c.Tuple()
	require.True(t, ok)
	assert.Equal(t, key(10), first.Key)

	// Below lower: clamped and never an exact match.
	_, ok, err = c.Seek(key(2))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, key(10), next(t, c))

	// Exact match on the upper bound is outside the cursor.
	_, ok, err = c.Seek(key(20))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, next(t, c))

	_, ok, err = c.Seek(key(16))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, key(18), next(t, c))
	assert.Nil(t, next(t, c), "upper bound is exclusive")

	empty, err := idx.Cursor(key(300), nil)
	require.NoError(t, err)
	_, ok = empty.Tuple()
	assert.False(t, ok)
	assert.Nil(t, next(t, empty))
	require.NoError(t, empty.Close())
}

// testCursorRandom checks seeks against a sorted model with variable-length
// binary keys.
func testCursorRandom(t *testing.T, idx index.Index) {
	defer idx.Close()
	rng := rand.New(rand.NewSource(1))
	var model [][]byte
	for i := 0; i < 500; i++ {
		k := make([]byte, 1+rng.Intn(4))
		rng.Read(k)
		if _, found := slices.BinarySearchFunc(model, k, bytes.Compare); found {
			continue
		}
		require.NoError(t, idx.Insert(k, nil))
		pos, _ := slices.BinarySearchFunc(model, k, bytes.Compare)
		model = slices.Insert(model, pos, k)
	}

	c, err := idx.Cursor(nil, nil)
	require.NoError(t, err)
	defer c.Close()

	for n := 0; n < 300; n++ {
		target := make([]byte, 1+rng.Intn(4))
		rng.Read(target)
		if n%3 == 0 {
			target = bytes.Clone(model[rng.Intn(len(model))])
		}
		i, found := slices.BinarySearchFunc(model, target, bytes.Compare)

		tup, ok, err := c.Seek(target)
		require.NoError(t, err)
		require.Equal(t, found, ok)
		if found {
			require.Equal(t, target, tup.Key)
			i++
		}
		got := next(t, c)
		if i == len(model) {
			require.Nil(t, got)
		} else {
			require.Equal(t, model[i], got)
		}
	}
}
