package bplus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btree-query-bench/zscan/index"
	"github.com/btree-query-bench/zscan/index/indextest"
)

func TestBPlusTreeContract(t *testing.T) {
	for _, degree := range []int{2, 3, 8, 32} {
		t.Run(fmt.Sprintf("t=%d", degree), func(t *testing.T) {
			indextest.Run(t, func(*testing.T) index.Index { return NewBPlusTree(degree) })
		})
	}
}

func TestCursorSkipsEmptiedLeaves(t *testing.T) {
	bt := NewBPlusTree(2)
	for i := 0; i < 50; i++ {
		require.NoError(t, bt.Insert([]byte(fmt.Sprintf("%03d", i)), nil))
	}
	for i := 10; i < 40; i++ {
		require.NoError(t, bt.Delete([]byte(fmt.Sprintf("%03d", i))))
	}
	assert.Equal(t, 20, bt.Len())

	c, err := bt.Cursor([]byte("005"), nil)
	require.NoError(t, err)
	var got []string
	for tup, ok := c.Tuple(); ok; {
		got = append(got, string(tup.Key))
		tup, ok, err = c.Next()
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"005", "006", "007", "008", "009"}, got[:5])
	assert.Equal(t, "040", got[5])
	assert.Len(t, got, 15)

	_, ok, err := c.Seek([]byte("020"))
	require.NoError(t, err)
	assert.False(t, ok)
	tup, ok, err := c.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("040"), tup.Key)
}

func TestNewBPlusTreeMinimumDegree(t *testing.T) {
	assert.Equal(t, 2, NewBPlusTree(0).T)
}
