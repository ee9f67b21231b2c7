package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	b := NewBuilder(16)
	key := b.AppendUint64(0x0102030405060708).AppendBytes([]byte{0xAA}).Key()
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 0xAA}, key)

	again := b.Reset().AppendUint64(1).Key()
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 1}, again)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 0xAA}, key, "Key returns a copy")
}

func TestLayoutSplit(t *testing.T) {
	l := Layout{PrefixComponents: 1, LiteralLen: 3}
	assert.Equal(t, 8, l.PrefixLen())
	assert.Equal(t, 11, l.MinKeyLen())

	key := NewBuilder(0).AppendUint64(42).AppendBytes([]byte{0x80, 1, 2}).AppendUint64(7).Key()
	prefix, lit, err := l.SplitKey(key)
	require.NoError(t, err)
	assert.Equal(t, key[:8], prefix)
	assert.Equal(t, []byte{0x80, 1, 2}, lit)

	suffix, err := l.Suffix(key)
	require.NoError(t, err)
	assert.Len(t, suffix, 8)

	id, err := l.PrefixID(key, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	_, err = l.PrefixID(key, 1)
	assert.Error(t, err)

	_, _, err = l.SplitKey(key[:10])
	assert.ErrorIs(t, err, ErrShortKey)
	_, err = l.Suffix(key[:10])
	assert.ErrorIs(t, err, ErrShortKey)
}

func TestAppendKeySortsBeforeSuffixedKeys(t *testing.T) {
	l := Layout{PrefixComponents: 1, LiteralLen: 2}
	prefix := NewBuilder(0).AppendUint64(3).Key()
	seek := l.AppendKey(nil, prefix, []byte{0x80, 0x10})
	stored := NewBuilder(0).AppendBytes(seek).AppendUint64(0).Key()
	assert.Less(t, string(seek), string(stored))
}

func TestPrefixBounds(t *testing.T) {
	tests := []struct {
		prefix []byte
		upper  []byte
	}{
		{[]byte{1, 2}, []byte{1, 3}},
		{[]byte{1, 0xFF}, []byte{2}},
		{[]byte{0xFF, 0xFF}, nil},
		{nil, nil},
	}
	for _, tt := range tests {
		lower, upper := PrefixBounds(tt.prefix)
		assert.Equal(t, len(tt.prefix), len(lower))
		assert.Equal(t, tt.upper, upper)
	}
}
