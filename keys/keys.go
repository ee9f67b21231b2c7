// Package keys builds composite index keys of the form
//
//	[prefix component(8) ...] [z-order literal] [suffix]
//
// Prefix components are big-endian uint64 ids so lexicographic order matches
// numeric order. The suffix is opaque and makes keys for equal literals
// unique.
package keys

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// IDSize is the width of one prefix component.
const IDSize = 8

var ErrShortKey = errors.New("keys: key shorter than layout")

// Builder appends key components into a reusable buffer.
type Builder struct {
	buf []byte
}

func NewBuilder(capacity int) *Builder {
	return &Builder{buf: make([]byte, 0, capacity)}
}

func (b *Builder) Reset() *Builder {
	b.buf = b.buf[:0]
	return b
}

func (b *Builder) AppendUint64(v uint64) *Builder {
	b.buf = binary.BigEndian.AppendUint64(b.buf, v)
	return b
}

func (b *Builder) AppendBytes(p []byte) *Builder {
	b.buf = append(b.buf, p...)
	return b
}

// Key returns a copy of the built key.
func (b *Builder) Key() []byte {
	return append([]byte(nil), b.buf...)
}

// Layout describes where the z-order literal sits inside a key.
type Layout struct {
	PrefixComponents int
	LiteralLen       int
}

func (l Layout) PrefixLen() int { return l.PrefixComponents * IDSize }

// MinKeyLen is the length of a key without suffix.
func (l Layout) MinKeyLen() int { return l.PrefixLen() + l.LiteralLen }

// SplitKey returns the prefix and literal of key. Both alias key.
func (l Layout) SplitKey(key []byte) (prefix, literal []byte, err error) {
	if len(key) < l.MinKeyLen() {
		return nil, nil, fmt.Errorf("%w: %d bytes, need %d", ErrShortKey, len(key), l.MinKeyLen())
	}
	p := l.PrefixLen()
	return key[:p], key[p : p+l.LiteralLen], nil
}

// AppendKey appends prefix and literal to dst. The result sorts before every
// key sharing the same prefix and literal.
func (l Layout) AppendKey(dst, prefix, literal []byte) []byte {
	dst = append(dst, prefix...)
	return append(dst, literal...)
}

// Suffix returns the bytes following the literal.
func (l Layout) Suffix(key []byte) ([]byte, error) {
	if len(key) < l.MinKeyLen() {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrShortKey, len(key), l.MinKeyLen())
	}
	return key[l.MinKeyLen():], nil
}

// PrefixID decodes the i-th prefix component.
func (l Layout) PrefixID(key []byte, i int) (uint64, error) {
	if i < 0 || i >= l.PrefixComponents {
		return 0, fmt.Errorf("keys: prefix component %d out of range [0,%d)", i, l.PrefixComponents)
	}
	if len(key) < (i+1)*IDSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrShortKey, len(key))
	}
	return binary.BigEndian.Uint64(key[i*IDSize:]), nil
}

// PrefixBounds returns the [lower, upper) range covering all keys that start
// with prefix. upper is nil when prefix is all 0xff.
func PrefixBounds(prefix []byte) (lower, upper []byte) {
	lower = append([]byte(nil), prefix...)
	upper = append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xff {
			upper[i]++
			return lower, upper[:i+1]
		}
	}
	return lower, nil
}
