// Package geo maps multi-dimensional coordinates onto bit-interleaved
// (Morton) byte strings and back, and describes geospatial datatypes whose
// literals are stored in z-order indexes.
package geo

import (
	"errors"
	"fmt"
)

var (
	ErrDimensions = errors.New("geo: wrong number of dimensions")
	ErrOverflow   = errors.New("geo: coordinate exceeds dimension width")
	ErrKeyLength  = errors.New("geo: wrong interleaved key length")
	ErrLiteral    = errors.New("geo: malformed literal")
)

// literalSign is the first byte of every stored literal: the zero pad byte
// with its sign bit flipped, which keeps the two's-complement form of the
// padded (always positive) value ordered as unsigned bytes.
const literalSign = 0x80

// MortonCodec interleaves numDimensions coordinates of bitsPerDimension bits
// each, most significant bits first, dimension 0 leading.
type MortonCodec struct {
	dims      int
	bits      int
	keyLength int
}

// NewMortonCodec returns a codec for dims coordinates of bits bits each.
func NewMortonCodec(dims, bits int) (*MortonCodec, error) {
	if dims < 1 {
		return nil, fmt.Errorf("%w: %d", ErrDimensions, dims)
	}
	if bits < 1 || bits > 64 {
		return nil, fmt.Errorf("geo: bits per dimension must be in [1,64], got %d", bits)
	}
	return &MortonCodec{
		dims:      dims,
		bits:      bits,
		keyLength: (dims*bits + 7) / 8,
	}, nil
}

func (c *MortonCodec) NumDimensions() int    { return c.dims }
func (c *MortonCodec) BitsPerDimension() int { return c.bits }
func (c *MortonCodec) TotalBits() int        { return c.dims * c.bits }
func (c *MortonCodec) KeyLength() int        { return c.keyLength }

// LiteralLength is the byte length of a stored literal.
func (c *MortonCodec) LiteralLength() int { return c.keyLength + 1 }

// ToInterleaved encodes coords into an unpadded unsigned interleaved key.
func (c *MortonCodec) ToInterleaved(coords []uint64) ([]byte, error) {
	if len(coords) != c.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensions, len(coords), c.dims)
	}
	if c.bits < 64 {
		for d, v := range coords {
			if v>>c.bits != 0 {
				return nil, fmt.Errorf("%w: dimension %d value %d, %d bits", ErrOverflow, d, v, c.bits)
			}
		}
	}

	out := make([]byte, c.keyLength)
	pos := 0
	for b := c.bits - 1; b >= 0; b-- {
		for d := 0; d < c.dims; d++ {
			if coords[d]>>b&1 == 1 {
				out[pos>>3] |= 0x80 >> (pos & 7)
			}
			pos++
		}
	}
	return out, nil
}

// FromInterleaved decodes an unsigned interleaved key, padded or not.
func (c *MortonCodec) FromInterleaved(b []byte) ([]uint64, error) {
	b = c.UnpadLeadingZero(b)
	if len(b) != c.keyLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrKeyLength, len(b), c.keyLength)
	}

	coords := make([]uint64, c.dims)
	pos := 0
	for bit := c.bits - 1; bit >= 0; bit-- {
		for d := 0; d < c.dims; d++ {
			if b[pos>>3]&(0x80>>(pos&7)) != 0 {
				coords[d] |= 1 << bit
			}
			pos++
		}
	}
	return coords, nil
}

// PadLeadingZero prepends the zero byte that makes the key a non-negative
// two's-complement number.
func (c *MortonCodec) PadLeadingZero(b []byte) []byte {
	if len(b) != c.keyLength {
		return b
	}
	out := make([]byte, 0, len(b)+1)
	out = append(out, 0)
	return append(out, b...)
}

// UnpadLeadingZero strips the pad byte added by PadLeadingZero.
func (c *MortonCodec) UnpadLeadingZero(b []byte) []byte {
	if len(b) == c.keyLength+1 && b[0] == 0 {
		return b[1:]
	}
	return b
}

// LiteralFromInterleaved converts an unsigned key into its stored form.
func (c *MortonCodec) LiteralFromInterleaved(b []byte) []byte {
	b = c.UnpadLeadingZero(b)
	out := make([]byte, 0, len(b)+1)
	out = append(out, literalSign)
	return append(out, b...)
}

// InterleavedFromLiteral reverses LiteralFromInterleaved.
func (c *MortonCodec) InterleavedFromLiteral(lit []byte) ([]byte, error) {
	if len(lit) != c.keyLength+1 || lit[0] != literalSign {
		return nil, fmt.Errorf("%w: %x", ErrLiteral, lit)
	}
	return lit[1:], nil
}
