package zorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetBit(t *testing.T) {
	b := []byte{0b10100000, 0b00000001}
	assert.True(t, GetBit(b, 0))
	assert.False(t, GetBit(b, 1))
	assert.True(t, GetBit(b, 2))
	assert.True(t, GetBit(b, 15))
	assert.False(t, GetBit(b, 14))

	SetBit(b, 1, true)
	SetBit(b, 15, false)
	SetBit(b, 8, true)
	assert.Equal(t, []byte{0b11100000, 0b10000000}, b)

	SetBit(b, 0, false)
	assert.Equal(t, byte(0b01100000), b[0])
}

func TestBitOutOfRangePanics(t *testing.T) {
	b := make([]byte, 2)
	require.Panics(t, func() { GetBit(b, 16) })
	require.Panics(t, func() { GetBit(b, -1) })
	require.Panics(t, func() { SetBit(b, 16, true) })
}

func TestLoadHighLoadLow(t *testing.T) {
	tests := []struct {
		name      string
		in        byte
		bit       int
		dims      int
		totalBits int
		high      bool
		want      byte
	}{
		{"high clears lower bits of dimension", 0xFF, 0, 2, 8, true, 0b11010101},
		{"high sets bit", 0b10101010, 1, 2, 8, true, 0b11101010},
		{"low sets lower bits of dimension", 0x00, 1, 2, 8, false, 0b00010101},
		{"low leaves padding alone", 0x00, 1, 2, 6, false, 0b00010100},
		{"high one dimension", 0xFF, 4, 1, 8, true, 0b11111000},
		{"low three dimensions", 0x00, 0, 3, 8, false, 0b00010010},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := []byte{tt.in}
			if tt.high {
				loadHigh(b, tt.bit, tt.dims, tt.totalBits)
			} else {
				loadLow(b, tt.bit, tt.dims, tt.totalBits)
			}
			assert.Equalf(t, tt.want, b[0], "got %08b want %08b", b[0], tt.want)
		})
	}
}
