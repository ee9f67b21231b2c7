package zorder

import (
	"bytes"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btree-query-bench/zscan/geo"
)

func interleave(t *testing.T, c *geo.MortonCodec, coords ...uint64) []byte {
	t.Helper()
	b, err := c.ToInterleaved(coords)
	require.NoError(t, err)
	return b
}

func TestComputeBigMinWorkedExample(t *testing.T) {
	c, err := geo.NewMortonCodec(2, 4)
	require.NoError(t, err)

	min := interleave(t, c, 2, 2)
	max := interleave(t, c, 5, 5)
	record := interleave(t, c, 6, 1)
	require.Equal(t, []byte{41}, record)

	s := NewScratch(c.KeyLength())
	got, found, err := ComputeBigMin(s, record, min, max, 2, c.TotalBits())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, interleave(t, c, 4, 4), got)
}

func TestComputeBigMinOutcomes(t *testing.T) {
	c, err := geo.NewMortonCodec(2, 4)
	require.NoError(t, err)
	min := interleave(t, c, 2, 2)
	max := interleave(t, c, 5, 5)

	tests := []struct {
		name   string
		record []uint64
		found  bool
		want   []uint64
	}{
		{"record inside box", []uint64{3, 3}, true, []uint64{3, 3}},
		{"record on min corner", []uint64{2, 2}, true, []uint64{2, 2}},
		{"record on max corner", []uint64{5, 5}, true, []uint64{5, 5}},
		{"record below box", []uint64{0, 0}, true, []uint64{2, 2}},
		{"record above box", []uint64{7, 7}, false, nil},
		{"record past max in z-order", []uint64{15, 15}, false, nil},
		{"record between quadrants", []uint64{1, 6}, true, []uint64{2, 4}},
		{"record left of box", []uint64{1, 3}, true, []uint64{2, 2}},
		{"record in gap before upper quadrants", []uint64{4, 0}, true, []uint64{4, 2}},
	}
	s := NewScratch(c.KeyLength())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found, err := ComputeBigMin(s, interleave(t, c, tt.record...), min, max, 2, c.TotalBits())
			require.NoError(t, err)
			require.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, interleave(t, c, tt.want...), got)
			}
		})
	}
}

func TestComputeBigMinInvalidBox(t *testing.T) {
	c, err := geo.NewMortonCodec(2, 4)
	require.NoError(t, err)
	s := NewScratch(c.KeyLength())

	// x is inverted; y is fine.
	_, _, err = ComputeBigMin(s, interleave(t, c, 0, 0), interleave(t, c, 5, 2), interleave(t, c, 2, 5), 2, 8)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = NewCalculator(interleave(t, c, 5, 2), interleave(t, c, 2, 5), 2, 8)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestDecisionTableInvalidRows(t *testing.T) {
	s := NewScratch(1)
	// Row 0-1-0: min has a 1 where max has a 0.
	_, _, err := computeBigMin(s, []byte{0x00}, []byte{0x80}, []byte{0x00}, 1, 8)
	assert.ErrorIs(t, err, ErrInvalidRange)
	// Row 1-1-0.
	_, _, err = computeBigMin(s, []byte{0x80}, []byte{0x80}, []byte{0x00}, 1, 8)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestComputeBigMinLengthMismatch(t *testing.T) {
	s := NewScratch(2)
	_, _, err := ComputeBigMin(s, []byte{0, 0}, []byte{0}, []byte{0, 1}, 2, 16)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, _, err = ComputeBigMin(s, []byte{0, 0}, []byte{0, 0}, []byte{0, 1}, 2, 17)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	calc, err := NewCalculator([]byte{0, 0}, []byte{0, 1}, 2, 16)
	require.NoError(t, err)
	_, _, err = calc.BigMin([]byte{0})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

// space enumerates every key of a codec in ascending byte order.
func space(t *testing.T, c *geo.MortonCodec) [][]byte {
	t.Helper()
	side := uint64(1) << c.BitsPerDimension()
	coords := make([]uint64, c.NumDimensions())
	var out [][]byte
	var rec func(d int)
	rec = func(d int) {
		if d == len(coords) {
			out = append(out, interleave(t, c, coords...))
			return
		}
		for v := uint64(0); v < side; v++ {
			coords[d] = v
			rec(d + 1)
		}
	}
	rec(0)
	slices.SortFunc(out, bytes.Compare)
	return out
}

func randomBox(rng *rand.Rand, dims, bits int) (lo, hi []uint64) {
	lo, hi = make([]uint64, dims), make([]uint64, dims)
	side := 1 << bits
	for d := 0; d < dims; d++ {
		a, b := uint64(rng.Intn(side)), uint64(rng.Intn(side))
		lo[d], hi[d] = min(a, b), max(a, b)
	}
	return lo, hi
}

func TestComputeBigMinMatchesBruteForce(t *testing.T) {
	configs := []struct{ dims, bits int }{
		{2, 4},
		{1, 8},
		{3, 4}, // 12 bits in 2 bytes: 4 padding bits
		{2, 6},
	}
	for _, cfg := range configs {
		c, err := geo.NewMortonCodec(cfg.dims, cfg.bits)
		require.NoError(t, err)
		all := space(t, c)
		rng := rand.New(rand.NewSource(int64(cfg.dims*100 + cfg.bits)))

		for boxN := 0; boxN < 25; boxN++ {
			lo, hi := randomBox(rng, cfg.dims, cfg.bits)
			min, max := interleave(t, c, lo...), interleave(t, c, hi...)
			calc, err := NewCalculator(min, max, cfg.dims, c.TotalBits())
			require.NoError(t, err)

			var inBox [][]byte
			for _, k := range all {
				coords, err := c.FromInterleaved(k)
				require.NoError(t, err)
				if InRange(coords, lo, hi) {
					inBox = append(inBox, k)
				}
			}

			for _, r := range all {
				got, found, err := calc.BigMin(r)
				require.NoError(t, err)

				i, _ := slices.BinarySearchFunc(inBox, r, bytes.Compare)
				if i == len(inBox) {
					require.Falsef(t, found, "dims=%d bits=%d box=%v..%v record=%x: got %x",
						cfg.dims, cfg.bits, lo, hi, r, got)
					continue
				}
				require.Truef(t, found, "dims=%d bits=%d box=%v..%v record=%x", cfg.dims, cfg.bits, lo, hi, r)
				require.Equalf(t, inBox[i], got, "dims=%d bits=%d box=%v..%v record=%x",
					cfg.dims, cfg.bits, lo, hi, r)
			}
		}
	}
}

func TestBigMinMonotone(t *testing.T) {
	c, err := geo.NewMortonCodec(2, 5)
	require.NoError(t, err)
	all := space(t, c)
	calc, err := NewCalculator(interleave(t, c, 3, 7), interleave(t, c, 20, 11), 2, c.TotalBits())
	require.NoError(t, err)

	var prev []byte
	for _, r := range all {
		got, found, err := calc.BigMin(r)
		require.NoError(t, err)
		if !found {
			prev = nil
			continue
		}
		assert.GreaterOrEqual(t, bytes.Compare(got, r), 0)
		if prev != nil {
			assert.LessOrEqual(t, bytes.Compare(prev, got), 0)
		}
		prev = bytes.Clone(got)
	}
}

func TestCalculatorReusesScratch(t *testing.T) {
	c, err := geo.NewMortonCodec(2, 4)
	require.NoError(t, err)
	calc, err := NewCalculator(interleave(t, c, 2, 2), interleave(t, c, 5, 5), 2, 8)
	require.NoError(t, err)

	first, found, err := calc.BigMin(interleave(t, c, 6, 1))
	require.NoError(t, err)
	require.True(t, found)
	saved := bytes.Clone(first)

	_, found, err = calc.BigMin(interleave(t, c, 0, 0))
	require.NoError(t, err)
	require.True(t, found)
	assert.NotEqual(t, saved, first, "result aliases the scratch buffer")
}
