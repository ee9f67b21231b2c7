package zorder_test

import (
	"bytes"
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btree-query-bench/zscan/geo"
	"github.com/btree-query-bench/zscan/index"
	"github.com/btree-query-bench/zscan/index/listindex"
	"github.com/btree-query-bench/zscan/keys"
	"github.com/btree-query-bench/zscan/zorder"
)

type fixture struct {
	codec  *geo.MortonCodec
	layout keys.Layout
	idx    *listindex.ListIndex
}

func newFixture(t *testing.T, prefixComponents int) *fixture {
	t.Helper()
	c, err := geo.NewMortonCodec(2, 4)
	require.NoError(t, err)
	return &fixture{
		codec:  c,
		layout: keys.Layout{PrefixComponents: prefixComponents, LiteralLen: c.LiteralLength()},
		idx:    listindex.NewListIndex(),
	}
}

func (f *fixture) key(t *testing.T, prefix []uint64, subject uint64, x, y uint64) []byte {
	t.Helper()
	z, err := f.codec.ToInterleaved([]uint64{x, y})
	require.NoError(t, err)
	b := keys.NewBuilder(32)
	for _, p := range prefix {
		b.AppendUint64(p)
	}
	return b.AppendBytes(f.codec.LiteralFromInterleaved(z)).AppendUint64(subject).Key()
}

func (f *fixture) corners(t *testing.T, lo, hi [2]uint64) (min, max []byte) {
	t.Helper()
	min, err := f.codec.ToInterleaved(lo[:])
	require.NoError(t, err)
	max, err = f.codec.ToInterleaved(hi[:])
	require.NoError(t, err)
	return min, max
}

func (f *fixture) decode(t *testing.T, key []byte) []uint64 {
	t.Helper()
	_, lit, err := f.layout.SplitKey(key)
	require.NoError(t, err)
	z, err := f.codec.InterleavedFromLiteral(lit)
	require.NoError(t, err)
	coords, err := f.codec.FromInterleaved(z)
	require.NoError(t, err)
	return coords
}

// drain collects every hit, stepping past each one with Next.
func drain(t *testing.T, adv *zorder.Advancer, cur index.Cursor) [][]byte {
	t.Helper()
	var hits [][]byte
	for {
		tup, ok, err := adv.Advance(cur)
		require.NoError(t, err)
		if !ok {
			require.Equal(t, zorder.StateExhausted, adv.State())
			return hits
		}
		require.Equal(t, zorder.StateHit, adv.State())
		hits = append(hits, tup.Key)
		_, _, err = cur.Next()
		require.NoError(t, err)
	}
}

func TestAdvancerFindsEveryRecordInBox(t *testing.T) {
	f := newFixture(t, 0)
	lo, hi := [2]uint64{2, 2}, [2]uint64{5, 5}
	inBox := [][2]uint64{{2, 2}, {3, 4}, {5, 5}, {4, 2}, {2, 5}, {5, 3}, {3, 3}}

	subject := uint64(0)
	for _, p := range inBox {
		require.NoError(t, f.idx.Insert(f.key(t, nil, subject, p[0], p[1]), nil))
		subject++
	}
	rng := rand.New(rand.NewSource(7))
	for subject < 100 {
		x, y := uint64(rng.Intn(16)), uint64(rng.Intn(16))
		if zorder.InRange([]uint64{x, y}, lo[:], hi[:]) {
			continue
		}
		require.NoError(t, f.idx.Insert(f.key(t, nil, subject, x, y), nil))
		subject++
	}
	require.Equal(t, 100, f.idx.Len())

	min, max := f.corners(t, lo, hi)
	var stats zorder.Counters
	adv, err := zorder.NewAdvancer(min, max, f.codec, f.layout, zorder.WithStats(&stats))
	require.NoError(t, err)
	cur, err := f.idx.Cursor(nil, nil)
	require.NoError(t, err)

	hits := drain(t, adv, cur)
	require.Len(t, hits, len(inBox))
	assert.True(t, slices.IsSortedFunc(hits, bytes.Compare))
	for _, k := range hits {
		assert.True(t, zorder.InRange(f.decode(t, k), lo[:], hi[:]))
	}

	st := stats.Snapshot()
	assert.Equal(t, int64(len(inBox)), st.Hits)
	assert.Equal(t, int64(adv.Probes()), st.Probes())
	assert.Less(t, adv.Probes(), 100, "seeks skip out-of-box records")
}

func TestAdvancerMatchesFilter(t *testing.T) {
	for _, prefixSkip := range []bool{true, false} {
		f := newFixture(t, 1)
		rng := rand.New(rand.NewSource(11))
		for s := uint64(0); s < 400; s++ {
			pred := []uint64{uint64(rng.Intn(3))}
			require.NoError(t, f.idx.Insert(f.key(t, pred, s, uint64(rng.Intn(16)), uint64(rng.Intn(16))), nil))
		}

		for boxN := 0; boxN < 20; boxN++ {
			a, b := uint64(rng.Intn(16)), uint64(rng.Intn(16))
			c, d := uint64(rng.Intn(16)), uint64(rng.Intn(16))
			lo, hi := [2]uint64{min(a, b), min(c, d)}, [2]uint64{max(a, b), max(c, d)}

			var want [][]byte
			for _, e := range f.idx.Data {
				if zorder.InRange(f.decode(t, e.Key), lo[:], hi[:]) {
					want = append(want, e.Key)
				}
			}

			bmin, bmax := f.corners(t, lo, hi)
			adv, err := zorder.NewAdvancer(bmin, bmax, f.codec, f.layout, zorder.WithPrefixSkip(prefixSkip))
			require.NoError(t, err)
			cur, err := f.idx.Cursor(nil, nil)
			require.NoError(t, err)

			got := drain(t, adv, cur)
			require.Equalf(t, want, got, "prefixSkip=%v box=%v..%v", prefixSkip, lo, hi)
		}
	}
}

func TestAdvancerSkipsPrefixByDefault(t *testing.T) {
	f := newFixture(t, 1)
	require.NoError(t, f.idx.Insert(f.key(t, []uint64{0}, 0, 3, 3), nil))
	s := uint64(1)
	for x := uint64(6); x < 16; x++ {
		for _, y := range []uint64{6, 12} {
			require.NoError(t, f.idx.Insert(f.key(t, []uint64{0}, s, x, y), nil))
			s++
		}
	}
	require.NoError(t, f.idx.Insert(f.key(t, []uint64{1}, s, 4, 4), nil))
	min, max := f.corners(t, [2]uint64{2, 2}, [2]uint64{5, 5})

	run := func(opts ...zorder.AdvancerOption) ([][]byte, int) {
		adv, err := zorder.NewAdvancer(min, max, f.codec, f.layout, opts...)
		require.NoError(t, err)
		cur, err := f.idx.Cursor(nil, nil)
		require.NoError(t, err)
		return drain(t, adv, cur), adv.Probes()
	}
	skipHits, skipProbes := run()
	stepHits, stepProbes := run(zorder.WithPrefixSkip(false))

	require.Len(t, skipHits, 2)
	assert.Equal(t, skipHits, stepHits)
	assert.Less(t, skipProbes, stepProbes)
	assert.GreaterOrEqual(t, stepProbes, 20, "stepping visits every record above the box")
}

func TestAdvancerEmptyIndex(t *testing.T) {
	f := newFixture(t, 0)
	min, max := f.corners(t, [2]uint64{0, 0}, [2]uint64{15, 15})
	adv, err := zorder.NewAdvancer(min, max, f.codec, f.layout)
	require.NoError(t, err)
	cur, err := f.idx.Cursor(nil, nil)
	require.NoError(t, err)

	_, ok, err := adv.Advance(cur)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, zorder.StateExhausted, adv.State())
	assert.Zero(t, adv.Probes())
}

func TestAdvancerAcceptsPaddedCorners(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.idx.Insert(f.key(t, nil, 1, 3, 3), nil))
	min, max := f.corners(t, [2]uint64{2, 2}, [2]uint64{5, 5})

	adv, err := zorder.NewAdvancer(f.codec.PadLeadingZero(min), f.codec.PadLeadingZero(max), f.codec, f.layout)
	require.NoError(t, err)
	cur, err := f.idx.Cursor(nil, nil)
	require.NoError(t, err)
	assert.Len(t, drain(t, adv, cur), 1)
}

func TestNewAdvancerRejectsBadBox(t *testing.T) {
	f := newFixture(t, 0)
	min, max := f.corners(t, [2]uint64{5, 2}, [2]uint64{2, 5})
	_, err := zorder.NewAdvancer(min, max, f.codec, f.layout)
	assert.ErrorIs(t, err, zorder.ErrInvalidRange)

	_, err = zorder.NewAdvancer([]byte{1, 2, 3}, max, f.codec, f.layout)
	assert.ErrorIs(t, err, zorder.ErrLengthMismatch)
}

func TestAdvancerDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
	}{
		{"short key", []byte{0x80}},
		{"literal without sign byte", []byte{0x00, 0x10, 0, 0, 0, 0, 0, 0, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			require.NoError(t, f.idx.Insert(tt.key, nil))
			min, max := f.corners(t, [2]uint64{0, 0}, [2]uint64{15, 15})
			adv, err := zorder.NewAdvancer(min, max, f.codec, f.layout)
			require.NoError(t, err)
			cur, err := f.idx.Cursor(nil, nil)
			require.NoError(t, err)

			_, ok, err := adv.Advance(cur)
			require.Error(t, err)
			assert.False(t, ok)
			assert.Equal(t, zorder.StateError, adv.State())

			var se *zorder.ScanError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, zorder.ComponentDecode, se.Component)
			assert.ErrorIs(t, err, zorder.ErrDecode)
		})
	}
}

var errDisk = errors.New("disk on fire")

// failingCursor serves its first tuple and fails every movement.
type failingCursor struct {
	t index.Tuple
}

func (c *failingCursor) Tuple() (index.Tuple, bool)              { return c.t, true }
func (c *failingCursor) Seek([]byte) (index.Tuple, bool, error) { return index.Tuple{}, false, errDisk }
func (c *failingCursor) Next() (index.Tuple, bool, error)       { return index.Tuple{}, false, errDisk }
func (c *failingCursor) Close() error                            { return nil }

func TestAdvancerIndexError(t *testing.T) {
	for _, prefixSkip := range []bool{true, false} {
		f := newFixture(t, 0)
		min, max := f.corners(t, [2]uint64{2, 2}, [2]uint64{5, 5})
		adv, err := zorder.NewAdvancer(min, max, f.codec, f.layout, zorder.WithPrefixSkip(prefixSkip))
		require.NoError(t, err)

		// (7,7) lies above the box, so the advancer has to move.
		cur := &failingCursor{t: index.Tuple{Key: f.key(t, nil, 1, 7, 7)}}
		_, ok, err := adv.Advance(cur)
		assert.False(t, ok)

		var se *zorder.ScanError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, zorder.ComponentIndex, se.Component)
		assert.ErrorIs(t, err, errDisk)
		assert.Equal(t, zorder.StateError, adv.State())
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "scanning", zorder.StateScanning.String())
	assert.Equal(t, "hit", zorder.StateHit.String())
	assert.Equal(t, "exhausted", zorder.StateExhausted.String())
	assert.Equal(t, "error", zorder.StateError.String())
	assert.Equal(t, "State(9)", zorder.State(9).String())
}
