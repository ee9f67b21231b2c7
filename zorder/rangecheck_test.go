package zorder

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInRange(t *testing.T) {
	min, max := []uint64{2, 2}, []uint64{5, 5}
	tests := []struct {
		coords []uint64
		want   bool
	}{
		{[]uint64{2, 2}, true},
		{[]uint64{5, 5}, true},
		{[]uint64{3, 4}, true},
		{[]uint64{1, 3}, false},
		{[]uint64{3, 6}, false},
		{[]uint64{6, 1}, false},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, InRange(tt.coords, min, max), "%v", tt.coords)
	}
}

func TestRangeCheckerRecordsOutcome(t *testing.T) {
	var c Counters
	rc, err := NewRangeChecker([]uint64{2, 2}, []uint64{5, 5}, &c)
	require.NoError(t, err)

	assert.True(t, rc.Check([]uint64{3, 3}))
	assert.False(t, rc.Check([]uint64{6, 1}))
	assert.False(t, rc.Check([]uint64{0, 0}))
	assert.False(t, rc.Check([]uint64{3}), "wrong dimension count never matches")

	st := c.Snapshot()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(3), st.Misses)
	assert.Equal(t, int64(4), st.Probes())
}

func TestRangeCheckerValidates(t *testing.T) {
	_, err := NewRangeChecker([]uint64{2, 6}, []uint64{5, 5}, nil)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = NewRangeChecker([]uint64{2}, []uint64{5, 5}, nil)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	rc, err := NewRangeChecker([]uint64{4}, []uint64{4}, nil)
	require.NoError(t, err)
	assert.True(t, rc.Check([]uint64{4}))
	assert.False(t, rc.Check([]uint64{5}))
}

func TestCountersConcurrent(t *testing.T) {
	var c Counters
	sink := MultiSink(&c, NoopStats{})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				sink.RecordHit()
				sink.RecordMiss()
				sink.AddBigMinTime(time.Microsecond)
				sink.AddRangeCheckTime(time.Nanosecond)
			}
		}()
	}
	wg.Wait()

	st := c.Snapshot()
	assert.Equal(t, int64(8000), st.Hits)
	assert.Equal(t, int64(8000), st.Misses)
	assert.Equal(t, 8000*time.Microsecond, st.BigMinTime)
	assert.Equal(t, 8000*time.Nanosecond, st.RangeCheckTime)
}

func TestMultiSinkSingle(t *testing.T) {
	var c Counters
	assert.Same(t, &c, MultiSink(&c).(*Counters))
}
