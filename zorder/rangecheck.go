package zorder

import (
	"fmt"
	"time"
)

// InRange reports whether min[d] <= coords[d] <= max[d] for every dimension.
func InRange(coords, min, max []uint64) bool {
	for d := range coords {
		if coords[d] < min[d] || coords[d] > max[d] {
			return false
		}
	}
	return true
}

// RangeChecker tests decoded records against a fixed box and reports every
// check to a StatsSink. The telemetry never influences the answer.
type RangeChecker struct {
	min, max []uint64
	stats    StatsSink
}

// NewRangeChecker validates the box corners and returns a checker.
func NewRangeChecker(min, max []uint64, stats StatsSink) (*RangeChecker, error) {
	if len(min) != len(max) {
		return nil, fmt.Errorf("%w: min has %d dimensions, max %d", ErrLengthMismatch, len(min), len(max))
	}
	for d := range min {
		if min[d] > max[d] {
			return nil, fmt.Errorf("%w: dimension %d: %d > %d", ErrInvalidRange, d, min[d], max[d])
		}
	}
	if stats == nil {
		stats = NoopStats{}
	}
	return &RangeChecker{min: min, max: max, stats: stats}, nil
}

// Check reports whether coords lies inside the box and records a hit or miss.
func (r *RangeChecker) Check(coords []uint64) bool {
	start := time.Now()
	in := len(coords) == len(r.min) && InRange(coords, r.min, r.max)
	r.stats.AddRangeCheckTime(time.Since(start))
	if in {
		r.stats.RecordHit()
	} else {
		r.stats.RecordMiss()
	}
	return in
}
