package zorder

import (
	"sync/atomic"
	"time"
)

// StatsSink receives advisory scan telemetry. Implementations must be safe
// for concurrent use when shared between scans and must never block.
type StatsSink interface {
	RecordHit()
	RecordMiss()
	AddRangeCheckTime(d time.Duration)
	AddBigMinTime(d time.Duration)
}

// NoopStats discards all telemetry.
type NoopStats struct{}

func (NoopStats) RecordHit()                      {}
func (NoopStats) RecordMiss()                     {}
func (NoopStats) AddRangeCheckTime(time.Duration) {}
func (NoopStats) AddBigMinTime(time.Duration)     {}

// Counters aggregates telemetry in memory. One Counters value may be shared
// by all scans of a query.
type Counters struct {
	Hits            atomic.Int64
	Misses          atomic.Int64
	RangeCheckNanos atomic.Int64
	BigMinNanos     atomic.Int64
}

var _ StatsSink = (*Counters)(nil)

func (c *Counters) RecordHit()  { c.Hits.Add(1) }
func (c *Counters) RecordMiss() { c.Misses.Add(1) }

func (c *Counters) AddRangeCheckTime(d time.Duration) {
	c.RangeCheckNanos.Add(d.Nanoseconds())
}

func (c *Counters) AddBigMinTime(d time.Duration) {
	c.BigMinNanos.Add(d.Nanoseconds())
}

// Stats is a point-in-time copy of Counters.
type Stats struct {
	Hits           int64
	Misses         int64
	RangeCheckTime time.Duration
	BigMinTime     time.Duration
}

// Probes is the number of records range-checked.
func (s Stats) Probes() int64 { return s.Hits + s.Misses }

// Snapshot reads all counters. Concurrent updates may land between reads.
func (c *Counters) Snapshot() Stats {
	return Stats{
		Hits:           c.Hits.Load(),
		Misses:         c.Misses.Load(),
		RangeCheckTime: time.Duration(c.RangeCheckNanos.Load()),
		BigMinTime:     time.Duration(c.BigMinNanos.Load()),
	}
}

// multiSink fans telemetry out to several sinks.
type multiSink []StatsSink

// MultiSink returns a sink that forwards to every sink in sinks.
func MultiSink(sinks ...StatsSink) StatsSink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return multiSink(sinks)
}

func (m multiSink) RecordHit() {
	for _, s := range m {
		s.RecordHit()
	}
}

func (m multiSink) RecordMiss() {
	for _, s := range m {
		s.RecordMiss()
	}
}

func (m multiSink) AddRangeCheckTime(d time.Duration) {
	for _, s := range m {
		s.AddRangeCheckTime(d)
	}
}

func (m multiSink) AddBigMinTime(d time.Duration) {
	for _, s := range m {
		s.AddBigMinTime(d)
	}
}
