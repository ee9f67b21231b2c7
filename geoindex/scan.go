package geoindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/btree-query-bench/zscan/index"
	"github.com/btree-query-bench/zscan/zorder"
)

// Scan iterates the results of one z-order query. It is not safe for
// concurrent use.
type Scan struct {
	store  *Store
	id     uuid.UUID
	adv    *zorder.Advancer
	cur    index.Cursor
	local  *zorder.Counters
	logger *slog.Logger
	start  time.Time

	started bool
	done    bool
	closed  bool
	res     Result
	err     error
	results int
}

// ID identifies the scan in log records.
func (s *Scan) ID() uuid.UUID { return s.id }

// Next moves to the next result. It returns false when the scan is
// exhausted, failed or ctx was cancelled; check Err afterwards.
func (s *Scan) Next(ctx context.Context) bool {
	if s.done {
		return false
	}
	if err := ctx.Err(); err != nil {
		return s.stop(err)
	}
	if s.started {
		if _, _, err := s.cur.Next(); err != nil {
			return s.stop(fmt.Errorf("geoindex: scan: %w", err))
		}
	}
	s.started = true

	t, ok, err := s.adv.Advance(s.cur)
	if err != nil {
		return s.stop(fmt.Errorf("geoindex: scan: %w", err))
	}
	if !ok {
		return s.stop(nil)
	}
	r, err := s.store.result(t)
	if err != nil {
		return s.stop(fmt.Errorf("geoindex: scan: %w", err))
	}
	s.res = r
	s.results++
	return true
}

func (s *Scan) stop(err error) bool {
	s.done = true
	s.err = err
	s.res = Result{}
	return false
}

// Result returns the current result.
func (s *Scan) Result() Result { return s.res }

func (s *Scan) Err() error { return s.err }

// Stats returns the telemetry of this scan alone.
func (s *Scan) Stats() zorder.Stats { return s.local.Snapshot() }

// Probes is the number of index records the advancer examined.
func (s *Scan) Probes() int { return s.adv.Probes() }

// Close releases the cursor and reports the scan. It returns the scan error,
// if any, joined with the cursor's close error.
func (s *Scan) Close() error {
	if s.closed {
		return s.err
	}
	s.closed = true
	s.done = true
	err := errors.Join(s.err, s.cur.Close())

	d := time.Since(s.start)
	s.store.opts.observer.ObserveQuery(ModeZOrder, d, err)
	st := s.local.Snapshot()
	s.logger.Debug("scan finished",
		"results", s.results,
		"probes", s.adv.Probes(),
		"hits", st.Hits,
		"misses", st.Misses,
		"bigmin_time", st.BigMinTime,
		"range_check_time", st.RangeCheckTime,
		"duration", d,
		"state", s.adv.State().String(),
	)
	return err
}
