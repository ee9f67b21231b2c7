package zorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/btree-query-bench/zscan/index"
)

// State is the position of an Advancer in its scan.
type State uint8

const (
	StateScanning State = iota
	StateHit
	StateExhausted
	StateError
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateHit:
		return "hit"
	case StateExhausted:
		return "exhausted"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

type advancerOptions struct {
	stats      StatsSink
	logger     *slog.Logger
	prefixSkip bool
}

// AdvancerOption configures NewAdvancer.
type AdvancerOption func(*advancerOptions)

// WithStats reports hits, misses and timings to sink.
func WithStats(sink StatsSink) AdvancerOption {
	return func(o *advancerOptions) {
		if sink != nil {
			o.stats = sink
		}
	}
}

// WithLogger logs visited records and seek targets at debug level.
func WithLogger(l *slog.Logger) AdvancerOption {
	return func(o *advancerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPrefixSkip controls what happens when no key above a missed record can
// fall inside the box. Enabled (the default), the cursor seeks past every key
// sharing the record's prefix. Disabled, it steps to the next record.
func WithPrefixSkip(enabled bool) AdvancerOption {
	return func(o *advancerOptions) { o.prefixSkip = enabled }
}

// Advancer moves a cursor to the next record whose z-order component lies in
// a fixed search box. It owns its scratch buffers and must not be shared
// between goroutines.
type Advancer struct {
	codec      Codec
	keys       KeyCodec
	checker    *RangeChecker
	calc       *Calculator
	stats      StatsSink
	logger     *slog.Logger
	prefixSkip bool
	maxLiteral []byte

	state  State
	probes int
}

// NewAdvancer builds an Advancer for the box spanned by the unsigned
// interleaved corners searchMin and searchMax. The corners may carry a
// leading zero pad byte.
func NewAdvancer(searchMin, searchMax []byte, codec Codec, keys KeyCodec, opts ...AdvancerOption) (*Advancer, error) {
	o := advancerOptions{
		stats:      NoopStats{},
		logger:     slog.New(slog.DiscardHandler),
		prefixSkip: true,
	}
	for _, fn := range opts {
		fn(&o)
	}

	searchMin = codec.UnpadLeadingZero(searchMin)
	searchMax = codec.UnpadLeadingZero(searchMax)
	if len(searchMin) != codec.KeyLength() || len(searchMax) != codec.KeyLength() {
		return nil, fmt.Errorf("%w: corners have %d and %d bytes, codec expects %d",
			ErrLengthMismatch, len(searchMin), len(searchMax), codec.KeyLength())
	}
	minCoords, err := codec.FromInterleaved(searchMin)
	if err != nil {
		return nil, fmt.Errorf("zorder: decode search min: %w", err)
	}
	maxCoords, err := codec.FromInterleaved(searchMax)
	if err != nil {
		return nil, fmt.Errorf("zorder: decode search max: %w", err)
	}
	checker, err := NewRangeChecker(minCoords, maxCoords, o.stats)
	if err != nil {
		return nil, err
	}
	calc, err := NewCalculator(searchMin, searchMax, codec.NumDimensions(), codec.TotalBits())
	if err != nil {
		return nil, err
	}

	top := make([]byte, codec.KeyLength())
	for i := 0; i < codec.TotalBits(); i++ {
		SetBit(top, i, true)
	}

	return &Advancer{
		codec:      codec,
		keys:       keys,
		checker:    checker,
		calc:       calc,
		stats:      o.stats,
		logger:     o.logger,
		prefixSkip: o.prefixSkip,
		maxLiteral: codec.LiteralFromInterleaved(top),
	}, nil
}

// State reports the outcome of the most recent Advance call.
func (a *Advancer) State() State { return a.state }

// Probes is the number of records examined since the Advancer was built.
func (a *Advancer) Probes() int { return a.probes }

// Advance examines the record under cur and, while it lies outside the box,
// jumps the cursor forward. It returns the first record inside the box
// with ok set, leaving cur positioned on it. ok is false with a nil error
// once the cursor is exhausted. Any error is a *ScanError and ends the scan.
func (a *Advancer) Advance(cur index.Cursor) (index.Tuple, bool, error) {
	a.state = StateScanning
	debug := a.logger.Enabled(context.Background(), slog.LevelDebug)

	t, ok := cur.Tuple()
	for ok {
		a.probes++
		if debug {
			a.logger.Debug("advancer visiting tuple", "key", fmt.Sprintf("%x", t.Key))
		}

		prefix, lit, err := a.keys.SplitKey(t.Key)
		if err != nil {
			return a.fail(ComponentDecode, err)
		}
		dividing, err := a.codec.InterleavedFromLiteral(lit)
		if err != nil {
			return a.fail(ComponentDecode, err)
		}
		coords, err := a.codec.FromInterleaved(dividing)
		if err != nil {
			return a.fail(ComponentDecode, err)
		}

		if a.checker.Check(coords) {
			a.state = StateHit
			return t, true, nil
		}

		seekKey, jump, err := a.nextSeekKey(prefix, dividing)
		if err != nil {
			return a.fail(ComponentBigMin, err)
		}

		switch {
		case jump && bytes.Compare(seekKey, t.Key) > 0:
			if debug {
				a.logger.Debug("advancer seeking", "from", fmt.Sprintf("%x", t.Key), "to", fmt.Sprintf("%x", seekKey))
			}
			t, ok, err = cur.Seek(seekKey)
			if err == nil && !ok {
				// No exact match: take the next higher key.
				t, ok, err = cur.Next()
			}
		default:
			t, ok, err = cur.Next()
		}
		if err != nil {
			return a.fail(ComponentIndex, err)
		}
	}

	a.state = StateExhausted
	return index.Tuple{}, false, nil
}

// nextSeekKey computes where to move after a miss. jump is false when the
// cursor should simply step to the next record.
func (a *Advancer) nextSeekKey(prefix, dividing []byte) ([]byte, bool, error) {
	start := time.Now()
	defer func() { a.stats.AddBigMinTime(time.Since(start)) }()

	bigmin, found, err := a.calc.BigMin(dividing)
	if err != nil {
		return nil, false, err
	}
	if found {
		if bytes.Compare(bigmin, dividing) <= 0 {
			return nil, false, fmt.Errorf("%w: bigmin %x, record %x", ErrNoProgress, bigmin, dividing)
		}
		return a.keys.AppendKey(nil, prefix, a.codec.LiteralFromInterleaved(bigmin)), true, nil
	}
	if a.prefixSkip {
		return a.keys.AppendKey(nil, prefix, a.maxLiteral), true, nil
	}
	return nil, false, nil
}

func (a *Advancer) fail(c Component, err error) (index.Tuple, bool, error) {
	a.state = StateError
	if c == ComponentDecode && !errors.Is(err, ErrDecode) {
		err = fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return index.Tuple{}, false, scanErr(c, err)
}
