// Package geoindex stores geospatial literals in a sorted index under
// predicate-prefixed z-order keys and answers bounding-box queries by
// driving a zorder.Advancer over an index cursor.
package geoindex

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/btree-query-bench/zscan/geo"
	"github.com/btree-query-bench/zscan/index"
	"github.com/btree-query-bench/zscan/keys"
	"github.com/btree-query-bench/zscan/zorder"
)

// Query modes reported to a QueryObserver.
const (
	ModeZOrder   = "zorder"
	ModeFullScan = "fullscan"
)

// Entry is one stored statement: subject has a location value for predicate.
type Entry struct {
	Predicate uint64
	Subject   uint64
	Point     geo.Point
	Value     []byte
}

// Result is an entry read back from the index.
type Result struct {
	Entry
	Key []byte
}

// QueryObserver is told about every finished query.
type QueryObserver interface {
	ObserveQuery(mode string, d time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveQuery(string, time.Duration, error) {}

type options struct {
	logger     *slog.Logger
	stats      zorder.StatsSink
	observer   QueryObserver
	prefixSkip bool
}

// Option configures New.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStats shares sink between all queries of the store.
func WithStats(sink zorder.StatsSink) Option {
	return func(o *options) {
		if sink != nil {
			o.stats = sink
		}
	}
}

func WithQueryObserver(obs QueryObserver) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithPrefixSkip is passed through to every advancer.
func WithPrefixSkip(enabled bool) Option {
	return func(o *options) { o.prefixSkip = enabled }
}

// Store maps entries of one datatype onto an index.
type Store struct {
	idx    index.Index
	dt     *geo.Datatype
	layout keys.Layout
	opts   options
}

func New(idx index.Index, dt *geo.Datatype, opts ...Option) *Store {
	o := options{
		logger:     slog.New(slog.DiscardHandler),
		stats:      zorder.NoopStats{},
		observer:   noopObserver{},
		prefixSkip: true,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return &Store{
		idx: idx,
		dt:  dt,
		layout: keys.Layout{
			PrefixComponents: 1,
			LiteralLen:       dt.Codec().LiteralLength(),
		},
		opts: o,
	}
}

func (s *Store) Datatype() *geo.Datatype { return s.dt }
func (s *Store) Layout() keys.Layout     { return s.layout }

// EncodeKey returns the index key of e.
func (s *Store) EncodeKey(e Entry) ([]byte, error) {
	lit, err := s.dt.Literal(e.Point)
	if err != nil {
		return nil, err
	}
	b := keys.NewBuilder(s.layout.MinKeyLen() + keys.IDSize)
	return b.AppendUint64(e.Predicate).AppendBytes(lit).AppendUint64(e.Subject).Key(), nil
}

// DecodeKey reverses EncodeKey. Value is left empty.
func (s *Store) DecodeKey(key []byte) (Entry, error) {
	_, lit, err := s.layout.SplitKey(key)
	if err != nil {
		return Entry{}, err
	}
	pred, err := s.layout.PrefixID(key, 0)
	if err != nil {
		return Entry{}, err
	}
	suffix, err := s.layout.Suffix(key)
	if err != nil {
		return Entry{}, err
	}
	if len(suffix) != keys.IDSize {
		return Entry{}, fmt.Errorf("%w: subject suffix has %d bytes", keys.ErrShortKey, len(suffix))
	}
	p, err := s.dt.PointFromLiteral(lit)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Predicate: pred,
		Subject:   binary.BigEndian.Uint64(suffix),
		Point:     p,
	}, nil
}

// Put stores e, replacing any entry with the same key.
func (s *Store) Put(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := s.EncodeKey(e)
	if err != nil {
		return fmt.Errorf("geoindex: put: %w", err)
	}
	if err := s.idx.Insert(key, e.Value); err != nil {
		return fmt.Errorf("geoindex: put: %w", err)
	}
	return nil
}

// Delete removes e. It returns index.ErrKeyNotFound when absent.
func (s *Store) Delete(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := s.EncodeKey(e)
	if err != nil {
		return fmt.Errorf("geoindex: delete: %w", err)
	}
	return s.idx.Delete(key)
}

// bounds returns the cursor range for box under predicate: from the min
// corner's key to just past every key carrying the max corner's literal.
func (s *Store) bounds(predicate uint64, min, max []byte) (lower, upper []byte) {
	codec := s.dt.Codec()
	prefix := keys.NewBuilder(keys.IDSize).AppendUint64(predicate).Key()
	lower = s.layout.AppendKey(nil, prefix, codec.LiteralFromInterleaved(min))
	_, upper = keys.PrefixBounds(s.layout.AppendKey(nil, prefix, codec.LiteralFromInterleaved(max)))
	return lower, upper
}

// Query starts a z-order scan for entries of predicate inside box.
func (s *Store) Query(ctx context.Context, predicate uint64, box geo.Box) (*Scan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	min, max, err := s.dt.Corners(box)
	if err != nil {
		return nil, fmt.Errorf("geoindex: query: %w", err)
	}

	id := uuid.New()
	local := &zorder.Counters{}
	logger := s.opts.logger.With("scan_id", id.String(), "predicate", predicate)
	adv, err := zorder.NewAdvancer(min, max, s.dt.Codec(), s.layout,
		zorder.WithStats(zorder.MultiSink(s.opts.stats, local)),
		zorder.WithLogger(logger),
		zorder.WithPrefixSkip(s.opts.prefixSkip),
	)
	if err != nil {
		return nil, fmt.Errorf("geoindex: query: %w", err)
	}

	lower, upper := s.bounds(predicate, min, max)
	cur, err := s.idx.Cursor(lower, upper)
	if err != nil {
		return nil, fmt.Errorf("geoindex: query: %w", err)
	}
	return &Scan{
		store:  s,
		id:     id,
		adv:    adv,
		cur:    cur,
		local:  local,
		logger: logger,
		start:  time.Now(),
	}, nil
}

// QueryAll runs Query and collects every result.
func (s *Store) QueryAll(ctx context.Context, predicate uint64, box geo.Box) ([]Result, zorder.Stats, error) {
	scan, err := s.Query(ctx, predicate, box)
	if err != nil {
		return nil, zorder.Stats{}, err
	}
	var out []Result
	for scan.Next(ctx) {
		out = append(out, scan.Result())
	}
	err = scan.Close()
	return out, scan.Stats(), err
}

// FullScan evaluates the same query by reading every entry of predicate.
func (s *Store) FullScan(ctx context.Context, predicate uint64, box geo.Box) ([]Result, error) {
	start := time.Now()
	out, err := s.fullScan(ctx, predicate, box)
	s.opts.observer.ObserveQuery(ModeFullScan, time.Since(start), err)
	return out, err
}

func (s *Store) fullScan(ctx context.Context, predicate uint64, box geo.Box) ([]Result, error) {
	lo, err := s.dt.ToCoordinates(box.Low)
	if err != nil {
		return nil, fmt.Errorf("geoindex: full scan: %w", err)
	}
	hi, err := s.dt.ToCoordinates(box.High)
	if err != nil {
		return nil, fmt.Errorf("geoindex: full scan: %w", err)
	}
	checker, err := zorder.NewRangeChecker(lo, hi, nil)
	if err != nil {
		return nil, fmt.Errorf("geoindex: full scan: %w", err)
	}

	lower, upper := keys.PrefixBounds(keys.NewBuilder(keys.IDSize).AppendUint64(predicate).Key())
	it, err := s.idx.Range(lower, upper)
	if err != nil {
		return nil, fmt.Errorf("geoindex: full scan: %w", err)
	}
	defer it.Close()

	codec := s.dt.Codec()
	var out []Result
	for n := 0; it.Next(); n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		key := it.Key()
		_, lit, err := s.layout.SplitKey(key)
		if err != nil {
			return nil, fmt.Errorf("geoindex: full scan: %w", err)
		}
		z, err := codec.InterleavedFromLiteral(lit)
		if err != nil {
			return nil, fmt.Errorf("geoindex: full scan: %w", err)
		}
		coords, err := codec.FromInterleaved(z)
		if err != nil {
			return nil, fmt.Errorf("geoindex: full scan: %w", err)
		}
		if !checker.Check(coords) {
			continue
		}
		r, err := s.result(index.Tuple{Key: key, Value: it.Value()})
		if err != nil {
			return nil, fmt.Errorf("geoindex: full scan: %w", err)
		}
		out = append(out, r)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("geoindex: full scan: %w", err)
	}
	return out, nil
}

func (s *Store) result(t index.Tuple) (Result, error) {
	e, err := s.DecodeKey(t.Key)
	if err != nil {
		return Result{}, err
	}
	e.Value = bytes.Clone(t.Value)
	return Result{Entry: e, Key: bytes.Clone(t.Key)}, nil
}
