package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/btree-query-bench/zscan/dbms/index/bptree"
	"github.com/btree-query-bench/zscan/dbms/index/lsm"
	"github.com/btree-query-bench/zscan/geo"
	"github.com/btree-query-bench/zscan/geoindex"
	"github.com/btree-query-bench/zscan/index"
	"github.com/btree-query-bench/zscan/index/btree"
	bplus "github.com/btree-query-bench/zscan/index/bplustree"
	"github.com/btree-query-bench/zscan/index/listindex"
	"github.com/btree-query-bench/zscan/metrics"
	"github.com/btree-query-bench/zscan/zorder"
)

const (
	backendBTree  = "btree"
	backendBPlus  = "bplus"
	backendList   = "list"
	backendPebble = "pebble"
	backendPaged  = "paged"
)

// BenchResult is one CSV row. Probes is the average number of records
// examined per query and is zero for non-query rows.
type BenchResult struct {
	Name      string
	Config    string
	Operation string
	LatencyNs int64
	MemMB     uint64
	Objects   uint64
	Probes    float64
	Results   float64
}

var csvHeader = []string{"Structure", "Config", "TestType", "LatencyNs", "MemMB", "HeapObjects", "Probes", "Results"}

type MemoryStats struct {
	AllocMB      uint64
	TotalAllocMB uint64
	HeapObjects  uint64
}

// GetDetailedMem measures live heap after a forced GC.
func GetDetailedMem() MemoryStats {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocMB:      m.Alloc / 1024 / 1024,
		TotalAllocMB: m.TotalAlloc / 1024 / 1024,
		HeapObjects:  m.HeapObjects,
	}
}

func Record(w *csv.Writer, res BenchResult) error {
	return w.Write([]string{
		res.Name,
		res.Config,
		res.Operation,
		strconv.FormatInt(res.LatencyNs, 10),
		strconv.FormatUint(res.MemMB, 10),
		strconv.FormatUint(res.Objects, 10),
		strconv.FormatFloat(res.Probes, 'f', 2, 64),
		strconv.FormatFloat(res.Results, 'f', 2, 64),
	})
}

// benchTarget is one index configuration under test.
type benchTarget struct {
	name   string
	config string
	open   func() (index.Index, error)
}

func benchTargets(f *benchFlags, sf *storeFlags) ([]benchTarget, error) {
	var out []benchTarget
	for _, b := range f.Backends {
		switch b {
		case backendBTree:
			for _, d := range f.Degrees {
				out = append(out, benchTarget{
					name:   "BTree",
					config: strconv.Itoa(d),
					open:   func() (index.Index, error) { return btree.NewBTree(d), nil },
				})
			}
		case backendBPlus:
			for _, d := range f.Degrees {
				out = append(out, benchTarget{
					name:   "BPlusTree",
					config: strconv.Itoa(d),
					open:   func() (index.Index, error) { return bplus.NewBPlusTree(d), nil },
				})
			}
		case backendList:
			out = append(out, benchTarget{
				name:   "ListIndex",
				config: "-",
				open:   func() (index.Index, error) { return listindex.NewListIndex(), nil },
			})
		case backendPebble:
			mb := sf.MemTableMB
			out = append(out, benchTarget{
				name:   "Pebble",
				config: strconv.FormatUint(mb, 10) + "MiB",
				open: func() (index.Index, error) {
					return lsm.Open(filepath.Join("bench", "pebble"),
						lsm.WithFS(vfs.NewMem()), lsm.WithMemTableSize(mb<<20))
				},
			})
		case backendPaged:
			pages := sf.CachePages
			out = append(out, benchTarget{
				name:   "PagedBPlusTree",
				config: strconv.Itoa(pages) + "pages",
				open: func() (index.Index, error) {
					return bptree.Open("paged", bptree.WithFS(vfs.NewMem()), bptree.WithCachePages(pages))
				},
			})
		default:
			return nil, fmt.Errorf("unknown backend %q", b)
		}
	}
	return out, nil
}

// chartSeries collects average query latency per target for the chart.
type chartSeries struct {
	labels   []string
	zorder   plotter.Values
	fullscan plotter.Values
}

func runBench(ctx context.Context, logger *slog.Logger, f *benchFlags, sf *storeFlags) error {
	dt, err := sf.datatype()
	if err != nil {
		return err
	}
	targets, err := benchTargets(f, sf)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPrometheusSink(reg, "zscan")
	if err != nil {
		return err
	}

	out, err := os.Create(f.Output)
	if err != nil {
		return err
	}
	defer out.Close()
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return err
	}

	var chart chartSeries
	for _, t := range targets {
		logger.Info("benchmarking", "structure", t.name, "config", t.config, "points", f.Points)
		zq, fq, err := runSuite(ctx, logger, w, t, dt, sink, f, sf)
		if err != nil {
			return fmt.Errorf("%s (%s): %w", t.name, t.config, err)
		}
		chart.labels = append(chart.labels, t.name+"/"+t.config)
		chart.zorder = append(chart.zorder, float64(zq)/1e3)
		chart.fullscan = append(chart.fullscan, float64(fq)/1e3)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	logTotals(logger, reg)
	if f.Plot != "" {
		if err := savePlot(f.Plot, chart); err != nil {
			return err
		}
	}
	logger.Info("benchmark complete", "output", f.Output, "plot", f.Plot)
	return nil
}

// runSuite loads one target, runs the parallel query phases and a mixed
// workload, and returns the average z-order and full-scan latencies.
func runSuite(ctx context.Context, logger *slog.Logger, w *csv.Writer, t benchTarget, dt *geo.Datatype,
	sink *metrics.PrometheusSink, f *benchFlags, sf *storeFlags,
) (int64, int64, error) {
	idx, err := t.open()
	if err != nil {
		return 0, 0, err
	}
	defer idx.Close()

	counters := &zorder.Counters{}
	store := geoindex.New(idx, dt,
		geoindex.WithLogger(logger),
		geoindex.WithStats(zorder.MultiSink(counters, sink)),
		geoindex.WithQueryObserver(sink),
		geoindex.WithPrefixSkip(!sf.NoPrefixSkip),
	)
	gen := NewGenerator(dt, f.Seed)

	// 1. Initial load
	entries := gen.Entries(sf.Predicate, f.Points)
	start := time.Now()
	for _, e := range entries {
		if err := store.Put(ctx, e); err != nil {
			return 0, 0, err
		}
	}
	mem := GetDetailedMem()
	if err := Record(w, BenchResult{
		Name:      t.name,
		Config:    t.config,
		Operation: string(Load),
		LatencyNs: time.Since(start).Nanoseconds() / int64(max(f.Points, 1)),
		MemMB:     mem.AllocMB,
		Objects:   mem.HeapObjects,
	}); err != nil {
		return 0, 0, err
	}

	// 2. Box queries, z-order and full scan, compared result by result
	boxes := make([]geo.Box, f.Queries)
	for i := range boxes {
		boxes[i] = gen.Box(f.Selectivity)
	}
	zres, zlat, err := runQueries(ctx, f.Parallel, boxes, func(ctx context.Context, b geo.Box) ([]geoindex.Result, error) {
		res, _, err := store.QueryAll(ctx, sf.Predicate, b)
		return res, err
	})
	if err != nil {
		return 0, 0, err
	}
	fres, flat, err := runQueries(ctx, f.Parallel, boxes, func(ctx context.Context, b geo.Box) ([]geoindex.Result, error) {
		return store.FullScan(ctx, sf.Predicate, b)
	})
	if err != nil {
		return 0, 0, err
	}
	if err := compareResults(zres, fres); err != nil {
		return 0, 0, err
	}

	st := counters.Snapshot()
	q := float64(max(f.Queries, 1))
	mem = GetDetailedMem()
	for _, r := range []BenchResult{
		{t.name, t.config, string(QueryZOrder), zlat, mem.AllocMB, mem.HeapObjects, float64(st.Probes()) / q, avgLen(zres)},
		{t.name, t.config, string(QueryFullScan), flat, mem.AllocMB, mem.HeapObjects, float64(idx.Len()), avgLen(fres)},
	} {
		if err := Record(w, r); err != nil {
			return 0, 0, err
		}
	}
	logger.Info("queries done",
		"structure", t.name, "config", t.config,
		"zorder_ns", zlat, "fullscan_ns", flat,
		"hits", st.Hits, "misses", st.Misses,
		"bigmin_time", st.BigMinTime, "range_check_time", st.RangeCheckTime,
	)

	// 3. Mixed read/write workload
	start = time.Now()
	ops := max(f.Queries/2, 1)
	if err := ExecuteWorkload(ctx, store, gen, sf.Predicate, Mixed, ops, f.Selectivity, uint64(f.Points)); err != nil {
		return 0, 0, err
	}
	if err := Record(w, BenchResult{
		Name:      t.name,
		Config:    t.config,
		Operation: string(Mixed),
		LatencyNs: time.Since(start).Nanoseconds() / int64(ops),
		MemMB:     GetDetailedMem().AllocMB,
	}); err != nil {
		return 0, 0, err
	}
	return zlat, flat, nil
}

// runQueries evaluates every box with up to parallel concurrent calls to fn
// and returns the results by box and the mean latency in nanoseconds.
func runQueries(ctx context.Context, parallel int, boxes []geo.Box,
	fn func(context.Context, geo.Box) ([]geoindex.Result, error),
) ([][]geoindex.Result, int64, error) {
	results := make([][]geoindex.Result, len(boxes))
	latency := make([]time.Duration, len(boxes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for i, b := range boxes {
		g.Go(func() error {
			start := time.Now()
			res, err := fn(gctx, b)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			latency[i] = time.Since(start)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var total time.Duration
	for _, d := range latency {
		total += d
	}
	return results, total.Nanoseconds() / int64(max(len(boxes), 1)), nil
}

// compareResults checks that both modes returned the same subjects per box,
// each exactly once.
func compareResults(zorderRes, fullRes [][]geoindex.Result) error {
	if len(zorderRes) != len(fullRes) {
		return fmt.Errorf("z-order ran %d queries, full scan %d", len(zorderRes), len(fullRes))
	}
	for i := range zorderRes {
		if len(zorderRes[i]) != len(fullRes[i]) {
			return fmt.Errorf("query %d: z-order scan returned %d results, full scan %d",
				i, len(zorderRes[i]), len(fullRes[i]))
		}
		z, f := subjectSet(zorderRes[i]), subjectSet(fullRes[i])
		if !z.Equals(f) {
			missing := roaring64.AndNot(f, z)
			extra := roaring64.AndNot(z, f)
			return fmt.Errorf("query %d: z-order scan differs from full scan: %d missing, %d extra",
				i, missing.GetCardinality(), extra.GetCardinality())
		}
		if z.GetCardinality() != uint64(len(zorderRes[i])) {
			return fmt.Errorf("query %d: %d duplicate results", i, uint64(len(zorderRes[i]))-z.GetCardinality())
		}
	}
	return nil
}

func subjectSet(res []geoindex.Result) *roaring64.Bitmap {
	bm := roaring64.New()
	for _, r := range res {
		bm.Add(r.Subject)
	}
	return bm
}

func avgLen(res [][]geoindex.Result) float64 {
	if len(res) == 0 {
		return 0
	}
	n := 0
	for _, r := range res {
		n += len(r)
	}
	return float64(n) / float64(len(res))
}

func logTotals(logger *slog.Logger, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		logger.Warn("gather metrics", "err", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			attrs := []any{"metric", mf.GetName()}
			for _, lp := range m.GetLabel() {
				attrs = append(attrs, lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				attrs = append(attrs, "value", m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				attrs = append(attrs, "count", m.GetHistogram().GetSampleCount(), "sum", m.GetHistogram().GetSampleSum())
			}
			logger.Info("metric", attrs...)
		}
	}
}

func savePlot(path string, c chartSeries) error {
	p := plot.New()
	p.Title.Text = "Box query latency"
	p.Y.Label.Text = "µs per query"

	width := vg.Points(18)
	zb, err := plotter.NewBarChart(c.zorder, width)
	if err != nil {
		return err
	}
	zb.LineStyle.Width = vg.Length(0)
	zb.Color = plotutil.Color(0)
	zb.Offset = -width / 2

	fb, err := plotter.NewBarChart(c.fullscan, width)
	if err != nil {
		return err
	}
	fb.LineStyle.Width = vg.Length(0)
	fb.Color = plotutil.Color(1)
	fb.Offset = width / 2

	p.Add(zb, fb)
	p.Legend.Add("z-order", zb)
	p.Legend.Add("full scan", fb)
	p.Legend.Top = true
	p.NominalX(c.labels...)

	return p.Save(vg.Length(len(c.labels)+2)*vg.Inch, 4*vg.Inch, path)
}
