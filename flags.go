package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/btree-query-bench/zscan/dbms/index/bptree"
	"github.com/btree-query-bench/zscan/dbms/index/lsm"
	"github.com/btree-query-bench/zscan/geo"
	"github.com/btree-query-bench/zscan/index"
)

type appFlags struct {
	Verbose bool
	LogJSON bool
}

func (f *appFlags) NewFlagSet() *pflag.FlagSet {
	fs := &pflag.FlagSet{}
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "Log scans and seeks at debug level.")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Write logs as JSON.")
	return fs
}

func (f *appFlags) logger() *slog.Logger {
	level := slog.LevelInfo
	if f.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if f.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

type storeFlags struct {
	Engine         string
	Dir            string
	MemTableMB     uint64
	CachePages     int
	Datatype       string
	DatatypeConfig string
	Predicate      uint64
	NoPrefixSkip   bool
}

func (f *storeFlags) NewFlagSet() *pflag.FlagSet {
	fs := &pflag.FlagSet{}
	fs.StringVar(&f.Engine, "engine", enginePebble, "Storage engine: pebble or paged.")
	fs.StringVarP(&f.Dir, "dir", "d", "zscan.db", "Pebble database directory, or paged file prefix.")
	fs.Uint64Var(&f.MemTableMB, "memtable-mb", 16, "Pebble memtable size in MiB.")
	fs.IntVar(&f.CachePages, "cache-pages", 256, "Pages held in the paged B+ tree's LRU cache.")
	fs.StringVar(&f.Datatype, "datatype", "lat-lon",
		"Datatype of stored literals: lat-lon, lat-lon-time or a uri from --datatype-config.")
	fs.StringVar(&f.DatatypeConfig, "datatype-config", "", "Path to a JSON datatype configuration.")
	fs.Uint64Var(&f.Predicate, "predicate", 1, "Predicate id the entries are stored under.")
	fs.BoolVar(&f.NoPrefixSkip, "no-prefix-skip", false,
		"Step record by record when no key above a miss can match, instead of skipping the prefix.")
	return fs
}

const (
	enginePebble = "pebble"
	enginePaged  = "paged"
)

// openIndex opens the persistent index selected by --engine.
func (f *storeFlags) openIndex() (index.Index, error) {
	switch f.Engine {
	case enginePebble, "":
		return lsm.Open(f.Dir, lsm.WithMemTableSize(f.MemTableMB<<20))
	case enginePaged:
		return bptree.Open(f.Dir, bptree.WithCachePages(f.CachePages))
	default:
		return nil, fmt.Errorf("unknown engine %q", f.Engine)
	}
}

var datatypeAliases = map[string]string{
	"lat-lon":      geo.LatLonURI,
	"lat-lon-time": geo.LatLonTimeURI,
}

// datatype resolves the --datatype flag against the built-in datatypes and
// the optional configuration file.
func (f *storeFlags) datatype() (*geo.Datatype, error) {
	all := geo.BuiltinDatatypes()
	if f.DatatypeConfig != "" {
		loaded, err := geo.LoadDatatypesFile(f.DatatypeConfig)
		if err != nil {
			return nil, err
		}
		for uri, dt := range loaded {
			all[uri] = dt
		}
	}
	uri := f.Datatype
	if alias, ok := datatypeAliases[uri]; ok {
		uri = alias
	}
	dt, ok := all[uri]
	if !ok {
		return nil, fmt.Errorf("unknown datatype %q", f.Datatype)
	}
	return dt, nil
}

type loadFlags struct {
	Points int
	Seed   int64
}

func (f *loadFlags) NewFlagSet() *pflag.FlagSet {
	fs := &pflag.FlagSet{}
	fs.IntVarP(&f.Points, "points", "n", 100000, "Number of synthetic entries to write.")
	fs.Int64Var(&f.Seed, "seed", 1, "Random seed of the synthetic workload.")
	return fs
}

type queryFlags struct {
	Low      string
	High     string
	FullScan bool
	Limit    int
}

func (f *queryFlags) NewFlagSet() *pflag.FlagSet {
	fs := &pflag.FlagSet{}
	fs.StringVar(&f.Low, "low", "", `Lower box corner as a literal, e.g. "47.0#8.5".`)
	fs.StringVar(&f.High, "high", "", `Upper box corner as a literal, e.g. "47.5#9.0".`)
	fs.BoolVar(&f.FullScan, "full-scan", false, "Evaluate the box by linear scan instead of z-order seeks.")
	fs.IntVar(&f.Limit, "limit", 20, "Maximum results to print, 0 for all.")
	return fs
}

func (f *queryFlags) box(dt *geo.Datatype) (geo.Box, error) {
	if strings.TrimSpace(f.Low) == "" || strings.TrimSpace(f.High) == "" {
		return geo.Box{}, fmt.Errorf("both --low and --high are required")
	}
	low, err := dt.ParseLiteral(f.Low)
	if err != nil {
		return geo.Box{}, err
	}
	high, err := dt.ParseLiteral(f.High)
	if err != nil {
		return geo.Box{}, err
	}
	return geo.Box{Low: low, High: high}, nil
}

type benchFlags struct {
	Backends    []string
	Points      int
	Queries     int
	Parallel    int
	Degrees     []int
	Selectivity float64
	Seed        int64
	Output      string
	Plot        string
}

func (f *benchFlags) NewFlagSet() *pflag.FlagSet {
	fs := &pflag.FlagSet{}
	fs.StringSliceVar(&f.Backends, "backends", []string{backendBPlus, backendList, backendPebble, backendPaged},
		"Index backends to benchmark.")
	fs.IntVarP(&f.Points, "points", "n", 200000, "Entries loaded into every backend.")
	fs.IntVarP(&f.Queries, "queries", "q", 200, "Box queries per backend.")
	fs.IntVarP(&f.Parallel, "parallel", "p", 4, "Queries run concurrently.")
	fs.IntSliceVar(&f.Degrees, "degrees", []int{8, 32, 128}, "B-tree and B+ tree minimum degrees to sweep.")
	fs.Float64Var(&f.Selectivity, "selectivity", 0.001, "Fraction of the data space covered by each box.")
	fs.Int64Var(&f.Seed, "seed", 1, "Random seed of the synthetic workload.")
	fs.StringVarP(&f.Output, "output", "o", "zscan_results.csv", "CSV result file.")
	fs.StringVar(&f.Plot, "plot", "zscan_latency.png", "Latency chart, empty to skip.")
	return fs
}
