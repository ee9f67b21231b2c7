// Command zscan loads geospatial entries into a z-order index and answers
// bounding-box queries with BIGMIN seeks. It also benchmarks the z-order scan
// against a full scan over several index structures.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/btree-query-bench/zscan/geoindex"
	"github.com/btree-query-bench/zscan/zorder"
)

var (
	flagsApp   = &appFlags{}
	flagsStore = &storeFlags{}
	flagsLoad  = &loadFlags{}
	flagsQuery = &queryFlags{}
	flagsBench = &benchFlags{}
)

var rootCmd = &cobra.Command{
	Use:           "zscan",
	Short:         "Z-order range queries over sorted key-value indexes",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Write synthetic entries into a Pebble store",
	Args:  cobra.NoArgs,
	RunE:  runLoad,
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run one box query against a Pebble store",
	Args:  cobra.NoArgs,
	RunE:  runQuery,
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Compare z-order and full-scan box queries across index structures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBench(cmd.Context(), flagsApp.logger(), flagsBench, flagsStore)
	},
}

func init() {
	rootCmd.PersistentFlags().SortFlags = false
	rootCmd.PersistentFlags().AddFlagSet(flagsApp.NewFlagSet())
	rootCmd.PersistentFlags().AddFlagSet(flagsStore.NewFlagSet())

	loadCmd.Flags().AddFlagSet(flagsLoad.NewFlagSet())
	queryCmd.Flags().AddFlagSet(flagsQuery.NewFlagSet())
	benchCmd.Flags().AddFlagSet(flagsBench.NewFlagSet())

	rootCmd.AddCommand(loadCmd, queryCmd, benchCmd)
}

func openStore() (*geoindex.Store, func() error, error) {
	dt, err := flagsStore.datatype()
	if err != nil {
		return nil, nil, err
	}
	db, err := flagsStore.openIndex()
	if err != nil {
		return nil, nil, err
	}
	store := geoindex.New(db, dt,
		geoindex.WithLogger(flagsApp.logger()),
		geoindex.WithPrefixSkip(!flagsStore.NoPrefixSkip),
	)
	return store, db.Close, nil
}

func runLoad(cmd *cobra.Command, _ []string) error {
	logger := flagsApp.logger()
	store, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer closeFn()

	gen := NewGenerator(store.Datatype(), flagsLoad.Seed)
	start := time.Now()
	for i, e := range gen.Entries(flagsStore.Predicate, flagsLoad.Points) {
		if err := store.Put(cmd.Context(), e); err != nil {
			return err
		}
		if (i+1)%100000 == 0 {
			logger.Info("loading", "entries", i+1)
		}
	}
	logger.Info("load complete",
		"entries", flagsLoad.Points,
		"dir", flagsStore.Dir,
		"datatype", store.Datatype().URI,
		"duration", time.Since(start),
	)
	return nil
}

func runQuery(cmd *cobra.Command, _ []string) error {
	logger := flagsApp.logger()
	store, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer closeFn()

	dt := store.Datatype()
	box, err := flagsQuery.box(dt)
	if err != nil {
		return err
	}

	start := time.Now()
	var (
		results []geoindex.Result
		stats   zorder.Stats
	)
	if flagsQuery.FullScan {
		results, err = store.FullScan(cmd.Context(), flagsStore.Predicate, box)
	} else {
		results, stats, err = store.QueryAll(cmd.Context(), flagsStore.Predicate, box)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "subject\t%s\n", dt.Header())
	for i, r := range results {
		if flagsQuery.Limit > 0 && i >= flagsQuery.Limit {
			fmt.Fprintf(out, "... %d more\n", len(results)-i)
			break
		}
		fmt.Fprintf(out, "%d\t%s\n", r.Subject, dt.FormatLiteral(r.Point))
	}
	logger.Info("query complete",
		"results", len(results),
		"full_scan", flagsQuery.FullScan,
		"probes", stats.Probes(),
		"duration", time.Since(start),
	)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "zscan:", err)
		os.Exit(1)
	}
}
