package main

import (
	"context"
	"math"
	"math/rand"

	"github.com/btree-query-bench/zscan/geo"
	"github.com/btree-query-bench/zscan/geoindex"
)

type WorkloadType string

const (
	Load          WorkloadType = "Load"
	QueryZOrder   WorkloadType = "Query_ZOrder"
	QueryFullScan WorkloadType = "Query_FullScan"
	Mixed         WorkloadType = "Mixed (90/10)"
)

// domain is the value range synthetic data is drawn from for one field.
type domain struct{ lo, hi float64 }

func fieldDomain(f geo.Field) domain {
	switch f.ServiceMapping {
	case geo.MappingLatitude:
		return domain{-90, 90}
	case geo.MappingLongitude:
		return domain{-180, 180}
	case geo.MappingTime:
		return domain{1.4e9, 1.5e9}
	}
	lo := 0.0
	if f.MinValue != nil {
		lo = float64(*f.MinValue) / float64(max(f.Multiplier, 1))
	}
	return domain{lo, lo + 1e6}
}

// Generator produces synthetic entries and query boxes for a datatype.
type Generator struct {
	dt      *geo.Datatype
	rng     *rand.Rand
	domains []domain
}

func NewGenerator(dt *geo.Datatype, seed int64) *Generator {
	g := &Generator{dt: dt, rng: rand.New(rand.NewSource(seed))}
	for _, f := range dt.Fields {
		g.domains = append(g.domains, fieldDomain(f))
	}
	return g
}

func (g *Generator) value(d int, lo, hi float64) float64 {
	v := lo + g.rng.Float64()*(hi-lo)
	f := g.dt.Fields[d]
	m := float64(max(f.Multiplier, 1))
	if f.ValueType == geo.ValueLong {
		return math.Round(v)
	}
	return math.Round(v*m) / m
}

func (g *Generator) Point() geo.Point {
	p := make(geo.Point, len(g.domains))
	for d, dom := range g.domains {
		p[d] = g.value(d, dom.lo, dom.hi)
	}
	return p
}

// Entries returns n entries with subjects 0..n-1.
func (g *Generator) Entries(predicate uint64, n int) []geoindex.Entry {
	out := make([]geoindex.Entry, n)
	for i := range out {
		out[i] = geoindex.Entry{
			Predicate: predicate,
			Subject:   uint64(i),
			Point:     g.Point(),
			Value:     []byte("v"),
		}
	}
	return out
}

// Box returns a random box covering roughly selectivity of the data space.
func (g *Generator) Box(selectivity float64) geo.Box {
	side := math.Pow(selectivity, 1/float64(len(g.domains)))
	b := geo.Box{Low: make(geo.Point, len(g.domains)), High: make(geo.Point, len(g.domains))}
	for d, dom := range g.domains {
		width := (dom.hi - dom.lo) * side
		lo := g.value(d, dom.lo, dom.hi-width)
		b.Low[d] = lo
		b.High[d] = min(g.value(d, lo+width, lo+width), dom.hi)
	}
	return b
}

// ExecuteWorkload runs a sequential mix of box queries and writes against
// store: 90% queries, 10% inserts of fresh subjects starting at nextSubject.
func ExecuteWorkload(ctx context.Context, store *geoindex.Store, g *Generator, predicate uint64,
	wType WorkloadType, ops int, selectivity float64, nextSubject uint64,
) error {
	for i := 0; i < ops; i++ {
		choice := g.rng.Intn(100)
		switch wType {
		case Mixed:
			if choice < 90 {
				if _, _, err := store.QueryAll(ctx, predicate, g.Box(selectivity)); err != nil {
					return err
				}
				continue
			}
			e := geoindex.Entry{Predicate: predicate, Subject: nextSubject, Point: g.Point(), Value: []byte("x")}
			nextSubject++
			if err := store.Put(ctx, e); err != nil {
				return err
			}
		case QueryZOrder:
			if _, _, err := store.QueryAll(ctx, predicate, g.Box(selectivity)); err != nil {
				return err
			}
		case QueryFullScan:
			if _, err := store.FullScan(ctx, predicate, g.Box(selectivity)); err != nil {
				return err
			}
		}
	}
	return nil
}
