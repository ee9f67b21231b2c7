// Package zorder answers multi-dimensional box queries over a sorted
// key-value index whose keys embed a bit-interleaved (Morton, z-order)
// component.
//
// A scan walks the index in key order. For every record the Advancer
// decodes the z-order component and checks it against the query box. On a
// miss it computes BIGMIN, the smallest z-order value above the record that
// can still fall inside the box, and seeks the cursor there instead of
// stepping record by record:
//
//	adv, err := zorder.NewAdvancer(searchMin, searchMax, codec, layout)
//	...
//	for {
//		tuple, ok, err := adv.Advance(cur)
//		if err != nil || !ok {
//			break
//		}
//		// consume tuple, then step past it
//		cur.Next()
//	}
//
// When no key above a missed record can fall inside the box, the advancer
// seeks past every remaining key sharing the record's prefix by default.
// WithPrefixSkip(false) steps to the next record instead.
//
// The BIGMIN decision table follows Tropf and Herzog, "Multidimensional
// Range Search in Dynamically Balanced Trees" (1981).
package zorder
