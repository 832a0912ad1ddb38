// Package aggregate groups join output into summary tables.
package aggregate

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultUnknown labels records whose key attribute is missing or blank.
const DefaultUnknown = "unknown"

// Record is one row of join output as seen by the aggregator.
type Record struct {
	Attrs  map[string]string
	Values map[string]float64
}

// Spec describes one grouping.
type Spec struct {
	// Keys are the attribute names to group by, in output column order.
	Keys []string
	// Field, when set, names the value summarised per group.
	Field string
	// ZeroFill lists groups that must appear even without records.
	ZeroFill [][]string
	// Unknown replaces blank key values. Defaults to DefaultUnknown.
	Unknown string
}

// Row is one group of the output table. Mean, Median, Min and Max are zero
// when the group has no values for Spec.Field; Values says how many it had.
type Row struct {
	Key    []string `json:"key"`
	Count  int      `json:"count"`
	Values int      `json:"values"`
	Mean   float64  `json:"mean"`
	Median float64  `json:"median"`
	Min    float64  `json:"min"`
	Max    float64  `json:"max"`
}

// Table is a named GroupBy result. Keys are the column names of Row.Key.
type Table struct {
	Name string   `json:"name"`
	Keys []string `json:"keys"`
	Rows []Row    `json:"rows"`
}

type group struct {
	label  []string
	count  int
	values []float64
}

// normalize folds case and trims space so that spelling variants group
// together. Blank values become unknown.
func normalize(fold cases.Caser, v, unknown string) (folded, label string) {
	label = strings.TrimSpace(v)
	if label == "" {
		label = unknown
	}
	return fold.String(label), label
}

// GroupBy counts records per distinct key tuple and summarises
// Spec.Field. The sum of Count over all rows equals len(records). Rows are sorted
// by key with numeric-aware comparison and the unknown bucket last, so the
// input order never affects the output.
func GroupBy(records []Record, spec Spec) ([]Row, error) {
	if len(spec.Keys) == 0 {
		return nil, eris.New("aggregate: at least one key is required")
	}
	unknown := spec.Unknown
	if unknown == "" {
		unknown = DefaultUnknown
	}
	// Casers carry state and are not safe for concurrent use.
	fold := cases.Fold()

	groups := make(map[string]*group)
	lookup := func(vals []string) *group {
		folded := make([]string, len(vals))
		labels := make([]string, len(vals))
		for i, v := range vals {
			folded[i], labels[i] = normalize(fold, v, unknown)
		}
		id := strings.Join(folded, "\x1f")
		g, ok := groups[id]
		if !ok {
			g = &group{label: labels}
			groups[id] = g
			return g
		}
		// Keep the smallest spelling so the label is order independent.
		for i := range labels {
			if labels[i] < g.label[i] {
				g.label[i] = labels[i]
			}
		}
		return g
	}

	for _, z := range spec.ZeroFill {
		if len(z) != len(spec.Keys) {
			return nil, eris.Errorf("aggregate: zero-fill key %v has %d parts, want %d", z, len(z), len(spec.Keys))
		}
		lookup(z)
	}

	vals := make([]string, len(spec.Keys))
	for _, r := range records {
		for i, k := range spec.Keys {
			vals[i] = r.Attrs[k]
		}
		g := lookup(vals)
		g.count++
		if spec.Field == "" {
			continue
		}
		if v, ok := r.Values[spec.Field]; ok && !math.IsNaN(v) {
			g.values = append(g.values, v)
		}
	}

	rows := make([]Row, 0, len(groups))
	for _, g := range groups {
		row := Row{Key: g.label, Count: g.count, Values: len(g.values)}
		if len(g.values) > 0 {
			sort.Float64s(g.values)
			row.Mean = stat.Mean(g.values, nil)
			row.Median = median(g.values)
			row.Min = floats.Min(g.values)
			row.Max = floats.Max(g.values)
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return compareKeys(fold, rows[i].Key, rows[j].Key, unknown) < 0
	})
	return rows, nil
}

// median of an ascending slice; even lengths average the middle pair.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func compareKeys(fold cases.Caser, a, b []string, unknown string) int {
	for i := range a {
		if c := compareValue(fold, a[i], b[i], unknown); c != 0 {
			return c
		}
	}
	return 0
}

func compareValue(fold cases.Caser, a, b, unknown string) int {
	fu := fold.String(unknown)
	au, bu := fold.String(a) == fu, fold.String(b) == fu
	switch {
	case au && bu:
		return 0
	case au:
		return 1
	case bu:
		return -1
	}

	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr == nil && berr == nil && af != bf {
		if af < bf {
			return -1
		}
		return 1
	}

	fa, fb := fold.String(a), fold.String(b)
	if fa != fb {
		return strings.Compare(fa, fb)
	}
	return strings.Compare(a, b)
}

// Total returns the sum of Count over rows.
func Total(rows []Row) int {
	var n int
	for _, r := range rows {
		n += r.Count
	}
	return n
}
