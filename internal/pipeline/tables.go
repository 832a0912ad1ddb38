package pipeline

import (
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/irs-iip/internal/aggregate"
	"github.com/sells-group/irs-iip/internal/join"
	"github.com/sells-group/irs-iip/internal/model"
)

// Attribute and value names used by the summary tables.
const (
	keyRadius   = "radius"
	keyCategory = "category"
	keyStatus   = "status"
	keyProvince = "province"
	keySiteID   = "site_id"
	keySiteName = "site_name"
	keyBand     = "band"

	valueDistance = "distance"
)

func radiusLabel(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func pointAttrs(p model.Point) map[string]string {
	return map[string]string{
		keyCategory: p.Category,
		keyStatus:   p.Status,
		keyProvince: p.Province,
	}
}

// joinRecords converts containment output for the aggregator. The distance
// value is the point's distance to the disk center.
func joinRecords(joins []join.JoinRecord) []aggregate.Record {
	out := make([]aggregate.Record, len(joins))
	for i, j := range joins {
		attrs := pointAttrs(j.Point)
		attrs[keyRadius] = radiusLabel(j.Disk.Radius)
		attrs[keySiteID] = j.Disk.CenterID
		attrs[keySiteName] = j.Disk.Center.Name
		out[i] = aggregate.Record{
			Attrs:  attrs,
			Values: map[string]float64{valueDistance: j.Distance},
		}
	}
	return out
}

// distinctJoinRecords keeps one record per (point, radius), so a project
// inside the buffers of several sites counts once at that radius.
func distinctJoinRecords(joins []join.JoinRecord) []aggregate.Record {
	type key struct {
		id     string
		radius float64
	}
	seen := make(map[key]bool, len(joins))
	var out []aggregate.Record
	for _, j := range joins {
		k := key{j.Point.ID, j.Disk.Radius}
		if seen[k] {
			continue
		}
		seen[k] = true
		attrs := pointAttrs(j.Point)
		attrs[keyRadius] = radiusLabel(j.Disk.Radius)
		out = append(out, aggregate.Record{Attrs: attrs})
	}
	return out
}

func nearestRecords(nearest []join.NearestRecord, bands aggregate.Bands) []aggregate.Record {
	out := make([]aggregate.Record, len(nearest))
	for i, n := range nearest {
		attrs := pointAttrs(n.Point)
		attrs[keySiteID] = n.Nearest.ID
		attrs[keySiteName] = n.Nearest.Name
		attrs[keyBand] = bands.Label(n.Distance)
		out[i] = aggregate.Record{
			Attrs:  attrs,
			Values: map[string]float64{valueDistance: n.Distance},
		}
	}
	return out
}

// tableSpec is one summary table: which records it groups and how.
type tableSpec struct {
	name    string
	records []aggregate.Record
	spec    aggregate.Spec
	// order, when set, lists first-key values in display order.
	order []string
}

// containmentTables lists the buffer-based tables. Radius groups are
// zero-filled so every configured radius appears; site coverage is
// zero-filled over every site and radius so sites with no nearby projects
// are reported explicitly.
func containmentTables(joins []join.JoinRecord, sites []model.Point, radii []float64, unknown string) []tableSpec {
	records := joinRecords(joins)

	radiusFill := make([][]string, len(radii))
	for i, r := range radii {
		radiusFill[i] = []string{radiusLabel(r)}
	}
	siteFill := make([][]string, 0, len(sites)*len(radii))
	for _, s := range sites {
		for _, r := range radii {
			siteFill = append(siteFill, []string{s.ID, s.Name, radiusLabel(r)})
		}
	}

	return []tableSpec{
		{
			name:    "projects_by_radius",
			records: records,
			spec:    aggregate.Spec{Keys: []string{keyRadius}, Field: valueDistance, ZeroFill: radiusFill, Unknown: unknown},
		},
		{
			name:    "distinct_projects_by_radius",
			records: distinctJoinRecords(joins),
			spec:    aggregate.Spec{Keys: []string{keyRadius}, ZeroFill: radiusFill, Unknown: unknown},
		},
		{
			name:    "projects_by_radius_category",
			records: records,
			spec:    aggregate.Spec{Keys: []string{keyRadius, keyCategory}, Unknown: unknown},
		},
		{
			name:    "projects_by_radius_status",
			records: records,
			spec:    aggregate.Spec{Keys: []string{keyRadius, keyStatus}, Unknown: unknown},
		},
		{
			name:    "projects_by_radius_province",
			records: records,
			spec:    aggregate.Spec{Keys: []string{keyProvince, keyRadius}, Unknown: unknown},
		},
		{
			name:    "site_coverage",
			records: records,
			spec:    aggregate.Spec{Keys: []string{keySiteID, keySiteName, keyRadius}, Field: valueDistance, ZeroFill: siteFill, Unknown: unknown},
		},
	}
}

// nearestTables lists the nearest-distance tables. Every band label is
// zero-filled.
func nearestTables(nearest []join.NearestRecord, bands aggregate.Bands, unknown string) []tableSpec {
	records := nearestRecords(nearest, bands)

	labels := bands.Labels()
	bandFill := make([][]string, len(labels))
	for i, l := range labels {
		bandFill[i] = []string{l}
	}

	return []tableSpec{
		{
			name:    "nearest_by_category",
			records: records,
			spec:    aggregate.Spec{Keys: []string{keyCategory}, Field: valueDistance, Unknown: unknown},
		},
		{
			name:    "nearest_by_status",
			records: records,
			spec:    aggregate.Spec{Keys: []string{keyStatus}, Field: valueDistance, Unknown: unknown},
		},
		{
			name:    "nearest_by_band",
			records: records,
			spec:    aggregate.Spec{Keys: []string{keyBand}, Field: valueDistance, ZeroFill: bandFill, Unknown: unknown},
			order:   labels,
		},
		{
			name:    "nearest_by_site",
			records: records,
			spec:    aggregate.Spec{Keys: []string{keySiteID, keySiteName}, Field: valueDistance, Unknown: unknown},
		},
	}
}

// buildTables groups every spec. A failing table does not stop the others;
// the returned error names the first failure.
func buildTables(specs []tableSpec) ([]aggregate.Table, error) {
	tables := make([]aggregate.Table, 0, len(specs))
	var firstErr error
	for _, ts := range specs {
		rows, err := aggregate.GroupBy(ts.records, ts.spec)
		if err != nil {
			if firstErr == nil {
				firstErr = eris.Wrapf(err, "pipeline: table %s", ts.name)
			}
			continue
		}
		if ts.order != nil {
			orderRows(rows, ts.order)
		}
		tables = append(tables, aggregate.Table{Name: ts.name, Keys: ts.spec.Keys, Rows: rows})
	}
	return tables, firstErr
}

// orderRows stable-sorts rows by the position of their first key in order.
// Keys missing from order keep their relative order after the listed ones.
func orderRows(rows []aggregate.Row, order []string) {
	pos := make(map[string]int, len(order))
	for i, v := range order {
		pos[v] = i
	}
	rank := func(r aggregate.Row) int {
		if i, ok := pos[r.Key[0]]; ok {
			return i
		}
		return len(order)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rank(rows[i]) < rank(rows[j]) })
}
