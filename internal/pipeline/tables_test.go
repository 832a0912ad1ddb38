package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/irs-iip/internal/aggregate"
	"github.com/sells-group/irs-iip/internal/buffer"
	"github.com/sells-group/irs-iip/internal/join"
	"github.com/sells-group/irs-iip/internal/model"
)

func TestRadiusLabel(t *testing.T) {
	assert.Equal(t, "1000", radiusLabel(1000))
	assert.Equal(t, "2.5", radiusLabel(2.5))
}

func TestDistinctJoinRecords(t *testing.T) {
	p := model.Point{ID: "iip-0", Category: "Solar"}
	q := model.Point{ID: "iip-1", Category: "Wind"}
	joins := []join.JoinRecord{
		{Point: p, Disk: buffer.Disk{CenterID: "irs-0", Radius: 1000}},
		{Point: p, Disk: buffer.Disk{CenterID: "irs-1", Radius: 1000}},
		{Point: p, Disk: buffer.Disk{CenterID: "irs-0", Radius: 5000}},
		{Point: q, Disk: buffer.Disk{CenterID: "irs-1", Radius: 1000}},
	}

	records := distinctJoinRecords(joins)
	require.Len(t, records, 3)

	rows, err := aggregate.GroupBy(records, aggregate.Spec{Keys: []string{keyRadius}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Count)
	assert.Equal(t, 1, rows[1].Count)

	// Raw records keep one row per (point, disk) pair.
	assert.Len(t, joinRecords(joins), 4)
}

func TestNearestRecords_Band(t *testing.T) {
	nearest := []join.NearestRecord{
		{Point: model.Point{ID: "a"}, Nearest: model.Point{ID: "s", Name: "Site"}, Distance: 500},
		{Point: model.Point{ID: "b"}, Nearest: model.Point{ID: "s", Name: "Site"}, Distance: 75000},
	}
	records := nearestRecords(nearest, aggregate.DefaultBands())
	assert.Equal(t, "0-1 km", records[0].Attrs[keyBand])
	assert.Equal(t, "50+ km", records[1].Attrs[keyBand])
	assert.Equal(t, "Site", records[1].Attrs[keySiteName])
	assert.Equal(t, 75000.0, records[1].Values[valueDistance])
}

func TestOrderRows(t *testing.T) {
	rows := []aggregate.Row{
		{Key: []string{"10-20 km"}},
		{Key: []string{"other"}},
		{Key: []string{"0-1 km"}},
		{Key: []string{"5-10 km"}},
	}
	orderRows(rows, []string{"0-1 km", "5-10 km", "10-20 km"})

	var got []string
	for _, r := range rows {
		got = append(got, r.Key[0])
	}
	assert.Equal(t, []string{"0-1 km", "5-10 km", "10-20 km", "other"}, got)
}

func TestBuildTables_ContinuesPastFailure(t *testing.T) {
	records := []aggregate.Record{{Attrs: map[string]string{keyCategory: "Solar"}}}
	tables, err := buildTables([]tableSpec{
		{name: "broken", records: records, spec: aggregate.Spec{}},
		{name: "by_category", records: records, spec: aggregate.Spec{Keys: []string{keyCategory}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: table broken")
	require.Len(t, tables, 1)
	assert.Equal(t, "by_category", tables[0].Name)
}

func TestContainmentTables_ZeroFill(t *testing.T) {
	sites := []model.Point{{ID: "irs-0", Name: "A"}, {ID: "irs-1", Name: "B"}}
	tables, err := buildTables(containmentTables(nil, sites, []float64{1000, 5000}, "unknown"))
	require.NoError(t, err)

	byName := make(map[string]aggregate.Table)
	for _, tb := range tables {
		byName[tb.Name] = tb
	}
	assert.Len(t, byName["projects_by_radius"].Rows, 2)
	assert.Len(t, byName["distinct_projects_by_radius"].Rows, 2)
	assert.Len(t, byName["site_coverage"].Rows, 4)
	assert.Empty(t, byName["projects_by_radius_category"].Rows)
	assert.Equal(t, 0, aggregate.Total(byName["site_coverage"].Rows))
}
