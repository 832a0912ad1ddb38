package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jszwec/csvutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/irs-iip/internal/aggregate"
	"github.com/sells-group/irs-iip/internal/buffer"
	"github.com/sells-group/irs-iip/internal/crossk"
	"github.com/sells-group/irs-iip/internal/crs"
	"github.com/sells-group/irs-iip/internal/join"
	"github.com/sells-group/irs-iip/internal/model"
)

func testBundle(code string, x0, y0 float64) *Bundle {
	site := model.Point{ID: "irs-0", X: x0, Y: y0, Name: "Mohawk Institute", Source: model.SourceIRS}
	iip := model.Point{ID: "iip-0", X: x0 + 1, Y: y0 + 1, Category: "Solar", Status: "Operational", Source: model.SourceIIP}
	disk := buffer.Disk{
		CenterID: site.ID,
		Center:   site,
		Radius:   10,
		CRS:      code,
		Polygon:  buffer.Circle(x0, y0, 10, 4),
	}
	return &Bundle{
		Name: "scenario",
		CRS:  code,
		Tables: []aggregate.Table{
			{
				Name: "projects_by_radius",
				Keys: []string{"radius"},
				Rows: []aggregate.Row{{Key: []string{"10"}, Count: 1}},
			},
			{
				Name: "nearest_by_category",
				Keys: []string{"category"},
				Rows: []aggregate.Row{{Key: []string{"Solar"}, Count: 1, Values: 1, Mean: 1.5, Median: 1.5, Min: 1.5, Max: 1.5}},
			},
		},
		Curves: &crossk.Result{
			NA: 1, NB: 1,
			Samples: []crossk.Sample{
				{Variant: crossk.Isotropic, R: []float64{0, 1}, K: []float64{0, 2}},
				{Variant: crossk.Translation, R: []float64{0, 1}, K: []float64{0, 3}},
				{Variant: crossk.Border, R: []float64{0, 1}, K: []float64{0, 4}},
				{Variant: crossk.Theoretical, R: []float64{0, 1}, K: []float64{0, 3.14159}},
			},
		},
		Joins:   []join.JoinRecord{{Point: iip, Disk: disk, Distance: 1.41}},
		Nearest: []join.NearestRecord{{Point: iip, Nearest: site, Distance: 1.41}},
		Disks:   []buffer.Disk{disk},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestNewWriter(t *testing.T) {
	reg := crs.NewRegistry()

	w, err := NewWriter(t.TempDir(), []string{"csv", "csv", "json"}, reg)
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatCSV, FormatJSON}, w.formats)

	_, err = NewWriter(t.TempDir(), []string{"pdf"}, reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "pdf"`)

	_, err = NewWriter("", []string{"csv"}, reg)
	assert.Error(t, err)

	_, err = NewWriter(t.TempDir(), []string{"geojson"}, nil)
	assert.Error(t, err)
}

func TestWrite_CSV(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, []string{"csv"}, nil)
	require.NoError(t, err)

	paths, err := w.Write(context.Background(), testBundle("EPSG:3347", 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "crossk.csv"),
		filepath.Join(dir, "join_records.csv"),
		filepath.Join(dir, "nearest.csv"),
		filepath.Join(dir, "nearest_by_category.csv"),
		filepath.Join(dir, "projects_by_radius.csv"),
	}, paths)

	assert.Equal(t, [][]string{
		{"radius", "count", "values", "mean", "median", "min", "max"},
		{"10", "1", "0", "", "", "", ""},
	}, readCSV(t, filepath.Join(dir, "projects_by_radius.csv")))

	assert.Equal(t, [][]string{
		{"category", "count", "values", "mean", "median", "min", "max"},
		{"Solar", "1", "1", "1.5", "1.5", "1.5", "1.5"},
	}, readCSV(t, filepath.Join(dir, "nearest_by_category.csv")))

	data, err := os.ReadFile(filepath.Join(dir, "crossk.csv"))
	require.NoError(t, err)
	var curves []CurveRow
	require.NoError(t, csvutil.Unmarshal(data, &curves))
	assert.Equal(t, []CurveRow{
		{R: 0},
		{R: 1, Iso: 2, Trans: 3, Border: 4, Theo: 3.14159},
	}, curves)

	data, err = os.ReadFile(filepath.Join(dir, "nearest.csv"))
	require.NoError(t, err)
	var nearest []NearestRow
	require.NoError(t, csvutil.Unmarshal(data, &nearest))
	require.Len(t, nearest, 1)
	assert.Equal(t, "iip-0", nearest[0].PointID)
	assert.Equal(t, "irs-0", nearest[0].NearestID)
	assert.Equal(t, "Mohawk Institute", nearest[0].NearestName)
	assert.InDelta(t, 1.41, nearest[0].Distance, 1e-9)

	data, err = os.ReadFile(filepath.Join(dir, "join_records.csv"))
	require.NoError(t, err)
	var joins []JoinRow
	require.NoError(t, csvutil.Unmarshal(data, &joins))
	assert.Equal(t, []JoinRow{{
		PointID: "iip-0", Category: "Solar", Status: "Operational",
		SiteID: "irs-0", SiteName: "Mohawk Institute", Radius: 10, Distance: 1.41,
	}}, joins)
}

func TestWrite_CSVEmptyRecords(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, []string{"csv"}, nil)
	require.NoError(t, err)

	_, err = w.Write(context.Background(), &Bundle{CRS: "EPSG:3347", Nearest: []join.NearestRecord{}})
	require.NoError(t, err)

	recs := readCSV(t, filepath.Join(dir, "nearest.csv"))
	require.Len(t, recs, 1)
	assert.Equal(t, "point_id", recs[0][0])
	assert.NoFileExists(t, filepath.Join(dir, "crossk.csv"))
}

func TestWrite_XLSX(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, []string{"xlsx"}, nil)
	require.NoError(t, err)

	paths, err := w.Write(context.Background(), testBundle("EPSG:3347", 0, 0))
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "scenario.xlsx")}, paths)

	f, err := xlsx.OpenFile(paths[0])
	require.NoError(t, err)
	require.Len(t, f.Sheets, 4)
	assert.Equal(t, "projects_by_radius", f.Sheets[0].Name)
	assert.Equal(t, "crossk", f.Sheets[2].Name)
	assert.Equal(t, "nearest", f.Sheets[3].Name)

	byRadius := f.Sheet["projects_by_radius"]
	require.Len(t, byRadius.Rows, 2)
	assert.Equal(t, "radius", byRadius.Rows[0].Cells[0].String())
	assert.Equal(t, "10", byRadius.Rows[1].Cells[0].String())
	n, err := byRadius.Rows[1].Cells[1].Int()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	curves := f.Sheet["crossk"]
	require.Len(t, curves.Rows, 3)
	k, err := curves.Rows[2].Cells[3].Float()
	require.NoError(t, err)
	assert.InDelta(t, 4, k, 1e-9)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "short", sheetName("short"))
	long := "distinct_projects_by_radius_and_category"
	assert.Len(t, sheetName(long), maxSheetName)
}

func TestWrite_GeoJSONIdentity(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, []string{"geojson"}, crs.NewRegistry())
	require.NoError(t, err)

	paths, err := w.Write(context.Background(), testBundle("EPSG:4326", -80, 43))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "disks.geojson"),
		filepath.Join(dir, "join_records.geojson"),
		filepath.Join(dir, "nearest.geojson"),
	}, paths)

	data, err := os.ReadFile(filepath.Join(dir, "nearest.geojson"))
	require.NoError(t, err)
	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(data, &fc))
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "iip-0", fc.Features[0].ID)
	pt, ok := fc.Features[0].Geometry.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{-79, 44}, pt.FlatCoords())
	assert.Equal(t, "irs-0", fc.Features[0].Properties["nearest_id"])

	data, err = os.ReadFile(filepath.Join(dir, "disks.geojson"))
	require.NoError(t, err)
	fc = geojson.FeatureCollection{}
	require.NoError(t, json.Unmarshal(data, &fc))
	require.Len(t, fc.Features, 1)
	poly, ok := fc.Features[0].Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 17, poly.NumCoords())
	assert.InDelta(t, 10, fc.Features[0].Properties["radius"], 1e-9)
}

func TestWrite_GeoJSONReprojects(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, []string{"geojson"}, crs.NewRegistry())
	require.NoError(t, err)

	// The false origin of Statistics Canada Lambert.
	b := testBundle("EPSG:3347", 6200000, 3000000)
	b.Nearest[0].Point.X, b.Nearest[0].Point.Y = 6200000, 3000000
	_, err = w.Write(context.Background(), b)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "nearest.geojson"))
	require.NoError(t, err)
	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(data, &fc))
	pt := fc.Features[0].Geometry.(*geom.Point)
	assert.InDelta(t, -91.866667, pt.X(), 1e-4)
	assert.InDelta(t, 63.390675, pt.Y(), 1e-4)
}

func TestWrite_GeoJSONUnknownCRS(t *testing.T) {
	w, err := NewWriter(t.TempDir(), []string{"geojson"}, crs.NewRegistry())
	require.NoError(t, err)

	_, err = w.Write(context.Background(), testBundle("", 0, 0))
	require.Error(t, err)
	assert.True(t, crs.IsUnknown(err))
}

func TestWrite_JSON(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, []string{"json"}, nil)
	require.NoError(t, err)

	paths, err := w.Write(context.Background(), testBundle("EPSG:3347", 0, 0))
	require.NoError(t, err)
	require.Len(t, paths, 1)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	var s Summary
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, "scenario", s.Name)
	assert.Equal(t, 1, s.Joins)
	assert.Len(t, s.Tables, 2)
	require.NotNil(t, s.CrossK)
	assert.Len(t, s.CrossK.Samples, 4)
}

func TestWrite_AllFormats(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, []string{"csv", "xlsx", "geojson", "json"}, crs.NewRegistry())
	require.NoError(t, err)

	paths, err := w.Write(context.Background(), testBundle("EPSG:3347", 7000000, 1500000))
	require.NoError(t, err)
	assert.Len(t, paths, 10)
	for _, p := range paths {
		assert.FileExists(t, p)
	}
}

func TestWrite_Cancelled(t *testing.T) {
	w, err := NewWriter(t.TempDir(), []string{"csv"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Write(ctx, testBundle("EPSG:3347", 0, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestCurveRows_Nil(t *testing.T) {
	assert.Nil(t, CurveRows(nil))
	assert.Nil(t, CurveRows(&crossk.Result{}))
}
