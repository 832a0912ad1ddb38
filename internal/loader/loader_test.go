package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/irs-iip/internal/crs"
	"github.com/sells-group/irs-iip/internal/model"
)

const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

const statcanPRJ = `PROJCS["NAD_1983_Statistics_Canada_Lambert",GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Lambert_Conformal_Conic"],PARAMETER["False_Easting",6200000.0],PARAMETER["False_Northing",3000000.0],PARAMETER["Central_Meridian",-91.86666666666666],PARAMETER["Standard_Parallel_1",49.0],PARAMETER["Standard_Parallel_2",77.0],PARAMETER["Latitude_Of_Origin",63.390675],UNIT["Meter",1.0]]`

type fixturePoint struct {
	x, y                             float64
	name, category, status, province string
}

// writePointShapefile writes a point shapefile with NAME/TYPE/STATUS/PROV
// attributes and returns the .shp path.
func writePointShapefile(t *testing.T, dir string, pts []fixturePoint) string {
	t.Helper()
	path := filepath.Join(dir, "projects.shp")

	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NAME", 50),
		shp.StringField("TYPE", 30),
		shp.StringField("STATUS", 30),
		shp.StringField("PROV", 30),
	}))
	for _, p := range pts {
		row := int(w.Write(&shp.Point{X: p.x, Y: p.y}))
		require.NoError(t, w.WriteAttribute(row, 0, p.name))
		require.NoError(t, w.WriteAttribute(row, 1, p.category))
		require.NoError(t, w.WriteAttribute(row, 2, p.status))
		require.NoError(t, w.WriteAttribute(row, 3, p.province))
	}
	w.Close()
	return path
}

func projectFields() FieldMap {
	return FieldMap{Name: "name", Category: "TYPE", Status: "status", Province: "prov"}
}

func TestLoad_ShapefileConfiguredCRS(t *testing.T) {
	dir := t.TempDir()
	path := writePointShapefile(t, dir, []fixturePoint{
		{-120.3, 50.7, "Solar Farm", "Solar", "Operational", "BC"},
		{-63.4, 45.1, "Wind Site", "Wind", "", ""},
	})

	l := New(crs.NewRegistry())
	set, err := l.Load(context.Background(), Input{
		Path:   path,
		CRS:    "epsg:4326",
		Source: model.SourceIIP,
		Fields: projectFields(),
	})
	require.NoError(t, err)

	assert.Equal(t, "EPSG:4326", set.CRS)
	assert.Equal(t, model.SourceIIP, set.Source)
	require.Len(t, set.Points, 2)

	p := set.Points[0]
	assert.Equal(t, "iip-0", p.ID)
	assert.InDelta(t, -120.3, p.X, 1e-9)
	assert.InDelta(t, 50.7, p.Y, 1e-9)
	assert.Equal(t, "Solar Farm", p.Name)
	assert.Equal(t, "Solar", p.Category)
	assert.Equal(t, "Operational", p.Status)
	assert.Equal(t, "BC", p.Province)

	// Blank attributes stay empty; bucketing happens downstream.
	assert.Equal(t, "", set.Points[1].Status)
	assert.Equal(t, "", set.Points[1].Province)
	assert.Equal(t, "iip-1", set.Points[1].ID)
}

func TestLoad_ShapefilePRJSidecar(t *testing.T) {
	dir := t.TempDir()
	path := writePointShapefile(t, dir, []fixturePoint{{6200000, 3000000, "Origin", "Solar", "Planned", "NU"}})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "projects.prj"), []byte(statcanPRJ), 0o644))

	reg := crs.NewRegistry()
	set, err := New(reg).Load(context.Background(), Input{Path: path, Source: model.SourceIIP, Fields: projectFields()})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(set.CRS, "prj:"))
	assert.True(t, strings.HasSuffix(set.CRS, "/projects"))
	c, err := reg.Lookup(set.CRS)
	require.NoError(t, err)
	assert.Equal(t, crs.UnitMetre, c.Unit)
}

func TestLoad_ShapefilePRJSameBasename(t *testing.T) {
	root := t.TempDir()
	irsDir := filepath.Join(root, "irs")
	iipDir := filepath.Join(root, "iip")
	require.NoError(t, os.Mkdir(irsDir, 0o755))
	require.NoError(t, os.Mkdir(iipDir, 0o755))

	irsPath := writePointShapefile(t, irsDir, []fixturePoint{{-79.4, 43.7, "Site", "", "", "ON"}})
	require.NoError(t, os.WriteFile(filepath.Join(irsDir, "projects.prj"), []byte(wgs84PRJ), 0o644))
	iipPath := writePointShapefile(t, iipDir, []fixturePoint{{6200000, 3000000, "Origin", "Solar", "Planned", "NU"}})
	require.NoError(t, os.WriteFile(filepath.Join(iipDir, "projects.prj"), []byte(statcanPRJ), 0o644))

	reg := crs.NewRegistry()
	l := New(reg)
	var irs, iip *model.GeometrySet
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		var err error
		irs, err = l.Load(ctx, Input{Path: irsPath, Source: model.SourceIRS, Fields: projectFields()})
		return err
	})
	g.Go(func() error {
		var err error
		iip, err = l.Load(ctx, Input{Path: iipPath, Source: model.SourceIIP, Fields: projectFields()})
		return err
	})
	require.NoError(t, g.Wait())

	assert.NotEqual(t, irs.CRS, iip.CRS)

	irsCRS, err := reg.Lookup(irs.CRS)
	require.NoError(t, err)
	assert.Equal(t, crs.UnitDegree, irsCRS.Unit)

	iipCRS, err := reg.Lookup(iip.CRS)
	require.NoError(t, err)
	assert.Equal(t, crs.UnitMetre, iipCRS.Unit)

	// Reloading the same file keeps its code.
	again, err := l.Load(context.Background(), Input{Path: irsPath, Source: model.SourceIRS, Fields: projectFields()})
	require.NoError(t, err)
	assert.Equal(t, irs.CRS, again.CRS)
}

func TestLoad_ShapefileNoCRS(t *testing.T) {
	dir := t.TempDir()
	path := writePointShapefile(t, dir, []fixturePoint{{1, 2, "a", "b", "c", "d"}})

	_, err := New(crs.NewRegistry()).Load(context.Background(), Input{Path: path, Source: model.SourceIIP})
	require.Error(t, err)
	assert.True(t, crs.IsUnknown(err))
}

func TestLoad_ShapefileUnknownCRS(t *testing.T) {
	dir := t.TempDir()
	path := writePointShapefile(t, dir, []fixturePoint{{1, 2, "a", "b", "c", "d"}})

	_, err := New(crs.NewRegistry()).Load(context.Background(), Input{Path: path, CRS: "EPSG:1", Source: model.SourceIIP})
	require.Error(t, err)
	assert.True(t, crs.IsUnknown(err))
}

func TestLoad_ShapefileCodePage(t *testing.T) {
	dir := t.TempDir()
	// "Québec" in windows-1252.
	path := writePointShapefile(t, dir, []fixturePoint{{-71.2, 46.8, "Site", "Hydro", "Operational", "Qu\xe9bec"}})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "projects.cpg"), []byte("1252\n"), 0o644))

	set, err := New(crs.NewRegistry()).Load(context.Background(), Input{
		Path:   path,
		CRS:    "EPSG:4326",
		Source: model.SourceIIP,
		Fields: projectFields(),
	})
	require.NoError(t, err)
	require.Len(t, set.Points, 1)
	assert.Equal(t, "Québec", set.Points[0].Province)
}

func TestLoad_ShapefilePolygons(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "provinces.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("PRENAME", 40)}))

	// Clockwise outer ring with a counter-clockwise hole.
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}},
		{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}},
	}))
	row := int(w.Write(&poly))
	require.NoError(t, w.WriteAttribute(row, 0, "Manitoba"))
	w.Close()

	set, err := New(crs.NewRegistry()).Load(context.Background(), Input{
		Path:   path,
		CRS:    "EPSG:3347",
		Source: model.SourceBoundary,
		Fields: FieldMap{Name: "PRENAME", Province: "PRENAME"},
	})
	require.NoError(t, err)
	require.Len(t, set.Polygons, 1)

	p := set.Polygons[0]
	assert.Equal(t, "Manitoba", p.Name)
	require.Equal(t, 1, p.Geom.NumPolygons())
	assert.Equal(t, 2, p.Geom.Polygon(0).NumLinearRings())
	assert.InDelta(t, 96.0, p.Geom.Area(), 1e-9)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.kml")
	require.NoError(t, os.WriteFile(path, []byte("<kml/>"), 0o644))

	_, err := New(crs.NewRegistry()).Load(context.Background(), Input{Path: path, Source: model.SourceIRS})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := New(crs.NewRegistry()).Load(context.Background(), Input{Path: "/nonexistent/x.shp", Source: model.SourceIRS})
	assert.Error(t, err)

	_, err = New(crs.NewRegistry()).Load(context.Background(), Input{Source: model.SourceIRS})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestDBFDecoder(t *testing.T) {
	dec, err := dbfDecoder("UTF-8")
	require.NoError(t, err)
	assert.Nil(t, dec)

	dec, err = dbfDecoder("ISO-8859-1")
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.Equal(t, "Montréal", decodeAttr(dec, "Montr\xe9al"))

	_, err = dbfDecoder("klingon-42")
	assert.Error(t, err)
}

func TestSignedArea(t *testing.T) {
	ccw := []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0}
	cw := []float64{0, 0, 0, 1, 1, 1, 1, 0, 0, 0}
	assert.InDelta(t, 1.0, signedArea(ccw), 1e-12)
	assert.InDelta(t, -1.0, signedArea(cw), 1e-12)
}
