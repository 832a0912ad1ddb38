package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/irs-iip/internal/crs"
	"github.com/sells-group/irs-iip/internal/model"
)

const schoolsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "irs-kamloops",
     "geometry": {"type": "Point", "coordinates": [-120.3273, 50.6745]},
     "properties": {"Name": "Kamloops", "Province": "BC", "Opened": 1890}},
    {"type": "Feature",
     "geometry": {"type": "MultiPoint", "coordinates": [[-63.4167, 45.0833], [-63.5, 45.1]]},
     "properties": {"Name": "Shubenacadie", "Province": null}},
    {"type": "Feature", "geometry": null, "properties": {"Name": "No location"}},
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]},
     "properties": {"Name": "Square"}}
  ]
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_GeoJSON(t *testing.T) {
	path := writeFile(t, "schools.geojson", schoolsGeoJSON)

	set, err := New(crs.NewRegistry()).Load(context.Background(), Input{
		Path:   path,
		Source: model.SourceIRS,
		Fields: FieldMap{ID: "id", Name: "name", Province: "province"},
	})
	require.NoError(t, err)

	// RFC 7946 coordinates are WGS 84.
	assert.Equal(t, "EPSG:4326", set.CRS)
	require.Len(t, set.Points, 2)
	require.Len(t, set.Polygons, 1)

	assert.Equal(t, "irs-kamloops", set.Points[0].ID)
	assert.Equal(t, "Kamloops", set.Points[0].Name)
	assert.Equal(t, "BC", set.Points[0].Province)

	// Multipoints use their first point; null properties are blank.
	assert.Equal(t, "irs-1", set.Points[1].ID)
	assert.InDelta(t, -63.4167, set.Points[1].X, 1e-9)
	assert.Equal(t, "", set.Points[1].Province)

	assert.Equal(t, "Square", set.Polygons[0].Name)
	assert.InDelta(t, 1.0, set.Polygons[0].Geom.Area(), 1e-12)
}

func TestLoad_GeoJSONConfiguredCRS(t *testing.T) {
	path := writeFile(t, "projected.json", `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[6200000,3000000]},"properties":{}}]}`)

	set, err := New(crs.NewRegistry()).Load(context.Background(), Input{Path: path, CRS: "3347", Source: model.SourceIIP})
	require.NoError(t, err)
	assert.Equal(t, "EPSG:3347", set.CRS)

	_, err = New(crs.NewRegistry()).Load(context.Background(), Input{Path: path, CRS: "EPSG:77", Source: model.SourceIIP})
	assert.True(t, crs.IsUnknown(err))
}

func TestLoad_GeoJSONMalformed(t *testing.T) {
	path := writeFile(t, "bad.geojson", `{"type": "FeatureCollection", "features": [`)

	_, err := New(crs.NewRegistry()).Load(context.Background(), Input{Path: path, Source: model.SourceIIP})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode GeoJSON")
}

func TestLoad_GeoJSONCancelled(t *testing.T) {
	path := writeFile(t, "schools.geojson", schoolsGeoJSON)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(crs.NewRegistry()).Load(ctx, Input{Path: path, Source: model.SourceIRS})
	assert.Error(t, err)
}

func TestPropertyAttrs(t *testing.T) {
	a := propertyAttrs(map[string]interface{}{
		"Name":   "Site",
		"Count":  12.0,
		"Ratio":  0.25,
		"Active": true,
		"Empty":  nil,
	})
	assert.Equal(t, "Site", a.get("name"))
	assert.Equal(t, "12", a.get("COUNT"))
	assert.Equal(t, "0.25", a.get("ratio"))
	assert.Equal(t, "true", a.get("active"))
	assert.Equal(t, "", a.get("empty"))
	assert.Equal(t, "", a.get(""))
}
