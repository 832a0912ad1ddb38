package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/irs-iip/internal/crs"
)

// writeGeoJSON writes disks, containment records and nearest records as
// separate layers, reprojected to GeoJSONCRS.
func (w *Writer) writeGeoJSON(ctx context.Context, b *Bundle) ([]string, error) {
	tf, err := w.transformer(b.CRS)
	if err != nil {
		return nil, err
	}

	var paths []string
	write := func(name string, fc *geojson.FeatureCollection) error {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "report: geojson cancelled")
		}
		p := filepath.Join(w.dir, name+".geojson")
		if err := writeFeatureCollection(p, fc); err != nil {
			return err
		}
		paths = append(paths, p)
		return nil
	}

	if b.Disks != nil {
		fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(b.Disks))}
		for _, d := range b.Disks {
			if d.Polygon == nil {
				continue
			}
			poly, err := transformPolygon(d.Polygon, tf)
			if err != nil {
				return nil, eris.Wrapf(err, "report: transform disk %s", d.CenterID)
			}
			fc.Features = append(fc.Features, &geojson.Feature{
				Geometry: poly,
				Properties: map[string]interface{}{
					"site_id":   d.CenterID,
					"site_name": d.Center.Name,
					"radius":    d.Radius,
				},
			})
		}
		if err := write("disks", fc); err != nil {
			return nil, err
		}
	}

	if b.Joins != nil {
		fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(b.Joins))}
		for i, r := range JoinRows(b.Joins) {
			pt, err := transformPoint(b.Joins[i].Point.X, b.Joins[i].Point.Y, tf)
			if err != nil {
				return nil, eris.Wrapf(err, "report: transform point %s", r.PointID)
			}
			fc.Features = append(fc.Features, &geojson.Feature{
				ID:       r.PointID,
				Geometry: pt,
				Properties: map[string]interface{}{
					"category":  r.Category,
					"status":    r.Status,
					"site_id":   r.SiteID,
					"site_name": r.SiteName,
					"radius":    r.Radius,
					"distance":  r.Distance,
				},
			})
		}
		if err := write("join_records", fc); err != nil {
			return nil, err
		}
	}

	if b.Nearest != nil {
		fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(b.Nearest))}
		for _, r := range NearestRows(b.Nearest) {
			pt, err := transformPoint(r.X, r.Y, tf)
			if err != nil {
				return nil, eris.Wrapf(err, "report: transform point %s", r.PointID)
			}
			fc.Features = append(fc.Features, &geojson.Feature{
				ID:       r.PointID,
				Geometry: pt,
				Properties: map[string]interface{}{
					"name":         r.PointName,
					"category":     r.Category,
					"status":       r.Status,
					"nearest_id":   r.NearestID,
					"nearest_name": r.NearestName,
					"distance":     r.Distance,
				},
			})
		}
		if err := write("nearest", fc); err != nil {
			return nil, err
		}
	}

	return paths, nil
}

func (w *Writer) transformer(src string) (crs.Transformer, error) {
	if src == "" {
		return nil, &crs.UnknownReferenceSystemError{}
	}
	if crs.NormalizeCode(src) == GeoJSONCRS {
		return func(x, y float64) (float64, float64, error) { return x, y, nil }, nil
	}
	return w.registry.NewTransformer(src, GeoJSONCRS)
}

func transformPoint(x, y float64, tf crs.Transformer) (*geom.Point, error) {
	lon, lat, err := tf(x, y)
	if err != nil {
		return nil, err
	}
	return geom.NewPointFlat(geom.XY, []float64{lon, lat}), nil
}

func transformPolygon(p *geom.Polygon, tf crs.Transformer) (*geom.Polygon, error) {
	src := p.FlatCoords()
	stride := p.Stride()
	flat := make([]float64, 0, len(src)/stride*2)
	for i := 0; i+1 < len(src); i += stride {
		x, y, err := tf(src[i], src[i+1])
		if err != nil {
			return nil, err
		}
		flat = append(flat, x, y)
	}
	ends := make([]int, len(p.Ends()))
	for i, e := range p.Ends() {
		ends[i] = e / stride * 2
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends), nil
}

func writeFeatureCollection(path string, fc *geojson.FeatureCollection) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrapf(err, "report: marshal %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}
