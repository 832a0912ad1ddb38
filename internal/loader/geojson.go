package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/irs-iip/internal/model"
)

// loadGeoJSON reads a FeatureCollection. GeoJSON coordinates are WGS 84
// unless the input is configured with another CRS.
func (l *Loader) loadGeoJSON(ctx context.Context, in Input) (*model.GeometrySet, error) {
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: read %s", in.Path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "loader: decode GeoJSON %s", in.Path)
	}

	code := geojsonCRS
	if in.CRS != "" {
		c, err := l.registry.Lookup(in.CRS)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: reference system for %s", in.Path)
		}
		code = c.Code
	}

	set := &model.GeometrySet{CRS: code, Source: in.Source}
	var skipped int

	for row, f := range fc.Features {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "loader: GeoJSON read cancelled")
		}
		if f == nil || f.Geometry == nil {
			skipped++
			continue
		}

		a := propertyAttrs(f.Properties)
		if _, ok := a["id"]; !ok && f.ID != "" {
			a["id"] = f.ID
		}

		switch g := f.Geometry.(type) {
		case *geom.Point:
			c := g.Coords()
			set.Points = append(set.Points, point(row, c.X(), c.Y(), a, in))
		case *geom.MultiPoint:
			if g.NumPoints() == 0 {
				skipped++
				continue
			}
			if g.NumPoints() > 1 {
				zap.L().Debug("loader: multipoint feature, using first point",
					zap.String("path", in.Path),
					zap.Int("row", row),
					zap.Int("points", g.NumPoints()),
				)
			}
			c := g.Point(0).Coords()
			set.Points = append(set.Points, point(row, c.X(), c.Y(), a, in))
		case *geom.Polygon:
			mp := geom.NewMultiPolygon(g.Layout())
			if err := mp.Push(g); err != nil {
				skipped++
				continue
			}
			poly := polygon(row, a, in)
			poly.Geom = mp
			set.Polygons = append(set.Polygons, poly)
		case *geom.MultiPolygon:
			poly := polygon(row, a, in)
			poly.Geom = g
			set.Polygons = append(set.Polygons, poly)
		default:
			skipped++
		}
	}

	if skipped > 0 {
		zap.L().Debug("loader: skipped GeoJSON features",
			zap.String("path", in.Path),
			zap.Int("skipped", skipped),
		)
	}

	return set, nil
}

// propertyAttrs flattens GeoJSON properties into lower-cased string values.
// Null properties become empty strings.
func propertyAttrs(props map[string]interface{}) attrs {
	a := make(attrs, len(props))
	for k, v := range props {
		key := strings.ToLower(k)
		switch val := v.(type) {
		case nil:
			a[key] = ""
		case string:
			a[key] = val
		case float64:
			a[key] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			a[key] = fmt.Sprint(val)
		}
	}
	return a
}
