package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"github.com/sells-group/irs-iip/internal/model"
)

// loadShapefile reads a .shp with its .dbf attributes. A .prj sidecar supplies
// the reference system when none is configured; a .cpg sidecar names the DBF
// text encoding.
func (l *Loader) loadShapefile(ctx context.Context, in Input) (*model.GeometrySet, error) {
	base := strings.TrimSuffix(in.Path, filepath.Ext(in.Path))

	prj, err := readSidecar(base, ".prj")
	if err != nil {
		return nil, err
	}
	code, err := l.resolveCRS(in, sidecarCode(base), prj)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: reference system for %s", in.Path)
	}

	cpg, err := readSidecar(base, ".cpg")
	if err != nil {
		return nil, err
	}
	dec, err := dbfDecoder(cpg)
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(in.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open shapefile %s", in.Path)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	fieldNames := make([]string, len(fields))
	for i, f := range fields {
		fieldNames[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	set := &model.GeometrySet{CRS: code, Source: in.Source}
	var skipped int

	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "loader: shapefile read cancelled")
		}

		row, shape := reader.Shape()
		if shape == nil {
			skipped++
			continue
		}

		a := make(attrs, len(fieldNames))
		for i, name := range fieldNames {
			val := strings.TrimRight(reader.Attribute(i), "\x00")
			a[name] = decodeAttr(dec, val)
		}

		switch s := shape.(type) {
		case *shp.Point:
			set.Points = append(set.Points, point(row, s.X, s.Y, a, in))
		case *shp.PointZ:
			set.Points = append(set.Points, point(row, s.X, s.Y, a, in))
		case *shp.PointM:
			set.Points = append(set.Points, point(row, s.X, s.Y, a, in))
		case *shp.Polygon:
			mp := partsToMultiPolygon(s.Parts, s.Points)
			if mp == nil {
				skipped++
				continue
			}
			poly := polygon(row, a, in)
			poly.Geom = mp
			set.Polygons = append(set.Polygons, poly)
		case *shp.PolygonZ:
			mp := partsToMultiPolygon(s.Parts, s.Points)
			if mp == nil {
				skipped++
				continue
			}
			poly := polygon(row, a, in)
			poly.Geom = mp
			set.Polygons = append(set.Polygons, poly)
		default:
			skipped++
		}
	}

	if skipped > 0 {
		zap.L().Debug("loader: skipped shapefile records",
			zap.String("path", in.Path),
			zap.Int("skipped", skipped),
		)
	}

	return set, nil
}

// readSidecar returns the trimmed contents of base+ext, or "" if the file
// does not exist.
func readSidecar(base, ext string) (string, error) {
	for _, candidate := range []string{base + ext, base + strings.ToUpper(ext)} {
		data, err := os.ReadFile(candidate)
		if err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		if !os.IsNotExist(err) {
			return "", eris.Wrapf(err, "loader: read %s", candidate)
		}
	}
	return "", nil
}

func decodeAttr(dec *encoding.Decoder, val string) string {
	if dec == nil || val == "" {
		return val
	}
	out, err := dec.String(val)
	if err != nil {
		return val
	}
	return out
}

// partsToMultiPolygon converts shapefile rings into a multipolygon. Shapefile
// outer rings run clockwise and holes counter-clockwise; each hole is attached
// to the most recent outer ring. Orientation is flipped on the way in.
func partsToMultiPolygon(parts []int32, points []shp.Point) *geom.MultiPolygon {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon

	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("loader: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i := range parts {
		start := parts[i]
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || end-start < 4 {
			continue
		}

		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, points[j].X, points[j].Y)
		}
		outer := signedArea(flat) <= 0 || current == nil
		if outer {
			// Clockwise: a new outer ring. An orphan hole is promoted too.
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		// Store rings the GeoJSON way round: outer CCW, holes CW.
		if (signedArea(flat) < 0) == outer {
			reverseRing(flat)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)
		if err := current.Push(ring); err != nil {
			zap.L().Debug("loader: skipping malformed ring", zap.Int("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea returns the shoelace area of a flat XY ring: positive for
// counter-clockwise, negative for clockwise.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}

// reverseRing reverses the vertex order of a flat XY ring in place.
func reverseRing(flat []float64) {
	n := len(flat) / 2
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		flat[2*i], flat[2*j] = flat[2*j], flat[2*i]
		flat[2*i+1], flat[2*j+1] = flat[2*j+1], flat[2*i+1]
	}
}

// sidecarCode names the ad-hoc system read from a .prj. The full cleaned
// path keeps same-named files in different directories apart.
func sidecarCode(base string) string {
	if abs, err := filepath.Abs(base); err == nil {
		base = abs
	}
	return "prj:" + filepath.ToSlash(filepath.Clean(base))
}
