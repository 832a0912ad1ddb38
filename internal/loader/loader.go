// Package loader reads point and polygon datasets from shapefiles and GeoJSON
// into geometry sets tagged with their reference system.
package loader

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/irs-iip/internal/crs"
	"github.com/sells-group/irs-iip/internal/model"
)

// geojsonCRS is the reference system RFC 7946 mandates for GeoJSON.
const geojsonCRS = "EPSG:4326"

// FieldMap names the attribute columns that feed the point model. Lookups are
// case-insensitive; an empty name means the attribute is absent.
type FieldMap struct {
	ID       string `yaml:"id" mapstructure:"id"`
	Name     string `yaml:"name" mapstructure:"name"`
	Category string `yaml:"category" mapstructure:"category"`
	Status   string `yaml:"status" mapstructure:"status"`
	Province string `yaml:"province" mapstructure:"province"`
}

// Input describes one dataset to load.
type Input struct {
	Path   string
	CRS    string // overrides any .prj sidecar
	Source model.Source
	Fields FieldMap
}

// Loader reads datasets and resolves their reference systems.
type Loader struct {
	registry *crs.Registry
}

// New creates a Loader that resolves and registers reference systems in reg.
func New(reg *crs.Registry) *Loader {
	return &Loader{registry: reg}
}

// Load reads the dataset at in.Path. The format is chosen by extension:
// .shp for shapefiles, .geojson/.json for GeoJSON.
func (l *Loader) Load(ctx context.Context, in Input) (*model.GeometrySet, error) {
	if in.Path == "" {
		return nil, eris.Errorf("loader: %s: path is required", in.Source)
	}
	if _, err := os.Stat(in.Path); err != nil {
		return nil, eris.Wrapf(err, "loader: stat %s", in.Path)
	}

	log := zap.L().With(
		zap.String("component", "loader"),
		zap.String("source", string(in.Source)),
		zap.String("path", in.Path),
	)

	var (
		set *model.GeometrySet
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(in.Path)); ext {
	case ".shp":
		set, err = l.loadShapefile(ctx, in)
	case ".geojson", ".json":
		set, err = l.loadGeoJSON(ctx, in)
	default:
		return nil, eris.Errorf("loader: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, err
	}

	log.Info("dataset loaded",
		zap.String("crs", set.CRS),
		zap.Int("points", len(set.Points)),
		zap.Int("polygons", len(set.Polygons)),
	)
	return set, nil
}

// resolveCRS picks the reference system for a dataset: the configured code
// first, then the sidecar definition. There is no silent default.
func (l *Loader) resolveCRS(in Input, sidecarCode, sidecarDef string) (string, error) {
	if in.CRS != "" {
		c, err := l.registry.Lookup(in.CRS)
		if err != nil {
			return "", err
		}
		return c.Code, nil
	}
	if sidecarDef != "" {
		c, err := l.registry.Register(sidecarCode, sidecarDef)
		if err != nil {
			return "", err
		}
		return c.Code, nil
	}
	return "", &crs.UnknownReferenceSystemError{}
}

// attrs holds one record's attribute values keyed by lower-cased field name.
type attrs map[string]string

func (a attrs) get(field string) string {
	if field == "" {
		return ""
	}
	return strings.TrimSpace(a[strings.ToLower(field)])
}

// point builds a model point from coordinates and mapped attributes. The row
// index stands in for the identifier when no ID field is mapped or the value
// is blank.
func point(row int, x, y float64, a attrs, in Input) model.Point {
	id := a.get(in.Fields.ID)
	if id == "" {
		id = rowID(in.Source, row)
	}
	return model.Point{
		ID:       id,
		X:        x,
		Y:        y,
		Name:     a.get(in.Fields.Name),
		Category: a.get(in.Fields.Category),
		Status:   a.get(in.Fields.Status),
		Province: a.get(in.Fields.Province),
		Source:   in.Source,
	}
}

func polygon(row int, a attrs, in Input) model.Polygon {
	id := a.get(in.Fields.ID)
	if id == "" {
		id = rowID(in.Source, row)
	}
	return model.Polygon{
		ID:       id,
		Name:     a.get(in.Fields.Name),
		Province: a.get(in.Fields.Province),
	}
}

func rowID(src model.Source, row int) string {
	return string(src) + "-" + strconv.Itoa(row)
}
