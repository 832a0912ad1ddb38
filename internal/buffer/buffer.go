// Package buffer builds fixed-radius disks around reference points.
package buffer

import (
	"math"
	"slices"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/irs-iip/internal/crs"
	"github.com/sells-group/irs-iip/internal/model"
)

// DefaultQuadSegments is the number of polygon segments per quarter circle.
const DefaultQuadSegments = 16

// DefaultRadii are the analysis tiers in metres.
var DefaultRadii = []float64{1000, 5000, 10000, 20000, 50000}

// Disk is a circular buffer around one center point at one radius. Disks at
// different radii around the same center are separate values.
type Disk struct {
	CenterID string        `json:"center_id"`
	Center   model.Point   `json:"center"`
	Radius   float64       `json:"radius"`
	CRS      string        `json:"crs"`
	Polygon  *geom.Polygon `json:"-"`
}

// Area returns the area of the disk polygon.
func (d Disk) Area() float64 {
	if d.Polygon == nil {
		return 0
	}
	return d.Polygon.Area()
}

// Option configures a Generator.
type Option func(*Generator)

// WithQuadSegments sets how many segments approximate each quarter circle.
func WithQuadSegments(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.quadSegments = n
		}
	}
}

// Generator builds disks for geometry sets in a metric reference system.
type Generator struct {
	registry     *crs.Registry
	quadSegments int
}

// NewGenerator creates a Generator that checks units against reg.
func NewGenerator(reg *crs.Registry, opts ...Option) *Generator {
	g := &Generator{registry: reg, quadSegments: DefaultQuadSegments}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns one disk per (point, radius) pair, ordered by point and
// then ascending radius. Radii are in metres, so the set must be in a planar
// metric system; geographic sets fail with crs.UnitMismatchError.
func (g *Generator) Generate(set *model.GeometrySet, radii []float64) ([]Disk, error) {
	if set == nil {
		return nil, eris.New("buffer: nil geometry set")
	}
	ref, err := g.registry.RequireMetric(set.CRS)
	if err != nil {
		return nil, eris.Wrap(err, "buffer: generate")
	}
	if len(radii) == 0 {
		return nil, eris.New("buffer: at least one radius is required")
	}

	sorted := make([]float64, len(radii))
	copy(sorted, radii)
	sort.Float64s(sorted)
	for _, r := range sorted {
		if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, eris.Errorf("buffer: invalid radius %v", r)
		}
	}
	// A repeated radius would double every count at that distance.
	sorted = slices.Compact(sorted)

	disks := make([]Disk, 0, len(set.Points)*len(sorted))
	for _, p := range set.Points {
		for _, r := range sorted {
			disks = append(disks, Disk{
				CenterID: p.ID,
				Center:   p,
				Radius:   r,
				CRS:      ref.Code,
				Polygon:  Circle(p.X, p.Y, r, g.quadSegments),
			})
		}
	}

	zap.L().Debug("buffer: generated disks",
		zap.String("crs", ref.Code),
		zap.Int("centers", len(set.Points)),
		zap.Int("radii", len(sorted)),
		zap.Int("disks", len(disks)),
	)
	return disks, nil
}

// Circle returns a closed counter-clockwise polygon approximating the circle
// of radius r around (cx, cy). Every vertex lies on the circle, so the
// polygon is inscribed and scaled copies around one center nest exactly.
func Circle(cx, cy, r float64, quadSegments int) *geom.Polygon {
	if quadSegments <= 0 {
		quadSegments = DefaultQuadSegments
	}
	n := 4 * quadSegments
	flat := make([]float64, 0, 2*(n+1))
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		flat = append(flat, cx+r*math.Cos(theta), cy+r*math.Sin(theta))
	}
	flat = append(flat, flat[0], flat[1])
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}
