// Package join relates IIP points to IRS buffers and IRS sites.
package join

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
	"go.uber.org/zap"

	"github.com/sells-group/irs-iip/internal/buffer"
	"github.com/sells-group/irs-iip/internal/crs"
	"github.com/sells-group/irs-iip/internal/model"
)

// DefaultBruteForceLimit is the largest target set searched without an index.
const DefaultBruteForceLimit = 2000

// ErrEmptyTarget is returned by Nearest when there is nothing to measure to.
var ErrEmptyTarget = eris.New("join: nearest target set is empty")

// JoinRecord pairs a point with one disk that strictly contains it. A point
// inside several disks produces several records.
type JoinRecord struct {
	Point    model.Point `json:"point"`
	Disk     buffer.Disk `json:"disk"`
	Distance float64     `json:"distance"`
}

// NearestRecord pairs a point with its closest point in the target set.
type NearestRecord struct {
	Point    model.Point `json:"point"`
	Nearest  model.Point `json:"nearest"`
	Distance float64     `json:"distance"`
}

// Option configures a Joiner.
type Option func(*Joiner)

// WithBruteForceLimit sets the target size above which Nearest builds a k-d
// tree instead of scanning every target.
func WithBruteForceLimit(n int) Option {
	return func(j *Joiner) {
		if n >= 0 {
			j.bruteForceLimit = n
		}
	}
}

// Joiner runs containment and nearest-distance joins in one planar CRS.
type Joiner struct {
	registry        *crs.Registry
	bruteForceLimit int
}

// NewJoiner creates a Joiner that validates reference systems against reg.
func NewJoiner(reg *crs.Registry, opts ...Option) *Joiner {
	j := &Joiner{registry: reg, bruteForceLimit: DefaultBruteForceLimit}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// indexedDisk adapts a disk to rtreego.Spatial.
type indexedDisk struct {
	idx  int
	rect rtreego.Rect
}

func (d *indexedDisk) Bounds() rtreego.Rect { return d.rect }

// Containment returns one record per (point, disk) pair where the point lies
// in the interior of the disk polygon. Points on the boundary do not match.
// Records follow point order, then disk order.
func (j *Joiner) Containment(points *model.GeometrySet, disks []buffer.Disk) ([]JoinRecord, error) {
	if points == nil {
		return nil, eris.New("join: nil point set")
	}
	if _, err := j.registry.RequireMetric(points.CRS); err != nil {
		return nil, eris.Wrap(err, "join: containment")
	}
	if len(disks) == 0 || len(points.Points) == 0 {
		return nil, nil
	}

	// Disks almost always share one CRS; check each distinct code once.
	checked := make(map[string]bool, 1)
	for _, d := range disks {
		if checked[d.CRS] {
			continue
		}
		if err := j.registry.RequireSame(points.CRS, d.CRS); err != nil {
			return nil, eris.Wrapf(err, "join: disk %s r=%v", d.CenterID, d.Radius)
		}
		checked[d.CRS] = true
	}

	tree := rtreego.NewTree(2, 25, 50)
	for i, d := range disks {
		if d.Polygon == nil {
			return nil, eris.Errorf("join: disk %s r=%v has no polygon", d.CenterID, d.Radius)
		}
		b := d.Polygon.Bounds()
		rect, err := rtreego.NewRect(
			rtreego.Point{b.Min(0), b.Min(1)},
			[]float64{b.Max(0) - b.Min(0), b.Max(1) - b.Min(1)},
		)
		if err != nil {
			return nil, eris.Wrapf(err, "join: index disk %s r=%v", d.CenterID, d.Radius)
		}
		tree.Insert(&indexedDisk{idx: i, rect: rect})
	}

	var out []JoinRecord
	var hits []int
	for _, p := range points.Points {
		hits = hits[:0]
		for _, s := range tree.SearchIntersect(rtreego.Point{p.X, p.Y}.ToRect(1e-9)) {
			hits = append(hits, s.(*indexedDisk).idx)
		}
		sort.Ints(hits)

		for _, idx := range hits {
			d := disks[idx]
			ring := d.Polygon.LinearRing(0)
			loc := xy.LocatePointInRing(ring.Layout(), p.Coord(), ring.FlatCoords())
			if loc != location.Interior {
				continue
			}
			out = append(out, JoinRecord{
				Point:    p,
				Disk:     d,
				Distance: math.Hypot(p.X-d.Center.X, p.Y-d.Center.Y),
			})
		}
	}

	zap.L().Debug("join: containment complete",
		zap.Int("points", len(points.Points)),
		zap.Int("disks", len(disks)),
		zap.Int("records", len(out)),
	)
	return out, nil
}

// Nearest returns, for every point in a, the closest point in b with its
// Euclidean distance, in the order of a. Both sets must share a planar CRS.
func (j *Joiner) Nearest(a, b *model.GeometrySet) ([]NearestRecord, error) {
	if a == nil || b == nil {
		return nil, eris.New("join: nil geometry set")
	}
	if _, err := j.registry.RequireMetric(a.CRS); err != nil {
		return nil, eris.Wrap(err, "join: nearest")
	}
	if err := j.registry.RequireSame(a.CRS, b.CRS); err != nil {
		return nil, eris.Wrap(err, "join: nearest")
	}
	if len(b.Points) == 0 {
		return nil, ErrEmptyTarget
	}

	var find func(x, y float64) (int, float64)
	if len(b.Points) > j.bruteForceLimit {
		find = newSiteTree(b.Points).nearest
	} else {
		find = func(x, y float64) (int, float64) { return bruteNearest(b.Points, x, y) }
	}

	out := make([]NearestRecord, len(a.Points))
	for i, p := range a.Points {
		idx, d := find(p.X, p.Y)
		out[i] = NearestRecord{Point: p, Nearest: b.Points[idx], Distance: d}
	}

	zap.L().Debug("join: nearest complete",
		zap.Int("points", len(a.Points)),
		zap.Int("targets", len(b.Points)),
		zap.Bool("indexed", len(b.Points) > j.bruteForceLimit),
	)
	return out, nil
}

// bruteNearest scans every target; ties go to the lowest index.
func bruteNearest(targets []model.Point, x, y float64) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for i, t := range targets {
		if d := math.Hypot(t.X-x, t.Y-y); d < bestD {
			best, bestD = i, d
		}
	}
	return best, bestD
}
