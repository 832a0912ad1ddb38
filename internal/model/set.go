package model

import (
	"github.com/twpayne/go-geom"
)

// GeometrySet is an ordered collection of points and polygons sharing one
// coordinate reference system. Sets are treated as immutable: transforms
// return new sets.
type GeometrySet struct {
	CRS      string    `json:"crs"`
	Source   Source    `json:"source"`
	Points   []Point   `json:"points,omitempty"`
	Polygons []Polygon `json:"polygons,omitempty"`
}

// Len returns the number of geometries in the set.
func (s *GeometrySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points) + len(s.Polygons)
}

// Bounds returns the bounding box of every geometry in the set, or nil if the
// set is empty.
func (s *GeometrySet) Bounds() *geom.Bounds {
	if s.Len() == 0 {
		return nil
	}
	b := geom.NewBounds(geom.XY)
	for _, p := range s.Points {
		b.Extend(geom.NewPointFlat(geom.XY, []float64{p.X, p.Y}))
	}
	for _, poly := range s.Polygons {
		if poly.Geom == nil {
			continue
		}
		b.Extend(poly.Geom)
	}
	return b
}

// Clone returns a deep copy of the set. Polygon geometries are cloned too so
// the copy can be transformed without touching the original.
func (s *GeometrySet) Clone() *GeometrySet {
	if s == nil {
		return nil
	}
	out := &GeometrySet{
		CRS:    s.CRS,
		Source: s.Source,
	}
	if s.Points != nil {
		out.Points = make([]Point, len(s.Points))
		copy(out.Points, s.Points)
	}
	if s.Polygons != nil {
		out.Polygons = make([]Polygon, len(s.Polygons))
		for i, p := range s.Polygons {
			out.Polygons[i] = p
			if p.Geom != nil {
				out.Polygons[i].Geom = p.Geom.Clone()
			}
		}
	}
	return out
}
