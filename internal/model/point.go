package model

import (
	"github.com/twpayne/go-geom"
)

// Source identifies which input dataset a geometry came from.
type Source string

const (
	SourceIRS      Source = "irs"      // former residential school sites
	SourceIIP      Source = "iip"      // Indigenous-led infrastructure projects
	SourceBoundary Source = "boundary" // province/territory polygons
)

// Point is a single located record from an input dataset. Attribute values
// that were missing or blank in the source file are left empty; grouping code
// decides how to bucket them.
type Point struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Name     string  `json:"name,omitempty"`
	Category string  `json:"category,omitempty"`
	Status   string  `json:"status,omitempty"`
	Province string  `json:"province,omitempty"`
	Source   Source  `json:"source"`
}

// Coord returns the point as a go-geom coordinate.
func (p Point) Coord() geom.Coord {
	return geom.Coord{p.X, p.Y}
}

// Polygon is an areal record, typically a province or territory boundary.
type Polygon struct {
	ID       string             `json:"id"`
	Name     string             `json:"name,omitempty"`
	Province string             `json:"province,omitempty"`
	Geom     *geom.MultiPolygon `json:"-"`
}
