package crossk

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/irs-iip/internal/model"
)

// WindowMode selects how the observation window is derived.
type WindowMode string

// Window modes.
const (
	// WindowBBox is the bounding box of both point sets together.
	WindowBBox WindowMode = "bbox"
	// WindowExtent is an explicitly configured rectangle.
	WindowExtent WindowMode = "extent"
	// WindowBoundary is the bounding box of the boundary polygon layer.
	WindowBoundary WindowMode = "boundary"
)

// ParseWindowMode maps a config value to a WindowMode. Empty means bbox.
func ParseWindowMode(s string) (WindowMode, error) {
	switch m := WindowMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return WindowBBox, nil
	case WindowBBox, WindowExtent, WindowBoundary:
		return m, nil
	default:
		return "", eris.Errorf("crossk: unknown window mode %q", s)
	}
}

// Window is an axis-aligned rectangular observation window.
type Window struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Width returns the x extent.
func (w Window) Width() float64 { return w.MaxX - w.MinX }

// Height returns the y extent.
func (w Window) Height() float64 { return w.MaxY - w.MinY }

// Area returns Width * Height.
func (w Window) Area() float64 { return w.Width() * w.Height() }

// Contains reports whether (x, y) is inside the window or on its edge.
func (w Window) Contains(x, y float64) bool {
	return x >= w.MinX && x <= w.MaxX && y >= w.MinY && y <= w.MaxY
}

// BorderDistance is the distance from an interior point to the window edge.
func (w Window) BorderDistance(x, y float64) float64 {
	return math.Min(math.Min(x-w.MinX, w.MaxX-x), math.Min(y-w.MinY, w.MaxY-y))
}

func (w Window) validate() error {
	width, height := w.Width(), w.Height()
	if !(width > 0) || !(height > 0) || math.IsInf(width, 0) || math.IsInf(height, 0) {
		return &DegenerateWindowError{Width: width, Height: height}
	}
	return nil
}

// ResolveWindow builds the window for mode. extent is [minx, miny, maxx,
// maxy] and is only read in extent mode; boundary is only read in boundary
// mode.
func ResolveWindow(mode WindowMode, a, b *model.GeometrySet, boundary *model.GeometrySet, extent []float64) (Window, error) {
	var w Window
	switch mode {
	case WindowBBox, "":
		w = unionBounds(a, b)
	case WindowExtent:
		if len(extent) != 4 {
			return Window{}, eris.Errorf("crossk: extent needs 4 values, got %d", len(extent))
		}
		w = Window{MinX: extent[0], MinY: extent[1], MaxX: extent[2], MaxY: extent[3]}
	case WindowBoundary:
		if boundary == nil || len(boundary.Polygons) == 0 {
			return Window{}, eris.New("crossk: boundary window requested but no boundary polygons are loaded")
		}
		w = unionBounds(boundary)
	default:
		return Window{}, eris.Errorf("crossk: unknown window mode %q", mode)
	}
	if err := w.validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

func unionBounds(sets ...*model.GeometrySet) Window {
	w := Window{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, s := range sets {
		if s == nil || s.Len() == 0 {
			continue
		}
		b := s.Bounds()
		w.MinX = math.Min(w.MinX, b.Min(0))
		w.MinY = math.Min(w.MinY, b.Min(1))
		w.MaxX = math.Max(w.MaxX, b.Max(0))
		w.MaxY = math.Max(w.MaxY, b.Max(1))
	}
	return w
}
