// Package crs resolves coordinate reference system identifiers and moves
// geometry sets between them.
package crs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
)

// Unit is the linear or angular unit of a reference system's coordinates.
type Unit string

const (
	UnitMetre  Unit = "metre"
	UnitFoot   Unit = "foot"
	UnitDegree Unit = "degree"
)

// CRS describes one coordinate reference system.
type CRS struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Def  string `json:"def"` // proj4 string or WKT
	Unit Unit   `json:"unit"`
}

// Planar reports whether coordinates are linear, so Euclidean distance and
// area are meaningful.
func (c CRS) Planar() bool {
	return c.Unit != UnitDegree
}

// Canada-wide systems used by the analysis plus WGS 84 UTM zones covering the
// country.
var builtins = []CRS{
	{
		Code: "EPSG:4326",
		Name: "WGS 84",
		Def:  "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs",
		Unit: UnitDegree,
	},
	{
		Code: "EPSG:4269",
		Name: "NAD83",
		Def:  "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs",
		Unit: UnitDegree,
	},
	{
		Code: "EPSG:3347",
		Name: "NAD83 / Statistics Canada Lambert",
		Def:  "+proj=lcc +lat_1=49 +lat_2=77 +lat_0=63.390675 +lon_0=-91.86666666666666 +x_0=6200000 +y_0=3000000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
		Unit: UnitMetre,
	},
	{
		Code: "EPSG:3978",
		Name: "NAD83 / Canada Atlas Lambert",
		Def:  "+proj=lcc +lat_1=49 +lat_2=77 +lat_0=49 +lon_0=-95 +x_0=0 +y_0=0 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
		Unit: UnitMetre,
	},
	{
		Code: "EPSG:3857",
		Name: "WGS 84 / Pseudo-Mercator",
		Def:  "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +no_defs",
		Unit: UnitMetre,
	},
}

const (
	utmFirstZone = 7
	utmLastZone  = 22
)

// Registry maps identifiers to reference systems and caches parsed proj
// definitions. The zero value is not usable; call NewRegistry.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]CRS
	srs  map[string]*proj.SR
}

// NewRegistry returns a registry preloaded with the built-in systems.
func NewRegistry() *Registry {
	r := &Registry{
		defs: make(map[string]CRS, len(builtins)+utmLastZone),
		srs:  make(map[string]*proj.SR),
	}
	for _, c := range builtins {
		r.defs[c.Code] = c
	}
	for zone := utmFirstZone; zone <= utmLastZone; zone++ {
		code := fmt.Sprintf("EPSG:%d", 32600+zone)
		r.defs[code] = CRS{
			Code: code,
			Name: fmt.Sprintf("WGS 84 / UTM zone %dN", zone),
			Def:  fmt.Sprintf("+proj=utm +zone=%d +ellps=WGS84 +datum=WGS84 +units=m +no_defs", zone),
			Unit: UnitMetre,
		}
	}
	return r
}

// NormalizeCode canonicalizes identifiers such as "epsg:3347", "3347" or
// " EPSG:3347 " to "EPSG:3347". Non-EPSG identifiers are trimmed and
// returned unchanged.
func NormalizeCode(code string) string {
	c := strings.TrimSpace(code)
	if c == "" {
		return ""
	}
	upper := strings.ToUpper(c)
	if strings.HasPrefix(upper, "EPSG:") {
		return "EPSG:" + strings.TrimSpace(c[len("EPSG:"):])
	}
	if isDigits(c) {
		return "EPSG:" + c
	}
	return c
}

// SRID returns the numeric EPSG code of an identifier, or 0 when the
// identifier is not an EPSG code.
func SRID(code string) int {
	norm := NormalizeCode(code)
	if !strings.HasPrefix(norm, "EPSG:") {
		return 0
	}
	n, err := strconv.Atoi(norm[len("EPSG:"):])
	if err != nil {
		return 0
	}
	return n
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Lookup resolves an identifier. Unknown identifiers return an
// UnknownReferenceSystemError.
func (r *Registry) Lookup(code string) (CRS, error) {
	norm := NormalizeCode(code)
	if norm == "" {
		return CRS{}, &UnknownReferenceSystemError{}
	}
	r.mu.RLock()
	c, ok := r.defs[norm]
	r.mu.RUnlock()
	if !ok {
		return CRS{}, &UnknownReferenceSystemError{Code: norm}
	}
	return c, nil
}

// Register adds a reference system from a proj4 string or WKT definition.
// The unit is inferred from the definition. Re-registering a code with the
// same definition returns the existing entry; a different definition is an
// error, so one code never names two systems.
func (r *Registry) Register(code, def string) (CRS, error) {
	norm := NormalizeCode(code)
	if norm == "" {
		return CRS{}, eris.New("crs: register: empty code")
	}
	def = strings.TrimSpace(def)
	if def == "" {
		return CRS{}, eris.Errorf("crs: register %s: empty definition", norm)
	}

	sr, err := proj.Parse(def)
	if err != nil {
		return CRS{}, eris.Wrapf(err, "crs: parse definition for %s", norm)
	}

	c := CRS{Code: norm, Name: norm, Def: def, Unit: InferUnit(def)}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.defs[norm]; ok {
		if sameDefinition(prev.Def, def) {
			return prev, nil
		}
		return CRS{}, eris.Errorf("crs: register %s: already defined with a different definition", norm)
	}
	r.defs[norm] = c
	r.srs[norm] = sr
	return c, nil
}

// sameDefinition compares definitions ignoring whitespace layout.
func sameDefinition(a, b string) bool {
	return strings.Join(strings.Fields(a), " ") == strings.Join(strings.Fields(b), " ")
}

// All returns every registered system sorted by code.
func (r *Registry) All() []CRS {
	r.mu.RLock()
	out := make([]CRS, 0, len(r.defs))
	for _, c := range r.defs {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// RequireMetric returns a UnitMismatchError unless code resolves to a planar
// system measured in metres.
func (r *Registry) RequireMetric(code string) (CRS, error) {
	c, err := r.Lookup(code)
	if err != nil {
		return CRS{}, err
	}
	if c.Unit != UnitMetre {
		return CRS{}, &UnitMismatchError{Code: c.Code, Unit: c.Unit, Want: UnitMetre}
	}
	return c, nil
}

// spatialRef returns the parsed proj definition for c, parsing it on first
// use.
func (r *Registry) spatialRef(c CRS) (*proj.SR, error) {
	r.mu.RLock()
	sr, ok := r.srs[c.Code]
	r.mu.RUnlock()
	if ok {
		return sr, nil
	}

	sr, err := proj.Parse(c.Def)
	if err != nil {
		return nil, eris.Wrapf(err, "crs: parse definition for %s", c.Code)
	}
	r.mu.Lock()
	r.srs[c.Code] = sr
	r.mu.Unlock()
	return sr, nil
}

// InferUnit guesses the coordinate unit of a proj4 or WKT definition.
func InferUnit(def string) Unit {
	d := strings.ToLower(def)
	if strings.Contains(d, "+proj=") {
		for _, geo := range []string{"+proj=longlat", "+proj=latlong", "+proj=lonlat", "+proj=latlon"} {
			if strings.Contains(d, geo) {
				return UnitDegree
			}
		}
		if strings.Contains(d, "+units=ft") || strings.Contains(d, "+units=us-ft") {
			return UnitFoot
		}
		return UnitMetre
	}

	if strings.Contains(d, "projcs[") || strings.Contains(d, "projcrs[") {
		if strings.Contains(d, "foot") || strings.Contains(d, "feet") {
			return UnitFoot
		}
		return UnitMetre
	}
	return UnitDegree
}
