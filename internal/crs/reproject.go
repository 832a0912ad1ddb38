package crs

import (
	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"

	"github.com/sells-group/irs-iip/internal/model"
)

// Transformer converts one coordinate pair between two reference systems.
type Transformer = proj.Transformer

// NewTransformer builds a coordinate transformer from src to dst.
func (r *Registry) NewTransformer(src, dst string) (Transformer, error) {
	from, err := r.Lookup(src)
	if err != nil {
		return nil, err
	}
	to, err := r.Lookup(dst)
	if err != nil {
		return nil, err
	}

	fromSR, err := r.spatialRef(from)
	if err != nil {
		return nil, err
	}
	toSR, err := r.spatialRef(to)
	if err != nil {
		return nil, err
	}

	tf, err := fromSR.NewTransform(toSR)
	if err != nil {
		return nil, eris.Wrapf(err, "crs: build transform %s -> %s", from.Code, to.Code)
	}
	return tf, nil
}

// Reproject returns a copy of set with every coordinate moved into the target
// system. The input set is never modified. A set without a CRS tag, or an
// unknown source or target, is rejected.
func (r *Registry) Reproject(set *model.GeometrySet, target string) (*model.GeometrySet, error) {
	if set == nil {
		return nil, eris.New("crs: reproject: nil geometry set")
	}
	if set.CRS == "" {
		return nil, &UnknownReferenceSystemError{}
	}

	from, err := r.Lookup(set.CRS)
	if err != nil {
		return nil, err
	}
	to, err := r.Lookup(target)
	if err != nil {
		return nil, err
	}

	out := set.Clone()
	out.CRS = to.Code
	if from.Code == to.Code {
		return out, nil
	}

	tf, err := r.NewTransformer(from.Code, to.Code)
	if err != nil {
		return nil, err
	}

	for i := range out.Points {
		p := &out.Points[i]
		x, y, err := tf(p.X, p.Y)
		if err != nil {
			return nil, eris.Wrapf(err, "crs: transform point %s (%s -> %s)", p.ID, from.Code, to.Code)
		}
		p.X, p.Y = x, y
	}

	for i := range out.Polygons {
		mp := out.Polygons[i].Geom
		if mp == nil {
			continue
		}
		// The clone owns its flat coordinates, so rewrite them in place.
		flat := mp.FlatCoords()
		stride := mp.Stride()
		for j := 0; j+1 < len(flat); j += stride {
			x, y, err := tf(flat[j], flat[j+1])
			if err != nil {
				return nil, eris.Wrapf(err, "crs: transform polygon %s (%s -> %s)", out.Polygons[i].ID, from.Code, to.Code)
			}
			flat[j], flat[j+1] = x, y
		}
	}

	return out, nil
}

// RequireSame returns a MismatchError unless every code resolves to the same
// reference system.
func (r *Registry) RequireSame(codes ...string) error {
	var first CRS
	for i, code := range codes {
		c, err := r.Lookup(code)
		if err != nil {
			return err
		}
		if i == 0 {
			first = c
			continue
		}
		if c.Code != first.Code {
			return &MismatchError{Left: first.Code, Right: c.Code}
		}
	}
	return nil
}
