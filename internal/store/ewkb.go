package store

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/irs-iip/internal/model"
)

// encodePoint converts a point to EWKB bytes tagged with srid, ready for a
// BYTEA column or ST_GeomFromEWKB.
func encodePoint(p model.Point, srid int) ([]byte, error) {
	g := geom.NewPointFlat(geom.XY, []float64{p.X, p.Y}).SetSRID(srid)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "store: encode point %s", p.ID)
	}
	return data, nil
}
