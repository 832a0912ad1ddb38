package report

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/irs-iip/internal/aggregate"
	"github.com/sells-group/irs-iip/internal/crossk"
	"github.com/sells-group/irs-iip/internal/join"
)

// CurveRow is one distance of the cross-K curves in wide form.
type CurveRow struct {
	R      float64 `csv:"r"`
	Iso    float64 `csv:"iso"`
	Trans  float64 `csv:"trans"`
	Border float64 `csv:"border"`
	Theo   float64 `csv:"theo"`
}

// NearestRow is one nearest-distance record.
type NearestRow struct {
	PointID     string  `csv:"point_id"`
	PointName   string  `csv:"point_name"`
	Category    string  `csv:"category"`
	Status      string  `csv:"status"`
	Province    string  `csv:"province"`
	X           float64 `csv:"x"`
	Y           float64 `csv:"y"`
	NearestID   string  `csv:"nearest_id"`
	NearestName string  `csv:"nearest_name"`
	Distance    float64 `csv:"distance"`
}

// JoinRow is one containment record.
type JoinRow struct {
	PointID  string  `csv:"point_id"`
	Category string  `csv:"category"`
	Status   string  `csv:"status"`
	SiteID   string  `csv:"site_id"`
	SiteName string  `csv:"site_name"`
	Radius   float64 `csv:"radius"`
	Distance float64 `csv:"distance"`
}

// CurveRows converts a cross-K result to wide rows, one per distance.
func CurveRows(res *crossk.Result) []CurveRow {
	if res == nil {
		return nil
	}
	theo := res.Sample(crossk.Theoretical)
	if theo == nil {
		return nil
	}
	rows := make([]CurveRow, len(theo.R))
	for i, r := range theo.R {
		rows[i].R = r
		rows[i].Theo = theo.K[i]
	}
	set := func(v crossk.Variant, dst func(*CurveRow, float64)) {
		s := res.Sample(v)
		if s == nil {
			return
		}
		for i := range rows {
			if i < len(s.K) {
				dst(&rows[i], s.K[i])
			}
		}
	}
	set(crossk.Isotropic, func(r *CurveRow, k float64) { r.Iso = k })
	set(crossk.Translation, func(r *CurveRow, k float64) { r.Trans = k })
	set(crossk.Border, func(r *CurveRow, k float64) { r.Border = k })
	return rows
}

// NearestRows flattens nearest records.
func NearestRows(records []join.NearestRecord) []NearestRow {
	rows := make([]NearestRow, len(records))
	for i, r := range records {
		rows[i] = NearestRow{
			PointID:     r.Point.ID,
			PointName:   r.Point.Name,
			Category:    r.Point.Category,
			Status:      r.Point.Status,
			Province:    r.Point.Province,
			X:           r.Point.X,
			Y:           r.Point.Y,
			NearestID:   r.Nearest.ID,
			NearestName: r.Nearest.Name,
			Distance:    r.Distance,
		}
	}
	return rows
}

// JoinRows flattens containment records.
func JoinRows(records []join.JoinRecord) []JoinRow {
	rows := make([]JoinRow, len(records))
	for i, r := range records {
		rows[i] = JoinRow{
			PointID:  r.Point.ID,
			Category: r.Point.Category,
			Status:   r.Point.Status,
			SiteID:   r.Disk.CenterID,
			SiteName: r.Disk.Center.Name,
			Radius:   r.Disk.Radius,
			Distance: r.Distance,
		}
	}
	return rows
}

func (w *Writer) writeCSV(ctx context.Context, b *Bundle) ([]string, error) {
	var paths []string

	for _, t := range b.Tables {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "report: csv cancelled")
		}
		p := filepath.Join(w.dir, t.Name+".csv")
		if err := writeTableCSV(p, t); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}

	if b.Curves != nil {
		p := filepath.Join(w.dir, "crossk.csv")
		if err := writeStructCSV(p, CurveRows(b.Curves), CurveRow{}); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	if b.Joins != nil {
		p := filepath.Join(w.dir, "join_records.csv")
		if err := writeStructCSV(p, JoinRows(b.Joins), JoinRow{}); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	if b.Nearest != nil {
		p := filepath.Join(w.dir, "nearest.csv")
		if err := writeStructCSV(p, NearestRows(b.Nearest), NearestRow{}); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// writeTableCSV writes an aggregate table. Key columns vary per table so the
// header is built from t.Keys instead of a struct.
func writeTableCSV(path string, t aggregate.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(tableHeader(t)); err != nil {
		return eris.Wrapf(err, "report: write header of %s", t.Name)
	}
	for _, row := range t.Rows {
		if err := cw.Write(tableRecord(row)); err != nil {
			return eris.Wrapf(err, "report: write row of %s", t.Name)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrapf(err, "report: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "report: close %s", path)
}

func tableRecord(row aggregate.Row) []string {
	rec := make([]string, 0, len(row.Key)+len(statHeader))
	rec = append(rec, row.Key...)
	rec = append(rec, strconv.Itoa(row.Count), strconv.Itoa(row.Values))
	if row.Values == 0 {
		return append(rec, "", "", "", "")
	}
	for _, v := range []float64{row.Mean, row.Median, row.Min, row.Max} {
		rec = append(rec, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return rec
}

// writeStructCSV encodes a slice of csv-tagged structs. header is a zero
// value of the element type so an empty slice still gets a header line.
func writeStructCSV(path string, rows any, header any) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(header); err != nil {
		return eris.Wrapf(err, "report: encode header of %s", path)
	}
	if err := enc.Encode(rows); err != nil {
		return eris.Wrapf(err, "report: encode %s", path)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrapf(err, "report: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "report: close %s", path)
}
