package report

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// maxSheetName is the longest sheet name Excel accepts.
const maxSheetName = 31

// writeXLSX writes one workbook with a sheet per table, plus crossk and
// nearest sheets when those results are present.
func (w *Writer) writeXLSX(ctx context.Context, b *Bundle) ([]string, error) {
	f := xlsx.NewFile()

	for _, t := range b.Tables {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "report: xlsx cancelled")
		}
		sheet, err := f.AddSheet(sheetName(t.Name))
		if err != nil {
			return nil, eris.Wrapf(err, "report: add sheet %s", t.Name)
		}
		addStringRow(sheet, tableHeader(t))
		for _, row := range t.Rows {
			r := sheet.AddRow()
			for _, k := range row.Key {
				r.AddCell().SetString(k)
			}
			r.AddCell().SetInt(row.Count)
			r.AddCell().SetInt(row.Values)
			if row.Values == 0 {
				continue
			}
			for _, v := range []float64{row.Mean, row.Median, row.Min, row.Max} {
				r.AddCell().SetFloat(v)
			}
		}
	}

	if rows := CurveRows(b.Curves); rows != nil {
		sheet, err := f.AddSheet("crossk")
		if err != nil {
			return nil, eris.Wrap(err, "report: add sheet crossk")
		}
		addStringRow(sheet, []string{"r", "iso", "trans", "border", "theo"})
		for _, c := range rows {
			addFloatRow(sheet, c.R, c.Iso, c.Trans, c.Border, c.Theo)
		}
	}

	if b.Nearest != nil {
		sheet, err := f.AddSheet("nearest")
		if err != nil {
			return nil, eris.Wrap(err, "report: add sheet nearest")
		}
		addStringRow(sheet, []string{"point_id", "point_name", "category", "status", "province", "nearest_id", "nearest_name", "distance"})
		for _, n := range NearestRows(b.Nearest) {
			r := sheet.AddRow()
			for _, s := range []string{n.PointID, n.PointName, n.Category, n.Status, n.Province, n.NearestID, n.NearestName} {
				r.AddCell().SetString(s)
			}
			r.AddCell().SetFloat(n.Distance)
		}
	}

	if len(f.Sheets) == 0 {
		return nil, nil
	}

	path := filepath.Join(w.dir, b.baseName()+".xlsx")
	if err := f.Save(path); err != nil {
		return nil, eris.Wrapf(err, "report: save %s", path)
	}
	return []string{path}, nil
}

func sheetName(name string) string {
	if len(name) > maxSheetName {
		return name[:maxSheetName]
	}
	return name
}

func addStringRow(sheet *xlsx.Sheet, vals []string) {
	r := sheet.AddRow()
	for _, v := range vals {
		r.AddCell().SetString(v)
	}
}

func addFloatRow(sheet *xlsx.Sheet, vals ...float64) {
	r := sheet.AddRow()
	for _, v := range vals {
		r.AddCell().SetFloat(v)
	}
}
