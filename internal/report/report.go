// Package report exports analysis results as CSV files, an XLSX workbook,
// GeoJSON layers and a JSON summary.
package report

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/irs-iip/internal/aggregate"
	"github.com/sells-group/irs-iip/internal/buffer"
	"github.com/sells-group/irs-iip/internal/crossk"
	"github.com/sells-group/irs-iip/internal/crs"
	"github.com/sells-group/irs-iip/internal/join"
)

// Format is an output format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatGeoJSON Format = "geojson"
	FormatJSON    Format = "json"
)

// GeoJSONCRS is the reference system GeoJSON layers are written in.
const GeoJSONCRS = "EPSG:4326"

// Bundle is everything one run exports. Any part may be empty; Curves is
// nil when the cross-K stage was skipped or failed.
type Bundle struct {
	Name    string // base name of the workbook and summary files
	CRS     string // reference system of Disks, Joins and Nearest
	Tables  []aggregate.Table
	Curves  *crossk.Result
	Joins   []join.JoinRecord
	Nearest []join.NearestRecord
	Disks   []buffer.Disk
}

func (b *Bundle) baseName() string {
	if b.Name == "" {
		return "irs_iip"
	}
	return b.Name
}

// Writer writes bundles into one directory.
type Writer struct {
	dir      string
	formats  []Format
	registry *crs.Registry
}

// NewWriter returns a Writer for the given formats. An empty format list
// writes nothing.
func NewWriter(dir string, formats []string, reg *crs.Registry) (*Writer, error) {
	if dir == "" {
		return nil, eris.New("report: output directory is required")
	}
	w := &Writer{dir: dir, registry: reg}
	seen := make(map[Format]bool, len(formats))
	for _, f := range formats {
		switch ff := Format(f); ff {
		case FormatCSV, FormatXLSX, FormatGeoJSON, FormatJSON:
			if !seen[ff] {
				seen[ff] = true
				w.formats = append(w.formats, ff)
			}
		default:
			return nil, eris.Errorf("report: unknown format %q", f)
		}
	}
	if seen[FormatGeoJSON] && reg == nil {
		return nil, eris.New("report: geojson output needs a crs registry")
	}
	return w, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Write exports b in every configured format and returns the written paths
// in sorted order. Formats are written concurrently; the first failure
// cancels the rest.
func (w *Writer) Write(ctx context.Context, b *Bundle) ([]string, error) {
	if b == nil {
		return nil, eris.New("report: nil bundle")
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create %s", w.dir)
	}

	var (
		mu    sync.Mutex
		paths []string
	)
	add := func(p ...string) {
		mu.Lock()
		paths = append(paths, p...)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range w.formats {
		g.Go(func() error {
			var (
				written []string
				err     error
			)
			switch f {
			case FormatCSV:
				written, err = w.writeCSV(gctx, b)
			case FormatXLSX:
				written, err = w.writeXLSX(gctx, b)
			case FormatGeoJSON:
				written, err = w.writeGeoJSON(gctx, b)
			case FormatJSON:
				written, err = w.writeJSON(gctx, b)
			}
			if err != nil {
				return err
			}
			add(written...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(paths)
	zap.L().Info("report: wrote outputs",
		zap.String("component", "report"),
		zap.String("dir", w.dir),
		zap.Int("files", len(paths)),
	)
	return paths, nil
}

// statHeader names the statistic columns that follow the key columns of a
// table.
var statHeader = []string{"count", "values", "mean", "median", "min", "max"}

func tableHeader(t aggregate.Table) []string {
	h := make([]string, 0, len(t.Keys)+len(statHeader))
	h = append(h, t.Keys...)
	return append(h, statHeader...)
}
