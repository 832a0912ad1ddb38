package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/irs-iip/internal/aggregate"
	"github.com/sells-group/irs-iip/internal/crossk"
)

// Summary is the JSON document written for the json format.
type Summary struct {
	Name    string            `json:"name"`
	CRS     string            `json:"crs"`
	Disks   int               `json:"disks"`
	Joins   int               `json:"join_records"`
	Nearest int               `json:"nearest_records"`
	Tables  []aggregate.Table `json:"tables"`
	CrossK  *crossk.Result    `json:"crossk,omitempty"`
}

func (w *Writer) writeJSON(ctx context.Context, b *Bundle) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "report: json cancelled")
	}
	s := Summary{
		Name:    b.baseName(),
		CRS:     b.CRS,
		Disks:   len(b.Disks),
		Joins:   len(b.Joins),
		Nearest: len(b.Nearest),
		Tables:  b.Tables,
		CrossK:  b.Curves,
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "report: marshal summary")
	}

	path := filepath.Join(w.dir, b.baseName()+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, eris.Wrapf(err, "report: write %s", path)
	}
	return []string{path}, nil
}
