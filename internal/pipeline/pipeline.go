// Package pipeline runs the proximity analysis: load and normalize the
// inputs, buffer the sites, join projects to buffers and to their nearest
// site, summarise, estimate cross-K and export.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/irs-iip/internal/aggregate"
	"github.com/sells-group/irs-iip/internal/buffer"
	"github.com/sells-group/irs-iip/internal/config"
	"github.com/sells-group/irs-iip/internal/crossk"
	"github.com/sells-group/irs-iip/internal/crs"
	"github.com/sells-group/irs-iip/internal/join"
	"github.com/sells-group/irs-iip/internal/loader"
	"github.com/sells-group/irs-iip/internal/model"
	"github.com/sells-group/irs-iip/internal/report"
	"github.com/sells-group/irs-iip/internal/store"
)

// Mode selects which stages a run executes. Values match the CLI commands.
type Mode string

const (
	ModeAnalyze Mode = "analyze"
	ModeBuffers Mode = "buffers"
	ModeNearest Mode = "nearest"
	ModeCrossK  Mode = "crossk"
)

// Stage names.
const (
	StageLoad      = "load"
	StageNormalize = "normalize"
	StageBuffer    = "buffer"
	StageJoin      = "join"
	StageNearest   = "nearest"
	StageAggregate = "aggregate"
	StageCrossK    = "crossk"
	StageExport    = "export"
	StageSave      = "save"
)

// Inputs are the datasets of one run. Boundary is nil when not configured.
type Inputs struct {
	IRS      *model.GeometrySet
	IIP      *model.GeometrySet
	Boundary *model.GeometrySet
}

// Result is everything a run produced. Buffers and joins are computed once
// and shared by every downstream stage.
type Result struct {
	RunID   string
	Mode    Mode
	CRS     string
	Inputs  *Inputs
	Disks   []buffer.Disk
	Joins   []join.JoinRecord
	Nearest []join.NearestRecord
	Tables  []aggregate.Table
	CrossK  *crossk.Result
	Outputs []string
	Stages  []model.StageResult
}

// Pipeline wires the analysis components together.
type Pipeline struct {
	cfg      *config.Config
	registry *crs.Registry
	loader   *loader.Loader
	buffers  *buffer.Generator
	joiner   *join.Joiner
	bands    aggregate.Bands
	store    store.Store
	writer   *report.Writer
}

// New creates a Pipeline. st and w may be nil to skip persistence and
// export respectively.
func New(cfg *config.Config, reg *crs.Registry, st store.Store, w *report.Writer) (*Pipeline, error) {
	if cfg == nil {
		return nil, eris.New("pipeline: nil config")
	}
	if reg == nil {
		reg = crs.NewRegistry()
	}

	bands := aggregate.DefaultBands()
	if cfg.Analysis.BandsFile != "" {
		b, err := aggregate.LoadBands(cfg.Analysis.BandsFile)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: load bands")
		}
		bands = b
	}

	return &Pipeline{
		cfg:      cfg,
		registry: reg,
		loader:   loader.New(reg),
		buffers:  buffer.NewGenerator(reg, buffer.WithQuadSegments(cfg.Analysis.QuadSegments)),
		joiner:   join.NewJoiner(reg, join.WithBruteForceLimit(cfg.Analysis.NearestBruteForceLimit)),
		bands:    bands,
		store:    st,
		writer:   w,
	}, nil
}

// Run executes the stages of mode. Load, normalize, buffer, join, nearest
// and export failures abort with a StageError. Aggregate and crossk failures
// are logged and recorded on the stage results; the run still completes.
func (p *Pipeline) Run(ctx context.Context, mode Mode) (*Result, error) {
	switch mode {
	case ModeAnalyze, ModeBuffers, ModeNearest, ModeCrossK:
	default:
		return nil, eris.Errorf("pipeline: unknown mode %q", mode)
	}

	inputs := model.RunInputs{
		IRSPath:      p.cfg.Inputs.IRS.Path,
		IIPPath:      p.cfg.Inputs.IIP.Path,
		BoundaryPath: p.cfg.Inputs.Boundary.Path,
		TargetCRS:    p.cfg.Analysis.TargetCRS,
		Radii:        p.cfg.Analysis.Radii,
	}

	runID := uuid.New().String()
	if p.store != nil {
		run, err := p.store.CreateRun(ctx, inputs)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		runID = run.ID
	}

	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("run_id", runID),
		zap.String("mode", string(mode)),
	)
	log.Info("pipeline: starting run")

	t := &tracker{ctx: ctx, store: p.store, runID: runID, log: log}
	res := &Result{RunID: runID, Mode: mode, CRS: p.cfg.Analysis.TargetCRS}

	err := p.execute(ctx, mode, t, res)
	res.Stages = t.results()

	p.saveRun(ctx, t, res, err)
	if err != nil {
		log.Error("pipeline: run failed", zap.String("stage", FailedStage(err)), zap.Error(err))
		return res, err
	}

	log.Info("pipeline: run complete",
		zap.Int("disks", len(res.Disks)),
		zap.Int("join_records", len(res.Joins)),
		zap.Int("nearest_records", len(res.Nearest)),
		zap.Int("tables", len(res.Tables)),
		zap.Int("outputs", len(res.Outputs)),
	)
	return res, nil
}

func (p *Pipeline) execute(ctx context.Context, mode Mode, t *tracker, res *Result) error {
	needIIP := mode != ModeBuffers
	needBoundary := (mode == ModeAnalyze || mode == ModeCrossK) &&
		p.cfg.Inputs.Boundary.Path != ""

	// Load and normalize abort the run.
	t.setStatus(model.RunStatusLoading)
	var raw *Inputs
	if err := t.track(StageLoad, func() (map[string]any, error) {
		var err error
		raw, err = p.LoadInputs(ctx, needIIP, needBoundary)
		if err != nil {
			return nil, err
		}
		return inputCounts(raw), nil
	}); err != nil {
		return &StageError{Stage: StageLoad, Err: err}
	}

	if err := t.track(StageNormalize, func() (map[string]any, error) {
		var err error
		res.Inputs, err = p.Normalize(raw)
		if err != nil {
			return nil, err
		}
		return map[string]any{"crs": p.cfg.Analysis.TargetCRS}, nil
	}); err != nil {
		return &StageError{Stage: StageNormalize, Err: err}
	}
	in := res.Inputs

	if mode == ModeAnalyze || mode == ModeBuffers {
		if err := t.track(StageBuffer, func() (map[string]any, error) {
			var err error
			res.Disks, err = p.buffers.Generate(in.IRS, p.cfg.Analysis.Radii)
			if err != nil {
				return nil, err
			}
			return map[string]any{"disks": len(res.Disks)}, nil
		}); err != nil {
			return &StageError{Stage: StageBuffer, Err: err}
		}
	}

	if mode == ModeAnalyze || mode == ModeNearest {
		t.setStatus(model.RunStatusJoining)
	}
	if mode == ModeAnalyze {
		if err := t.track(StageJoin, func() (map[string]any, error) {
			var err error
			res.Joins, err = p.joiner.Containment(in.IIP, res.Disks)
			if err != nil {
				return nil, err
			}
			if res.Joins == nil {
				res.Joins = []join.JoinRecord{}
			}
			return map[string]any{"join_records": len(res.Joins)}, nil
		}); err != nil {
			return &StageError{Stage: StageJoin, Err: err}
		}
	}
	if mode == ModeAnalyze || mode == ModeNearest {
		if err := t.track(StageNearest, func() (map[string]any, error) {
			var err error
			res.Nearest, err = p.joiner.Nearest(in.IIP, in.IRS)
			if err != nil {
				return nil, err
			}
			return map[string]any{"nearest_records": len(res.Nearest)}, nil
		}); err != nil {
			return &StageError{Stage: StageNearest, Err: err}
		}
	}

	// Aggregation and cross-K only affect their own outputs.
	if mode == ModeAnalyze || mode == ModeNearest {
		t.setStatus(model.RunStatusAggregating)
		_ = t.track(StageAggregate, func() (map[string]any, error) {
			var specs []tableSpec
			if mode == ModeAnalyze {
				specs = append(specs, containmentTables(res.Joins, in.IRS.Points, p.cfg.Analysis.Radii, p.cfg.Analysis.Unknown)...)
			}
			specs = append(specs, nearestTables(res.Nearest, p.bands, p.cfg.Analysis.Unknown)...)
			var err error
			res.Tables, err = buildTables(specs)
			return map[string]any{"tables": len(res.Tables)}, err
		})
	}

	switch {
	case mode == ModeCrossK || (mode == ModeAnalyze && p.cfg.CrossK.Enabled):
		t.setStatus(model.RunStatusEstimating)
		_ = t.track(StageCrossK, func() (map[string]any, error) {
			var err error
			res.CrossK, err = p.CrossK(ctx, in)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"reference": res.CrossK.NA,
				"counted":   res.CrossK.NB,
				"dropped":   res.CrossK.Dropped,
			}, nil
		})
	case mode == ModeAnalyze:
		t.skip(StageCrossK, "disabled")
	}

	if p.writer == nil {
		t.skip(StageExport, "no output writer")
		return nil
	}
	t.setStatus(model.RunStatusExporting)
	if err := t.track(StageExport, func() (map[string]any, error) {
		var err error
		res.Outputs, err = p.writer.Write(ctx, res.bundle())
		if err != nil {
			return nil, err
		}
		return map[string]any{"files": len(res.Outputs)}, nil
	}); err != nil {
		return &StageError{Stage: StageExport, Err: err}
	}
	return nil
}

// LoadInputs reads the configured datasets concurrently. Sets keep their
// source reference systems.
func (p *Pipeline) LoadInputs(ctx context.Context, needIIP, needBoundary bool) (*Inputs, error) {
	in := &Inputs{}
	fields := func(f config.FieldsConfig) loader.FieldMap {
		return loader.FieldMap{ID: f.ID, Name: f.Name, Category: f.Category, Status: f.Status, Province: f.Province}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.IRS, err = p.loader.Load(gctx, loader.Input{
			Path:   p.cfg.Inputs.IRS.Path,
			CRS:    p.cfg.Inputs.IRS.CRS,
			Source: model.SourceIRS,
			Fields: fields(p.cfg.Inputs.IRS.Fields),
		})
		return err
	})
	if needIIP {
		g.Go(func() error {
			var err error
			in.IIP, err = p.loader.Load(gctx, loader.Input{
				Path:   p.cfg.Inputs.IIP.Path,
				CRS:    p.cfg.Inputs.IIP.CRS,
				Source: model.SourceIIP,
				Fields: fields(p.cfg.Inputs.IIP.Fields),
			})
			return err
		})
	}
	if needBoundary {
		g.Go(func() error {
			var err error
			in.Boundary, err = p.loader.Load(gctx, loader.Input{
				Path:   p.cfg.Inputs.Boundary.Path,
				CRS:    p.cfg.Inputs.Boundary.CRS,
				Source: model.SourceBoundary,
				Fields: fields(p.cfg.Inputs.Boundary.Fields),
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}

// Normalize reprojects every loaded set into the target CRS, which must be
// planar and metric. Inputs are not modified.
func (p *Pipeline) Normalize(in *Inputs) (*Inputs, error) {
	target := p.cfg.Analysis.TargetCRS
	if _, err := p.registry.RequireMetric(target); err != nil {
		return nil, err
	}

	out := &Inputs{}
	for _, s := range []struct {
		src *model.GeometrySet
		dst **model.GeometrySet
	}{
		{in.IRS, &out.IRS},
		{in.IIP, &out.IIP},
		{in.Boundary, &out.Boundary},
	} {
		if s.src == nil {
			continue
		}
		set, err := p.registry.Reproject(s.src, target)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: normalize %s", s.src.Source)
		}
		*s.dst = set
	}
	return out, nil
}

// CrossK estimates K with IRS sites as the reference pattern and projects as
// the counted pattern, in the configured window.
func (p *Pipeline) CrossK(ctx context.Context, in *Inputs) (*crossk.Result, error) {
	mode, err := crossk.ParseWindowMode(p.cfg.CrossK.Window)
	if err != nil {
		return nil, err
	}
	w, err := crossk.ResolveWindow(mode, in.IRS, in.IIP, in.Boundary, p.cfg.CrossK.Extent)
	if err != nil {
		return nil, err
	}
	return crossk.Estimate(ctx, in.IRS.Points, in.IIP.Points, w, crossk.Options{
		Steps:        p.cfg.CrossK.Steps,
		RMaxFraction: p.cfg.CrossK.RMaxFraction,
		RMax:         p.cfg.CrossK.RMax,
	})
}

// saveRun writes the run summary and result tables to the store. Failures
// are logged; the analysis result is already exported.
func (p *Pipeline) saveRun(ctx context.Context, t *tracker, res *Result, runErr error) {
	if p.store == nil {
		return
	}

	if runErr == nil {
		saveErr := t.track(StageSave, func() (map[string]any, error) {
			if err := p.store.SaveTables(ctx, res.RunID, res.Tables); err != nil {
				return nil, err
			}
			if res.CrossK != nil {
				if err := p.store.SaveCurves(ctx, res.RunID, res.CrossK.Samples); err != nil {
					return nil, err
				}
			}
			if err := p.store.SaveNearest(ctx, res.RunID, res.Nearest); err != nil {
				return nil, err
			}
			return nil, nil
		})
		if saveErr != nil {
			t.log.Warn("pipeline: failed to save results", zap.Error(saveErr))
		}
		res.Stages = t.results()
	}

	summary := &model.RunResult{
		Disks:          len(res.Disks),
		JoinRecords:    len(res.Joins),
		NearestRecords: len(res.Nearest),
		Stages:         res.Stages,
		Outputs:        res.Outputs,
	}
	if in := res.Inputs; in != nil {
		summary.IRSCount = in.IRS.Len()
		summary.IIPCount = in.IIP.Len()
		summary.BoundaryCount = in.Boundary.Len()
	}
	if runErr != nil {
		summary.Error = runErr.Error()
	}
	if err := p.store.UpdateRunResult(ctx, res.RunID, summary); err != nil {
		t.log.Warn("pipeline: failed to save run result", zap.Error(err))
	}
}

func (r *Result) bundle() *report.Bundle {
	return &report.Bundle{
		Name:    "irs_iip_" + string(r.Mode),
		CRS:     r.CRS,
		Tables:  r.Tables,
		Curves:  r.CrossK,
		Joins:   r.Joins,
		Nearest: r.Nearest,
		Disks:   r.Disks,
	}
}

func inputCounts(in *Inputs) map[string]any {
	return map[string]any{
		"irs":      in.IRS.Len(),
		"iip":      in.IIP.Len(),
		"boundary": in.Boundary.Len(),
	}
}
