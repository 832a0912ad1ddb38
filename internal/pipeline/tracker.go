package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/irs-iip/internal/model"
	"github.com/sells-group/irs-iip/internal/store"
)

// tracker records stage results for one run, mirroring them to the store
// when one is configured. Store failures are logged and never fail a stage.
type tracker struct {
	ctx   context.Context
	store store.Store
	runID string
	log   *zap.Logger

	mu     sync.Mutex
	stages []model.StageResult
}

func (t *tracker) setStatus(status model.RunStatus) {
	if t.store == nil {
		return
	}
	if err := t.store.UpdateRunStatus(t.ctx, t.runID, status); err != nil {
		t.log.Warn("pipeline: failed to update status", zap.Error(err))
	}
}

// track runs fn as the named stage. The metadata fn returns is stored on the
// stage result; its error is returned unchanged.
func (t *tracker) track(name string, fn func() (map[string]any, error)) error {
	var stage *model.RunStage
	if t.store != nil {
		var err error
		stage, err = t.store.CreateStage(t.ctx, t.runID, name)
		if err != nil {
			t.log.Warn("pipeline: failed to create stage", zap.String("stage", name), zap.Error(err))
		}
	}

	start := time.Now()
	meta, fnErr := fn()
	duration := time.Since(start).Milliseconds()

	result := model.StageResult{Name: name, Duration: duration, Metadata: meta}
	if fnErr != nil {
		result.Status = model.StageStatusFailed
		result.Error = fnErr.Error()
		t.log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Int64("duration_ms", duration),
			zap.Error(fnErr),
		)
	} else {
		result.Status = model.StageStatusComplete
		t.log.Info("pipeline: stage complete",
			zap.String("stage", name),
			zap.Int64("duration_ms", duration),
		)
	}

	t.finish(stage, result)
	return fnErr
}

// skip records a stage that did not run.
func (t *tracker) skip(name, reason string) {
	var stage *model.RunStage
	if t.store != nil {
		stage, _ = t.store.CreateStage(t.ctx, t.runID, name)
	}
	t.log.Info("pipeline: stage skipped", zap.String("stage", name), zap.String("reason", reason))
	t.finish(stage, model.StageResult{
		Name:     name,
		Status:   model.StageStatusSkipped,
		Metadata: map[string]any{"reason": reason},
	})
}

func (t *tracker) finish(stage *model.RunStage, result model.StageResult) {
	if stage != nil {
		if err := t.store.CompleteStage(t.ctx, stage.ID, &result); err != nil {
			t.log.Warn("pipeline: failed to complete stage", zap.String("stage", result.Name), zap.Error(err))
		}
	}
	t.mu.Lock()
	t.stages = append(t.stages, result)
	t.mu.Unlock()
}

func (t *tracker) results() []model.StageResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.StageResult, len(t.stages))
	copy(out, t.stages)
	return out
}
