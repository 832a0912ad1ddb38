// Package store persists analysis runs and their result tables.
package store

import (
	"context"

	"github.com/sells-group/irs-iip/internal/aggregate"
	"github.com/sells-group/irs-iip/internal/crossk"
	"github.com/sells-group/irs-iip/internal/join"
	"github.com/sells-group/irs-iip/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for analysis runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, inputs model.RunInputs) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error)
	CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error

	// Results
	SaveTables(ctx context.Context, runID string, tables []aggregate.Table) error
	SaveCurves(ctx context.Context, runID string, samples []crossk.Sample) error
	SaveNearest(ctx context.Context, runID string, records []join.NearestRecord) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// finalStatus is the run status recorded alongside a result.
func finalStatus(result *model.RunResult) model.RunStatus {
	if result != nil && result.Error != "" {
		return model.RunStatusFailed
	}
	return model.RunStatusComplete
}
