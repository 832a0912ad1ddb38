package model

import "time"

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusLoading     RunStatus = "loading"
	RunStatusJoining     RunStatus = "joining"
	RunStatusAggregating RunStatus = "aggregating"
	RunStatusEstimating  RunStatus = "estimating"
	RunStatusExporting   RunStatus = "exporting"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// RunInputs records what a run was asked to analyse.
type RunInputs struct {
	IRSPath      string    `json:"irs_path"`
	IIPPath      string    `json:"iip_path"`
	BoundaryPath string    `json:"boundary_path,omitempty"`
	TargetCRS    string    `json:"target_crs"`
	Radii        []float64 `json:"radii"`
}

// Run represents a single analysis run.
type Run struct {
	ID        string     `json:"id"`
	Inputs    RunInputs  `json:"inputs"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	IRSCount       int           `json:"irs_count"`
	IIPCount       int           `json:"iip_count"`
	BoundaryCount  int           `json:"boundary_count"`
	Disks          int           `json:"disks"`
	JoinRecords    int           `json:"join_records"`
	NearestRecords int           `json:"nearest_records"`
	Stages         []StageResult `json:"stages"`
	Outputs        []string      `json:"outputs,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// RunStage represents a stage within a run.
type RunStage struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    StageStatus  `json:"status"`
	Result    *StageResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// StageStatus represents the current state of a pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageResult holds the outcome of a pipeline stage.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
