package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/irs-iip/internal/config"
	"github.com/sells-group/irs-iip/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Inputs:    model.RunInputs{TargetCRS: "EPSG:3347"},
			Status:    model.RunStatusComplete,
			Result:    &model.RunResult{IRSCount: 139, IIPCount: 1204},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Inputs:    model.RunInputs{TargetCRS: "EPSG:3978"},
			Status:    model.RunStatusJoining,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "EPSG:3347")
	assert.Contains(t, output, "1204")
	assert.Contains(t, output, "joining")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "2m0s")
}

func TestComputeRunStats(t *testing.T) {
	now := time.Now()
	failedAt := func(stage string) *model.RunResult {
		return &model.RunResult{Stages: []model.StageResult{
			{Name: "load", Status: model.StageStatusComplete},
			{Name: stage, Status: model.StageStatusFailed},
		}}
	}
	runs := []model.Run{
		{Status: model.RunStatusComplete, CreatedAt: now, UpdatedAt: now.Add(10 * time.Second)},
		{Status: model.RunStatusComplete, CreatedAt: now, UpdatedAt: now.Add(20 * time.Second)},
		{Status: model.RunStatusFailed, Result: failedAt("normalize")},
		{Status: model.RunStatusFailed, Result: failedAt("normalize")},
		{Status: model.RunStatusFailed},
		{Status: model.RunStatusLoading},
	}

	s := computeRunStats(runs)
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 3, s.Failed)
	assert.Equal(t, 1, s.Other)
	assert.Equal(t, map[string]int{"normalize": 2, "unknown": 1}, s.FailedAt)
	assert.InDelta(t, 15.0, s.AvgDurSecs, 0.001)

	var buf bytes.Buffer
	formatRunStats(&buf, s)
	assert.Contains(t, buf.String(), "At normalize:")
	assert.Contains(t, buf.String(), "Avg duration:")
}

func TestComputeRunStats_Empty(t *testing.T) {
	s := computeRunStats(nil)
	assert.Equal(t, 0, s.Total)
	assert.Zero(t, s.AvgDurSecs)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestRequireStore_NoDriver(t *testing.T) {
	cfg = &config.Config{}
	_, err := requireStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no results store configured")
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}
	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestRunsList_SQLite(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "runs.db"),
	}}
	ctx := context.Background()

	st, err := requireStore(ctx)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, model.RunInputs{TargetCRS: "EPSG:3347"})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	runsListCmd.SetContext(ctx)
	defer runsListCmd.SetContext(context.TODO())
	require.NoError(t, runsListCmd.RunE(runsListCmd, nil))
}
