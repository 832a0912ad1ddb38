package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "EPSG:3347", cfg.Analysis.TargetCRS)
	assert.Equal(t, []float64{1000, 5000, 10000, 20000, 50000}, cfg.Analysis.Radii)
	assert.Equal(t, 16, cfg.Analysis.QuadSegments)
	assert.Equal(t, 2000, cfg.Analysis.NearestBruteForceLimit)
	assert.Equal(t, "unknown", cfg.Analysis.Unknown)
	assert.True(t, cfg.CrossK.Enabled)
	assert.Equal(t, 128, cfg.CrossK.Steps)
	assert.InDelta(t, 0.2, cfg.CrossK.RMaxFraction, 0.001)
	assert.Equal(t, "bbox", cfg.CrossK.Window)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, []string{"csv", "xlsx", "geojson"}, cfg.Output.Formats)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
inputs:
  irs:
    path: data/irs_locations.shp
    fields:
      name: SCHOOL_NAM
  iip:
    path: data/projects.geojson
    crs: EPSG:4326
    fields:
      category: Project_Ty
      status: Status
store:
  driver: sqlite
  database_url: results.db
log:
  level: debug
  format: console
analysis:
  radii: [2000, 4000]
crossk:
  window: extent
  extent: [0, 0, 1000, 1000]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "data/irs_locations.shp", cfg.Inputs.IRS.Path)
	assert.Equal(t, "SCHOOL_NAM", cfg.Inputs.IRS.Fields.Name)
	assert.Equal(t, "EPSG:4326", cfg.Inputs.IIP.CRS)
	assert.Equal(t, "Project_Ty", cfg.Inputs.IIP.Fields.Category)
	assert.Equal(t, []float64{2000, 4000}, cfg.Analysis.Radii)
	assert.Equal(t, []float64{0, 0, 1000, 1000}, cfg.CrossK.Extent)
	// Defaults still apply for unset values
	assert.Equal(t, 16, cfg.Analysis.QuadSegments)
	assert.NoError(t, cfg.Validate("analyze"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("IRSIIP_STORE_DRIVER", "postgres")
	t.Setenv("IRSIIP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("IRSIIP_ANALYSIS_TARGET_CRS", "EPSG:3978")
	t.Setenv("IRSIIP_INPUTS_IRS_PATH", "/data/irs.shp")
	t.Setenv("IRSIIP_CROSSK_STEPS", "64")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "EPSG:3978", cfg.Analysis.TargetCRS)
	assert.Equal(t, "/data/irs.shp", cfg.Inputs.IRS.Path)
	assert.Equal(t, 64, cfg.CrossK.Steps)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed\n"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Inputs.IRS.Path = "irs.shp"
	cfg.Inputs.IIP.Path = "iip.shp"
	cfg.Analysis.TargetCRS = "EPSG:3347"
	cfg.Analysis.Radii = []float64{1000, 5000}
	cfg.Analysis.QuadSegments = 16
	cfg.Analysis.NearestBruteForceLimit = 2000
	cfg.Analysis.Unknown = "unknown"
	cfg.CrossK.Steps = 128
	cfg.CrossK.RMaxFraction = 0.2
	cfg.CrossK.Window = "bbox"
	cfg.Output.Dir = "out"
	cfg.Output.Formats = []string{"csv"}
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"analyze", "buffers", "nearest", "crossk"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_MissingInputs(t *testing.T) {
	cfg := validDefaults()
	cfg.Inputs.IRS.Path = ""
	cfg.Inputs.IIP.Path = " "

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inputs.irs.path is required")
	assert.Contains(t, err.Error(), "inputs.iip.path is required")

	cfg.Inputs.IRS.Path = "irs.shp"
	assert.NoError(t, cfg.Validate("buffers"))
}

func TestValidate_Radii(t *testing.T) {
	cfg := validDefaults()
	cfg.Analysis.Radii = nil
	err := cfg.Validate("buffers")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis.radii is required")

	cfg.Analysis.Radii = []float64{1000, -5}
	err = cfg.Validate("buffers")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis.radii[1] must be > 0")

	cfg.Analysis.Radii = []float64{10, 10}
	err = cfg.Validate("buffers")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis.radii must not contain duplicates")
}

func TestValidate_CrossK(t *testing.T) {
	cfg := validDefaults()

	cfg.CrossK.Window = "convex"
	err := cfg.Validate("crossk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crossk.window must be one of: bbox extent boundary")

	cfg.CrossK.Window = "extent"
	err = cfg.Validate("crossk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crossk.extent is required")

	cfg.CrossK.Extent = []float64{0, 0, 10}
	err = cfg.Validate("crossk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crossk.extent must have exactly 4 entries")

	cfg.CrossK.Extent = []float64{0, 0, 10, 10}
	assert.NoError(t, cfg.Validate("crossk"))

	cfg.CrossK.Window = "boundary"
	err = cfg.Validate("crossk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inputs.boundary.path is required")

	cfg.CrossK.Steps = 1
	cfg.CrossK.RMaxFraction = 0
	err = cfg.Validate("crossk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crossk.steps must be >= 2")
	assert.Contains(t, err.Error(), "crossk.rmax_fraction must be > 0")
}

func TestValidate_Store(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/irsiip"
	assert.NoError(t, cfg.Validate("analyze"))

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be one of")
}

func TestValidate_Output(t *testing.T) {
	cfg := validDefaults()
	cfg.Output.Formats = []string{"csv", "pdf"}
	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output.formats[1] must be one of")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
