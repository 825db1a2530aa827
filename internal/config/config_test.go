package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/crossborder-kde/internal/model"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 25000, cfg.KDE.Bandwidth, 0.001)
	assert.Equal(t, "gaussian", cfg.KDE.Kernel)
	assert.Equal(t, "euclidean", cfg.KDE.Metric)
	assert.False(t, cfg.KDE.LimitMovement)
	assert.InDelta(t, 200, cfg.KDE.MovementLimitKM, 0.001)
	assert.Equal(t, 3035, cfg.KDE.EPSG)
	assert.Equal(t, 20, cfg.KDE.Levels)
	assert.Equal(t, "CNTR_OD", cfg.Data.BoundaryKeyColumn)
	assert.Equal(t, "NAME", cfg.Data.BoundaryNameColumn)
	assert.Equal(t, "output", cfg.Output.Dir)
	assert.Equal(t, "gpkg", cfg.Output.Format)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, "fine", cfg.Aggregate.Mode)
	assert.Equal(t, "cbkde.db", cfg.Store.LedgerPath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yaml := `
kde:
  bandwidth: 10000
  kernel: epanechnikov
  limit_movement: true
  movement_limit_km: 150
  levels: 10
data:
  mobility_file: movements.csv
  boundary_file: borders.gpkg
output:
  format: shp
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 10000, cfg.KDE.Bandwidth, 0.001)
	assert.Equal(t, "epanechnikov", cfg.KDE.Kernel)
	assert.Equal(t, 10, cfg.KDE.Levels)
	assert.Equal(t, "movements.csv", cfg.Data.MobilityFile)
	assert.Equal(t, "shp", cfg.Output.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, "euclidean", cfg.KDE.Metric)
	assert.Equal(t, 4, cfg.Batch.Concurrency)

	assert.Equal(t, "10000BW_150movelimit_epanechnikov_euclidean", cfg.Params().Signature())
	require.NoError(t, cfg.Validate(ModeBatch))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yaml := `
kde:
  kernel: epanechnikov
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CBKDE_KDE_KERNEL", "gaussian")
	t.Setenv("CBKDE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "gaussian", cfg.KDE.Kernel)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("CBKDE_SERVER_PORT", "3000")
	t.Setenv("CBKDE_KDE_BANDWIDTH", "5000")
	t.Setenv("CBKDE_BATCH_CONCURRENCY", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 5000, cfg.KDE.Bandwidth, 0.001)
	assert.Equal(t, 1, cfg.Batch.Concurrency)
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
	cfg.KDE = KDEConfig{Bandwidth: 25000, Kernel: "gaussian", Metric: "euclidean", MovementLimitKM: 200, EPSG: 3035, Levels: 20}
	cfg.Data.MobilityFile = "movements.csv"
	cfg.Data.BoundaryFile = "borders.gpkg"
	cfg.Output = OutputConfig{Dir: "output", Format: "gpkg"}
	cfg.Batch.Concurrency = 4
	cfg.Aggregate.Mode = "fine"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "kernel", mutate: func(c *Config) { c.KDE.Kernel = "tophat" }},
		{name: "metric", mutate: func(c *Config) { c.KDE.Metric = "manhattan" }},
		{name: "bandwidth", mutate: func(c *Config) { c.KDE.Bandwidth = 0 }},
		{name: "movement limit", mutate: func(c *Config) { c.KDE.LimitMovement = true; c.KDE.MovementLimitKM = -1 }},
		{name: "epsg", mutate: func(c *Config) { c.KDE.EPSG = 2154 }},
		{name: "boundary epsg", mutate: func(c *Config) { c.Data.BoundaryEPSG = 27700 }},
		{name: "levels", mutate: func(c *Config) { c.KDE.Levels = 15 }},
		{name: "mode", mutate: func(c *Config) { c.Aggregate.Mode = "medium" }},
		{name: "format", mutate: func(c *Config) { c.Output.Format = "kml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate(ModeAggregate)
			require.Error(t, err)
			assert.True(t, model.IsFatal(err))
		})
	}
}

func TestValidateBatch_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate(ModeBatch))
	assert.NoError(t, validDefaults().Validate(ModePair))
}

func TestValidateBatch_MissingInputs(t *testing.T) {
	cfg := validDefaults()
	cfg.Data = DataConfig{}

	err := cfg.Validate(ModeBatch)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "data.mobility_file is required")
	assert.Contains(t, err.Error(), "data.boundary_file is required")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	err := cfg.Validate(ModeBatch)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 64")

	cfg.Batch.Concurrency = 65
	assert.Error(t, cfg.Validate(ModeBatch))

	cfg.Batch.Concurrency = 1
	assert.NoError(t, cfg.Validate(ModeBatch))
}

func TestValidateAggregate_NoDir(t *testing.T) {
	cfg := validDefaults()
	cfg.Output.Dir = ""

	err := cfg.Validate(ModeAggregate)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "output.dir is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate(ModeServe)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
