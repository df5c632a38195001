package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Dhaka", cfg.City.Name)
	assert.InDelta(t, 23.8103, cfg.City.CenterLat, 1e-9)
	assert.InDelta(t, 90.4125, cfg.City.CenterLon, 1e-9)
	assert.Equal(t, []float64{90.20, 23.60, 90.60, 24.00}, cfg.City.BBox)
	assert.Equal(t, "data/rasters", cfg.Raster.Dir)
	assert.Equal(t, "*LST_Day_1km*.tif", cfg.Raster.TemperaturePattern)
	assert.Equal(t, "*_250m_16_days_NDVI*.tif", cfg.Raster.VegetationPattern)
	assert.Equal(t, "*pd*1km*.tif", cfg.Raster.PopulationPattern)
	assert.Equal(t, 9, cfg.Hex.Resolution)
	assert.Equal(t, 0, cfg.Hex.MinRings)
	assert.Equal(t, 64, cfg.Hex.MaxRings)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Empty(t, cfg.Pipeline.ManifestPath)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/hex_features.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, DefaultNO2URL, cfg.Overlay.NO2URL)
	assert.Equal(t, 512, cfg.Overlay.CacheEntries)
	assert.Equal(t, time.Hour, cfg.Overlay.CacheTTL)
	assert.Equal(t, 10.0, cfg.Overlay.RateLimit)
	assert.Equal(t, 20, cfg.Overlay.RateBurst)
	assert.Empty(t, cfg.Anthropic.Key)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, int64(1024), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "us-east-1", cfg.Publish.Region)
	assert.Equal(t, "citypath", cfg.Publish.Prefix)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
city:
  name: Khulna
  bbox: [89.45, 22.75, 89.65, 22.90]
hex:
  resolution: 8
store:
  driver: postgres
  database_url: postgres://localhost/citypath
overlay:
  cache_ttl: 15m
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Khulna", cfg.City.Name)
	assert.Equal(t, 15*time.Minute, cfg.Overlay.CacheTTL)
	assert.Equal(t, []float64{89.45, 22.75, 89.65, 22.90}, cfg.City.BBox)
	assert.Equal(t, 8, cfg.Hex.Resolution)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/citypath", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 64, cfg.Hex.MaxRings)
	assert.Equal(t, "data/rasters", cfg.Raster.Dir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CITYPATH_STORE_DRIVER", "postgres")
	t.Setenv("CITYPATH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("CITYPATH_SERVER_PORT", "3000")
	t.Setenv("CITYPATH_HEX_RESOLUTION", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Hex.Resolution)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("hex: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
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

// validDefaults returns a Config that passes every mode.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.City.BBox = []float64{90.20, 23.60, 90.60, 24.00}
	cfg.Raster.Dir = "data/rasters"
	cfg.Raster.TemperaturePattern = "*LST*.tif"
	cfg.Raster.VegetationPattern = "*NDVI*.tif"
	cfg.Raster.PopulationPattern = "*pd*.tif"
	cfg.Hex.Resolution = 9
	cfg.Hex.MaxRings = 64
	cfg.Pipeline.Workers = 4
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "data/hex_features.db"
	cfg.Server.Port = 8080
	cfg.Publish.Bucket = "artifacts"
	return cfg
}

func TestValidateAllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"build", "serve", "query", "publish"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateBuild_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no raster dir", func(c *Config) { c.Raster.Dir = "" }, "raster.dir is required"},
		{"missing pattern", func(c *Config) { c.Raster.PopulationPattern = "" }, "raster patterns are required"},
		{"short bbox", func(c *Config) { c.City.BBox = []float64{1, 2, 3} }, "city.bbox must have 4 values"},
		{"resolution high", func(c *Config) { c.Hex.Resolution = 16 }, "hex.resolution"},
		{"negative rings", func(c *Config) { c.Hex.MinRings = -1 }, "hex ring bounds"},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"too many workers", func(c *Config) { c.Pipeline.Workers = 65 }, "pipeline.workers"},
		{"bad driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"no database", func(c *Config) { c.Store.DatabaseURL = "" }, "store.database_url is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("build")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateBuild_ReportsAllErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Raster.Dir = ""
	cfg.Pipeline.Workers = 0

	err := cfg.Validate("build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raster.dir")
	assert.Contains(t, err.Error(), "pipeline.workers")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateServe_OverlayCache(t *testing.T) {
	cfg := validDefaults()
	cfg.Overlay.NO2URL = DefaultNO2URL
	cfg.Overlay.CacheEntries = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlay.cache_entries")

	cfg.Overlay.NO2URL = ""
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_OverlayRateLimit(t *testing.T) {
	cfg := validDefaults()
	cfg.Overlay.NO2URL = DefaultNO2URL
	cfg.Overlay.CacheEntries = 16

	cfg.Overlay.RateLimit = -1
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlay.rate_limit")

	cfg.Overlay.RateLimit = 5
	cfg.Overlay.RateBurst = 0
	err = cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlay.rate_burst")

	cfg.Overlay.RateBurst = 5
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Overlay.RateLimit = 0
	cfg.Overlay.RateBurst = 0
	assert.NoError(t, cfg.Validate("serve"), "zero rate is unlimited")
}

func TestValidateQuery_IgnoresBuildSettings(t *testing.T) {
	cfg := validDefaults()
	cfg.Raster.Dir = ""
	cfg.Pipeline.Workers = 0

	assert.NoError(t, cfg.Validate("query"))
}

func TestValidatePublish(t *testing.T) {
	cfg := validDefaults()
	cfg.Publish.Bucket = ""
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("publish")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish.bucket is required")
	assert.Contains(t, err.Error(), "sqlite store driver")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateServe_Anthropic(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Model = ""
	cfg.Anthropic.MaxTokens = 0
	assert.NoError(t, cfg.Validate("serve"), "explainer settings ignored without a key")

	cfg.Anthropic.Key = "sk-test"
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.model")
	assert.Contains(t, err.Error(), "anthropic.max_tokens")

	cfg.Anthropic.Model = "claude-haiku-4-5-20251001"
	cfg.Anthropic.MaxTokens = 512
	assert.NoError(t, cfg.Validate("serve"))
}
