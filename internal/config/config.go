package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	City      CityConfig      `yaml:"city" mapstructure:"city"`
	Raster    RasterConfig    `yaml:"raster" mapstructure:"raster"`
	Hex       HexConfig       `yaml:"hex" mapstructure:"hex"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Overlay   OverlayConfig   `yaml:"overlay" mapstructure:"overlay"`
	Publish   PublishConfig   `yaml:"publish" mapstructure:"publish"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// CityConfig describes the study area.
type CityConfig struct {
	Name      string    `yaml:"name" mapstructure:"name"`
	CenterLat float64   `yaml:"center_lat" mapstructure:"center_lat"`
	CenterLon float64   `yaml:"center_lon" mapstructure:"center_lon"`
	BBox      []float64 `yaml:"bbox" mapstructure:"bbox"` // min lon, min lat, max lon, max lat
}

// RasterConfig locates the input rasters. Patterns are globs matched
// against file names anywhere under Dir.
type RasterConfig struct {
	Dir                string `yaml:"dir" mapstructure:"dir"`
	TemperaturePattern string `yaml:"temperature_pattern" mapstructure:"temperature_pattern"`
	VegetationPattern  string `yaml:"vegetation_pattern" mapstructure:"vegetation_pattern"`
	PopulationPattern  string `yaml:"population_pattern" mapstructure:"population_pattern"`
}

// HexConfig configures the hex coverage.
type HexConfig struct {
	Resolution int `yaml:"resolution" mapstructure:"resolution"`
	MinRings   int `yaml:"min_rings" mapstructure:"min_rings"`
	MaxRings   int `yaml:"max_rings" mapstructure:"max_rings"`
}

// PipelineConfig configures the build.
type PipelineConfig struct {
	Workers      int    `yaml:"workers" mapstructure:"workers"`
	ManifestPath string `yaml:"manifest_path" mapstructure:"manifest_path"`
}

// StoreConfig configures the feature table backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// OverlayConfig configures the proxied NO2 map tile overlay. An empty
// NO2URL disables it. The URL template takes {time}, {z}, {x} and {y}.
// RateLimit caps upstream requests per second on cache misses; zero means
// unlimited.
type OverlayConfig struct {
	NO2URL       string        `yaml:"no2_url" mapstructure:"no2_url"`
	CacheEntries int           `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTL     time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	RateLimit    float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// PublishConfig configures artifact upload to S3-compatible storage.
type PublishConfig struct {
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	PathStyle bool   `yaml:"path_style" mapstructure:"path_style"`
}

// AnthropicConfig configures the optional chat explainer. An empty Key
// disables it.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultNO2URL is the NASA GIBS daily tropospheric NO2 tile layer.
const DefaultNO2URL = "https://gibs.earthdata.nasa.gov/wmts/epsg3857/best/OMI_NO2_Column_Amount_Tropospheric/default/{time}/GoogleMapsCompatible_Level6/{z}/{y}/{x}.png"

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CITYPATH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("city.name", "Dhaka")
	v.SetDefault("city.center_lat", 23.8103)
	v.SetDefault("city.center_lon", 90.4125)
	v.SetDefault("city.bbox", []float64{90.20, 23.60, 90.60, 24.00})
	v.SetDefault("raster.dir", "data/rasters")
	v.SetDefault("raster.temperature_pattern", "*LST_Day_1km*.tif")
	v.SetDefault("raster.vegetation_pattern", "*_250m_16_days_NDVI*.tif")
	v.SetDefault("raster.population_pattern", "*pd*1km*.tif")
	v.SetDefault("hex.resolution", 9)
	v.SetDefault("hex.min_rings", 0)
	v.SetDefault("hex.max_rings", 64)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/hex_features.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("overlay.no2_url", DefaultNO2URL)
	v.SetDefault("overlay.cache_entries", 512)
	v.SetDefault("overlay.cache_ttl", time.Hour)
	v.SetDefault("overlay.rate_limit", 10.0)
	v.SetDefault("overlay.rate_burst", 20)
	v.SetDefault("publish.region", "us-east-1")
	v.SetDefault("publish.prefix", "citypath")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. All violations
// are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	storeChecks := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	switch mode {
	case "build":
		storeChecks()
		if c.Raster.Dir == "" {
			errs = append(errs, "raster.dir is required")
		}
		if c.Raster.TemperaturePattern == "" || c.Raster.VegetationPattern == "" || c.Raster.PopulationPattern == "" {
			errs = append(errs, "raster patterns are required for every layer")
		}
		if len(c.City.BBox) != 4 {
			errs = append(errs, "city.bbox must have 4 values")
		}
		if c.Hex.Resolution < 0 || c.Hex.Resolution > 15 {
			errs = append(errs, "hex.resolution must be between 0 and 15")
		}
		if c.Hex.MinRings < 0 || c.Hex.MaxRings < 0 {
			errs = append(errs, "hex ring bounds must be >= 0")
		}
		if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 64 {
			errs = append(errs, "pipeline.workers must be between 1 and 64")
		}
	case "serve":
		storeChecks()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Overlay.NO2URL != "" {
			if c.Overlay.CacheEntries < 1 {
				errs = append(errs, "overlay.cache_entries must be >= 1")
			}
			if c.Overlay.RateLimit < 0 {
				errs = append(errs, "overlay.rate_limit must be >= 0")
			}
			if c.Overlay.RateLimit > 0 && c.Overlay.RateBurst < 1 {
				errs = append(errs, "overlay.rate_burst must be >= 1 when rate_limit is set")
			}
		}
		if c.Anthropic.Key != "" {
			if c.Anthropic.Model == "" {
				errs = append(errs, "anthropic.model is required when anthropic.key is set")
			}
			if c.Anthropic.MaxTokens < 1 {
				errs = append(errs, "anthropic.max_tokens must be >= 1")
			}
		}
	case "query":
		storeChecks()
	case "publish":
		if c.Publish.Bucket == "" {
			errs = append(errs, "publish.bucket is required")
		}
		if c.Store.Driver != "sqlite" {
			errs = append(errs, "publish requires the sqlite store driver")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
