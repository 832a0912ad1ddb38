package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Inputs   InputsConfig   `yaml:"inputs" mapstructure:"inputs"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	CrossK   CrossKConfig   `yaml:"crossk" mapstructure:"crossk"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// InputsConfig names the three datasets of an analysis run.
type InputsConfig struct {
	IRS      InputConfig `yaml:"irs" mapstructure:"irs"`
	IIP      InputConfig `yaml:"iip" mapstructure:"iip"`
	Boundary InputConfig `yaml:"boundary" mapstructure:"boundary"`
}

// InputConfig locates one dataset. CRS overrides any .prj sidecar.
type InputConfig struct {
	Path   string       `yaml:"path" mapstructure:"path"`
	CRS    string       `yaml:"crs" mapstructure:"crs"`
	Fields FieldsConfig `yaml:"fields" mapstructure:"fields"`
}

// FieldsConfig maps attribute columns onto point fields.
type FieldsConfig struct {
	ID       string `yaml:"id" mapstructure:"id"`
	Name     string `yaml:"name" mapstructure:"name"`
	Category string `yaml:"category" mapstructure:"category"`
	Status   string `yaml:"status" mapstructure:"status"`
	Province string `yaml:"province" mapstructure:"province"`
}

// AnalysisConfig configures buffering, joins and aggregation.
type AnalysisConfig struct {
	TargetCRS              string    `yaml:"target_crs" mapstructure:"target_crs" validate:"required"`
	Radii                  []float64 `yaml:"radii" mapstructure:"radii" validate:"required,min=1,unique,dive,gt=0"`
	QuadSegments           int       `yaml:"quad_segments" mapstructure:"quad_segments" validate:"gte=1,lte=256"`
	NearestBruteForceLimit int       `yaml:"nearest_brute_force_limit" mapstructure:"nearest_brute_force_limit" validate:"gte=0"`
	BandsFile              string    `yaml:"bands_file" mapstructure:"bands_file"`
	Unknown                string    `yaml:"unknown" mapstructure:"unknown" validate:"required"`
}

// CrossKConfig configures the cross-K estimate.
type CrossKConfig struct {
	Enabled      bool      `yaml:"enabled" mapstructure:"enabled"`
	Steps        int       `yaml:"steps" mapstructure:"steps" validate:"gte=2,lte=4096"`
	RMaxFraction float64   `yaml:"rmax_fraction" mapstructure:"rmax_fraction" validate:"gt=0,lte=1"`
	RMax         float64   `yaml:"rmax" mapstructure:"rmax" validate:"gte=0"`
	Window       string    `yaml:"window" mapstructure:"window" validate:"oneof=bbox extent boundary"`
	Extent       []float64 `yaml:"extent" mapstructure:"extent" validate:"omitempty,len=4"`
}

// OutputConfig configures exported tables.
type OutputConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir" validate:"required"`
	Formats []string `yaml:"formats" mapstructure:"formats" validate:"dive,oneof=csv xlsx geojson json"`
}

// StoreConfig configures the results database. An empty driver disables it.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("IRSIIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("inputs.irs.path", "")
	v.SetDefault("inputs.irs.crs", "")
	v.SetDefault("inputs.iip.path", "")
	v.SetDefault("inputs.iip.crs", "")
	v.SetDefault("inputs.boundary.path", "")
	v.SetDefault("inputs.boundary.crs", "")
	v.SetDefault("analysis.target_crs", "EPSG:3347")
	v.SetDefault("analysis.radii", []float64{1000, 5000, 10000, 20000, 50000})
	v.SetDefault("analysis.quad_segments", 16)
	v.SetDefault("analysis.nearest_brute_force_limit", 2000)
	v.SetDefault("analysis.unknown", "unknown")
	v.SetDefault("crossk.enabled", true)
	v.SetDefault("crossk.steps", 128)
	v.SetDefault("crossk.rmax_fraction", 0.2)
	v.SetDefault("crossk.rmax", 0)
	v.SetDefault("crossk.window", "bbox")
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.formats", []string{"csv", "xlsx", "geojson"})
	v.SetDefault("store.driver", "")
	v.SetDefault("store.database_url", "")

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
