package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/crossborder-kde/internal/aggregate"
	"github.com/sells-group/crossborder-kde/internal/geofile"
	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/levels"
	"github.com/sells-group/crossborder-kde/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	KDE       KDEConfig       `yaml:"kde" mapstructure:"kde"`
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Aggregate AggregateConfig `yaml:"aggregate" mapstructure:"aggregate"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// KDEConfig holds the estimation parameters. Together they form the
// signature every output file name is derived from.
type KDEConfig struct {
	Bandwidth       float64 `yaml:"bandwidth" mapstructure:"bandwidth"`
	Kernel          string  `yaml:"kernel" mapstructure:"kernel"`
	Metric          string  `yaml:"metric" mapstructure:"metric"`
	LimitMovement   bool    `yaml:"limit_movement" mapstructure:"limit_movement"`
	MovementLimitKM float64 `yaml:"movement_limit_km" mapstructure:"movement_limit_km"`
	EPSG            int     `yaml:"epsg" mapstructure:"epsg"`
	Levels          int     `yaml:"levels" mapstructure:"levels"`
}

// DataConfig locates the input datasets.
type DataConfig struct {
	MobilityFile       string `yaml:"mobility_file" mapstructure:"mobility_file"`
	BoundaryFile       string `yaml:"boundary_file" mapstructure:"boundary_file"`
	BoundaryLayer      string `yaml:"boundary_layer" mapstructure:"boundary_layer"`
	BoundaryKeyColumn  string `yaml:"boundary_key_column" mapstructure:"boundary_key_column"`
	BoundaryNameColumn string `yaml:"boundary_name_column" mapstructure:"boundary_name_column"`
	BoundaryEPSG       int    `yaml:"boundary_epsg" mapstructure:"boundary_epsg"` // 0 = from file
}

// OutputConfig configures persisted layers.
type OutputConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Format    string `yaml:"format" mapstructure:"format"`
	KeepBands bool   `yaml:"keep_bands" mapstructure:"keep_bands"`
}

// BatchConfig configures the roster run.
type BatchConfig struct {
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	RosterFile  string `yaml:"roster_file" mapstructure:"roster_file"`
}

// AggregateConfig configures the continental aggregation.
type AggregateConfig struct {
	Mode    string `yaml:"mode" mapstructure:"mode"`
	SumArea bool   `yaml:"sum_area" mapstructure:"sum_area"`
}

// StoreConfig configures the run ledger.
type StoreConfig struct {
	LedgerPath string `yaml:"ledger_path" mapstructure:"ledger_path"`
}

// ServerConfig configures the layer server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("CBKDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("kde.bandwidth", 25000)
	v.SetDefault("kde.kernel", string(model.KernelGaussian))
	v.SetDefault("kde.metric", string(model.MetricEuclidean))
	v.SetDefault("kde.limit_movement", false)
	v.SetDefault("kde.movement_limit_km", 200)
	v.SetDefault("kde.epsg", 3035)
	v.SetDefault("kde.levels", levels.Fine)
	v.SetDefault("data.mobility_file", "")
	v.SetDefault("data.boundary_file", "")
	v.SetDefault("data.boundary_layer", "")
	v.SetDefault("data.boundary_key_column", "CNTR_OD")
	v.SetDefault("data.boundary_name_column", "NAME")
	v.SetDefault("data.boundary_epsg", 0)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.format", geofile.FormatGeoPackage)
	v.SetDefault("output.keep_bands", false)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.roster_file", "")
	v.SetDefault("aggregate.mode", string(aggregate.ModeFine))
	v.SetDefault("aggregate.sum_area", false)
	v.SetDefault("store.ledger_path", "cbkde.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
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

// Params returns the estimation parameters as the pipeline uses them.
func (c *Config) Params() model.Params {
	return model.Params{
		Bandwidth:       c.KDE.Bandwidth,
		Kernel:          model.Kernel(strings.ToLower(c.KDE.Kernel)),
		Metric:          model.Metric(strings.ToLower(c.KDE.Metric)),
		LimitMovement:   c.KDE.LimitMovement,
		MovementLimitKM: c.KDE.MovementLimitKM,
		EPSG:            c.KDE.EPSG,
	}
}

// Catalog returns the level catalog for the configured legend size.
func (c *Config) Catalog() (levels.Catalog, error) {
	return levels.New(c.KDE.Levels)
}

// Command modes accepted by Validate.
const (
	ModePair      = "pair"
	ModeBatch     = "batch"
	ModeAggregate = "aggregate"
	ModeServe     = "serve"
)

// Validate checks every enumerated and numeric option, then the inputs the
// command mode needs. Every failure wraps model.ErrConfiguration.
func (c *Config) Validate(mode string) error {
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if !geometry.Supported(c.KDE.EPSG) {
		return eris.Wrapf(model.ErrConfiguration, "config: unsupported epsg %d", c.KDE.EPSG)
	}
	if c.Data.BoundaryEPSG != 0 && !geometry.Supported(c.Data.BoundaryEPSG) {
		return eris.Wrapf(model.ErrConfiguration, "config: unsupported boundary epsg %d", c.Data.BoundaryEPSG)
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	if _, err := aggregate.ParseMode(c.Aggregate.Mode); err != nil {
		return err
	}
	if _, err := geofile.ParseFormat(c.Output.Format); err != nil {
		return err
	}

	var missing []string
	switch mode {
	case ModePair, ModeBatch:
		if c.Data.MobilityFile == "" {
			missing = append(missing, "data.mobility_file is required")
		}
		if c.Data.BoundaryFile == "" {
			missing = append(missing, "data.boundary_file is required")
		}
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
			missing = append(missing, "batch.concurrency must be between 1 and 64")
		}
	case ModeAggregate:
		if c.Output.Dir == "" {
			missing = append(missing, "output.dir is required")
		}
	case ModeServe:
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	default:
		return eris.Wrapf(model.ErrConfiguration, "config: unknown mode %q", mode)
	}
	if len(missing) > 0 {
		return eris.Wrapf(model.ErrConfiguration, "config: %s", strings.Join(missing, "; "))
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
