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
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Report  ReportConfig  `yaml:"report" mapstructure:"report"`
	RunLog  RunLogConfig  `yaml:"runlog" mapstructure:"runlog"`
	Archive ArchiveConfig `yaml:"archive" mapstructure:"archive"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// SourceConfig configures the published toll data source and its HTTP client.
type SourceConfig struct {
	MarkersURL        string  `yaml:"markers_url" mapstructure:"markers_url"`
	CategoriesURL     string  `yaml:"categories_url" mapstructure:"categories_url"`
	RateURL           string  `yaml:"rate_url" mapstructure:"rate_url"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// StoreConfig configures snapshot persistence. Driver is "file" or "postgres".
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Root        string `yaml:"root" mapstructure:"root"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ReportConfig configures change file output. An empty Dir writes next to the snapshots.
type ReportConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RunLogConfig configures the SQLite run history. An empty Path disables it.
type RunLogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ArchiveConfig configures mirroring of run files to object storage.
type ArchiveConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	Backend      string `yaml:"backend" mapstructure:"backend"`
	Dir          string `yaml:"dir" mapstructure:"dir"`
	Bucket       string `yaml:"bucket" mapstructure:"bucket"`
	Prefix       string `yaml:"prefix" mapstructure:"prefix"`
	Region       string `yaml:"region" mapstructure:"region"`
	Endpoint     string `yaml:"endpoint" mapstructure:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style" mapstructure:"use_path_style"`
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
	v.SetEnvPrefix("TOLLWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("source.markers_url", "https://onemotoring.lta.gov.sg/mapapp/kml/erp-kml/erp-kml-0.kml")
	v.SetDefault("source.categories_url", "https://datamall.lta.gov.sg/mapapp/pages/ddls/1_ddl.html")
	v.SetDefault("source.rate_url", "https://datamall.lta.gov.sg/mapapp/pages/tables/%s_table_%d.html")
	v.SetDefault("source.user_agent", "tollwatch/1.0")
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.requests_per_second", 5.0)
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.root", "data")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("report.format", "csv")
	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.prefix", "tollwatch")
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

// Validate checks the settings a command mode needs. Modes: run, diff,
// snapshots, status, migrate.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "run":
		errs = append(errs, c.validateSource()...)
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateReport()...)
		errs = append(errs, c.validateArchive()...)
	case "diff", "snapshots":
		errs = append(errs, c.validateStore()...)
	case "status":
		if c.RunLog.Path == "" {
			errs = append(errs, "runlog.path is required")
		}
	case "migrate":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateSource() []string {
	var errs []string
	if c.Source.MarkersURL == "" {
		errs = append(errs, "source.markers_url is required")
	}
	if c.Source.CategoriesURL == "" {
		errs = append(errs, "source.categories_url is required")
	}
	if strings.Count(c.Source.RateURL, "%") != 2 {
		errs = append(errs, "source.rate_url must contain a plaza and a category placeholder")
	}
	if c.Source.MaxRetries < 1 {
		errs = append(errs, "source.max_retries must be >= 1")
	}
	if c.Source.RequestsPerSecond < 0 {
		errs = append(errs, "source.requests_per_second must be >= 0")
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "file":
		if c.Store.Root == "" {
			return []string{"store.root is required"}
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
		if c.Store.MinConns > c.Store.MaxConns {
			return []string{"store.min_conns must be <= store.max_conns"}
		}
	default:
		return []string{`store.driver must be "file" or "postgres"`}
	}
	return nil
}

func (c *Config) validateReport() []string {
	switch strings.ToLower(c.Report.Format) {
	case "", "csv", "yaml", "xlsx", "none":
		return nil
	}
	return []string{"report.format must be csv, yaml, xlsx or none"}
}

func (c *Config) validateArchive() []string {
	if !c.Archive.Enabled {
		return nil
	}
	var errs []string
	if c.Store.Driver != "file" {
		errs = append(errs, "archive requires store.driver file")
	}
	switch c.Archive.Backend {
	case "local":
		if c.Archive.Dir == "" {
			errs = append(errs, "archive.dir is required")
		}
	case "s3":
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive.bucket is required")
		}
	default:
		errs = append(errs, `archive.backend must be "local" or "s3"`)
	}
	return errs
}

// ReportDir returns the change file directory.
func (c *Config) ReportDir() string {
	if c.Report.Dir != "" {
		return c.Report.Dir
	}
	return c.Store.Root
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
