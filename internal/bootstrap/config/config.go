package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/domain/checksum"
	"reliaudit/internal/errs"
)

const (
	StoreSQLite = "sqlite"
	StoreTOML   = "toml"
)

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Reliability ReliabilityConfig `mapstructure:"reliability"`
	Logs        LogsConfig        `mapstructure:"logs"`
	Checksums   ChecksumsConfig   `mapstructure:"checksums"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type ReliabilityConfig struct {
	ImmutableTriggers bool   `mapstructure:"immutable_triggers"`
	DefaultService    string `mapstructure:"default_service"`
}

type LogsConfig struct {
	Dir      string `mapstructure:"dir"`
	BulkFile string `mapstructure:"bulk_file"`
}

type ChecksumsConfig struct {
	Algorithms []string `mapstructure:"algorithms"`
	Store      string   `mapstructure:"store"`
	Dir        string   `mapstructure:"dir"`
	BackupDir  string   `mapstructure:"backup_dir"`
}

type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ParsedAlgorithms returns the configured digest algorithms, validated.
func (c ChecksumsConfig) ParsedAlgorithms() ([]checksum.Algorithm, error) {
	return checksum.ParseAlgorithms(c.Algorithms)
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			// Keep default and env-backed config when no file is provided.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("checksum_store", cfg.Checksums.Store),
	)

	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errs.Wrap(err, "log.level")
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unsupported log.format %q", c.Log.Format)
	}

	c.Checksums.Store = strings.ToLower(strings.TrimSpace(c.Checksums.Store))
	switch c.Checksums.Store {
	case StoreSQLite, StoreTOML:
	default:
		return fmt.Errorf("unsupported checksums.store %q", c.Checksums.Store)
	}

	if _, err := c.Checksums.ParsedAlgorithms(); err != nil {
		return errs.Wrap(err, "checksums.algorithms")
	}
	if c.Monitor.Interval <= 0 {
		return errors.New("monitor.interval must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "reliaudit")
	v.SetDefault("app.env", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".reliaudit/state/reliaudit.sqlite")
	v.SetDefault("reliability.immutable_triggers", true)
	v.SetDefault("reliability.default_service", "reliability-service")
	v.SetDefault("logs.dir", "logs")
	v.SetDefault("logs.bulk_file", "logs/bulk_actions.log")
	v.SetDefault("checksums.algorithms", []string{"sha256", "md5", "sha1"})
	v.SetDefault("checksums.store", StoreSQLite)
	v.SetDefault("checksums.dir", ".reliaudit/checksums")
	v.SetDefault("checksums.backup_dir", ".reliaudit/log_backups")
	v.SetDefault("monitor.interval", "1h")
}
