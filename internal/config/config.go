// Package config loads sysarch configuration from defaults, an optional TOML
// file and SYSARCH_* environment variables, in increasing precedence.
package config

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/sysarch/internal/store"
)

// EnvPrefix prefixes every environment override: SYSARCH_DATABASE_PATH
// overrides database.path.
const EnvPrefix = "SYSARCH"

// DefaultConfigName is searched for in the working directory when no
// config file is given.
const DefaultConfigName = "sysarch"

// Config is the complete sysarch configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Query    QueryConfig    `mapstructure:"query"`
}

// DatabaseConfig selects and locates the record store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// QueryConfig controls query output.
type QueryConfig struct {
	Separator string `mapstructure:"separator"`
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "sysarch.db")
	v.SetDefault("database.dsn", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("query.separator", "/")
}

// New returns a viper instance with defaults, environment binding and the
// config file at path. An empty path searches the working directory for
// sysarch.toml and tolerates its absence; an explicit path must exist.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		return v, nil
	}

	v.SetConfigName(DefaultConfigName)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}
	return v, nil
}

// Load reads configuration using New and validates it.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper unmarshals and validates configuration from v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch store.Dialect(strings.ToLower(c.Database.Driver)) {
	case store.SQLite:
		if c.Database.Path == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case store.Postgres:
		if c.Database.DSN == "" {
			return errors.WithHint(
				errors.New("database.dsn is required for the postgres driver"),
				"set --dsn or SYSARCH_DATABASE_DSN",
			)
		}
	default:
		return errors.WithHint(
			errors.Newf("unknown database.driver %q", c.Database.Driver),
			`use "sqlite" or "postgres"`,
		)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	if c.Query.Separator == "" {
		return errors.New("query.separator must not be empty")
	}
	return nil
}

// Store returns the record store configuration.
func (c *Config) Store() store.Config {
	return store.Config{
		Driver: strings.ToLower(c.Database.Driver),
		Path:   c.Database.Path,
		DSN:    c.Database.DSN,
	}
}

var dsnPassword = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)

// Redacted returns a description of the database location safe for logs.
func (d DatabaseConfig) Redacted() string {
	if strings.ToLower(d.Driver) != string(store.Postgres) {
		return d.Path
	}
	if u, err := url.Parse(d.DSN); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
		return u.String()
	}
	return dsnPassword.ReplaceAllString(d.DSN, "${1}xxxxx")
}
