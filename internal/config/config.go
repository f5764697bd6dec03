package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/dshills/listingstore/internal/storage"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "LISTINGSTORE_"

// DefaultEnvFile is the dotenv file read when present
const DefaultEnvFile = ".env"

// Config is the combined configuration of the listingstore binary
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Ingest   IngestConfig   `toml:"ingest"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// DatabaseConfig locates and tunes the listing database
type DatabaseConfig struct {
	Path        string   `toml:"path"`
	BusyTimeout Duration `toml:"busy_timeout"`
	ReadLimit   int      `toml:"read_limit"`
}

// LogConfig configures handling of application log events
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// IngestConfig tunes record file ingestion
type IngestConfig struct {
	Workers      int  `toml:"workers"`
	SkipExisting bool `toml:"skip_existing"`
}

// MetricsConfig configures the optional metrics endpoint of serve
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// Duration is a time.Duration written as a string such as "10s" in TOML
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        storage.DefaultDBName,
			BusyTimeout: Duration(storage.DefaultBusyTimeout),
			ReadLimit:   storage.DefaultReadLimit,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, then the TOML file at path
// (skipped when empty), then envFile, then the process environment. Process
// variables take precedence over those of envFile. A missing envFile is not
// an error.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		var err error
		if dotenv, err = godotenv.Read(envFile); err != nil {
			if !os.IsNotExist(errors.Cause(err)) {
				return nil, errors.Wrapf(err, "failed to read %s", envFile)
			}
			log.WithField("file", envFile).Debug("no env file found, using process environment")
			dotenv = map[string]string{}
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			return v, true
		}
		v, ok := dotenv[EnvPrefix+key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open config")
	}
	defer func() { _ = file.Close() }()

	if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(c); err != nil {
		return errors.Wrapf(err, "failed to decode %s", path)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DB_PATH"); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup("BUSY_TIMEOUT"); ok && v != "" {
		if err := c.Database.BusyTimeout.UnmarshalText([]byte(v)); err != nil {
			return errors.Wrap(err, EnvPrefix+"BUSY_TIMEOUT")
		}
	}
	if v, ok := lookup("READ_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, EnvPrefix+"READ_LIMIT")
		}
		c.Database.ReadLimit = n
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
	if v, ok := lookup("WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, EnvPrefix+"WORKERS")
		}
		c.Ingest.Workers = n
	}
	if v, ok := lookup("METRICS_ADDR"); ok {
		c.Metrics.Addr = v
	}
	return nil
}

// Validate checks values that cannot be fixed up by defaults
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Database.BusyTimeout < 0 {
		return errors.Errorf("busy timeout must not be negative, got %s", time.Duration(c.Database.BusyTimeout))
	}
	if c.Database.ReadLimit < 0 {
		return errors.Errorf("read limit must not be negative, got %d", c.Database.ReadLimit)
	}
	if c.Ingest.Workers < 0 {
		return errors.Errorf("workers must not be negative, got %d", c.Ingest.Workers)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	switch c.Log.Format {
	case "text", "json", "color":
	default:
		return errors.Errorf("invalid log format %q", c.Log.Format)
	}
	return nil
}

// StoreOptions returns the storage options for this configuration, with
// metrics registered on reg
func (c *Config) StoreOptions(reg prometheus.Registerer) storage.Options {
	return storage.Options{
		Path:        c.Database.Path,
		BusyTimeout: time.Duration(c.Database.BusyTimeout),
		Registerer:  reg,
	}
}

// Encode writes c as TOML
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
