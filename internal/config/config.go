package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultConfigYAML is the commented config written by `countrysync init`.
//
//go:embed default.yaml
var DefaultConfigYAML []byte

// Supported database.driver values.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the top-level configuration loaded from config.yaml.
type Config struct {
	Sources   Sources   `yaml:"sources"`
	Estimator Estimator `yaml:"estimator"`
	Database  Database  `yaml:"database"`
	Refresh   Refresh   `yaml:"refresh"`
	Report    Report    `yaml:"report"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

// Sources locates the two upstream feeds. Attempts is per feed and per refresh.
type Sources struct {
	CountriesURL string        `yaml:"countries_url"`
	RatesURL     string        `yaml:"rates_url"`
	Timeout      time.Duration `yaml:"timeout"`
	Attempts     int           `yaml:"attempts"`
}

// Estimator bounds the random multiplier used for the GDP estimate.
type Estimator struct {
	MinMultiplier int `yaml:"min_multiplier"`
	MaxMultiplier int `yaml:"max_multiplier"`
}

// Database selects the backend. The postgres DSN is read from the environment
// variable named by DSNEnv, never from the file.
type Database struct {
	Driver   string `yaml:"driver"`
	DSNEnv   string `yaml:"dsn_env"`
	MaxConns int    `yaml:"max_conns"`
}

// Refresh bounds the number of concurrent upserts.
type Refresh struct {
	Workers int `yaml:"workers"`
}

// Report sizes the summary image. An empty CacheDir means <data_dir>/cache.
type Report struct {
	CacheDir string `yaml:"cache_dir"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
}

// Output holds where the SQLite file and cache live.
type Output struct {
	DataDir string `yaml:"data_dir"`
}

// Server is the default listen address for `countrysync serve`.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Logging configures the logrus logger. Format is "text" or "json".
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for countrysync.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "countrysync")
}

// DataDir returns the XDG data directory for countrysync.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "countrysync")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/countrysync/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'countrysync init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Sources: Sources{
			CountriesURL: "https://restcountries.com/v2/all?fields=name,capital,region,population,flag,currencies",
			RatesURL:     "https://open.er-api.com/v6/latest/USD",
			Timeout:      30 * time.Second,
			Attempts:     1,
		},
		Estimator: Estimator{MinMultiplier: 1000, MaxMultiplier: 2000},
		Database: Database{
			Driver:   DriverSQLite,
			DSNEnv:   "DATABASE_URL",
			MaxConns: 4,
		},
		Refresh: Refresh{Workers: 8},
		Report:  Report{Width: 800, Height: 400},
		Server:  Server{Host: "127.0.0.1", Port: 8000},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a refresh.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q (want %q or %q)", c.Database.Driver, DriverSQLite, DriverPostgres)
	}
	if c.Refresh.Workers <= 0 {
		return fmt.Errorf("refresh.workers must be positive, got %d", c.Refresh.Workers)
	}
	if c.Sources.Attempts <= 0 {
		return fmt.Errorf("sources.attempts must be positive, got %d", c.Sources.Attempts)
	}
	if c.Estimator.MinMultiplier <= 0 || c.Estimator.MinMultiplier > c.Estimator.MaxMultiplier {
		return fmt.Errorf("invalid estimator range [%d, %d]", c.Estimator.MinMultiplier, c.Estimator.MaxMultiplier)
	}
	if c.Report.Width <= 0 || c.Report.Height <= 0 {
		return fmt.Errorf("invalid report size %dx%d", c.Report.Width, c.Report.Height)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetCacheDir returns the directory holding the rendered summary image.
func (c *Config) GetCacheDir() string {
	if c.Report.CacheDir != "" {
		return c.Report.CacheDir
	}
	return filepath.Join(c.GetDataDir(), "cache")
}

// SQLitePath returns the database file used by the sqlite driver.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.GetDataDir(), "countrysync.db")
}

// PostgresDSN reads the connection string named by database.dsn_env.
func (c *Config) PostgresDSN() (string, error) {
	dsn := os.Getenv(c.Database.DSNEnv)
	if dsn == "" {
		return "", fmt.Errorf("postgres driver selected but %s is not set", c.Database.DSNEnv)
	}
	return dsn, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
