package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"llmexperimenter/internal/models"
)

// Config represents runtime configuration for the service.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Database  DatabaseConfig            `yaml:"database"`
	Redis     RedisConfig               `yaml:"redis"`
	Metrics   MetricsConfig             `yaml:"metrics"`
	Defaults  models.Defaults           `yaml:"defaults"`
	Models    map[string][]string       `yaml:"models"`
	Providers map[string]ProviderConfig `yaml:"providers"`

	// path is the absolute location the config was loaded from.
	path string
}

type ServerConfig struct {
	Address    string        `yaml:"address"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	Admins     []string      `yaml:"admins"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Params   string `yaml:"params"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// ProviderConfig tunes a single provider adapter. Every field is optional.
type ProviderConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Stream         bool   `yaml:"stream"`
}

// Timeout returns the configured request timeout, or zero when unset.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Load reads configuration from the provided path (defaults to config.yaml).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	// keys missing from a partial defaults section keep their builtin values
	cfg := Config{Defaults: models.BuiltinDefaults()}
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.path = absPath

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if isFileDSN(cfg.Database) && !filepath.IsAbs(cfg.Database.DSN) {
		cfg.Database.DSN = filepath.Join(filepath.Dir(absPath), cfg.Database.DSN)
	}

	return &cfg, nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// ApplyDefaults fills every optional field left empty in the file.
func (c *Config) ApplyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8090"
	}
	if c.Server.SessionTTL <= 0 {
		c.Server.SessionTTL = 24 * time.Hour
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "llmexperimenter"
	}
	if c.Defaults == (models.Defaults{}) {
		c.Defaults = models.BuiltinDefaults()
	}
	normalized := make(map[string][]string, len(c.Models))
	for provider, names := range c.Models {
		normalized[strings.ToLower(provider)] = names
	}
	c.Models = normalized
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return errors.New("models must list at least one provider")
	}
	for provider, names := range c.Models {
		if len(names) == 0 {
			return fmt.Errorf("models.%s must list at least one model", provider)
		}
	}
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
		if c.Database.DSN == "" {
			return errors.New("database.dsn must be configured for sqlite")
		}
	case "mysql", "postgres", "pgx":
		if c.Database.DSN == "" && c.Database.Host == "" {
			return fmt.Errorf("database.host or database.dsn must be configured for %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	return nil
}

// ProviderNames returns the configured providers sorted by name.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Models))
	for name := range c.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isFileDSN(db DatabaseConfig) bool {
	if db.Driver != "sqlite" && db.Driver != "sqlite3" {
		return false
	}
	return db.DSN != "" && !strings.HasPrefix(db.DSN, ":memory:") && !strings.HasPrefix(db.DSN, "file:")
}
