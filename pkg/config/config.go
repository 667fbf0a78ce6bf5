// Package config loads rostersync settings: built-in defaults, then an
// optional YAML file, then .env files, then environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/rostersync/pkg/importer"
	"github.com/hazyhaar/rostersync/pkg/match"
	"github.com/hazyhaar/rostersync/pkg/names"
	"github.com/hazyhaar/rostersync/pkg/registry"
)

// DefaultEnvFiles are loaded, when present, before the environment is read.
var DefaultEnvFiles = []string{".env", ".env.local"}

// Config is the full service configuration. Nil lists and maps select the
// built-in defaults of the component they configure.
type Config struct {
	Addr           string        `yaml:"addr" env:"ROSTERSYNC_ADDR"`
	LogLevel       string        `yaml:"log_level" env:"ROSTERSYNC_LOG_LEVEL"`
	APIKey         string        `yaml:"api_key" env:"ROSTERSYNC_API_KEY"`
	LedgerPath     string        `yaml:"ledger_path" env:"ROSTERSYNC_LEDGER_PATH"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" env:"ROSTERSYNC_MAX_UPLOAD_BYTES"`
	Workers        int           `yaml:"workers" env:"ROSTERSYNC_WORKERS"`
	HealthInterval time.Duration `yaml:"health_interval" env:"ROSTERSYNC_HEALTH_INTERVAL"`

	Registry RegistryConfig        `yaml:"registry"`
	Schema   registry.SchemaConfig `yaml:"schema"`
	Stages   StagesConfig          `yaml:"stages"`
	Names    NamesConfig           `yaml:"names"`
	Matching match.Thresholds      `yaml:"matching"`
	Columns  importer.Columns      `yaml:"columns"`
	CSV      CSVConfig             `yaml:"csv"`

	// File is the YAML file that was read, empty when none was.
	File string `yaml:"-" env:"-"`
}

// RegistryConfig locates the remote registry.
type RegistryConfig struct {
	BaseURL      string        `yaml:"base_url" env:"ROSTERSYNC_REGISTRY_URL"`
	Token        string        `yaml:"token" env:"ROSTERSYNC_REGISTRY_TOKEN"`
	Timeout      time.Duration `yaml:"timeout" env:"ROSTERSYNC_REGISTRY_TIMEOUT"`
	PageSize     int           `yaml:"page_size" env:"ROSTERSYNC_REGISTRY_PAGE_SIZE"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"ROSTERSYNC_REGISTRY_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"ROSTERSYNC_REGISTRY_WRITE_TIMEOUT"`
}

// StagesConfig configures the vocabulary, the deriver and the gate.
type StagesConfig struct {
	Labels    []string          `yaml:"labels"`
	Aliases   map[string]string `yaml:"aliases"`
	HardLocks []string          `yaml:"hard_locks" env:"ROSTERSYNC_HARD_LOCKS"`
	Minimum   string            `yaml:"minimum" env:"ROSTERSYNC_MIN_STAGE"`
	// Roles retargets deriver rules, e.g. accessed: "Data Room Accessed".
	Roles                 map[string]string `yaml:"roles"`
	SubscriptionOverrides map[string]string `yaml:"subscription_overrides"`
	// OptionAliases maps a stage label to the registry option label used for it.
	OptionAliases map[string]string `yaml:"option_aliases"`
}

// NamesConfig configures normalization and classification.
type NamesConfig struct {
	names.Options      `yaml:",inline"`
	OrgKeywords        []string `yaml:"org_keywords"`
	OrgTags            []string `yaml:"org_tags"`
	PersonTags         []string `yaml:"person_tags"`
	PreferOrganization bool     `yaml:"prefer_organization" env:"ROSTERSYNC_PREFER_ORGANIZATION"`
}

// CSVConfig tunes the CSV reader.
type CSVConfig struct {
	Delimiter string `yaml:"delimiter" env:"ROSTERSYNC_CSV_DELIMITER"`
	Encoding  string `yaml:"encoding" env:"ROSTERSYNC_CSV_ENCODING"`
	Sheet     string `yaml:"sheet" env:"ROSTERSYNC_XLSX_SHEET"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:           ":8430",
		LogLevel:       "info",
		LedgerPath:     "rostersync.db",
		MaxUploadBytes: 20 << 20,
		Workers:        4,
		HealthInterval: time.Minute,
		Registry: RegistryConfig{
			Timeout:      15 * time.Second,
			PageSize:     100,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Schema: registry.SchemaConfig{
			StatusField: "Stage",
			TypeField:   "Type",
		},
		Matching: match.DefaultThresholds(),
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped when
// it does not exist), envFiles and the environment, then validates it.
func Load(path string, envFiles []string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			cfg.File = path
		}
	}

	if _, err := LoadEnv(envFiles); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv loads the env files that exist and returns how many were loaded.
// Variables already set in the environment win.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Validate checks scalar settings and that the stage configuration compiles.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("config: addr is empty")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	for name, d := range map[string]time.Duration{
		"registry.timeout":       c.Registry.Timeout,
		"registry.read_timeout":  c.Registry.ReadTimeout,
		"registry.write_timeout": c.Registry.WriteTimeout,
		"health_interval":        c.HealthInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", name, d)
		}
	}
	if strings.TrimSpace(c.Registry.Token) != "" {
		u, err := url.ParseRequestURI(c.Registry.BaseURL)
		if err != nil {
			return fmt.Errorf("config: registry.base_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("config: registry.base_url: unsupported scheme %q", u.Scheme)
		}
	}
	if strings.TrimSpace(c.Schema.StatusField) == "" {
		return errors.New("config: schema.status_field is empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if _, err := c.Pipeline(nil); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return l, nil
}

// ClientConfig returns the registry client settings.
func (c *Config) ClientConfig() registry.Config {
	return registry.Config{
		BaseURL:  c.Registry.BaseURL,
		Token:    c.Registry.Token,
		Timeout:  c.Registry.Timeout,
		PageSize: c.Registry.PageSize,
	}
}

// ReadOptions returns the import reader settings.
func (c *Config) ReadOptions() importer.Options {
	return importer.Options{
		Columns:   c.Columns,
		Delimiter: c.CSV.Delimiter,
		Encoding:  c.CSV.Encoding,
		Sheet:     c.CSV.Sheet,
	}
}
