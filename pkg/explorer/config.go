package explorer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/OpenExplorer/internal/catalog"
	"github.com/PentesterFlow/OpenExplorer/internal/health"
	"github.com/PentesterFlow/OpenExplorer/internal/logger"
	"github.com/PentesterFlow/OpenExplorer/internal/output"
	"github.com/PentesterFlow/OpenExplorer/internal/ratelimit"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// Config holds all explorer configuration.
type Config struct {
	// Path of the bbolt database. Empty keeps everything in memory.
	StorePath string `json:"store_path" yaml:"store_path"`

	// API catalog source
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`

	// Default deadline of a dispatched request
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// Deadline of one connection test
	HealthTimeout time.Duration `json:"health_timeout" yaml:"health_timeout"`

	// Endpoints tested concurrently by TestAll
	HealthConcurrency int `json:"health_concurrency" yaml:"health_concurrency"`

	// Sweep interval in watch mode
	WatchInterval time.Duration `json:"watch_interval" yaml:"watch_interval"`

	// Per-endpoint limits
	Limits LimitConfig `json:"limits" yaml:"limits"`

	// Shared HTTP / websocket transport
	Transport TransportConfig `json:"transport" yaml:"transport"`

	// Logging
	Log LogConfig `json:"log" yaml:"log"`

	// Output configuration
	Output OutputConfig `json:"output" yaml:"output"`
}

// CatalogConfig selects the catalog source. The kind is inferred from the
// file extension when Kind is empty; no path means the built-in catalog.
type CatalogConfig struct {
	Path  string `json:"path" yaml:"path"`
	Kind  string `json:"kind,omitempty" yaml:"kind,omitempty"` // file, markdown, sqlite
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
}

// LimitConfig bounds calls per endpoint.
type LimitConfig struct {
	MaxInFlight       int                   `json:"max_in_flight" yaml:"max_in_flight"`
	RequestsPerSecond float64               `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int                   `json:"burst" yaml:"burst"`
	Endpoints         map[string]RateConfig `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
}

// RateConfig overrides the pacing of one endpoint id.
type RateConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`
}

// TransportConfig tunes the shared transport.
type TransportConfig struct {
	UserAgent    string        `json:"user_agent" yaml:"user_agent"`
	MaxBodyBytes int64         `json:"max_body_bytes" yaml:"max_body_bytes"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// OutputConfig holds output configuration for the CLI.
type OutputConfig struct {
	Format string `json:"format" yaml:"format"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		StorePath:         defaultStorePath(),
		RequestTimeout:    model.DefaultTimeoutMs * time.Millisecond,
		HealthTimeout:     health.DefaultTimeout,
		HealthConcurrency: health.DefaultConcurrency,
		WatchInterval:     health.DefaultInterval,
		Limits: LimitConfig{
			MaxInFlight: ratelimit.DefaultMaxInFlight,
			Burst:       1,
		},
		Transport: TransportConfig{
			UserAgent:    "OpenExplorer/1.0",
			MaxBodyBytes: 10 * 1024 * 1024,
			DialTimeout:  5 * time.Second,
		},
		Log: LogConfig{
			Level:  "warn",
			Pretty: true,
		},
		Output: OutputConfig{
			Format: string(output.FormatTable),
			Pretty: true,
		},
	}
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "explorer.db"
	}
	return filepath.Join(dir, "openexplorer", "explorer.db")
}

// LoadFromFile loads configuration from a file (JSON or YAML).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.HealthTimeout <= 0 {
		return fmt.Errorf("health timeout must be positive")
	}
	if c.HealthConcurrency < 1 {
		return fmt.Errorf("health concurrency must be at least 1")
	}
	if c.WatchInterval <= 0 {
		return fmt.Errorf("watch interval must be positive")
	}
	if c.Limits.MaxInFlight < 1 {
		return fmt.Errorf("max in-flight must be at least 1")
	}
	if c.Limits.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	for id, r := range c.Limits.Endpoints {
		if r.RequestsPerSecond < 0 {
			return fmt.Errorf("rate limit of %s must not be negative", id)
		}
	}
	if _, err := c.Catalog.source(); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if _, err := output.ParseFormat(c.Output.Format); err != nil {
		return err
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Limits.Endpoints != nil {
		clone.Limits.Endpoints = make(map[string]RateConfig, len(c.Limits.Endpoints))
		for id, r := range c.Limits.Endpoints {
			clone.Limits.Endpoints[id] = r
		}
	}
	return &clone
}

// source returns the catalog loader for this configuration, or nil for the
// built-in catalog.
func (c CatalogConfig) source() (catalog.Source, error) {
	if c.Path == "" {
		return nil, nil
	}

	kind := c.Kind
	if kind == "" {
		switch strings.ToLower(filepath.Ext(c.Path)) {
		case ".md", ".txt":
			kind = "markdown"
		case ".db", ".sqlite", ".sqlite3":
			kind = "sqlite"
		default:
			kind = "file"
		}
	}

	switch kind {
	case "file":
		return catalog.FileSource{Path: c.Path}, nil
	case "markdown":
		return catalog.MarkdownSource{Path: c.Path}, nil
	case "sqlite":
		return catalog.SQLiteSource{Path: c.Path, Table: c.Table}, nil
	default:
		return nil, fmt.Errorf("unknown catalog kind %q (want file, markdown or sqlite)", kind)
	}
}
