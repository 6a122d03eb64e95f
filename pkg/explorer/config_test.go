package explorer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PentesterFlow/OpenExplorer/internal/catalog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if cfg.HealthTimeout != 10*time.Second {
		t.Errorf("HealthTimeout = %v, want 10s", cfg.HealthTimeout)
	}
	if cfg.Limits.MaxInFlight != 4 {
		t.Errorf("MaxInFlight = %d, want 4", cfg.Limits.MaxInFlight)
	}
	if cfg.Output.Format != "table" {
		t.Errorf("Output.Format = %q, want table", cfg.Output.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"zero health timeout", func(c *Config) { c.HealthTimeout = 0 }, true},
		{"zero health concurrency", func(c *Config) { c.HealthConcurrency = 0 }, true},
		{"zero watch interval", func(c *Config) { c.WatchInterval = 0 }, true},
		{"zero max in flight", func(c *Config) { c.Limits.MaxInFlight = 0 }, true},
		{"negative rate", func(c *Config) { c.Limits.RequestsPerSecond = -1 }, true},
		{"negative endpoint rate", func(c *Config) {
			c.Limits.Endpoints = map[string]RateConfig{"ep_1": {RequestsPerSecond: -2}}
		}, true},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }, true},
		{"bad output format", func(c *Config) { c.Output.Format = "xml" }, true},
		{"bad catalog kind", func(c *Config) { c.Catalog = CatalogConfig{Path: "x", Kind: "csv"} }, true},
		{"memory store", func(c *Config) { c.StorePath = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCatalogConfig_Source(t *testing.T) {
	tests := []struct {
		name string
		cfg  CatalogConfig
		want any
	}{
		{"builtin", CatalogConfig{}, nil},
		{"yaml", CatalogConfig{Path: "apis.yaml"}, catalog.FileSource{}},
		{"json", CatalogConfig{Path: "apis.json"}, catalog.FileSource{}},
		{"markdown", CatalogConfig{Path: "arista_api.md"}, catalog.MarkdownSource{}},
		{"sqlite", CatalogConfig{Path: "netvisor.db"}, catalog.SQLiteSource{}},
		{"explicit kind", CatalogConfig{Path: "apis.bin", Kind: "sqlite"}, catalog.SQLiteSource{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := tt.cfg.source()
			if err != nil {
				t.Fatalf("source() error = %v", err)
			}
			switch tt.want.(type) {
			case nil:
				if src != nil {
					t.Errorf("source() = %T, want nil", src)
				}
			case catalog.FileSource:
				if _, ok := src.(catalog.FileSource); !ok {
					t.Errorf("source() = %T, want FileSource", src)
				}
			case catalog.MarkdownSource:
				if _, ok := src.(catalog.MarkdownSource); !ok {
					t.Errorf("source() = %T, want MarkdownSource", src)
				}
			case catalog.SQLiteSource:
				if _, ok := src.(catalog.SQLiteSource); !ok {
					t.Errorf("source() = %T, want SQLiteSource", src)
				}
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		check   func(t *testing.T, c *Config)
		wantErr bool
	}{
		{
			name: "yaml",
			file: "explorer.yaml",
			content: `
store_path: /tmp/x.db
request_timeout: 5s
limits:
  max_in_flight: 2
  endpoints:
    ep_1:
      requests_per_second: 0.5
      burst: 1
catalog:
  path: apis.md
`,
			check: func(t *testing.T, c *Config) {
				if c.RequestTimeout != 5*time.Second || c.Limits.MaxInFlight != 2 {
					t.Errorf("config = %+v", c)
				}
				if c.Limits.Endpoints["ep_1"].RequestsPerSecond != 0.5 {
					t.Errorf("endpoint rate = %+v", c.Limits.Endpoints)
				}
				// untouched fields keep their defaults
				if c.HealthTimeout != 10*time.Second {
					t.Errorf("HealthTimeout = %v, want default", c.HealthTimeout)
				}
			},
		},
		{
			name:    "json",
			file:    "explorer.json",
			content: `{"store_path": "", "health_concurrency": 3, "log": {"level": "debug"}}`,
			check: func(t *testing.T, c *Config) {
				if c.StorePath != "" || c.HealthConcurrency != 3 || c.Log.Level != "debug" {
					t.Errorf("config = %+v", c)
				}
			},
		},
		{
			name:    "garbage",
			file:    "broken.yaml",
			content: "limits: [1, 2",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			cfg, err := LoadFromFile(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadFromFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}

	if _, err := LoadFromFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadFromFile() of a missing file should fail")
	}
}

func TestConfig_SaveToFile(t *testing.T) {
	for _, name := range []string{"explorer.yaml", "explorer.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			cfg := DefaultConfig()
			cfg.HealthTimeout = 3 * time.Second
			cfg.Catalog.Path = "apis.yaml"
			if err := cfg.SaveToFile(path); err != nil {
				t.Fatalf("SaveToFile() error = %v", err)
			}

			loaded, err := LoadFromFile(path)
			if err != nil {
				t.Fatalf("LoadFromFile() error = %v", err)
			}
			if loaded.HealthTimeout != 3*time.Second || loaded.Catalog.Path != "apis.yaml" {
				t.Errorf("loaded = %+v", loaded)
			}
		})
	}
}

func TestConfig_Clone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.Endpoints = map[string]RateConfig{"ep_1": {RequestsPerSecond: 1}}

	clone := cfg.Clone()
	clone.Limits.Endpoints["ep_2"] = RateConfig{}
	clone.RequestTimeout = time.Second

	if len(cfg.Limits.Endpoints) != 1 || cfg.RequestTimeout == time.Second {
		t.Error("Clone() shares state with the original")
	}
}
