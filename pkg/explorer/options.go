package explorer

import (
	"time"

	"github.com/PentesterFlow/OpenExplorer/internal/adapter"
	"github.com/PentesterFlow/OpenExplorer/internal/catalog"
	"github.com/PentesterFlow/OpenExplorer/internal/logger"
	"github.com/PentesterFlow/OpenExplorer/internal/metrics"
	"github.com/PentesterFlow/OpenExplorer/internal/store"
)

// Option is a functional option for configuring the Explorer.
type Option func(*Explorer) error

// WithConfig sets the entire configuration.
func WithConfig(config *Config) Option {
	return func(e *Explorer) error {
		e.config = config.Clone()
		return nil
	}
}

// WithStorePath sets the bbolt database file. An empty path keeps state in
// memory.
func WithStorePath(path string) Option {
	return func(e *Explorer) error {
		e.config.StorePath = path
		return nil
	}
}

// WithStore uses an already opened store. The explorer does not close it.
func WithStore(s store.Store) Option {
	return func(e *Explorer) error {
		e.store = s
		return nil
	}
}

// WithCatalog uses a prepared catalog instead of loading one.
func WithCatalog(c *catalog.Catalog) Option {
	return func(e *Explorer) error {
		e.catalog = c
		return nil
	}
}

// WithCatalogSource loads the catalog from src.
func WithCatalogSource(src catalog.Source) Option {
	return func(e *Explorer) error {
		e.catalogSource = src
		return nil
	}
}

// WithCatalogFile loads the catalog from a JSON, YAML, markdown or SQLite file.
func WithCatalogFile(path string) Option {
	return func(e *Explorer) error {
		e.config.Catalog.Path = path
		return nil
	}
}

// WithTransport sets the transport shared by every adapter.
func WithTransport(t *adapter.Transport) Option {
	return func(e *Explorer) error {
		e.transport = t
		return nil
	}
}

// WithRequestTimeout sets the default request deadline.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(e *Explorer) error {
		e.config.RequestTimeout = timeout
		return nil
	}
}

// WithHealthTimeout sets the connection test deadline.
func WithHealthTimeout(timeout time.Duration) Option {
	return func(e *Explorer) error {
		e.config.HealthTimeout = timeout
		return nil
	}
}

// WithMaxInFlight bounds concurrent calls per endpoint.
func WithMaxInFlight(n int) Option {
	return func(e *Explorer) error {
		if n < 1 {
			n = 1
		}
		e.config.Limits.MaxInFlight = n
		return nil
	}
}

// WithRateLimit paces every endpoint.
func WithRateLimit(rps float64, burst int) Option {
	return func(e *Explorer) error {
		e.config.Limits.RequestsPerSecond = rps
		e.config.Limits.Burst = burst
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Explorer) error {
		e.logger = l
		return nil
	}
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) Option {
	return func(e *Explorer) error {
		e.config.Log.Level = level
		return nil
	}
}

// WithMetrics sets a custom metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Explorer) error {
		e.metrics = m
		return nil
	}
}
