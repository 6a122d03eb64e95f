// Package explorer wires the endpoint registry, catalog, dispatcher, health
// tester, ledger and inventory into one facade.
package explorer

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/PentesterFlow/OpenExplorer/internal/adapter"
	"github.com/PentesterFlow/OpenExplorer/internal/catalog"
	"github.com/PentesterFlow/OpenExplorer/internal/dispatch"
	"github.com/PentesterFlow/OpenExplorer/internal/endpoints"
	"github.com/PentesterFlow/OpenExplorer/internal/health"
	"github.com/PentesterFlow/OpenExplorer/internal/inventory"
	"github.com/PentesterFlow/OpenExplorer/internal/ledger"
	"github.com/PentesterFlow/OpenExplorer/internal/logger"
	"github.com/PentesterFlow/OpenExplorer/internal/metrics"
	"github.com/PentesterFlow/OpenExplorer/internal/ratelimit"
	"github.com/PentesterFlow/OpenExplorer/internal/store"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// Explorer is the device-API explorer. It is safe for concurrent use.
type Explorer struct {
	config *Config

	store     store.Store
	ownsStore bool

	endpoints  *endpoints.Store
	catalog    *catalog.Catalog
	ledger     *ledger.Ledger
	inventory  *inventory.Tracker
	limiter    *ratelimit.Limiter
	transport  *adapter.Transport
	dispatcher *dispatch.Dispatcher
	tester     *health.Tester

	catalogSource catalog.Source

	logger  *logger.Logger
	metrics *metrics.Collector

	closed atomic.Bool
}

// Open creates an explorer with the given options and loads persisted
// endpoints, inventory and the API catalog.
func Open(ctx context.Context, opts ...Option) (*Explorer, error) {
	e := &Explorer{config: DefaultConfig()}

	// Apply options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	// Validate config
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if e.logger == nil {
		level, _ := logger.ParseLevel(e.config.Log.Level)
		e.logger = logger.New(logger.Config{
			Level:  level,
			Pretty: e.config.Log.Pretty,
		})
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}

	if err := e.openStore(); err != nil {
		return nil, err
	}
	if err := e.build(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Explorer) openStore() error {
	if e.store != nil {
		return nil
	}
	if e.config.StorePath == "" {
		e.store = store.NewMemoryStore()
	} else {
		s, err := store.NewBoltStore(e.config.StorePath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		e.store = s
	}
	e.ownsStore = true
	return nil
}

func (e *Explorer) build(ctx context.Context) error {
	e.endpoints = endpoints.New(e.store)
	if err := e.endpoints.Load(ctx); err != nil {
		return err
	}

	e.inventory = inventory.New(e.store, e.endpoints, e.logger)
	if err := e.inventory.Load(ctx); err != nil {
		return err
	}
	// Endpoints created before the inventory existed still get a scorecard.
	for _, ep := range e.endpoints.List() {
		if _, err := e.inventory.Get(ep.ID); err == nil {
			continue
		}
		if _, err := e.inventory.Register(ctx, ep); err != nil {
			return err
		}
	}

	if err := e.loadCatalog(ctx); err != nil {
		return err
	}

	e.ledger = ledger.New(e.store)

	lim := e.config.Limits
	e.limiter = ratelimit.NewLimiter(lim.MaxInFlight, lim.RequestsPerSecond, lim.Burst)
	for id, r := range lim.Endpoints {
		e.limiter.SetEndpointRate(id, r.RequestsPerSecond, r.Burst)
	}

	if e.transport == nil {
		tc := adapter.DefaultTransportConfig()
		if e.config.Transport.UserAgent != "" {
			tc.UserAgent = e.config.Transport.UserAgent
		}
		if e.config.Transport.MaxBodyBytes > 0 {
			tc.MaxBodyBytes = e.config.Transport.MaxBodyBytes
		}
		if e.config.Transport.DialTimeout > 0 {
			tc.DialTimeout = e.config.Transport.DialTimeout
		}
		e.transport = adapter.NewTransport(tc)
	}
	adapters := adapter.NewRegistry(e.transport)

	e.dispatcher = dispatch.New(dispatch.Config{
		Endpoints: e.endpoints,
		Catalog:   e.catalog,
		Ledger:    e.ledger,
		Inventory: e.inventory,
		Adapters:  adapters,
		Limiter:   e.limiter,
		Metrics:   e.metrics,
		Logger:    e.logger,
	})
	e.tester = health.NewTester(health.Config{
		Endpoints:   e.endpoints,
		Inventory:   e.inventory,
		Adapters:    adapters,
		Metrics:     e.metrics,
		Logger:      e.logger,
		Timeout:     e.config.HealthTimeout,
		Concurrency: e.config.HealthConcurrency,
	})

	e.metrics.SetEndpoints(int64(e.endpoints.Len()))
	e.logger.WithField("endpoints", e.endpoints.Len()).
		WithField("definitions", e.catalog.Len()).
		Debug("Explorer ready")
	return nil
}

func (e *Explorer) loadCatalog(ctx context.Context) error {
	if e.catalog != nil {
		return nil
	}
	if e.catalogSource == nil {
		src, err := e.config.Catalog.source()
		if err != nil {
			return err
		}
		e.catalogSource = src
	}
	if e.catalogSource == nil {
		cat, err := catalog.New(catalog.Builtin())
		if err != nil {
			return err
		}
		e.catalog = cat
		return nil
	}

	e.catalog = catalog.Empty()
	return e.ReloadCatalog(ctx)
}

// Close releases the store if the explorer opened it. It is idempotent.
func (e *Explorer) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if e.ownsStore && e.store != nil {
		return e.store.Close()
	}
	return nil
}

// Config returns a copy of the active configuration.
func (e *Explorer) Config() *Config {
	return e.config.Clone()
}

// Logger returns the explorer's logger.
func (e *Explorer) Logger() *logger.Logger {
	return e.logger
}

// =============================================================================
// Endpoints
// =============================================================================

// Endpoints lists registered endpoints ordered by name.
func (e *Explorer) Endpoints() []model.Endpoint {
	return e.endpoints.List()
}

// Endpoint returns one registered endpoint.
func (e *Explorer) Endpoint(id string) (model.Endpoint, error) {
	return e.endpoints.Get(id)
}

// AddEndpoint registers ep and opens its inventory scorecard.
func (e *Explorer) AddEndpoint(ctx context.Context, ep model.Endpoint) (model.Endpoint, error) {
	created, err := e.endpoints.Create(ctx, ep)
	if err != nil {
		return model.Endpoint{}, err
	}
	if _, err := e.inventory.Register(ctx, created); err != nil {
		return created, err
	}
	e.metrics.SetEndpoints(int64(e.endpoints.Len()))
	e.logger.WithEndpoint(created.ID, string(created.Type)).Info("Endpoint added: " + created.Name)
	return created, nil
}

// UpdateEndpoint replaces the mutable fields of an endpoint and refreshes
// its inventory description.
func (e *Explorer) UpdateEndpoint(ctx context.Context, ep model.Endpoint) (model.Endpoint, error) {
	updated, err := e.endpoints.Update(ctx, ep)
	if err != nil {
		return model.Endpoint{}, err
	}
	if _, err := e.inventory.Register(ctx, updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// DeleteEndpoint removes an endpoint and its scorecard. Its ledger history
// is kept.
func (e *Explorer) DeleteEndpoint(ctx context.Context, id string) error {
	if err := e.endpoints.Delete(ctx, id); err != nil {
		return err
	}
	e.limiter.Forget(id)
	if err := e.inventory.Forget(ctx, id); err != nil {
		return err
	}
	e.metrics.SetEndpoints(int64(e.endpoints.Len()))
	e.logger.WithField("endpoint_id", id).Info("Endpoint deleted")
	return nil
}

// =============================================================================
// Dispatch and health
// =============================================================================

// Execute dispatches one request. A request without a timeout gets the
// configured default.
func (e *Explorer) Execute(ctx context.Context, req model.ExplorerRequest) (model.ExplorerResponse, error) {
	if req.TimeoutMs <= 0 {
		req.TimeoutMs = int(e.config.RequestTimeout.Milliseconds())
	}
	return e.dispatcher.Execute(ctx, req)
}

// Test runs a connection test against a registered endpoint.
func (e *Explorer) Test(ctx context.Context, id string) (model.ConnectionTestResult, error) {
	return e.tester.Test(ctx, id)
}

// TestAll tests every registered endpoint.
func (e *Explorer) TestAll(ctx context.Context) (map[string]model.ConnectionTestResult, error) {
	return e.tester.TestAll(ctx)
}

// TestUnsaved tests an unsaved endpoint without touching the inventory.
func (e *Explorer) TestUnsaved(ctx context.Context, ep model.Endpoint) (model.ConnectionTestResult, error) {
	return e.tester.TestUnsaved(ctx, ep)
}

// Watch sweeps every endpoint at the configured interval until ctx is done
// and returns the number of sweeps.
func (e *Explorer) Watch(ctx context.Context, onSweep func(map[string]model.ConnectionTestResult)) int {
	w := health.NewWatcher(e.tester, e.config.WatchInterval)
	w.OnSweep = onSweep
	return w.Run(ctx)
}

// =============================================================================
// Ledger, inventory, catalog, stats
// =============================================================================

// History returns the ledger of an endpoint oldest first. A positive limit
// keeps only the most recent records. An empty endpointID merges the ledgers
// of every endpoint that has records, deleted ones included, by timestamp.
func (e *Explorer) History(ctx context.Context, endpointID string, limit int) ([]model.APIQueryRecord, error) {
	if endpointID == "" {
		return e.mergedHistory(ctx, limit)
	}
	if limit > 0 {
		return e.ledger.Recent(ctx, endpointID, limit)
	}
	var out []model.APIQueryRecord
	for rec, err := range e.ledger.Records(ctx, endpointID) {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (e *Explorer) mergedHistory(ctx context.Context, limit int) ([]model.APIQueryRecord, error) {
	ids, err := e.ledger.Endpoints(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.APIQueryRecord
	for _, id := range ids {
		recs, err := e.History(ctx, id, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	slices.SortStableFunc(out, func(a, b model.APIQueryRecord) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.EndpointID, b.EndpointID)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// HistoryIterator returns a restartable iterator over an endpoint's ledger.
func (e *Explorer) HistoryIterator(endpointID string) *ledger.Iterator {
	return e.ledger.ListByEndpoint(endpointID)
}

// Inventory lists every scorecard.
func (e *Explorer) Inventory() []model.DeviceInventory {
	return e.inventory.List()
}

// Device returns the scorecard of one endpoint.
func (e *Explorer) Device(id string) (model.DeviceInventory, error) {
	return e.inventory.Get(id)
}

// Catalog returns the API catalog.
func (e *Explorer) Catalog() *catalog.Catalog {
	return e.catalog
}

// ReloadCatalog reloads the catalog from its configured source. Definitions
// that fail validation are dropped and logged; the rest are published. A
// source that cannot be read fails the reload and keeps the current catalog.
func (e *Explorer) ReloadCatalog(ctx context.Context) error {
	if e.catalogSource == nil {
		return e.catalog.Replace(catalog.Builtin())
	}
	err := e.catalog.Reload(ctx, e.catalogSource)
	if catalog.IsRejected(err) && e.catalog.Len() > 0 {
		e.logger.WithError(err).Warn("Some catalog definitions were rejected")
		return nil
	}
	return err
}

// Stats returns a snapshot of the engine counters.
func (e *Explorer) Stats() *metrics.Snapshot {
	return e.metrics.Snapshot()
}
