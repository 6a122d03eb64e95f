// Package health runs connection tests against registered endpoints.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PentesterFlow/OpenExplorer/internal/adapter"
	"github.com/PentesterFlow/OpenExplorer/internal/errors"
	"github.com/PentesterFlow/OpenExplorer/internal/logger"
	"github.com/PentesterFlow/OpenExplorer/internal/metrics"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// DefaultTimeout bounds one health check. It is shorter than the default
// request timeout.
const DefaultTimeout = 10 * time.Second

// DefaultConcurrency bounds TestAll fan-out.
const DefaultConcurrency = 8

// Endpoints lists and resolves registered endpoints.
type Endpoints interface {
	Get(id string) (model.Endpoint, error)
	List() []model.Endpoint
}

// OutcomeSink receives one outcome per test.
type OutcomeSink interface {
	Record(ctx context.Context, endpointID string, success bool, ts time.Time) (model.DeviceInventory, error)
}

// Config wires a Tester. Endpoints is required.
type Config struct {
	Endpoints   Endpoints
	Inventory   OutcomeSink
	Adapters    *adapter.Registry
	Metrics     *metrics.Collector
	Logger      *logger.Logger
	Timeout     time.Duration
	Concurrency int
}

// Tester runs health checks. It never writes to the query ledger.
type Tester struct {
	endpoints   Endpoints
	inventory   OutcomeSink
	adapters    *adapter.Registry
	metrics     *metrics.Collector
	log         *logger.Logger
	timeout     time.Duration
	concurrency int
}

// NewTester creates a tester, filling optional collaborators with defaults.
func NewTester(cfg Config) *Tester {
	t := &Tester{
		endpoints:   cfg.Endpoints,
		inventory:   cfg.Inventory,
		adapters:    cfg.Adapters,
		metrics:     cfg.Metrics,
		log:         cfg.Logger,
		timeout:     cfg.Timeout,
		concurrency: cfg.Concurrency,
	}
	if t.adapters == nil {
		t.adapters = adapter.NewRegistry(nil)
	}
	if t.metrics == nil {
		t.metrics = metrics.New()
	}
	if t.log == nil {
		t.log = logger.Nop()
	}
	t.log = t.log.WithComponent("health")
	if t.timeout <= 0 {
		t.timeout = DefaultTimeout
	}
	if t.concurrency <= 0 {
		t.concurrency = DefaultConcurrency
	}
	return t
}

// Test checks one registered endpoint and forwards the outcome to the
// inventory.
func (t *Tester) Test(ctx context.Context, endpointID string) (model.ConnectionTestResult, error) {
	ep, err := t.endpoints.Get(endpointID)
	if err != nil {
		return model.ConnectionTestResult{}, err
	}

	res, err := t.check(ctx, ep)
	if err != nil {
		return res, err
	}

	if t.inventory != nil {
		if _, err := t.inventory.Record(context.WithoutCancel(ctx), ep.ID, res.Success, time.Now().UTC()); err != nil {
			if errors.IsNotFound(err) {
				t.log.WithEndpoint(ep.ID, string(ep.Type)).Debug("Endpoint removed before the outcome was recorded")
			} else {
				t.log.ErrorEvent(err, ep.ID, "inventory_record")
			}
		}
	}
	return res, nil
}

// TestUnsaved checks an endpoint that need not be registered. Nothing is recorded.
func (t *Tester) TestUnsaved(ctx context.Context, ep model.Endpoint) (model.ConnectionTestResult, error) {
	return t.check(ctx, ep)
}

// TestAll checks every registered endpoint with bounded fan-out and returns
// the results keyed by endpoint id. Per-endpoint failures are results, not
// errors. Only cancellation of ctx stops the sweep early.
func (t *Tester) TestAll(ctx context.Context) (map[string]model.ConnectionTestResult, error) {
	eps := t.endpoints.List()
	results := make(map[string]model.ConnectionTestResult, len(eps))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)

	for _, ep := range eps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := t.Test(gctx, ep.ID)
			if err != nil {
				// Deleted or retyped since List; report it like any failure.
				res = model.ConnectionTestResult{Message: errors.Message(err)}
			}
			mu.Lock()
			results[ep.ID] = res
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func (t *Tester) check(ctx context.Context, ep model.Endpoint) (model.ConnectionTestResult, error) {
	a, err := t.adapters.For(ep.Type)
	if err != nil {
		return model.ConnectionTestResult{}, errors.NewUnsupportedTypeError(ep.ID, string(ep.Type))
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	res := a.HealthCheck(ctx, ep)
	elapsed := time.Since(start)
	if res.ElapsedMs == 0 {
		res.ElapsedMs = elapsed.Milliseconds()
	}

	t.metrics.RecordHealthCheck(res.Success)
	t.log.HealthEvent(ep.ID, res.Success, res.StatusCode, elapsed, res.Message)
	return res, nil
}
