// Package dispatch executes explorer requests against registered endpoints.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PentesterFlow/OpenExplorer/internal/adapter"
	"github.com/PentesterFlow/OpenExplorer/internal/errors"
	"github.com/PentesterFlow/OpenExplorer/internal/logger"
	"github.com/PentesterFlow/OpenExplorer/internal/metrics"
	"github.com/PentesterFlow/OpenExplorer/internal/ratelimit"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// EndpointSource resolves endpoint ids.
type EndpointSource interface {
	Get(id string) (model.Endpoint, error)
}

// DefinitionSource resolves definition ids within a service partition.
type DefinitionSource interface {
	Lookup(service, id string) (model.APIDefinition, error)
}

// Recorder appends ledger records.
type Recorder interface {
	Append(ctx context.Context, rec model.APIQueryRecord) error
}

// OutcomeSink receives one outcome per completed call.
type OutcomeSink interface {
	Record(ctx context.Context, endpointID string, success bool, ts time.Time) (model.DeviceInventory, error)
}

// Config wires a Dispatcher. Endpoints, Catalog and Ledger are required.
type Config struct {
	Endpoints EndpointSource
	Catalog   DefinitionSource
	Ledger    Recorder
	Inventory OutcomeSink
	Adapters  *adapter.Registry
	Limiter   *ratelimit.Limiter
	Metrics   *metrics.Collector
	Logger    *logger.Logger
}

// Dispatcher runs the execute pipeline. It is safe for concurrent use.
type Dispatcher struct {
	endpoints EndpointSource
	catalog   DefinitionSource
	ledger    Recorder
	inventory OutcomeSink
	adapters  *adapter.Registry
	limiter   *ratelimit.Limiter
	metrics   *metrics.Collector
	log       *logger.Logger
	now       func() time.Time
}

// New creates a dispatcher, filling optional collaborators with defaults.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		endpoints: cfg.Endpoints,
		catalog:   cfg.Catalog,
		ledger:    cfg.Ledger,
		inventory: cfg.Inventory,
		adapters:  cfg.Adapters,
		limiter:   cfg.Limiter,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if d.adapters == nil {
		d.adapters = adapter.NewRegistry(nil)
	}
	if d.limiter == nil {
		d.limiter = ratelimit.NewDefault()
	}
	if d.metrics == nil {
		d.metrics = metrics.New()
	}
	if d.log == nil {
		d.log = logger.Nop()
	}
	d.log = d.log.WithComponent("dispatch")
	return d
}

// Execute runs one request. Unknown endpoints and definitions and
// unsupported endpoint types fail without a ledger record. Validation
// failures are recorded and returned together with the populated response.
// Network-stage failures are reported in the response, never as an error.
// The only other error is a ledger storage failure.
func (d *Dispatcher) Execute(ctx context.Context, req model.ExplorerRequest) (model.ExplorerResponse, error) {
	resp := model.ExplorerResponse{EndpointID: req.EndpointID, Headers: map[string][]string{}}

	ep, err := d.endpoints.Get(req.EndpointID)
	if err != nil {
		return resp, err
	}

	a, err := d.adapters.For(ep.Type)
	if err != nil {
		return resp, errors.NewUnsupportedTypeError(ep.ID, string(ep.Type))
	}

	def, err := d.resolve(ep, req)
	if err != nil && !errors.IsValidation(err) {
		return resp, err
	}

	rec := model.APIQueryRecord{
		ID:           uuid.NewString(),
		EndpointID:   ep.ID,
		DefinitionID: req.DefinitionID,
		Method:       def.Method,
		Path:         def.Path,
		Body:         model.CloneMap(req.Body),
		Response:     map[string]any{},
	}

	params := req.Body
	if params == nil {
		params = map[string]any{}
	}

	var wire *adapter.Request
	if err == nil {
		wire, err = a.Build(def, ep, params)
	}
	if err != nil {
		return d.rejected(ctx, ep, rec, resp, err)
	}
	rec.Path = wire.Path

	start := time.Now()
	res, bytes := d.send(ctx, a, ep, req.Timeout(), wire)
	elapsed := time.Since(start)

	resp.Status = res.Status
	if res.Headers != nil {
		resp.Headers = res.Headers
	}
	resp.JSON = res.JSON
	resp.Text = res.Text
	resp.ElapsedMs = elapsed.Milliseconds()
	resp.Error = res.Err

	rec.Status = res.Status
	rec.ElapsedMs = resp.ElapsedMs
	rec.Error = res.Err
	switch {
	case res.JSON != nil:
		rec.Response["json"] = res.JSON
	case res.Text != "":
		rec.Response["text"] = res.Text
	}

	errType := ""
	if res.Failed() {
		errType = res.ErrType.String()
	}
	d.metrics.RecordDispatch(string(ep.Type), res.Status, elapsed, errType)
	d.metrics.RecordBytes(bytes)
	d.log.DispatchEvent(logger.Dispatch{
		EndpointID:   ep.ID,
		DefinitionID: rec.DefinitionID,
		LogID:        rec.ID,
		Method:       rec.Method,
		Path:         rec.Path,
		Status:       res.Status,
		Elapsed:      elapsed,
		Error:        res.Err,
	})

	return d.complete(ctx, ep, rec, resp, !res.Failed())
}

// resolve picks the definition a request addresses. With a definition id,
// method and path must be empty or match the definition. Without one, the
// request is ad hoc and its placeholders become the required params.
func (d *Dispatcher) resolve(ep model.Endpoint, req model.ExplorerRequest) (model.APIDefinition, error) {
	if req.DefinitionID == "" {
		def := model.APIDefinition{
			Service: string(ep.Type),
			Method:  model.NormalizeMethod(req.Method),
			Path:    req.Path,
		}
		if req.Method == "" || req.Path == "" {
			return def, errors.NewValidationError(ep.ID, "method and path are required without a definitionId")
		}
		def.Params = def.Placeholders()
		return def, nil
	}

	def, err := d.catalog.Lookup(string(ep.Type), req.DefinitionID)
	if err != nil {
		return model.APIDefinition{}, err
	}

	if req.Method != "" && !strings.EqualFold(model.NormalizeMethod(req.Method), def.Method) {
		return def, errors.NewValidationError(ep.ID,
			fmt.Sprintf("method %q conflicts with definition %s method %q", req.Method, def.ID, def.Method))
	}
	if req.Path != "" && req.Path != def.Path {
		return def, errors.NewValidationError(ep.ID,
			fmt.Sprintf("path %q conflicts with definition %s path %q", req.Path, def.ID, def.Path))
	}
	return def, nil
}

// send performs the network stage under the request deadline. Waiting for
// a limiter slot counts toward the deadline.
func (d *Dispatcher) send(ctx context.Context, a adapter.Adapter, ep model.Endpoint, timeout time.Duration, wire *adapter.Request) (adapter.Result, int64) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	release, err := d.limiter.Acquire(ctx, ep.ID)
	if err != nil {
		return failure(err, ep.ID), 0
	}
	defer release()

	d.metrics.AddInFlight(1)
	raw, err := a.Send(ctx, ep, wire)
	d.metrics.AddInFlight(-1)
	if err != nil {
		return failure(err, ep.ID), 0
	}

	size := int64(len(raw.Body))
	for _, m := range raw.Messages {
		size += int64(len(m))
	}
	return a.Normalize(raw), size
}

// failure converts a network-stage error into a result with neither json
// nor text.
func failure(err error, endpointID string) adapter.Result {
	cat := errors.Categorize(err, endpointID)
	return adapter.Result{Err: errors.Describe(cat), ErrType: cat.Type}
}

// rejected records a request that never reached the network.
func (d *Dispatcher) rejected(ctx context.Context, ep model.Endpoint, rec model.APIQueryRecord,
	resp model.ExplorerResponse, cause error) (model.ExplorerResponse, error) {

	msg := errors.Message(cause)
	resp.Error = msg
	rec.Error = msg

	d.metrics.RecordDispatch(string(ep.Type), 0, 0, errors.GetErrorType(cause).String())
	d.log.DispatchEvent(logger.Dispatch{
		EndpointID:   ep.ID,
		DefinitionID: rec.DefinitionID,
		LogID:        rec.ID,
		Method:       rec.Method,
		Path:         rec.Path,
		Error:        msg,
	})

	resp, err := d.complete(ctx, ep, rec, resp, false)
	if err != nil {
		return resp, err
	}
	return resp, cause
}

// complete appends the ledger record and forwards the outcome.
func (d *Dispatcher) complete(ctx context.Context, ep model.Endpoint, rec model.APIQueryRecord,
	resp model.ExplorerResponse, success bool) (model.ExplorerResponse, error) {

	// The record is written even when the caller has gone away.
	ctx = context.WithoutCancel(ctx)

	rec.Timestamp = d.now()
	if err := d.ledger.Append(ctx, rec); err != nil {
		d.log.ErrorEvent(err, ep.ID, "ledger_append")
		return resp, err
	}
	d.metrics.RecordLedgerAppend()
	resp.LogID = rec.ID

	if d.inventory != nil {
		if _, err := d.inventory.Record(ctx, ep.ID, success, rec.Timestamp); err != nil {
			if errors.IsNotFound(err) {
				d.log.WithEndpoint(ep.ID, string(ep.Type)).Debug("Endpoint removed before the outcome was recorded")
			} else {
				d.log.ErrorEvent(err, ep.ID, "inventory_record")
			}
		}
	}
	return resp, nil
}
