package dispatch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PentesterFlow/OpenExplorer/internal/adapter"
	"github.com/PentesterFlow/OpenExplorer/internal/catalog"
	"github.com/PentesterFlow/OpenExplorer/internal/errors"
	"github.com/PentesterFlow/OpenExplorer/internal/health"
	"github.com/PentesterFlow/OpenExplorer/internal/inventory"
	"github.com/PentesterFlow/OpenExplorer/internal/ledger"
	"github.com/PentesterFlow/OpenExplorer/internal/metrics"
	"github.com/PentesterFlow/OpenExplorer/internal/store"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

type fakeEndpoints map[string]model.Endpoint

func (f fakeEndpoints) Get(id string) (model.Endpoint, error) {
	ep, ok := f[id]
	if !ok {
		return model.Endpoint{}, errors.NewNotFoundError("endpoint", id)
	}
	return ep, nil
}

func (f fakeEndpoints) List() []model.Endpoint {
	out := make([]model.Endpoint, 0, len(f))
	for _, ep := range f {
		out = append(out, ep)
	}
	return out
}

type brokenLedger struct{}

func (brokenLedger) Append(ctx context.Context, rec model.APIQueryRecord) error {
	return errors.NewStorageError("ledger_append", fmt.Errorf("disk full"))
}

type harness struct {
	d      *Dispatcher
	ledger *ledger.Ledger
	inv    *inventory.Tracker
	eps    fakeEndpoints
	hits   *atomic.Int64
	url    string
}

// newHarness starts a device double that answers eAPI on /command-api,
// answers the EOS REST health path, echoes the status code in
// /status/{code}, and hangs on /hang.
func newHarness(t *testing.T) *harness {
	t.Helper()
	hits := &atomic.Int64{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch {
		case r.URL.Path == "/command-api":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"jsonrpc":"2.0","id":"1","result":[{"modelName":"vEOS","version":"4.30.1F"}]}`)
		case r.URL.Path == adapter.EosRestHealthPath:
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"openconfig-system:hostname":"leaf1"}`)
		case strings.HasPrefix(r.URL.Path, "/status/"):
			code, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/status/"))
			w.WriteHeader(code)
			io.WriteString(w, "status "+strconv.Itoa(code))
		case r.URL.Path == "/hang":
			<-r.Context().Done()
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	cat, err := catalog.New(catalog.Builtin())
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}

	mem := store.NewMemoryStore()
	l := ledger.New(mem)
	inv := inventory.New(mem, nil, nil)
	eps := fakeEndpoints{
		"ep_eapi": {ID: "ep_eapi", Name: "leaf1", Type: model.EndpointEAPI, URL: srv.URL, Username: "admin", Password: "pw"},
		"ep_rest": {ID: "ep_rest", Name: "leaf1-rest", Type: model.EndpointEOSREST, URL: srv.URL, Username: "admin", Password: "pw"},
		"ep_ftp":  {ID: "ep_ftp", Name: "legacy", Type: model.EndpointType("ftp"), URL: srv.URL},
	}

	d := New(Config{Endpoints: eps, Catalog: cat, Ledger: l, Inventory: inv})
	return &harness{d: d, ledger: l, inv: inv, eps: eps, hits: hits, url: srv.URL}
}

func (h *harness) records(t *testing.T, endpointID string) []model.APIQueryRecord {
	t.Helper()
	var out []model.APIQueryRecord
	for rec, err := range h.ledger.Records(context.Background(), endpointID) {
		if err != nil {
			t.Fatalf("ledger error = %v", err)
		}
		out = append(out, rec)
	}
	return out
}

// =============================================================================
// Execute Scenarios
// =============================================================================

func TestExecute_EapiShowVersion(t *testing.T) {
	h := newHarness(t)

	resp, err := h.d.Execute(context.Background(), model.ExplorerRequest{
		EndpointID:   "ep_eapi",
		DefinitionID: "show-version",
		Body:         map[string]any{"cmds": []any{"show version"}},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if resp.Status != 200 || resp.Error != "" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.JSON == nil || resp.Text != "" {
		t.Errorf("json/text = %v / %q, want json only", resp.JSON, resp.Text)
	}
	if resp.LogID == "" || resp.EndpointID != "ep_eapi" {
		t.Errorf("LogID = %q, EndpointID = %q", resp.LogID, resp.EndpointID)
	}

	recs := h.records(t, "ep_eapi")
	if len(recs) != 1 {
		t.Fatalf("ledger has %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.ID != resp.LogID || rec.Status != 200 || rec.Method != "runCmds" || rec.Path != "/command-api" {
		t.Errorf("record = %+v", rec)
	}
	if _, ok := rec.Response["json"]; !ok || len(rec.Response) != 1 {
		t.Errorf("record response = %v", rec.Response)
	}
	if rec.DefinitionID != "show-version" {
		t.Errorf("DefinitionID = %q", rec.DefinitionID)
	}

	inv, err := h.inv.Get("ep_eapi")
	if err != nil {
		t.Fatalf("inventory Get() error = %v", err)
	}
	if inv.TestCount != 1 || inv.SuccessCount != 1 || inv.Status != model.StatusHealthy {
		t.Errorf("inventory = %+v", inv)
	}
}

func TestExecute_UnknownEndpoint(t *testing.T) {
	h := newHarness(t)

	_, err := h.d.Execute(context.Background(), model.ExplorerRequest{EndpointID: "missing"})
	if !errors.IsNotFound(err) {
		t.Fatalf("Execute() error = %v, want not found", err)
	}
	if ids, _ := h.ledger.Endpoints(context.Background()); len(ids) != 0 {
		t.Errorf("ledger should be empty, has %v", ids)
	}
}

func TestExecute_UnsupportedType(t *testing.T) {
	h := newHarness(t)

	_, err := h.d.Execute(context.Background(), model.ExplorerRequest{EndpointID: "ep_ftp", Method: "GET", Path: "/"})
	if !errors.IsUnsupported(err) {
		t.Fatalf("Execute() error = %v, want unsupported", err)
	}
	if h.hits.Load() != 0 {
		t.Error("no network call expected")
	}
	if len(h.records(t, "ep_ftp")) != 0 {
		t.Error("no ledger record expected")
	}
}

func TestExecute_ValidationFailure(t *testing.T) {
	h := newHarness(t)

	resp, err := h.d.Execute(context.Background(), model.ExplorerRequest{
		EndpointID:   "ep_eapi",
		DefinitionID: "show-version",
	})
	if !errors.IsValidation(err) {
		t.Fatalf("Execute() error = %v, want validation", err)
	}
	if h.hits.Load() != 0 {
		t.Error("validation failures must not reach the network")
	}
	if resp.Error == "" || resp.LogID == "" || resp.Status != 0 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.JSON != nil || resp.Text != "" {
		t.Error("validation failure should carry neither json nor text")
	}

	recs := h.records(t, "ep_eapi")
	if len(recs) != 1 {
		t.Fatalf("ledger has %d records, want 1", len(recs))
	}
	if recs[0].ElapsedMs != 0 || recs[0].Error == "" {
		t.Errorf("record = %+v", recs[0])
	}
	if !strings.Contains(recs[0].Error, `"cmds"`) {
		t.Errorf("record error = %q, should name the parameter", recs[0].Error)
	}

	inv, _ := h.inv.Get("ep_eapi")
	if inv.TestCount != 1 || inv.SuccessCount != 0 {
		t.Errorf("inventory = %+v", inv)
	}
}

func TestExecute_Timeout(t *testing.T) {
	h := newHarness(t)

	start := time.Now()
	resp, err := h.d.Execute(context.Background(), model.ExplorerRequest{
		EndpointID: "ep_rest",
		Method:     "GET",
		Path:       "/hang",
		TimeoutMs:  50,
	})
	took := time.Since(start)

	if err != nil {
		t.Fatalf("Execute() error = %v, network failures must not escape", err)
	}
	if resp.Error != "timeout" || resp.Status != 0 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.JSON != nil || resp.Text != "" {
		t.Error("timeout should carry neither json nor text")
	}
	if took > time.Second {
		t.Errorf("Execute() took %v, want about 50ms", took)
	}
	if recs := h.records(t, "ep_rest"); len(recs) != 1 || recs[0].Error != "timeout" {
		t.Errorf("ledger = %+v", recs)
	}
}

func TestExecute_TransportFailure(t *testing.T) {
	h := newHarness(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	h.eps["ep_dead"] = model.Endpoint{ID: "ep_dead", Name: "dead", Type: model.EndpointEOSREST, URL: "http://" + addr}

	resp, err := h.d.Execute(context.Background(), model.ExplorerRequest{EndpointID: "ep_dead", Method: "GET", Path: "/x"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Error == "" || resp.Error == "timeout" || resp.Status != 0 {
		t.Errorf("resp = %+v", resp)
	}

	inv, _ := h.inv.Get("ep_dead")
	if inv.Status != model.StatusUnreachable {
		t.Errorf("Status = %s, want unreachable", inv.Status)
	}
}

func TestExecute_HTTPError(t *testing.T) {
	h := newHarness(t)

	resp, err := h.d.Execute(context.Background(), model.ExplorerRequest{EndpointID: "ep_rest", Method: "GET", Path: "/status/404"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Status != 404 || resp.Error != "HTTP 404: Not Found" || resp.Text != "status 404" {
		t.Errorf("resp = %+v", resp)
	}

	recs := h.records(t, "ep_rest")
	if len(recs) != 1 || recs[0].Response["text"] != "status 404" {
		t.Errorf("ledger = %+v", recs)
	}
	inv, _ := h.inv.Get("ep_rest")
	if inv.SuccessCount != 0 || inv.TestCount != 1 {
		t.Errorf("inventory = %+v", inv)
	}
}

// =============================================================================
// Addressing Tests
// =============================================================================

func TestExecute_Addressing(t *testing.T) {
	cmds := map[string]any{"cmds": "show version"}

	tests := []struct {
		name       string
		req        model.ExplorerRequest
		wantType   errors.ErrorType
		wantLedger int
	}{
		{"definition only", model.ExplorerRequest{DefinitionID: "show-version", Body: cmds}, errors.Unknown, 1},
		{"matching method and path", model.ExplorerRequest{DefinitionID: "show-version", Method: "runCmds", Path: "/command-api", Body: cmds}, errors.Unknown, 1},
		{"conflicting method", model.ExplorerRequest{DefinitionID: "show-version", Method: "POST", Body: cmds}, errors.Validation, 1},
		{"conflicting path", model.ExplorerRequest{DefinitionID: "show-version", Path: "/other", Body: cmds}, errors.Validation, 1},
		{"unknown definition", model.ExplorerRequest{DefinitionID: "nope", Body: cmds}, errors.NotFound, 0},
		{"definition of another service", model.ExplorerRequest{DefinitionID: "system-state"}, errors.NotFound, 0},
		{"ad hoc without path", model.ExplorerRequest{Method: "runCmds", Body: cmds}, errors.Validation, 1},
		{"ad hoc", model.ExplorerRequest{Method: "runCmds", Path: "/command-api", Body: cmds}, errors.Unknown, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.req.EndpointID = "ep_eapi"

			_, err := h.d.Execute(context.Background(), tt.req)
			if tt.wantType == errors.Unknown {
				if err != nil {
					t.Fatalf("Execute() error = %v", err)
				}
			} else if errors.GetErrorType(err) != tt.wantType {
				t.Fatalf("Execute() error = %v, want %s", err, tt.wantType)
			}
			if got := len(h.records(t, "ep_eapi")); got != tt.wantLedger {
				t.Errorf("ledger records = %d, want %d", got, tt.wantLedger)
			}
		})
	}
}

func TestExecute_AdHocPlaceholders(t *testing.T) {
	h := newHarness(t)

	resp, err := h.d.Execute(context.Background(), model.ExplorerRequest{
		EndpointID: "ep_rest",
		Method:     "get",
		Path:       "/status/{code}",
		Body:       map[string]any{"code": float64(201)},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Status != 201 {
		t.Errorf("Status = %d, want 201", resp.Status)
	}
	recs := h.records(t, "ep_rest")
	if len(recs) != 1 || recs[0].Path != "/status/201" || recs[0].Method != "GET" {
		t.Errorf("record = %+v", recs)
	}

	// Missing placeholder value is a validation failure.
	_, err = h.d.Execute(context.Background(), model.ExplorerRequest{EndpointID: "ep_rest", Method: "GET", Path: "/status/{code}"})
	if !errors.IsValidation(err) {
		t.Errorf("Execute() error = %v, want validation", err)
	}
}

func TestExecute_RecordBodyDetachedFromCaller(t *testing.T) {
	h := newHarness(t)

	body := map[string]any{
		"cmds":   []any{"show version"},
		"format": "json",
		"opts":   map[string]any{"timestamps": true},
	}
	if _, err := h.d.Execute(context.Background(), model.ExplorerRequest{
		EndpointID:   "ep_eapi",
		DefinitionID: "show-version",
		Body:         body,
	}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	body["cmds"].([]any)[0] = "show running-config"
	body["opts"].(map[string]any)["timestamps"] = false
	body["format"] = "text"
	delete(body, "opts")
	body["extra"] = 1

	recs := h.records(t, "ep_eapi")
	if len(recs) != 1 {
		t.Fatalf("ledger has %d records, want 1", len(recs))
	}
	got := recs[0].Body
	if len(got) != 3 || got["format"] != "json" {
		t.Errorf("record body = %v, want the body as sent", got)
	}
	if cmds, _ := got["cmds"].([]any); len(cmds) != 1 || cmds[0] != "show version" {
		t.Errorf("record cmds = %v, want [show version]", got["cmds"])
	}
	if opts, _ := got["opts"].(map[string]any); opts["timestamps"] != true {
		t.Errorf("record opts = %v, want timestamps=true", got["opts"])
	}

	// Readers get their own copy too.
	recs[0].Body["format"] = "mutated"
	if again := h.records(t, "ep_eapi"); again[0].Body["format"] != "json" {
		t.Errorf("stored body changed through a returned record: %v", again[0].Body)
	}
}

// =============================================================================
// Concurrency / Storage Tests
// =============================================================================

func TestExecute_ConcurrentCountersExact(t *testing.T) {
	h := newHarness(t)
	m := metrics.New()
	d := New(Config{Endpoints: h.eps, Catalog: catalog.Empty(), Ledger: h.ledger, Inventory: h.inv, Metrics: m})
	tester := health.NewTester(health.Config{Endpoints: h.eps, Inventory: h.inv, Metrics: m})

	// Dispatches and connection tests land on the same scorecard at once.
	const (
		calls = 40
		tests = 20
	)
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := 200
			if i%4 == 0 {
				code = 500
			}
			_, err := d.Execute(context.Background(), model.ExplorerRequest{
				EndpointID: "ep_rest",
				Method:     "GET",
				Path:       fmt.Sprintf("/status/%d", code),
			})
			if err != nil {
				t.Errorf("Execute() error = %v", err)
			}
		}(i)
	}
	for i := 0; i < tests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := tester.Test(context.Background(), "ep_rest")
			if err != nil || !res.Success {
				t.Errorf("Test() = %+v, %v", res, err)
			}
		}()
	}
	wg.Wait()

	inv, _ := h.inv.Get("ep_rest")
	wantSuccess := calls*3/4 + tests
	if inv.TestCount != calls+tests || inv.SuccessCount != wantSuccess {
		t.Errorf("counters = %d/%d, want %d/%d", inv.SuccessCount, inv.TestCount, wantSuccess, calls+tests)
	}
	n, _ := h.ledger.Count(context.Background(), "ep_rest")
	if n != calls {
		t.Errorf("ledger count = %d, want %d (tests are not ledgered)", n, calls)
	}

	snap := m.Snapshot()
	if snap.RequestsTotal != calls || snap.LedgerRecords != calls {
		t.Errorf("requests/ledger = %d/%d, want %d", snap.RequestsTotal, snap.LedgerRecords, calls)
	}
	if snap.HealthChecks != tests || snap.HealthFailures != 0 {
		t.Errorf("health checks = %d (failures %d), want %d", snap.HealthChecks, snap.HealthFailures, tests)
	}
}

func TestExecute_LedgerFailureIsHard(t *testing.T) {
	h := newHarness(t)
	d := New(Config{Endpoints: h.eps, Catalog: catalog.Empty(), Ledger: brokenLedger{}})

	resp, err := d.Execute(context.Background(), model.ExplorerRequest{EndpointID: "ep_rest", Method: "GET", Path: "/status/200"})
	if !errors.IsStorage(err) {
		t.Fatalf("Execute() error = %v, want storage", err)
	}
	if resp.LogID != "" {
		t.Error("LogID should be empty when the record was not stored")
	}
}

func TestExecute_CallerCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	resp, err := h.d.Execute(ctx, model.ExplorerRequest{EndpointID: "ep_rest", Method: "GET", Path: "/hang"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Error != "cancelled" {
		t.Errorf("Error = %q, want cancelled", resp.Error)
	}
	if len(h.records(t, "ep_rest")) != 1 {
		t.Error("a cancelled call still leaves one ledger record")
	}
}
