// Package adapter translates explorer requests into the wire format of each
// Arista API style and normalizes what comes back.
package adapter

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PentesterFlow/OpenExplorer/internal/errors"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// Adapter is implemented once per endpoint type.
type Adapter interface {
	Type() model.EndpointType
	// Build resolves a definition and caller parameters into a wire request.
	// It never touches the network.
	Build(def model.APIDefinition, ep model.Endpoint, params map[string]any) (*Request, error)
	// Send performs the single blocking network call of a dispatch.
	Send(ctx context.Context, ep model.Endpoint, req *Request) (*Raw, error)
	// Normalize turns a raw response into the common result shape.
	Normalize(raw *Raw) Result
	// HealthCheck runs the cheapest read-only call for the protocol.
	HealthCheck(ctx context.Context, ep model.Endpoint) model.ConnectionTestResult
}

// Request is an outbound call produced by Build.
type Request struct {
	Method string // HTTP method on the wire
	URL    string
	Path   string // resolved path, recorded in the ledger
	Header http.Header
	Body   []byte
	Stream *StreamSpec // set for telemetry subscriptions
}

// StreamSpec describes a telemetry collection window.
type StreamSpec struct {
	Subscribe   []byte
	Window      time.Duration
	MaxMessages int
}

// Raw is an un-normalized transport response.
type Raw struct {
	Status    int
	Header    http.Header
	Body      []byte
	Messages  [][]byte // telemetry frames in arrival order
	Truncated bool
	Limit     int64
}

// Result is the normalized response of one call. Err is non-empty iff the
// call did not complete as a valid protocol response.
type Result struct {
	Status  int
	Headers map[string][]string
	JSON    any
	Text    string
	Err     string
	ErrType errors.ErrorType
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool {
	return r.Err != ""
}

// Registry is the closed set of adapters keyed by endpoint type.
type Registry struct {
	adapters map[model.EndpointType]Adapter
}

// NewRegistry creates the four protocol adapters sharing one transport.
func NewRegistry(t *Transport) *Registry {
	if t == nil {
		t = NewTransport(DefaultTransportConfig())
	}
	return &Registry{adapters: map[model.EndpointType]Adapter{
		model.EndpointEAPI:      NewEapi(t),
		model.EndpointCV:        NewCloudVision(t),
		model.EndpointEOSREST:   NewEosRest(t),
		model.EndpointTelemetry: NewTelemetry(t),
	}}
}

// For returns the adapter for t, or an UnsupportedEndpointType error.
func (r *Registry) For(t model.EndpointType) (Adapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, errors.NewUnsupportedTypeError("", string(t))
	}
	return a, nil
}

// =============================================================================
// Build helpers
// =============================================================================

// checkContract enforces the adapter/endpoint match and the presence of
// every declared parameter.
func checkContract(a Adapter, def model.APIDefinition, ep model.Endpoint, params map[string]any) error {
	if ep.Type != a.Type() {
		return errors.NewValidationError(ep.ID,
			fmt.Sprintf("endpoint type %q does not match %s adapter", ep.Type, a.Type()))
	}
	for _, name := range def.Params {
		if _, ok := params[name]; !ok {
			return errors.NewValidationError(ep.ID, fmt.Sprintf("missing required parameter %q", name))
		}
	}
	for _, ph := range def.Placeholders() {
		if _, ok := params[ph]; !ok {
			return errors.NewValidationError(ep.ID, fmt.Sprintf("missing required parameter %q", ph))
		}
	}
	return nil
}

// resolvePath substitutes every {name} in path with the escaped value of
// params[name] and reports which params were consumed.
func resolvePath(path string, params map[string]any) (string, map[string]bool) {
	used := make(map[string]bool)
	for _, name := range model.PathPlaceholders(path) {
		v, ok := params[name]
		if !ok {
			continue
		}
		used[name] = true
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(scalar(v)))
	}
	return path, used
}

// joinURL appends an escaped path (which may carry a query string) to base
// and merges in extra query values.
func joinURL(base, path string, extra url.Values) (string, error) {
	if path != "" && !strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "?") {
		path = "/" + path
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return "", errors.NewValidationError("", fmt.Sprintf("invalid request url: %v", err))
	}
	if len(extra) > 0 {
		q := u.Query()
		for k, vs := range extra {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// setBasicAuth adds basic credentials when the endpoint has a username.
func setBasicAuth(h http.Header, ep model.Endpoint) {
	if ep.Username == "" {
		return
	}
	token := base64.StdEncoding.EncodeToString([]byte(ep.Username + ":" + ep.Password))
	h.Set("Authorization", "Basic "+token)
}

// setBearer adds the endpoint token as a bearer credential.
func setBearer(h http.Header, ep model.Endpoint) {
	if ep.Token != "" {
		h.Set("Authorization", "Bearer "+ep.Token)
	}
}

// scalar renders a parameter value for a path segment or query string.
func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// queryValues renders params as a query string, expanding lists.
func queryValues(params map[string]any, skip map[string]bool) url.Values {
	q := make(url.Values)
	keys := make([]string, 0, len(params))
	for k := range params {
		if !skip[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch x := params[k].(type) {
		case []any:
			for _, item := range x {
				q.Add(k, scalar(item))
			}
		case []string:
			for _, item := range x {
				q.Add(k, item)
			}
		default:
			q.Add(k, scalar(x))
		}
	}
	return q
}

// intParam reads an integer parameter given as a number or numeric string.
func intParam(params map[string]any, name string, def int) (int, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case float64:
		return int(x), nil
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("parameter %q must be an integer", name)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("parameter %q must be an integer", name)
	}
}

// boolParam reads a boolean parameter given as a bool or string.
func boolParam(params map[string]any, name string, def bool) (bool, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, fmt.Errorf("parameter %q must be a boolean", name)
		}
		return b, nil
	default:
		return false, fmt.Errorf("parameter %q must be a boolean", name)
	}
}
