package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/PentesterFlow/OpenExplorer/internal/errors"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// Health check paths.
const (
	CloudVisionHealthPath = "/api/resources/inventory/v1/Devices?limit=1"
	EosRestHealthPath     = "/restconf/data/openconfig-system:system/state"
)

// rest maps a definition directly onto an HTTP request. CloudVision and
// EOS REST differ only in authentication and health path.
type rest struct {
	self      Adapter
	transport *Transport
	auth      func(http.Header, model.Endpoint)
}

func (r *rest) build(def model.APIDefinition, ep model.Endpoint, params map[string]any) (*Request, error) {
	if err := checkContract(r.self, def, ep, params); err != nil {
		return nil, err
	}

	method := model.NormalizeMethod(def.Method)
	if !model.IsHTTPVerb(method) {
		return nil, errors.NewValidationError(ep.ID, fmt.Sprintf("method %q is not an HTTP verb", def.Method))
	}

	path, used := resolvePath(def.Path, params)

	header := make(http.Header)
	header.Set("Accept", "application/json")
	r.auth(header, ep)

	var (
		body   []byte
		target string
		err    error
	)
	switch method {
	case http.MethodGet, http.MethodDelete, http.MethodHead, http.MethodOptions:
		target, err = joinURL(ep.URL, path, queryValues(params, used))
	default:
		target, err = joinURL(ep.URL, path, nil)
		if err == nil {
			body, err = restBody(params, used)
			header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, errors.NewValidationError(ep.ID, err.Error())
	}

	return &Request{
		Method: method,
		URL:    target,
		Path:   path,
		Header: header,
		Body:   body,
	}, nil
}

// restBody encodes the params left after path substitution. A single
// "body" param is sent as-is.
func restBody(params map[string]any, used map[string]bool) ([]byte, error) {
	rest := make(map[string]any, len(params))
	for k, v := range params {
		if !used[k] {
			rest[k] = v
		}
	}
	if explicit, ok := rest["body"]; ok && len(rest) == 1 {
		return json.Marshal(explicit)
	}
	return json.Marshal(rest)
}

func (r *rest) healthCheck(ctx context.Context, ep model.Endpoint, path string) model.ConnectionTestResult {
	def := model.APIDefinition{ID: "health", Service: string(r.self.Type()), Method: http.MethodGet, Path: path}
	return runHealthCheck(ctx, r.self, ep, def, nil, nil)
}

// CloudVision talks to the CloudVision resource APIs with a bearer token.
type CloudVision struct {
	rest
}

// NewCloudVision creates the CloudVision adapter.
func NewCloudVision(t *Transport) *CloudVision {
	a := &CloudVision{}
	a.rest = rest{self: a, transport: t, auth: setBearer}
	return a
}

// Type implements Adapter.
func (a *CloudVision) Type() model.EndpointType { return model.EndpointCV }

// Build implements Adapter.
func (a *CloudVision) Build(def model.APIDefinition, ep model.Endpoint, params map[string]any) (*Request, error) {
	return a.build(def, ep, params)
}

// Send implements Adapter.
func (a *CloudVision) Send(ctx context.Context, ep model.Endpoint, req *Request) (*Raw, error) {
	return a.transport.Do(ctx, ep, req)
}

// Normalize implements Adapter.
func (a *CloudVision) Normalize(raw *Raw) Result {
	return normalizeHTTP(raw)
}

// HealthCheck lists at most one device.
func (a *CloudVision) HealthCheck(ctx context.Context, ep model.Endpoint) model.ConnectionTestResult {
	if ep.Token == "" {
		return missingCredentials("token is required for cloudvision endpoints")
	}
	return a.healthCheck(ctx, ep, CloudVisionHealthPath)
}

// EosRest talks to the on-box REST and RESTCONF APIs with basic auth.
type EosRest struct {
	rest
}

// NewEosRest creates the EOS REST adapter.
func NewEosRest(t *Transport) *EosRest {
	a := &EosRest{}
	a.rest = rest{self: a, transport: t, auth: setBasicAuth}
	return a
}

// Type implements Adapter.
func (a *EosRest) Type() model.EndpointType { return model.EndpointEOSREST }

// Build implements Adapter.
func (a *EosRest) Build(def model.APIDefinition, ep model.Endpoint, params map[string]any) (*Request, error) {
	return a.build(def, ep, params)
}

// Send implements Adapter.
func (a *EosRest) Send(ctx context.Context, ep model.Endpoint, req *Request) (*Raw, error) {
	return a.transport.Do(ctx, ep, req)
}

// Normalize implements Adapter.
func (a *EosRest) Normalize(raw *Raw) Result {
	return normalizeHTTP(raw)
}

// HealthCheck reads the OpenConfig system state.
func (a *EosRest) HealthCheck(ctx context.Context, ep model.Endpoint) model.ConnectionTestResult {
	if ep.Username == "" || ep.Password == "" {
		return missingCredentials("username and password are required for eos_rest endpoints")
	}
	return a.healthCheck(ctx, ep, EosRestHealthPath)
}
