// Package model defines the wire types exchanged between the explorer engine
// and its callers.
package model

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// EndpointType selects the protocol adapter used for an endpoint.
type EndpointType string

// Known endpoint types.
const (
	EndpointEAPI      EndpointType = "eapi"
	EndpointCV        EndpointType = "cloudvision"
	EndpointEOSREST   EndpointType = "eos_rest"
	EndpointTelemetry EndpointType = "telemetry"
)

// EndpointTypes lists every supported endpoint type in catalog order.
var EndpointTypes = []EndpointType{EndpointEAPI, EndpointCV, EndpointEOSREST, EndpointTelemetry}

// Valid reports whether t is one of the known endpoint types.
func (t EndpointType) Valid() bool {
	switch t {
	case EndpointEAPI, EndpointCV, EndpointEOSREST, EndpointTelemetry:
		return true
	default:
		return false
	}
}

// UsesToken reports whether the service authenticates with a bearer token
// rather than username/password.
func (t EndpointType) UsesToken() bool {
	return t == EndpointCV || t == EndpointTelemetry
}

// Inventory / endpoint status values.
const (
	StatusUnknown     = "unknown"
	StatusHealthy     = "healthy"
	StatusDegraded    = "degraded"
	StatusUnreachable = "unreachable"
)

// Endpoint represents an Arista device or CloudVision controller.
type Endpoint struct {
	ID        string       `json:"id" yaml:"id"`
	Name      string       `json:"name" yaml:"name"`
	Type      EndpointType `json:"type" yaml:"type"`
	URL       string       `json:"url" yaml:"url"`
	Username  string       `json:"username,omitempty" yaml:"username,omitempty"`
	Password  string       `json:"password,omitempty" yaml:"password,omitempty"`
	Token     string       `json:"token,omitempty" yaml:"token,omitempty"`
	Tags      []string     `json:"tags" yaml:"tags"`
	TLSVerify bool         `json:"tlsVerify" yaml:"tlsVerify"`
	Created   time.Time    `json:"created" yaml:"created"`
	Status    string       `json:"status,omitempty" yaml:"status,omitempty"`
}

// Validate checks the fields every endpoint must carry.
func (e Endpoint) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("endpoint id is required")
	}
	if e.Name == "" {
		return fmt.Errorf("endpoint name is required")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unsupported endpoint type %q", e.Type)
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("endpoint url must start with http://, https://, ws:// or wss://")
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint url has no host")
	}
	return nil
}

// Clone returns a copy that shares no slices with e.
func (e Endpoint) Clone() Endpoint {
	if e.Tags != nil {
		e.Tags = append([]string(nil), e.Tags...)
	}
	return e
}

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// APIDefinition describes one catalog operation.
type APIDefinition struct {
	ID          string   `json:"id" yaml:"id"`
	Service     string   `json:"service" yaml:"service"`
	Method      string   `json:"method" yaml:"method"`
	Path        string   `json:"path" yaml:"path"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Params      []string `json:"params" yaml:"params"`
	Category    string   `json:"category,omitempty" yaml:"category,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Placeholders returns the {name} segments of the path template in order.
func (d APIDefinition) Placeholders() []string {
	return PathPlaceholders(d.Path)
}

// HasParam reports whether name is part of the parameter contract.
func (d APIDefinition) HasParam(name string) bool {
	for _, p := range d.Params {
		if p == name {
			return true
		}
	}
	return false
}

// Validate enforces that every path placeholder is a declared parameter.
func (d APIDefinition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("definition id is required")
	}
	if !EndpointType(d.Service).Valid() {
		return fmt.Errorf("definition %s: unknown service %q", d.ID, d.Service)
	}
	if d.Method == "" {
		return fmt.Errorf("definition %s: method is required", d.ID)
	}
	for _, ph := range d.Placeholders() {
		if !d.HasParam(ph) {
			return fmt.Errorf("definition %s: path placeholder {%s} is not a declared param", d.ID, ph)
		}
	}
	return nil
}

// NormalizeMethod upper-cases HTTP verbs and leaves RPC method names as given.
func NormalizeMethod(method string) string {
	method = strings.TrimSpace(method)
	if IsHTTPVerb(method) {
		return strings.ToUpper(method)
	}
	return method
}

// IsHTTPVerb reports whether method names an HTTP verb, in any case.
func IsHTTPVerb(method string) bool {
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case "GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS":
		return true
	}
	return false
}

// PathPlaceholders extracts {name} segments from a path template.
func PathPlaceholders(path string) []string {
	matches := placeholderRe.FindAllStringSubmatch(path, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// APICatalog is the complete enumerated API surface, partitioned by service.
type APICatalog struct {
	EAPI        map[string]APIDefinition `json:"eapi" yaml:"eapi"`
	CloudVision map[string]APIDefinition `json:"cloudvision" yaml:"cloudvision"`
	EOSREST     map[string]APIDefinition `json:"eos_rest" yaml:"eos_rest"`
	Telemetry   map[string]APIDefinition `json:"telemetry" yaml:"telemetry"`
	LastUpdated time.Time                `json:"lastUpdated" yaml:"lastUpdated"`
}

// NewAPICatalog returns a catalog with all partitions allocated.
func NewAPICatalog() APICatalog {
	return APICatalog{
		EAPI:        make(map[string]APIDefinition),
		CloudVision: make(map[string]APIDefinition),
		EOSREST:     make(map[string]APIDefinition),
		Telemetry:   make(map[string]APIDefinition),
		LastUpdated: time.Now().UTC(),
	}
}

// Partition returns the definitions of one service, or nil for unknown services.
func (c APICatalog) Partition(service string) map[string]APIDefinition {
	switch EndpointType(service) {
	case EndpointEAPI:
		return c.EAPI
	case EndpointCV:
		return c.CloudVision
	case EndpointEOSREST:
		return c.EOSREST
	case EndpointTelemetry:
		return c.Telemetry
	default:
		return nil
	}
}

// Add stores def in the partition named by its service.
func (c *APICatalog) Add(def APIDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	part := c.Partition(def.Service)
	if part == nil {
		switch EndpointType(def.Service) {
		case EndpointEAPI:
			c.EAPI = make(map[string]APIDefinition)
		case EndpointCV:
			c.CloudVision = make(map[string]APIDefinition)
		case EndpointEOSREST:
			c.EOSREST = make(map[string]APIDefinition)
		case EndpointTelemetry:
			c.Telemetry = make(map[string]APIDefinition)
		}
		part = c.Partition(def.Service)
	}
	part[def.ID] = def
	return nil
}

// Len returns the number of definitions across all partitions.
func (c APICatalog) Len() int {
	return len(c.EAPI) + len(c.CloudVision) + len(c.EOSREST) + len(c.Telemetry)
}

// DefaultTimeoutMs is applied when an ExplorerRequest carries no timeout.
const DefaultTimeoutMs = 30000

// ExplorerRequest is a request to run one API call against one endpoint.
//
// DefinitionID is the resolution point. Method and Path are either empty,
// equal to the definition's method and path template, or (with no
// DefinitionID) describe an ad-hoc call.
type ExplorerRequest struct {
	EndpointID   string         `json:"endpointId" yaml:"endpointId"`
	DefinitionID string         `json:"definitionId,omitempty" yaml:"definitionId,omitempty"`
	Method       string         `json:"method,omitempty" yaml:"method,omitempty"`
	Path         string         `json:"path,omitempty" yaml:"path,omitempty"`
	Body         map[string]any `json:"body,omitempty" yaml:"body,omitempty"`
	TimeoutMs    int            `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
}

// Timeout returns the request deadline, falling back to DefaultTimeoutMs.
func (r ExplorerRequest) Timeout() time.Duration {
	if r.TimeoutMs > 0 {
		return time.Duration(r.TimeoutMs) * time.Millisecond
	}
	return DefaultTimeoutMs * time.Millisecond
}

// ExplorerResponse is the normalized result of a dispatched request.
// At most one of JSON and Text is populated.
type ExplorerResponse struct {
	Status     int                 `json:"status" yaml:"status"`
	Headers    map[string][]string `json:"headers" yaml:"headers"`
	JSON       any                 `json:"json,omitempty" yaml:"json,omitempty"`
	Text       string              `json:"text,omitempty" yaml:"text,omitempty"`
	ElapsedMs  int64               `json:"elapsedMs" yaml:"elapsedMs"`
	EndpointID string              `json:"endpointId" yaml:"endpointId"`
	LogID      string              `json:"logId" yaml:"logId"`
	Error      string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether the call did not complete as a valid protocol response.
func (r ExplorerResponse) Failed() bool {
	return r.Error != ""
}

// APIQueryRecord is an immutable ledger entry for one dispatched request.
type APIQueryRecord struct {
	ID           string         `json:"id" yaml:"id"`
	EndpointID   string         `json:"endpointId" yaml:"endpointId"`
	DefinitionID string         `json:"definitionId,omitempty" yaml:"definitionId,omitempty"`
	Method       string         `json:"method" yaml:"method"`
	Path         string         `json:"path" yaml:"path"`
	Body         map[string]any `json:"body,omitempty" yaml:"body,omitempty"`
	Status       int            `json:"status" yaml:"status"`
	Response     map[string]any `json:"response" yaml:"response"`
	Timestamp    time.Time      `json:"timestamp" yaml:"timestamp"`
	ElapsedMs    int64          `json:"elapsedMs" yaml:"elapsedMs"`
	Error        string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Clone returns a deep copy of r. Body and Response share nothing with r.
func (r APIQueryRecord) Clone() APIQueryRecord {
	r.Body = CloneMap(r.Body)
	r.Response = CloneMap(r.Response)
	return r
}

// CloneMap deep-copies a decoded JSON object. Nested maps and slices are
// copied; other values are shared.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies the composite values JSON decoding and request
// bodies produce.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	default:
		return v
	}
}

// ConnectionTestResult is the outcome of a health check.
type ConnectionTestResult struct {
	Success    bool   `json:"success" yaml:"success"`
	Message    string `json:"message" yaml:"message"`
	StatusCode int    `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	ElapsedMs  int64  `json:"elapsedMs" yaml:"elapsedMs"`
	Details    any    `json:"details,omitempty" yaml:"details,omitempty"`
}

// DeviceInventory is the health scorecard kept for each endpoint.
type DeviceInventory struct {
	ID           string     `json:"id" yaml:"id"`
	Name         string     `json:"name" yaml:"name"`
	DeviceType   string     `json:"deviceType" yaml:"deviceType"`
	URL          string     `json:"url" yaml:"url"`
	Username     string     `json:"username,omitempty" yaml:"username,omitempty"`
	Type         string     `json:"type" yaml:"type"`
	Status       string     `json:"status" yaml:"status"`
	AddedAt      time.Time  `json:"addedAt" yaml:"addedAt"`
	LastTested   *time.Time `json:"lastTested,omitempty" yaml:"lastTested,omitempty"`
	TestCount    int        `json:"testCount" yaml:"testCount"`
	SuccessCount int        `json:"successCount" yaml:"successCount"`
	Notes        string     `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// SuccessRate returns the fraction of successful outcomes, or 0 if untested.
func (d DeviceInventory) SuccessRate() float64 {
	if d.TestCount == 0 {
		return 0
	}
	return float64(d.SuccessCount) / float64(d.TestCount)
}
