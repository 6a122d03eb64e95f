package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/PentesterFlow/OpenExplorer/internal/errors"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// Telemetry defaults.
const (
	TelemetryHealthPath      = "/aeris/v1/connection"
	DefaultTelemetryWindow   = 2 * time.Second
	DefaultTelemetryMessages = 100
)

// telemetryControls are params that shape the collection rather than the
// subscription.
var telemetryControls = map[string]bool{"path": true, "durationMs": true, "maxMessages": true}

type subscribeFrame struct {
	Subscribe subscription `json:"subscribe"`
}

type subscription struct {
	Path   string         `json:"path"`
	Params map[string]any `json:"params,omitempty"`
}

// Telemetry opens a streaming subscription over a websocket and collects
// updates for a bounded window.
type Telemetry struct {
	transport *Transport
}

// NewTelemetry creates the telemetry adapter.
func NewTelemetry(t *Transport) *Telemetry {
	return &Telemetry{transport: t}
}

// Type implements Adapter.
func (a *Telemetry) Type() model.EndpointType { return model.EndpointTelemetry }

// Build produces a stream-open request: the websocket URL, the subscribe
// frame and the collection window.
func (a *Telemetry) Build(def model.APIDefinition, ep model.Endpoint, params map[string]any) (*Request, error) {
	if err := checkContract(a, def, ep, params); err != nil {
		return nil, err
	}

	path, used := resolvePath(def.Path, params)

	window, err := intParam(params, "durationMs", int(DefaultTelemetryWindow/time.Millisecond))
	if err != nil {
		return nil, errors.NewValidationError(ep.ID, err.Error())
	}
	if window <= 0 {
		return nil, errors.NewValidationError(ep.ID, `parameter "durationMs" must be positive`)
	}
	maxMessages, err := intParam(params, "maxMessages", DefaultTelemetryMessages)
	if err != nil {
		return nil, errors.NewValidationError(ep.ID, err.Error())
	}
	if maxMessages <= 0 {
		return nil, errors.NewValidationError(ep.ID, `parameter "maxMessages" must be positive`)
	}

	sub := subscription{Path: path}
	if p, ok := params["path"]; ok && !used["path"] {
		s, ok := p.(string)
		if !ok || s == "" {
			return nil, errors.NewValidationError(ep.ID, `parameter "path" must be a non-empty string`)
		}
		sub.Path = s
	}
	for k, v := range params {
		if used[k] || telemetryControls[k] {
			continue
		}
		if sub.Params == nil {
			sub.Params = make(map[string]any)
		}
		sub.Params[k] = v
	}

	frame, err := json.Marshal(subscribeFrame{Subscribe: sub})
	if err != nil {
		return nil, errors.NewValidationError(ep.ID, "failed to encode subscription: "+err.Error())
	}

	target, err := a.target(ep, path)
	if err != nil {
		return nil, err
	}

	header := make(http.Header)
	setBearer(header, ep)

	return &Request{
		Method: http.MethodGet,
		URL:    target,
		Path:   path,
		Header: header,
		Stream: &StreamSpec{
			Subscribe:   frame,
			Window:      time.Duration(window) * time.Millisecond,
			MaxMessages: maxMessages,
		},
	}, nil
}

func (a *Telemetry) target(ep model.Endpoint, path string) (string, error) {
	base, err := wsURL(ep.URL)
	if err != nil {
		return "", errors.NewValidationError(ep.ID, fmt.Sprintf("invalid endpoint url: %v", err))
	}
	return joinURL(base, path, nil)
}

// Send implements Adapter.
func (a *Telemetry) Send(ctx context.Context, ep model.Endpoint, req *Request) (*Raw, error) {
	return a.transport.Stream(ctx, ep, req)
}

// Normalize reports the collected frames as a JSON list. Frames that are
// not JSON are kept as strings. A refused upgrade is always a failure.
func (a *Telemetry) Normalize(raw *Raw) Result {
	if raw.Status != http.StatusSwitchingProtocols {
		res := normalizeHTTP(raw)
		if !res.Failed() {
			res.Err = fmt.Sprintf("websocket upgrade refused: HTTP %d", raw.Status)
			res.ErrType = errors.Protocol
		}
		return res
	}

	res := Result{Status: raw.Status, Headers: headerMap(raw.Header)}
	frames := make([]any, 0, len(raw.Messages))
	for _, msg := range raw.Messages {
		if v, ok := parseJSON(msg); ok {
			frames = append(frames, v)
		} else {
			frames = append(frames, string(msg))
		}
	}
	res.JSON = frames
	if raw.Truncated {
		res.Err = fmt.Sprintf("stream exceeds %d bytes", raw.Limit)
		res.ErrType = errors.Protocol
	}
	return res
}

// HealthCheck completes a websocket handshake on the connection path.
func (a *Telemetry) HealthCheck(ctx context.Context, ep model.Endpoint) model.ConnectionTestResult {
	if ep.Token == "" {
		return missingCredentials("token is required for telemetry endpoints")
	}

	start := time.Now()
	elapsed := func() int64 { return time.Since(start).Milliseconds() }

	target, err := a.target(ep, TelemetryHealthPath)
	if err != nil {
		return model.ConnectionTestResult{Message: err.Error(), ElapsedMs: elapsed()}
	}
	header := make(http.Header)
	setBearer(header, ep)

	raw, err := a.transport.Handshake(ctx, ep, &Request{Method: http.MethodGet, URL: target, Header: header})
	if err != nil {
		return model.ConnectionTestResult{
			Message:   errors.Describe(errors.Categorize(err, ep.ID)),
			ElapsedMs: elapsed(),
		}
	}

	res := a.Normalize(raw)
	out := model.ConnectionTestResult{
		Success:    !res.Failed(),
		StatusCode: res.Status,
		ElapsedMs:  elapsed(),
		Message:    "Connection successful",
	}
	if res.Failed() {
		out.Message = res.Err
	}
	return out
}
