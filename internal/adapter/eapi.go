package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/PentesterFlow/OpenExplorer/internal/errors"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// EapiPath is the fixed JSON-RPC path of the EOS command API.
const EapiPath = "/command-api"

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	ID      string         `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      any             `json:"id"`
}

// Eapi speaks JSON-RPC 2.0 runCmds to the EOS command API.
type Eapi struct {
	transport *Transport
}

// NewEapi creates the EAPI adapter.
func NewEapi(t *Transport) *Eapi {
	return &Eapi{transport: t}
}

// Type implements Adapter.
func (a *Eapi) Type() model.EndpointType { return model.EndpointEAPI }

// Build wraps the commands in a runCmds envelope posted to /command-api
// whatever the definition path says.
func (a *Eapi) Build(def model.APIDefinition, ep model.Endpoint, params map[string]any) (*Request, error) {
	if err := checkContract(a, def, ep, params); err != nil {
		return nil, err
	}

	cmds, err := eapiCommands(params["cmds"])
	if err != nil {
		return nil, errors.NewValidationError(ep.ID, err.Error())
	}

	rpcParams := map[string]any{"cmds": cmds}
	if rpcParams["version"], err = eapiVersion(params); err != nil {
		return nil, errors.NewValidationError(ep.ID, err.Error())
	}
	format := "json"
	if f, ok := params["format"].(string); ok && f != "" {
		if f != "json" && f != "text" {
			return nil, errors.NewValidationError(ep.ID, `parameter "format" must be json or text`)
		}
		format = f
	}
	rpcParams["format"] = format
	for _, name := range []string{"autoComplete", "expandAliases"} {
		b, err := boolParam(params, name, true)
		if err != nil {
			return nil, errors.NewValidationError(ep.ID, err.Error())
		}
		rpcParams[name] = b
	}
	if ts, ok := params["timestamps"].(bool); ok {
		rpcParams["timestamps"] = ts
	}

	method := def.Method
	if method == "" || model.IsHTTPVerb(method) {
		method = "runCmds"
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  rpcParams,
		ID:      uuid.NewString(),
	})
	if err != nil {
		return nil, errors.NewValidationError(ep.ID, "failed to encode request: "+err.Error())
	}

	target, err := joinURL(ep.URL, EapiPath, nil)
	if err != nil {
		return nil, err
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	setBasicAuth(header, ep)

	return &Request{
		Method: http.MethodPost,
		URL:    target,
		Path:   EapiPath,
		Header: header,
		Body:   body,
	}, nil
}

// Send implements Adapter.
func (a *Eapi) Send(ctx context.Context, ep model.Endpoint, req *Request) (*Raw, error) {
	return a.transport.Do(ctx, ep, req)
}

// Normalize requires a JSON-RPC envelope on success statuses and surfaces
// a JSON-RPC error as the call error.
func (a *Eapi) Normalize(raw *Raw) Result {
	res := normalizeHTTP(raw)
	if res.Failed() {
		return res
	}

	if res.JSON == nil {
		res.Err = "invalid JSON-RPC response: body is not JSON"
		res.ErrType = errors.Protocol
		return res
	}

	var env rpcResponse
	obj, isObject := res.JSON.(map[string]any)
	_, hasResult := obj["result"]
	_, hasError := obj["error"]
	if !isObject || (!hasResult && !hasError) || json.Unmarshal(raw.Body, &env) != nil {
		res.Err = "invalid JSON-RPC response: missing result and error"
		res.ErrType = errors.Protocol
		return res
	}

	if env.Error != nil {
		res.Err = fmt.Sprintf("JSON-RPC error %d: %s", env.Error.Code, env.Error.Message)
		res.ErrType = errors.Protocol
	}
	return res
}

// HealthCheck runs show version.
func (a *Eapi) HealthCheck(ctx context.Context, ep model.Endpoint) model.ConnectionTestResult {
	if ep.Username == "" || ep.Password == "" {
		return missingCredentials("username and password are required for eapi endpoints")
	}
	def := model.APIDefinition{ID: "health", Service: string(model.EndpointEAPI), Method: "runCmds", Path: EapiPath}
	return runHealthCheck(ctx, a, ep, def, map[string]any{"cmds": []any{"show version"}}, eapiVersionDetails)
}

// eapiVersionDetails extracts the show version fields worth showing.
func eapiVersionDetails(res Result) any {
	obj, _ := res.JSON.(map[string]any)
	results, _ := obj["result"].([]any)
	if len(results) == 0 {
		return nil
	}
	first, _ := results[0].(map[string]any)
	details := make(map[string]any)
	for _, k := range []string{"modelName", "version", "serialNumber", "systemMacAddress", "hardwareRevision"} {
		if v, ok := first[k]; ok {
			details[k] = v
		}
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// eapiCommands accepts a single command, a list of commands, or a list
// mixing commands and {"cmd": ..., "input": ...} objects.
func eapiCommands(v any) ([]any, error) {
	switch x := v.(type) {
	case string:
		if x == "" {
			return nil, fmt.Errorf(`parameter "cmds" must not be empty`)
		}
		return []any{x}, nil
	case []string:
		out := make([]any, 0, len(x))
		for _, c := range x {
			out = append(out, c)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf(`parameter "cmds" must not be empty`)
		}
		return out, nil
	case []any:
		if len(x) == 0 {
			return nil, fmt.Errorf(`parameter "cmds" must not be empty`)
		}
		for i, c := range x {
			switch cmd := c.(type) {
			case string:
			case map[string]any:
				if _, ok := cmd["cmd"].(string); !ok {
					return nil, fmt.Errorf(`parameter "cmds"[%d] has no "cmd" string`, i)
				}
			default:
				return nil, fmt.Errorf(`parameter "cmds"[%d] must be a string or object`, i)
			}
		}
		return x, nil
	default:
		return nil, fmt.Errorf(`parameter "cmds" must be a string or a list of strings`)
	}
}

func eapiVersion(params map[string]any) (any, error) {
	if s, ok := params["version"].(string); ok && s == "latest" {
		return s, nil
	}
	v, err := intParam(params, "version", 1)
	if err != nil {
		return nil, err
	}
	return v, nil
}
