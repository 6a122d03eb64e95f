package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/PentesterFlow/OpenExplorer/internal/errors"
)

// normalizeHTTP classifies the body as JSON or text and flags HTTP failures.
func normalizeHTTP(raw *Raw) Result {
	res := Result{
		Status:  raw.Status,
		Headers: headerMap(raw.Header),
	}

	if raw.Truncated {
		res.Text = string(raw.Body)
		res.Err = fmt.Sprintf("response exceeds %d bytes", raw.Limit)
		res.ErrType = errors.Protocol
		return res
	}

	if v, ok := parseJSON(raw.Body); ok {
		res.JSON = v
	} else {
		res.Text = string(raw.Body)
	}

	if msg := errors.CategorizeHTTPStatus(raw.Status, http.StatusText(raw.Status)); msg != "" {
		res.Err = msg
		res.ErrType = errors.Protocol
	}
	return res
}

// parseJSON decodes body when it holds exactly one JSON value other than
// null. A bare null carries no value and is kept as text.
func parseJSON(body []byte) (any, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() || v == nil {
		return nil, false
	}
	return v, true
}

func headerMap(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, vs := range h {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
