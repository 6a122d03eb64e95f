package model

import (
	"reflect"
	"testing"
	"time"
)

// =============================================================================
// Endpoint Tests
// =============================================================================

func TestEndpoint_Validate(t *testing.T) {
	valid := Endpoint{ID: "ep_1", Name: "leaf1", Type: EndpointEAPI, URL: "https://10.0.0.1"}

	tests := []struct {
		name    string
		mutate  func(*Endpoint)
		wantErr bool
	}{
		{"valid", func(e *Endpoint) {}, false},
		{"websocket url", func(e *Endpoint) { e.Type = EndpointTelemetry; e.URL = "wss://cvp:443" }, false},
		{"missing id", func(e *Endpoint) { e.ID = "" }, true},
		{"missing name", func(e *Endpoint) { e.Name = "" }, true},
		{"unknown type", func(e *Endpoint) { e.Type = "ftp" }, true},
		{"bad scheme", func(e *Endpoint) { e.URL = "ftp://host" }, true},
		{"no host", func(e *Endpoint) { e.URL = "https://" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := valid
			tt.mutate(&ep)
			if err := ep.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEndpoint_Clone(t *testing.T) {
	ep := Endpoint{ID: "ep_1", Tags: []string{"lab"}}
	c := ep.Clone()
	c.Tags[0] = "prod"

	if ep.Tags[0] != "lab" {
		t.Error("Clone() should not share tags")
	}
}

func TestEndpointType_UsesToken(t *testing.T) {
	want := map[EndpointType]bool{
		EndpointEAPI:      false,
		EndpointCV:        true,
		EndpointEOSREST:   false,
		EndpointTelemetry: true,
	}
	for typ, uses := range want {
		if typ.UsesToken() != uses {
			t.Errorf("%s.UsesToken() = %v, want %v", typ, !uses, uses)
		}
	}
}

// =============================================================================
// Definition Tests
// =============================================================================

func TestAPIDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     APIDefinition
		wantErr bool
	}{
		{
			name: "declared placeholder",
			def:  APIDefinition{ID: "get-device", Service: "cloudvision", Method: "GET", Path: "/devices/{id}", Params: []string{"id"}},
		},
		{
			name:    "undeclared placeholder",
			def:     APIDefinition{ID: "get-device", Service: "cloudvision", Method: "GET", Path: "/devices/{id}"},
			wantErr: true,
		},
		{
			name:    "unknown service",
			def:     APIDefinition{ID: "x", Service: "snmp", Method: "GET", Path: "/"},
			wantErr: true,
		},
		{
			name:    "missing method",
			def:     APIDefinition{ID: "x", Service: "eapi", Path: "/command-api"},
			wantErr: true,
		},
		{
			name:    "missing id",
			def:     APIDefinition{Service: "eapi", Method: "runCmds", Path: "/command-api"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.def.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPathPlaceholders(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/command-api", []string{}},
		{"/interfaces/{name}", []string{"name"}},
		{"/a/{ x }/b/{y}", []string{"x", "y"}},
	}
	for _, tt := range tests {
		if got := PathPlaceholders(tt.path); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("PathPlaceholders(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestNormalizeMethod(t *testing.T) {
	tests := map[string]string{
		"get":     "GET",
		" Post ":  "POST",
		"runCmds": "runCmds",
		"":        "",
	}
	for in, want := range tests {
		if got := NormalizeMethod(in); got != want {
			t.Errorf("NormalizeMethod(%q) = %q, want %q", in, got, want)
		}
	}
}

// =============================================================================
// Catalog Tests
// =============================================================================

func TestAPICatalog_Add(t *testing.T) {
	var c APICatalog

	def := APIDefinition{ID: "show-version", Service: "eapi", Method: "runCmds", Path: "/command-api"}
	if err := c.Add(def); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if _, ok := c.Partition("eapi")["show-version"]; !ok {
		t.Error("definition should land in the eapi partition")
	}
	if c.Partition("snmp") != nil {
		t.Error("Partition() of an unknown service should be nil")
	}

	if err := c.Add(APIDefinition{ID: "bad", Service: "eapi", Method: "GET", Path: "/{x}"}); err == nil {
		t.Error("Add() should reject an invalid definition")
	}
	if c.Len() != 1 {
		t.Errorf("Len() after rejected add = %d, want 1", c.Len())
	}
}

// =============================================================================
// Request and Inventory Tests
// =============================================================================

func TestExplorerRequest_Timeout(t *testing.T) {
	if got := (ExplorerRequest{}).Timeout(); got != 30*time.Second {
		t.Errorf("default Timeout() = %v, want 30s", got)
	}
	if got := (ExplorerRequest{TimeoutMs: 250}).Timeout(); got != 250*time.Millisecond {
		t.Errorf("Timeout() = %v, want 250ms", got)
	}
}

func TestDeviceInventory_SuccessRate(t *testing.T) {
	if got := (DeviceInventory{}).SuccessRate(); got != 0 {
		t.Errorf("untested SuccessRate() = %v, want 0", got)
	}
	if got := (DeviceInventory{TestCount: 4, SuccessCount: 3}).SuccessRate(); got != 0.75 {
		t.Errorf("SuccessRate() = %v, want 0.75", got)
	}
}

func TestAPIQueryRecord_Clone(t *testing.T) {
	rec := APIQueryRecord{
		ID:       "r1",
		Body:     map[string]any{"cmds": []string{"show version"}, "nested": map[string]any{"list": []any{1, "a"}}},
		Response: map[string]any{"json": map[string]any{"hostname": "leaf1"}},
	}
	c := rec.Clone()

	c.Body["cmds"].([]string)[0] = "changed"
	c.Body["nested"].(map[string]any)["list"].([]any)[0] = 2
	c.Response["json"].(map[string]any)["hostname"] = "spine1"

	if rec.Body["cmds"].([]string)[0] != "show version" {
		t.Errorf("cmds shared with clone: %v", rec.Body["cmds"])
	}
	if rec.Body["nested"].(map[string]any)["list"].([]any)[0] != 1 {
		t.Errorf("nested list shared with clone: %v", rec.Body["nested"])
	}
	if rec.Response["json"].(map[string]any)["hostname"] != "leaf1" {
		t.Errorf("response shared with clone: %v", rec.Response)
	}
	if c.ID != "r1" {
		t.Errorf("ID = %q", c.ID)
	}
	if (APIQueryRecord{}).Clone().Body != nil {
		t.Error("nil body should stay nil")
	}
}
