package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(buf *bytes.Buffer, level Level) *Logger {
	return New(Config{
		Level:  level,
		Pretty: false,
		Output: buf,
	})
}

func TestNew(t *testing.T) {
	l := New(DefaultConfig())

	if l == nil {
		t.Fatal("New() returned nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != WarnLevel {
		t.Errorf("Level = %v, want WarnLevel", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Pretty should be false by default")
	}
	if cfg.Output == nil {
		t.Error("Output should not be nil")
	}
}

func TestNew_Component(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Level: InfoLevel, Output: &buf, Component: "health"}).Info("ready")

	if !strings.Contains(buf.String(), `"component":"health"`) {
		t.Errorf("Output should contain component: %s", buf.String())
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("discarded")
	l.DispatchEvent(Dispatch{EndpointID: "ep", Method: "GET", Path: "/", Status: 200, Elapsed: time.Millisecond})
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, InfoLevel).WithComponent("dispatch")
	l.Info("test message")

	if !strings.Contains(buf.String(), `"component":"dispatch"`) {
		t.Errorf("Output should contain component: %s", buf.String())
	}
}

func TestLogger_WithEndpoint(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, InfoLevel).WithEndpoint("ep_1", "eapi")
	l.Info("test message")

	output := buf.String()
	if !strings.Contains(output, `"endpoint_id":"ep_1"`) {
		t.Errorf("Output should contain endpoint_id: %s", output)
	}
	if !strings.Contains(output, `"endpoint_type":"eapi"`) {
		t.Errorf("Output should contain endpoint_type: %s", output)
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, InfoLevel).WithFields(map[string]interface{}{
		"field1": "value1",
		"field2": 42,
	})
	l.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "field1") || !strings.Contains(output, "field2") {
		t.Errorf("Output should contain both fields: %s", output)
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, InfoLevel).WithError(errors.New("boom"))
	l.Error("failed")

	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("Output should contain error: %s", buf.String())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WarnLevel)

	l.Debug("debug message")
	l.Info("info message")
	if buf.Len() != 0 {
		t.Errorf("Debug/Info should be filtered at WarnLevel: %s", buf.String())
	}

	l.Warn("warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Error("Warn should be logged at WarnLevel")
	}
}

func TestLogger_DispatchEvent(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, InfoLevel)

	l.DispatchEvent(Dispatch{
		EndpointID:   "ep_1",
		DefinitionID: "show-version",
		LogID:        "rec-1",
		Method:       "runCmds",
		Path:         "/command-api",
		Status:       200,
		Elapsed:      150 * time.Millisecond,
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["path"] != "/command-api" {
		t.Errorf("path = %v, want /command-api", entry["path"])
	}
	if entry["definition_id"] != "show-version" || entry["log_id"] != "rec-1" {
		t.Errorf("definition_id/log_id = %v/%v", entry["definition_id"], entry["log_id"])
	}
	if entry["status_code"] != float64(200) {
		t.Errorf("status_code = %v, want 200", entry["status_code"])
	}
}

func TestLogger_DispatchEvent_Failure(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, InfoLevel)

	l.DispatchEvent(Dispatch{EndpointID: "ep_1", Method: "GET", Path: "/x", Elapsed: 50 * time.Millisecond, Error: "timeout"})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if entry["level"] != "warn" {
		t.Errorf("level = %v, want warn", entry["level"])
	}
	if entry["error"] != "timeout" {
		t.Errorf("error = %v, want timeout", entry["error"])
	}
	if _, ok := entry["definition_id"]; ok {
		t.Error("ad-hoc requests should not log a definition_id")
	}
}

func TestLogger_HealthEvent(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, InfoLevel)

	l.HealthEvent("ep_1", false, 401, time.Second, "HTTP 401: Unauthorized")

	output := buf.String()
	if !strings.Contains(output, `"success":false`) {
		t.Errorf("Output should contain success=false: %s", output)
	}
	if !strings.Contains(output, "Connection test") {
		t.Errorf("Output should contain message: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"info", InfoLevel, false},
		{"warn", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"", WarnLevel, false},
		{"WARNING", WarnLevel, false},
		{"bogus", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogger_ErrorEvent(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, InfoLevel)

	l.ErrorEvent(errors.New("disk full"), "ep_1", "ledger_append")

	output := buf.String()
	for _, want := range []string{`"level":"error"`, "disk full", `"operation":"ledger_append"`} {
		if !strings.Contains(output, want) {
			t.Errorf("Output should contain %s: %s", want, output)
		}
	}
}
