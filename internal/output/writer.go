// Package output renders explorer results for the command line.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Format selects how results are rendered.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatTable:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json, yaml or table)", s)
	}
}

// Writer defines the interface for output writers.
type Writer interface {
	// Write renders one complete result.
	Write(v any) error

	// WriteEvent renders one streamed result, tagged with its kind.
	WriteEvent(kind string, v any) error

	// Flush flushes any buffered output
	Flush() error

	// Close closes the writer
	Close() error
}

// Config holds output configuration.
type Config struct {
	Format Format
	Pretty bool
}

// NewWriter creates a new output writer.
func NewWriter(w io.Writer, config Config) Writer {
	switch config.Format {
	case FormatYAML:
		return NewYAMLWriter(w)
	case FormatTable:
		return NewTableWriter(w)
	default:
		return NewJSONWriter(w, config.Pretty)
	}
}

// StreamEvent represents a streaming output event.
type StreamEvent struct {
	Type string `json:"type" yaml:"type"`
	Data any    `json:"data" yaml:"data"`
}

func flush(w io.Writer) error {
	if flusher, ok := w.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

func closeWriter(w io.Writer) error {
	if closer, ok := w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
