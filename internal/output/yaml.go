package output

import (
	"io"
	"sync"

	"gopkg.in/yaml.v3"
)

// YAMLWriter writes each result as a YAML document.
type YAMLWriter struct {
	mu      sync.Mutex
	writer  io.Writer
	encoder *yaml.Encoder
	closed  bool
}

// NewYAMLWriter creates a new YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &YAMLWriter{writer: w, encoder: enc}
}

// Write renders v as one YAML document.
func (y *YAMLWriter) Write(v any) error {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.closed {
		return nil
	}
	return y.encoder.Encode(v)
}

// WriteEvent renders a streamed event as its own document.
func (y *YAMLWriter) WriteEvent(kind string, v any) error {
	return y.Write(StreamEvent{Type: kind, Data: v})
}

// Flush flushes the writer.
func (y *YAMLWriter) Flush() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return flush(y.writer)
}

// Close ends the YAML stream and closes the underlying writer.
func (y *YAMLWriter) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.closed {
		return nil
	}
	y.closed = true
	if err := y.encoder.Close(); err != nil {
		return err
	}
	return closeWriter(y.writer)
}
