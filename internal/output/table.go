package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableWriter renders Tabular values with go-pretty. Anything else is
// printed as indented JSON.
type TableWriter struct {
	mu     sync.Mutex
	writer io.Writer
	closed bool
}

// NewTableWriter creates a new table writer.
func NewTableWriter(w io.Writer) *TableWriter {
	return &TableWriter{writer: w}
}

// Write renders v.
func (t *TableWriter) Write(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	return t.render(v)
}

// WriteEvent renders v; the kind becomes the table title when v has none.
func (t *TableWriter) WriteEvent(kind string, v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	if tab, ok := v.(Tabular); ok {
		tbl := tab.Table()
		if tbl.Title == "" {
			tbl.Title = kind
		}
		return t.renderTable(tbl)
	}
	return t.render(v)
}

func (t *TableWriter) render(v any) error {
	if tab, ok := v.(Tabular); ok {
		return t.renderTable(tab.Table())
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(t.writer, "%s\n", data)
	return err
}

func (t *TableWriter) renderTable(tbl Table) error {
	if len(tbl.Rows) == 0 {
		msg := tbl.Empty
		if msg == "" {
			msg = "No results"
		}
		_, err := fmt.Fprintln(t.writer, text.FgYellow.Sprint(msg))
		return err
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(t.writer)
	tw.SetStyle(table.StyleRounded)
	if tbl.Title != "" {
		tw.SetTitle(tbl.Title)
	}

	header := make(table.Row, len(tbl.Headers))
	for i, h := range tbl.Headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, r := range tbl.Rows {
		row := make(table.Row, len(r))
		for i, cell := range r {
			row[i] = cell
		}
		tw.AppendRow(row)
	}
	tw.Render()
	return nil
}

// Flush flushes the writer.
func (t *TableWriter) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return flush(t.writer)
}

// Close closes the writer.
func (t *TableWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	return closeWriter(t.writer)
}
