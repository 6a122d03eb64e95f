package output

// Table is a header plus string rows, ready for rendering.
type Table struct {
	Title   string
	Empty   string
	Headers []string
	Rows    [][]string
}

// Tabular is implemented by results that can render as a table.
type Tabular interface {
	Table() Table
}

// keyValues builds a two-column table, skipping empty values.
func keyValues(title string, pairs ...string) Table {
	t := Table{Title: title, Headers: []string{"FIELD", "VALUE"}}
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			continue
		}
		t.Rows = append(t.Rows, []string{pairs[i], pairs[i+1]})
	}
	return t
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
