package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// DefaultSQLiteTable is the table read by SQLiteSource when none is named.
const DefaultSQLiteTable = "apis"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sqliteColumns are the columns SQLiteSource understands. Missing columns
// are tolerated; list-valued columns hold comma separated names.
var sqliteColumns = []string{"id", "service", "method", "path", "description", "category", "tags", "parameters"}

// SQLiteSource loads definitions from an API database table.
type SQLiteSource struct {
	Path  string
	Table string
}

// Load reads every row of the table.
func (s SQLiteSource) Load(ctx context.Context) (model.APICatalog, error) {
	table := s.Table
	if table == "" {
		table = DefaultSQLiteTable
	}
	if !identRe.MatchString(table) {
		return model.APICatalog{}, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return model.APICatalog{}, fmt.Errorf("failed to open API database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return model.APICatalog{}, fmt.Errorf("failed to ping API database: %w", err)
	}

	present, err := tableColumns(ctx, db, table)
	if err != nil {
		return model.APICatalog{}, err
	}
	if !present["path"] {
		return model.APICatalog{}, fmt.Errorf("table %s has no path column", table)
	}

	var cols []string
	for _, c := range sqliteColumns {
		if present[c] {
			cols = append(cols, c)
		}
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), table))
	if err != nil {
		return model.APICatalog{}, fmt.Errorf("failed to query APIs: %w", err)
	}
	defer rows.Close()

	cat := model.NewAPICatalog()
	n := 0
	for rows.Next() {
		n++
		values := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return model.APICatalog{}, fmt.Errorf("failed to scan API row: %w", err)
		}

		row := make(map[string]string, len(cols))
		for i, c := range cols {
			row[c] = strings.TrimSpace(values[i].String)
		}
		def := definitionFromRow(row, n)
		if part := cat.Partition(def.Service); part != nil {
			part[def.ID] = def
		}
	}
	if err := rows.Err(); err != nil {
		return model.APICatalog{}, fmt.Errorf("failed to read APIs: %w", err)
	}
	return cat, nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("failed to query table schema: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols[strings.ToLower(name)] = true
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return cols, rows.Err()
}

func definitionFromRow(row map[string]string, n int) model.APIDefinition {
	def := model.APIDefinition{
		ID:          row["id"],
		Service:     strings.ToLower(row["service"]),
		Method:      model.NormalizeMethod(row["method"]),
		Path:        row["path"],
		Description: row["description"],
		Category:    row["category"],
		Tags:        splitList(row["tags"]),
		Params:      splitList(row["parameters"]),
	}
	if def.Method == "" {
		def.Method = "GET"
	}
	if def.Service == "" {
		def.Service = string(InferService(def.Path))
	}
	if def.ID == "" {
		def.ID = fmt.Sprintf("db-%d", n)
	}
	for _, ph := range model.PathPlaceholders(def.Path) {
		if !def.HasParam(ph) {
			def.Params = append(def.Params, ph)
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
