package catalog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

var (
	endpointLineRe = regexp.MustCompile(`(?i)\b(get|post|put|patch|delete)\s+(/\S+)`)
	slugRe         = regexp.MustCompile(`[^a-z0-9]+`)
)

// MarkdownSource parses an enumerated API listing: category header lines
// followed by "get /path/{param}" lines. The service of each entry is
// inferred from its path.
type MarkdownSource struct {
	Path   string
	Reader io.Reader // used instead of Path when set
}

// Load parses the listing.
func (s MarkdownSource) Load(ctx context.Context) (model.APICatalog, error) {
	r := s.Reader
	if r == nil {
		f, err := os.Open(s.Path)
		if err != nil {
			return model.APICatalog{}, fmt.Errorf("failed to open API file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return ParseMarkdown(ctx, r)
}

// ParseMarkdown builds a catalog from an enumerated API listing.
func ParseMarkdown(ctx context.Context, r io.Reader) (model.APICatalog, error) {
	cat := model.NewAPICatalog()
	category := ""

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		if lineNo%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return model.APICatalog{}, err
			}
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "Arista Networks") {
			continue
		}

		m := endpointLineRe.FindStringSubmatch(line)
		if m == nil {
			if h := categoryHeader(line); h != "" {
				category = h
			}
			continue
		}

		def := definitionFromLine(strings.ToUpper(m[1]), m[2], category)
		part := cat.Partition(def.Service)
		if _, dup := part[def.ID]; dup {
			continue
		}
		part[def.ID] = def
	}
	if err := scanner.Err(); err != nil {
		return model.APICatalog{}, fmt.Errorf("failed to read API file: %w", err)
	}
	return cat, nil
}

// categoryHeader returns the category named by line, or "" when line is
// prose. Markdown headings are accepted with their # markers stripped.
func categoryHeader(line string) string {
	line = strings.TrimSpace(strings.TrimLeft(line, "#"))
	if line == "" || len(line) > 50 {
		return ""
	}
	if strings.Contains(line, " ") && len(line) > 30 {
		return ""
	}
	return line
}

func definitionFromLine(method, path, category string) model.APIDefinition {
	service := InferService(path)
	params := model.PathPlaceholders(path)
	return model.APIDefinition{
		ID:          definitionID(category, method, path),
		Service:     string(service),
		Method:      method,
		Path:        path,
		Description: describe(category, method, path),
		Params:      params,
		Category:    category,
		Tags:        tagsFor(category, method, path),
	}
}

// InferService maps a path to the service that serves it.
func InferService(path string) model.EndpointType {
	switch {
	case strings.Contains(path, "/command-api"):
		return model.EndpointEAPI
	case strings.Contains(path, "/api/"), strings.Contains(path, "/resources/"):
		return model.EndpointCV
	case strings.Contains(path, "/telemetry/"), strings.Contains(path, "/streaming/"):
		return model.EndpointTelemetry
	default:
		return model.EndpointEOSREST
	}
}

func definitionID(category, method, path string) string {
	raw := strings.ToLower(category + " " + method + " " + path)
	return strings.Trim(slugRe.ReplaceAllString(raw, "-"), "-")
}

func describe(category, method, path string) string {
	readable := strings.NewReplacer("/", " ", "-", " ", "_", " ").Replace(path)
	readable = strings.Join(strings.Fields(readable), " ")
	cat := strings.NewReplacer("-", " ", "_", " ").Replace(category)
	desc := strings.ToUpper(method[:1]) + strings.ToLower(method[1:]) + " " + readable
	if cat != "" {
		desc += " for " + cat
	}
	return desc
}

func tagsFor(category, method, path string) []string {
	tags := []string{method}
	if category != "" {
		tags = append(tags, strings.ToLower(category))
	}
	for _, kw := range []struct{ needle, tag string }{
		{"stats", "statistics"},
		{"config", "configuration"},
		{"status", "status"},
		{"clear", "maintenance"},
	} {
		if strings.Contains(path, kw.needle) {
			tags = append(tags, kw.tag)
		}
	}
	return tags
}
