package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// FileSource loads a catalog saved as JSON or YAML. The format follows the
// file extension; anything other than .json is read as YAML.
type FileSource struct {
	Path string
}

// Load reads and decodes the catalog file.
func (s FileSource) Load(ctx context.Context) (model.APICatalog, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return model.APICatalog{}, fmt.Errorf("failed to read catalog file: %w", err)
	}

	cat := model.NewAPICatalog()
	if isJSON(s.Path) {
		err = json.Unmarshal(data, &cat)
	} else {
		err = yaml.Unmarshal(data, &cat)
	}
	if err != nil {
		return model.APICatalog{}, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	return cat, nil
}

// SaveFile writes cat to path in the format named by its extension.
func SaveFile(path string, cat model.APICatalog) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(cat, "", "  ")
	} else {
		data, err = yaml.Marshal(cat)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
