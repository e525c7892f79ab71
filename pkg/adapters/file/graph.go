package file

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/chatflow/pkg/domain"
)

// LoadGraph reads a flow document (YAML or JSON, by extension) from disk.
func LoadGraph(path string) (*domain.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file: %w", err)
	}
	g, err := ParseGraph(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// ParseGraph decodes a flow document. ext selects the format; anything other than
// ".json" is read as YAML, which also accepts JSON.
func ParseGraph(data []byte, ext string) (*domain.Graph, error) {
	var g domain.Graph
	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&g); err != nil {
			return nil, fmt.Errorf("invalid flow json: %w", err)
		}
		return &g, nil
	}

	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("invalid flow yaml: %w", err)
	}
	return &g, nil
}

// WriteGraph stores a flow document as YAML.
func WriteGraph(path string, g *domain.Graph) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(g); err != nil {
		return fmt.Errorf("failed to encode flow: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
