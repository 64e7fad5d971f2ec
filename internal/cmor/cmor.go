// Package cmor handles CMORization tables: declarative mappings from a
// data provider's raw variable names and filename patterns into the
// standardized variable namespace used by recipes.
package cmor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Table is a parsed CMORization table for one source dataset.
type Table struct {
	Attributes Attributes       `yaml:"attributes"`
	Variables  map[string]Entry `yaml:"variables"`

	// Path is the location the table was loaded from. Set by Load.
	Path string `yaml:"-"`
}

// Attributes holds global metadata describing the source dataset.
type Attributes struct {
	DatasetID     string `yaml:"dataset_id"`
	ProjectID     string `yaml:"project_id"`
	Tier          int    `yaml:"tier"`
	Version       string `yaml:"version"`
	ModelingRealm string `yaml:"modeling_realm"`
	Source        string `yaml:"source"`
	Reference     string `yaml:"reference"`
	Comment       string `yaml:"comment"`
}

// Entry maps one standard variable name to the raw source variable and
// the glob locating its files. Many raw files may match one entry.
type Entry struct {
	Mip  string `yaml:"mip"`
	Raw  string `yaml:"raw"`
	File string `yaml:"file"`
}

// Load reads and parses a CMORization table file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CMOR table: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("CMOR table %s: %w", path, err)
	}
	t.Path = path
	return t, nil
}

// Parse parses a CMORization table document. Duplicate variable keys
// are rejected explicitly rather than silently last-one-wins.
func Parse(data []byte) (*Table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := checkDuplicateVariables(&doc); err != nil {
		return nil, err
	}

	var t Table
	if err := doc.Decode(&t); err != nil {
		return nil, fmt.Errorf("invalid table: %w", err)
	}

	// The raw name defaults to the standard name.
	for short, entry := range t.Variables {
		if entry.Raw == "" {
			entry.Raw = short
			t.Variables[short] = entry
		}
	}

	return &t, nil
}

// checkDuplicateVariables walks the variables mapping node and reports
// repeated keys.
func checkDuplicateVariables(doc *yaml.Node) error {
	root := doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "variables" {
			continue
		}
		vars := root.Content[i+1]
		if vars.Kind != yaml.MappingNode {
			continue
		}
		seen := make(map[string]int)
		for j := 0; j+1 < len(vars.Content); j += 2 {
			key := vars.Content[j]
			if line, dup := seen[key.Value]; dup {
				return fmt.Errorf("duplicate variable %q (lines %d and %d)", key.Value, line, key.Line)
			}
			seen[key.Value] = key.Line
		}
	}
	return nil
}

// Validate checks the table's structural invariants.
func (t *Table) Validate() error {
	var errs []error
	if t.Attributes.DatasetID == "" {
		errs = append(errs, fmt.Errorf("attributes: missing dataset_id"))
	}
	if t.Attributes.Tier == 0 {
		errs = append(errs, fmt.Errorf("attributes: missing tier"))
	}
	if len(t.Variables) == 0 {
		errs = append(errs, fmt.Errorf("table declares no variables"))
	}
	for _, short := range t.VariableNames() {
		entry := t.Variables[short]
		if entry.File == "" {
			errs = append(errs, fmt.Errorf("variable %q: empty file glob", short))
		}
		if entry.Mip == "" {
			errs = append(errs, fmt.Errorf("variable %q: missing mip", short))
		}
	}
	return joinErrors(errs)
}
