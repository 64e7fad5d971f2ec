// Package recipe provides the recipe document model for climate-model
// evaluation runs. A recipe is a self-contained YAML document declaring
// datasets, preprocessing pipelines, and diagnostics; this package
// parses and validates recipes for the execution engine.
package recipe

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/evalstack/esmvaltool/internal/preproc"
)

// Recipe is a parsed recipe document.
type Recipe struct {
	Documentation Documentation          `yaml:"documentation"`
	Datasets      []Dataset              `yaml:"datasets"`
	Preprocessors preproc.Pipelines      `yaml:"preprocessors"`
	Diagnostics   map[string]*Diagnostic `yaml:"diagnostics"`

	// Path is the location the recipe was loaded from. Set by Load.
	Path string `yaml:"-"`
}

// Documentation holds recipe metadata.
type Documentation struct {
	Description string   `yaml:"description"`
	Authors     []string `yaml:"authors"`
	Maintainer  []string `yaml:"maintainer"`
	References  []string `yaml:"references"`
	Projects    []string `yaml:"projects"`
}

// Dataset selects a source of climate data. A selector is unique
// within a recipe by the combination of its fields.
type Dataset struct {
	Dataset   string     `yaml:"dataset"`
	Project   string     `yaml:"project"`
	Exp       string     `yaml:"exp"`
	Ensemble  string     `yaml:"ensemble"`
	Mip       string     `yaml:"mip"`
	Grid      string     `yaml:"grid"`
	Type      string     `yaml:"type"`
	Tier      int        `yaml:"tier"`
	Version   FlexScalar `yaml:"version"`
	StartYear int        `yaml:"start_year"`
	EndYear   int        `yaml:"end_year"`
}

// Key returns the identity of the selector within a recipe.
func (d Dataset) Key() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%d/%s/%d-%d",
		d.Project, d.Dataset, d.Exp, d.Ensemble, d.Mip, d.Tier, d.Version, d.StartYear, d.EndYear)
}

// Variable binds a standard variable name to a MIP table, time range,
// and preprocessing pipeline within a diagnostic.
type Variable struct {
	// ShortName is the standardized variable name (the mapping key in
	// the recipe document). Set by the Recipe unmarshaller.
	ShortName string `yaml:"-"`

	Mip                string    `yaml:"mip"`
	StartYear          int       `yaml:"start_year"`
	EndYear            int       `yaml:"end_year"`
	Preprocessor       string    `yaml:"preprocessor"`
	Derive             bool      `yaml:"derive"`
	AdditionalDatasets []Dataset `yaml:"additional_datasets"`
}

// PipelineName returns the pipeline the variable is assigned to, the
// implicit default pipeline when none is named.
func (v *Variable) PipelineName() string {
	if v.Preprocessor == "" {
		return preproc.DefaultPipeline
	}
	return v.Preprocessor
}

// Diagnostic groups variables and binds them to analysis scripts.
type Diagnostic struct {
	// Name is the mapping key in the recipe document. Set by the
	// Recipe unmarshaller.
	Name string `yaml:"-"`

	Description        string               `yaml:"description"`
	Themes             []string             `yaml:"themes"`
	Realms             []string             `yaml:"realms"`
	Variables          map[string]*Variable `yaml:"variables"`
	Scripts            map[string]*Script   `yaml:"scripts"`
	AdditionalDatasets []Dataset            `yaml:"additional_datasets"`
}

// Script is one analysis program invocation. Beyond the script path
// and ancestor references, all settings are passed through to the
// script verbatim.
type Script struct {
	// Name is the mapping key in the recipe document. Set by the
	// Recipe unmarshaller.
	Name string `yaml:"-"`

	Path      string
	Ancestors []string
	Settings  map[string]any
}

// UnmarshalYAML decodes a script entry, splitting the reserved keys
// (script, ancestors) from the free-form settings handed to the
// script at run time.
func (s *Script) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if v, ok := raw["script"]; ok {
		path, isString := v.(string)
		if !isString {
			return fmt.Errorf("script path must be a string, got %T", v)
		}
		s.Path = path
		delete(raw, "script")
	}
	if v, ok := raw["ancestors"]; ok {
		list, isList := v.([]any)
		if !isList {
			return fmt.Errorf("ancestors must be a list, got %T", v)
		}
		for _, a := range list {
			name, isString := a.(string)
			if !isString {
				return fmt.Errorf("ancestor reference must be a string, got %T", a)
			}
			s.Ancestors = append(s.Ancestors, name)
		}
		delete(raw, "ancestors")
	}
	if len(raw) > 0 {
		s.Settings = raw
	}
	return nil
}

// MarshalYAML re-assembles the script entry for serialization.
func (s Script) MarshalYAML() (any, error) {
	out := make(map[string]any, len(s.Settings)+2)
	for k, v := range s.Settings {
		out[k] = v
	}
	out["script"] = s.Path
	if len(s.Ancestors) > 0 {
		out["ancestors"] = s.Ancestors
	}
	return out, nil
}

// FlexScalar is a string that also accepts unquoted numeric scalars,
// e.g. a dataset version written as `version: 1`.
type FlexScalar string

// UnmarshalYAML stores the scalar's literal value.
func (f *FlexScalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected scalar, got %s node", node.Tag)
	}
	*f = FlexScalar(node.Value)
	return nil
}

// Pipeline returns the named pipeline. The implicit default pipeline
// resolves to the empty pipeline unless the recipe overrides it.
func (r *Recipe) Pipeline(name string) (preproc.Pipeline, bool) {
	if p, ok := r.Preprocessors[name]; ok {
		return p, true
	}
	if name == preproc.DefaultPipeline {
		return preproc.Pipeline{}, true
	}
	return preproc.Pipeline{}, false
}

// DatasetsFor returns the dataset selectors that apply to a variable
// within a diagnostic: recipe-level datasets, the diagnostic's
// additional datasets, then the variable's own.
func (r *Recipe) DatasetsFor(d *Diagnostic, v *Variable) []Dataset {
	out := make([]Dataset, 0, len(r.Datasets)+len(d.AdditionalDatasets)+len(v.AdditionalDatasets))
	out = append(out, r.Datasets...)
	out = append(out, d.AdditionalDatasets...)
	out = append(out, v.AdditionalDatasets...)
	for i := range out {
		fillDatasetFromVariable(&out[i], v)
	}
	return out
}

// fillDatasetFromVariable fills selector fields the variable pins,
// leaving explicit selector values untouched.
func fillDatasetFromVariable(d *Dataset, v *Variable) {
	if d.Mip == "" {
		d.Mip = v.Mip
	}
	if d.StartYear == 0 {
		d.StartYear = v.StartYear
	}
	if d.EndYear == 0 {
		d.EndYear = v.EndYear
	}
}
