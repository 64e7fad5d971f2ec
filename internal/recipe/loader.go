package recipe

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// topLevelKeys are the sections a recipe document may contain.
var topLevelKeys = map[string]bool{
	"documentation": true,
	"datasets":      true,
	"preprocessors": true,
	"diagnostics":   true,
}

// Load reads and parses a recipe file.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("recipe %s: %w", path, err)
	}
	r.Path = path
	return r, nil
}

// Parse parses a recipe document. Unknown top-level sections are
// rejected to catch typos like "diagnostic:" early.
func Parse(data []byte) (*Recipe, error) {
	var sections map[string]yaml.Node
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	for key := range sections {
		if !topLevelKeys[key] {
			return nil, fmt.Errorf("unknown top-level section %q", key)
		}
	}

	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("invalid recipe: %w", err)
	}

	// Propagate mapping keys into the parsed structs. Aliased entries
	// may share a pointer with their anchor, so clone before naming.
	seenVars := make(map[*Variable]bool)
	seenScripts := make(map[*Script]bool)
	for name, diag := range r.Diagnostics {
		if diag == nil {
			diag = &Diagnostic{}
			r.Diagnostics[name] = diag
		}
		diag.Name = name
		for short, v := range diag.Variables {
			if v == nil {
				v = &Variable{}
			} else if seenVars[v] {
				clone := *v
				v = &clone
			}
			seenVars[v] = true
			v.ShortName = short
			diag.Variables[short] = v
		}
		for sname, s := range diag.Scripts {
			if s == nil {
				s = &Script{}
			} else if seenScripts[s] {
				clone := *s
				s = &clone
			}
			seenScripts[s] = true
			s.Name = sname
			diag.Scripts[sname] = s
		}
	}

	return &r, nil
}

// DiagnosticNames returns the diagnostic names, sorted for
// deterministic iteration.
func (r *Recipe) DiagnosticNames() []string {
	names := make([]string, 0, len(r.Diagnostics))
	for name := range r.Diagnostics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VariableNames returns a diagnostic's variable names, sorted.
func (d *Diagnostic) VariableNames() []string {
	names := make([]string, 0, len(d.Variables))
	for name := range d.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScriptNames returns a diagnostic's script names, sorted.
func (d *Diagnostic) ScriptNames() []string {
	names := make([]string, 0, len(d.Scripts))
	for name := range d.Scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
