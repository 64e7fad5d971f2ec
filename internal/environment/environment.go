// Package environment parses conda environment manifests: the named
// runtime environment, its package channels, and pinned dependency
// constraints the evaluation scripts run under.
package environment

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is a parsed environment manifest.
type Manifest struct {
	Name         string
	Channels     []string
	Dependencies []Constraint
	Pip          []Constraint

	// Path is the location the manifest was loaded from. Set by Load.
	Path string
}

// Constraint is one package pin: a bare name, name=version, or
// name=version=build for conda packages; pip pins use name==version.
type Constraint struct {
	Name    string
	Version string
	Build   string
}

// String renders the constraint back in conda form.
func (c Constraint) String() string {
	switch {
	case c.Build != "":
		return c.Name + "=" + c.Version + "=" + c.Build
	case c.Version != "":
		return c.Name + "=" + c.Version
	}
	return c.Name
}

// Pinned reports whether the constraint pins a version.
func (c Constraint) Pinned() bool { return c.Version != "" }

// rawManifest mirrors the document; dependencies mix plain strings
// with a nested pip mapping, so decoding goes through yaml.Node.
type rawManifest struct {
	Name         string      `yaml:"name"`
	Channels     []string    `yaml:"channels"`
	Dependencies []yaml.Node `yaml:"dependencies"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("environment manifest %s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Parse parses a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	m := &Manifest{Name: raw.Name, Channels: raw.Channels}
	for _, node := range raw.Dependencies {
		switch node.Kind {
		case yaml.ScalarNode:
			c, err := ParseConstraint(node.Value)
			if err != nil {
				return nil, err
			}
			m.Dependencies = append(m.Dependencies, c)
		case yaml.MappingNode:
			// The nested pip section: {pip: [name==version, ...]}
			var sub map[string][]string
			if err := node.Decode(&sub); err != nil {
				return nil, fmt.Errorf("invalid dependency entry at line %d: %w", node.Line, err)
			}
			pins, ok := sub["pip"]
			if !ok {
				return nil, fmt.Errorf("unexpected dependency mapping at line %d", node.Line)
			}
			for _, pin := range pins {
				c, err := ParsePipConstraint(pin)
				if err != nil {
					return nil, err
				}
				m.Pip = append(m.Pip, c)
			}
		default:
			return nil, fmt.Errorf("invalid dependency entry at line %d", node.Line)
		}
	}

	return m, nil
}

// ParseConstraint parses a conda pin of the form name[=version[=build]].
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Constraint{}, errors.New("empty dependency constraint")
	}
	parts := strings.Split(s, "=")
	switch len(parts) {
	case 1:
		return Constraint{Name: parts[0]}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Constraint{}, fmt.Errorf("malformed constraint %q", s)
		}
		return Constraint{Name: parts[0], Version: parts[1]}, nil
	case 3:
		if parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return Constraint{}, fmt.Errorf("malformed constraint %q", s)
		}
		return Constraint{Name: parts[0], Version: parts[1], Build: parts[2]}, nil
	}
	return Constraint{}, fmt.Errorf("malformed constraint %q", s)
}

// ParsePipConstraint parses a pip pin of the form name[==version].
func ParsePipConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Constraint{}, errors.New("empty pip constraint")
	}
	name, version, found := strings.Cut(s, "==")
	if !found {
		if strings.Contains(s, "=") {
			return Constraint{}, fmt.Errorf("malformed pip constraint %q", s)
		}
		return Constraint{Name: s}, nil
	}
	if name == "" || version == "" {
		return Constraint{}, fmt.Errorf("malformed pip constraint %q", s)
	}
	return Constraint{Name: name, Version: version}, nil
}

// Validate checks the manifest: a name must be present and no package
// may be constrained twice within a dependency list.
func (m *Manifest) Validate() error {
	var errs []error
	if m.Name == "" {
		errs = append(errs, errors.New("manifest has no environment name"))
	}
	errs = append(errs, checkDuplicates("dependencies", m.Dependencies)...)
	errs = append(errs, checkDuplicates("pip", m.Pip)...)
	return errors.Join(errs...)
}

func checkDuplicates(section string, deps []Constraint) []error {
	var errs []error
	seen := make(map[string]bool, len(deps))
	for _, c := range deps {
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate package %q", section, c.Name))
		}
		seen[c.Name] = true
	}
	return errs
}

// Lookup returns the conda constraint for a package name.
func (m *Manifest) Lookup(name string) (Constraint, bool) {
	for _, c := range m.Dependencies {
		if c.Name == name {
			return c, true
		}
	}
	return Constraint{}, false
}
