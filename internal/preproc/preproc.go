// Package preproc defines preprocessing pipelines: named, ordered
// sequences of data transformation operations referenced by recipe
// variables. The package validates operation names and parameters and
// preserves the declared operation order through parse/serialize
// round trips.
package preproc

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultPipeline is the name of the implicit empty pipeline. Variables
// that do not name a preprocessor are assigned to it.
const DefaultPipeline = "default"

// Step is a single preprocessing operation with its parameters.
type Step struct {
	Name string
	Args map[string]any
}

// Pipeline is an ordered sequence of preprocessing steps. Order is
// significant: the engine applies steps in the declared order.
type Pipeline struct {
	Steps []Step
}

// Pipelines maps pipeline names to their step sequences.
type Pipelines map[string]Pipeline

// UnmarshalYAML decodes a pipeline from a YAML mapping, preserving the
// order in which operations appear in the document.
func (p *Pipeline) UnmarshalYAML(node *yaml.Node) error {
	// Resolve aliases (e.g. a pipeline declared once and reused).
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("preprocessor pipeline must be a mapping, got %s", nodeKind(node))
	}

	steps := make([]Step, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]

		var args map[string]any
		if err := valNode.Decode(&args); err != nil {
			return fmt.Errorf("operation %q: %w", keyNode.Value, err)
		}
		steps = append(steps, Step{Name: keyNode.Value, Args: args})
	}

	p.Steps = steps
	return nil
}

// MarshalYAML encodes the pipeline as a mapping with operations in
// step order.
func (p Pipeline) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, step := range p.Steps {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: step.Name}

		valNode := &yaml.Node{}
		if len(step.Args) == 0 {
			valNode.Kind = yaml.ScalarNode
			valNode.Tag = "!!null"
		} else if err := valNode.Encode(step.Args); err != nil {
			return nil, fmt.Errorf("operation %q: %w", step.Name, err)
		}

		node.Content = append(node.Content, keyNode, valNode)
	}
	return node, nil
}

// Step returns the step with the given operation name, if present.
func (p Pipeline) Step(name string) (Step, bool) {
	for _, s := range p.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// Names returns the operation names in step order.
func (p Pipeline) Names() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown"
}
