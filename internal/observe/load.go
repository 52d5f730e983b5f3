package observe

import (
	"fmt"
	"os"

	"github.com/matsen/citesync/internal/publication"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of the observed-authors file:
//
//	authors:
//	  - name: {first: Frederick, last: Matsen}
//	    ids: [7004526013, 57193456789]
//	    allow: [60015479]
//	    deny: [60029311]
//	    tags: [phylogenetics, immunology]
type File struct {
	Authors []AuthorEntry `yaml:"authors"`
}

// AuthorEntry is one observed author as written in the file.
type AuthorEntry struct {
	Name  publication.Author `yaml:"name"`
	IDs   scalarList         `yaml:"ids"`
	Allow scalarList         `yaml:"allow"`
	Deny  scalarList         `yaml:"deny"`
	Tags  scalarList         `yaml:"tags"`
}

// scalarList accepts a sequence of scalars (numbers or strings) or a single
// scalar, keeping the literal text of each value. Scopus ids are long digit
// strings and must not be round-tripped through a number type.
type scalarList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *scalarList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = scalarList{node.Value}
	case yaml.SequenceNode:
		out := make(scalarList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected a scalar value", item.Line)
			}
			out = append(out, item.Value)
		}
		*l = out
	default:
		return fmt.Errorf("line %d: expected a list of values", node.Line)
	}
	return nil
}

// Parse builds a Registry from the YAML content of an observed-authors file.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing authors file: %w", err)
	}

	observations := make([]*Observation, 0, len(f.Authors))
	for _, a := range f.Authors {
		observations = append(observations, NewObservation(a.Name, a.IDs, a.Allow, a.Deny, a.Tags))
	}

	return NewRegistry(observations)
}

// LoadFile reads and parses an observed-authors file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading authors file: %w", err)
	}

	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}
