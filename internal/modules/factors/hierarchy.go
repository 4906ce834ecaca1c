package factors

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Hierarchy maps each leaf factor to its path of category levels, root first.
// Leaf depth is not uniform: shallower leaves are right-padded with empty
// strings when flattened into fixed-width levels.
type Hierarchy struct {
	depth   int
	paths   map[string][]string
	factors []string
}

// ParseHierarchy reads a nested YAML document where interior nodes are maps
// of category name -> children and leaves are lists of factor names, e.g.:
//
//	Equity:
//	  US:
//	    - US Large Cap Growth
//	    - US Small Cap Value
//	Bonds:
//	  - US Aggregate Bonds
//
// Every leaf factor name must be unique across the whole tree.
func ParseHierarchy(data []byte) (*Hierarchy, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse hierarchy YAML: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("hierarchy is empty")
	}

	h := &Hierarchy{paths: make(map[string][]string)}
	if err := h.walk(root.Content[0], nil); err != nil {
		return nil, err
	}
	for factor, path := range h.paths {
		h.factors = append(h.factors, factor)
		if len(path) > h.depth {
			h.depth = len(path)
		}
	}
	sort.Strings(h.factors)
	return h, nil
}

// LoadHierarchy reads and parses a hierarchy YAML file.
func LoadHierarchy(path string) (*Hierarchy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hierarchy file %s: %w", path, err)
	}
	return ParseHierarchy(data)
}

func (h *Hierarchy) walk(node *yaml.Node, path []string) error {
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			child := node.Content[i+1]
			if err := h.walk(child, append(path, key)); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("hierarchy leaf list under %v contains a non-scalar entry", path)
			}
			if err := h.addLeaf(item.Value, path); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		return h.addLeaf(node.Value, path)
	default:
		return fmt.Errorf("unexpected node kind %d in hierarchy under %v", node.Kind, path)
	}
	return nil
}

func (h *Hierarchy) addLeaf(factor string, path []string) error {
	if factor == "" {
		return fmt.Errorf("empty factor name under %v", path)
	}
	if _, dup := h.paths[factor]; dup {
		return fmt.Errorf("duplicate factor %q in hierarchy", factor)
	}
	h.paths[factor] = append([]string(nil), path...)
	return nil
}

// Depth returns the number of levels of the deepest leaf.
func (h *Hierarchy) Depth() int {
	return h.depth
}

// Factors returns all leaf factor names, sorted.
func (h *Hierarchy) Factors() []string {
	return append([]string(nil), h.factors...)
}

// Path returns the category path of factor, root first, and whether the
// factor exists.
func (h *Hierarchy) Path(factor string) ([]string, bool) {
	path, ok := h.paths[factor]
	if !ok {
		return nil, false
	}
	return append([]string(nil), path...), true
}

// Levels returns the factor's path padded with empty strings to the hierarchy
// depth. An empty string marks a level the factor does not reach.
func (h *Hierarchy) Levels(factor string) ([]string, bool) {
	path, ok := h.paths[factor]
	if !ok {
		return nil, false
	}
	padded := make([]string, h.depth)
	copy(padded, path)
	return padded, true
}

// LevelName returns the column name of level i, e.g. "Level_0".
func LevelName(i int) string {
	return fmt.Sprintf("Level_%d", i)
}
