package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

func parseYAML(data []byte) (*Config, error) {
	var doc struct {
		settings `yaml:",inline"`
		Nodes    yaml.Node `yaml:"nodes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	nodes, err := yamlNodes(&doc.Nodes)
	if err != nil {
		return nil, err
	}
	return doc.settings.config(nodes), nil
}

// yamlNodes reads nodes from the raw node tree, where mapping order is
// still available.
func yamlNodes(n *yaml.Node) ([]Node, error) {
	var nodes []Node
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			id := n.Content[i].Value
			var b nodeBody
			if err := n.Content[i+1].Decode(&b); err != nil {
				return nil, fmt.Errorf("nodes.%s: %w", id, err)
			}
			nodes = append(nodes, b.node(id))
		}
	case yaml.SequenceNode:
		for i, item := range n.Content {
			var b nodeBody
			if err := item.Decode(&b); err != nil {
				return nil, fmt.Errorf("nodes[%d]: %w", i, err)
			}
			nodes = append(nodes, b.node(b.ID))
		}
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil, nil
		}
		return nil, fmt.Errorf("line %d: nodes must be a mapping or a sequence", n.Line)
	default:
		return nil, fmt.Errorf("line %d: nodes must be a mapping or a sequence", n.Line)
	}
	return nodes, nil
}
