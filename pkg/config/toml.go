package config

import (
	"sort"

	"github.com/BurntSushi/toml"
)

// parseTOML decodes nodes from a [nodes] table. Map decoding loses order,
// so the order is recovered from the metadata's key list, which follows
// the document.
func parseTOML(data []byte) (*Config, error) {
	var doc struct {
		settings
		Nodes map[string]nodeBody `toml:"nodes"`
	}
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(doc.Nodes))
	seen := make(map[string]bool, len(doc.Nodes))
	for _, key := range md.Keys() {
		if len(key) < 2 || key[0] != "nodes" || seen[key[1]] {
			continue
		}
		if _, ok := doc.Nodes[key[1]]; ok {
			seen[key[1]] = true
			order = append(order, key[1])
		}
	}
	var rest []string
	for id := range doc.Nodes {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)

	nodes := make([]Node, 0, len(doc.Nodes))
	for _, id := range append(order, rest...) {
		nodes = append(nodes, doc.Nodes[id].node(id))
	}
	return doc.settings.config(nodes), nil
}
