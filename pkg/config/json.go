package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

func parseJSON(data []byte) (*Config, error) {
	var doc struct {
		settings
		Nodes json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	nodes, err := jsonNodes(doc.Nodes)
	if err != nil {
		return nil, err
	}
	return doc.settings.config(nodes), nil
}

// jsonNodes walks the nodes value token by token so that object key order
// survives. Both an object keyed by node ID and an array of objects with an
// "id" field are accepted.
func jsonNodes(raw json.RawMessage) ([]Node, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	var nodes []Node
	switch tok {
	case json.Delim('{'):
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			id, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("nodes: unexpected key %v", keyTok)
			}
			var b nodeBody
			if err := dec.Decode(&b); err != nil {
				return nil, fmt.Errorf("nodes.%s: %w", id, err)
			}
			nodes = append(nodes, b.node(id))
		}
	case json.Delim('['):
		for i := 0; dec.More(); i++ {
			var b nodeBody
			if err := dec.Decode(&b); err != nil {
				return nil, fmt.Errorf("nodes[%d]: %w", i, err)
			}
			nodes = append(nodes, b.node(b.ID))
		}
	default:
		return nil, fmt.Errorf("nodes must be an object or an array, got %v", tok)
	}
	return nodes, nil
}
