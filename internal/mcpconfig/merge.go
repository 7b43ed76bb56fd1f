package mcpconfig

import (
	"encoding/json"
	"os"
)

// layer is one parsed config source, already in rawDocument (mcpServers
// peeled) form.
type layer struct {
	label string // "project:.mcp.json", "home:mcp-servers.json", ...
	raw   map[string]any
}

func readLayer(label, path string) (*layer, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, err
	}
	return &layer{label: label, raw: rawDocument(doc)}, true, nil
}

// mergeLayers combines two layers' raw server maps. Entries in winner take
// precedence over loser on name collision; the result also reports, per
// surviving name, which layer's label won it.
func mergeLayers(winner, loser *layer) (map[string]any, map[string]string) {
	merged := map[string]any{}
	source := map[string]string{}

	if loser != nil {
		for name, def := range loser.raw {
			merged[name] = def
			source[name] = loser.label
		}
	}
	if winner != nil {
		for name, def := range winner.raw {
			merged[name] = def
			source[name] = winner.label
		}
	}
	return merged, source
}
