package tokenizer

import "github.com/goccy/go-json"

// ByteLevelJSON returns a tokenizer.json with no merges: one token per byte
// (id == byte value) followed by the given special tokens. It is the
// smallest vocabulary that can encode any text.
func ByteLevelJSON(specials ...string) ([]byte, error) {
	enc, _ := byteLevelTables()
	vocab := make(map[string]int, 256+len(specials))
	for b := range 256 {
		vocab[string(enc[b])] = b
	}
	added := make([]map[string]any, 0, len(specials))
	for i, sp := range specials {
		id := 256 + i
		vocab[sp] = id
		added = append(added, map[string]any{"id": id, "content": sp, "special": true})
	}
	return json.Marshal(map[string]any{
		"version":        "1.0",
		"added_tokens":   added,
		"pre_tokenizer":  map[string]any{"type": "ByteLevel", "add_prefix_space": false, "use_regex": true},
		"post_processor": map[string]any{"type": "ByteLevel", "trim_offsets": false},
		"decoder":        map[string]any{"type": "ByteLevel"},
		"model": map[string]any{
			"type":   "BPE",
			"vocab":  vocab,
			"merges": []string{},
		},
	})
}
