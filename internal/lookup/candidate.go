// Package lookup drives the incremental search behind the linked-record
// cell editor.
//
// When an editor opens, the full candidate set is fetched synchronously so
// the editor never renders empty. A per-node refresh chain then polls the
// editor's search term every debounce window and re-queries the lookup
// endpoint only when the term has changed. The chain ends as soon as the
// editor disappears from the registry, is closed explicitly, or the poller
// stops.
package lookup

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Candidate is one option offered by a linked-record editor.
// Extra holds the linked dataset's additional lookup columns.
type Candidate struct {
	Value any
	Label string
	Extra map[string]any
}

// MarshalJSON flattens the candidate into {value, label, ...extra}.
func (c Candidate) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c.Extra)+2)
	for k, v := range c.Extra {
		m[k] = v
	}
	m["value"] = c.Value
	m["label"] = c.Label
	return json.Marshal(m)
}

// UnmarshalJSON accepts either an object with value/label keys or a plain
// value, which becomes both value and label.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		c.Value = m["value"]
		if label, ok := m["label"]; ok && label != nil {
			c.Label = fmt.Sprint(label)
		} else if c.Value != nil {
			c.Label = fmt.Sprint(c.Value)
		}
		delete(m, "value")
		delete(m, "label")
		if len(m) > 0 {
			c.Extra = m
		}
		return nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	c.Value = v
	if v != nil {
		c.Label = fmt.Sprint(v)
	}
	return nil
}

// DecodeCandidates parses a lookup response body. An empty body or a JSON
// object (returned by endpoints for terms that are too short) yields no
// candidates.
func DecodeCandidates(body []byte) ([]Candidate, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] == '{' || bytes.Equal(body, []byte("null")) {
		return []Candidate{}, nil
	}
	var out []Candidate
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	return out, nil
}

// Labels returns the candidates' labels in order.
func Labels(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Label
	}
	return out
}
