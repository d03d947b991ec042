package filters

import (
	"bytes"
	"encoding/json"
	"sort"
)

// MessageTypeFilters is the type of the only message the translator acts on.
const MessageTypeFilters = "filters"

// Facet kinds a dashboard can broadcast.
const (
	NumericalFacet = "NUMERICAL_FACET"
	AlphanumFacet  = "ALPHANUM_FACET"
)

// Event is one facet filter as posted by the dashboard.
type Event struct {
	Active         bool            `json:"active"`
	FilterType     string          `json:"filterType"`
	Column         string          `json:"column"`
	SelectedValues map[string]bool `json:"selectedValues,omitempty"`
	ExcludedValues map[string]bool `json:"excludedValues,omitempty"`
	MinValue       *float64        `json:"minValue,omitempty"`
	MaxValue       *float64        `json:"maxValue,omitempty"`
}

// Message is the envelope posted by the dashboard frame.
type Message struct {
	Type    string  `json:"type"`
	Filters []Event `json:"filters"`
}

// DecodeMessage parses a posted payload. ok is false when the payload is
// empty, not JSON, or lacks a filters list; such messages are ignored.
func DecodeMessage(raw []byte) (msg Message, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Message{}, false
	}

	var envelope struct {
		Type    string          `json:"type"`
		Filters json.RawMessage `json:"filters"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Message{}, false
	}
	msg.Type = envelope.Type
	if msg.Type != MessageTypeFilters {
		return msg, true
	}

	filters := bytes.TrimSpace(envelope.Filters)
	if len(filters) == 0 || bytes.Equal(filters, []byte("null")) {
		return Message{}, false
	}
	if err := json.Unmarshal(filters, &msg.Filters); err != nil {
		return Message{}, false
	}
	if msg.Filters == nil {
		msg.Filters = []Event{}
	}
	return msg, true
}

// Partition splits the facet selection into explicitly selected and
// explicitly deselected keys. Keys mapped to false are ignored.
func (e Event) Partition() (included, excluded []string) {
	return trueKeys(e.SelectedValues), trueKeys(e.ExcludedValues)
}

func trueKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
