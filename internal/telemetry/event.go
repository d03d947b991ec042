// Package telemetry emits privacy-preserving usage events for grid edits and
// renders.
//
// Dataset and column identifiers are replaced by their MD5 hex digest before
// they leave the process. Emission never blocks and never fails the caller:
// events are queued onto a bounded buffer and delivered by a background
// worker, and every delivery problem is swallowed after being counted.
package telemetry

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Event names.
const (
	EventEditCell     = "visualedit-edit-cell"
	EventDisplayTable = "visualedit-display-table"
)

// Payload keys.
const (
	keyDatasetHash   = "dataset_name_hash"
	keyColumnHash    = "column_name_hash"
	keyColumnType    = "column_type"
	keyRowsCount     = "rows_count"
	keyColumnsHashed = "columns_hashed"
	keyPluginVersion = "plugin_version"
)

// Hash returns the lowercase hex MD5 digest of s.
func Hash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// EditEvent describes one accepted cell edit.
type EditEvent struct {
	Dataset string
	Column  string
	// ColumnType is the column's editor kind, e.g. "input" or "linkedRecord".
	ColumnType string
}

func editPayload(ev EditEvent, version string) map[string]any {
	return map[string]any{
		keyDatasetHash:   Hash(ev.Dataset),
		keyColumnHash:    Hash(ev.Column),
		keyColumnType:    ev.ColumnType,
		keyPluginVersion: version,
	}
}

// viewPayload hashes each column's field and title. The other declarative
// properties are kept as they are.
func viewPayload(dataset string, columns []map[string]any, rows int, version string) map[string]any {
	hashed := make([]map[string]any, len(columns))
	for i, col := range columns {
		h := make(map[string]any, len(col)+2)
		for k, v := range col {
			h[k] = v
		}
		h["field"] = Hash(identifier(col["field"]))
		h["title"] = Hash(identifier(col["title"]))
		hashed[i] = h
	}
	return map[string]any{
		keyDatasetHash:   Hash(dataset),
		keyRowsCount:     rows,
		keyColumnsHashed: hashed,
		keyPluginVersion: version,
	}
}

func identifier(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
