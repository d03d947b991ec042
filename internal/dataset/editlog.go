package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/visualedit/internal/grid"
)

// ActionUpdate is the edit log action for a cell edit.
const ActionUpdate = "update"

// DefaultEditLogLimit caps EditLog results when no limit is given.
const DefaultEditLogLimit = 100

const editLogSchema = `
CREATE TABLE IF NOT EXISTS edit_log (
	id          uuid PRIMARY KEY,
	grid_id     text NOT NULL,
	dataset     text NOT NULL,
	row_key     text NOT NULL,
	column_name text NOT NULL,
	value       text,
	old_value   text,
	editor      text,
	edit_user   text,
	ip_address  text,
	action      text NOT NULL,
	edited_at   timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS edit_log_grid_idx ON edit_log (grid_id, edited_at DESC);
CREATE INDEX IF NOT EXISTS edit_log_cell_idx ON edit_log (dataset, row_key, column_name, edited_at DESC);
`

// latestEditsQuery pivots the edit log into the current value of every
// edited cell of a dataset.
const latestEditsQuery = `SELECT DISTINCT ON (row_key, column_name) row_key, column_name, value
	FROM edit_log WHERE dataset = $1 AND action = $2
	ORDER BY row_key, column_name, edited_at DESC`

// EditEntry is one row of the edit log.
type EditEntry struct {
	ID        string    `json:"id"`
	GridID    string    `json:"grid_id"`
	Dataset   string    `json:"dataset"`
	Key       string    `json:"key"`
	Column    string    `json:"column_name"`
	Value     string    `json:"value"`
	OldValue  string    `json:"old_value"`
	Editor    string    `json:"editor,omitempty"`
	User      string    `json:"user"`
	IPAddress string    `json:"-"`
	Action    string    `json:"action"`
	Date      time.Time `json:"date"`
}

// EnsureSchema creates the edit log table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	if _, err := s.db.Exec(ctx, editLogSchema); err != nil {
		return fmt.Errorf("create edit log: %w", err)
	}
	return nil
}

// AppendEdit implements grid.EditLog.
func (s *Store) AppendEdit(ctx context.Context, rec grid.EditRecord) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	editedAt := rec.EditedAt
	if editedAt.IsZero() {
		editedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `INSERT INTO edit_log
		(id, grid_id, dataset, row_key, column_name, value, old_value, editor, edit_user, ip_address, action, edited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		pgtype.UUID{Bytes: uuid.New(), Valid: true},
		rec.GridID,
		rec.Dataset,
		rec.RowID,
		rec.Column,
		toPgText(valueText(rec.NewValue)),
		toPgText(valueText(rec.PreviousValue)),
		toPgText(rec.EditorKind),
		toPgText(rec.User),
		toPgText(rec.IPAddress),
		ActionUpdate,
		pgtype.Timestamptz{Time: editedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("append edit: %w", err)
	}
	return nil
}

// EditLog returns the most recent edits of a grid, newest first.
func (s *Store) EditLog(ctx context.Context, gridID string, limit int) ([]EditEntry, error) {
	if limit <= 0 {
		limit = DefaultEditLogLimit
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx, `SELECT id, grid_id, dataset, row_key, column_name, value, old_value,
		editor, edit_user, ip_address, action, edited_at
		FROM edit_log WHERE grid_id = $1 ORDER BY edited_at DESC LIMIT $2`, gridID, limit)
	if err != nil {
		return nil, fmt.Errorf("query edit log: %w", err)
	}
	defer rows.Close()

	entries := make([]EditEntry, 0)
	for rows.Next() {
		e, err := scanEditRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query edit log: %w", err)
	}
	return entries, nil
}

// replayEdits overlays the latest logged value of each cell onto rows.
// Edits of rows or columns the dataset no longer has are skipped.
func (s *Store) replayEdits(ctx context.Context, dataset string, rows []grid.Row) error {
	key := s.keyField(dataset)
	byKey := make(map[string]grid.Row, len(rows))
	for _, row := range rows {
		if v, ok := row[key]; ok && v != nil {
			byKey[fmt.Sprint(v)] = row
		}
	}

	logged, err := s.db.Query(ctx, latestEditsQuery, dataset, ActionUpdate)
	if err != nil {
		return fmt.Errorf("replay edits of %s: %w", dataset, err)
	}
	defer logged.Close()

	replayed := 0
	for logged.Next() {
		vals, err := logged.Values()
		if err != nil {
			return fmt.Errorf("read edits of %s: %w", dataset, err)
		}
		row, ok := byKey[display(vals[0])]
		if !ok {
			continue
		}
		column := display(vals[1])
		current, ok := row[column]
		if !ok || column == key {
			continue
		}
		row[column] = replayValue(vals[2], current)
		replayed++
	}
	if err := logged.Err(); err != nil {
		return fmt.Errorf("replay edits of %s: %w", dataset, err)
	}

	if replayed > 0 {
		s.logger.Debug("edits replayed", "dataset", dataset, "cells", replayed)
	}
	return nil
}

// replayValue converts a logged value back to the type of the cell it
// replaces. Text that does not parse as that type is kept as text.
func replayValue(logged, current any) any {
	text, ok := logged.(string)
	if !ok {
		return normalizeValue(logged)
	}
	switch current.(type) {
	case float64:
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f
		}
	case int64:
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f
		}
	case bool:
		if b, err := strconv.ParseBool(text); err == nil {
			return b
		}
	case map[string]any, []any:
		var v any
		if err := json.Unmarshal([]byte(text), &v); err == nil {
			return v
		}
	}
	return text
}

func scanEditRow(rows pgx.Rows) (EditEntry, error) {
	var (
		id        pgtype.UUID
		gridID    string
		dataset   string
		rowKey    string
		column    string
		value     pgtype.Text
		oldValue  pgtype.Text
		editor    pgtype.Text
		user      pgtype.Text
		ipAddress pgtype.Text
		action    string
		editedAt  pgtype.Timestamptz
	)
	err := rows.Scan(&id, &gridID, &dataset, &rowKey, &column, &value, &oldValue,
		&editor, &user, &ipAddress, &action, &editedAt)
	if err != nil {
		return EditEntry{}, fmt.Errorf("scan edit log: %w", err)
	}

	return EditEntry{
		ID:        uuidToString(id),
		GridID:    gridID,
		Dataset:   dataset,
		Key:       rowKey,
		Column:    column,
		Value:     value.String,
		OldValue:  oldValue.String,
		Editor:    editor.String,
		User:      user.String,
		IPAddress: ipAddress.String,
		Action:    action,
		Date:      editedAt.Time,
	}, nil
}

// valueText renders a cell value for the edit log. Composite values are
// stored as JSON.
func valueText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return display(t)
	}
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func uuidToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
