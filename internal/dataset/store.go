// Package dataset reads grid datasets and their linked datasets from
// PostgreSQL and keeps the edit log.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/visualedit/internal/grid"
	"github.com/JonMunkholm/visualedit/internal/lookup"
)

var (
	ErrUnknownLinkedDataset = errors.New("unknown linked dataset")
	ErrRowNotFound          = errors.New("row not found")
)

// DefaultKeyField identifies rows of datasets with no registered key field.
const DefaultKeyField = "id"

// QueryTimeout bounds a single store query.
var QueryTimeout = 30 * time.Second

// DB is the subset of *pgxpool.Pool used by the store.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store serves dataset rows, linked-record lookups and the edit log.
type Store struct {
	db     DB
	logger *slog.Logger

	mu sync.RWMutex
	// linked is keyed by linked dataset name.
	linked map[string]LinkedRecord
	// extend lists the linked records whose lookup columns are copied
	// into rows of a grid dataset.
	extend map[string][]LinkedRecord
	// keys maps a dataset to the column its edit log rows are keyed by.
	keys map[string]string
}

// NewStore creates a store over db.
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "dataset"),
		linked: make(map[string]LinkedRecord),
		extend: make(map[string][]LinkedRecord),
		keys:   make(map[string]string),
	}
}

// SetKeyField declares the column identifying rows of dataset. Logged edits
// are matched to rows by it.
func (s *Store) SetKeyField(dataset, keyField string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keyField == "" {
		delete(s.keys, dataset)
		return
	}
	s.keys[dataset] = keyField
}

func (s *Store) keyField(dataset string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k, ok := s.keys[dataset]; ok {
		return k
	}
	return DefaultKeyField
}

// RegisterLinked declares a linked record of dataset. A linked dataset may
// back only one linked record.
func (s *Store) RegisterLinked(dataset string, lr LinkedRecord) error {
	if err := lr.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.linked[lr.DSName]; ok && prev.Column != lr.Column {
		return fmt.Errorf("linked dataset %s already configured for column %s", lr.DSName, prev.Column)
	}
	s.linked[lr.DSName] = lr

	list := s.extend[dataset][:0:0]
	for _, existing := range s.extend[dataset] {
		if existing.Column != lr.Column {
			list = append(list, existing)
		}
	}
	s.extend[dataset] = append(list, lr)
	return nil
}

// Linked returns the linked record backed by dsName.
func (s *Store) Linked(dsName string) (LinkedRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lr, ok := s.linked[dsName]
	return lr, ok
}

func (s *Store) linkedOrErr(dsName string) (LinkedRecord, error) {
	lr, ok := s.Linked(dsName)
	if !ok {
		return LinkedRecord{}, fmt.Errorf("%w: %s", ErrUnknownLinkedDataset, dsName)
	}
	return lr, nil
}

// FetchAll implements lookup.Transport.
func (s *Store) FetchAll(ctx context.Context, dsName string) ([]lookup.Candidate, error) {
	return s.Search(ctx, dsName, "")
}

// Search implements lookup.Transport. An empty term returns up to
// FullResultLimit options, otherwise up to SearchResultLimit matches.
func (s *Store) Search(ctx context.Context, dsName, term string) ([]lookup.Candidate, error) {
	lr, err := s.linkedOrErr(dsName)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	query, args := buildSearchQuery(lr, term)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", dsName, err)
	}
	defer rows.Close()

	var values [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read %s values: %w", dsName, err)
		}
		values = append(values, normalizeRow(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search %s: %w", dsName, err)
	}

	s.logger.Debug("lookup search", "dataset", dsName, "term", term, "results", len(values))
	return toCandidates(lr, values), nil
}

// Label returns the label of the linked row whose key is key.
func (s *Store) Label(ctx context.Context, dsName, key string) (string, error) {
	lr, err := s.linkedOrErr(dsName)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	var label pgtype.Text
	err = s.db.QueryRow(ctx, buildLabelQuery(lr), key).Scan(&label)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s[%s]", ErrRowNotFound, dsName, key)
	}
	if err != nil {
		return "", fmt.Errorf("label %s[%s]: %w", dsName, key, err)
	}
	return label.String, nil
}

// LoadRows implements grid.Source. Rows are ordered by the first column,
// carry the latest logged edit of each cell and are extended with the lookup
// columns of the dataset's linked records.
func (s *Store) LoadRows(ctx context.Context, dataset string) ([]grid.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY 1 ASC", quoteIdentifier(dataset))
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", dataset, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	result := make([]grid.Row, 0)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read %s values: %w", dataset, err)
		}
		result = append(result, toRow(names, normalizeRow(vals)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", dataset, err)
	}
	rows.Close()

	if err := s.replayEdits(ctx, dataset, result); err != nil {
		return nil, err
	}

	s.mu.RLock()
	extend := append([]LinkedRecord(nil), s.extend[dataset]...)
	s.mu.RUnlock()

	for _, lr := range extend {
		if len(lr.LookupColumns) == 0 {
			continue
		}
		if err := s.extendWithLookups(ctx, result, lr); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Store) extendWithLookups(ctx context.Context, result []grid.Row, lr LinkedRecord) error {
	rows, err := s.db.Query(ctx, buildLookupValuesQuery(lr))
	if err != nil {
		return fmt.Errorf("lookup values %s: %w", lr.DSName, err)
	}
	defer rows.Close()

	byKey := make(map[string][]any)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return fmt.Errorf("read %s values: %w", lr.DSName, err)
		}
		vals = normalizeRow(vals)
		byKey[display(vals[0])] = vals[1:]
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lookup values %s: %w", lr.DSName, err)
	}

	applyLookups(result, lr, byKey)
	return nil
}

// applyLookups copies linked values into each row under the grid's lookup
// column names. Rows whose key has no linked row get nil values.
func applyLookups(rows []grid.Row, lr LinkedRecord, byKey map[string][]any) {
	for _, row := range rows {
		vals, ok := byKey[display(row[lr.Column])]
		for i, lc := range lr.LookupColumns {
			if ok {
				row[lc.Name] = vals[i]
			} else {
				row[lc.Name] = nil
			}
		}
	}
}

func toRow(names []string, vals []any) grid.Row {
	row := make(grid.Row, len(names))
	for i, name := range names {
		row[name] = vals[i]
	}
	return row
}

func normalizeRow(vals []any) []any {
	for i, v := range vals {
		vals[i] = normalizeValue(v)
	}
	return vals
}

// normalizeValue converts driver values into JSON-friendly forms.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(t).String()
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case []byte:
		return string(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

// display renders a value as text for labels and key matching.
func display(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
