package dataset

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/visualedit/internal/grid"
	"github.com/JonMunkholm/visualedit/internal/lookup"
)

// fakeRows serves fixed values through the pgx.Rows interface.
type fakeRows struct {
	fields []string
	data   [][]any
	i      int
}

func (r *fakeRows) Close()                        {}
func (r *fakeRows) Err() error                    { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) RawValues() [][]byte           { return nil }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.fields))
	for i, f := range r.fields {
		out[i] = pgconn.FieldDescription{Name: f}
	}
	return out
}

func (r *fakeRows) Next() bool {
	if r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(...any) error { return errors.New("fakeRows: Scan not supported") }

func (r *fakeRows) Values() ([]any, error) {
	return append([]any(nil), r.data[r.i-1]...), nil
}

type fakeRow struct {
	text string
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*pgtype.Text) = pgtype.Text{String: r.text, Valid: true}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

// fakeDB answers queries by matching a substring of the SQL.
type fakeDB struct {
	rows    map[string]*fakeRows
	row     fakeRow
	queries []string
	args    [][]any
	execs   []execCall
}

func (db *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.queries = append(db.queries, sql)
	db.args = append(db.args, args)
	for frag, rows := range db.rows {
		if strings.Contains(sql, frag) {
			return &fakeRows{fields: rows.fields, data: rows.data}, nil
		}
	}
	return nil, errors.New("unexpected query: " + sql)
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.queries = append(db.queries, sql)
	db.args = append(db.args, args)
	return db.row
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, execCall{sql, args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStore_SearchUnknownDataset(t *testing.T) {
	s := NewStore(&fakeDB{}, quietLogger())
	if _, err := s.Search(context.Background(), "nope", "x"); !errors.Is(err, ErrUnknownLinkedDataset) {
		t.Errorf("Search() error = %v, want ErrUnknownLinkedDataset", err)
	}
	if _, err := s.Label(context.Background(), "nope", "1"); !errors.Is(err, ErrUnknownLinkedDataset) {
		t.Errorf("Label() error = %v, want ErrUnknownLinkedDataset", err)
	}
}

func TestStore_Search(t *testing.T) {
	db := &fakeDB{rows: map[string]*fakeRows{
		`FROM "parts"`: {data: [][]any{{int32(7), "Bolt", "M4"}}},
	}}
	s := NewStore(db, quietLogger())
	if err := s.RegisterLinked("orders", parts); err != nil {
		t.Fatalf("RegisterLinked() error = %v", err)
	}

	var tr lookup.Transport = s
	got, err := tr.Search(context.Background(), "parts", "Bo")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	want := []lookup.Candidate{{Value: int64(7), Label: "Bolt", Extra: map[string]any{"size": "M4"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search() (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"bo"}, db.args[0]); diff != "" {
		t.Errorf("args (-want +got):\n%s", diff)
	}

	if _, err := tr.FetchAll(context.Background(), "parts"); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if !strings.HasSuffix(db.queries[1], "LIMIT 1000") {
		t.Errorf("FetchAll query = %s, want LIMIT 1000", db.queries[1])
	}
}

func TestStore_RegisterLinkedConflict(t *testing.T) {
	s := NewStore(&fakeDB{}, quietLogger())
	if err := s.RegisterLinked("orders", parts); err != nil {
		t.Fatalf("RegisterLinked() error = %v", err)
	}
	// Re-registering the same column is a reload.
	if err := s.RegisterLinked("orders", parts); err != nil {
		t.Errorf("RegisterLinked() again error = %v", err)
	}
	other := parts
	other.Column = "spare_id"
	if err := s.RegisterLinked("orders", other); err == nil {
		t.Error("RegisterLinked() expected error for a second column on the same dataset")
	}
}

func TestStore_Label(t *testing.T) {
	db := &fakeDB{row: fakeRow{text: "Bolt"}}
	s := NewStore(db, quietLogger())
	s.RegisterLinked("orders", parts)

	got, err := s.Label(context.Background(), "parts", "7")
	if err != nil {
		t.Fatalf("Label() error = %v", err)
	}
	if got != "Bolt" {
		t.Errorf("Label() = %q, want Bolt", got)
	}

	db.row = fakeRow{err: pgx.ErrNoRows}
	if _, err := s.Label(context.Background(), "parts", "8"); !errors.Is(err, ErrRowNotFound) {
		t.Errorf("Label() error = %v, want ErrRowNotFound", err)
	}
}

func TestStore_LoadRowsExtendsLookups(t *testing.T) {
	db := &fakeDB{rows: map[string]*fakeRows{
		`FROM "orders"`: {
			fields: []string{"id", "part_id"},
			data:   [][]any{{int32(1), int32(7)}, {int32(2), nil}},
		},
		`FROM "parts"`: {data: [][]any{{int32(7), "M4"}}},
		`FROM edit_log`: {},
	}}
	s := NewStore(db, quietLogger())
	s.RegisterLinked("orders", parts)

	var src grid.Source = s
	got, err := src.LoadRows(context.Background(), "orders")
	if err != nil {
		t.Fatalf("LoadRows() error = %v", err)
	}
	want := []grid.Row{
		{"id": int64(1), "part_id": int64(7), "part_size": "M4"},
		{"id": int64(2), "part_id": nil, "part_size": nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadRows() (-want +got):\n%s", diff)
	}
}

func TestStore_AppendEdit(t *testing.T) {
	db := &fakeDB{}
	s := NewStore(db, quietLogger())

	var log grid.EditLog = s
	err := log.AppendEdit(context.Background(), grid.EditRecord{
		GridID:        "orders",
		Dataset:       "sales",
		RowID:         "1",
		Column:        "amount",
		EditorKind:    "number",
		PreviousValue: 10.0,
		NewValue:      12.5,
		User:          "ana",
		EditedAt:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("AppendEdit() error = %v", err)
	}
	if len(db.execs) != 1 {
		t.Fatalf("execs = %d, want 1", len(db.execs))
	}
	args := db.execs[0].args
	if len(args) != 12 {
		t.Fatalf("args = %d, want 12", len(args))
	}
	if args[1] != "orders" || args[3] != "1" || args[4] != "amount" || args[10] != ActionUpdate {
		t.Errorf("args = %v", args)
	}
	if got := args[5].(pgtype.Text); got.String != "12.5" || !got.Valid {
		t.Errorf("value = %+v, want 12.5", got)
	}
	if got := args[9].(pgtype.Text); got.Valid {
		t.Errorf("ip_address = %+v, want NULL", got)
	}
}

func TestStore_LoadRowsReplaysEdits(t *testing.T) {
	db := &fakeDB{rows: map[string]*fakeRows{
		`FROM "orders"`: {
			fields: []string{"id", "amount", "paid", "note", "tags"},
			data: [][]any{
				{int32(1), 10.0, false, "a", []any{"x"}},
				{int32(2), 20.0, true, "b", nil},
			},
		},
	}}
	s := NewStore(db, quietLogger())

	err := s.AppendEdit(context.Background(), grid.EditRecord{
		GridID: "orders", Dataset: "orders", RowID: "1", Column: "amount",
		PreviousValue: 10.0, NewValue: 12.5, EditedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("AppendEdit() error = %v", err)
	}
	args := db.execs[0].args
	appended := []any{args[3], args[4], args[5].(pgtype.Text).String}

	db.rows[`FROM edit_log`] = &fakeRows{data: [][]any{
		appended,
		{"1", "paid", "true"},
		{"1", "tags", `["y","z"]`},
		{"2", "note", nil},
		{"2", "amount", "n/a"},
		{"2", "id", "9"},
		{"2", "gone", "x"},
		{"3", "amount", "1"},
	}}

	got, err := s.LoadRows(context.Background(), "orders")
	if err != nil {
		t.Fatalf("LoadRows() error = %v", err)
	}
	want := []grid.Row{
		{"id": int64(1), "amount": 12.5, "paid": true, "note": "a", "tags": []any{"y", "z"}},
		{"id": int64(2), "amount": "n/a", "paid": true, "note": nil, "tags": nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadRows() (-want +got):\n%s", diff)
	}

	last := db.args[len(db.args)-1]
	if diff := cmp.Diff([]any{"orders", ActionUpdate}, last); diff != "" {
		t.Errorf("replay args (-want +got):\n%s", diff)
	}
}

func TestStore_LoadRowsReplayKeyField(t *testing.T) {
	db := &fakeDB{rows: map[string]*fakeRows{
		`FROM "orders"`: {
			fields: []string{"id", "code", "qty"},
			data:   [][]any{{int32(1), "A-7", int32(3)}},
		},
		`FROM edit_log`: {data: [][]any{
			{"1", "qty", "99"},
			{"A-7", "qty", "4"},
		}},
	}}
	s := NewStore(db, quietLogger())
	s.SetKeyField("orders", "code")

	got, err := s.LoadRows(context.Background(), "orders")
	if err != nil {
		t.Fatalf("LoadRows() error = %v", err)
	}
	want := []grid.Row{{"id": int64(1), "code": "A-7", "qty": int64(4)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadRows() (-want +got):\n%s", diff)
	}
}

func TestStore_LoadRowsReplayError(t *testing.T) {
	db := &fakeDB{rows: map[string]*fakeRows{
		`FROM "orders"`: {fields: []string{"id"}, data: [][]any{{int32(1)}}},
	}}
	s := NewStore(db, quietLogger())

	if _, err := s.LoadRows(context.Background(), "orders"); err == nil {
		t.Error("LoadRows() expected error when the edit log cannot be read")
	}
}

func TestReplayValue(t *testing.T) {
	tests := []struct {
		name    string
		logged  any
		current any
		want    any
	}{
		{"float", "1.5", 0.0, 1.5},
		{"int", "4", int64(0), int64(4)},
		{"int from decimal", "4.5", int64(0), 4.5},
		{"bool", "false", true, false},
		{"json object", `{"a":1}`, map[string]any{}, map[string]any{"a": 1.0}},
		{"text", "x", "y", "x"},
		{"unparsable keeps text", "abc", 1.0, "abc"},
		{"null", nil, "y", nil},
		{"untyped cell", "7", nil, "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := replayValue(tt.logged, tt.current)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("replayValue(%v, %v) (-want +got):\n%s", tt.logged, tt.current, diff)
			}
		})
	}
}
