package dataset

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/visualedit/internal/grid"
	"github.com/JonMunkholm/visualedit/internal/lookup"
)

var parts = LinkedRecord{
	Column: "part_id",
	DSName: "parts",
	Key:    "id",
	Label:  "name",
	LookupColumns: []LookupColumn{
		{Name: "part_size", LinkedColumn: "size"},
	},
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name      string
		lr        LinkedRecord
		term      string
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "no term",
			lr:        parts,
			term:      "  ",
			wantQuery: `SELECT "id", "name", "size" FROM "parts" ORDER BY "name" ASC LIMIT 1000`,
		},
		{
			name:      "term is trimmed and lowered",
			lr:        parts,
			term:      " BoLt ",
			wantQuery: `SELECT "id", "name", "size" FROM "parts" WHERE strpos(lower("name"::text), $1) > 0 ORDER BY "name" ASC LIMIT 10`,
			wantArgs:  []any{"bolt"},
		},
		{
			name:      "key only",
			lr:        LinkedRecord{Column: "c", DSName: "colors", Key: "color"},
			term:      "r",
			wantQuery: `SELECT "color" FROM "colors" WHERE strpos(lower("color"::text), $1) > 0 ORDER BY "color" ASC LIMIT 10`,
			wantArgs:  []any{"r"},
		},
		{
			name:      "identifiers are quoted",
			lr:        LinkedRecord{Column: "c", DSName: `we"ird`, Key: "k"},
			wantQuery: `SELECT "k" FROM "we""ird" ORDER BY "k" ASC LIMIT 1000`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildSearchQuery(tt.lr, tt.term)
			if query != tt.wantQuery {
				t.Errorf("query = %s\nwant    %s", query, tt.wantQuery)
			}
			if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
				t.Errorf("args (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildLabelAndLookupQueries(t *testing.T) {
	if got, want := buildLabelQuery(parts), `SELECT "name"::text FROM "parts" WHERE "id"::text = $1 LIMIT 1`; got != want {
		t.Errorf("buildLabelQuery() = %s, want %s", got, want)
	}
	if got, want := buildLookupValuesQuery(parts), `SELECT "id", "size" FROM "parts"`; got != want {
		t.Errorf("buildLookupValuesQuery() = %s, want %s", got, want)
	}
}

func TestToCandidates(t *testing.T) {
	got := toCandidates(parts, [][]any{
		{int64(7), "Bolt", "M4"},
		{int64(8), "Nut", nil},
	})
	want := []lookup.Candidate{
		{Value: int64(7), Label: "Bolt", Extra: map[string]any{"size": "M4"}},
		{Value: int64(8), Label: "Nut", Extra: map[string]any{"size": nil}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("toCandidates() (-want +got):\n%s", diff)
	}

	plain := toCandidates(LinkedRecord{Key: "color"}, [][]any{{"Red"}})
	if len(plain) != 1 || plain[0].Label != "Red" || plain[0].Extra != nil {
		t.Errorf("plain candidates = %+v", plain)
	}
}

func TestApplyLookups(t *testing.T) {
	rows := []grid.Row{
		{"id": 1, "part_id": int64(7)},
		{"id": 2, "part_id": int64(99)},
	}
	applyLookups(rows, parts, map[string][]any{"7": {"M4"}})

	want := []grid.Row{
		{"id": 1, "part_id": int64(7), "part_size": "M4"},
		{"id": 2, "part_id": int64(99), "part_size": nil},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}
}

func TestNormalizeValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	id := [16]byte{0x12, 0x34}

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"numeric", pgtype.Numeric{Int: big.NewInt(1250), Exp: -2, Valid: true}, 12.5},
		{"null numeric", pgtype.Numeric{}, nil},
		{"uuid", id, "12340000-0000-0000-0000-000000000000"},
		{"time", ts, "2024-03-01T11:00:00Z"},
		{"bytes", []byte("raw"), "raw"},
		{"int32", int32(4), int64(4)},
		{"string", "s", "s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeValue(tt.in); got != tt.want {
				t.Errorf("normalizeValue(%v) = %v (%T), want %v (%T)", tt.in, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestValueText(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{12.5, "12.5"},
		{int64(3), "3"},
		{true, "true"},
		{map[string]any{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		if got := valueText(tt.in); got != tt.want {
			t.Errorf("valueText(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLinkedRecordValidate(t *testing.T) {
	if err := parts.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := (LinkedRecord{Column: "x"}).Validate(); err == nil {
		t.Error("Validate() expected error for missing ds_name and ds_key")
	}
}
