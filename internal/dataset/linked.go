package dataset

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/visualedit/internal/lookup"
)

// Result sizes of a lookup: a search term narrows the list, no term offers a
// broad choice.
const (
	SearchResultLimit = 10
	FullResultLimit   = 1000
)

// LookupColumn copies a linked dataset column into the grid.
type LookupColumn struct {
	// Name is the column name in the grid.
	Name string `yaml:"name" json:"name"`
	// LinkedColumn is the column name in the linked dataset.
	LinkedColumn string `yaml:"linked_ds_column_name" json:"linked_ds_column_name"`
}

// LinkedRecord configures a grid column whose values are keys into another
// dataset.
type LinkedRecord struct {
	// Column is the grid column holding the key.
	Column        string         `yaml:"name" json:"name"`
	DSName        string         `yaml:"ds_name" json:"ds_name"`
	Key           string         `yaml:"ds_key" json:"ds_key"`
	Label         string         `yaml:"ds_label" json:"ds_label"`
	LookupColumns []LookupColumn `yaml:"lookup_columns" json:"lookup_columns"`
}

// Validate reports missing required fields.
func (lr LinkedRecord) Validate() error {
	var missing []string
	if lr.Column == "" {
		missing = append(missing, "name")
	}
	if lr.DSName == "" {
		missing = append(missing, "ds_name")
	}
	if lr.Key == "" {
		missing = append(missing, "ds_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("linked record %q: missing %s", lr.Column, strings.Join(missing, ", "))
	}
	return nil
}

func (lr LinkedRecord) labelColumn() string {
	if lr.Label == "" {
		return lr.Key
	}
	return lr.Label
}

func (lr LinkedRecord) linkedColumns() []string {
	out := make([]string, len(lr.LookupColumns))
	for i, c := range lr.LookupColumns {
		out[i] = c.LinkedColumn
	}
	return out
}

// selectColumns lists key, label (when distinct) and lookup columns.
func (lr LinkedRecord) selectColumns() []string {
	cols := []string{lr.Key}
	if lr.labelColumn() != lr.Key {
		cols = append(cols, lr.labelColumn())
	}
	return append(cols, lr.linkedColumns()...)
}

// buildSearchQuery returns the lookup query for term. Matching is a
// case-insensitive substring test on the label column.
func buildSearchQuery(lr LinkedRecord, term string) (string, []any) {
	label := quoteIdentifier(lr.labelColumn())
	query := fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(quoteColumns(lr.selectColumns()), ", "),
		quoteIdentifier(lr.DSName),
	)

	var args []any
	limit := FullResultLimit
	if term = normalizeTerm(term); term != "" {
		query += fmt.Sprintf(" WHERE strpos(lower(%s::text), $1) > 0", label)
		args = append(args, term)
		limit = SearchResultLimit
	}
	query += fmt.Sprintf(" ORDER BY %s ASC LIMIT %d", label, limit)
	return query, args
}

func buildLabelQuery(lr LinkedRecord) string {
	return fmt.Sprintf("SELECT %s::text FROM %s WHERE %s::text = $1 LIMIT 1",
		quoteIdentifier(lr.labelColumn()),
		quoteIdentifier(lr.DSName),
		quoteIdentifier(lr.Key),
	)
}

// buildLookupValuesQuery selects key and lookup columns for extending grid
// rows with linked values.
func buildLookupValuesQuery(lr LinkedRecord) string {
	cols := append([]string{lr.Key}, lr.linkedColumns()...)
	return fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(quoteColumns(cols), ", "),
		quoteIdentifier(lr.DSName),
	)
}

func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// toCandidates converts selected rows to lookup candidates. Without a
// distinct label or lookup columns every row is a plain value.
func toCandidates(lr LinkedRecord, rows [][]any) []lookup.Candidate {
	out := make([]lookup.Candidate, 0, len(rows))
	hasLabel := lr.labelColumn() != lr.Key
	extras := lr.linkedColumns()

	for _, vals := range rows {
		c := lookup.Candidate{Value: vals[0], Label: display(vals[0])}
		i := 1
		if hasLabel {
			c.Label = display(vals[i])
			i++
		}
		if len(extras) > 0 {
			c.Extra = make(map[string]any, len(extras))
			for _, name := range extras {
				c.Extra[name] = vals[i]
				i++
			}
		}
		out = append(out, c)
	}
	return out
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteColumns(cols []string) []string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdentifier(c)
	}
	return quoted
}
