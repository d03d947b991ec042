package filters

import "log/slog"

// ColumnRegistry is the grid's column filter state.
type ColumnRegistry interface {
	HasColumn(field string) bool
	SetFilter(field string, p Predicate)
	ClearFilter(field string)
	ClearFilters()
}

// Outcome describes what a message did to the filter state.
type Outcome int

const (
	Ignored Outcome = iota
	ClearedAll
	ClearedColumn
	Installed
	UnknownColumn
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case ClearedAll:
		return "cleared_all"
	case ClearedColumn:
		return "cleared_column"
	case Installed:
		return "installed"
	case UnknownColumn:
		return "unknown_column"
	default:
		return "unknown"
	}
}

// Translator applies dashboard filter messages to a column registry.
// Each message fully replaces the prior predicate of the column it targets.
type Translator struct {
	columns ColumnRegistry
	logger  *slog.Logger
}

// NewTranslator creates a translator writing to columns.
// A nil logger uses slog.Default().
func NewTranslator(columns ColumnRegistry, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{columns: columns, logger: logger}
}

// OnMessage decodes and applies a raw posted payload.
// Malformed payloads are ignored.
func (t *Translator) OnMessage(raw []byte) Outcome {
	msg, ok := DecodeMessage(raw)
	if !ok {
		t.logger.Debug("filter message ignored", "reason", "malformed")
		return Ignored
	}
	return t.Apply(msg)
}

// Apply runs one message through the filter state machine. Only the first
// filter entry is consulted.
func (t *Translator) Apply(msg Message) Outcome {
	if msg.Type != MessageTypeFilters {
		return Ignored
	}

	if len(msg.Filters) == 0 {
		t.columns.ClearFilters()
		t.logger.Debug("filters cleared", "reason", "empty filter list")
		return ClearedAll
	}

	f := msg.Filters[0]
	if !f.Active || (f.FilterType != AlphanumFacet && f.FilterType != NumericalFacet) {
		t.columns.ClearFilters()
		t.logger.Debug("filters cleared",
			"reason", "inactive or unsupported filter",
			"filter_type", f.FilterType,
			"active", f.Active,
		)
		return ClearedAll
	}

	if !t.columns.HasColumn(f.Column) {
		t.logger.Debug("filter targets unknown column", "column", f.Column)
		return UnknownColumn
	}

	var p Predicate
	switch f.FilterType {
	case AlphanumFacet:
		included, excluded := f.Partition()
		switch {
		case len(included) > 0:
			p = EqualsAnyOf(included...)
		case len(excluded) > 0:
			p = NotEqualsAnyOf(excluded...)
		default:
			t.columns.ClearFilter(f.Column)
			return ClearedColumn
		}
	case NumericalFacet:
		p = Between(f.MinValue, f.MaxValue)
	}

	t.columns.SetFilter(f.Column, p)
	t.logger.Debug("filter installed", "column", f.Column, "predicate", p.String())
	return Installed
}
