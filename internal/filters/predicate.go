// Package filters translates facet-filter events posted by an enclosing
// dashboard into the grid's column filter predicates.
package filters

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the predicate variant.
type Kind int

const (
	Cleared Kind = iota
	EqualsAny
	NotEqualsAny
	InRange
)

func (k Kind) String() string {
	switch k {
	case Cleared:
		return "cleared"
	case EqualsAny:
		return "equals-any"
	case NotEqualsAny:
		return "not-equals-any"
	case InRange:
		return "range"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Range bounds a numeric column. A nil bound is unbounded on that side.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Unbounded reports whether neither side is set.
func (r Range) Unbounded() bool { return r.Min == nil && r.Max == nil }

// Match reports whether v falls within the range. An unbounded range
// matches everything, including nil and NaN. A bounded range rejects
// values that are empty or not numeric.
func (r Range) Match(v any) bool {
	if r.Unbounded() {
		return true
	}
	f, ok := toFloat(v)
	if !ok {
		return false
	}
	if r.Min != nil && f < *r.Min {
		return false
	}
	if r.Max != nil && f > *r.Max {
		return false
	}
	return true
}

func (r Range) String() string {
	bound := func(p *float64) string {
		if p == nil {
			return ""
		}
		return strconv.FormatFloat(*p, 'f', -1, 64)
	}
	return fmt.Sprintf("%s,%s", bound(r.Min), bound(r.Max))
}

// ParseRange builds a range from the start/end strings of a min/max header
// filter. Empty strings leave that side unbounded.
func ParseRange(start, end string) (Range, error) {
	var r Range
	if s := strings.TrimSpace(start); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Range{}, fmt.Errorf("invalid number %q for range start", start)
		}
		r.Min = &f
	}
	if s := strings.TrimSpace(end); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Range{}, fmt.Errorf("invalid number %q for range end", end)
		}
		r.Max = &f
	}
	return r, nil
}

// Predicate is the filter installed on a single column.
type Predicate struct {
	Kind   Kind     `json:"kind"`
	Values []string `json:"values,omitempty"`
	Range  Range    `json:"range,omitempty"`
}

// Clear returns the cleared predicate.
func Clear() Predicate { return Predicate{Kind: Cleared} }

// EqualsAnyOf matches rows whose value equals one of values (OR semantics).
func EqualsAnyOf(values ...string) Predicate {
	return Predicate{Kind: EqualsAny, Values: values}
}

// NotEqualsAnyOf matches rows whose value equals none of values.
func NotEqualsAnyOf(values ...string) Predicate {
	return Predicate{Kind: NotEqualsAny, Values: values}
}

// Between matches rows whose numeric value lies within [min, max].
func Between(min, max *float64) Predicate {
	return Predicate{Kind: InRange, Range: Range{Min: min, Max: max}}
}

// Match reports whether a row value passes the predicate.
func (p Predicate) Match(v any) bool {
	switch p.Kind {
	case EqualsAny:
		return p.contains(v)
	case NotEqualsAny:
		return !p.contains(v)
	case InRange:
		return p.Range.Match(v)
	default:
		return true
	}
}

func (p Predicate) contains(v any) bool {
	s := toString(v)
	for _, want := range p.Values {
		if s == want {
			return true
		}
	}
	return false
}

func (p Predicate) String() string {
	switch p.Kind {
	case EqualsAny, NotEqualsAny:
		return fmt.Sprintf("%s(%s)", p.Kind, strings.Join(p.Values, ","))
	case InRange:
		return fmt.Sprintf("%s(%s)", p.Kind, p.Range)
	default:
		return p.Kind.String()
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
