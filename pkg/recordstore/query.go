package recordstore

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Op is a comparison operator in a filter condition.
type Op string

const (
	OpEq  Op = "eq"
	OpGte Op = "gte"
	OpLte Op = "lte"
)

// Condition compares one field of a record with a value.
type Condition struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Filter is a conjunction of conditions. An empty filter matches everything.
type Filter []Condition

// Eq, Gte and Lte build single conditions.
func Eq(field string, v any) Condition  { return Condition{Field: field, Op: OpEq, Value: v} }
func Gte(field string, v any) Condition { return Condition{Field: field, Op: OpGte, Value: v} }
func Lte(field string, v any) Condition { return Condition{Field: field, Op: OpLte, Value: v} }

// Where builds a filter from conditions.
func Where(conds ...Condition) Filter { return Filter(conds) }

// Order sorts results by a field.
type Order struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Query combines a filter with an optional order.
type Query struct {
	Filter Filter `json:"filter,omitempty"`
	Order  *Order `json:"order,omitempty"`
}

var fieldPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateField rejects anything but lower-case identifiers. SQL backends
// interpolate field names into statements, so every backend applies this.
func ValidateField(field string) error {
	if !fieldPattern.MatchString(field) {
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	return nil
}

// ValidateCollection applies the field rule to a collection name. Collection
// names become table and file names.
func ValidateCollection(collection string) error {
	if !fieldPattern.MatchString(collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidField, collection)
	}
	return nil
}

// Validate checks every field name and operator in the query.
func (q Query) Validate() error {
	if err := q.Filter.Validate(); err != nil {
		return err
	}
	if q.Order != nil {
		return ValidateField(q.Order.Field)
	}
	return nil
}

// Validate checks every field name and operator in the filter.
func (f Filter) Validate() error {
	for _, c := range f {
		if err := ValidateField(c.Field); err != nil {
			return err
		}
		switch c.Op {
		case OpEq, OpGte, OpLte:
		default:
			return fmt.Errorf("unsupported operator %q", c.Op)
		}
	}
	return nil
}

// Match reports whether rec satisfies every condition.
func (f Filter) Match(rec Record) bool {
	for _, c := range f {
		v := rec[c.Field]
		switch c.Op {
		case OpEq:
			if Compare(v, c.Value) != 0 {
				return false
			}
		case OpGte:
			if v == nil || Compare(v, c.Value) < 0 {
				return false
			}
		case OpLte:
			if v == nil || Compare(v, c.Value) > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Sort orders records in place. Records missing the field sort first.
func Sort(recs []Record, o *Order) {
	if o == nil {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		c := Compare(recs[i][o.Field], recs[j][o.Field])
		if o.Desc {
			return c > 0
		}
		return c < 0
	})
}

// Compare orders two record values. Numbers compare numerically, strings
// lexicographically, nil before everything else. Mixed kinds fall back to
// their string forms.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
