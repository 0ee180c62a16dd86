package gateway

import "time"

type Op string

const (
	OpEq  Op = "eq"
	OpIn  Op = "in"
	OpGte Op = "gte"
	OpLte Op = "lte"
)

type Cond struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Value  any    `json:"value"`
}

// Filter is a conjunction of conditions, optionally extended with a
// disjunction of sub-filters (OR of equality clauses).
type Filter struct {
	Conds []Cond   `json:"conds,omitempty"`
	Or    []Filter `json:"or,omitempty"`
}

func Where(column string, op Op, value any) Filter {
	return Filter{Conds: []Cond{{Column: column, Op: op, Value: value}}}
}

func Eq(column string, value any) Filter {
	return Where(column, OpEq, value)
}

func In(column string, values []string) Filter {
	return Where(column, OpIn, values)
}

func (f Filter) And(column string, op Op, value any) Filter {
	f.Conds = append(f.Conds, Cond{Column: column, Op: op, Value: value})
	return f
}

// AnyOf produces a filter matching rows that satisfy at least one branch.
func AnyOf(branches ...Filter) Filter {
	return Filter{Or: branches}
}

func (f Filter) Empty() bool {
	return len(f.Conds) == 0 && len(f.Or) == 0
}

// Match evaluates the filter against a row in memory. All Conds must hold
// and, when Or branches are present, at least one branch must match.
func (f Filter) Match(row Row) bool {
	for _, c := range f.Conds {
		if !c.match(row) {
			return false
		}
	}
	if len(f.Or) > 0 {
		for _, branch := range f.Or {
			if branch.Match(row) {
				return true
			}
		}
		return false
	}
	return true
}

func (c Cond) match(row Row) bool {
	have, ok := row[c.Column]
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return equalValues(have, c.Value)
	case OpIn:
		for _, want := range inValues(c.Value) {
			if equalValues(have, want) {
				return true
			}
		}
		return false
	case OpGte:
		cmp, ok := compareValues(have, c.Value)
		return ok && cmp >= 0
	case OpLte:
		cmp, ok := compareValues(have, c.Value)
		return ok && cmp <= 0
	}
	return false
}

func inValues(v any) []any {
	switch vs := v.(type) {
	case []any:
		return vs
	case []string:
		out := make([]any, len(vs))
		for i, s := range vs {
			out[i] = s
		}
		return out
	}
	return []any{v}
}

func equalValues(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Equal(bt)
		}
	}
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
	}
	return a == b
}

// compareValues orders timestamps and numbers; other types only support
// equality. The second return reports whether the pair was comparable.
func compareValues(a, b any) (int, bool) {
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			switch {
			case at.Before(bt):
				return -1, true
			case at.After(bt):
				return 1, true
			}
			return 0, true
		}
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
