// Package analysis extracts facts from resolved predicate trees, primarily
// the equality constraints the collection router keys its decisions on.
package analysis

import (
	"fmt"
	"sort"

	"github.com/nonibytes/vecsql/vecsql/plan"
)

// EqualityValues returns the set of values the field is provably constrained
// to by the predicate, and whether the constraint is definite. A definite
// result means every matching record must carry one of the returned values;
// an empty definite set means the predicate is unsatisfiable on that field.
// Negations, ranges, and unconstrained branches yield an indefinite result.
func EqualityValues(pred plan.Predicate, field string) ([]string, bool) {
	values, ok := equalitySet(pred, field)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(values))
	for v := range values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, true
}

func equalitySet(pred plan.Predicate, field string) (map[string]bool, bool) {
	switch p := pred.(type) {
	case plan.And:
		// Intersect the definite children; any definite conjunct alone pins
		// the field.
		var acc map[string]bool
		for _, child := range p.Children {
			set, ok := equalitySet(child, field)
			if !ok {
				continue
			}
			if acc == nil {
				acc = set
				continue
			}
			acc = intersect(acc, set)
		}
		return acc, acc != nil

	case plan.Or:
		// A disjunction pins the field only when every branch does.
		union := map[string]bool{}
		for _, child := range p.Children {
			set, ok := equalitySet(child, field)
			if !ok {
				return nil, false
			}
			for v := range set {
				union[v] = true
			}
		}
		if len(p.Children) == 0 {
			return nil, false
		}
		return union, true

	case plan.Compare:
		if p.Field != field || p.Op != plan.CmpEq {
			return nil, false
		}
		return map[string]bool{valueKey(p.Value): true}, true

	case plan.In:
		if p.Field != field {
			return nil, false
		}
		set := make(map[string]bool, len(p.Values))
		for _, v := range p.Values {
			set[valueKey(v)] = true
		}
		return set, true

	default:
		// Not and unknown nodes cannot pin an equality.
		return nil, false
	}
}

func intersect(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for v := range a {
		if b[v] {
			out[v] = true
		}
	}
	return out
}

// valueKey renders a literal the way routing rules are normally written:
// strings as-is, numbers and bools in their canonical Go form.
func valueKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// FieldsReferenced returns the distinct metadata fields the predicate
// touches, in sorted order.
func FieldsReferenced(pred plan.Predicate) []string {
	seen := map[string]bool{}
	collectFields(pred, seen)
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func collectFields(pred plan.Predicate, seen map[string]bool) {
	switch p := pred.(type) {
	case plan.And:
		for _, child := range p.Children {
			collectFields(child, seen)
		}
	case plan.Or:
		for _, child := range p.Children {
			collectFields(child, seen)
		}
	case plan.Not:
		collectFields(p.Inner, seen)
	case plan.Compare:
		seen[p.Field] = true
	case plan.In:
		seen[p.Field] = true
	}
}
