package planner

import (
	"reflect"

	"github.com/nonibytes/vecsql/vecsql/plan"
)

// Normalize simplifies a resolved predicate tree: double negations are
// eliminated, nested AND/OR nodes are flattened into n-ary form, duplicate
// siblings are dropped, and single-child AND/OR collapse to the child.
// Best-effort simplification, not an optimizer.
func Normalize(p plan.Predicate) plan.Predicate {
	if p == nil {
		return nil
	}
	switch node := p.(type) {
	case plan.And:
		children := flatten(node.Children, true)
		if len(children) == 1 {
			return children[0]
		}
		return plan.And{Children: children}
	case plan.Or:
		children := flatten(node.Children, false)
		if len(children) == 1 {
			return children[0]
		}
		return plan.Or{Children: children}
	case plan.Not:
		inner := Normalize(node.Inner)
		if doubled, ok := inner.(plan.Not); ok {
			return doubled.Inner
		}
		return plan.Not{Inner: inner}
	default:
		return p
	}
}

// flatten normalizes each child, splices same-kind composites into the
// parent, and removes structural duplicates preserving first occurrence.
func flatten(children []plan.Predicate, conjunction bool) []plan.Predicate {
	var out []plan.Predicate
	for _, child := range children {
		c := Normalize(child)
		switch nested := c.(type) {
		case plan.And:
			if conjunction {
				out = append(out, nested.Children...)
				continue
			}
		case plan.Or:
			if !conjunction {
				out = append(out, nested.Children...)
				continue
			}
		}
		out = append(out, c)
	}
	return dedupe(out)
}

func dedupe(children []plan.Predicate) []plan.Predicate {
	var out []plan.Predicate
	for _, c := range children {
		dup := false
		for _, seen := range out {
			if reflect.DeepEqual(seen, c) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}
