package planner

import (
	"reflect"
	"testing"

	"github.com/nonibytes/vecsql/vecsql/plan"
)

func cmpEq(field, value string) plan.Predicate {
	return plan.Compare{Field: field, Op: plan.CmpEq, Value: value}
}

func TestNormalizeDoubleNegation(t *testing.T) {
	p := plan.Not{Inner: plan.Not{Inner: cmpEq("a", "x")}}
	got := Normalize(p)
	if !reflect.DeepEqual(got, cmpEq("a", "x")) {
		t.Errorf("expected inner predicate, got %#v", got)
	}
}

func TestNormalizeFlattensNestedAnd(t *testing.T) {
	p := plan.And{Children: []plan.Predicate{
		plan.And{Children: []plan.Predicate{cmpEq("a", "1"), cmpEq("b", "2")}},
		cmpEq("c", "3"),
	}}
	got, ok := Normalize(p).(plan.And)
	if !ok {
		t.Fatalf("expected And, got %T", Normalize(p))
	}
	if len(got.Children) != 3 {
		t.Errorf("expected 3 flattened children, got %d", len(got.Children))
	}
}

func TestNormalizeKeepsOrInsideAnd(t *testing.T) {
	p := plan.And{Children: []plan.Predicate{
		plan.Or{Children: []plan.Predicate{cmpEq("a", "1"), cmpEq("b", "2")}},
		cmpEq("c", "3"),
	}}
	got, ok := Normalize(p).(plan.And)
	if !ok {
		t.Fatalf("expected And, got %T", Normalize(p))
	}
	if len(got.Children) != 2 {
		t.Errorf("expected 2 children, got %d", len(got.Children))
	}
	if _, ok := got.Children[0].(plan.Or); !ok {
		t.Errorf("expected Or preserved, got %T", got.Children[0])
	}
}

func TestNormalizeDedupesSiblings(t *testing.T) {
	p := plan.Or{Children: []plan.Predicate{cmpEq("a", "1"), cmpEq("a", "1"), cmpEq("b", "2")}}
	got, ok := Normalize(p).(plan.Or)
	if !ok {
		t.Fatalf("expected Or, got %T", Normalize(p))
	}
	if len(got.Children) != 2 {
		t.Errorf("expected duplicate removed, got %d children", len(got.Children))
	}
}

func TestNormalizeCollapsesSingleChild(t *testing.T) {
	p := plan.And{Children: []plan.Predicate{cmpEq("a", "1"), cmpEq("a", "1")}}
	got := Normalize(p)
	if !reflect.DeepEqual(got, cmpEq("a", "1")) {
		t.Errorf("expected collapse to the single child, got %#v", got)
	}
}

func TestNormalizeNil(t *testing.T) {
	if got := Normalize(nil); got != nil {
		t.Errorf("expected nil, got %#v", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	p := plan.And{Children: []plan.Predicate{
		plan.Not{Inner: plan.Not{Inner: cmpEq("a", "1")}},
		plan.And{Children: []plan.Predicate{cmpEq("b", "2"), cmpEq("b", "2")}},
	}}
	once := Normalize(p)
	twice := Normalize(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("normalize not idempotent: %#v vs %#v", once, twice)
	}
}
