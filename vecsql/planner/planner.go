// Package planner resolves a parsed statement against a schema and builds an
// executable QueryPlan. Planning is all-or-nothing: the first validation
// error aborts and no partial plan is returned.
package planner

import (
	"fmt"
	"math"
	"sort"

	vqerrors "github.com/nonibytes/vecsql/vecsql/errors"
	"github.com/nonibytes/vecsql/vecsql/plan"
	"github.com/nonibytes/vecsql/vecsql/query"
	"github.com/nonibytes/vecsql/vecsql/schema"
)

// Params supplies values for $name vector parameters referenced in a query.
type Params map[string][]float32

type builder struct {
	schema  schema.Schema
	members []string // physical collections the FROM clause denotes
	params  Params

	similarity *plan.Similarity
}

// BuildPlan resolves and validates a statement, producing an immutable plan.
func BuildPlan(stmt *query.Statement, sch schema.Schema, params Params) (*plan.QueryPlan, error) {
	members, ok := sch.Members(stmt.From)
	if !ok {
		return nil, vqerrors.Planf("unknown collection or namespace: %s", stmt.From)
	}

	b := &builder{schema: sch, members: members, params: params}

	pred, err := b.buildPredicate(stmt.Where)
	if err != nil {
		return nil, err
	}
	pred = Normalize(pred)

	projection, err := b.buildProjection(stmt.Projection)
	if err != nil {
		return nil, err
	}

	order, err := b.buildOrder(stmt.Order)
	if err != nil {
		return nil, err
	}

	limit, offset, err := buildLimit(stmt.Limit)
	if err != nil {
		return nil, err
	}

	p := &plan.QueryPlan{
		Projection: projection,
		Predicate:  pred,
		Similarity: b.similarity,
		Order:      order,
		Limit:      limit,
		Offset:     offset,
	}
	if sch.IsNamespace(stmt.From) {
		p.Namespace = stmt.From
	} else {
		p.Targets = []string{stmt.From}
	}
	return p, nil
}

// resolveField checks the field exists, with a consistent type, in every
// collection the FROM clause spans.
func (b *builder) resolveField(name string) (schema.FieldSpec, error) {
	var spec schema.FieldSpec
	for i, coll := range b.members {
		cs, _ := b.schema.Collection(coll)
		s, ok := cs.Get(name)
		if !ok {
			return schema.FieldSpec{}, vqerrors.PlanField(
				fmt.Sprintf("unknown field in collection %s", coll), name)
		}
		if i == 0 {
			spec = s
		} else if s.Type != spec.Type {
			return schema.FieldSpec{}, vqerrors.PlanField(
				fmt.Sprintf("field type differs across collections (%s vs %s)", spec.Type, s.Type), name)
		}
	}
	return spec, nil
}

// sharedFields returns the fields present in every member collection, in
// sorted order, for deterministic `*` expansion.
func (b *builder) sharedFields() []string {
	counts := make(map[string]int)
	for _, coll := range b.members {
		cs, _ := b.schema.Collection(coll)
		for name := range cs.Fields {
			counts[name]++
		}
	}
	var names []string
	for name, n := range counts {
		if n == len(b.members) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (b *builder) buildProjection(list query.ProjectionList) ([]plan.ProjectionItem, error) {
	var items []plan.ProjectionItem

	if list.Star {
		items = append(items, plan.ProjectionItem{Kind: plan.ProjID, Alias: "id"})
		for _, name := range b.sharedFields() {
			items = append(items, plan.ProjectionItem{Kind: plan.ProjField, Field: name, Alias: name})
		}
		if b.similarity != nil {
			items = append(items, plan.ProjectionItem{Kind: plan.ProjSimilarity, Alias: "similarity"})
		}
	} else {
		for _, item := range list.Items {
			resolved := plan.ProjectionItem{Alias: item.Alias}
			switch item.Kind {
			case query.ProjField:
				if _, err := b.resolveField(item.Field); err != nil {
					return nil, err
				}
				resolved.Kind = plan.ProjField
				resolved.Field = item.Field
				if resolved.Alias == "" {
					resolved.Alias = item.Field
				}
			case query.ProjID:
				resolved.Kind = plan.ProjID
				if resolved.Alias == "" {
					resolved.Alias = "id"
				}
			case query.ProjSimilarity:
				if b.similarity == nil {
					return nil, vqerrors.Planf("SIMILARITY projection requires a MATCH clause")
				}
				resolved.Kind = plan.ProjSimilarity
				if resolved.Alias == "" {
					resolved.Alias = "similarity"
				}
			case query.ProjVector:
				resolved.Kind = plan.ProjVector
				if resolved.Alias == "" {
					resolved.Alias = "vector"
				}
			}
			items = append(items, resolved)
		}
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.Alias] {
			return nil, vqerrors.Planf("duplicate projection alias: %s", item.Alias)
		}
		seen[item.Alias] = true
	}
	return items, nil
}

// buildPredicate resolves the WHERE tree, lifting the similarity clause out
// of it. MATCH is only legal in conjunctive position: it may not appear under
// NOT or OR, and at most once per query.
func (b *builder) buildPredicate(expr query.Expr) (plan.Predicate, error) {
	if expr == nil {
		return nil, nil
	}
	return b.walkPredicate(expr, true)
}

func (b *builder) walkPredicate(expr query.Expr, conjunctive bool) (plan.Predicate, error) {
	switch e := expr.(type) {
	case query.And:
		left, err := b.walkPredicate(e.Left, conjunctive)
		if err != nil {
			return nil, err
		}
		right, err := b.walkPredicate(e.Right, conjunctive)
		if err != nil {
			return nil, err
		}
		// A lifted MATCH leaves a nil branch behind.
		switch {
		case left == nil && right == nil:
			return nil, nil
		case left == nil:
			return right, nil
		case right == nil:
			return left, nil
		}
		return plan.And{Children: []plan.Predicate{left, right}}, nil

	case query.Or:
		left, err := b.walkPredicate(e.Left, false)
		if err != nil {
			return nil, err
		}
		right, err := b.walkPredicate(e.Right, false)
		if err != nil {
			return nil, err
		}
		return plan.Or{Children: []plan.Predicate{left, right}}, nil

	case query.Not:
		inner, err := b.walkPredicate(e.Inner, false)
		if err != nil {
			return nil, err
		}
		return plan.Not{Inner: inner}, nil

	case query.Cmp:
		return b.buildCompare(e)

	case query.In:
		return b.buildIn(e)

	case query.Match:
		if !conjunctive {
			return nil, vqerrors.Planf("MATCH clause must appear in top-level AND position, not under NOT or OR")
		}
		if b.similarity != nil {
			return nil, vqerrors.Planf("query may contain at most one MATCH clause")
		}
		sim, err := b.buildSimilarity(e)
		if err != nil {
			return nil, err
		}
		b.similarity = sim
		return nil, nil

	default:
		return nil, vqerrors.Planf("unknown expression type: %T", expr)
	}
}

func (b *builder) buildCompare(e query.Cmp) (plan.Predicate, error) {
	spec, err := b.resolveField(e.Field)
	if err != nil {
		return nil, err
	}
	if err := checkLiteralType(e.Field, spec.Type, e.Value); err != nil {
		return nil, err
	}
	switch e.Op {
	case query.CmpLt, query.CmpLte, query.CmpGt, query.CmpGte:
		if !spec.Type.Ordinal() {
			return nil, vqerrors.PlanField(
				fmt.Sprintf("operator %s requires an ordinal field, got %s", e.Op, spec.Type), e.Field)
		}
	}
	return plan.Compare{Field: e.Field, Op: cmpOp(e.Op), Value: e.Value.Value()}, nil
}

func (b *builder) buildIn(e query.In) (plan.Predicate, error) {
	spec, err := b.resolveField(e.Field)
	if err != nil {
		return nil, err
	}
	values := make([]any, 0, len(e.Values))
	for _, lit := range e.Values {
		if err := checkLiteralType(e.Field, spec.Type, lit); err != nil {
			return nil, err
		}
		values = append(values, lit.Value())
	}
	return plan.In{Field: e.Field, Values: values}, nil
}

func (b *builder) buildSimilarity(e query.Match) (*plan.Similarity, error) {
	k := e.K
	if k != math.Trunc(k) || k < 1 {
		return nil, vqerrors.Planf("WITHIN count must be a positive integer, got %v", k)
	}

	vec := e.Vector.Values
	if e.Vector.Param != "" {
		bound, ok := b.params[e.Vector.Param]
		if !ok {
			return nil, vqerrors.Planf("unbound vector parameter: $%s", e.Vector.Param)
		}
		vec = bound
	}
	if len(vec) == 0 {
		return nil, vqerrors.Planf("MATCH vector must not be empty")
	}

	for _, coll := range b.members {
		cs, _ := b.schema.Collection(coll)
		if cs.VectorDim > 0 && cs.VectorDim != len(vec) {
			return nil, vqerrors.Planf("vector dimensionality mismatch for collection %s: want %d, got %d",
				coll, cs.VectorDim, len(vec))
		}
	}

	return &plan.Similarity{Vector: append([]float32(nil), vec...), TopK: int(k)}, nil
}

func (b *builder) buildOrder(clause *query.OrderClause) (*plan.OrderBy, error) {
	if clause == nil {
		// A similarity query without ORDER BY still sorts by score.
		if b.similarity != nil {
			return &plan.OrderBy{Key: plan.OrderBySimilarity, Descending: true}, nil
		}
		return nil, nil
	}

	switch clause.Key {
	case query.OrderSimilarity:
		// Legal without MATCH: the key is then whatever score the provider
		// attached to each record, and scoreless records sort last.
		desc := true // higher score first by default
		if clause.DirSet {
			desc = clause.Desc
		}
		return &plan.OrderBy{Key: plan.OrderBySimilarity, Descending: desc}, nil

	default:
		spec, err := b.resolveField(clause.Field)
		if err != nil {
			return nil, err
		}
		if spec.Type == schema.FieldBool {
			return nil, vqerrors.PlanField("cannot order by a bool field", clause.Field)
		}
		desc := false
		if clause.DirSet {
			desc = clause.Desc
		}
		return &plan.OrderBy{Key: plan.OrderByField, Field: clause.Field, Descending: desc}, nil
	}
}

func buildLimit(clause *query.LimitClause) (limit, offset int, err error) {
	if clause == nil {
		return plan.NoLimit, 0, nil
	}
	if clause.Limit != math.Trunc(clause.Limit) || clause.Limit < 0 {
		return 0, 0, vqerrors.Planf("LIMIT must be a non-negative integer, got %v", clause.Limit)
	}
	limit = int(clause.Limit)
	if clause.HasOffset {
		if clause.Offset != math.Trunc(clause.Offset) || clause.Offset < 0 {
			return 0, 0, vqerrors.Planf("OFFSET must be a non-negative integer, got %v", clause.Offset)
		}
		offset = int(clause.Offset)
	}
	return limit, offset, nil
}

func checkLiteralType(field string, ft schema.FieldType, lit query.Literal) error {
	ok := false
	switch ft {
	case schema.FieldString:
		ok = lit.Kind == query.LitString
	case schema.FieldNumber:
		ok = lit.Kind == query.LitNumber
	case schema.FieldBool:
		ok = lit.Kind == query.LitBool
	}
	if !ok {
		return vqerrors.PlanField(
			fmt.Sprintf("type mismatch: field is %s, literal is %s", ft, lit.Kind), field)
	}
	return nil
}

func cmpOp(op query.CmpOp) plan.CmpOp {
	switch op {
	case query.CmpEq:
		return plan.CmpEq
	case query.CmpNe:
		return plan.CmpNe
	case query.CmpLt:
		return plan.CmpLt
	case query.CmpLte:
		return plan.CmpLte
	case query.CmpGt:
		return plan.CmpGt
	default:
		return plan.CmpGte
	}
}
