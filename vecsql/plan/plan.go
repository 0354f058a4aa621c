// Package plan holds the validated, resolved form of a query. Plans are
// immutable once built: re-planning (including Shard derivation) always
// produces a new instance.
package plan

// NoLimit marks a plan without a LIMIT clause.
const NoLimit = -1

// QueryPlan is the executable form of a statement. Field references are
// resolved against a schema, the similarity clause (if any) is lifted out of
// the predicate tree, and limit/offset are validated non-negative integers.
type QueryPlan struct {
	Projection []ProjectionItem
	Predicate  Predicate // metadata predicate only, nil when absent
	Similarity *Similarity
	Order      *OrderBy
	Limit      int // NoLimit when absent
	Offset     int
	Targets    []string // resolved collections; empty means "resolve via router"
	Namespace  string   // logical FROM name, set when Targets is empty
}

// ProjectionKind identifies what a projection item selects.
type ProjectionKind int

const (
	ProjField ProjectionKind = iota
	ProjID
	ProjSimilarity
	ProjVector
)

func (k ProjectionKind) String() string {
	switch k {
	case ProjField:
		return "field"
	case ProjID:
		return "id"
	case ProjSimilarity:
		return "similarity"
	case ProjVector:
		return "vector"
	default:
		return "?"
	}
}

// ProjectionItem is one output column. Alias is always set by the planner
// and unique within a plan.
type ProjectionItem struct {
	Kind  ProjectionKind
	Field string // set when Kind == ProjField
	Alias string
}

// Similarity is a resolved nearest-neighbor clause.
type Similarity struct {
	Vector []float32
	TopK   int
}

// OrderKeyKind identifies what results are ordered by.
type OrderKeyKind int

const (
	OrderBySimilarity OrderKeyKind = iota
	OrderByField
)

// OrderBy is the plan's single ordering authority: the similarity score or a
// named metadata field, ascending or descending.
type OrderBy struct {
	Key        OrderKeyKind
	Field      string // set when Key == OrderByField
	Descending bool
}

// CmpOp is a resolved comparison operator
type CmpOp int

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpLte
	CmpGt
	CmpGte
)

func (op CmpOp) String() string {
	switch op {
	case CmpEq:
		return "="
	case CmpNe:
		return "!="
	case CmpLt:
		return "<"
	case CmpLte:
		return "<="
	case CmpGt:
		return ">"
	case CmpGte:
		return ">="
	default:
		return "?"
	}
}

// Predicate is a resolved predicate tree node. The set of implementations is
// closed; consumers switch exhaustively.
type Predicate interface {
	isPredicate()
}

// And is an n-ary conjunction (the planner flattens nested ANDs).
type And struct {
	Children []Predicate
}

func (And) isPredicate() {}

// Or is an n-ary disjunction (the planner flattens nested ORs).
type Or struct {
	Children []Predicate
}

func (Or) isPredicate() {}

// Not negates its inner predicate.
type Not struct {
	Inner Predicate
}

func (Not) isPredicate() {}

// Compare tests a resolved field against a literal. Value is one of
// string, float64, or bool, matching the field's schema type.
type Compare struct {
	Field string
	Op    CmpOp
	Value any
}

func (Compare) isPredicate() {}

// In tests a resolved field against a literal list.
type In struct {
	Field  string
	Values []any
}

func (In) isPredicate() {}

// HasLimit reports whether the plan carries a LIMIT clause.
func (p *QueryPlan) HasLimit() bool { return p.Limit != NoLimit }

// FetchLimit is the number of rows a single collection must be asked for to
// guarantee a correct global top-K: limit+offset, or NoLimit when unbounded.
func (p *QueryPlan) FetchLimit() int {
	if !p.HasLimit() {
		return NoLimit
	}
	return p.Limit + p.Offset
}

// Shard derives the per-collection plan used during fan-out: a copy bound to
// exactly one collection, asking for up to limit+offset rows with no offset
// (the offset is applied globally after the merge).
func (p *QueryPlan) Shard(collection string) *QueryPlan {
	s := *p
	s.Projection = append([]ProjectionItem(nil), p.Projection...)
	s.Targets = []string{collection}
	s.Namespace = ""
	s.Limit = p.FetchLimit()
	s.Offset = 0
	return &s
}

// OrderField returns the metadata field the plan orders by, when ordering
// is by field rather than by similarity score.
func (p *QueryPlan) OrderField() (string, bool) {
	if p.Order == nil || p.Order.Key != OrderByField {
		return "", false
	}
	return p.Order.Field, true
}
