package query

// Statement is the parsed form of a SELECT query. It carries no schema
// knowledge; the planner resolves and validates it. Statements compare by
// structural equality: the same text always parses to an identical tree.
type Statement struct {
	Projection ProjectionList
	From       string
	Where      Expr // nil when no WHERE clause
	Order      *OrderClause
	Limit      *LimitClause
}

// ProjectionList is either `*` or an explicit item list.
type ProjectionList struct {
	Star  bool
	Items []ProjectionItem
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

// ProjectionItem selects a metadata field, the record identifier, the
// similarity score, or the raw vector, with an optional output alias.
type ProjectionItem struct {
	Kind  ProjectionKind
	Field string // set when Kind == ProjField
	Alias string // "" means default alias
	Pos   int
}

// OrderKey identifies what an ORDER BY clause sorts on.
type OrderKey int

const (
	OrderSimilarity OrderKey = iota
	OrderField
)

// OrderClause is an unresolved ORDER BY. DirSet distinguishes an explicit
// ASC/DESC from the planner-chosen default.
type OrderClause struct {
	Key    OrderKey
	Field  string // set when Key == OrderField
	Desc   bool
	DirSet bool
	Pos    int
}

// LimitClause holds raw LIMIT/OFFSET values. They stay float64 until the
// planner validates they are non-negative integers.
type LimitClause struct {
	Limit     float64
	Offset    float64
	HasOffset bool
	Pos       int
}

// Expr represents a predicate expression
type Expr interface {
	isExpr()
}

// And represents a boolean AND of two expressions
type And struct {
	Left  Expr
	Right Expr
}

func (And) isExpr() {}

// Or represents a boolean OR of two expressions
type Or struct {
	Left  Expr
	Right Expr
}

func (Or) isExpr() {}

// Not represents a boolean NOT of an expression
type Not struct {
	Inner Expr
}

func (Not) isExpr() {}

// CmpOp is a comparison operator
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

// Cmp compares a field against a literal
type Cmp struct {
	Field string
	Op    CmpOp
	Value Literal
	Pos   int
}

func (Cmp) isExpr() {}

// In matches a field against a list of literals
type In struct {
	Field  string
	Values []Literal
	Pos    int
}

func (In) isExpr() {}

// Match is a similarity clause: MATCH <vector> WITHIN <k>
type Match struct {
	Vector VectorExpr
	K      float64 // validated as a positive integer by the planner
	Pos    int
}

func (Match) isExpr() {}

// LitKind is the type of a literal value
type LitKind int

const (
	LitString LitKind = iota
	LitNumber
	LitBool
)

func (k LitKind) String() string {
	switch k {
	case LitString:
		return "string"
	case LitNumber:
		return "number"
	case LitBool:
		return "bool"
	default:
		return "?"
	}
}

// Literal is a scalar literal value
type Literal struct {
	Kind LitKind
	Str  string
	Num  float64
	Bool bool
	Pos  int
}

// Value returns the literal as a Go value.
func (l Literal) Value() any {
	switch l.Kind {
	case LitString:
		return l.Str
	case LitNumber:
		return l.Num
	case LitBool:
		return l.Bool
	default:
		return nil
	}
}

// VectorExpr is either an inline vector literal or a named parameter
// resolved at planning time.
type VectorExpr struct {
	Values []float32 // inline literal
	Param  string    // "" unless a $param was used
	Pos    int
}
