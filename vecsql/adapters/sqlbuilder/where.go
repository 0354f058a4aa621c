package sqlbuilder

import (
	"strings"

	vqerrors "github.com/nonibytes/vecsql/vecsql/errors"
	"github.com/nonibytes/vecsql/vecsql/plan"
)

// Dialect maps a metadata field reference to the SQL expression that reads it
// from the row, given a sample of the value it will be compared against. The
// sample lets JSON-backed dialects pick the right extraction and cast.
type Dialect interface {
	FieldExpr(field string, sample any) string
}

// Where renders a plan predicate as a SQL boolean expression, registering
// every literal as a bind argument on b. The expression is fully
// parenthesized so callers can embed it directly after WHERE.
//
// Leaves are rendered two-valued: a comparison over a missing field (NULL
// extraction) is false, never unknown, so NOT and OR compose with the same
// semantics as the local EvalPredicate filter.
func Where(b *Builder, pred plan.Predicate, d Dialect) (string, error) {
	switch p := pred.(type) {
	case plan.And:
		return joinChildren(b, p.Children, " AND ", d)
	case plan.Or:
		return joinChildren(b, p.Children, " OR ", d)
	case plan.Not:
		inner, err := Where(b, p.Inner, d)
		if err != nil {
			return "", err
		}
		return "NOT " + inner, nil
	case plan.Compare:
		fe := d.FieldExpr(p.Field, p.Value)
		return "(" + fe + " IS NOT NULL AND " + fe + " " + p.Op.String() + " " + b.Arg(p.Value) + ")", nil
	case plan.In:
		if len(p.Values) == 0 {
			// IN over nothing matches nothing.
			return "1 = 0", nil
		}
		placeholders := make([]string, len(p.Values))
		for i, v := range p.Values {
			placeholders[i] = b.Arg(v)
		}
		fe := d.FieldExpr(p.Field, p.Values[0])
		return "(" + fe + " IS NOT NULL AND " + fe + " IN (" + strings.Join(placeholders, ", ") + "))", nil
	default:
		return "", vqerrors.New(vqerrors.KindExecution, "unsupported predicate node in SQL translation")
	}
}

func joinChildren(b *Builder, children []plan.Predicate, sep string, d Dialect) (string, error) {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		s, err := Where(b, c, d)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}
