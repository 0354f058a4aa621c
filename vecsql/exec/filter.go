package exec

import (
	"fmt"

	"github.com/nonibytes/vecsql/vecsql/plan"
)

// EvalPredicate evaluates a resolved predicate tree against a record's
// metadata. Missing fields never match a comparison. Used for local
// re-filtering when a provider cannot evaluate (part of) the predicate.
func EvalPredicate(pred plan.Predicate, meta map[string]any) bool {
	if pred == nil {
		return true
	}
	switch p := pred.(type) {
	case plan.And:
		for _, child := range p.Children {
			if !EvalPredicate(child, meta) {
				return false
			}
		}
		return true
	case plan.Or:
		for _, child := range p.Children {
			if EvalPredicate(child, meta) {
				return true
			}
		}
		return false
	case plan.Not:
		return !EvalPredicate(p.Inner, meta)
	case plan.Compare:
		val, ok := meta[p.Field]
		if !ok {
			return false
		}
		return evalCompare(val, p.Op, p.Value)
	case plan.In:
		val, ok := meta[p.Field]
		if !ok {
			return false
		}
		for _, candidate := range p.Values {
			if valuesEqual(val, candidate) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func evalCompare(val any, op plan.CmpOp, lit any) bool {
	switch op {
	case plan.CmpEq:
		return valuesEqual(val, lit)
	case plan.CmpNe:
		return !valuesEqual(val, lit)
	}
	// Ordering operators: the planner guarantees a number field.
	a, aok := toFloat(val)
	b, bok := toFloat(lit)
	if !aok || !bok {
		return false
	}
	switch op {
	case plan.CmpLt:
		return a < b
	case plan.CmpLte:
		return a <= b
	case plan.CmpGt:
		return a > b
	case plan.CmpGte:
		return a >= b
	default:
		return false
	}
}

func valuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

// toFloat coerces the numeric types adapters produce (JSON decoding yields
// float64, database drivers may yield integer types).
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
	default:
		return 0, false
	}
}

// CompareOrderValues orders two row ordering keys: numbers before mixed
// types, then strings, then bools; nil sorts last. The int result follows
// ascending order; callers invert for descending.
func CompareOrderValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			default:
				return 0
			}
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			default:
				return 1
			}
		}
	}
	// Mixed types: fall back to type-name ordering for determinism.
	at, bt := fmt.Sprintf("%T", a), fmt.Sprintf("%T", b)
	switch {
	case at < bt:
		return -1
	case at > bt:
		return 1
	default:
		return 0
	}
}
