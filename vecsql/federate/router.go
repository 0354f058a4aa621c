// Package federate routes a plan across collections, fans execution out
// concurrently, and merges per-collection results into one globally ordered
// result set under a configurable failure policy.
package federate

import (
	"github.com/nonibytes/vecsql/vecsql/analysis"
	vqerrors "github.com/nonibytes/vecsql/vecsql/errors"
	"github.com/nonibytes/vecsql/vecsql/plan"
)

// Rule routes on one metadata field: records whose field equals a key of
// Values live only in the named collection.
type Rule struct {
	Field  string
	Values map[string]string // equality value -> collection name
}

// Registry is a read-only snapshot of the known collections and routing
// rules. Registration order is preserved: it determines task launch order
// and keeps routing deterministic.
type Registry struct {
	collections []string
	rules       []Rule
}

// NewRegistry builds a registry over the given collections (in order) and
// routing rules.
func NewRegistry(collections []string, rules ...Rule) *Registry {
	return &Registry{
		collections: append([]string(nil), collections...),
		rules:       append([]Rule(nil), rules...),
	}
}

// Collections returns the registered collection names in registration order.
func (r *Registry) Collections() []string {
	return append([]string(nil), r.collections...)
}

// Route binds a collection to the predicate it must evaluate. The full
// predicate travels with every route: routing may over-select, and the
// re-evaluation downstream filters the false positives out.
type Route struct {
	Collection string
	Predicate  plan.Predicate
}

// RoutePlan decides which collections must be queried. Explicitly targeted
// plans bypass the rules. Otherwise: a single pinned equality value on a
// routing field is a point lookup; a definite multi-value constraint fans
// out to every collection that could match; anything indefinite (ranges,
// negations, unconstrained fields, values no rule knows) conservatively fans
// out to all registered collections. False negatives are never permitted.
func RoutePlan(p *plan.QueryPlan, registry *Registry) ([]Route, error) {
	if len(p.Targets) > 0 {
		routes := make([]Route, 0, len(p.Targets))
		for _, target := range p.Targets {
			routes = append(routes, Route{Collection: target, Predicate: p.Predicate})
		}
		return routes, nil
	}

	if len(registry.collections) == 0 {
		return nil, vqerrors.Planf("unresolved routing: no collections registered for namespace %s", p.Namespace)
	}

	allowed := make(map[string]bool, len(registry.collections))
	for _, c := range registry.collections {
		allowed[c] = true
	}

	for _, rule := range registry.rules {
		values, definite := analysis.EqualityValues(p.Predicate, rule.Field)
		if !definite {
			continue
		}
		narrowed, ok := collectionsForValues(rule, values)
		if !ok {
			// A value no rule entry covers: this rule cannot narrow safely.
			continue
		}
		for c := range allowed {
			if !narrowed[c] {
				delete(allowed, c)
			}
		}
	}

	var routes []Route
	for _, c := range registry.collections {
		if allowed[c] {
			routes = append(routes, Route{Collection: c, Predicate: p.Predicate})
		}
	}
	return routes, nil
}

func collectionsForValues(rule Rule, values []string) (map[string]bool, bool) {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		coll, ok := rule.Values[v]
		if !ok {
			return nil, false
		}
		out[coll] = true
	}
	return out, true
}
