package exec

// Row is one result row: projection aliases mapped to values, plus the
// identity and ordering information the merge step needs.
type Row struct {
	ID         string
	Score      *float64       // similarity score, nil when no MATCH clause
	OrderValue any            // value of the plan's ordering key, nil when unordered
	Values     map[string]any // keyed by projection alias
}

// CollectionError records a per-collection failure during execution.
type CollectionError struct {
	Collection string
	Err        error
}

// Diagnostics reports which collections contributed to a result and which
// failed (best-effort policy only; fail-fast raises instead).
type Diagnostics struct {
	QueryID     string
	Contributed []string
	Failed      []CollectionError
}

// ExecutionResult is an ordered, immutable result set. Produced fresh per
// execution; never mutated afterward.
type ExecutionResult struct {
	Rows        []Row
	Count       int
	Diagnostics *Diagnostics
}
