package exec

import (
	"context"
	"sort"

	vqerrors "github.com/nonibytes/vecsql/vecsql/errors"
	"github.com/nonibytes/vecsql/vecsql/plan"
)

// ExecutePlan runs a plan against one collection. It pushes the predicate,
// ordering, and limit down to the provider as far as its capabilities allow,
// re-filters and re-sorts locally for the remainder, maps raw records into
// projection-keyed rows, and applies offset/limit. Errors are not retried
// here; retry policy belongs to the caller or the provider.
func ExecutePlan(ctx context.Context, p *plan.QueryPlan, provider Provider) (*ExecutionResult, error) {
	collection := provider.Collection()
	if len(p.Targets) == 1 && p.Targets[0] != collection {
		return nil, vqerrors.Execution(collection, "plan targets a different collection: "+p.Targets[0], nil)
	}

	caps := provider.Capabilities()
	if p.Similarity != nil && !caps.VectorSearch {
		return nil, vqerrors.Execution(collection, "provider does not support similarity search", nil)
	}

	req, residual, orderPushed := buildRequest(p, collection, caps)

	records, err := provider.Query(ctx, req)
	if err != nil {
		return nil, vqerrors.Execution(collection, "provider query failed", err)
	}

	rows, err := mapRecords(p, collection, records, residual)
	if err != nil {
		return nil, err
	}

	// The top-k cut happens on the filtered candidate set, sorted by score,
	// before any field ordering is applied.
	if p.Similarity != nil {
		sortByScore(rows)
		if len(rows) > p.Similarity.TopK {
			rows = rows[:p.Similarity.TopK]
		}
	}

	if p.Order != nil && !orderPushed {
		sortRows(rows, p.Order)
	}

	if p.Offset > 0 {
		if p.Offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[p.Offset:]
		}
	}
	if p.HasLimit() && len(rows) > p.Limit {
		rows = rows[:p.Limit]
	}

	return &ExecutionResult{
		Rows:        rows,
		Count:       len(rows),
		Diagnostics: &Diagnostics{Contributed: []string{collection}},
	}, nil
}

// buildRequest shapes the provider request from the plan and the provider's
// capabilities, returning the residual predicate (to re-apply locally) and
// whether ordering was pushed down.
func buildRequest(p *plan.QueryPlan, collection string, caps Capabilities) (Request, plan.Predicate, bool) {
	req := Request{Collection: collection, Limit: plan.NoLimit}

	var residual plan.Predicate
	if caps.MetadataFilter {
		req.Predicate = p.Predicate
	} else {
		residual = p.Predicate
	}

	if p.Similarity != nil {
		req.Vector = p.Similarity.Vector
		if residual == nil {
			req.TopK = p.Similarity.TopK
		}
		// With a residual predicate the provider must score everything:
		// a native top-k cut before local filtering would under-fetch.
	}

	orderPushed := false
	if p.Order != nil && p.Order.Key == plan.OrderByField && caps.OrderByField {
		req.OrderBy = p.Order
		orderPushed = true
	}

	// A pushed limit is only sound when nothing is filtered or reordered
	// locally afterwards.
	if caps.LimitPushdown && residual == nil && p.Similarity == nil &&
		(p.Order == nil || orderPushed) && p.HasLimit() {
		req.Limit = p.FetchLimit()
	}

	return req, residual, orderPushed
}

// mapRecords validates raw records, applies the residual predicate, and
// projects each surviving record into a row.
func mapRecords(p *plan.QueryPlan, collection string, records []RawRecord, residual plan.Predicate) ([]Row, error) {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			return nil, vqerrors.Execution(collection, "malformed record: empty identifier", nil)
		}
		if p.Similarity != nil && rec.Score == nil {
			return nil, vqerrors.Execution(collection, "malformed record: missing similarity score for "+rec.ID, nil)
		}
		meta := rec.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		if residual != nil && !EvalPredicate(residual, meta) {
			continue
		}

		row := Row{ID: rec.ID, Score: rec.Score, Values: make(map[string]any, len(p.Projection))}
		for _, item := range p.Projection {
			switch item.Kind {
			case plan.ProjField:
				row.Values[item.Alias] = meta[item.Field]
			case plan.ProjID:
				row.Values[item.Alias] = rec.ID
			case plan.ProjSimilarity:
				row.Values[item.Alias] = *rec.Score
			case plan.ProjVector:
				row.Values[item.Alias] = append([]float32(nil), rec.Vector...)
			}
		}

		if p.Order != nil {
			switch p.Order.Key {
			case plan.OrderBySimilarity:
				if rec.Score != nil {
					row.OrderValue = *rec.Score
				}
			case plan.OrderByField:
				row.OrderValue = meta[p.Order.Field]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func sortByScore(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := scoreOf(rows[i]), scoreOf(rows[j])
		if a != b {
			return a > b
		}
		return rows[i].ID < rows[j].ID
	})
}

func scoreOf(r Row) float64 {
	if r.Score == nil {
		return 0
	}
	return *r.Score
}

// Less is the single ordering authority for result rows: the plan's ordering
// key first (inverted when descending, except nil keys which sort last in
// either direction), then the record identifier as a deterministic tie-break.
// The federation merge uses the same comparison so per-shard order and global
// order always agree.
func Less(a, b Row, order *plan.OrderBy) bool {
	if an, bn := a.OrderValue == nil, b.OrderValue == nil; an != bn {
		return bn
	}
	c := CompareOrderValues(a.OrderValue, b.OrderValue)
	if order != nil && order.Descending {
		c = -c
	}
	if c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

func sortRows(rows []Row, order *plan.OrderBy) {
	sort.SliceStable(rows, func(i, j int) bool {
		return Less(rows[i], rows[j], order)
	})
}
