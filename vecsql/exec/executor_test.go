package exec

import (
	"context"
	"errors"
	"sort"
	"testing"

	vqerrors "github.com/nonibytes/vecsql/vecsql/errors"
	"github.com/nonibytes/vecsql/vecsql/plan"
)

// fakeProvider returns canned records, honoring exactly the request fields
// its capabilities advertise, and captures the request for pushdown checks.
type fakeProvider struct {
	name    string
	caps    Capabilities
	records []RawRecord
	scores  map[string]float64
	err     error
	lastReq Request
}

func (f *fakeProvider) Collection() string         { return f.name }
func (f *fakeProvider) Capabilities() Capabilities { return f.caps }

func (f *fakeProvider) Query(_ context.Context, req Request) ([]RawRecord, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	var out []RawRecord
	for _, rec := range f.records {
		if req.Predicate != nil && !EvalPredicate(req.Predicate, rec.Metadata) {
			continue
		}
		if req.Vector != nil {
			score := f.scores[rec.ID]
			rec.Score = &score
		}
		out = append(out, rec)
	}
	if req.Vector != nil {
		sort.SliceStable(out, func(i, j int) bool {
			if *out[i].Score != *out[j].Score {
				return *out[i].Score > *out[j].Score
			}
			return out[i].ID < out[j].ID
		})
		if req.TopK > 0 && len(out) > req.TopK {
			out = out[:req.TopK]
		}
	}
	if req.OrderBy != nil && req.OrderBy.Key == plan.OrderByField {
		order := req.OrderBy
		sort.SliceStable(out, func(i, j int) bool {
			c := CompareOrderValues(out[i].Metadata[order.Field], out[j].Metadata[order.Field])
			if order.Descending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
			return out[i].ID < out[j].ID
		})
	}
	if req.Limit != plan.NoLimit && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

func docsProvider(caps Capabilities) *fakeProvider {
	return &fakeProvider{
		name: "docs",
		caps: caps,
		records: []RawRecord{
			{ID: "1", Metadata: map[string]any{"category": "a", "price": 10.0}},
			{ID: "2", Metadata: map[string]any{"category": "a", "price": 30.0}},
			{ID: "3", Metadata: map[string]any{"category": "b", "price": 20.0}},
			{ID: "4", Metadata: map[string]any{"category": "a", "price": 5.0}},
		},
		scores: map[string]float64{"1": 0.8, "2": 0.9, "3": 0.95, "4": 0.1},
	}
}

func idProjection() []plan.ProjectionItem {
	return []plan.ProjectionItem{{Kind: plan.ProjID, Alias: "id"}}
}

func rowIDs(rows []Row) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

func equalIDs(a []string, b ...string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestExecuteFilteredSimilarityWithAlias(t *testing.T) {
	// Filter then score then cut: only category=a records compete for the
	// top 2 slots; id 3 scores highest overall but is filtered out.
	p := &plan.QueryPlan{
		Projection: []plan.ProjectionItem{
			{Kind: plan.ProjID, Alias: "id"},
			{Kind: plan.ProjField, Field: "category", Alias: "cat"},
		},
		Predicate:  plan.Compare{Field: "category", Op: plan.CmpEq, Value: "a"},
		Similarity: &plan.Similarity{Vector: []float32{1, 0}, TopK: 2},
		Order:      &plan.OrderBy{Key: plan.OrderBySimilarity, Descending: true},
		Limit:      2,
		Targets:    []string{"docs"},
	}
	provider := docsProvider(Capabilities{MetadataFilter: true, VectorSearch: true})

	res, err := ExecutePlan(context.Background(), p, provider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !equalIDs(rowIDs(res.Rows), "2", "1") {
		t.Fatalf("expected rows [2 1], got %v", rowIDs(res.Rows))
	}
	if res.Rows[0].Values["cat"] != "a" || res.Rows[0].Values["id"] != "2" {
		t.Errorf("unexpected projected values: %v", res.Rows[0].Values)
	}
}

func TestExecuteResidualFilter(t *testing.T) {
	// Without MetadataFilter the provider gets no predicate and must score
	// everything; the executor re-filters and applies the top-k cut itself.
	p := &plan.QueryPlan{
		Projection: idProjection(),
		Predicate:  plan.Compare{Field: "category", Op: plan.CmpEq, Value: "a"},
		Similarity: &plan.Similarity{Vector: []float32{1, 0}, TopK: 2},
		Limit:      plan.NoLimit,
		Targets:    []string{"docs"},
	}
	provider := docsProvider(Capabilities{VectorSearch: true})

	res, err := ExecutePlan(context.Background(), p, provider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.lastReq.Predicate != nil {
		t.Error("predicate should not be pushed to an incapable provider")
	}
	if provider.lastReq.TopK != 0 {
		t.Errorf("top-k must not be pushed with a residual filter, got %d", provider.lastReq.TopK)
	}
	if !equalIDs(rowIDs(res.Rows), "2", "1") {
		t.Fatalf("expected rows [2 1], got %v", rowIDs(res.Rows))
	}
}

func TestExecutePushdownShaping(t *testing.T) {
	p := &plan.QueryPlan{
		Projection: idProjection(),
		Predicate:  plan.Compare{Field: "category", Op: plan.CmpEq, Value: "a"},
		Order:      &plan.OrderBy{Key: plan.OrderByField, Field: "price"},
		Limit:      2,
		Targets:    []string{"docs"},
	}
	provider := docsProvider(Capabilities{MetadataFilter: true, OrderByField: true, LimitPushdown: true})

	res, err := ExecutePlan(context.Background(), p, provider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := provider.lastReq
	if req.Predicate == nil {
		t.Error("expected predicate pushed")
	}
	if req.OrderBy == nil {
		t.Error("expected order pushed")
	}
	if req.Limit != 2 {
		t.Errorf("expected limit 2 pushed, got %d", req.Limit)
	}
	if !equalIDs(rowIDs(res.Rows), "4", "1") {
		t.Fatalf("expected rows [4 1] (price asc), got %v", rowIDs(res.Rows))
	}
}

func TestExecuteNoLimitPushdownWithResidual(t *testing.T) {
	p := &plan.QueryPlan{
		Projection: idProjection(),
		Predicate:  plan.Compare{Field: "category", Op: plan.CmpEq, Value: "a"},
		Limit:      1,
		Targets:    []string{"docs"},
	}
	// LimitPushdown capable but filter is residual: pushing the limit would
	// under-fetch.
	provider := docsProvider(Capabilities{LimitPushdown: true})

	res, err := ExecutePlan(context.Background(), p, provider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.lastReq.Limit != plan.NoLimit {
		t.Errorf("limit must not be pushed with a residual filter, got %d", provider.lastReq.Limit)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
}

func TestExecuteLocalOrderByField(t *testing.T) {
	p := &plan.QueryPlan{
		Projection: idProjection(),
		Order:      &plan.OrderBy{Key: plan.OrderByField, Field: "price", Descending: true},
		Limit:      plan.NoLimit,
		Targets:    []string{"docs"},
	}
	provider := docsProvider(Capabilities{MetadataFilter: true})

	res, err := ExecutePlan(context.Background(), p, provider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.lastReq.OrderBy != nil {
		t.Error("order must not be pushed to an incapable provider")
	}
	if !equalIDs(rowIDs(res.Rows), "2", "3", "1", "4") {
		t.Fatalf("expected price desc order, got %v", rowIDs(res.Rows))
	}
}

func TestExecuteOffset(t *testing.T) {
	p := &plan.QueryPlan{
		Projection: idProjection(),
		Order:      &plan.OrderBy{Key: plan.OrderByField, Field: "price"},
		Limit:      2,
		Offset:     1,
		Targets:    []string{"docs"},
	}
	provider := docsProvider(Capabilities{})

	res, err := ExecutePlan(context.Background(), p, provider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// price asc: 4(5), 1(10), 3(20), 2(30); offset 1 limit 2 -> [1 3]
	if !equalIDs(rowIDs(res.Rows), "1", "3") {
		t.Fatalf("expected rows [1 3], got %v", rowIDs(res.Rows))
	}
}

func TestExecuteOffsetBeyondRows(t *testing.T) {
	p := &plan.QueryPlan{
		Projection: idProjection(),
		Limit:      plan.NoLimit,
		Offset:     100,
		Targets:    []string{"docs"},
	}
	res, err := ExecutePlan(context.Background(), p, docsProvider(Capabilities{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Errorf("expected no rows, got %d", len(res.Rows))
	}
}

func TestExecuteSimilarityRequiresCapability(t *testing.T) {
	p := &plan.QueryPlan{
		Projection: idProjection(),
		Similarity: &plan.Similarity{Vector: []float32{1}, TopK: 1},
		Limit:      plan.NoLimit,
		Targets:    []string{"docs"},
	}
	_, err := ExecutePlan(context.Background(), p, docsProvider(Capabilities{}))
	if err == nil {
		t.Fatal("expected capability error")
	}
	if !vqerrors.IsKind(err, vqerrors.KindExecution) {
		t.Errorf("expected execution error, got %v", err)
	}
}

func TestExecuteTargetMismatch(t *testing.T) {
	p := &plan.QueryPlan{
		Projection: idProjection(),
		Limit:      plan.NoLimit,
		Targets:    []string{"other"},
	}
	if _, err := ExecutePlan(context.Background(), p, docsProvider(Capabilities{})); err == nil {
		t.Fatal("expected target mismatch error")
	}
}

func TestExecuteProviderError(t *testing.T) {
	p := &plan.QueryPlan{
		Projection: idProjection(),
		Limit:      plan.NoLimit,
		Targets:    []string{"docs"},
	}
	provider := docsProvider(Capabilities{})
	provider.err = errors.New("backend down")

	_, err := ExecutePlan(context.Background(), p, provider)
	if err == nil {
		t.Fatal("expected error")
	}
	var ve *vqerrors.Error
	if !errors.As(err, &ve) || ve.Collection != "docs" {
		t.Errorf("expected collection tagged error, got %v", err)
	}
}

func TestExecuteMalformedRecords(t *testing.T) {
	p := &plan.QueryPlan{
		Projection: idProjection(),
		Limit:      plan.NoLimit,
		Targets:    []string{"docs"},
	}
	provider := &fakeProvider{
		name:    "docs",
		records: []RawRecord{{ID: "", Metadata: map[string]any{}}},
	}
	if _, err := ExecutePlan(context.Background(), p, provider); err == nil {
		t.Fatal("expected error for empty identifier")
	}
}

func TestExecuteScoreTieBreaksByID(t *testing.T) {
	p := &plan.QueryPlan{
		Projection: idProjection(),
		Similarity: &plan.Similarity{Vector: []float32{1}, TopK: 2},
		Order:      &plan.OrderBy{Key: plan.OrderBySimilarity, Descending: true},
		Limit:      plan.NoLimit,
		Targets:    []string{"docs"},
	}
	provider := &fakeProvider{
		name: "docs",
		caps: Capabilities{VectorSearch: true},
		records: []RawRecord{
			{ID: "b", Metadata: map[string]any{}},
			{ID: "a", Metadata: map[string]any{}},
			{ID: "c", Metadata: map[string]any{}},
		},
		scores: map[string]float64{"a": 0.5, "b": 0.5, "c": 0.5},
	}
	res, err := ExecutePlan(context.Background(), p, provider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !equalIDs(rowIDs(res.Rows), "a", "b") {
		t.Fatalf("expected tie broken by id, got %v", rowIDs(res.Rows))
	}
}

func TestLessOrderKey(t *testing.T) {
	asc := &plan.OrderBy{Key: plan.OrderByField, Field: "price"}
	desc := &plan.OrderBy{Key: plan.OrderByField, Field: "price", Descending: true}
	low := Row{ID: "x", OrderValue: 1.0}
	high := Row{ID: "y", OrderValue: 2.0}

	if !Less(low, high, asc) || Less(high, low, asc) {
		t.Error("ascending comparison wrong")
	}
	if !Less(high, low, desc) || Less(low, high, desc) {
		t.Error("descending comparison wrong")
	}

	// Equal keys fall back to the identifier, regardless of direction.
	a := Row{ID: "a", OrderValue: 1.0}
	b := Row{ID: "b", OrderValue: 1.0}
	if !Less(a, b, asc) || !Less(a, b, desc) {
		t.Error("expected id tie-break in both directions")
	}

	// A missing key sorts last in both directions.
	keyless := Row{ID: "z"}
	if Less(keyless, low, asc) || Less(keyless, low, desc) {
		t.Error("expected keyless row to sort after keyed rows")
	}
	if !Less(low, keyless, asc) || !Less(low, keyless, desc) {
		t.Error("expected keyed row to sort before keyless rows")
	}
}
