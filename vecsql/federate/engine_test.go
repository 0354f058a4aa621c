package federate

import (
	"context"
	"errors"
	"testing"
	"time"

	vqerrors "github.com/nonibytes/vecsql/vecsql/errors"
	"github.com/nonibytes/vecsql/vecsql/exec"
	"github.com/nonibytes/vecsql/vecsql/plan"
)

// stubProvider serves canned records after an optional delay. When block is
// set it ignores cancellation, simulating a provider stuck in a driver call.
type stubProvider struct {
	name    string
	records []exec.RawRecord
	delay   time.Duration
	err     error
	block   bool
}

func (s *stubProvider) Collection() string { return s.name }

func (s *stubProvider) Capabilities() exec.Capabilities {
	return exec.Capabilities{MetadataFilter: true, VectorSearch: true}
}

func (s *stubProvider) Query(ctx context.Context, _ exec.Request) ([]exec.RawRecord, error) {
	if s.delay > 0 {
		if s.block {
			time.Sleep(s.delay)
		} else {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func stubFactory(providers map[string]*stubProvider) exec.ProviderFactory {
	return func(name string) (exec.Provider, error) {
		p, ok := providers[name]
		if !ok {
			return nil, errors.New("unknown collection " + name)
		}
		return p, nil
	}
}

func priceRecord(id string, price float64) exec.RawRecord {
	return exec.RawRecord{ID: id, Metadata: map[string]any{"price": price}}
}

func pricePlan(limit int) *plan.QueryPlan {
	return &plan.QueryPlan{
		Projection: []plan.ProjectionItem{{Kind: plan.ProjID, Alias: "id"}},
		Order:      &plan.OrderBy{Key: plan.OrderByField, Field: "price", Descending: true},
		Limit:      limit,
		Namespace:  "docs",
	}
}

func priceRoutes(names ...string) []Route {
	routes := make([]Route, len(names))
	for i, n := range names {
		routes[i] = Route{Collection: n}
	}
	return routes
}

func resultIDs(res *exec.ExecutionResult) []string {
	ids := make([]string, len(res.Rows))
	for i, r := range res.Rows {
		ids[i] = r.ID
	}
	return ids
}

func TestEngineMergesAcrossCollections(t *testing.T) {
	providers := map[string]*stubProvider{
		"a": {name: "a", records: []exec.RawRecord{priceRecord("a1", 9), priceRecord("a2", 3)}},
		"b": {name: "b", records: []exec.RawRecord{priceRecord("b1", 7), priceRecord("b2", 5)}},
	}
	e, err := NewEngine(stubFactory(providers), Options{Policy: BestEffort})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer e.Close()

	res, err := e.Execute(context.Background(), pricePlan(plan.NoLimit), priceRoutes("a", "b"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !equalStrings(resultIDs(res), "a1", "b1", "b2", "a2") {
		t.Errorf("unexpected global order: %v", resultIDs(res))
	}
	if res.Diagnostics.QueryID == "" {
		t.Error("expected a query id")
	}
	if !equalStrings(res.Diagnostics.Contributed, "a", "b") {
		t.Errorf("expected contributions in route order, got %v", res.Diagnostics.Contributed)
	}
}

// The merged order must not depend on which collection answers first.
func TestEngineCompletionOrderIndependent(t *testing.T) {
	fast := []exec.RawRecord{priceRecord("f1", 8), priceRecord("f2", 2)}
	slow := []exec.RawRecord{priceRecord("s1", 9), priceRecord("s2", 4)}

	run := func(delayFirst bool) []string {
		var da, db time.Duration
		if delayFirst {
			da = 40 * time.Millisecond
		} else {
			db = 40 * time.Millisecond
		}
		providers := map[string]*stubProvider{
			"a": {name: "a", records: slow, delay: da},
			"b": {name: "b", records: fast, delay: db},
		}
		e, err := NewEngine(stubFactory(providers), Options{Policy: BestEffort})
		if err != nil {
			t.Fatalf("engine: %v", err)
		}
		defer e.Close()
		res, err := e.Execute(context.Background(), pricePlan(plan.NoLimit), priceRoutes("a", "b"))
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		return resultIDs(res)
	}

	first := run(true)
	second := run(false)
	if !equalStrings(first, second...) {
		t.Errorf("order depends on completion timing: %v vs %v", first, second)
	}
	if !equalStrings(first, "s1", "f1", "s2", "f2") {
		t.Errorf("expected global price order, got %v", first)
	}
}

func TestEngineBestEffortPartialFailure(t *testing.T) {
	providers := map[string]*stubProvider{
		"a": {name: "a", records: []exec.RawRecord{priceRecord("a1", 9)}},
		"b": {name: "b", err: errors.New("backend down")},
		"c": {name: "c", records: []exec.RawRecord{priceRecord("c1", 5)}},
	}
	e, err := NewEngine(stubFactory(providers), Options{Policy: BestEffort})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer e.Close()

	res, err := e.Execute(context.Background(), pricePlan(plan.NoLimit), priceRoutes("a", "b", "c"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !equalStrings(resultIDs(res), "a1", "c1") {
		t.Errorf("expected surviving rows, got %v", resultIDs(res))
	}
	if !equalStrings(res.Diagnostics.Contributed, "a", "c") {
		t.Errorf("expected contributions [a c], got %v", res.Diagnostics.Contributed)
	}
	if len(res.Diagnostics.Failed) != 1 || res.Diagnostics.Failed[0].Collection != "b" {
		t.Fatalf("expected failure diagnostic for b, got %+v", res.Diagnostics.Failed)
	}
}

func TestEngineFailFast(t *testing.T) {
	providers := map[string]*stubProvider{
		"a": {name: "a", records: []exec.RawRecord{priceRecord("a1", 9)}, delay: 50 * time.Millisecond},
		"b": {name: "b", err: errors.New("backend down")},
	}
	e, err := NewEngine(stubFactory(providers), Options{Policy: FailFast})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer e.Close()

	_, err = e.Execute(context.Background(), pricePlan(plan.NoLimit), priceRoutes("a", "b"))
	if err == nil {
		t.Fatal("expected fail-fast error")
	}
	if !vqerrors.IsKind(err, vqerrors.KindExecution) {
		t.Errorf("expected execution error, got %v", err)
	}
}

func TestEngineDeadlineStragglers(t *testing.T) {
	providers := map[string]*stubProvider{
		"a": {name: "a", records: []exec.RawRecord{priceRecord("a1", 9)}},
		"b": {name: "b", records: []exec.RawRecord{priceRecord("b1", 7)}, delay: 500 * time.Millisecond, block: true},
	}
	e, err := NewEngine(stubFactory(providers), Options{
		Policy:  BestEffort,
		Timeout: 30 * time.Millisecond,
		Grace:   20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer e.Close()

	res, err := e.Execute(context.Background(), pricePlan(plan.NoLimit), priceRoutes("a", "b"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !equalStrings(resultIDs(res), "a1") {
		t.Errorf("expected rows from the fast collection, got %v", resultIDs(res))
	}
	if len(res.Diagnostics.Failed) != 1 || res.Diagnostics.Failed[0].Collection != "b" {
		t.Fatalf("expected timeout diagnostic for b, got %+v", res.Diagnostics.Failed)
	}
}

func TestEngineEmptyRoutes(t *testing.T) {
	e, err := NewEngine(stubFactory(nil), Options{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer e.Close()

	res, err := e.Execute(context.Background(), pricePlan(plan.NoLimit), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(res.Rows) != 0 || res.Diagnostics.QueryID == "" {
		t.Errorf("expected empty result with a query id, got %+v", res)
	}
}

func TestEngineBoundedParallelism(t *testing.T) {
	providers := make(map[string]*stubProvider)
	names := []string{"c1", "c2", "c3", "c4", "c5"}
	for i, n := range names {
		providers[n] = &stubProvider{
			name:    n,
			records: []exec.RawRecord{priceRecord(n+"-r", float64(10-i))},
			delay:   5 * time.Millisecond,
		}
	}
	e, err := NewEngine(stubFactory(providers), Options{Policy: BestEffort, Parallelism: 2})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer e.Close()

	res, err := e.Execute(context.Background(), pricePlan(plan.NoLimit), priceRoutes(names...))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(res.Rows) != len(names) {
		t.Errorf("expected %d rows, got %d", len(names), len(res.Rows))
	}
	if !equalStrings(resultIDs(res), "c1-r", "c2-r", "c3-r", "c4-r", "c5-r") {
		t.Errorf("unexpected order: %v", resultIDs(res))
	}
}

func TestEngineGlobalLimit(t *testing.T) {
	providers := map[string]*stubProvider{
		"a": {name: "a", records: []exec.RawRecord{priceRecord("a1", 9), priceRecord("a2", 1)}},
		"b": {name: "b", records: []exec.RawRecord{priceRecord("b1", 8), priceRecord("b2", 2)}},
	}
	e, err := NewEngine(stubFactory(providers), Options{Policy: BestEffort})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer e.Close()

	res, err := e.Execute(context.Background(), pricePlan(2), priceRoutes("a", "b"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !equalStrings(resultIDs(res), "a1", "b1") {
		t.Errorf("expected top 2 globally, got %v", resultIDs(res))
	}
}

func TestNewEngineRequiresFactory(t *testing.T) {
	if _, err := NewEngine(nil, Options{}); err == nil {
		t.Fatal("expected error for nil factory")
	}
}
