// Package exec runs a query plan against a single collection through the
// abstract provider boundary, and defines the result model shared with the
// federation engine.
package exec

import (
	"context"

	"github.com/nonibytes/vecsql/vecsql/plan"
)

// RawRecord is one record as returned by a provider: an identifier, a
// metadata mapping, an optional similarity score, and an optional vector.
type RawRecord struct {
	ID       string
	Metadata map[string]any
	Score    *float64
	Vector   []float32
}

// Capabilities declares what a provider can evaluate natively. The executor
// pushes down what it can and compensates locally for the rest.
type Capabilities struct {
	// MetadataFilter: the provider evaluates Request.Predicate itself.
	MetadataFilter bool
	// VectorSearch: the provider scores records against Request.Vector.
	VectorSearch bool
	// OrderByField: the provider honors Request.OrderBy for field ordering.
	OrderByField bool
	// LimitPushdown: the provider honors Request.Limit.
	LimitPushdown bool
}

// Request is the resolved, single-collection form of a plan handed to a
// provider. Fields a provider declared no capability for are zeroed.
type Request struct {
	Collection string
	Predicate  plan.Predicate // nil when filtering happens locally
	Vector     []float32      // similarity probe, nil when none
	TopK       int            // 0 means "score and return all matches"
	OrderBy    *plan.OrderBy  // nil when ordering happens locally
	Limit      int            // plan.NoLimit when not pushed
}

// Provider is the abstract capability to run a resolved plan against exactly
// one named collection. Concrete bindings to backend SDKs live in adapters.
type Provider interface {
	Collection() string
	Capabilities() Capabilities
	Query(ctx context.Context, req Request) ([]RawRecord, error)
}

// ProviderFactory resolves a collection name to its provider during
// multi-collection fan-out.
type ProviderFactory func(collection string) (Provider, error)
