// Package vecsql compiles a SQL-like query language into executable plans
// over vector record collections and runs those plans against one collection
// or a federated set of them.
//
// The pipeline is parse -> plan -> route -> execute -> merge. Each stage is
// its own subpackage; this package stitches them together for callers that
// want the whole thing in one call.
package vecsql

import (
	"context"

	"github.com/nonibytes/vecsql/vecsql/exec"
	"github.com/nonibytes/vecsql/vecsql/federate"
	"github.com/nonibytes/vecsql/vecsql/plan"
	"github.com/nonibytes/vecsql/vecsql/planner"
	"github.com/nonibytes/vecsql/vecsql/query"
	"github.com/nonibytes/vecsql/vecsql/schema"
)

// Compile parses query text and builds the logical plan against the schema.
// params supplies vectors for $name references in MATCH clauses.
func Compile(text string, sch schema.Schema, params planner.Params) (*plan.QueryPlan, error) {
	stmt, err := query.Parse(text)
	if err != nil {
		return nil, err
	}
	return planner.BuildPlan(stmt, sch, params)
}

// Explain compiles the query and renders the plan's structural explanation.
func Explain(text string, sch schema.Schema, params planner.Params) (*plan.Node, error) {
	p, err := Compile(text, sch, params)
	if err != nil {
		return nil, err
	}
	return plan.Explain(p), nil
}

// Query compiles and executes against a single provider. The plan's target
// must match provider.Collection().
func Query(ctx context.Context, text string, sch schema.Schema, params planner.Params, provider exec.Provider) (*exec.ExecutionResult, error) {
	p, err := Compile(text, sch, params)
	if err != nil {
		return nil, err
	}
	return exec.ExecutePlan(ctx, p, provider)
}

// QueryMulti compiles, routes, and executes across the registry's
// collections, merging per-collection results into one ordered sequence.
func QueryMulti(ctx context.Context, text string, sch schema.Schema, params planner.Params,
	factory exec.ProviderFactory, registry *federate.Registry, opts federate.Options) (*exec.ExecutionResult, error) {
	p, err := Compile(text, sch, params)
	if err != nil {
		return nil, err
	}
	routes, err := federate.RoutePlan(p, registry)
	if err != nil {
		return nil, err
	}
	return federate.ExecuteMultiCollection(ctx, p, factory, routes, opts)
}
