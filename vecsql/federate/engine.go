package federate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/nonibytes/vecsql/internal/metrics"
	vqerrors "github.com/nonibytes/vecsql/vecsql/errors"
	"github.com/nonibytes/vecsql/vecsql/exec"
	"github.com/nonibytes/vecsql/vecsql/plan"
)

// FailurePolicy decides what a per-collection failure does to the whole
// federated execution.
type FailurePolicy string

const (
	// FailFast aborts the operation on the first task failure, cancelling
	// the remaining tasks best-effort.
	FailFast FailurePolicy = "fail-fast"
	// BestEffort returns the rows of the succeeding collections and reports
	// the failing ones in the result diagnostics.
	BestEffort FailurePolicy = "best-effort"
)

// DefaultGrace bounds how long the engine waits for in-flight provider calls
// to acknowledge cancellation before writing them off as failed.
const DefaultGrace = 2 * time.Second

// Options configures an Engine.
type Options struct {
	Policy      FailurePolicy // default FailFast
	Timeout     time.Duration // overall deadline; 0 means none
	Grace       time.Duration // straggler wait after cancellation; default DefaultGrace
	Parallelism int           // max concurrent collection tasks; 0 means unbounded
	Logger      *zerolog.Logger
	Metrics     *metrics.Metrics
}

// Engine fans a plan out to routed collections and merges the results. The
// provider registry it draws from is a read-only snapshot per execution;
// per-task state is owned by the task and folded in only at completion.
type Engine struct {
	factory exec.ProviderFactory
	opts    Options
	pool    *ants.Pool
	log     zerolog.Logger
}

// NewEngine builds a federation engine around a provider factory. With
// Parallelism > 0 tasks run on a bounded worker pool; Close releases it.
func NewEngine(factory exec.ProviderFactory, opts Options) (*Engine, error) {
	if factory == nil {
		return nil, vqerrors.New(vqerrors.KindExecution, "federation requires a provider factory")
	}
	if opts.Policy == "" {
		opts.Policy = FailFast
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	e := &Engine{factory: factory, opts: opts, log: log}
	if opts.Parallelism > 0 {
		pool, err := ants.NewPool(opts.Parallelism, ants.WithPanicHandler(func(v any) {
			e.log.Error().Interface("panic", v).Msg("collection task panicked")
		}))
		if err != nil {
			return nil, vqerrors.Wrap(vqerrors.KindExecution, "create worker pool", err)
		}
		e.pool = pool
	}
	return e, nil
}

// Close releases the worker pool, if any.
func (e *Engine) Close() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// ExecuteMultiCollection is a one-shot convenience around NewEngine/Execute.
func ExecuteMultiCollection(ctx context.Context, p *plan.QueryPlan, factory exec.ProviderFactory, routes []Route, opts Options) (*exec.ExecutionResult, error) {
	e, err := NewEngine(factory, opts)
	if err != nil {
		return nil, err
	}
	defer e.Close()
	return e.Execute(ctx, p, routes)
}

type outcome struct {
	index      int
	collection string
	rows       []exec.Row
	err        error
}

// Execute runs the plan against every routed collection concurrently and
// merges the per-collection results into one globally ordered, deduplicated,
// limited sequence. Task completion order never affects row order: the merge
// is the single ordering authority.
func (e *Engine) Execute(ctx context.Context, p *plan.QueryPlan, routes []Route) (*exec.ExecutionResult, error) {
	qid := uuid.NewString()
	if len(routes) == 0 {
		return &exec.ExecutionResult{Diagnostics: &exec.Diagnostics{QueryID: qid}}, nil
	}
	e.opts.Metrics.ObserveFanout(len(routes))

	var cancel context.CancelFunc
	if e.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// Buffered to len(routes): stragglers finishing after the grace period
	// can still send without blocking, so no goroutine ever leaks.
	outcomes := make(chan outcome, len(routes))
	for i, rt := range routes {
		i, rt := i, rt
		task := func() {
			started := time.Now()
			rows, err := e.runShard(ctx, p, rt)
			e.log.Debug().
				Str("query_id", qid).
				Str("collection", rt.Collection).
				Int("rows", len(rows)).
				Dur("elapsed", time.Since(started)).
				Err(err).
				Msg("collection task complete")
			outcomes <- outcome{index: i, collection: rt.Collection, rows: rows, err: err}
		}
		if e.pool != nil {
			if err := e.pool.Submit(task); err != nil {
				outcomes <- outcome{index: i, collection: rt.Collection,
					err: vqerrors.Execution(rt.Collection, "submit collection task", err)}
			}
		} else {
			go task()
		}
	}

	shards := make([][]exec.Row, len(routes))
	reported := make([]bool, len(routes))
	succeeded := make([]bool, len(routes))
	var failures []exec.CollectionError
	var firstErr error
	received := 0
	ctxDone := ctx.Done()
	var graceCh <-chan time.Time

collect:
	for received < len(routes) {
		select {
		case o := <-outcomes:
			received++
			reported[o.index] = true
			if o.err != nil {
				failures = append(failures, exec.CollectionError{Collection: o.collection, Err: o.err})
				e.opts.Metrics.ObserveFailure(o.collection)
				if e.opts.Policy == FailFast && firstErr == nil {
					firstErr = o.err
					cancel()
				}
				continue
			}
			succeeded[o.index] = true
			shards[o.index] = o.rows
		case <-ctxDone:
			// Deadline hit or cancellation propagated: give in-flight calls
			// a bounded grace period to acknowledge, then stop waiting.
			ctxDone = nil
			graceCh = time.After(e.opts.Grace)
		case <-graceCh:
			break collect
		}
	}

	// Tasks that never reported are failures, never silently omitted.
	for i, rt := range routes {
		if !reported[i] {
			failures = append(failures, exec.CollectionError{
				Collection: rt.Collection,
				Err:        vqerrors.Execution(rt.Collection, "task did not complete before deadline", ctx.Err()),
			})
			e.opts.Metrics.ObserveFailure(rt.Collection)
		}
	}

	if e.opts.Policy == FailFast && len(failures) > 0 {
		if firstErr == nil {
			firstErr = failures[0].Err
		}
		e.opts.Metrics.ObserveQuery("error")
		e.log.Warn().Str("query_id", qid).Int("failed", len(failures)).Msg("federated query aborted")
		return nil, failFastError(firstErr, failures)
	}

	mergeStart := time.Now()
	merged := mergeRows(shards, p.Order, p.Limit, p.Offset)
	e.opts.Metrics.ObserveMerge(time.Since(mergeStart))

	diag := &exec.Diagnostics{QueryID: qid, Failed: failures}
	for i, rt := range routes {
		if succeeded[i] {
			diag.Contributed = append(diag.Contributed, rt.Collection)
		}
	}

	status := "ok"
	if len(failures) > 0 {
		status = "partial"
	}
	e.opts.Metrics.ObserveQuery(status)
	e.log.Info().
		Str("query_id", qid).
		Str("status", status).
		Int("fanout", len(routes)).
		Int("rows", len(merged)).
		Msg("federated query complete")

	return &exec.ExecutionResult{Rows: merged, Count: len(merged), Diagnostics: diag}, nil
}

// runShard executes the per-collection derivation of the plan against the
// collection's provider.
func (e *Engine) runShard(ctx context.Context, p *plan.QueryPlan, rt Route) ([]exec.Row, error) {
	provider, err := e.factory(rt.Collection)
	if err != nil {
		return nil, vqerrors.Execution(rt.Collection, "no provider for collection", err)
	}
	res, err := exec.ExecutePlan(ctx, p.Shard(rt.Collection), provider)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// failFastError wraps the first failure with the full per-collection
// context so callers can display every failing collection.
func failFastError(first error, failures []exec.CollectionError) error {
	names := make([]string, 0, len(failures))
	for _, f := range failures {
		names = append(names, f.Collection)
	}
	msg := "federated query failed (collections: " + strings.Join(names, ", ") + ")"
	var ve *vqerrors.Error
	if errors.As(first, &ve) {
		return &vqerrors.Error{
			Kind:       vqerrors.KindExecution,
			Message:    msg,
			Collection: ve.Collection,
			Cause:      first,
		}
	}
	return vqerrors.Wrap(vqerrors.KindExecution, msg, first)
}
