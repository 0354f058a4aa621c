// Package memory provides an in-process record provider. It is the default
// backing store for tests and the REPL, and its capabilities are
// configurable so callers can exercise every pushdown combination.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	vqerrors "github.com/nonibytes/vecsql/vecsql/errors"
	"github.com/nonibytes/vecsql/vecsql/exec"
	"github.com/nonibytes/vecsql/vecsql/plan"
)

type record struct {
	id       string
	metadata map[string]any
	vector   []float32
}

// Collection is an in-memory record collection implementing exec.Provider.
type Collection struct {
	name string
	caps exec.Capabilities
	dim  int

	mu      sync.RWMutex
	records []record
	byID    map[string]int
}

// FullCapabilities advertises every pushdown the executor knows about.
func FullCapabilities() exec.Capabilities {
	return exec.Capabilities{
		MetadataFilter: true,
		VectorSearch:   true,
		OrderByField:   true,
		LimitPushdown:  true,
	}
}

// NewCollection creates an empty collection. dim fixes the vector dimension;
// 0 disables the check.
func NewCollection(name string, caps exec.Capabilities, dim int) *Collection {
	return &Collection{name: name, caps: caps, dim: dim, byID: make(map[string]int)}
}

func (c *Collection) Collection() string { return c.name }

func (c *Collection) Capabilities() exec.Capabilities { return c.caps }

// Add inserts or replaces a record. The metadata map and vector are copied.
func (c *Collection) Add(id string, metadata map[string]any, vector []float32) error {
	if id == "" {
		return vqerrors.Execution(c.name, "record identifier must not be empty", nil)
	}
	if c.dim > 0 && vector != nil && len(vector) != c.dim {
		return vqerrors.Execution(c.name, "vector dimension mismatch for "+id, nil)
	}
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	rec := record{id: id, metadata: meta, vector: append([]float32(nil), vector...)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.byID[id]; ok {
		c.records[i] = rec
		return nil
	}
	c.byID[id] = len(c.records)
	c.records = append(c.records, rec)
	return nil
}

// Len reports the number of stored records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Query evaluates the request over the stored records, honoring exactly the
// request fields the advertised capabilities cover.
func (c *Collection) Query(ctx context.Context, req exec.Request) ([]exec.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Vector != nil && !c.caps.VectorSearch {
		return nil, vqerrors.Execution(c.name, "vector search not supported", nil)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]exec.RawRecord, 0, len(c.records))
	for _, rec := range c.records {
		if req.Predicate != nil && !exec.EvalPredicate(req.Predicate, rec.metadata) {
			continue
		}
		raw := exec.RawRecord{
			ID:       rec.id,
			Metadata: rec.metadata,
			Vector:   rec.vector,
		}
		if req.Vector != nil {
			score := Cosine(req.Vector, rec.vector)
			raw.Score = &score
		}
		out = append(out, raw)
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
			cmp := exec.CompareOrderValues(out[i].Metadata[order.Field], out[j].Metadata[order.Field])
			if order.Descending {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
			return out[i].ID < out[j].ID
		})
	}

	if req.Limit != plan.NoLimit && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// Cosine returns the cosine similarity of two vectors. A zero-norm operand or
// a dimension mismatch yields 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Registry is a named set of collections usable as an exec.ProviderFactory.
type Registry struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

func NewRegistry() *Registry {
	return &Registry{collections: make(map[string]*Collection)}
}

func (r *Registry) Register(c *Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[c.Collection()] = c
}

// Provider resolves a collection by name, satisfying exec.ProviderFactory.
func (r *Registry) Provider(name string) (exec.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[name]
	if !ok {
		return nil, vqerrors.Execution(name, "unknown collection", nil)
	}
	return c, nil
}
