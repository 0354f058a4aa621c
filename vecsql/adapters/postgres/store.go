// Package postgres backs collections with PostgreSQL tables inside a
// dedicated schema. Metadata is JSONB filtered server-side; vectors are
// BYTEA blobs of little-endian float32 values scored in the adapter.
package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/nonibytes/vecsql/vecsql/adapters/sqlbuilder"
	vqerrors "github.com/nonibytes/vecsql/vecsql/errors"
	"github.com/nonibytes/vecsql/vecsql/exec"
	"github.com/nonibytes/vecsql/vecsql/plan"
)

// Store owns a connection pinned to one PostgreSQL schema and hands out
// per-collection providers.
type Store struct {
	db     *sql.DB
	DSN    string
	Schema string
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteIdent(ident string) string {
	// ident is validated to contain no quotes; safe to wrap
	return `"` + ident + `"`
}

// Open connects, creates the schema if needed, and pins search_path to it.
func Open(ctx context.Context, dsn, schema string) (*Store, error) {
	if schema == "" || !identRe.MatchString(schema) {
		return nil, fmt.Errorf("invalid postgres schema name %q (must match %s)", schema, identRe.String())
	}

	// 1) Connect without search_path to ensure the schema exists.
	cfg0, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	db0 := stdlib.OpenDB(*cfg0)
	if err := db0.PingContext(ctx); err != nil {
		_ = db0.Close()
		return nil, err
	}
	if _, err := db0.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(schema)); err != nil {
		_ = db0.Close()
		return nil, err
	}
	_ = db0.Close()

	// 2) Connect with search_path pinned to the schema, public as fallback.
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = make(map[string]string)
	}
	cfg.RuntimeParams["search_path"] = fmt.Sprintf("%s,public", quoteIdent(schema))

	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, DSN: dsn, Schema: schema}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func tableName(collection string) (string, error) {
	if !identRe.MatchString(collection) {
		return "", vqerrors.Execution(collection, "invalid collection name", nil)
	}
	return quoteIdent("c_" + collection), nil
}

// CreateCollection creates the backing table if it does not exist.
func (s *Store) CreateCollection(ctx context.Context, collection string) error {
	tbl, err := tableName(collection)
	if err != nil {
		return err
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + tbl + ` (
	id TEXT PRIMARY KEY,
	metadata JSONB NOT NULL DEFAULT '{}',
	vector BYTEA
)`
	_, err = s.db.ExecContext(ctx, ddl)
	return err
}

// Insert upserts one record.
func (s *Store) Insert(ctx context.Context, collection, id string, metadata map[string]any, vector []float32) error {
	tbl, err := tableName(collection)
	if err != nil {
		return err
	}
	if id == "" {
		return vqerrors.Execution(collection, "record identifier must not be empty", nil)
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return vqerrors.Execution(collection, "encode metadata for "+id, err)
	}
	var blob []byte
	if vector != nil {
		blob = encodeVector(vector)
	}
	stmt := `INSERT INTO ` + tbl + ` (id, metadata, vector) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET metadata = EXCLUDED.metadata, vector = EXCLUDED.vector`
	if _, err := s.db.ExecContext(ctx, stmt, id, string(meta), blob); err != nil {
		return vqerrors.Execution(collection, "insert record "+id, err)
	}
	return nil
}

// Provider returns the provider for one collection.
func (s *Store) Provider(collection string) *Provider {
	return &Provider{store: s, collection: collection}
}

// ProviderFor satisfies exec.ProviderFactory.
func (s *Store) ProviderFor(collection string) (exec.Provider, error) {
	if !identRe.MatchString(collection) {
		return nil, vqerrors.Execution(collection, "invalid collection name", nil)
	}
	return s.Provider(collection), nil
}

// Provider executes requests against one collection's table.
type Provider struct {
	store      *Store
	collection string
}

func (p *Provider) Collection() string { return p.collection }

func (p *Provider) Capabilities() exec.Capabilities {
	return exec.Capabilities{
		MetadataFilter: true,
		VectorSearch:   true,
		OrderByField:   false, // JSONB ->> yields text; numeric ordering would need typed casts
		LimitPushdown:  true,
	}
}

// jsonbDialect extracts metadata fields with the cast the compared value
// requires: numbers as numeric, booleans as boolean, everything else text.
type jsonbDialect struct{}

func (jsonbDialect) FieldExpr(field string, sample any) string {
	expr := `metadata->>'` + field + `'`
	switch sample.(type) {
	case float64:
		return "(" + expr + ")::numeric"
	case bool:
		return "(" + expr + ")::boolean"
	default:
		return expr
	}
}

func (p *Provider) Query(ctx context.Context, req exec.Request) ([]exec.RawRecord, error) {
	tbl, err := tableName(p.collection)
	if err != nil {
		return nil, err
	}

	b := sqlbuilder.New(sqlbuilder.PlaceholderDollar)
	var sb strings.Builder
	sb.WriteString(`SELECT id, metadata, vector FROM ` + tbl)
	if req.Predicate != nil {
		where, err := sqlbuilder.Where(b, req.Predicate, jsonbDialect{})
		if err != nil {
			return nil, err
		}
		sb.WriteString(" WHERE " + where)
	}
	if req.Vector == nil && req.Limit != plan.NoLimit {
		sb.WriteString(" LIMIT " + b.Arg(req.Limit))
	}

	rows, err := p.store.db.QueryContext(ctx, sb.String(), b.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []exec.RawRecord
	for rows.Next() {
		var id string
		var metaJSON []byte
		var blob []byte
		if err := rows.Scan(&id, &metaJSON, &blob); err != nil {
			return nil, err
		}
		var meta map[string]any
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, vqerrors.Execution(p.collection, "decode metadata for "+id, err)
		}
		rec := exec.RawRecord{ID: id, Metadata: meta}
		if blob != nil {
			rec.Vector = decodeVector(blob)
		}
		if req.Vector != nil {
			score := cosine(req.Vector, rec.Vector)
			rec.Score = &score
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
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
	return out, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

func cosine(a, b []float32) float64 {
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
