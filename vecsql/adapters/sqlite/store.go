// Package sqlite backs collections with a SQLite database, one table per
// collection. Metadata lives in a JSON column filtered with json_extract;
// vectors are stored as little-endian float32 blobs and scored in the
// adapter, since SQLite has no native vector search.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/nonibytes/vecsql/vecsql/adapters/sqlbuilder"
	vqerrors "github.com/nonibytes/vecsql/vecsql/errors"
	"github.com/nonibytes/vecsql/vecsql/exec"
	"github.com/nonibytes/vecsql/vecsql/plan"
)

// Store owns a SQLite connection and hands out per-collection providers.
type Store struct {
	db         *sql.DB
	Path       string
	DriverName string
}

// Open connects with the default pure-Go driver (modernc.org/sqlite,
// registered as "sqlite").
func Open(ctx context.Context, path string) (*Store, error) {
	return OpenWithDriver(ctx, path, "sqlite")
}

// OpenWithDriver connects with an explicit driver name, e.g. "sqlite3" for
// the cgo driver.
func OpenWithDriver(ctx context.Context, path, driver string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn = dsn + "?_busy_timeout=5000"
	} else {
		dsn = dsn + "&_busy_timeout=5000"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode=WAL;")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")
	return &Store{db: db, Path: path, DriverName: driver}, nil
}

func (s *Store) Close() error { return s.db.Close() }

var collectionNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// tableName maps a collection to its table. The name is validated against
// collectionNameRe, so quoting cannot be subverted.
func tableName(collection string) (string, error) {
	if !collectionNameRe.MatchString(collection) {
		return "", vqerrors.Execution(collection, "invalid collection name", nil)
	}
	return `"c_` + collection + `"`, nil
}

// CreateCollection creates the backing table if it does not exist.
func (s *Store) CreateCollection(ctx context.Context, collection string) error {
	tbl, err := tableName(collection)
	if err != nil {
		return err
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + tbl + ` (
	id TEXT PRIMARY KEY,
	metadata TEXT NOT NULL DEFAULT '{}',
	vector BLOB
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
	stmt := `INSERT INTO ` + tbl + ` (id, metadata, vector) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET metadata = excluded.metadata, vector = excluded.vector`
	_, err = s.db.ExecContext(ctx, stmt, id, string(meta), blob)
	if err != nil {
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
	if !collectionNameRe.MatchString(collection) {
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
		OrderByField:   false, // json_extract ordering collates unpredictably across types
		LimitPushdown:  true,
	}
}

type jsonDialect struct{}

func (jsonDialect) FieldExpr(field string, _ any) string {
	// field names are validated identifiers, safe inside the path literal
	return `json_extract(metadata, '$.` + field + `')`
}

func (p *Provider) Query(ctx context.Context, req exec.Request) ([]exec.RawRecord, error) {
	tbl, err := tableName(p.collection)
	if err != nil {
		return nil, err
	}

	b := sqlbuilder.New(sqlbuilder.PlaceholderQuestion)
	var sb strings.Builder
	sb.WriteString(`SELECT id, metadata, vector FROM ` + tbl)
	if req.Predicate != nil {
		where, err := sqlbuilder.Where(b, req.Predicate, jsonDialect{})
		if err != nil {
			return nil, err
		}
		sb.WriteString(" WHERE " + where)
	}
	// Limit pushdown is sound only without vector scoring; scoring needs the
	// full candidate set before the cut.
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
		var id, metaJSON string
		var blob []byte
		if err := rows.Scan(&id, &metaJSON, &blob); err != nil {
			return nil, err
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
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
		sortByScore(out)
		if req.TopK > 0 && len(out) > req.TopK {
			out = out[:req.TopK]
		}
	}
	return out, nil
}
