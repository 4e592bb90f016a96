package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-table-cache/cache"
	"github.com/goliatone/go-table-cache/table"
)

// ErrUnsupported is returned for parameters the SQL store cannot honour.
var ErrUnsupported = errors.New("bunstore: unsupported parameter")

// row is the storage layout shared by every table: the canonical key
// columns plus the full record as JSON.
type row struct {
	bun.BaseModel `bun:"table:table_records,alias:r"`

	HashKey  string         `bun:"hash_key,pk"`
	RangeKey string         `bun:"range_key,pk"`
	Attrs    map[string]any `bun:"attrs,type:json,notnull"`
}

// Store implements table.Table on top of a SQL database through bun.
// Key values are stored in their canonical string form, so range ordering
// in queries is lexical.
type Store struct {
	db     bun.IDB
	schema table.Schema
}

var _ table.Table = (*Store)(nil)

// New binds a store to schema.TableName.
func New(db bun.IDB, schema table.Schema) (*Store, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Store{db: db, schema: schema}, nil
}

// CreateTable creates the backing table when it does not exist.
func (s *Store) CreateTable(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*row)(nil)).
		ModelTableExpr("?", s.ident()).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.schema.TableName, err)
	}
	return nil
}

func (s *Store) Schema() table.Schema {
	return s.schema
}

func (s *Store) Get(ctx context.Context, key table.Key, params table.Params) (table.Record, error) {
	hash, rng := s.columns(key)
	r, err := s.selectRow(ctx, s.db, hash, rng)
	if err != nil || r == nil {
		return nil, err
	}
	return project(r.Attrs, params.Attributes), nil
}

// Create inserts a record, replacing any existing one unless NoOverwrite.
func (s *Store) Create(ctx context.Context, record table.Record, params table.Params) (table.Record, error) {
	if params.Condition != nil {
		return nil, fmt.Errorf("create: condition: %w", ErrUnsupported)
	}
	key, err := s.schema.KeyOf(record)
	if err != nil {
		return nil, err
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.put(ctx, tx, key, record, params.NoOverwrite)
	})
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// CreateMany inserts every record in one transaction.
func (s *Store) CreateMany(ctx context.Context, records []table.Record, params table.Params) ([]table.Record, error) {
	if params.Condition != nil {
		return nil, fmt.Errorf("create many: condition: %w", ErrUnsupported)
	}
	keys := make([]table.Key, len(records))
	for i, rec := range records {
		key, err := s.schema.KeyOf(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		keys[i] = key
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for i, rec := range records {
			if err := s.put(ctx, tx, keys[i], rec, params.NoOverwrite); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]table.Record, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}
	return out, nil
}

// Update merges the given attributes into the stored record, creating it
// when absent. A nil attribute value removes the attribute.
func (s *Store) Update(ctx context.Context, record table.Record, params table.Params) (table.Record, error) {
	if params.Condition != nil {
		return nil, fmt.Errorf("update: condition: %w", ErrUnsupported)
	}
	key, err := s.schema.KeyOf(record)
	if err != nil {
		return nil, err
	}
	hash, rng := s.columns(key)

	var merged table.Record
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := s.selectRow(ctx, tx, hash, rng)
		if err != nil {
			return err
		}
		merged = table.Record{}
		if current != nil {
			for k, v := range current.Attrs {
				merged[k] = v
			}
		}
		for k, v := range record {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		return s.put(ctx, tx, key, merged, false)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *Store) Destroy(ctx context.Context, key table.Key, params table.Params) (table.Record, error) {
	if params.Condition != nil {
		return nil, fmt.Errorf("destroy: condition: %w", ErrUnsupported)
	}
	hash, rng := s.columns(key)

	var old table.Record
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := s.selectRow(ctx, tx, hash, rng)
		if err != nil || current == nil {
			return err
		}
		old = current.Attrs
		return s.deleteRow(ctx, tx, hash, rng)
	})
	if err != nil {
		return nil, err
	}
	return old, nil
}

// BatchGet returns the records that exist, in no particular order.
func (s *Store) BatchGet(ctx context.Context, keys []table.Key, params table.Params) ([]table.Record, error) {
	out := make([]table.Record, 0, len(keys))
	for _, key := range keys {
		rec, err := s.Get(ctx, key, params)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) Query(hash any, params table.QueryParams) table.Executor {
	return s.QueryWhere(hash, params)
}

// QueryWhere is Query with extra SQL criteria applied to the select.
func (s *Store) QueryWhere(hash any, params table.QueryParams, criteria ...repository.SelectCriteria) table.Executor {
	return &executor{
		store:      s,
		hash:       cache.Canonical(hash),
		byHash:     true,
		limit:      params.Limit,
		descending: params.Descending,
		startKey:   params.StartKey,
		attributes: params.Attributes,
		criteria:   criteria,
		invalid:    unsupportedQuery(params),
	}
}

func (s *Store) Scan(params table.ScanParams) table.Executor {
	return s.ScanWhere(params)
}

// ScanWhere is Scan with extra SQL criteria applied to the select.
func (s *Store) ScanWhere(params table.ScanParams, criteria ...repository.SelectCriteria) table.Executor {
	return &executor{
		store:      s,
		limit:      params.Limit,
		startKey:   params.StartKey,
		attributes: params.Attributes,
		criteria:   criteria,
		invalid:    unsupportedScan(params),
	}
}

// ParallelScan reads the whole table in a single ordered pass. Segments only
// matter to stores that shard scans.
func (s *Store) ParallelScan(segments int, params table.ScanParams) table.Executor {
	return s.ScanWhere(params)
}

func (s *Store) put(ctx context.Context, tx bun.Tx, key table.Key, record table.Record, noOverwrite bool) error {
	hash, rng := s.columns(key)

	existing, err := s.selectRow(ctx, tx, hash, rng)
	if err != nil {
		return err
	}
	if existing != nil {
		if noOverwrite {
			return &table.ConditionFailedError{Operation: "create", Table: s.schema.TableName}
		}
		if err := s.deleteRow(ctx, tx, hash, rng); err != nil {
			return err
		}
	}

	r := &row{HashKey: hash, RangeKey: rng, Attrs: map[string]any(record.Clone())}
	if _, err := tx.NewInsert().Model(r).ModelTableExpr("?", s.ident()).Exec(ctx); err != nil {
		return fmt.Errorf("insert into %s: %w", s.schema.TableName, err)
	}
	return nil
}

func (s *Store) selectRow(ctx context.Context, db bun.IDB, hash, rng string) (*row, error) {
	var rows []row
	err := db.NewSelect().
		TableExpr("?", s.ident()).
		Column("hash_key", "range_key", "attrs").
		Where("hash_key = ?", hash).
		Where("range_key = ?", rng).
		Limit(1).
		Scan(ctx, &rows)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select from %s: %w", s.schema.TableName, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) deleteRow(ctx context.Context, db bun.IDB, hash, rng string) error {
	_, err := db.NewDelete().
		TableExpr("?", s.ident()).
		Where("hash_key = ?", hash).
		Where("range_key = ?", rng).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", s.schema.TableName, err)
	}
	return nil
}

func (s *Store) columns(key table.Key) (string, string) {
	hash := cache.Canonical(key.Hash)
	if !s.schema.HasRange() || !key.HasRange() {
		return hash, ""
	}
	return hash, cache.Canonical(key.Range)
}

func (s *Store) ident() bun.Ident {
	return bun.Ident(s.schema.TableName)
}

func project(attrs map[string]any, names []string) table.Record {
	if len(names) == 0 {
		return table.Record(attrs)
	}
	out := make(table.Record, len(names))
	for _, name := range names {
		if v, ok := attrs[name]; ok {
			out[name] = v
		}
	}
	return out
}

func unsupportedQuery(p table.QueryParams) error {
	switch {
	case p.IndexName != "":
		return fmt.Errorf("query: index %q: %w", p.IndexName, ErrUnsupported)
	case p.Filter != nil, p.RangeCondition != nil:
		return fmt.Errorf("query: expressions, use QueryWhere criteria: %w", ErrUnsupported)
	}
	return nil
}

func unsupportedScan(p table.ScanParams) error {
	switch {
	case p.IndexName != "":
		return fmt.Errorf("scan: index %q: %w", p.IndexName, ErrUnsupported)
	case p.Filter != nil:
		return fmt.Errorf("scan: expressions, use ScanWhere criteria: %w", ErrUnsupported)
	}
	return nil
}
