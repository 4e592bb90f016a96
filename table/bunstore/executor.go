package bunstore

import (
	"context"
	"fmt"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-table-cache/table"
)

type executor struct {
	store      *Store
	hash       string
	byHash     bool
	limit      int
	descending bool
	startKey   table.Record
	attributes []string
	criteria   []repository.SelectCriteria
	invalid    error
}

func (e *executor) WithStartKey(key table.Record) table.Executor {
	next := *e
	next.startKey = key
	return &next
}

func (e *executor) Exec(ctx context.Context) (*table.Page, error) {
	if e.invalid != nil {
		return nil, e.invalid
	}

	q := e.store.db.NewSelect().
		TableExpr("?", e.store.ident()).
		Column("hash_key", "range_key", "attrs")

	if e.byHash {
		q = q.Where("hash_key = ?", e.hash)
	}
	q, err := e.applyStart(q)
	if err != nil {
		return nil, err
	}
	for _, c := range e.criteria {
		q = c(q)
	}

	if e.descending {
		q = q.OrderExpr("hash_key DESC, range_key DESC")
	} else {
		q = q.OrderExpr("hash_key ASC, range_key ASC")
	}
	if e.limit > 0 {
		q = q.Limit(e.limit + 1)
	}

	var rows []row
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("page %s: %w", e.store.schema.TableName, err)
	}

	page := &table.Page{ScannedCount: len(rows)}
	if e.limit > 0 && len(rows) > e.limit {
		rows = rows[:e.limit]
		last := rows[len(rows)-1]
		page.LastEvaluatedKey = e.store.schema.KeyRecord(e.store.keyFromRow(last))
	}
	for _, r := range rows {
		page.Items = append(page.Items, project(r.Attrs, e.attributes))
	}
	page.Count = len(page.Items)
	return page, nil
}

func (e *executor) applyStart(q *bun.SelectQuery) (*bun.SelectQuery, error) {
	if len(e.startKey) == 0 {
		return q, nil
	}
	key, err := e.store.schema.KeyOf(e.startKey)
	if err != nil {
		return nil, fmt.Errorf("start key: %w", err)
	}
	hash, rng := e.store.columns(key)

	op := ">"
	if e.descending {
		op = "<"
	}
	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("hash_key "+op+" ?", hash).
			WhereOr("(hash_key = ? AND range_key "+op+" ?)", hash, rng)
	}), nil
}

func (s *Store) keyFromRow(r row) table.Key {
	attrs := table.Record(r.Attrs)
	if key, err := s.schema.KeyOf(attrs); err == nil {
		return key
	}
	if r.RangeKey == "" {
		return table.HashKey(r.HashKey)
	}
	return table.CompositeKey(r.HashKey, r.RangeKey)
}
