package testsupport

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/goliatone/go-table-cache/cache"
	"github.com/goliatone/go-table-cache/table"
)

// MemTable is an in-memory table.Table that records the operations it serves.
type MemTable struct {
	schema table.Schema

	mu    sync.Mutex
	rows  map[string]table.Record
	calls []string
	fails map[string]error
	batch [][]table.Key

	// ReverseBatch makes BatchGet return records in reverse key order, the way
	// real stores make no ordering promise.
	ReverseBatch bool
}

var _ table.Table = (*MemTable)(nil)

func NewMemTable(schema table.Schema, seed ...table.Record) *MemTable {
	m := &MemTable{
		schema: schema,
		rows:   map[string]table.Record{},
		fails:  map[string]error{},
	}
	for _, rec := range seed {
		key, err := schema.KeyOf(rec)
		if err != nil {
			panic(err)
		}
		m.rows[m.id(key)] = rec.Clone()
	}
	return m
}

// Fail makes every later call to op return err. A nil err clears it.
func (m *MemTable) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fails, op)
		return
	}
	m.fails[op] = err
}

// Calls returns the operations served so far.
func (m *MemTable) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how often op was served.
func (m *MemTable) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == op {
			n++
		}
	}
	return n
}

// BatchKeys returns the key lists BatchGet was called with.
func (m *MemTable) BatchKeys() [][]table.Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]table.Key(nil), m.batch...)
}

func (m *MemTable) ClearCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Row returns the stored record for key without recording a call.
func (m *MemTable) Row(key table.Key) table.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[m.id(key)].Clone()
}

func (m *MemTable) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *MemTable) Schema() table.Schema {
	return m.schema
}

func (m *MemTable) Get(ctx context.Context, key table.Key, params table.Params) (table.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Get"); err != nil {
		return nil, err
	}
	rec, ok := m.rows[m.id(key)]
	if !ok {
		return nil, nil
	}
	return project(rec, params.Attributes), nil
}

func (m *MemTable) Create(ctx context.Context, record table.Record, params table.Params) (table.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Create"); err != nil {
		return nil, err
	}
	return m.put("create", record, params)
}

func (m *MemTable) CreateMany(ctx context.Context, records []table.Record, params table.Params) ([]table.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateMany"); err != nil {
		return nil, err
	}
	out := make([]table.Record, 0, len(records))
	for _, rec := range records {
		created, err := m.put("create", rec, params)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	return out, nil
}

func (m *MemTable) Update(ctx context.Context, record table.Record, params table.Params) (table.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Update"); err != nil {
		return nil, err
	}
	key, err := m.schema.KeyOf(record)
	if err != nil {
		return nil, err
	}
	id := m.id(key)
	current, ok := m.rows[id]
	if params.Condition != nil && !ok {
		return nil, &table.ConditionFailedError{Operation: "update", Table: m.schema.TableName}
	}
	merged := current.Clone()
	if merged == nil {
		merged = table.Record{}
	}
	for k, v := range record {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	m.rows[id] = merged
	return merged.Clone(), nil
}

func (m *MemTable) Destroy(ctx context.Context, key table.Key, params table.Params) (table.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Destroy"); err != nil {
		return nil, err
	}
	id := m.id(key)
	old, ok := m.rows[id]
	if !ok {
		if params.Condition != nil {
			return nil, &table.ConditionFailedError{Operation: "destroy", Table: m.schema.TableName}
		}
		return nil, nil
	}
	delete(m.rows, id)
	return old, nil
}

func (m *MemTable) BatchGet(ctx context.Context, keys []table.Key, params table.Params) ([]table.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("BatchGet"); err != nil {
		return nil, err
	}
	m.batch = append(m.batch, append([]table.Key(nil), keys...))
	var out []table.Record
	seen := map[string]bool{}
	for _, k := range keys {
		id := m.id(k)
		if seen[id] {
			continue
		}
		seen[id] = true
		if rec, ok := m.rows[id]; ok {
			out = append(out, project(rec, params.Attributes))
		}
	}
	if m.ReverseBatch {
		slices.Reverse(out)
	}
	return out, nil
}

func (m *MemTable) Query(hash any, params table.QueryParams) table.Executor {
	return &memExecutor{
		table: m,
		op:    "Query",
		match: func(r table.Record) bool {
			return cache.Canonical(r[m.schema.HashKey]) == cache.Canonical(hash)
		},
		limit:      params.Limit,
		start:      params.StartKey,
		descending: params.Descending,
		attrs:      params.Attributes,
	}
}

func (m *MemTable) Scan(params table.ScanParams) table.Executor {
	return &memExecutor{
		table: m,
		op:    "Scan",
		limit: params.Limit,
		start: params.StartKey,
		attrs: params.Attributes,
	}
}

func (m *MemTable) ParallelScan(segments int, params table.ScanParams) table.Executor {
	return &memExecutor{table: m, op: "ParallelScan", attrs: params.Attributes}
}

// enter records op and returns its injected failure. Callers hold m.mu.
func (m *MemTable) enter(op string) error {
	m.calls = append(m.calls, op)
	return m.fails[op]
}

func (m *MemTable) put(op string, record table.Record, params table.Params) (table.Record, error) {
	key, err := m.schema.KeyOf(record)
	if err != nil {
		return nil, err
	}
	id := m.id(key)
	if _, exists := m.rows[id]; exists && params.NoOverwrite {
		return nil, &table.ConditionFailedError{Operation: op, Table: m.schema.TableName}
	}
	m.rows[id] = record.Clone()
	return record.Clone(), nil
}

func (m *MemTable) id(k table.Key) string {
	if !m.schema.HasRange() {
		return cache.Canonical(k.Hash)
	}
	return cache.Canonical(k.Hash) + "|" + cache.Canonical(k.Range)
}

func (m *MemTable) sortedIDs() []string {
	ids := make([]string, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type memExecutor struct {
	table      *MemTable
	op         string
	match      func(table.Record) bool
	limit      int
	start      table.Record
	descending bool
	attrs      []string
}

func (e *memExecutor) WithStartKey(key table.Record) table.Executor {
	next := *e
	next.start = key
	return &next
}

func (e *memExecutor) Exec(ctx context.Context) (*table.Page, error) {
	m := e.table
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(e.op); err != nil {
		return nil, err
	}

	ids := m.sortedIDs()
	if e.descending {
		slices.Reverse(ids)
	}

	if len(e.start) > 0 {
		startKey, err := m.schema.KeyOf(e.start)
		if err != nil {
			return nil, fmt.Errorf("start key: %w", err)
		}
		startID := m.id(startKey)
		pos := slices.Index(ids, startID)
		if pos < 0 {
			return &table.Page{}, nil
		}
		ids = ids[pos+1:]
	}

	page := &table.Page{}
	for _, id := range ids {
		rec := m.rows[id]
		page.ScannedCount++
		if e.match != nil && !e.match(rec) {
			continue
		}
		page.Items = append(page.Items, project(rec, e.attrs))
		if e.limit > 0 && len(page.Items) == e.limit {
			key, _ := m.schema.KeyOf(rec)
			page.LastEvaluatedKey = m.schema.KeyRecord(key)
			break
		}
	}
	page.Count = len(page.Items)
	return page, nil
}

func project(rec table.Record, attrs []string) table.Record {
	if len(attrs) == 0 {
		return rec.Clone()
	}
	out := table.Record{}
	for _, a := range attrs {
		if v, ok := rec[a]; ok {
			out[a] = v
		}
	}
	return out
}
