package table

import (
	"context"
)

// Record is a single table row as an attribute map. It always carries the
// hash key attribute and, when the schema defines one, the range key attribute.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Key addresses a single record. A nil Range means the key has no range part.
type Key struct {
	Hash  any
	Range any
}

// HashKey builds a key for tables without a range key.
func HashKey(hash any) Key {
	return Key{Hash: hash}
}

// CompositeKey builds a key from a hash and range value.
func CompositeKey(hash, rng any) Key {
	return Key{Hash: hash, Range: rng}
}

// HasRange reports whether the key carries a range part.
func (k Key) HasRange() bool {
	return k.Range != nil
}

// Condition is a backing store specific write guard. Adapters interpret the
// expression in their own dialect.
type Condition struct {
	Expression string
	Names      map[string]string
	Values     map[string]any
}

// Params carries per-call parameters forwarded to the backing store.
type Params struct {
	// Attributes restricts a read to a projection of attributes.
	Attributes []string
	// ConsistentRead requests a strongly consistent read when supported.
	ConsistentRead bool
	// NoOverwrite makes Create fail when a record with the same key exists.
	NoOverwrite bool
	// Condition guards Update and Destroy.
	Condition *Condition
}

// Projected reports whether the read is restricted to a subset of attributes.
func (p Params) Projected() bool {
	return len(p.Attributes) > 0
}

// QueryParams narrows a query over a single hash key.
type QueryParams struct {
	Limit      int
	IndexName  string
	Descending bool
	StartKey   Record
	Filter     *Condition
	// RangeCondition is an adapter specific range key predicate.
	RangeCondition *Condition
	Attributes     []string
}

// ScanParams narrows a full table scan.
type ScanParams struct {
	Limit      int
	IndexName  string
	StartKey   Record
	Filter     *Condition
	Attributes []string
}

// Page is one page of a query or scan.
type Page struct {
	Items            []Record
	Count            int
	ScannedCount     int
	LastEvaluatedKey Record
}

// Executor is a prepared query or scan. Exec returns one page.
type Executor interface {
	Exec(ctx context.Context) (*Page, error)
	// WithStartKey returns an executor resuming after the given key.
	WithStartKey(key Record) Executor
}

// Table is the backing store contract the cache decorator needs.
//
// Get and Destroy return a nil record and a nil error when nothing matched.
type Table interface {
	Schema() Schema
	Get(ctx context.Context, key Key, params Params) (Record, error)
	Create(ctx context.Context, record Record, params Params) (Record, error)
	CreateMany(ctx context.Context, records []Record, params Params) ([]Record, error)
	Update(ctx context.Context, record Record, params Params) (Record, error)
	Destroy(ctx context.Context, key Key, params Params) (Record, error)
	BatchGet(ctx context.Context, keys []Key, params Params) ([]Record, error)
	Query(hash any, params QueryParams) Executor
	Scan(params ScanParams) Executor
	ParallelScan(segments int, params ScanParams) Executor
}
