package tablecache

import (
	"context"
	"time"

	"github.com/goliatone/go-table-cache/table"
)

// Page is one page of a query or scan with decorated items.
type Page struct {
	Items            []*Item
	Count            int
	ScannedCount     int
	LastEvaluatedKey table.Record
}

// HasMore reports whether the table has results past this page.
func (p *Page) HasMore() bool {
	return len(p.LastEvaluatedKey) > 0
}

// CachedExec runs a table query or scan and optionally caches every record
// of the returned page.
type CachedExec struct {
	table     *CachedTable
	exec      table.Executor
	projected bool
	enabled   bool
	ttl       *time.Duration
}

func (c *CachedTable) newExec(exec table.Executor, projected bool) *CachedExec {
	return &CachedExec{table: c, exec: exec, projected: projected}
}

// CacheResults turns caching of the page's records on or off. The optional
// ttl overrides the table's CacheExpire.
func (e *CachedExec) CacheResults(enable bool, ttl ...time.Duration) *CachedExec {
	e.enabled = enable
	if len(ttl) > 0 {
		d := ttl[0]
		e.ttl = &d
	}
	return e
}

// StartFrom returns an exec that resumes after key, usually the previous
// page's LastEvaluatedKey. The caching toggle carries over.
func (e *CachedExec) StartFrom(key table.Record) *CachedExec {
	next := *e
	next.exec = e.exec.WithStartKey(key)
	return &next
}

// Exec fetches one page.
func (e *CachedExec) Exec(ctx context.Context) (*Page, error) {
	page, err := e.exec.Exec(ctx)
	if err != nil {
		return nil, err
	}

	out := &Page{
		Items:            make([]*Item, 0, len(page.Items)),
		Count:            page.Count,
		ScannedCount:     page.ScannedCount,
		LastEvaluatedKey: page.LastEvaluatedKey,
	}
	for _, rec := range page.Items {
		out.Items = append(out.Items, e.table.wrap(rec))
	}

	if !e.enabled {
		return out, nil
	}
	if e.projected {
		e.table.logger.Debug("projected page not cached", "count", len(out.Items))
		return out, nil
	}

	eff, _, _ := e.table.resolve(ctx, nil)
	ttl := eff.CacheExpire
	if e.ttl != nil {
		ttl = *e.ttl
	}
	e.table.cacheItems(ctx, out.Items, ttl)
	return out, nil
}
